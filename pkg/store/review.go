package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sailmerge/sailmerge/pkg/core"
)

// UpdateReviewStatus records a reviewer decision on one change. Review
// actions are serialized per session by the caller (spec.md §5); this method
// itself is a single statement and does not need its own transaction.
func (s *Store) UpdateReviewStatus(ctx context.Context, sessionID, changeID int64, status core.ReviewStatus, notes string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE changes SET review_status = $1, notes = $2 WHERE id = $3 AND session_id = $4
	`, status, notes, changeID, sessionID)
	if err != nil {
		return translateWriteError(err, "store: update review status")
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// RecomputeProgress recomputes reviewed_count and skipped_count by querying
// current change statuses, not by incrementing a counter — the explicit
// correction over an earlier +1-arithmetic implementation that could drift
// (spec.md §4.11). The session row is updated with the fresh counts and they
// are returned to the caller.
func (s *Store) RecomputeProgress(ctx context.Context, sessionID int64) (reviewed, skipped int, err error) {
	rows, err := s.pool.Query(ctx, `
		SELECT review_status, COUNT(*) FROM changes WHERE session_id = $1 GROUP BY review_status
	`, sessionID)
	if err != nil {
		return 0, 0, fmt.Errorf("store: recompute progress: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status core.ReviewStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return 0, 0, fmt.Errorf("store: recompute progress: scan: %w", err)
		}
		switch status {
		case core.ReviewStatusReviewed:
			reviewed = count
		case core.ReviewStatusSkipped:
			skipped = count
		}
	}
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("store: recompute progress: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE sessions SET reviewed_count = $1, skipped_count = $2, updated_at = now() WHERE id = $3
	`, reviewed, skipped, sessionID)
	if err != nil {
		return 0, 0, fmt.Errorf("store: recompute progress: update session: %w", err)
	}
	return reviewed, skipped, nil
}

// CompleteSession transitions a session from in_progress to completed iff
// every change with a non-null order_index has a terminal review status,
// otherwise returns ErrPendingChanges (spec.md §4.11).
func (s *Store) CompleteSession(ctx context.Context, sessionID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: complete session: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var pending int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM changes
		WHERE session_id = $1 AND order_index IS NOT NULL
		  AND review_status NOT IN ($2, $3)
	`, sessionID, core.ReviewStatusReviewed, core.ReviewStatusSkipped).Scan(&pending)
	if err != nil {
		return fmt.Errorf("store: complete session: count pending: %w", err)
	}
	if pending > 0 {
		return core.ErrPendingChanges
	}

	tag, err := tx.Exec(ctx, `
		UPDATE sessions SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, core.SessionStatusCompleted, sessionID, core.SessionStatusInProgress)
	if err != nil {
		return translateWriteError(err, "store: complete session")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: complete session: %w: session %d not in_progress", core.ErrPersistenceFailure, sessionID)
	}

	return tx.Commit(ctx)
}

// BeginReview transitions a ready session to in_progress on the first review
// action (spec.md §3: "transitions to in_progress on first review action").
func (s *Store) BeginReview(ctx context.Context, sessionID int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sessions SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, core.SessionStatusInProgress, sessionID, core.SessionStatusReady)
	if err != nil {
		return translateWriteError(err, "store: begin review")
	}
	return nil
}

// ListChanges returns one session's changes, ordered by order_index
// (nulls last) then object name, optionally filtered by classification or
// review status.
func (s *Store) ListChanges(ctx context.Context, sessionID int64, filter ChangeFilter) ([]*ChangeRow, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, session_id, object_uuid, object_type, object_name, classification,
		       vendor_kind, customer_kind, review_status, notes, order_index,
		       ai_summary_status, ai_summary_text, ai_summary_generated_at
		FROM changes WHERE session_id = $1
	`
	args := []any{sessionID}
	if filter.Classification != "" {
		args = append(args, filter.Classification)
		query += fmt.Sprintf(" AND classification = $%d", len(args))
	}
	if filter.ReviewStatus != "" {
		args = append(args, filter.ReviewStatus)
		query += fmt.Sprintf(" AND review_status = $%d", len(args))
	}
	query += fmt.Sprintf(" ORDER BY order_index NULLS LAST, object_name LIMIT %d OFFSET %d", limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list changes: %w", err)
	}
	defer rows.Close()

	var out []*ChangeRow
	for rows.Next() {
		row, err := scanChangeRow(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list changes: scan: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetChange looks up a single change by id within its session.
func (s *Store) GetChange(ctx context.Context, sessionID, changeID int64) (*ChangeRow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, session_id, object_uuid, object_type, object_name, classification,
		       vendor_kind, customer_kind, review_status, notes, order_index,
		       ai_summary_status, ai_summary_text, ai_summary_generated_at
		FROM changes WHERE id = $1 AND session_id = $2
	`, changeID, sessionID)
	out, err := scanChangeRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("store: get change: %w", err)
	}
	return out, nil
}

// SetAISummary stores the opaque AI-summary passthrough fields for a change,
// stamping ai_summary_generated_at with the write time (spec.md §9 open
// question: the core treats these fields as opaque; it only persists them
// and reports when they were last written).
func (s *Store) SetAISummary(ctx context.Context, sessionID, changeID int64, status core.AISummaryStatus, text string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE changes SET ai_summary_status = $1, ai_summary_text = $2, ai_summary_generated_at = now()
		WHERE id = $3 AND session_id = $4
	`, status, text, changeID, sessionID)
	if err != nil {
		return translateWriteError(err, "store: set ai summary")
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// GetAISummary reads back the opaque AI-summary passthrough fields for one
// change, the read half of the store's documented
// GetAISummary/SetAISummary surface (spec.md §9).
func (s *Store) GetAISummary(ctx context.Context, sessionID, changeID int64) (core.AISummaryStatus, string, *time.Time, error) {
	var status core.AISummaryStatus
	var text string
	var generatedAt *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT ai_summary_status, ai_summary_text, ai_summary_generated_at
		FROM changes WHERE id = $1 AND session_id = $2
	`, changeID, sessionID).Scan(&status, &text, &generatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", nil, core.ErrNotFound
		}
		return "", "", nil, fmt.Errorf("store: get ai summary: %w", err)
	}
	return status, text, generatedAt, nil
}

func scanChangeRow(row scanner) (*ChangeRow, error) {
	var c ChangeRow
	var vendorKind, customerKind *string
	if err := row.Scan(&c.ID, &c.SessionID, &c.ObjectUUID, &c.ObjectType, &c.ObjectName, &c.Classification,
		&vendorKind, &customerKind, &c.ReviewStatus, &c.Notes, &c.OrderIndex,
		&c.AISummaryStatus, &c.AISummaryText, &c.AISummaryGeneratedAt); err != nil {
		return nil, err
	}
	if vendorKind != nil {
		k := core.ChangeKind(*vendorKind)
		c.VendorKind = &k
	}
	if customerKind != nil {
		k := core.ChangeKind(*customerKind)
		c.CustomerKind = &k
	}
	return &c, nil
}
