package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sailmerge/sailmerge/pkg/core"
)

// CreateSession allocates a new session row with the next reference id,
// status processing (spec.md §4.11). Reference id allocation locks the
// singleton counter row with FOR UPDATE so two concurrent callers are
// serialized into two distinct, sequential ids.
func (s *Store) CreateSession(ctx context.Context) (*Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: create session: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var next int
	err = tx.QueryRow(ctx, `SELECT next_value FROM reference_id_counter WHERE id = 1 FOR UPDATE`).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("store: create session: lock counter: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE reference_id_counter SET next_value = $1 WHERE id = 1`, next+1); err != nil {
		return nil, fmt.Errorf("store: create session: advance counter: %w", err)
	}

	referenceID := formatReferenceID(next)

	var sess Session
	row := tx.QueryRow(ctx, `
		INSERT INTO sessions (reference_id, status)
		VALUES ($1, $2)
		RETURNING id, reference_id, status, reviewed_count, skipped_count, coalesce(last_error, ''), created_at, updated_at
	`, referenceID, core.SessionStatusProcessing)
	if err := scanSession(row, &sess); err != nil {
		return nil, translateWriteError(err, "store: create session")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("store: create session: commit: %w", err)
	}
	return &sess, nil
}

// formatReferenceID renders n as MRG_NNN, zero-padded to at least 3 digits
// (spec.md §6: "MRG_ followed by a zero-padded decimal >= 3 digits").
func formatReferenceID(n int) string {
	return fmt.Sprintf("MRG_%03d", n)
}

// GetSessionByID looks up a session by its numeric id.
func (s *Store) GetSessionByID(ctx context.Context, id int64) (*Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, reference_id, status, reviewed_count, skipped_count, coalesce(last_error, ''), created_at, updated_at
		FROM sessions WHERE id = $1
	`, id)
	var sess Session
	if err := scanSession(row, &sess); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	return &sess, nil
}

// GetSessionByReferenceID looks up a session by its human reference id.
func (s *Store) GetSessionByReferenceID(ctx context.Context, referenceID string) (*Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, reference_id, status, reviewed_count, skipped_count, coalesce(last_error, ''), created_at, updated_at
		FROM sessions WHERE reference_id = $1
	`, referenceID)
	var sess Session
	if err := scanSession(row, &sess); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("store: get session by reference: %w", err)
	}
	return &sess, nil
}

// ListSessions lists sessions newest-first, optionally filtered by status
// (spec.md §4.11: "list all sessions ordered by creation date descending").
func (s *Store) ListSessions(ctx context.Context, filter SessionFilter) ([]*Session, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, reference_id, status, reviewed_count, skipped_count, coalesce(last_error, ''), created_at, updated_at
		FROM sessions
	`
	args := []any{}
	if filter.Status != "" {
		query += " WHERE status = $1"
		args = append(args, filter.Status)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var sess Session
		if err := scanSession(rows, &sess); err != nil {
			return nil, fmt.Errorf("store: list sessions: scan: %w", err)
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// MarkFailed transitions a session to failed and records the error message
// (spec.md §4.12, §7: "commits the session row so the failure is
// observable").
func (s *Store) MarkFailed(ctx context.Context, sessionID int64, stepErr error) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sessions SET status = $1, last_error = $2, updated_at = now() WHERE id = $3
	`, core.SessionStatusFailed, stepErr.Error(), sessionID)
	if err != nil {
		return fmt.Errorf("store: mark failed: %w", err)
	}
	return nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner, sess *Session) error {
	return row.Scan(&sess.ID, &sess.ReferenceID, &sess.Status, &sess.ReviewedCount, &sess.SkippedCount,
		&sess.LastError, &sess.CreatedAt, &sess.UpdatedAt)
}
