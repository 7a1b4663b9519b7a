package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sailmerge/sailmerge/pkg/core"
)

// MemStore is an in-process Interface implementation backed by plain maps,
// used by orchestrator and reviewer-surface unit tests that want Session
// Store semantics without a PostgreSQL instance. It reproduces the same
// invariants as Store: atomic reference-id allocation, progress-by-query,
// and the Complete-session gate.
type MemStore struct {
	mu            sync.Mutex
	nextRef       int
	nextSessionID int64
	nextChangeID  int64
	sessions      map[int64]*Session
	changes       map[int64][]*ChangeRow // keyed by session id
}

// NewMemStore returns an empty MemStore with the reference sequence starting
// at 1 (MRG_001), matching Store's fresh-schema behaviour.
func NewMemStore() *MemStore {
	return &MemStore{
		nextRef:       1,
		nextSessionID: 1,
		nextChangeID:  1,
		sessions:      make(map[int64]*Session),
		changes:       make(map[int64][]*ChangeRow),
	}
}

func (m *MemStore) CreateSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := &Session{
		ID:          m.nextSessionID,
		ReferenceID: formatReferenceID(m.nextRef),
		Status:      core.SessionStatusProcessing,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	m.sessions[sess.ID] = sess
	m.nextSessionID++
	m.nextRef++
	return cloneSession(sess), nil
}

func (m *MemStore) PersistAnalysis(ctx context.Context, sessionID int64, result AnalysisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return core.ErrNotFound
	}

	rows := make([]*ChangeRow, 0, len(result.Changes))
	for _, c := range result.Changes {
		rows = append(rows, &ChangeRow{
			ID:             m.nextChangeID,
			SessionID:      sessionID,
			ObjectUUID:     c.ObjectUUID,
			ObjectType:     c.ObjectType,
			ObjectName:     c.ObjectName,
			Classification: c.Classification,
			VendorKind:     c.VendorKind,
			CustomerKind:   c.CustomerKind,
			ReviewStatus:   core.ReviewStatusPending,
			OrderIndex:     c.OrderIndex,
		})
		m.nextChangeID++
	}
	m.changes[sessionID] = rows
	sess.Status = core.SessionStatusReady
	sess.UpdatedAt = time.Now()
	return nil
}

func (m *MemStore) MarkFailed(ctx context.Context, sessionID int64, stepErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return core.ErrNotFound
	}
	sess.Status = core.SessionStatusFailed
	sess.LastError = stepErr.Error()
	sess.UpdatedAt = time.Now()
	return nil
}

func (m *MemStore) GetSessionByID(ctx context.Context, id int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return cloneSession(sess), nil
}

func (m *MemStore) GetSessionByReferenceID(ctx context.Context, referenceID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sess := range m.sessions {
		if sess.ReferenceID == referenceID {
			return cloneSession(sess), nil
		}
	}
	return nil, core.ErrNotFound
}

func (m *MemStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Session
	for _, sess := range m.sessions {
		if filter.Status != "" && sess.Status != filter.Status {
			continue
		}
		out = append(out, cloneSession(sess))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]

	limit := filter.Limit
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) BeginReview(ctx context.Context, sessionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return core.ErrNotFound
	}
	if sess.Status == core.SessionStatusReady {
		sess.Status = core.SessionStatusInProgress
		sess.UpdatedAt = time.Now()
	}
	return nil
}

func (m *MemStore) UpdateReviewStatus(ctx context.Context, sessionID, changeID int64, status core.ReviewStatus, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.changes[sessionID] {
		if c.ID == changeID {
			c.ReviewStatus = status
			c.Notes = notes
			return nil
		}
	}
	return core.ErrNotFound
}

func (m *MemStore) RecomputeProgress(ctx context.Context, sessionID int64) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return 0, 0, core.ErrNotFound
	}
	var reviewed, skipped int
	for _, c := range m.changes[sessionID] {
		switch c.ReviewStatus {
		case core.ReviewStatusReviewed:
			reviewed++
		case core.ReviewStatusSkipped:
			skipped++
		}
	}
	sess.ReviewedCount, sess.SkippedCount = reviewed, skipped
	sess.UpdatedAt = time.Now()
	return reviewed, skipped, nil
}

func (m *MemStore) CompleteSession(ctx context.Context, sessionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return core.ErrNotFound
	}
	if sess.Status != core.SessionStatusInProgress {
		return fmt.Errorf("%w: session %d not in_progress", core.ErrPersistenceFailure, sessionID)
	}
	for _, c := range m.changes[sessionID] {
		if c.OrderIndex != nil && !c.ReviewStatus.IsTerminal() {
			return core.ErrPendingChanges
		}
	}
	sess.Status = core.SessionStatusCompleted
	sess.UpdatedAt = time.Now()
	return nil
}

func (m *MemStore) ListChanges(ctx context.Context, sessionID int64, filter ChangeFilter) ([]*ChangeRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*ChangeRow
	for _, c := range m.changes[sessionID] {
		if filter.Classification != "" && c.Classification != filter.Classification {
			continue
		}
		if filter.ReviewStatus != "" && c.ReviewStatus != filter.ReviewStatus {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].OrderIndex, out[j].OrderIndex
		switch {
		case a == nil && b == nil:
			return out[i].ObjectName < out[j].ObjectName
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	limit := filter.Limit
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) GetChange(ctx context.Context, sessionID, changeID int64) (*ChangeRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.changes[sessionID] {
		if c.ID == changeID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (m *MemStore) SetAISummary(ctx context.Context, sessionID, changeID int64, status core.AISummaryStatus, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.changes[sessionID] {
		if c.ID == changeID {
			c.AISummaryStatus = status
			c.AISummaryText = text
			now := time.Now()
			c.AISummaryGeneratedAt = &now
			return nil
		}
	}
	return core.ErrNotFound
}

func (m *MemStore) GetAISummary(ctx context.Context, sessionID, changeID int64) (core.AISummaryStatus, string, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.changes[sessionID] {
		if c.ID == changeID {
			return c.AISummaryStatus, c.AISummaryText, c.AISummaryGeneratedAt, nil
		}
	}
	return "", "", nil, core.ErrNotFound
}

func cloneSession(s *Session) *Session {
	cp := *s
	return &cp
}
