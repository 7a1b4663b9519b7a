package store

import (
	"context"
	"time"

	"github.com/sailmerge/sailmerge/pkg/core"
)

// Interface is the Session Store contract (spec.md §4.11) the Orchestrator
// and any reviewer-facing surface depend on. *Store (PostgreSQL) and
// *MemStore (in-process test double) both satisfy it.
type Interface interface {
	CreateSession(ctx context.Context) (*Session, error)
	PersistAnalysis(ctx context.Context, sessionID int64, result AnalysisResult) error
	MarkFailed(ctx context.Context, sessionID int64, stepErr error) error

	GetSessionByID(ctx context.Context, id int64) (*Session, error)
	GetSessionByReferenceID(ctx context.Context, referenceID string) (*Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]*Session, error)

	BeginReview(ctx context.Context, sessionID int64) error
	UpdateReviewStatus(ctx context.Context, sessionID, changeID int64, status core.ReviewStatus, notes string) error
	RecomputeProgress(ctx context.Context, sessionID int64) (reviewed, skipped int, err error)
	CompleteSession(ctx context.Context, sessionID int64) error

	ListChanges(ctx context.Context, sessionID int64, filter ChangeFilter) ([]*ChangeRow, error)
	GetChange(ctx context.Context, sessionID, changeID int64) (*ChangeRow, error)
	SetAISummary(ctx context.Context, sessionID, changeID int64, status core.AISummaryStatus, text string) error
	GetAISummary(ctx context.Context, sessionID, changeID int64) (status core.AISummaryStatus, text string, generatedAt *time.Time, err error)
}

var (
	_ Interface = (*Store)(nil)
	_ Interface = (*MemStore)(nil)
)
