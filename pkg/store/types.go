package store

import (
	"time"

	"github.com/sailmerge/sailmerge/pkg/canonical"
	"github.com/sailmerge/sailmerge/pkg/classify"
	"github.com/sailmerge/sailmerge/pkg/compare"
	"github.com/sailmerge/sailmerge/pkg/core"
	"github.com/sailmerge/sailmerge/pkg/objectmodel"
	"github.com/sailmerge/sailmerge/pkg/review"
)

// Session is the persisted row for the top-level aggregate (spec.md §3).
type Session struct {
	ID            int64
	ReferenceID   string
	Status        core.SessionStatus
	ReviewedCount int
	SkippedCount  int
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PackageInput is one of the three ingested archives, keyed by role.
type PackageInput struct {
	Role     core.PackageRole
	Filename string
}

// VersionInput is one object version belonging to one package, carrying the
// view the Content Canonicalizer produced so the row can be persisted
// without recomputation.
type VersionInput struct {
	ObjectUUID  string
	ObjectName  string
	ObjectType  core.ObjectType
	PackageRole core.PackageRole
	Version     objectmodel.Version
	View        canonical.View
}

// AnalysisResult is the full output of one orchestrator run, handed to
// PersistAnalysis in a single transaction (spec.md §4.11: "persist
// packages, objects, versions, deltas, changes in one transaction at the
// end of analysis").
type AnalysisResult struct {
	Packages      []PackageInput
	Objects       []*objectmodel.Object
	Versions      []VersionInput
	VendorDelta   []compare.Record // set D
	CustomerDelta []compare.Record // set E
	Changes       []review.OrderedChange
}

// ChangeRow is the persisted form of a classify.Change plus its review and
// ordering state.
type ChangeRow struct {
	ID                   int64
	SessionID            int64
	ObjectUUID           string
	ObjectType           core.ObjectType
	ObjectName           string
	Classification       core.Classification
	VendorKind           *core.ChangeKind
	CustomerKind         *core.ChangeKind
	ReviewStatus         core.ReviewStatus
	Notes                string
	OrderIndex           *int
	AISummaryStatus      core.AISummaryStatus
	AISummaryText        string
	AISummaryGeneratedAt *time.Time
}

// SessionFilter narrows ListSessions; zero value applies no status filter.
// Store caps an unset Limit at 50 sessions; MemStore returns every match.
type SessionFilter struct {
	Status core.SessionStatus
	Limit  int
	Offset int
}

// ChangeFilter narrows ListChanges for one session; zero value applies no
// filter and orders by order_index (NULLs last). Store caps an unset Limit
// at 100 changes; MemStore returns every match.
type ChangeFilter struct {
	Classification core.Classification
	ReviewStatus   core.ReviewStatus
	Limit          int
	Offset         int
}
