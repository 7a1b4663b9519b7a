// Package orchestrator drives the ten-step analysis pipeline (spec.md
// §4.12): create session, read and parse the three input packages,
// populate the shared object lookup, format SAIL code across the session,
// run the two delta comparisons, classify, order, and persist — emitting
// per-step structured progress and honoring cooperative cancellation and
// per-step timeouts.
//
// The goroutine lifecycle for the parallel stages (package read/parse, the
// two delta comparisons) follows the teacher's
// pkg/agent/orchestrator.SubAgentRunner: a parentCtx held distinct from
// each stage's own derived context, and a result channel sized to the
// number of concurrent workers so no goroutine blocks delivering its
// result after the caller has already moved on.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/sailmerge/sailmerge/pkg/classify"
	"github.com/sailmerge/sailmerge/pkg/compare"
	"github.com/sailmerge/sailmerge/pkg/core"
	"github.com/sailmerge/sailmerge/pkg/depgraph"
	"github.com/sailmerge/sailmerge/pkg/objectmodel"
	"github.com/sailmerge/sailmerge/pkg/review"
	"github.com/sailmerge/sailmerge/pkg/store"
)

const totalSteps = 10

// Reporter receives step-level telemetry. pkg/metrics.Collectors
// implements it; nil is replaced with a no-op implementation.
type Reporter interface {
	ObserveStep(step string, d time.Duration)
	IncStepFailure(step string)
	SetActiveSessions(n float64)
	IncObjects(objectType string, n int)
	IncClassification(classification string, n int)
}

type nopReporter struct{}

func (nopReporter) ObserveStep(string, time.Duration) {}
func (nopReporter) IncStepFailure(string)             {}
func (nopReporter) SetActiveSessions(float64)         {}
func (nopReporter) IncObjects(string, int)            {}
func (nopReporter) IncClassification(string, int)     {}

// Config holds the orchestrator's external knobs (spec.md §6).
type Config struct {
	// MaxPackageSizeBytes caps each input archive. Zero means
	// appzip.DefaultMaxSizeBytes.
	MaxPackageSizeBytes int64
	// StepTimeout bounds each of the ten steps. Zero means 5 minutes
	// (spec.md §5).
	StepTimeout time.Duration
}

func (c Config) stepTimeout() time.Duration {
	if c.StepTimeout <= 0 {
		return 5 * time.Minute
	}
	return c.StepTimeout
}

// Inputs names the three input package paths (spec.md §4.1).
type Inputs struct {
	BasePath       string
	CustomizedPath string
	NewVendorPath  string
}

// Orchestrator wires the Reader, Parser, SAIL Formatter, Delta Engine, Set
// Classifier, Dependency Analyzer, Review Ordering, and Session Store into
// the ten-step pipeline.
type Orchestrator struct {
	store    store.Interface
	registry *objectmodel.Registry
	cfg      Config
	reporter Reporter
	logger   *slog.Logger
}

// New builds an Orchestrator. registry is the process-wide object registry
// (spec.md §3, §5): pass the same *objectmodel.Registry across every
// Orchestrator instance in a process so uuid identity is shared across
// sessions. reporter and logger may be nil.
func New(st store.Interface, registry *objectmodel.Registry, cfg Config, reporter Reporter, logger *slog.Logger) *Orchestrator {
	if reporter == nil {
		reporter = nopReporter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{store: st, registry: registry, cfg: cfg, reporter: reporter, logger: logger}
}

// Run executes the ten-step pipeline against in, returning the session
// once it has been persisted (status ready), or the error that failed it.
// A failed session is left in status failed with its error recorded; per
// spec.md §4.12, retrying a failed session is not supported — callers
// create a new one.
func (o *Orchestrator) Run(ctx context.Context, in Inputs) (*store.Session, error) {
	o.reporter.SetActiveSessions(1)
	defer o.reporter.SetActiveSessions(0)

	sess, err := runStep(o, ctx, 1, "create_session", func(ctx context.Context) (*store.Session, error) {
		return o.store.CreateSession(ctx)
	})
	if err != nil {
		return nil, err
	}

	log := o.logger.With("session_id", sess.ID, "reference_id", sess.ReferenceID)

	indices, err := o.readAndParse(ctx, in, log)
	if err != nil {
		o.fail(sess, "read_parse_populate_lookup", err, log)
		return nil, err
	}

	baseIdx := indices[core.RoleBase]
	customizedIdx := indices[core.RoleCustomized]
	newVendorIdx := indices[core.RoleNewVendor]

	_, err = runStep(o, ctx, 5, "format_sail", func(ctx context.Context) (struct{}, error) {
		o.formatSAIL(baseIdx)
		o.formatSAIL(customizedIdx)
		o.formatSAIL(newVendorIdx)
		return struct{}{}, nil
	})
	if err != nil {
		o.fail(sess, "format_sail", err, log)
		return nil, err
	}

	deltas, err := o.compareDeltas(ctx, baseIdx, customizedIdx, newVendorIdx, log)
	if err != nil {
		o.fail(sess, "compare", err, log)
		return nil, err
	}

	changes, err := runStep(o, ctx, 8, "classify", func(ctx context.Context) ([]classify.Change, error) {
		return classify.Classify(deltas.vendor, deltas.customer, customizedIdx, newVendorIdx)
	})
	if err != nil {
		o.fail(sess, "classify", err, log)
		return nil, err
	}
	for _, c := range changes {
		o.reporter.IncClassification(string(c.Classification), 1)
	}

	ordered, err := runStep(o, ctx, 9, "order", func(ctx context.Context) ([]review.OrderedChange, error) {
		nodes, adjacency := o.buildDependencyGraph(changes, baseIdx, customizedIdx, newVendorIdx)
		depOrder := depgraph.TopoSort(nodes, adjacency, log)
		return review.Order(changes, depOrder), nil
	})
	if err != nil {
		o.fail(sess, "order", err, log)
		return nil, err
	}

	_, err = runStep(o, ctx, 10, "persist", func(ctx context.Context) (struct{}, error) {
		baseVersions, err := collectVersions(core.RoleBase, baseIdx)
		if err != nil {
			return struct{}{}, err
		}
		customizedVersions, err := collectVersions(core.RoleCustomized, customizedIdx)
		if err != nil {
			return struct{}{}, err
		}
		newVendorVersions, err := collectVersions(core.RoleNewVendor, newVendorIdx)
		if err != nil {
			return struct{}{}, err
		}
		versions := append(baseVersions, customizedVersions...)
		versions = append(versions, newVendorVersions...)

		return struct{}{}, o.store.PersistAnalysis(ctx, sess.ID, store.AnalysisResult{
			Packages: []store.PackageInput{
				{Role: core.RoleBase, Filename: in.BasePath},
				{Role: core.RoleCustomized, Filename: in.CustomizedPath},
				{Role: core.RoleNewVendor, Filename: in.NewVendorPath},
			},
			Objects:       o.registry.All(),
			Versions:      versions,
			VendorDelta:   deltas.vendor,
			CustomerDelta: deltas.customer,
			Changes:       ordered,
		})
	})
	if err != nil {
		o.fail(sess, "persist", err, log)
		return nil, err
	}

	log.Info("analysis complete", "total_steps", totalSteps, "changes", len(changes))
	return o.store.GetSessionByID(ctx, sess.ID)
}

// deltaPair bundles the vendor (A→C) and customer (A→B) delta results,
// computed concurrently by compareDeltas.
type deltaPair struct {
	vendor   []compare.Record
	customer []compare.Record
}

// runStep checks cooperative cancellation, derives a per-step timeout from
// ctx, runs fn, and reports its duration/failure. Generic over fn's result
// type so every step — whatever it produces — shares one timeout,
// cancellation, and logging path.
func runStep[T any](o *Orchestrator, ctx context.Context, index int, name string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, core.ErrCancelled
	}

	stepCtx, cancel := context.WithTimeout(ctx, o.cfg.stepTimeout())
	defer cancel()

	start := time.Now()
	result, err := fn(stepCtx)
	elapsed := time.Since(start)
	o.reporter.ObserveStep(name, elapsed)

	if err != nil {
		o.reporter.IncStepFailure(name)
		if stepCtx.Err() != nil && ctx.Err() == nil {
			err = core.ErrCancelled
		}
		return zero, core.NewStepError(name, err)
	}

	o.logger.Info("step complete", "step_index", index, "total_steps", totalSteps, "step", name, "elapsed_ms", elapsed.Milliseconds())
	return result, nil
}

// fail transitions sess to failed and logs the terminal error. It uses a
// fresh background context, not ctx, so the store write recording the
// failure isn't itself doomed by the deadline or cancellation that caused
// the failure.
func (o *Orchestrator) fail(sess *store.Session, step string, cause error, log *slog.Logger) {
	log.Error("analysis failed", "step", step, "error", cause)
	if markErr := o.store.MarkFailed(context.Background(), sess.ID, cause); markErr != nil {
		log.Error("failed to record session failure", "error", markErr)
	}
}
