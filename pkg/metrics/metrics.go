// Package metrics exposes the Prometheus collectors for an analysis run:
// per-step duration, active-session gauge, and object/classification
// counters (SPEC_FULL.md Domain Stack).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors bundles every metric the Orchestrator reports against,
// registered once at process startup (grounded on the pack's promhttp +
// client_golang pattern rather than the teacher's own OTel-only telemetry,
// since tarsy itself carries no metrics package).
type Collectors struct {
	StepDuration        *prometheus.HistogramVec
	ActiveSessions       prometheus.Gauge
	ObjectsProcessed    *prometheus.CounterVec
	ClassificationTotal *prometheus.CounterVec
	StepFailuresTotal   *prometheus.CounterVec
}

// New creates a Collectors bundle and registers it against reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sailmerge",
			Name:      "step_duration_seconds",
			Help:      "Duration of each orchestrator pipeline step.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sailmerge",
			Name:      "active_sessions",
			Help:      "Number of analysis sessions currently being processed by the orchestrator.",
		}),
		ObjectsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sailmerge",
			Name:      "objects_processed_total",
			Help:      "Objects parsed, by object type.",
		}, []string{"object_type"}),
		ClassificationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sailmerge",
			Name:      "classification_total",
			Help:      "Classified changes, by classification.",
		}, []string{"classification"}),
		StepFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sailmerge",
			Name:      "step_failures_total",
			Help:      "Orchestrator step failures, by step.",
		}, []string{"step"}),
	}
	reg.MustRegister(c.StepDuration, c.ActiveSessions, c.ObjectsProcessed, c.ClassificationTotal, c.StepFailuresTotal)
	return c
}

// ObserveStep records a step's wall-clock duration (pkg/orchestrator.Reporter).
func (c *Collectors) ObserveStep(step string, d time.Duration) {
	c.StepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// IncStepFailure records a step failure (pkg/orchestrator.Reporter).
func (c *Collectors) IncStepFailure(step string) {
	c.StepFailuresTotal.WithLabelValues(step).Inc()
}

// SetActiveSessions sets the in-flight session gauge (pkg/orchestrator.Reporter).
func (c *Collectors) SetActiveSessions(n float64) {
	c.ActiveSessions.Set(n)
}

// IncObjects adds to the parsed-object counter for objectType (pkg/orchestrator.Reporter).
func (c *Collectors) IncObjects(objectType string, n int) {
	c.ObjectsProcessed.WithLabelValues(objectType).Add(float64(n))
}

// IncClassification adds to the classification counter (pkg/orchestrator.Reporter).
func (c *Collectors) IncClassification(classification string, n int) {
	c.ClassificationTotal.WithLabelValues(classification).Add(float64(n))
}
