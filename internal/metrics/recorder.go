// Package metrics exposes pipeline and shadow-mode measurements to Prometheus.
// Every Recorder method is safe on a nil receiver so callers may leave
// metrics unconfigured.
package metrics

import (
	"net/http"
	"time"

	"github.com/kiranshivaraju/contractsentinel/pkg/models"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline stages observed by ObserveStage.
const (
	StageFetch   = "fetch"
	StageExtract = "extract"
	StageRedact  = "redact"
	StageAnalyze = "analyze"
	StagePersist = "persist"
)

// Recorder holds the registered collectors.
type Recorder struct {
	stageDuration     *prom.HistogramVec
	jobOutcomes       *prom.CounterVec
	redactions        prom.Counter
	shadowComparisons *prom.CounterVec
	shadowLatency     prom.Histogram
	queueMessages     *prom.CounterVec
	httpPanics        *prom.CounterVec
}

// NewRecorder creates the collectors and registers them on reg.
// A nil reg gets a fresh private registry.
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "contractsentinel",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage", "result"}),
		jobOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "contractsentinel",
			Name:      "job_outcomes_total",
			Help:      "Jobs settled by final status and failure kind",
		}, []string{"status", "error_kind"}),
		redactions: prom.NewCounter(prom.CounterOpts{
			Namespace: "contractsentinel",
			Name:      "redactions_total",
			Help:      "Sensitive spans replaced with tokens",
		}),
		shadowComparisons: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "contractsentinel",
			Name:      "shadow_comparisons_total",
			Help:      "Shadow model comparisons by agreement",
		}, []string{"primary_model", "shadow_model", "agreement"}),
		shadowLatency: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "contractsentinel",
			Name:      "shadow_latency_delta_seconds",
			Help:      "Primary latency minus shadow latency",
			Buckets:   []float64{-30, -10, -5, -1, -0.5, 0, 0.5, 1, 5, 10, 30},
		}),
		queueMessages: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "contractsentinel",
			Name:      "queue_messages_total",
			Help:      "Inbound queue messages by disposition",
		}, []string{"disposition"}),
		httpPanics: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "contractsentinel",
			Name:      "http_panics_total",
			Help:      "API handler panics recovered, by route pattern",
		}, []string{"route"}),
	}
	reg.MustRegister(r.stageDuration, r.jobOutcomes, r.redactions, r.shadowComparisons, r.shadowLatency, r.queueMessages, r.httpPanics)
	return r
}

func (r *Recorder) ObserveStage(stage string, d time.Duration, err error) {
	if r == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failed"
	}
	r.stageDuration.WithLabelValues(stage, result).Observe(d.Seconds())
}

// IncJobOutcome counts a settled job. errorKind is empty for successes.
func (r *Recorder) IncJobOutcome(status models.JobStatus, errorKind string) {
	if r == nil {
		return
	}
	r.jobOutcomes.WithLabelValues(string(status), errorKind).Inc()
}

func (r *Recorder) AddRedactions(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.redactions.Add(float64(n))
}

// RecordShadowComparison implements ai.ShadowSink.
func (r *Recorder) RecordShadowComparison(c models.ShadowComparison) {
	if r == nil {
		return
	}
	agreement := "false"
	if c.Agreement {
		agreement = "true"
	}
	r.shadowComparisons.WithLabelValues(c.PrimaryModel, c.ShadowModel, agreement).Inc()
	r.shadowLatency.Observe(float64(c.LatencyDeltaMs) / 1000)
}

func (r *Recorder) IncQueueMessage(disposition string) {
	if r == nil {
		return
	}
	r.queueMessages.WithLabelValues(disposition).Inc()
}

// IncHTTPPanic implements middleware.PanicCounter.
func (r *Recorder) IncHTTPPanic(route string) {
	if r == nil {
		return
	}
	r.httpPanics.WithLabelValues(route).Inc()
}

// Handler serves the metrics gathered by reg.
func Handler(reg *prom.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
