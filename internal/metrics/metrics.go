// Package metrics holds the Prometheus collectors for the desk. All methods
// are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/replydesk/internal/engine"
)

type Metrics struct {
	registry *prometheus.Registry

	LLMCalls         *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	RetrievalResults *prometheus.CounterVec
	ImportJobs       *prometheus.CounterVec
	CatalogCache     *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
}

// New registers the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		LLMCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replydesk_llm_calls_total",
				Help: "Language-model calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "replydesk_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"stage"},
		),
		RetrievalResults: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replydesk_retrieval_results_total",
				Help: "Retrieved knowledge snippets by source",
			},
			[]string{"source"},
		),
		ImportJobs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replydesk_import_jobs_total",
				Help: "Catalog import jobs by outcome",
			},
			[]string{"outcome"},
		),
		CatalogCache: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replydesk_catalog_cache_total",
				Help: "Catalog cache lookups by result",
			},
			[]string{"result"},
		),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "replydesk_active_sessions",
			Help: "Open desk sessions",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage string, started time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

// CountRetrieval adds n snippets for source.
func (m *Metrics) CountRetrieval(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RetrievalResults.WithLabelValues(source).Add(float64(n))
}

// ImportJob counts an import job outcome (completed, retried, failed).
func (m *Metrics) ImportJob(outcome string) {
	if m == nil {
		return
	}
	m.ImportJobs.WithLabelValues(outcome).Inc()
}

// CacheLookup counts a catalog cache hit, miss or error.
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.CatalogCache.WithLabelValues(result).Inc()
}

// SessionOpened and SessionClosed track the active session gauge.
func (m *Metrics) SessionOpened() {
	if m != nil {
		m.ActiveSessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.ActiveSessions.Dec()
	}
}

// llmCallOutcome classifies a Chat error for the outcome label.
func llmCallOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, engine.ErrMissingAPIKey):
		return "missing_key"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

type instrumentedEngine struct {
	next engine.Engine
	m    *Metrics
}

// InstrumentEngine counts every Chat call by the operation label on its
// context and the call outcome.
func InstrumentEngine(e engine.Engine, m *Metrics) engine.Engine {
	if m == nil {
		return e
	}
	return &instrumentedEngine{next: e, m: m}
}

func (i *instrumentedEngine) Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error) {
	out, err := i.next.Chat(ctx, model, messages, jsonSchema)
	i.m.LLMCalls.WithLabelValues(engine.Operation(ctx), llmCallOutcome(err)).Inc()
	return out, err
}

func (i *instrumentedEngine) IsRunning(ctx context.Context) bool {
	return i.next.IsRunning(ctx)
}
