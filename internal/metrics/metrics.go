// Package metrics defines the Prometheus collectors for the ingestion
// pipeline and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service. A nil *Metrics
// is valid and records nothing, so tests can run the pipeline unregistered.
type Metrics struct {
	IngestRunsTotal     *prometheus.CounterVec
	ChunksEmbeddedTotal prometheus.Counter
	ChunksSkippedTotal  *prometheus.CounterVec
	EmbedFailuresTotal  *prometheus.CounterVec
	EmbedLatency        prometheus.Histogram
	FlushesTotal        *prometheus.CounterVec
}

// New creates all collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IngestRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_runs_total",
				Help: "Ingestion runs by outcome (completed, partial, failed, conflict).",
			},
			[]string{"outcome"},
		),
		ChunksEmbeddedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_chunks_embedded_total",
				Help: "Chunks successfully embedded and queued for storage.",
			},
		),
		ChunksSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_chunks_skipped_total",
				Help: "Chunks skipped before or after embedding, by reason (too_large, too_small, embed_failed).",
			},
			[]string{"reason"},
		),
		EmbedFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_embed_failures_total",
				Help: "Embedding provider failures by error kind.",
			},
			[]string{"kind"},
		),
		EmbedLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_embed_latency_seconds",
				Help:    "Latency of a single embedding call including retries.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		FlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_flushes_total",
				Help: "Chunk batch writes by status (ok, error).",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.IngestRunsTotal,
		m.ChunksEmbeddedTotal,
		m.ChunksSkippedTotal,
		m.EmbedFailuresTotal,
		m.EmbedLatency,
		m.FlushesTotal,
	)
	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) RunFinished(outcome string) {
	if m == nil {
		return
	}
	m.IngestRunsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ChunkEmbedded(took time.Duration) {
	if m == nil {
		return
	}
	m.ChunksEmbeddedTotal.Inc()
	m.EmbedLatency.Observe(took.Seconds())
}

func (m *Metrics) ChunkSkipped(reason string) {
	if m == nil {
		return
	}
	m.ChunksSkippedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) EmbedFailed(kind string) {
	if m == nil {
		return
	}
	m.EmbedFailuresTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) FlushDone(ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.FlushesTotal.WithLabelValues(status).Inc()
}
