// Package metrics exposes Prometheus collectors for documentation jobs,
// LLM traffic, and retrieval behavior.
//
// All collectors live on a dedicated registry so the /metrics exposition
// carries docweave's own series plus the standard Go and process
// collectors and nothing else. Instrumentation attaches at the seams the
// rest of the code already has: the wrappers in this package decorate the
// LLM client, the embedder, and the chapter writer, and Metrics itself is
// a pipeline.ProgressSink that counts terminal job events.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docweave/docweave/internal/checkpoint"
	"github.com/docweave/docweave/internal/pipeline"
)

// Outcome labels for the call counters.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Kind labels for the LLM call counter.
const (
	KindGenerate = "generate"
	KindComplete = "complete"
	KindStream   = "stream"
)

var _ pipeline.ProgressSink = (*Metrics)(nil)

// Metrics holds the process collectors behind /metrics.
type Metrics struct {
	registry *prometheus.Registry

	jobsStarted       *prometheus.CounterVec
	jobsCompleted     prometheus.Counter
	jobsFailed        prometheus.Counter
	chaptersGenerated prometheus.Counter
	llmCalls          *prometheus.CounterVec
	embeddingCalls    *prometheus.CounterVec
	retrievalTiers    *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		jobsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docweave",
			Name:      "jobs_started_total",
			Help:      "Documentation jobs submitted, by corpus source type.",
		}, []string{"type"}),
		jobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docweave",
			Name:      "jobs_completed_total",
			Help:      "Documentation jobs that finished successfully.",
		}),
		jobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docweave",
			Name:      "jobs_failed_total",
			Help:      "Documentation jobs that ended in a fatal error.",
		}),
		chaptersGenerated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docweave",
			Name:      "chapters_generated_total",
			Help:      "Chapters written across all jobs.",
		}),
		llmCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docweave",
			Name:      "llm_calls_total",
			Help:      "Chat model calls, by call kind and outcome.",
		}, []string{"kind", "outcome"}),
		embeddingCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docweave",
			Name:      "embedding_calls_total",
			Help:      "Embedding endpoint calls, by outcome.",
		}, []string{"outcome"}),
		retrievalTiers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docweave",
			Name:      "retrieval_tier_total",
			Help:      "Retrievals satisfied per threshold tier.",
		}, []string{"tier"}),
	}
}

// Handler returns the exposition handler for /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// JobStarted records a submitted job by corpus source type.
func (m *Metrics) JobStarted(sourceType string) {
	m.jobsStarted.WithLabelValues(sourceType).Inc()
}

// ChapterGenerated records one successfully written chapter.
func (m *Metrics) ChapterGenerated() {
	m.chaptersGenerated.Inc()
}

// LLMCall records a chat model call and its outcome.
func (m *Metrics) LLMCall(kind string, err error) {
	m.llmCalls.WithLabelValues(kind, outcome(err)).Inc()
}

// EmbeddingCall records an embedding call and its outcome.
func (m *Metrics) EmbeddingCall(err error) {
	m.embeddingCalls.WithLabelValues(outcome(err)).Inc()
}

// RetrievalTier records which threshold tier satisfied a retrieval. The
// signature matches rag.Config.OnRetrieval.
func (m *Metrics) RetrievalTier(tier string) {
	m.retrievalTiers.WithLabelValues(tier).Inc()
}

// Publish implements pipeline.ProgressSink. The runner publishes the
// terminal statuses exactly once per job, so counting them here needs no
// deduplication.
func (m *Metrics) Publish(e pipeline.Event) {
	switch e.Status {
	case checkpoint.StatusCompleted:
		m.jobsCompleted.Inc()
	case checkpoint.StatusFailed:
		m.jobsFailed.Inc()
	}
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
