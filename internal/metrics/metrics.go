// Package metrics records decoding activity as Prometheus series and can dump
// them to a text file after a session.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/samcharles93/parlor/internal/inference"
)

const namespace = "parlor"

// Metrics implements inference.Observer on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	promptTokens      prometheus.Counter
	promptFlushes     prometheus.Counter
	generatedTokens   prometheus.Counter
	forwardPasses     *prometheus.CounterVec
	forwardTokens     *prometheus.CounterVec
	forwardDuration   *prometheus.HistogramVec
	generations       *prometheus.CounterVec
	generationSeconds prometheus.Histogram
}

var _ inference.Observer = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		promptTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prompt",
			Name:      "tokens_total",
			Help:      "Prompt tokens ingested after a conversation reset",
		}),
		promptFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prompt",
			Name:      "flushes_total",
			Help:      "Full batches flushed while ingesting prompts",
		}),
		generatedTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "tokens_total",
			Help:      "Tokens sampled across all generations, excluding end-of-sequence",
		}),
		forwardPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forward",
			Name:      "passes_total",
			Help:      "Forward passes submitted to the backend",
		}, []string{"phase"}),
		forwardTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forward",
			Name:      "tokens_total",
			Help:      "Batch entries decoded by forward passes",
		}, []string{"phase"}),
		forwardDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "forward",
			Name:      "duration_seconds",
			Help:      "Duration of forward passes in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"phase"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "completed_total",
			Help:      "Generations by outcome",
		}, []string{"outcome"}),
		generationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Wall time of each generation in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.reg.MustRegister(
		m.promptTokens,
		m.promptFlushes,
		m.generatedTokens,
		m.forwardPasses,
		m.forwardTokens,
		m.forwardDuration,
		m.generations,
		m.generationSeconds,
	)
	return m
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// WriteFile writes the current values in the text exposition format.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}

func (m *Metrics) PromptIngested(tokens, flushes int) {
	m.promptTokens.Add(float64(tokens))
	m.promptFlushes.Add(float64(flushes))
}

func (m *Metrics) ForwardPass(phase inference.Phase, tokens int, d time.Duration) {
	p := string(phase)
	m.forwardPasses.WithLabelValues(p).Inc()
	m.forwardTokens.WithLabelValues(p).Add(float64(tokens))
	m.forwardDuration.WithLabelValues(p).Observe(d.Seconds())
}

func (m *Metrics) GenerationDone(outcome inference.Outcome, tokens int, d time.Duration) {
	m.generatedTokens.Add(float64(tokens))
	m.generations.WithLabelValues(string(outcome)).Inc()
	m.generationSeconds.Observe(d.Seconds())
}
