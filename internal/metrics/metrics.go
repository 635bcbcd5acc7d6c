// Package metrics exposes interview telemetry to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "techtree"

// Metrics holds the interview collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	turnsTotal          *prometheus.CounterVec
	turnDuration        *prometheus.HistogramVec
	fallbacksTotal      *prometheus.CounterVec
	collaboratorErrors  *prometheus.CounterVec
	questionsDelivered  prometheus.Counter
	sessionsCompleted   prometheus.Counter
	transcriptDropped   prometheus.Counter
	rateLimitedRequests prometheus.Counter
}

// New creates and registers the collectors. Process and Go runtime
// collectors are included.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Total number of interview turns by routed intent",
			},
			[]string{"intent"},
		),
		turnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_duration_seconds",
				Help:      "Duration of interview turns in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"intent"},
		),
		fallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallbacks_total",
				Help:      "Total number of fallback paths taken",
			},
			[]string{"kind"}, // kind: router, no_question
		),
		collaboratorErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collaborator_failures_total",
				Help:      "Total number of failed collaborator calls",
			},
			[]string{"collaborator"},
		),
		questionsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "questions_delivered_total",
			Help:      "Total number of questions asked",
		}),
		sessionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Total number of sessions that reached a report",
		}),
		transcriptDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_events_dropped_total",
			Help:      "Total number of transcript events dropped on a full queue",
		}),
		rateLimitedRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Total number of requests rejected by the per-user limiter",
		}),
	}

	m.registry.MustRegister(
		m.turnsTotal,
		m.turnDuration,
		m.fallbacksTotal,
		m.collaboratorErrors,
		m.questionsDelivered,
		m.sessionsCompleted,
		m.transcriptDropped,
		m.rateLimitedRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveTurn records one completed turn.
func (m *Metrics) ObserveTurn(intent string, d time.Duration) {
	m.turnsTotal.WithLabelValues(intent).Inc()
	m.turnDuration.WithLabelValues(intent).Observe(d.Seconds())
}

func (m *Metrics) IncFallback(kind string) {
	m.fallbacksTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncCollaboratorFailure(collaborator string) {
	m.collaboratorErrors.WithLabelValues(collaborator).Inc()
}

func (m *Metrics) IncQuestionsDelivered() { m.questionsDelivered.Inc() }

func (m *Metrics) IncSessionsCompleted() { m.sessionsCompleted.Inc() }

// IncTranscriptDropped counts a transcript event lost to back-pressure.
func (m *Metrics) IncTranscriptDropped() { m.transcriptDropped.Inc() }

// IncRateLimited counts a request rejected by the rate limiter.
func (m *Metrics) IncRateLimited() { m.rateLimitedRequests.Inc() }
