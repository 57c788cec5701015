// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "interview_scorer"

// Metrics holds all Prometheus metrics for the service. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	// Chain metrics
	StageAttempts *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	Outcomes      *prometheus.CounterVec

	// Session metrics
	QuestionsServed   *prometheus.CounterVec
	SessionsExhausted *prometheus.CounterVec
	PersistFailures   prometheus.Counter

	// HTTP metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		StageAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_attempts_total",
			Help:      "Total number of fallback chain stage attempts",
		}, []string{"chain", "stage", "result"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of fallback chain stage attempts in seconds",
			Buckets:   []float64{.001, .01, .1, .5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"chain", "stage"}),
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Total number of chain outcomes by producing tier",
		}, []string{"chain", "tier"}),

		QuestionsServed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "questions_served_total",
			Help:      "Total number of questions served",
		}, []string{"domain"}),
		SessionsExhausted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_exhausted_total",
			Help:      "Total number of next-question requests on exhausted sessions",
		}, []string{"domain"}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_persist_failures_total",
			Help:      "Total number of per-question results that could not be stored",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "path"}),
	}
}

// ObserveStage records one stage attempt.
func (m *Metrics) ObserveStage(chain, stage string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.StageAttempts.WithLabelValues(chain, stage, result).Inc()
	m.StageDuration.WithLabelValues(chain, stage).Observe(elapsed.Seconds())
}

// ObserveOutcome records the tier that produced a chain outcome.
func (m *Metrics) ObserveOutcome(chain, tier string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(chain, tier).Inc()
}

func (m *Metrics) QuestionServed(domain string) {
	if m == nil {
		return
	}
	m.QuestionsServed.WithLabelValues(domain).Inc()
}

func (m *Metrics) SessionExhausted(domain string) {
	if m == nil {
		return
	}
	m.SessionsExhausted.WithLabelValues(domain).Inc()
}

func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

// ObserveHTTP records one handled request.
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
