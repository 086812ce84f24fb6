package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recovery_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_http_errors_total",
			Help: "HTTP errors by code",
		},
		[]string{"method", "path", "code"},
	)

	messagesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_messages_appended_total",
			Help: "Messages accepted on recovery cases",
		},
		[]string{"role"},
	)

	appendRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_append_rejected_total",
			Help: "Append attempts rejected, by error code",
		},
		[]string{"role", "code"},
	)

	versionConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recovery_version_conflicts_total",
			Help: "Optimistic concurrency conflicts on case writes",
		},
	)

	notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_notifications_total",
			Help: "Notification attempts by recipient and outcome",
		},
		[]string{"recipient", "outcome"},
	)

	casesOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recovery_cases_opened_total",
			Help: "Recovery cases opened from NPS responses",
		},
	)

	npsResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_nps_responses_total",
			Help: "NPS responses by category",
		},
		[]string{"category"},
	)
)

// Metrics records Prometheus series. A nil *Metrics is a no-op.
type Metrics struct{}

// NewMetrics returns the recorder.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordRequest observes one HTTP request.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	s := strconv.Itoa(status)
	requestsTotal.WithLabelValues(method, path, s).Inc()
	requestDuration.WithLabelValues(method, path, s).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	errorsTotal.WithLabelValues(method, path, code).Inc()
}

// MessageAppended counts an accepted message.
func (m *Metrics) MessageAppended(role string) {
	if m == nil {
		return
	}
	messagesAppended.WithLabelValues(role).Inc()
}

// AppendRejected counts a rejected append.
func (m *Metrics) AppendRejected(role, code string) {
	if m == nil {
		return
	}
	appendRejected.WithLabelValues(role, code).Inc()
}

// VersionConflict counts a lost compare-and-swap.
func (m *Metrics) VersionConflict() {
	if m == nil {
		return
	}
	versionConflicts.Inc()
}

// Notification counts a delivery attempt. outcome is sent, failed or skipped.
func (m *Metrics) Notification(recipient, outcome string) {
	if m == nil {
		return
	}
	notifications.WithLabelValues(recipient, outcome).Inc()
}

// CaseOpened counts a case created from an NPS response.
func (m *Metrics) CaseOpened() {
	if m == nil {
		return
	}
	casesOpened.Inc()
}

// NPSResponse counts a survey submission.
func (m *Metrics) NPSResponse(category string) {
	if m == nil {
		return
	}
	npsResponses.WithLabelValues(category).Inc()
}
