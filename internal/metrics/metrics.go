package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dunlin_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dunlin_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	schedulerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dunlin_scheduler_runs_total",
			Help: "Scheduler runs by outcome",
		},
		[]string{"outcome"},
	)

	schedulerRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dunlin_scheduler_run_duration_seconds",
			Help:    "Wall time of one full scheduler run",
			Buckets: []float64{.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	sendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dunlin_sends_total",
			Help: "Transport send attempts by channel and status",
		},
		[]string{"channel", "status"},
	)

	remindersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dunlin_reminders_total",
			Help: "Invoice reminder outcomes (sent, failed, deduped)",
		},
		[]string{"outcome"},
	)

	statementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dunlin_statements_total",
			Help: "Monthly statement outcomes (sent, failed, deduped)",
		},
		[]string{"outcome"},
	)

	smsCreditsConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dunlin_sms_credits_consumed_total",
			Help: "SMS credits consumed by successful sends",
		},
	)

	breakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dunlin_breaker_rejections_total",
			Help: "Transport calls rejected by an open circuit breaker",
		},
		[]string{"transport"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRun records the outcome and duration of one scheduler run.
func RecordRun(outcome string, duration time.Duration) {
	schedulerRuns.WithLabelValues(outcome).Inc()
	schedulerRunDuration.Observe(duration.Seconds())
}

// RecordSend records one transport send attempt.
func RecordSend(channel, status string) {
	sendsTotal.WithLabelValues(channel, status).Inc()
}

// RecordReminder records a reminder scan outcome for one invoice.
func RecordReminder(outcome string) {
	remindersTotal.WithLabelValues(outcome).Inc()
}

// RecordStatement records a statement scan outcome for one client.
func RecordStatement(outcome string) {
	statementsTotal.WithLabelValues(outcome).Inc()
}

// RecordCreditsConsumed adds to the consumed SMS credit counter.
func RecordCreditsConsumed(credits int) {
	smsCreditsConsumed.Add(float64(credits))
}

// RecordBreakerRejection records a fail-fast rejection by transport name.
func RecordBreakerRejection(transport string) {
	breakerRejections.WithLabelValues(transport).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
