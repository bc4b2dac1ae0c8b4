package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts every outbound HTTP call the load generator makes to a
	// downstream service, labeled with the result status ("200", "404", "error", ...).
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadgen_requests_total",
			Help: "Total number of outbound requests by service, method and status",
		},
		[]string{"service", "method", "status"},
	)

	// RequestDuration observes the wall-clock time of each outbound HTTP call.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loadgen_request_duration_seconds",
			Help:    "Outbound request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method"},
	)

	// ActiveUsers is a labelless gauge so the control plane's scraper regex
	// always resolves to a single, unambiguous series.
	ActiveUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "loadgen_active_users",
			Help: "Number of virtual users currently running",
		},
	)

	// WebSocketConnections tracks live chat sockets, incremented on successful
	// dial and decremented on close.
	WebSocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "loadgen_websocket_connections",
			Help: "Number of open WebSocket connections to the chat service",
		},
	)
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(ActiveUsers)
	prometheus.MustRegister(WebSocketConnections)
}

// Handler returns the Prometheus HTTP handler for the exposition endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed time and observes it to a histogram.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer starting now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a labeled histogram vector.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
