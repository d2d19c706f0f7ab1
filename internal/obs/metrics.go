// Package obs holds process-wide observability: Prometheus metrics and the
// fiber middleware feeding them.
package obs

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	transfersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transfers_submitted_total",
			Help: "Transfers submitted to the ledger engine.",
		},
		[]string{"outcome"},
	)
)

// Init registers the metrics in the default registry. Call once at startup.
func Init() {
	prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration, transfersSubmitted)
}

// Handler serves the /metrics scrape endpoint.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// Instrument measures request counts, latency and in-flight load. Paths are
// labeled by route pattern so cardinality stays bounded.
func Instrument() fiber.Handler {
	return func(c *fiber.Ctx) error {
		httpInFlight.Inc()
		start := time.Now()

		err := c.Next()

		httpInFlight.Dec()
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		path := c.Route().Path
		labels := []string{c.Method(), path, strconv.Itoa(status)}
		httpRequestsTotal.WithLabelValues(labels...).Inc()
		httpRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		return err
	}
}

// CountTransfers records submitted transfer outcomes.
func CountTransfers(outcome string, n int) {
	transfersSubmitted.WithLabelValues(outcome).Add(float64(n))
}
