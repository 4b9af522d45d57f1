package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API.
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// OracleCalls counts sequencing-oracle invocations by outcome (ok, invalid, error).
	OracleCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "oracle_calls_total", Help: "Sequencing oracle calls by outcome."},
		[]string{"outcome"},
	)
	// TripsPlanned counts committed trips by strategy.
	TripsPlanned = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trips_planned_total", Help: "Committed trips by strategy."},
		[]string{"strategy"},
	)
	// OrdersUnassigned counts orders left unassigned at the end of a run.
	OrdersUnassigned = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "orders_unassigned_total", Help: "Orders left unassigned after allocation runs."},
	)
	// PlanDuration tracks end-to-end allocation run durations.
	PlanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "plan_duration_seconds", Help: "Allocation run duration in seconds.", Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}},
	)
	// RateLimited counts rejected limiter checks by operation.
	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "rate_limited_total", Help: "Requests rejected by the rate limiter."},
		[]string{"op"},
	)
)

// RegisterDefault registers collectors to the registry once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(OracleCalls)
		Registry.MustRegister(TripsPlanned)
		Registry.MustRegister(OrdersUnassigned)
		Registry.MustRegister(PlanDuration)
		Registry.MustRegister(RateLimited)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
