package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OutcomesTotal counts orchestrator outcomes by kind and entry point.
	OutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitchsched_outcomes_total",
		Help: "Booking orchestrator outcomes by kind.",
	}, []string{"operation", "kind"})

	// SlotLookupsTotal counts cache reads by whether they were served fresh.
	SlotLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitchsched_slot_lookups_total",
		Help: "Slot cache reads by category and result (fresh, refreshed, stale, empty).",
	}, []string{"category", "result"})

	// SlotRefreshTotal counts provider fetches.
	SlotRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitchsched_slot_refresh_total",
		Help: "Slot provider fetches by category and result.",
	}, []string{"category", "result"})

	// ExecutorDuration tracks how long physical bookings take.
	ExecutorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pitchsched_executor_duration_seconds",
		Help:    "Duration of booking executor calls.",
		Buckets: []float64{1, 5, 10, 20, 30, 60, 120, 300},
	}, []string{"category", "result"})

	// HTTPRequestsTotal counts operator API requests by route pattern and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitchsched_http_requests_total",
		Help: "Operator API requests by method, route and status code.",
	}, []string{"method", "route", "status"})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
