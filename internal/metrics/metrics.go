package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the engine.
	Registry = prometheus.NewRegistry()

	// RequestsIngested counts offers accepted into the queue by source (push, poll).
	RequestsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_requests_ingested_total", Help: "Delivery offers ingested into the queue by source."},
		[]string{"source"},
	)
	// RequestsDropped counts offers that never reached the queue by reason.
	RequestsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_requests_dropped_total", Help: "Delivery offers dropped before or after queueing."},
		[]string{"reason"}, // malformed, duplicate, expired, inactive
	)
	// IncomingRequests tracks the current queue depth.
	IncomingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "dispatch_incoming_requests", Help: "Current number of pending delivery offers."},
	)
	// BackendRequests counts calls to the dispatch backend by endpoint and result.
	BackendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "backend_requests_total", Help: "Dispatch backend calls by endpoint and result."},
		[]string{"endpoint", "result"},
	)
	// SocketRestarts counts offer-feed reconnect attempts.
	SocketRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "socket_restarts_total", Help: "Offer feed WebSocket reconnects."},
	)
	// LocationReports counts location pushes by result (ok, fallback, error).
	LocationReports = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "location_reports_total", Help: "Location reports by result."},
		[]string{"result"},
	)
)

// RegisterDefault registers collectors to the engine registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(RequestsIngested)
		Registry.MustRegister(RequestsDropped)
		Registry.MustRegister(IncomingRequests)
		Registry.MustRegister(BackendRequests)
		Registry.MustRegister(SocketRestarts)
		Registry.MustRegister(LocationReports)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
