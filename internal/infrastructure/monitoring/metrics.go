package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome and trigger label values recorded by the lifecycle controller.
const (
	OutcomeSuccess     = "success"
	OutcomeConflict    = "conflict"
	OutcomeNotFound    = "not_installed"
	OutcomeNotRunnable = "not_runnable"
	OutcomeCapability  = "capability_failure"
	OutcomeLaunch      = "launch_failure"
	OutcomeNotRunning  = "not_running"
	OutcomeStopFailed  = "stop_failure"

	TriggerRequest = "request"
	TriggerMonitor = "monitor"
)

// Exposure result label values recorded by the connection broker.
const (
	ExposureSent      = "sent"
	ExposureSwallowed = "swallowed"
	ExposureRejected  = "rejected"
)

// Metrics holds all Prometheus metrics. All record methods are safe to
// call on a nil receiver so components can run unmetered in tests.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Lifecycle metrics
	StartsTotal *prometheus.CounterVec
	StopsTotal  *prometheus.CounterVec
	AppRunning  prometheus.Gauge

	// Control metrics
	InvitationsTotal *prometheus.CounterVec

	// Exposure metrics
	ExposureBatches *prometheus.CounterVec

	// Catalog metrics
	InstalledApps prometheus.Gauge
	RunnableApps  prometheus.Gauge

	// Outbound client metrics
	OutboundCalls    *prometheus.CounterVec
	OutboundDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge

	// Snapshot for the health API
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds coarse request counters for the health API.
type Snapshot struct {
	TotalRequests int64 `json:"total_requests"`
	TotalErrors   int64 `json:"total_errors"`
}

// NewMetrics creates a metrics collector backed by its own registry, so
// repeated construction in tests never trips duplicate registration.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	start := time.Now()

	m := &Metrics{
		registry: registry,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rappd_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rappd_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		StartsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rappd_app_starts_total",
				Help: "Application start attempts by outcome",
			},
			[]string{"outcome"},
		),
		StopsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rappd_app_stops_total",
				Help: "Application stop attempts by outcome and trigger",
			},
			[]string{"outcome", "trigger"},
		),
		AppRunning: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rappd_app_running",
				Help: "Whether an application currently occupies the slot",
			},
		),

		InvitationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rappd_invitations_total",
				Help: "Invitation requests by result",
			},
			[]string{"result", "cancel"},
		),

		ExposureBatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rappd_exposure_batches_total",
				Help: "Connection exposure batches by kind and result",
			},
			[]string{"kind", "result"},
		),

		InstalledApps: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rappd_catalog_installed_apps",
				Help: "Number of installed applications",
			},
		),
		RunnableApps: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rappd_catalog_runnable_apps",
				Help: "Number of runnable applications",
			},
		),

		OutboundCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rappd_outbound_calls_total",
				Help: "Calls to external collaborators by status",
			},
			[]string{"target", "op", "status"},
		),
		OutboundDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rappd_outbound_call_duration_seconds",
				Help:    "External collaborator call duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"target", "op"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rappd_ws_connections",
				Help: "Number of active WebSocket feed subscribers",
			},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "rappd_uptime_seconds",
			Help: "Daemon uptime in seconds",
		},
		func() float64 { return time.Since(start).Seconds() },
	)

	return m
}

// Handler serves the exposition endpoint for this collector's registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if len(status) > 0 && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordStart records a start attempt outcome
func (m *Metrics) RecordStart(outcome string) {
	if m == nil {
		return
	}
	m.StartsTotal.WithLabelValues(outcome).Inc()
}

// RecordStop records a stop attempt outcome and what triggered it
func (m *Metrics) RecordStop(outcome, trigger string) {
	if m == nil {
		return
	}
	m.StopsTotal.WithLabelValues(outcome, trigger).Inc()
}

// SetRunning flags whether the application slot is occupied
func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.AppRunning.Set(1)
	} else {
		m.AppRunning.Set(0)
	}
}

// RecordInvitation records an invitation result
func (m *Metrics) RecordInvitation(granted, cancel bool) {
	if m == nil {
		return
	}
	result := "refused"
	if granted {
		result = "granted"
	}
	flag := "false"
	if cancel {
		flag = "true"
	}
	m.InvitationsTotal.WithLabelValues(result, flag).Inc()
}

// RecordExposure records the fate of one exposure batch
func (m *Metrics) RecordExposure(kind, result string) {
	if m == nil {
		return
	}
	m.ExposureBatches.WithLabelValues(kind, result).Inc()
}

// SetCatalogCounts updates the installed/runnable gauges
func (m *Metrics) SetCatalogCounts(installed, runnable int) {
	if m == nil {
		return
	}
	m.InstalledApps.Set(float64(installed))
	m.RunnableApps.Set(float64(runnable))
}

// SetWSConnections updates the feed subscriber gauge
func (m *Metrics) SetWSConnections(n int) {
	if m == nil {
		return
	}
	m.WSConnections.Set(float64(n))
}

// GetSnapshot returns a copy of the coarse request counters
func (m *Metrics) GetSnapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
