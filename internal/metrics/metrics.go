package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/newthinker/nisab/internal/core"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Pricing metrics
	tierHits            *prometheus.CounterVec
	providerAttempts    *prometheus.CounterVec
	providerDuration    *prometheus.HistogramVec
	remoteWriteFailures *prometheus.CounterVec
	syncItems           *prometheus.CounterVec
	syncRuns            *prometheus.CounterVec
	syncDuration        prometheus.Histogram
	jobsActive          *prometheus.GaugeVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	r.tierHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nisab_snapshot_lookups_total",
			Help: "Snapshot lookups by the tier that answered",
		},
		[]string{"data_type", "tier"},
	)
	r.providerAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nisab_provider_attempts_total",
			Help: "Upstream provider attempts by outcome",
		},
		[]string{"provider", "data_type", "outcome"},
	)
	r.providerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nisab_provider_duration_seconds",
			Help:    "Upstream provider call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider"},
	)
	r.remoteWriteFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nisab_remote_write_failures_total",
			Help: "Best-effort remote store writes that failed",
		},
		[]string{"data_type"},
	)
	r.syncItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nisab_sync_items_total",
			Help: "Sync items by final state",
		},
		[]string{"data_type", "state"},
	)
	r.syncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nisab_sync_runs_total",
			Help: "Completed sync runs",
		},
		[]string{"kind"},
	)
	r.syncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nisab_sync_duration_seconds",
			Help:    "Sync run duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 900},
		},
	)
	r.jobsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nisab_jobs_active",
			Help: "Number of active jobs",
		},
		[]string{"type"},
	)

	reg.MustRegister(r.tierHits)
	reg.MustRegister(r.providerAttempts)
	reg.MustRegister(r.providerDuration)
	reg.MustRegister(r.remoteWriteFailures)
	reg.MustRegister(r.syncItems)
	reg.MustRegister(r.syncRuns)
	reg.MustRegister(r.syncDuration)
	reg.MustRegister(r.jobsActive)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordTierHit counts a lookup answered by tier.
func (r *Registry) RecordTierHit(dt core.DataType, tier core.SourceTier) {
	r.tierHits.WithLabelValues(string(dt), string(tier)).Inc()
}

// ObserveProviderAttempt records one adapter call. It satisfies
// provider.Observer.
func (r *Registry) ObserveProviderAttempt(providerID string, dt core.DataType, outcome string, seconds float64) {
	r.providerAttempts.WithLabelValues(providerID, string(dt), outcome).Inc()
	r.providerDuration.WithLabelValues(providerID).Observe(seconds)
}

// RecordRemoteWriteFailure counts a swallowed remote write error.
func (r *Registry) RecordRemoteWriteFailure(dt core.DataType) {
	r.remoteWriteFailures.WithLabelValues(string(dt)).Inc()
}

// RecordSyncItem counts one finished sync item.
func (r *Registry) RecordSyncItem(dt core.DataType, state string) {
	r.syncItems.WithLabelValues(string(dt), state).Inc()
}

// RecordSyncRun records a completed sync run. kind is "sync", "resync" or "mirror".
func (r *Registry) RecordSyncRun(kind string, duration float64) {
	r.syncRuns.WithLabelValues(kind).Inc()
	r.syncDuration.Observe(duration)
}

// SetJobsActive sets the number of active jobs of a type.
func (r *Registry) SetJobsActive(jobType string, count int) {
	r.jobsActive.WithLabelValues(jobType).Set(float64(count))
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
