package observability

import (
	"time"

	"github.com/mr1hm/go-disaster-proximity/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "disaster_proximity"

// Metrics holds the Prometheus collectors for search, capability and
// geocoding. It implements proximity.Recorder.
type Metrics struct {
	SearchRequests   *prometheus.CounterVec   // labels: kind, backend
	SearchDuration   *prometheus.HistogramVec // labels: backend
	SearchFallbacks  *prometheus.CounterVec   // labels: kind
	SearchErrors     *prometheus.CounterVec   // labels: class
	IndexedAvailable prometheus.Gauge

	// Geocoding metrics.
	GeocodeCache    *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeRequests *prometheus.CounterVec // labels: outcome={success,error,empty}

	BenchmarkDuration *prometheus.HistogramVec // labels: backend

	IngestedDisasters *prometheus.CounterVec // labels: source
}

func newCollectors() *Metrics {
	return &Metrics{
		SearchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Successful proximity searches by entity kind and backend used.",
		}, []string{"kind", "backend"}),
		SearchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Proximity search duration by backend.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"backend"}),
		SearchFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_fallbacks_total",
			Help:      "Searches that switched from the indexed backend to the scan backend.",
		}, []string{"kind"}),
		SearchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_errors_total",
			Help:      "Failed proximity searches by error class.",
		}, []string{"class"}),
		IndexedAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexed_backend_available",
			Help:      "1 when the spatial extension passed its last probe, 0 otherwise.",
		}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by outcome.",
		}, []string{"outcome"}),
		BenchmarkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "benchmark_duration_seconds",
			Help:      "Benchmark harness timings by path.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"backend"}),
		IngestedDisasters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_disasters_total",
			Help:      "New disasters stored by source.",
		}, []string{"source"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SearchRequests,
		m.SearchDuration,
		m.SearchFallbacks,
		m.SearchErrors,
		m.IndexedAvailable,
		m.GeocodeCache,
		m.GeocodeRequests,
		m.BenchmarkDuration,
		m.IngestedDisasters,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newCollectors()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics on a fresh registry so tests can build
// as many as they like.
func NewMetricsForTesting() *Metrics {
	m := newCollectors()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}

func (m *Metrics) ObserveSearch(kind models.EntityKind, backend string, d time.Duration) {
	if m == nil {
		return
	}
	m.SearchRequests.WithLabelValues(string(kind), backend).Inc()
	m.SearchDuration.WithLabelValues(backend).Observe(d.Seconds())
}

func (m *Metrics) IncFallback(kind models.EntityKind) {
	if m == nil {
		return
	}
	m.SearchFallbacks.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) IncSearchError(class string) {
	if m == nil {
		return
	}
	m.SearchErrors.WithLabelValues(class).Inc()
}

func (m *Metrics) SetIndexedAvailable(available bool) {
	if m == nil {
		return
	}
	if available {
		m.IndexedAvailable.Set(1)
	} else {
		m.IndexedAvailable.Set(0)
	}
}

func (m *Metrics) ObserveBenchmark(backend string, d time.Duration) {
	if m == nil {
		return
	}
	m.BenchmarkDuration.WithLabelValues(backend).Observe(d.Seconds())
}

func (m *Metrics) IncGeocodeCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.GeocodeCache.WithLabelValues(result).Inc()
}

func (m *Metrics) IncGeocodeRequest(outcome string) {
	if m == nil {
		return
	}
	m.GeocodeRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncIngested(source string) {
	if m == nil {
		return
	}
	m.IngestedDisasters.WithLabelValues(source).Inc()
}
