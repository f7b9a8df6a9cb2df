package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Request outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFatal   = "fatal"
)

// Resource actions recorded by the reconciler.
const (
	ActionPatched   = "patched"
	ActionDropped   = "dropped"
	ActionDeleted   = "deleted"
	ActionAutoReady = "auto_ready"
)

// Metrics provides Prometheus metrics for the function. A nil *Metrics and a
// disabled one record nothing.
type Metrics struct {
	config MetricsConfig

	// Request metrics
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	activeRequests  prometheus.Gauge

	// Error metrics
	fatalResults *prometheus.CounterVec

	// Reconcile metrics
	resources *prometheus.CounterVec

	// Loader metrics
	compiles      *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	invalidations prometheus.Counter
	cacheSize     prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of RunFunction requests by outcome",
			},
			[]string{"outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of RunFunction requests in seconds",
				Buckets:   buckets,
			},
			[]string{"outcome"},
		),
		activeRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_requests",
				Help:      "Number of RunFunction requests in flight",
			},
		),
		fatalResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fatal_results_total",
				Help:      "Total number of fatal results by error class",
			},
			[]string{"class"},
		),
		resources: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resources_total",
				Help:      "Composed resources touched by reconciliation by action",
			},
			[]string{"action"},
		),
		compiles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unit_compiles_total",
				Help:      "Total number of composition unit compilations by result",
			},
			[]string{"result"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unit_cache_lookups_total",
				Help:      "Total number of unit cache lookups by result",
			},
			[]string{"result"},
		),
		invalidations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unit_cache_invalidations_total",
				Help:      "Total number of unit cache entries invalidated",
			},
		),
		cacheSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "unit_cache_entries",
				Help:      "Number of units in the cache",
			},
		),
	}

	registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.activeRequests,
		m.fatalResults,
		m.resources,
		m.compiles,
		m.cacheLookups,
		m.invalidations,
		m.cacheSize,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m, nil
}

func (m *Metrics) enabled() bool { return m != nil && m.registry != nil }

// Request Metrics

// RecordRequestStarted marks a request in flight.
func (m *Metrics) RecordRequestStarted() {
	if !m.enabled() {
		return
	}
	m.activeRequests.Inc()
}

// RecordRequestCompleted records a completed request with its outcome and
// duration.
func (m *Metrics) RecordRequestCompleted(outcome string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
	m.requestDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.activeRequests.Dec()
}

// RecordFatal records a fatal result by error class.
func (m *Metrics) RecordFatal(class string) {
	if !m.enabled() {
		return
	}
	m.fatalResults.WithLabelValues(class).Inc()
}

// RecordResources records n composed resources touched by action.
func (m *Metrics) RecordResources(action string, n int) {
	if !m.enabled() || n == 0 {
		return
	}
	m.resources.WithLabelValues(action).Add(float64(n))
}

// Loader Metrics

// RecordCompile records a unit compilation.
func (m *Metrics) RecordCompile(err error) {
	if !m.enabled() {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.compiles.WithLabelValues(result).Inc()
}

// RecordCacheLookup records a unit cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if !m.enabled() {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordInvalidation records n invalidated cache entries and the remaining
// cache size.
func (m *Metrics) RecordInvalidation(n, size int) {
	if !m.enabled() {
		return
	}
	m.invalidations.Add(float64(n))
	m.cacheSize.Set(float64(size))
}

// SetCacheSize sets the number of cached units.
func (m *Metrics) SetCacheSize(size int) {
	if !m.enabled() {
		return
	}
	m.cacheSize.Set(float64(size))
}

// Registry returns the registry holding the metrics, or nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ServeMetrics serves the metrics endpoint until ctx is done.
func (m *Metrics) ServeMetrics(ctx context.Context, logger zerolog.Logger) error {
	if !m.enabled() {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("address", m.config.ListenAddress).Str("path", m.config.Path).Msg("Serving metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
