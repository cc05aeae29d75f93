package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge

	runsTotal       *prometheus.CounterVec
	runDuration     prometheus.Histogram
	enginesTotal    *prometheus.CounterVec
	engineDuration  *prometheus.HistogramVec
	degradedOutputs *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	// custom registry, don't pollute default
	reg := prometheus.NewRegistry()
	engineBuckets := []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200}

	m := &Metrics{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webscan_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webscan_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 10),
		}, []string{"method", "route"}),
		requestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "webscan_http_requests_in_flight",
			Help: "HTTP requests being served.",
		}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webscan_runs_total",
			Help: "Scan runs by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "webscan_run_duration_seconds",
			Help:    "Wall time of a whole scan run.",
			Buckets: engineBuckets,
		}),
		enginesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webscan_engine_outcomes_total",
			Help: "Engine outcomes by engine and status.",
		}, []string{"engine", "status"}),
		engineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webscan_engine_duration_seconds",
			Help:    "Engine process wall time.",
			Buckets: engineBuckets,
		}, []string{"engine"}),
		degradedOutputs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webscan_engine_degraded_total",
			Help: "Engine outputs kept as raw text because they could not be parsed.",
		}, []string{"engine"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal, m.requestDuration, m.requestsInFlight,
		m.runsTotal, m.runDuration, m.enginesTotal, m.engineDuration, m.degradedOutputs,
	)
	return m
}

// Middleware tracks request metrics. The route label is the chi pattern so
// cardinality stays bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.requestsInFlight.Inc()
		defer m.requestsInFlight.Dec()

		start := time.Now()
		wrapped := wrap(w)
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveEngine(engine, status string, degraded bool, d time.Duration) {
	m.enginesTotal.WithLabelValues(engine, status).Inc()
	m.engineDuration.WithLabelValues(engine).Observe(d.Seconds())
	if degraded {
		m.degradedOutputs.WithLabelValues(engine).Inc()
	}
}

func (m *Metrics) ObserveRun(result string, d time.Duration) {
	m.runsTotal.WithLabelValues(result).Inc()
	if d > 0 {
		m.runDuration.Observe(d.Seconds())
	}
}
