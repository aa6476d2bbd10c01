package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/1a11/billard/internal/version"
)

type ServerMetrics struct {
	reg       *prometheus.Registry
	handler   http.Handler
	inflight  prometheus.Gauge
	reqTotal  *prometheus.CounterVec
	reqDur    *prometheus.HistogramVec
	respBytes *prometheus.HistogramVec
	// 5xx only, the availability SLI
	errorsTotal    *prometheus.CounterVec
	httpPanicTotal prometheus.Counter
	buildInfo      *prometheus.GaugeVec

	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter
	profilingActive        prometheus.Gauge

	// mutation pipeline
	mutationsTotal       *prometheus.CounterVec
	mutationDur          *prometheus.HistogramVec
	authFailuresTotal    *prometheus.CounterVec
	mutationLimitedTotal *prometheus.CounterVec
	sanitizedTotal       *prometheus.CounterVec
	nonceEntries         prometheus.Gauge
	nonceCapacityTotal   prometheus.Counter

	// content directories
	contentFiles       *prometheus.GaugeVec
	contentEventsTotal *prometheus.CounterVec
}

// New returns a fresh registry with the Go and process collectors plus the
// service metrics. HTTP labels are method, route pattern and status only.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: prometheus.ExponentialBuckets(256, 4, 9),
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route",
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered handler panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by the per-IP site limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total number of times the site limiter visitor table was full",
		}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		mutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billard_mutations_total",
			Help: "Content mutations by operation and result",
		}, []string{"op", "result"}),
		mutationDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "billard_mutation_duration_seconds",
			Help:    "Time from request receipt to response for content mutations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"op"}),
		authFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billard_auth_failures_total",
			Help: "Rejected Hawk authentications by reason",
		}, []string{"reason"}),
		mutationLimitedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billard_mutation_rate_limited_total",
			Help: "Authenticated mutations rejected by the per-client window",
		}, []string{"op"}),
		sanitizedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billard_sanitized_documents_total",
			Help: "Uploaded documents that had at least one string escaped",
		}, []string{"op"}),
		nonceEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "billard_nonce_cache_entries",
			Help: "Live entries in the replay nonce cache",
		}),
		nonceCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billard_nonce_cache_full_total",
			Help: "Requests refused because the nonce cache was at capacity",
		}),
		contentFiles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "billard_content_files",
			Help: "Listed content files by collection",
		}, []string{"collection"}),
		contentEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billard_content_dir_events_total",
			Help: "Filesystem events observed in content directories",
		}, []string{"op"}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errorsTotal,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.profilingActive,
		m.mutationsTotal,
		m.mutationDur,
		m.authFailuresTotal,
		m.mutationLimitedTotal,
		m.sanitizedTotal,
		m.nonceEntries,
		m.nonceCapacityTotal,
		m.contentFiles,
		m.contentEventsTotal,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// SetBuildInfo is called once at startup.
func (m *ServerMetrics) SetBuildInfo(component string, vi version.Info) {
	m.buildInfo.With(prometheus.Labels{
		"app":        vi.AppName,
		"component":  component,
		"version":    vi.Version,
		"commit":     vi.Commit,
		"build_date": vi.BuildDate,
		"go_version": vi.GoVersion,
		"vcs_dirty":  vi.Dirty(),
	}).Set(1)
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.ratelimitDeniedTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.ratelimitCapacityTotal.Inc()
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	m.profilingActive.Set(boolGauge(active))
}

// ObserveMutation records one finished mutation. result is "ok" or the
// error class the pipeline mapped the failure to.
func (m *ServerMetrics) ObserveMutation(op, result string, seconds float64) {
	m.mutationsTotal.WithLabelValues(op, result).Inc()
	m.mutationDur.WithLabelValues(op).Observe(seconds)
}

func (m *ServerMetrics) IncAuthFailure(reason string) {
	m.authFailuresTotal.WithLabelValues(reason).Inc()
}

func (m *ServerMetrics) IncMutationRateLimited(op string) {
	m.mutationLimitedTotal.WithLabelValues(op).Inc()
}

func (m *ServerMetrics) IncSanitized(op string) {
	m.sanitizedTotal.WithLabelValues(op).Inc()
}

func (m *ServerMetrics) SetNonceEntries(n int) {
	m.nonceEntries.Set(float64(n))
}

func (m *ServerMetrics) IncNonceCapacity() {
	m.nonceCapacityTotal.Inc()
}

func (m *ServerMetrics) SetContentFiles(collection string, n int) {
	m.contentFiles.WithLabelValues(collection).Set(float64(n))
}

func (m *ServerMetrics) IncContentEvent(op string) {
	m.contentEventsTotal.WithLabelValues(op).Inc()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
