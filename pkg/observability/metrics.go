package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Pipeline metrics
	ToolCallsTotal       *prometheus.CounterVec
	DenialsTotal         *prometheus.CounterVec
	CentsDeductedTotal   *prometheus.CounterVec
	RateLimitChecksTotal *prometheus.CounterVec
	StageDuration        *prometheus.HistogramVec

	// Billing side effects
	RechargeAttemptsTotal *prometheus.CounterVec
	CreditsTotal          *prometheus.CounterVec
	WebhookEventsTotal    *prometheus.CounterVec

	// Credential cache
	KeyCacheHitsTotal   prometheus.Counter
	KeyCacheMissesTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tollgate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ToolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_tool_calls_total",
				Help: "Tool invocations by outcome",
			},
			[]string{"tool", "outcome"},
		),
		DenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_denials_total",
				Help: "Requests rejected by the admission pipeline, by error code",
			},
			[]string{"code"},
		),
		CentsDeductedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_cents_deducted_total",
				Help: "Whole cents deducted from balances",
			},
			[]string{"tool"},
		),
		RateLimitChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_ratelimit_checks_total",
				Help: "Rate limit decisions by tier",
			},
			[]string{"tier", "result"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tollgate_stage_duration_seconds",
				Help:    "Duration of each admission stage",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"stage"},
		),
		RechargeAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_recharge_attempts_total",
				Help: "Auto-recharge attempts by result",
			},
			[]string{"result"},
		),
		CreditsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_credits_cents_total",
				Help: "Cents credited to balances by source",
			},
			[]string{"source"},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_webhook_events_total",
				Help: "Payment provider webhook events by type and result",
			},
			[]string{"type", "result"},
		),
		KeyCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tollgate_key_cache_hits_total",
				Help: "API key lookups served from cache",
			},
		),
		KeyCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tollgate_key_cache_misses_total",
				Help: "API key lookups that went to the store",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ToolCallsTotal,
		m.DenialsTotal,
		m.CentsDeductedTotal,
		m.RateLimitChecksTotal,
		m.StageDuration,
		m.RechargeAttemptsTotal,
		m.CreditsTotal,
		m.WebhookEventsTotal,
		m.KeyCacheHitsTotal,
		m.KeyCacheMissesTotal,
	)

	return m
}

// NewTestMetrics registers metrics against a throwaway registry
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routeLabel prefers the mux route template so ids do not explode cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Install it with router.Use so the matched route is available.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
