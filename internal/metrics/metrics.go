package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "idp"

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// OAuth metrics
	TokensIssuedTotal *prometheus.CounterVec
	OAuthErrorsTotal  *prometheus.CounterVec

	// SSO metrics
	SessionsCreatedTotal     prometheus.Counter
	LogoutsTotal             prometheus.Counter
	LogoutNotificationsTotal *prometheus.CounterVec
	SweptRecordsTotal        *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		TokensIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_issued_total",
				Help:      "Total number of token responses by grant type",
			},
			[]string{"grant_type"},
		),
		OAuthErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "oauth_errors_total",
				Help:      "Total number of OAuth errors returned by endpoint and error code",
			},
			[]string{"endpoint", "error"},
		),

		SessionsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sso_sessions_created_total",
				Help:      "Total number of SSO sessions created",
			},
		),
		LogoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sso_logouts_total",
				Help:      "Total number of single-logout requests",
			},
		),
		LogoutNotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "slo_notifications_total",
				Help:      "Total number of logout notifications sent to connected apps",
			},
			[]string{"result"},
		),
		SweptRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "swept_records_total",
				Help:      "Total number of expired records removed by the sweep",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.TokensIssuedTotal,
		m.OAuthErrorsTotal,
		m.SessionsCreatedTotal,
		m.LogoutsTotal,
		m.LogoutNotificationsTotal,
		m.SweptRecordsTotal,
	)

	return m
}

// ObserveLogout records one logout and the outcome of its notifications.
func (m *Metrics) ObserveLogout(notified, failed int) {
	m.LogoutsTotal.Inc()
	m.LogoutNotificationsTotal.WithLabelValues("success").Add(float64(notified))
	m.LogoutNotificationsTotal.WithLabelValues("failed").Add(float64(failed))
}

// ObserveSweep records how many records of each kind a sweep removed.
func (m *Metrics) ObserveSweep(codes, accessTokens, refreshTokens, sessions int) {
	m.SweptRecordsTotal.WithLabelValues("code").Add(float64(codes))
	m.SweptRecordsTotal.WithLabelValues("access_token").Add(float64(accessTokens))
	m.SweptRecordsTotal.WithLabelValues("refresh_token").Add(float64(refreshTokens))
	m.SweptRecordsTotal.WithLabelValues("session").Add(float64(sessions))
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Middleware instruments a route. Requests are labelled by the mux pattern they matched
// so that path parameters do not multiply the series.
func (m *Metrics) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next(rw, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
