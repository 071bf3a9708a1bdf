package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric collectors for the Gantry API.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Auth metrics.
	AuthSuccessesTotal    *prometheus.CounterVec
	AuthFailuresTotal     *prometheus.CounterVec
	SessionRotationsTotal prometheus.Counter
	AccessDenialsTotal    *prometheus.CounterVec

	// Mail metrics.
	MailSendsTotal *prometheus.CounterVec

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gantry_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gantry_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gantry_auth_successes_total",
			Help: "Total number of successful authentications.",
		}, []string{"flow"}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gantry_auth_failures_total",
			Help: "Total number of authentication failures.",
		}, []string{"flow"}),

		SessionRotationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gantry_session_rotations_total",
			Help: "Total number of successful refresh-token rotations.",
		}),

		AccessDenialsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gantry_access_denials_total",
			Help: "Total number of access-resolution denials.",
		}, []string{"resource", "outcome"}),

		MailSendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gantry_mail_sends_total",
			Help: "Total number of transactional mail delivery attempts.",
		}, []string{"kind", "status"}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gantry_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthSuccessesTotal,
		m.AuthFailuresTotal,
		m.SessionRotationsTotal,
		m.AccessDenialsTotal,
		m.MailSendsTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	// Register Go runtime and process collectors.
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// IncAuthSuccess increments the auth success counter for the given flow.
func (m *Metrics) IncAuthSuccess(flow string) {
	m.AuthSuccessesTotal.WithLabelValues(flow).Inc()
}

// IncAuthFailure increments the auth failure counter for the given flow.
func (m *Metrics) IncAuthFailure(flow string) {
	m.AuthFailuresTotal.WithLabelValues(flow).Inc()
}

// IncSessionRotation increments the refresh-token rotation counter.
func (m *Metrics) IncSessionRotation() {
	m.SessionRotationsTotal.Inc()
}

// IncAccessDenial increments the access denial counter for a resource kind
// and outcome (forbidden or not_found).
func (m *Metrics) IncAccessDenial(resource, outcome string) {
	m.AccessDenialsTotal.WithLabelValues(resource, outcome).Inc()
}

// IncMailSend increments the mail delivery counter.
func (m *Metrics) IncMailSend(kind, status string) {
	m.MailSendsTotal.WithLabelValues(kind, status).Inc()
}
