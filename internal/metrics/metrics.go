// Package metrics exposes Prometheus collectors for the auth service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service collectors. A nil *Metrics is valid and records
// nothing, so components can be built without a registry.
type Metrics struct {
	registry *prometheus.Registry

	securityEvents *prometheus.CounterVec
	logins         *prometheus.CounterVec
	captcha        *prometheus.CounterVec
	lockouts       prometheus.Counter
	emails         *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates and registers the collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		securityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collabhub",
			Name:      "security_events_total",
			Help:      "Security events recorded, by type and severity",
		}, []string{"type", "severity"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collabhub",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome",
		}, []string{"outcome"}),
		captcha: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collabhub",
			Name:      "captcha_verifications_total",
			Help:      "CAPTCHA verifications by provider and reason",
		}, []string{"provider", "reason"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "collabhub",
			Name:      "lockouts_total",
			Help:      "Username and IP combinations locked out",
		}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collabhub",
			Name:      "emails_total",
			Help:      "Transactional emails by kind and result",
		}, []string{"kind", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collabhub",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "collabhub",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.securityEvents,
		m.logins,
		m.captcha,
		m.lockouts,
		m.emails,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SecurityEvent counts a recorded security event
func (m *Metrics) SecurityEvent(eventType, severity string) {
	if m == nil {
		return
	}
	m.securityEvents.WithLabelValues(eventType, severity).Inc()
}

// Login counts a login attempt outcome
func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// Captcha counts a CAPTCHA verification
func (m *Metrics) Captcha(provider, reason string) {
	if m == nil {
		return
	}
	m.captcha.WithLabelValues(provider, reason).Inc()
}

// Lockout counts a new lockout
func (m *Metrics) Lockout() {
	if m == nil {
		return
	}
	m.lockouts.Inc()
}

// Email counts an outbound email attempt
func (m *Metrics) Email(kind string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.emails.WithLabelValues(kind, result).Inc()
}

// HTTPRequest records a served request
func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
