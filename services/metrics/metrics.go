// Package metricsvc holds the prometheus collectors of the site.
package metricsvc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cs61as"

// Metrics owns its registry so tests can build as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logins           *prometheus.CounterVec
	resolutions      *prometheus.CounterVec
	progressUpdates  *prometheus.CounterVec
	notificationErrs prometheus.Counter
}

func New(build string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	factory.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "build_info",
		Help:        "Build of the running binary.",
		ConstLabels: prometheus.Labels{"build": build},
	}).Set(1)

	return &Metrics{
		registry: reg,
		httpInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "In-flight HTTP requests.",
		}),
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "principal_resolutions_total",
			Help:      "Resolved principals by source: session, cookie, guest, tampered.",
		}, []string{"source"}),
		progressUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_updates_total",
			Help:      "Progress flag changes by item kind.",
		}, []string{"kind"}),
		notificationErrs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Submission emails that could not be sent.",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RequestStarted returns the func to call once the request is served.
func (m *Metrics) RequestStarted(method, route string) func(status int) {
	m.httpInFlight.Inc()
	start := time.Now()
	return func(status int) {
		code := strconv.Itoa(status)
		m.httpRequestDuration.WithLabelValues(method, route, code).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(method, route, code).Inc()
		m.httpInFlight.Dec()
	}
}

func (m *Metrics) Login(outcome string) {
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Resolved(source string) {
	m.resolutions.WithLabelValues(source).Inc()
}

func (m *Metrics) ProgressUpdated(kind string) {
	m.progressUpdates.WithLabelValues(kind).Inc()
}

func (m *Metrics) NotificationFailed() {
	m.notificationErrs.Inc()
}
