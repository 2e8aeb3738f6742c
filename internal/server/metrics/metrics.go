// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values.
const (
	ResultSuccess  = "success"
	ResultConflict = "conflict"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests     *prometheus.CounterVec   // tunevault_http_requests_total{method,route,status}
	HTTPDuration     *prometheus.HistogramVec // tunevault_http_request_duration_seconds{method,route}
	Uploads          *prometheus.CounterVec   // tunevault_uploads_total{result}
	Deletes          *prometheus.CounterVec   // tunevault_deletes_total{result}
	AuthDenials      *prometheus.CounterVec   // tunevault_auth_denials_total{reason}
	OrphanedObjects  prometheus.Counter       // tunevault_orphaned_objects_total
	Compensations    *prometheus.CounterVec   // tunevault_compensations_total{step,result}
	UploadBytesTotal prometheus.Counter       // tunevault_upload_bytes_total
}

// New registers all collectors, plus Go runtime and process collectors, on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tunevault_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code",
		}, []string{"method", "route", "status"}),

		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tunevault_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),

		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tunevault_uploads_total",
			Help: "Upload attempts by result",
		}, []string{"result"}),

		Deletes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tunevault_deletes_total",
			Help: "Delete attempts by result",
		}, []string{"result"}),

		AuthDenials: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tunevault_auth_denials_total",
			Help: "Rejected requests by denial reason",
		}, []string{"reason"}),

		OrphanedObjects: f.NewCounter(prometheus.CounterOpts{
			Name: "tunevault_orphaned_objects_total",
			Help: "Objects left in storage after their metadata was deleted",
		}),

		Compensations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tunevault_compensations_total",
			Help: "Compensating actions run after a failed upload step",
		}, []string{"step", "result"}),

		UploadBytesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "tunevault_upload_bytes_total",
			Help: "Bytes accepted into object storage",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) Upload(result string, bytes int64) {
	if m == nil {
		return
	}
	m.Uploads.WithLabelValues(result).Inc()
	if result == ResultSuccess && bytes > 0 {
		m.UploadBytesTotal.Add(float64(bytes))
	}
}

func (m *Metrics) Delete(result string) {
	if m == nil {
		return
	}
	m.Deletes.WithLabelValues(result).Inc()
}

// AuthDenied satisfies auth.DenialRecorder.
func (m *Metrics) AuthDenied(reason string) {
	if m == nil {
		return
	}
	m.AuthDenials.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObjectOrphaned() {
	if m == nil {
		return
	}
	m.OrphanedObjects.Inc()
}

func (m *Metrics) Compensation(step, result string) {
	if m == nil {
		return
	}
	m.Compensations.WithLabelValues(step, result).Inc()
}
