package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Content-store metrics.
var (
	ContentSaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_saves_total",
			Help: "Content save attempts by result.",
		},
		[]string{"result"},
	)

	VersionConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "content_version_conflicts_total",
		Help: "Saves rejected by the optimistic-lock check.",
	})

	Rollbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "content_rollbacks_total",
		Help: "Successful version rollbacks.",
	})

	SnapshotsPruned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "content_snapshots_pruned_total",
		Help: "Version snapshots removed by retention pruning.",
	})

	AuditEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_entries_total",
			Help: "Audit log writes by result (written or dropped).",
		},
		[]string{"result"},
	)
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		ContentSaves, VersionConflicts, Rollbacks, SnapshotsPruned, AuditEntries,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CanonicalPath collapses per-document segments so metric label
// cardinality stays bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(p, "/")
	// /v1/content/{type} and deeper (/versions, /rollback, ...)
	if len(parts) >= 4 && parts[1] == "v1" && parts[2] == "content" && parts[3] != "" {
		parts[3] = ":type"
		return strings.Join(parts, "/")
	}
	// /v1/admin/users/{id}
	if len(parts) >= 5 && parts[1] == "v1" && parts[2] == "admin" && parts[3] == "users" && parts[4] != "" {
		parts[4] = ":id"
		return strings.Join(parts, "/")
	}
	return p
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metrics labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
