package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skywatch_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skywatch_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	lookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skywatch_lookups_total",
			Help: "Remote lookups by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	lookupDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skywatch_lookup_duration_seconds",
			Help:    "Remote lookup duration in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"source"},
	)

	unresolvedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skywatch_unresolved_objects_total",
			Help: "Objects no source could resolve.",
		},
	)

	cachedObjects = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skywatch_cached_objects",
			Help: "Number of objects in the loaded cache snapshot.",
		},
	)

	persistDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skywatch_persist_duration_seconds",
			Help:    "Time spent writing the cache snapshot.",
			Buckets: prometheus.DefBuckets,
		},
	)

	persistFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skywatch_persist_failures_total",
			Help: "Cache snapshot writes that failed.",
		},
	)

	visibilityTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skywatch_visibility_evaluations_total",
			Help: "Visibility windows computed, by result.",
		},
		[]string{"result"},
	)

	lastRefreshTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skywatch_last_refresh_timestamp_seconds",
			Help: "Unix time of the last committed refresh.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(lookupsTotal)
	prometheus.MustRegister(lookupDurationSeconds)
	prometheus.MustRegister(unresolvedTotal)
	prometheus.MustRegister(cachedObjects)
	prometheus.MustRegister(persistDurationSeconds)
	prometheus.MustRegister(persistFailuresTotal)
	prometheus.MustRegister(visibilityTotal)
	prometheus.MustRegister(lastRefreshTimestamp)
}

// ObserveLookup records one remote lookup attempt.
func ObserveLookup(source, outcome string, d time.Duration) {
	lookupsTotal.WithLabelValues(source, outcome).Inc()
	lookupDurationSeconds.WithLabelValues(source).Observe(d.Seconds())
}

// AddUnresolved counts objects left unresolved by a refresh.
func AddUnresolved(n int) {
	unresolvedTotal.Add(float64(n))
}

// SetCachedObjects sets the cached object gauge.
func SetCachedObjects(n int) {
	cachedObjects.Set(float64(n))
}

// ObservePersist records a snapshot write.
func ObservePersist(d time.Duration, err error) {
	if err != nil {
		persistFailuresTotal.Inc()
		return
	}
	persistDurationSeconds.Observe(d.Seconds())
	lastRefreshTimestamp.Set(float64(time.Now().Unix()))
}

// ObserveVisibility records one visibility evaluation. result is one of
// "visible", "not_visible" or "invalid".
func ObserveVisibility(result string) {
	visibilityTotal.WithLabelValues(result).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// WriteTextfile dumps the default registry in the node_exporter textfile
// format. One-shot CLI runs use it instead of serving /metrics.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

// normalizeRoute maps a request path to a bounded label set.
func normalizeRoute(path string) string {
	switch path {
	case "/", "/healthz", "/readyz", "/metrics", "/api/v1/objects":
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/objects/"); ok && rest != "" {
		return "/api/v1/objects/{id}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
