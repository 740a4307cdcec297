package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type APIMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	ingestFilesTotal   *prometheus.CounterVec
	ingestBatchSize    *prometheus.HistogramVec
	aggregationTotal   *prometheus.CounterVec
	aggregationSeconds *prometheus.HistogramVec
	alertsFiredTotal   *prometheus.CounterVec
}

func NewAPIMetrics(service string) *APIMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drp",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "drp",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "drp",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	ingestFilesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drp",
			Subsystem: "ingest",
			Name:      "files_total",
			Help:      "Total ingested report files by channel, category and outcome.",
		},
		[]string{"service", "channel", "category", "status"},
	)
	ingestBatchSize := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "drp",
			Subsystem: "ingest",
			Name:      "batch_size",
			Help:      "Distribution of files per ingestion batch.",
			Buckets:   []float64{1, 2, 3, 5, 8, 12, 20},
		},
		[]string{"service", "channel"},
	)
	aggregationTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drp",
			Subsystem: "aggregate",
			Name:      "runs_total",
			Help:      "Total aggregation attempts by outcome (computed, incomplete, error).",
		},
		[]string{"service", "outcome"},
	)
	aggregationSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "drp",
			Subsystem: "aggregate",
			Name:      "duration_seconds",
			Help:      "Aggregation run duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	alertsFiredTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drp",
			Subsystem: "alerts",
			Name:      "fired_total",
			Help:      "Total alerts created by rule and severity.",
		},
		[]string{"service", "rule", "severity"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		ingestFilesTotal,
		ingestBatchSize,
		aggregationTotal,
		aggregationSeconds,
		alertsFiredTotal,
	)

	return &APIMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		ingestFilesTotal:   ingestFilesTotal,
		ingestBatchSize:    ingestBatchSize,
		aggregationTotal:   aggregationTotal,
		aggregationSeconds: aggregationSeconds,
		alertsFiredTotal:   alertsFiredTotal,
	}
}

func (m *APIMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *APIMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/alerts/") && strings.HasSuffix(path, "/ack"):
		return "/v1/alerts/{alert_id}/ack"
	case strings.HasPrefix(path, "/v1/reports/") && strings.HasSuffix(path, "/raw"):
		return "/v1/reports/{report_id}/raw"
	default:
		return path
	}
}

func (m *APIMetrics) RecordIngestedFile(service, channel, category, status string) {
	if category == "" {
		category = "unknown"
	}
	m.ingestFilesTotal.WithLabelValues(service, channel, category, status).Inc()
}

func (m *APIMetrics) RecordBatch(service, channel string, files int) {
	m.ingestBatchSize.WithLabelValues(service, channel).Observe(float64(files))
}

func (m *APIMetrics) RecordAggregation(service, outcome string, duration time.Duration) {
	m.aggregationTotal.WithLabelValues(service, outcome).Inc()
	m.aggregationSeconds.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *APIMetrics) RecordAlertFired(service, rule string, severity string) {
	m.alertsFiredTotal.WithLabelValues(service, rule, severity).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
