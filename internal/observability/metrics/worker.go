package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	eventsTotal     *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	eventsInFlight  prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drp",
			Subsystem: "worker",
			Name:      "pipeline_events_total",
			Help:      "Total consumed pipeline events by subject and status.",
		},
		[]string{"service", "subject", "status"},
	)
	handlerDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "drp",
			Subsystem: "worker",
			Name:      "event_handle_duration_seconds",
			Help:      "Pipeline event handling duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "subject"},
	)
	eventsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "drp",
			Subsystem: "worker",
			Name:      "events_in_flight",
			Help:      "Number of pipeline events currently being handled.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(eventsTotal, handlerDuration, eventsInFlight)

	return &WorkerMetrics{
		registry:        registry,
		eventsTotal:     eventsTotal,
		handlerDuration: handlerDuration,
		eventsInFlight:  eventsInFlight,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartEvent() {
	m.eventsInFlight.Inc()
}

func (m *WorkerMetrics) FinishEvent(service, subject string, duration time.Duration, err error) {
	m.eventsInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.eventsTotal.WithLabelValues(service, subject, status).Inc()
	m.handlerDuration.WithLabelValues(service, subject).Observe(duration.Seconds())
}
