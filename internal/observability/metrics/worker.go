package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	ingestTotal    *prometheus.CounterVec
	ingestDuration *prometheus.HistogramVec
	ingestInFlight prometheus.Gauge
	chunksTotal    *prometheus.CounterVec
	attempts       *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	ingestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "ingestions_total",
			Help:      "Finished ingestion runs by final state and failed step.",
		},
		[]string{"service", "state", "failed_step"},
	)
	ingestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "ingestion_duration_seconds",
			Help:      "Ingestion duration in seconds by final state.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "state"},
	)
	ingestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "ingestions_in_flight",
			Help:      "Number of in-flight ingestion runs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	chunksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "chunks_upserted_total",
			Help:      "Index records written by successful ingestion runs.",
		},
		[]string{"service"},
	)
	attempts := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "ingestion_attempts",
			Help:      "Whole-document attempts per ingestion run.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
		[]string{"service"},
	)

	registry.MustRegister(ingestTotal, ingestDuration, ingestInFlight, chunksTotal, attempts)

	return &WorkerMetrics{
		registry:       registry,
		ingestTotal:    ingestTotal,
		ingestDuration: ingestDuration,
		ingestInFlight: ingestInFlight,
		chunksTotal:    chunksTotal,
		attempts:       attempts,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.ingestInFlight.Inc()
}

// FinishDocument records a finished run. state and failedStep come from the ingestion report.
func (m *WorkerMetrics) FinishDocument(service, state, failedStep string, upserted, attempts int, duration time.Duration) {
	m.ingestInFlight.Dec()

	if state == "" {
		state = "unknown"
	}
	m.ingestTotal.WithLabelValues(service, state, failedStep).Inc()
	m.ingestDuration.WithLabelValues(service, state).Observe(duration.Seconds())
	if upserted > 0 {
		m.chunksTotal.WithLabelValues(service).Add(float64(upserted))
	}
	if attempts > 0 {
		m.attempts.WithLabelValues(service).Observe(float64(attempts))
	}
}
