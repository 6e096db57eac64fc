package cli

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mchmarny/riskctl/pkg/feature"
	"github.com/mchmarny/riskctl/pkg/risk"
)

const metricsNamespace = "riskctl"

type metrics struct {
	assessments      *prometheus.CounterVec
	anomalies        prometheus.Counter
	failures         *prometheus.CounterVec
	latency          *prometheus.HistogramVec
	trainings        *prometheus.CounterVec
	trainingDuration prometheus.Histogram
	modelInfo        *prometheus.GaugeVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		assessments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "assessments_total",
				Help:      "Entities assessed by risk category",
			},
			[]string{"category"},
		),
		anomalies: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "anomalies_total",
				Help:      "Entities flagged as anomalous",
			},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "assessment_failures_total",
				Help:      "Entities that could not be assessed by reason",
			},
			[]string{"reason"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "request_duration_seconds",
				Help:      "Assessment request latency by endpoint",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		trainings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "training_runs_total",
				Help:      "Training runs by result",
			},
			[]string{"result"},
		),
		trainingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "training_duration_seconds",
				Help:      "Duration of successful training runs",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
			},
		),
		modelInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "model_info",
				Help:      "Currently published model, value is always 1",
			},
			[]string{"id"},
		),
	}

	reg.MustRegister(
		m.assessments,
		m.anomalies,
		m.failures,
		m.latency,
		m.trainings,
		m.trainingDuration,
		m.modelInfo,
	)
	return m
}

func (m *metrics) observe(a *risk.Assessment) {
	m.assessments.WithLabelValues(a.RiskCategory).Inc()
	if a.IsAnomaly {
		m.anomalies.Inc()
	}
}

func (m *metrics) fail(err error) {
	m.failures.WithLabelValues(failureReason(err)).Inc()
}

func (m *metrics) published(id string) {
	m.modelInfo.Reset()
	m.modelInfo.WithLabelValues(id).Set(1)
}

func failureReason(err error) string {
	var ve *feature.ValidationError
	switch {
	case errors.As(err, &ve), errors.Is(err, risk.ErrInvalidEntity):
		return "validation"
	case errors.Is(err, risk.ErrNotTrained):
		return "not_trained"
	case errors.Is(err, risk.ErrModelInconsistency):
		return "inconsistent_model"
	default:
		return "internal"
	}
}
