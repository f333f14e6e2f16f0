package stats

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector receives one observation per non-nil polled batch.
type Collector interface {
	ObserveBatch(size int)
}

type NopCollector struct{}

func (NopCollector) ObserveBatch(int) {}

var _ Collector = (*PrometheusCollector)(nil)

// PrometheusCollector exports batch statistics. Metrics are registered on
// first use; collectors already registered under the same name are reused,
// so several tasks can share one registry.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	task      string
	once      sync.Once

	records    *prometheus.CounterVec
	polls      *prometheus.CounterVec
	batchSizes *prometheus.HistogramVec
}

func NewPrometheus(reg prometheus.Registerer, namespace, task string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "connect"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace, task: task}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(
		func() {
			p.records = register(
				p.reg, prometheus.NewCounterVec(
					prometheus.CounterOpts{
						Namespace: p.namespace,
						Subsystem: "source_task",
						Name:      "records_total",
						Help:      "Total source records returned by poll.",
					}, []string{"task"},
				),
			)

			p.polls = register(
				p.reg, prometheus.NewCounterVec(
					prometheus.CounterOpts{
						Namespace: p.namespace,
						Subsystem: "source_task",
						Name:      "polls_total",
						Help:      "Total polls by outcome (records, empty).",
					}, []string{"task", "result"},
				),
			)

			p.batchSizes = register(
				p.reg, prometheus.NewHistogramVec(
					prometheus.HistogramOpts{
						Namespace: p.namespace,
						Subsystem: "source_task",
						Name:      "batch_size",
						Help:      "Number of records per non-empty poll.",
						Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
					}, []string{"task"},
				),
			)
		},
	)
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (p *PrometheusCollector) ObserveBatch(size int) {
	p.ensureRegistered()

	if size == 0 {
		p.polls.WithLabelValues(p.task, "empty").Inc()
		return
	}

	p.polls.WithLabelValues(p.task, "records").Inc()
	p.records.WithLabelValues(p.task).Add(float64(size))
	p.batchSizes.WithLabelValues(p.task).Observe(float64(size))
}
