package otel

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	traceNoop "go.opentelemetry.io/otel/trace/noop"
)

const scopeName = "github.com/hugolhafner/go-connect"

// Telemetry holds all OpenTelemetry instruments for the go-connect library
// When no providers are configured, all instruments are noops with zero overhead
type Telemetry struct {
	Tracer     trace.Tracer
	Propagator propagation.TextMapPropagator

	// Task metrics
	PollDuration    metric.Float64Histogram
	Records         metric.Int64Counter
	RetriableErrors metric.Int64Counter
	Restarts        metric.Int64Counter
	Commits         metric.Int64Counter
	TasksRunning    metric.Int64UpDownCounter

	// Worker metrics
	RecordsSent         metric.Int64Counter
	SendDuration        metric.Float64Histogram
	OffsetFlushes       metric.Int64Counter
	ErrorHandlerActions metric.Int64Counter
}

// NewTelemetry creates a Telemetry instance from the given providers.
// all providers are optional and defaulted to noops if nil
func NewTelemetry(tp trace.TracerProvider, mp metric.MeterProvider, prop propagation.TextMapPropagator) (
	*Telemetry, error,
) {
	if tp == nil {
		tp = traceNoop.NewTracerProvider()
	}
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	if prop == nil {
		prop = propagation.TraceContext{}
	}

	tracer := tp.Tracer(scopeName)
	meter := mp.Meter(scopeName)

	pollDuration, err := meter.Float64Histogram(
		"connect.task.poll.duration",
		metric.WithDescription("Time per Poll() call"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	records, err := meter.Int64Counter(
		"connect.task.records",
		metric.WithDescription("Source records returned by Poll()"),
	)
	if err != nil {
		return nil, err
	}

	retriableErrors, err := meter.Int64Counter(
		"connect.task.retriable_errors",
		metric.WithDescription("Retriable errors that stopped the task"),
	)
	if err != nil {
		return nil, err
	}

	restarts, err := meter.Int64Counter(
		"connect.task.restarts",
		metric.WithDescription("Automatic restarts after a retriable error"),
	)
	if err != nil {
		return nil, err
	}

	commits, err := meter.Int64Counter(
		"connect.task.commits",
		metric.WithDescription("Offset commits forwarded to the source database"),
	)
	if err != nil {
		return nil, err
	}

	tasksRunning, err := meter.Int64UpDownCounter(
		"connect.task.running",
		metric.WithDescription("Tasks in the running state"),
	)
	if err != nil {
		return nil, err
	}

	recordsSent, err := meter.Int64Counter(
		"connect.worker.records.sent",
		metric.WithDescription("Records handed to the producer"),
	)
	if err != nil {
		return nil, err
	}

	sendDuration, err := meter.Float64Histogram(
		"connect.worker.send.duration",
		metric.WithDescription("Time per Send() call"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	offsetFlushes, err := meter.Int64Counter(
		"connect.worker.offset.flushes",
		metric.WithDescription("Offset flushes to the offset store"),
	)
	if err != nil {
		return nil, err
	}

	errorHandlerActions, err := meter.Int64Counter(
		"connect.worker.error_handler.actions",
		metric.WithDescription("Error handler decisions"),
	)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Tracer:              tracer,
		Propagator:          prop,
		PollDuration:        pollDuration,
		Records:             records,
		RetriableErrors:     retriableErrors,
		Restarts:            restarts,
		Commits:             commits,
		TasksRunning:        tasksRunning,
		RecordsSent:         recordsSent,
		SendDuration:        sendDuration,
		OffsetFlushes:       offsetFlushes,
		ErrorHandlerActions: errorHandlerActions,
	}, nil
}

// Noop returns a Telemetry instance with all noop instruments
func Noop() *Telemetry {
	t, _ := NewTelemetry(nil, nil, nil)
	return t
}
