//go:build unit

package runner_test

import (
	"context"
	"testing"
	"time"

	"github.com/hugolhafner/go-connect/kafka"
	connectotel "github.com/hugolhafner/go-connect/otel"
	"github.com/hugolhafner/go-connect/record"
	"github.com/hugolhafner/go-connect/runner"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func setupOtelTest(t *testing.T) (*tracetest.InMemoryExporter, *sdkmetric.ManualReader, *connectotel.Telemetry) {
	t.Helper()

	spanExporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(spanExporter),
	)

	metricReader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(metricReader),
	)

	tel, err := connectotel.NewTelemetry(tp, mp, propagation.TraceContext{})
	require.NoError(t, err)

	t.Cleanup(
		func() {
			_ = tp.Shutdown(context.Background())
			_ = mp.Shutdown(context.Background())
		},
	)

	return spanExporter, metricReader, tel
}

func TestWorker_OTel(t *testing.T) {
	spanExporter, metricReader, tel := setupOtelTest(t)

	conn := newScriptedConnector()
	conn.enqueue([]record.SourceRecord{rec(db1, 1, "srv.db1", "a")}, nil)

	h := newHarness(t, conn, props(), runner.WithTelemetry(tel))
	stop := h.start(t)

	require.Eventually(
		t, func() bool {
			return h.store.Len() == 1
		}, 2*time.Second, 5*time.Millisecond,
	)
	require.NoError(t, stop())

	produced := h.producer.ProducedRecords()
	require.Len(t, produced, 1)

	traceparent, ok := kafka.HeaderValue(produced[0].Headers, "traceparent")
	require.True(t, ok, "expected trace context to be injected")
	require.NotEmpty(t, traceparent)

	var sendSpan *tracetest.SpanStub
	spans := spanExporter.GetSpans()
	for i := range spans {
		if spans[i].Name == "srv.db1 send" {
			sendSpan = &spans[i]
		}
	}
	require.NotNil(t, sendSpan, "expected 'srv.db1 send' span")
	require.Equal(t, trace.SpanKindProducer, sendSpan.SpanKind)
	assertAttribute(t, sendSpan.Attributes, "messaging.system", "kafka")
	assertAttribute(t, sendSpan.Attributes, "messaging.operation.type", "send")
	assertAttribute(t, sendSpan.Attributes, "messaging.destination.name", "srv.db1")
	require.Contains(t, string(traceparent), sendSpan.SpanContext.TraceID().String())

	var rm metricdata.ResourceMetrics
	require.NoError(t, metricReader.Collect(context.Background(), &rm))

	names := collectMetrics(rm)
	for _, name := range []string{
		"connect.worker.records.sent",
		"connect.worker.send.duration",
		"connect.worker.offset.flushes",
	} {
		require.True(t, names[name], "expected metric %s", name)
	}
}

func assertAttribute(t *testing.T, attrs []attribute.KeyValue, key, expected string) {
	t.Helper()
	for _, a := range attrs {
		if string(a.Key) == key {
			require.Equal(
				t, expected, a.Value.AsString(),
				"Attribute %s should be %q", key, expected,
			)
			return
		}
	}
	t.Fatalf("Attribute %q not found in span attributes", key)
}

func collectMetrics(rm metricdata.ResourceMetrics) map[string]bool {
	names := make(map[string]bool)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	return names
}
