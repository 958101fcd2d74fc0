package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInit_Disabled(t *testing.T) {
	ctx := context.Background()

	tel, err := Init(ctx, nil)
	require.NoError(t, err)
	assert.NotNil(t, tel.tracer)
	assert.NotNil(t, tel.meter)

	cfg := &Config{Enabled: false, ServiceName: "eventgate-test"}
	tel, err = Init(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg, tel.Config())
	assert.Same(t, tel, Get())
	assert.NoError(t, Shutdown(ctx))
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), sampler(0).Description())
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}

func TestCounter_RecordsThroughGlobalMeter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	_, err := Init(context.Background(), &Config{ServiceName: "metrics-test"})
	require.NoError(t, err)

	counter, err := NewCounter(MetricOpts{Name: "eventgate_test_total", Unit: "1"})
	require.NoError(t, err)
	counter.Inc(context.Background(), ValidationOutcomeAttr("validated"))
	counter.Add(context.Background(), 2, ValidationOutcomeAttr("validated"))

	hist, err := NewHistogramWithBuckets(MetricOpts{Name: "eventgate_test_ms", Unit: "ms"}, []float64{10, 100})
	require.NoError(t, err)
	hist.Record(context.Background(), 42, GatewayNameAttr("bank"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	var total int64
	for _, m := range rm.ScopeMetrics[0].Metrics {
		if sum, ok := m.Data.(metricdata.Sum[int64]); ok && m.Name == "eventgate_test_total" {
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	assert.Equal(t, int64(3), total)
}

func TestNilInstrumentsAreSafe(t *testing.T) {
	var c *Counter
	var h *Histogram
	assert.NotPanics(t, func() {
		c.Inc(context.Background())
		h.Record(context.Background(), 1)
	})
}

func TestStartSpanAndRecordError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	globalTelemetry = &Telemetry{tracer: tp.Tracer("test")}
	defer func() { globalTelemetry = nil }()

	ctx, span := StartSpan(context.Background(), "validation.validate")
	assert.NotEmpty(t, GetTraceID(ctx))
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "validation.validate", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
}
