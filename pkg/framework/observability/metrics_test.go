package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupMetricsTest installs a meter provider backed by a manual reader.
func setupMetricsTest(t *testing.T) *sdkmetric.ManualReader {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	original := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)

	t.Cleanup(func() {
		otel.SetMeterProvider(original)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down meter provider: %v", err)
		}
	})
	return reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func counterTotal(t *testing.T, rm *metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m := findMetric(rm, name)
	require.NotNil(t, m, "metric %s not found", name)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func histogramCount(t *testing.T, rm *metricdata.ResourceMetrics, name string) uint64 {
	t.Helper()
	m := findMetric(rm, name)
	require.NotNil(t, m, "metric %s not found", name)
	var count uint64
	switch h := m.Data.(type) {
	case metricdata.Histogram[float64]:
		for _, dp := range h.DataPoints {
			count += dp.Count
		}
	case metricdata.Histogram[int64]:
		for _, dp := range h.DataPoints {
			count += dp.Count
		}
	default:
		t.Fatalf("metric %s is not a histogram", name)
	}
	return count
}

func TestNewMetricsRecorder(t *testing.T) {
	setupMetricsTest(t)

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)
	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop, "Expected real metrics recorder, got noop")
}

func TestRecordDispatch(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordDispatch(ctx, "order.created", 2, false, 3*time.Millisecond, nil)
	m.RecordDispatch(ctx, "order.created", 2, true, time.Millisecond, nil)
	m.RecordDispatch(ctx, "order.paid", 0, false, time.Millisecond, errors.New("boom"))

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(3), counterTotal(t, rm, "framework.dispatch.count"))
	assert.Equal(t, int64(1), counterTotal(t, rm, "framework.dispatch.stopped"))
	assert.Equal(t, int64(1), counterTotal(t, rm, "framework.dispatch.errors"))
	assert.Equal(t, uint64(3), histogramCount(t, rm, "framework.dispatch.latency_ms"))
}

func TestRecordListener(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordListener(ctx, "order.created", time.Millisecond, nil)
	m.RecordListener(ctx, "order.created", time.Millisecond, errors.New("boom"))

	rm := collectMetrics(t, reader)
	assert.Equal(t, uint64(2), histogramCount(t, rm, "framework.listener.latency_ms"))
	assert.Equal(t, int64(1), counterTotal(t, rm, "framework.listener.errors"))
}

func TestRecordCodecRejectedDropped(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordCodec(ctx, "serialize", 128, nil)
	m.RecordCodec(ctx, "restore", 0, errors.New("bad"))
	m.RecordRejected(ctx, "relay")
	m.RecordRejected(ctx, "relay")
	m.RecordDropped(ctx, "order.created")

	rm := collectMetrics(t, reader)
	assert.Equal(t, uint64(1), histogramCount(t, rm, "framework.codec.size_bytes"))
	assert.Equal(t, int64(1), counterTotal(t, rm, "framework.codec.errors"))
	assert.Equal(t, int64(2), counterTotal(t, rm, "framework.codec.rejected"))
	assert.Equal(t, int64(1), counterTotal(t, rm, "framework.bus.dropped"))
}
