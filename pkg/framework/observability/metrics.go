package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/glowdan/framework"

// MetricsRecorder records dispatch, codec and delivery metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordDispatch records one dispatch round.
	RecordDispatch(ctx context.Context, eventName string, listeners int, stopped bool, duration time.Duration, err error)

	// RecordListener records a single listener invocation.
	RecordListener(ctx context.Context, eventName string, duration time.Duration, err error)

	// RecordCodec records a serialize or restore of the wire form.
	RecordCodec(ctx context.Context, op string, sizeBytes int, err error)

	// RecordRejected records an inbound payload refused by the decoder.
	RecordRejected(ctx context.Context, source string)

	// RecordDropped records an event not delivered because a buffer was full.
	RecordDropped(ctx context.Context, eventName string)
}

type otelMetrics struct {
	dispatches      metric.Int64Counter
	dispatchLatency metric.Float64Histogram
	dispatchErrors  metric.Int64Counter
	stopped         metric.Int64Counter
	listenerLatency metric.Float64Histogram
	listenerErrors  metric.Int64Counter
	payloadSize     metric.Int64Histogram
	codecErrors     metric.Int64Counter
	rejected        metric.Int64Counter
	dropped         metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter(meterName)
	m := &otelMetrics{}
	var err error

	if m.dispatches, err = meter.Int64Counter("framework.dispatch.count",
		metric.WithDescription("Number of dispatch rounds"),
	); err != nil {
		return nil, err
	}
	if m.dispatchLatency, err = meter.Float64Histogram("framework.dispatch.latency_ms",
		metric.WithDescription("Dispatch round latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.dispatchErrors, err = meter.Int64Counter("framework.dispatch.errors",
		metric.WithDescription("Number of dispatch rounds that returned an error"),
	); err != nil {
		return nil, err
	}
	if m.stopped, err = meter.Int64Counter("framework.dispatch.stopped",
		metric.WithDescription("Number of dispatch rounds halted by a listener"),
	); err != nil {
		return nil, err
	}
	if m.listenerLatency, err = meter.Float64Histogram("framework.listener.latency_ms",
		metric.WithDescription("Listener latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.listenerErrors, err = meter.Int64Counter("framework.listener.errors",
		metric.WithDescription("Number of listener errors"),
	); err != nil {
		return nil, err
	}
	if m.payloadSize, err = meter.Int64Histogram("framework.codec.size_bytes",
		metric.WithDescription("Wire form size in bytes"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if m.codecErrors, err = meter.Int64Counter("framework.codec.errors",
		metric.WithDescription("Number of failed serialize or restore calls"),
	); err != nil {
		return nil, err
	}
	if m.rejected, err = meter.Int64Counter("framework.codec.rejected",
		metric.WithDescription("Number of inbound payloads refused by the decoder"),
	); err != nil {
		return nil, err
	}
	if m.dropped, err = meter.Int64Counter("framework.bus.dropped",
		metric.WithDescription("Number of events dropped on full buffers"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func (m *otelMetrics) RecordDispatch(ctx context.Context, eventName string, listeners int, stopped bool, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("event", eventName),
		attribute.Bool("heard", listeners > 0),
	)
	m.dispatches.Add(ctx, 1, attrs)
	m.dispatchLatency.Record(ctx, ms(duration), attrs)
	if stopped {
		m.stopped.Add(ctx, 1, attrs)
	}
	if err != nil {
		m.dispatchErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordListener(ctx context.Context, eventName string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("event", eventName))
	m.listenerLatency.Record(ctx, ms(duration), attrs)
	if err != nil {
		m.listenerErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordCodec(ctx context.Context, op string, sizeBytes int, err error) {
	attrs := metric.WithAttributes(attribute.String("op", op))
	if err != nil {
		m.codecErrors.Add(ctx, 1, attrs)
		return
	}
	m.payloadSize.Record(ctx, int64(sizeBytes), attrs)
}

func (m *otelMetrics) RecordRejected(ctx context.Context, source string) {
	m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

func (m *otelMetrics) RecordDropped(ctx context.Context, eventName string) {
	m.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("event", eventName)))
}
