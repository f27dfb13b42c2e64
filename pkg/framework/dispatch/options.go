package dispatch

import (
	"log/slog"
	"time"

	"github.com/glowdan/framework/pkg/framework/config"
	"github.com/glowdan/framework/pkg/framework/observability"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(recorder observability.MetricsRecorder) Option {
	return func(d *Dispatcher) {
		if recorder != nil {
			d.metrics = recorder
		}
	}
}

// WithTracing enables OpenTelemetry spans for dispatch rounds and listeners.
func WithTracing() Option {
	return func(d *Dispatcher) { d.spans = observability.NewSpanManager() }
}

// WithSpanManager sets the span manager.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(d *Dispatcher) {
		if sm != nil {
			d.spans = sm
		}
	}
}

// WithMaxDepth bounds recursive dispatch from inside listeners.
// Default: 10.
func WithMaxDepth(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxDepth = n
		}
	}
}

// WithStopOnError controls whether a failing listener ends the chain.
// Default: true. With false, every listener runs and the errors are joined.
func WithStopOnError(stop bool) Option {
	return func(d *Dispatcher) { d.stopOnError = stop }
}

// WithSlowListener logs a warning for listeners running longer than limit.
// Zero disables the check.
func WithSlowListener(limit time.Duration) Option {
	return func(d *Dispatcher) { d.slowListener = limit }
}

// WithSuggestDistance sets the edit distance for "did you mean" hints on
// unheard events. Zero disables suggestions.
func WithSuggestDistance(n int) Option {
	return func(d *Dispatcher) { d.suggestDistance = n }
}

// fromSettings translates the dispatch section of s into options.
func fromSettings(s config.Settings) []Option {
	return []Option{
		WithMaxDepth(s.Dispatch.MaxDepth),
		WithStopOnError(s.Dispatch.StopOnError),
		WithSlowListener(s.Dispatch.SlowListener),
		WithSuggestDistance(s.Dispatch.SuggestDistance),
	}
}

// ListenerOption configures a single registration.
type ListenerOption func(*entry)

// WithPriority orders listeners: higher runs first. Equal priorities run in
// registration order. Default: 0.
func WithPriority(p int) ListenerOption {
	return func(e *entry) { e.priority = p }
}

// WithLabel names the listener in logs and errors.
func WithLabel(label string) ListenerOption {
	return func(e *entry) { e.label = label }
}

// WithTimeout bounds each call of the listener.
func WithTimeout(d time.Duration) ListenerOption {
	return func(e *entry) { e.timeout = d }
}

// DispatchOption configures a single Dispatch call.
type DispatchOption func(*dispatchCall)

type dispatchCall struct {
	target    any
	hasTarget bool
}

// WithTarget sets the event target before the first listener runs.
func WithTarget(target any) DispatchOption {
	return func(c *dispatchCall) {
		c.target = target
		c.hasTarget = true
	}
}
