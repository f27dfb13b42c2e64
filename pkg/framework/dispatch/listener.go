package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/glowdan/framework/pkg/framework/event"
	"github.com/glowdan/framework/pkg/framework/observability"
)

// Listener reacts to an event. It may read and modify the event, and may
// call StopPropagation(true) to keep later listeners from running.
type Listener interface {
	Handle(ctx context.Context, evt *event.Event) error
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, evt *event.Event) error

// Handle implements Listener.
func (f ListenerFunc) Handle(ctx context.Context, evt *event.Event) error {
	return f(ctx, evt)
}

// MiddlewareFunc wraps listeners to add cross-cutting concerns.
type MiddlewareFunc func(next Listener) Listener

// Chain applies middleware in order, with the first middleware outermost.
func Chain(l Listener, middleware ...MiddlewareFunc) Listener {
	for i := len(middleware) - 1; i >= 0; i-- {
		l = middleware[i](l)
	}
	return l
}

// RecoveryMiddleware turns a panicking listener into a *PanicError.
func RecoveryMiddleware() MiddlewareFunc {
	return func(next Listener) Listener {
		return ListenerFunc(func(ctx context.Context, evt *event.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &PanicError{Value: r, Stack: debug.Stack()}
				}
			}()
			return next.Handle(ctx, evt)
		})
	}
}

// LoggingMiddleware logs every listener call at debug level and failures
// at error level.
func LoggingMiddleware(logger *slog.Logger) MiddlewareFunc {
	return func(next Listener) Listener {
		if logger == nil {
			return next
		}
		return ListenerFunc(func(ctx context.Context, evt *event.Event) error {
			start := time.Now()
			err := next.Handle(ctx, evt)
			if err != nil {
				observability.LogListenerError(logger, evt.Name(), fmt.Sprintf("%T", next), err)
				return err
			}
			logger.Debug("listener completed",
				slog.String("event", evt.Name()),
				slog.Duration("elapsed", time.Since(start)),
				slog.Bool("stopped", evt.IsPropagationStopped()),
			)
			return nil
		})
	}
}

// MetricsMiddleware records listener latency and errors.
func MetricsMiddleware(recorder observability.MetricsRecorder) MiddlewareFunc {
	return func(next Listener) Listener {
		if recorder == nil {
			return next
		}
		return ListenerFunc(func(ctx context.Context, evt *event.Event) error {
			start := time.Now()
			err := next.Handle(ctx, evt)
			recorder.RecordListener(ctx, evt.Name(), time.Since(start), err)
			return err
		})
	}
}
