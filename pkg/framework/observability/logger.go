// Package observability provides structured logging, metrics and tracing
// for event dispatch, the replay journal and the relay.
//
// Features:
//   - Structured logging via slog
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in. Logging helpers accept a nil logger, and
// NoopMetrics and NoopSpanManager stand in when metrics or tracing are off.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger tags every record of a dispatch round with its ID and
// nesting depth. The helpers below add the event name themselves.
//
//	logger = EnrichLogger(logger, "d-123", 1)
//	LogListenerError(logger, "order.created", "#0", err) // includes dispatch_id, depth
func EnrichLogger(logger *slog.Logger, dispatchID string, depth int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("dispatch_id", dispatchID),
		slog.Int("depth", depth),
	)
}

// LogDispatchStart logs the start of a dispatch round.
func LogDispatchStart(logger *slog.Logger, eventName string, listeners int) {
	if logger == nil {
		return
	}
	logger.Debug("dispatch starting",
		slog.String("event", eventName),
		slog.Int("listeners", listeners),
	)
}

// LogDispatchComplete logs the end of a dispatch round.
func LogDispatchComplete(logger *slog.Logger, eventName string, elapsed time.Duration, called int, stopped bool) {
	if logger == nil {
		return
	}
	logger.Debug("dispatch completed",
		slog.String("event", eventName),
		slog.Float64("duration_ms", Milliseconds(elapsed)),
		slog.Int("listeners_called", called),
		slog.Bool("stopped", stopped),
	)
}

// LogPropagationStopped logs a listener halting the chain.
func LogPropagationStopped(logger *slog.Logger, eventName, listener string, skipped int) {
	if logger == nil {
		return
	}
	logger.Debug("propagation stopped",
		slog.String("event", eventName),
		slog.String("listener", listener),
		slog.Int("skipped", skipped),
	)
}

// LogListenerError logs a failing listener.
func LogListenerError(logger *slog.Logger, eventName, listener string, err error) {
	if logger == nil {
		return
	}
	logger.Error("listener failed",
		slog.String("event", eventName),
		slog.String("listener", listener),
		slog.String("error", err.Error()),
	)
}

// LogSlowListener logs a listener that ran longer than the configured limit.
func LogSlowListener(logger *slog.Logger, eventName, listener string, elapsed time.Duration) {
	if logger == nil {
		return
	}
	logger.Warn("slow listener",
		slog.String("event", eventName),
		slog.String("listener", listener),
		slog.Duration("elapsed", elapsed),
	)
}

// LogUnheard logs a dispatch that reached no listener.
func LogUnheard(logger *slog.Logger, eventName string, suggestions []string) {
	if logger == nil {
		return
	}
	attrs := []any{slog.String("event", eventName)}
	if len(suggestions) > 0 {
		attrs = append(attrs, slog.Any("did_you_mean", suggestions))
	}
	logger.Debug("event has no listeners", attrs...)
}

// LogBusDrop logs an event dropped because a subscription buffer was full.
func LogBusDrop(logger *slog.Logger, eventName, subscription string) {
	if logger == nil {
		return
	}
	logger.Warn("event dropped",
		slog.String("event", eventName),
		slog.String("subscription", subscription),
	)
}

// LogJournalAppend logs an entry written to the journal.
func LogJournalAppend(logger *slog.Logger, stream, entryID string, seq int64, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("journal entry appended",
		slog.String("stream", stream),
		slog.String("entry_id", entryID),
		slog.Int64("seq", seq),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogJournalError logs a failed journal operation.
func LogJournalError(logger *slog.Logger, stream, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("journal operation failed",
		slog.String("stream", stream),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// LogRelayError logs a failed relay operation.
func LogRelayError(logger *slog.Logger, channel, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("relay operation failed",
		slog.String("channel", channel),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// LogRelayReject logs an inbound payload refused by the decoder.
func LogRelayReject(logger *slog.Logger, channel string, sizeBytes int, err error) {
	if logger == nil {
		return
	}
	logger.Warn("relay payload rejected",
		slog.String("channel", channel),
		slog.Int("size_bytes", sizeBytes),
		slog.String("error", err.Error()),
	)
}

// TimedOperation starts a clock. The returned func reports the time since.
func TimedOperation() func() time.Duration {
	start := time.Now()
	return func() time.Duration { return time.Since(start) }
}

// Milliseconds converts d to fractional milliseconds for log attributes.
func Milliseconds(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
