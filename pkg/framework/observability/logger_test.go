package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogger returns a JSON logger at debug level writing into buf.
func captureLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// records decodes every JSON line in buf.
func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func TestEnrichLogger(t *testing.T) {
	assert.Nil(t, EnrichLogger(nil, "d-1", 0))

	logger, buf := captureLogger()
	LogListenerError(EnrichLogger(logger, "d-1", 2), "order.created", "#0", errors.New("boom"))

	recs := records(t, buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "order.created", recs[0]["event"])
	assert.Equal(t, "d-1", recs[0]["dispatch_id"])
	assert.Equal(t, float64(2), recs[0]["depth"])
}

func TestLogHelpers(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name  string
		log   func(*slog.Logger)
		msg   string
		level string
		attrs map[string]any
	}{
		{
			name:  "dispatch start",
			log:   func(l *slog.Logger) { LogDispatchStart(l, "order.created", 3) },
			msg:   "dispatch starting",
			level: "DEBUG",
			attrs: map[string]any{"event": "order.created", "listeners": float64(3)},
		},
		{
			name:  "dispatch complete",
			log:   func(l *slog.Logger) { LogDispatchComplete(l, "order.created", 1500*time.Microsecond, 2, true) },
			msg:   "dispatch completed",
			level: "DEBUG",
			attrs: map[string]any{"listeners_called": float64(2), "stopped": true, "duration_ms": 1.5},
		},
		{
			name:  "propagation stopped",
			log:   func(l *slog.Logger) { LogPropagationStopped(l, "order.created", "#0", 4) },
			msg:   "propagation stopped",
			level: "DEBUG",
			attrs: map[string]any{"listener": "#0", "skipped": float64(4)},
		},
		{
			name:  "listener error",
			log:   func(l *slog.Logger) { LogListenerError(l, "order.created", "#1", boom) },
			msg:   "listener failed",
			level: "ERROR",
			attrs: map[string]any{"error": "boom"},
		},
		{
			name:  "slow listener",
			log:   func(l *slog.Logger) { LogSlowListener(l, "order.created", "#1", time.Second) },
			msg:   "slow listener",
			level: "WARN",
			attrs: map[string]any{"listener": "#1"},
		},
		{
			name:  "unheard with suggestions",
			log:   func(l *slog.Logger) { LogUnheard(l, "order.craeted", []string{"order.created"}) },
			msg:   "event has no listeners",
			level: "DEBUG",
			attrs: map[string]any{"did_you_mean": []any{"order.created"}},
		},
		{
			name:  "bus drop",
			log:   func(l *slog.Logger) { LogBusDrop(l, "order.created", "audit") },
			msg:   "event dropped",
			level: "WARN",
			attrs: map[string]any{"subscription": "audit"},
		},
		{
			name:  "journal append",
			log:   func(l *slog.Logger) { LogJournalAppend(l, "orders", "e-1", 7, 42) },
			msg:   "journal entry appended",
			level: "DEBUG",
			attrs: map[string]any{"stream": "orders", "seq": float64(7), "size_bytes": float64(42)},
		},
		{
			name:  "journal error",
			log:   func(l *slog.Logger) { LogJournalError(l, "orders", "append", boom) },
			msg:   "journal operation failed",
			level: "WARN",
			attrs: map[string]any{"operation": "append", "error": "boom"},
		},
		{
			name:  "relay error",
			log:   func(l *slog.Logger) { LogRelayError(l, "events", "publish", boom) },
			msg:   "relay operation failed",
			level: "WARN",
			attrs: map[string]any{"channel": "events", "operation": "publish"},
		},
		{
			name:  "relay reject",
			log:   func(l *slog.Logger) { LogRelayReject(l, "events", 12, boom) },
			msg:   "relay payload rejected",
			level: "WARN",
			attrs: map[string]any{"size_bytes": float64(12)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() { tt.log(nil) }, "nil logger must be a no-op")

			logger, buf := captureLogger()
			tt.log(logger)

			recs := records(t, buf)
			require.Len(t, recs, 1)
			assert.Equal(t, tt.msg, recs[0]["msg"])
			assert.Equal(t, tt.level, recs[0]["level"])
			for k, v := range tt.attrs {
				assert.Equal(t, v, recs[0][k], k)
			}
		})
	}
}

func TestLogUnheard_NoSuggestions(t *testing.T) {
	logger, buf := captureLogger()
	LogUnheard(logger, "lonely.event", nil)

	recs := records(t, buf)
	require.Len(t, recs, 1)
	_, ok := recs[0]["did_you_mean"]
	assert.False(t, ok)
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, done(), 5*time.Millisecond)
	assert.Equal(t, 2.5, Milliseconds(2500*time.Microsecond))
}

func TestLogHelpers_RespectLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	LogDispatchStart(logger, "order.created", 1)
	assert.Empty(t, buf.String())

	LogListenerError(logger, "order.created", "#0", errors.New("x"))
	assert.NotEmpty(t, buf.String())
}
