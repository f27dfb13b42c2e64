package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/glowdan/framework/pkg/framework/event"
)

func TestCategoryString(t *testing.T) {
	tests := []struct {
		category Category
		expected string
	}{
		{CategoryTransient, "transient"},
		{CategoryPermanent, "permanent"},
		{Category(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.category.String(); got != tt.expected {
				t.Errorf("Category(%d).String() = %s, want %s", tt.category, got, tt.expected)
			}
		})
	}
}

func TestCategorize(t *testing.T) {
	_, nameErr := event.CheckName("x")
	_, decodeErr := event.Decode([]byte{0xd4, 0x2a, 0x00})

	tests := []struct {
		name     string
		err      error
		expected Category
	}{
		{"nil error", nil, CategoryPermanent},
		{"invalid name", nameErr, CategoryPermanent},
		{"rejected payload", decodeErr, CategoryPermanent},
		{"null argument", event.ErrNullArgument, CategoryPermanent},
		{"wrapped malformed", fmt.Errorf("relay: %w", event.ErrMalformed), CategoryPermanent},
		{"canceled", context.Canceled, CategoryPermanent},
		{"deadline", context.DeadlineExceeded, CategoryTransient},
		{"timeout error", &TimeoutError{Op: "publish", Duration: time.Second}, CategoryTransient},
		{"connection error", &ConnectionError{Addr: "localhost:6379", Err: errors.New("refused")}, CategoryTransient},
		{"net op error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("boom")}, CategoryTransient},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), CategoryTransient},
		{"unexpected eof", io.ErrUnexpectedEOF, CategoryTransient},
		{"explicit transient", Transient(errors.New("x"), "op"), CategoryTransient},
		{"explicit permanent", Permanent(&TimeoutError{}, "op"), CategoryPermanent},
		{"unknown", errors.New("unknown"), CategoryPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Categorize(tt.err); got != tt.expected {
				t.Errorf("Categorize() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestCategorizedError(t *testing.T) {
	err := Transient(errors.New("failed"), "relay publish")
	expected := "relay publish: failed (category: transient, attempts: 0)"
	if got := err.Error(); got != expected {
		t.Errorf("Error() = %q, want %q", got, expected)
	}

	bare := &CategorizedError{Err: errors.New("failed"), Category: CategoryPermanent, Attempts: 2}
	expected = "failed (category: permanent, attempts: 2)"
	if got := bare.Error(); got != expected {
		t.Errorf("Error() = %q, want %q", got, expected)
	}

	inner := &TimeoutError{Op: "x"}
	if !errors.Is(Permanent(inner, "op"), inner) {
		t.Error("CategorizedError should unwrap to its cause")
	}

	deadline := &TimeoutError{Op: "listener charge", Duration: time.Second, Err: context.DeadlineExceeded}
	if !errors.Is(deadline, context.DeadlineExceeded) {
		t.Error("TimeoutError should unwrap to its cause")
	}
	if got := deadline.Error(); got != "timeout after 1s: listener charge" {
		t.Errorf("Error() = %q", got)
	}
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, BackoffFactor: 2}
}

func TestWithRetryContext(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		var retried []int
		cfg := fastRetry(3)
		cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

		res := WithRetryContext(context.Background(), cfg, func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", &TimeoutError{Op: "publish"}
			}
			return "ok", nil
		})

		if res.Err != nil {
			t.Fatalf("unexpected error: %v", res.Err)
		}
		if res.Value != "ok" || res.Attempts != 3 {
			t.Errorf("got value %q after %d attempts", res.Value, res.Attempts)
		}
		if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
			t.Errorf("OnRetry saw %v, want [1 2]", retried)
		}
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		res := WithRetryContext(context.Background(), fastRetry(5), func(context.Context) (int, error) {
			calls++
			return 0, event.ErrDecodeRejected
		})

		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
		var catErr *CategorizedError
		if !errors.As(res.Err, &catErr) || catErr.Category != CategoryPermanent {
			t.Fatalf("want permanent CategorizedError, got %v", res.Err)
		}
		if !errors.Is(res.Err, event.ErrDecodeRejected) {
			t.Error("cause lost")
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), fastRetry(3), func(context.Context) error {
			calls++
			return syscall.ECONNRESET
		})

		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
		var catErr *CategorizedError
		if !errors.As(err, &catErr) || catErr.Attempts != 3 {
			t.Fatalf("want CategorizedError with 3 attempts, got %v", err)
		}
	})

	t.Run("respects cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		calls := 0
		err := Retry(ctx, fastRetry(3), func(context.Context) error {
			calls++
			return nil
		})
		if calls != 0 {
			t.Errorf("calls = %d, want 0", calls)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})

	t.Run("cancel during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cfg := RetryConfig{MaxAttempts: 3, InitialBackoff: time.Hour}

		err := Retry(ctx, cfg, func(context.Context) error {
			cancel()
			return &TimeoutError{Op: "x"}
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})

	t.Run("custom retryable", func(t *testing.T) {
		calls := 0
		cfg := fastRetry(2)
		cfg.Retryable = func(error) bool { return true }
		_ = Retry(context.Background(), cfg, func(context.Context) error {
			calls++
			return errors.New("anything")
		})
		if calls != 2 {
			t.Errorf("calls = %d, want 2", calls)
		}
	})
}

func TestJittered(t *testing.T) {
	base := 100 * time.Millisecond
	if got := jittered(base, 0); got != base {
		t.Errorf("no jitter: got %v", got)
	}
	for i := 0; i < 100; i++ {
		got := jittered(base, 0.5)
		if got < 50*time.Millisecond || got > 150*time.Millisecond {
			t.Fatalf("jittered out of range: %v", got)
		}
	}
}

func TestNewRetryConfig(t *testing.T) {
	cfg := NewRetryConfig(
		WithMaxAttempts(7),
		WithBackoff(time.Millisecond, time.Second),
		WithJitter(0),
		WithOnRetry(func(int, error) {}),
	)
	if cfg.MaxAttempts != 7 || cfg.InitialBackoff != time.Millisecond || cfg.MaxBackoff != time.Second {
		t.Errorf("options not applied: %+v", cfg)
	}
	if cfg.Jitter != 0 || cfg.OnRetry == nil {
		t.Errorf("options not applied: %+v", cfg)
	}
	if cfg.BackoffFactor != DefaultRetry.BackoffFactor {
		t.Errorf("BackoffFactor = %v, want default", cfg.BackoffFactor)
	}
}
