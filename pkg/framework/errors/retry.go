package errors

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, the first included.
	MaxAttempts int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// BackoffFactor multiplies the backoff after each failed attempt.
	BackoffFactor float64

	// Jitter spreads each sleep by up to this fraction either way (0.0-1.0).
	Jitter float64

	// Retryable overrides IsRetryable.
	Retryable func(error) bool

	// OnRetry is called before each sleep with the failed attempt number
	// (1-based) and its error.
	OnRetry func(attempt int, err error)
}

// DefaultRetry suits a broker round trip.
var DefaultRetry = RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: 200 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// NoRetry makes a single attempt.
var NoRetry = RetryConfig{
	MaxAttempts: 1,
}

// RetryResult is the outcome of WithRetryContext.
type RetryResult[T any] struct {
	Value    T
	Err      error
	Attempts int
	Duration time.Duration
}

// WithRetryContext calls fn until it succeeds, fails permanently, runs out
// of attempts or ctx ends. A failed result always carries a
// *CategorizedError.
func WithRetryContext[T any](
	ctx context.Context,
	cfg RetryConfig,
	fn func(context.Context) (T, error),
) RetryResult[T] {
	start := time.Now()
	attempts := max(cfg.MaxAttempts, 1)
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	result := func(v T, err error, n int) RetryResult[T] {
		return RetryResult[T]{Value: v, Err: err, Attempts: n, Duration: time.Since(start)}
	}

	var zero T
	backoff := cfg.InitialBackoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return result(zero, &CategorizedError{Err: err, Category: CategoryPermanent, Attempts: attempt - 1, Op: "context done"}, attempt-1)
		}

		v, err := fn(ctx)
		if err == nil {
			return result(v, nil, attempt)
		}

		if !retryable(err) {
			return result(zero, &CategorizedError{Err: err, Category: CategoryPermanent, Attempts: attempt}, attempt)
		}
		if attempt >= attempts {
			return result(zero, &CategorizedError{Err: err, Category: CategoryTransient, Attempts: attempt, Op: "max retries exceeded"}, attempt)
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		timer := time.NewTimer(jittered(backoff, cfg.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return result(zero, &CategorizedError{Err: ctx.Err(), Category: CategoryPermanent, Attempts: attempt, Op: "context done during backoff"}, attempt)
		case <-timer.C:
		}

		if cfg.BackoffFactor > 0 {
			backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
		}
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
}

// Retry is WithRetryContext for functions without a result value.
func Retry(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) error {
	return WithRetryContext(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}).Err
}

// jittered returns base spread by up to jitter in either direction.
func jittered(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || base <= 0 {
		return base
	}
	spread := float64(base) * jitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + spread)
}

// RetryOption adjusts a RetryConfig.
type RetryOption func(*RetryConfig)

// WithMaxAttempts sets the maximum number of attempts.
func WithMaxAttempts(n int) RetryOption {
	return func(cfg *RetryConfig) { cfg.MaxAttempts = n }
}

// WithBackoff sets the initial and maximum backoff.
func WithBackoff(initial, maxBackoff time.Duration) RetryOption {
	return func(cfg *RetryConfig) {
		cfg.InitialBackoff = initial
		cfg.MaxBackoff = maxBackoff
	}
}

// WithJitter sets the jitter factor.
func WithJitter(j float64) RetryOption {
	return func(cfg *RetryConfig) { cfg.Jitter = j }
}

// WithOnRetry installs a hook called before each backoff sleep.
func WithOnRetry(fn func(attempt int, err error)) RetryOption {
	return func(cfg *RetryConfig) { cfg.OnRetry = fn }
}

// NewRetryConfig starts from DefaultRetry and applies opts.
func NewRetryConfig(opts ...RetryOption) RetryConfig {
	cfg := DefaultRetry
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
