// Package relay carries events between processes over redis pub/sub.
//
// Events travel in the binary wire form of the event package. Inbound
// payloads go through event.Decode, so a message naming a type outside the
// allow-list is counted, logged and handed to OnReject instead of reaching
// a handler.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/glowdan/framework/pkg/framework/config"
	"github.com/glowdan/framework/pkg/framework/dispatch"
	ferrors "github.com/glowdan/framework/pkg/framework/errors"
	"github.com/glowdan/framework/pkg/framework/event"
	"github.com/glowdan/framework/pkg/framework/observability"
)

// ErrRelayClosed is returned when operating on a closed relay.
var ErrRelayClosed = errors.New("relay closed")

// Handler receives each restored inbound event.
type Handler func(ctx context.Context, evt *event.Event) error

// Config configures a Relay.
type Config struct {
	// Addr is the redis address, host:port.
	Addr string

	// Channel is the pub/sub channel events are published on.
	Channel string

	// Retry governs Publish. Only transient failures are retried.
	Retry ferrors.RetryConfig

	// OnReject is called for every inbound payload that cannot be restored.
	OnReject func(payload []byte, err error)

	// DeadLetters, when set, parks rejected payloads and queues events
	// the handler failed.
	DeadLetters *dispatch.DeadLetters

	Logger  *slog.Logger
	Metrics observability.MetricsRecorder
}

// ConfigFromSettings builds a Config from the relay section of s.
func ConfigFromSettings(s config.Settings) Config {
	retry := ferrors.NewRetryConfig(
		ferrors.WithMaxAttempts(s.Relay.Retries+1),
		ferrors.WithBackoff(s.Relay.Backoff, ferrors.DefaultRetry.MaxBackoff),
	)
	return Config{
		Addr:    s.Relay.Addr,
		Channel: s.Relay.Channel,
		Retry:   retry,
	}
}

// Relay publishes events to a redis channel and subscribes to it.
type Relay struct {
	client     *redis.Client
	ownsClient bool
	config     Config
	metrics    observability.MetricsRecorder

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
	wg     sync.WaitGroup
}

// New connects lazily to cfg.Addr.
//
// The client's own command retries are disabled; Publish retries through
// cfg.Retry instead.
func New(cfg Config) *Relay {
	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr,
		MaxRetries: -1,
	})
	r := NewWithClient(client, cfg)
	r.ownsClient = true
	return r
}

// NewWithClient uses an existing client. Close leaves the client open.
func NewWithClient(client *redis.Client, cfg Config) *Relay {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = ferrors.DefaultRetry
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Relay{
		client:  client,
		config:  cfg,
		metrics: metrics,
		subs:    make(map[*Subscription]struct{}),
	}
}

// Channel returns the pub/sub channel.
func (r *Relay) Channel() string {
	return r.config.Channel
}

// Publish serializes evt and publishes it, retrying transient failures.
// A failed publish returns a *errors.CategorizedError; network failures
// inside it are *errors.ConnectionError.
func (r *Relay) Publish(ctx context.Context, evt *event.Event) error {
	if evt == nil {
		return event.ErrNullArgument
	}
	if r.isClosed() {
		return ErrRelayClosed
	}

	payload, err := evt.Serialize()
	r.metrics.RecordCodec(ctx, "serialize", len(payload), err)
	if err != nil {
		return err
	}

	retry := r.config.Retry
	onRetry := retry.OnRetry
	retry.OnRetry = func(attempt int, err error) {
		observability.LogRelayError(r.config.Logger, r.config.Channel, fmt.Sprintf("publish attempt %d", attempt), err)
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}

	err = ferrors.Retry(ctx, retry, func(ctx context.Context) error {
		err := r.client.Publish(ctx, r.config.Channel, payload).Err()
		var netErr net.Error
		if errors.As(err, &netErr) {
			return &ferrors.ConnectionError{Addr: r.config.Addr, Err: err}
		}
		return err
	})
	if err != nil {
		observability.LogRelayError(r.config.Logger, r.config.Channel, "publish", err)
		return err
	}
	return nil
}

// Subscription is an active relay subscription.
type Subscription struct {
	pubsub *redis.PubSub
	done   chan struct{}
	once   sync.Once
	relay  *Relay
}

// Subscribe receives events from the channel and passes each restored
// event to fn until ctx ends or the subscription is closed. It returns once
// redis has confirmed the subscription.
//
// Handler errors are logged and do not end the subscription.
func (r *Relay) Subscribe(ctx context.Context, fn Handler) (*Subscription, error) {
	if fn == nil {
		return nil, event.ErrNullArgument
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRelayClosed
	}

	pubsub := r.client.Subscribe(ctx, r.config.Channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		observability.LogRelayError(r.config.Logger, r.config.Channel, "subscribe", err)
		return nil, fmt.Errorf("subscribe %s: %w", r.config.Channel, err)
	}

	sub := &Subscription{
		pubsub: pubsub,
		done:   make(chan struct{}),
		relay:  r,
	}
	r.subs[sub] = struct{}{}

	r.wg.Add(1)
	go sub.run(ctx, fn)

	return sub, nil
}

// SubscribeTo is Subscribe with a dispatch.Listener, typically a
// *dispatch.Dispatcher or a local *dispatch.Bus feed.
func (r *Relay) SubscribeTo(ctx context.Context, l dispatch.Listener) (*Subscription, error) {
	if l == nil {
		return nil, event.ErrNullArgument
	}
	return r.Subscribe(ctx, l.Handle)
}

func (s *Subscription) run(ctx context.Context, fn Handler) {
	r := s.relay
	defer r.wg.Done()
	defer s.Close()

	messages := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			s.handle(ctx, []byte(msg.Payload), fn)
		}
	}
}

func (s *Subscription) handle(ctx context.Context, payload []byte, fn Handler) {
	r := s.relay
	evt, err := event.Decode(payload)
	r.metrics.RecordCodec(ctx, "restore", len(payload), err)
	if err != nil {
		r.metrics.RecordRejected(ctx, "relay")
		observability.LogRelayReject(r.config.Logger, r.config.Channel, len(payload), err)
		if r.config.DeadLetters != nil {
			r.config.DeadLetters.Park("relay:"+r.config.Channel, "", payload, err.Error())
		}
		if r.config.OnReject != nil {
			r.config.OnReject(payload, err)
		}
		return
	}

	if err := fn(ctx, evt); err != nil {
		source := "relay:" + r.config.Channel
		observability.LogListenerError(r.config.Logger, evt.Name(), source, err)
		if r.config.DeadLetters == nil {
			return
		}
		if _, dlErr := r.config.DeadLetters.Add(source, evt.Name(), payload, err); dlErr != nil {
			r.metrics.RecordDropped(ctx, evt.Name())
			observability.LogRelayError(r.config.Logger, r.config.Channel, "dead-letter "+evt.Name(), dlErr)
		}
	}
}

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()

		r := s.relay
		r.mu.Lock()
		delete(r.subs, s)
		r.mu.Unlock()
	})
	return err
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (r *Relay) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close ends every subscription, waits for their goroutines and, for a
// relay built by New, closes the redis client.
func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	subs := make([]*Subscription, 0, len(r.subs))
	for sub := range r.subs {
		subs = append(subs, sub)
	}
	r.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.wg.Wait()

	if r.ownsClient {
		if err := r.client.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
