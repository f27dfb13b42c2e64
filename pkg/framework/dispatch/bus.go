package dispatch

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/glowdan/framework/pkg/framework/event"
	"github.com/glowdan/framework/pkg/framework/observability"
)

// BusConfig configures bus behavior.
type BusConfig struct {
	// BufferSize is the channel buffer size per subscription.
	// Default: 256
	BufferSize int

	// MaxSubscribers limits total subscriptions.
	// Default: 0 (unlimited)
	MaxSubscribers int

	// NonBlocking makes Publish drop events for subscriptions whose buffer
	// is full instead of waiting.
	NonBlocking bool

	// OnDrop is called when an event is dropped in non-blocking mode.
	OnDrop func(eventName, subscriptionID string)

	// OnError is called when a listener returns an error. A listener that
	// panics is recovered and reported here as a *PanicError.
	OnError func(evt *event.Event, subscriptionID string, err error)

	// DeadLetters, when set, keeps every failed delivery for Redeliver.
	DeadLetters *DeadLetters

	Logger  *slog.Logger
	Metrics observability.MetricsRecorder
}

// DefaultBusConfig provides reasonable defaults.
var DefaultBusConfig = BusConfig{
	BufferSize: 256,
}

// Bus delivers events to subscriptions asynchronously.
//
// Publish serializes the event once; each subscription goroutine restores
// its own copy from those bytes, so listeners on different subscriptions
// never share an *event.Event. The target does not travel and is nil on
// delivered copies.
type Bus struct {
	config  BusConfig
	metrics observability.MetricsRecorder

	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	byName        map[string]map[string]*Subscription
	wildcards     map[string]*Subscription

	nextID  atomic.Int64
	closed  atomic.Bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewBus creates a bus.
func NewBus(config BusConfig) *Bus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBusConfig.BufferSize
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}

	return &Bus{
		config:        config,
		metrics:       metrics,
		subscriptions: make(map[string]*Subscription),
		byName:        make(map[string]map[string]*Subscription),
		wildcards:     make(map[string]*Subscription),
		closeCh:       make(chan struct{}),
	}
}

// delivery is one published event in wire form.
type delivery struct {
	ctx     context.Context
	name    string
	payload []byte
}

// Subscription is an active subscription on a Bus.
type Subscription struct {
	id       string
	names    []string // empty = all events
	listener Listener
	events   chan delivery
	paused   atomic.Bool
	drain    atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
	bus      *Bus
}

// Subscribe delivers events called any of names to l. Names are checked
// with event.CheckName. With no names, l receives every event.
func (b *Bus) Subscribe(names []string, l Listener) (*Subscription, error) {
	checked := make([]string, 0, len(names))
	for _, name := range names {
		n, err := event.CheckName(name)
		if err != nil {
			return nil, err
		}
		checked = append(checked, n)
	}
	return b.subscribe(checked, l)
}

// SubscribeAll delivers every event to l.
func (b *Bus) SubscribeAll(l Listener) (*Subscription, error) {
	return b.subscribe(nil, l)
}

func (b *Bus) subscribe(names []string, l Listener) (*Subscription, error) {
	if l == nil {
		return nil, event.ErrNullArgument
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	if b.config.MaxSubscribers > 0 && len(b.subscriptions) >= b.config.MaxSubscribers {
		return nil, ErrTooManySubscribers
	}

	sub := &Subscription{
		id:       "sub-" + strconv.FormatInt(b.nextID.Add(1), 10),
		names:    names,
		listener: Chain(l, RecoveryMiddleware()),
		events:   make(chan delivery, b.config.BufferSize),
		done:     make(chan struct{}),
		bus:      b,
	}

	b.subscriptions[sub.id] = sub
	if len(names) == 0 {
		b.wildcards[sub.id] = sub
	} else {
		for _, n := range names {
			if b.byName[n] == nil {
				b.byName[n] = make(map[string]*Subscription)
			}
			b.byName[n][sub.id] = sub
		}
	}

	b.wg.Add(1)
	go sub.process()

	return sub, nil
}

// Publish hands evt to every matching subscription that is not paused.
//
// In blocking mode Publish waits for buffer space and returns early when
// ctx ends or the bus closes. Serialization errors are returned before
// anything is queued.
func (b *Bus) Publish(ctx context.Context, evt *event.Event) error {
	if evt == nil {
		return event.ErrNullArgument
	}
	if b.closed.Load() {
		return ErrBusClosed
	}
	name := evt.Name()
	if name == "" {
		return ErrUnnamedEvent
	}

	payload, err := evt.Serialize()
	b.metrics.RecordCodec(ctx, "serialize", len(payload), err)
	if err != nil {
		return err
	}

	b.mu.RLock()
	subs := b.matching(name)
	b.mu.RUnlock()

	d := delivery{ctx: context.WithoutCancel(ctx), name: name, payload: payload}
	for _, sub := range subs {
		if sub.paused.Load() {
			continue
		}

		if b.config.NonBlocking {
			select {
			case sub.events <- d:
			default:
				b.metrics.RecordDropped(ctx, name)
				observability.LogBusDrop(b.config.Logger, name, sub.id)
				if b.config.OnDrop != nil {
					b.config.OnDrop(name, sub.id)
				}
			}
			continue
		}

		select {
		case sub.events <- d:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		case <-b.closeCh:
			return ErrBusClosed
		}
	}

	return nil
}

// matching must be called with b.mu held.
func (b *Bus) matching(name string) []*Subscription {
	subs := make([]*Subscription, 0, len(b.byName[name])+len(b.wildcards))
	for _, sub := range b.byName[name] {
		subs = append(subs, sub)
	}
	for _, sub := range b.wildcards {
		subs = append(subs, sub)
	}
	return subs
}

// Close stops accepting events, lets every subscription finish what is
// already buffered and waits for their goroutines to exit.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(b.closeCh)

	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.drain.Store(true)
		sub.stop()
	}
	b.wg.Wait()
	return nil
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// ID returns the subscription identifier used in logs and callbacks.
func (s *Subscription) ID() string {
	return s.id
}

func (s *Subscription) process() {
	defer s.bus.wg.Done()
	for {
		select {
		case d := <-s.events:
			s.deliver(d)
		case <-s.done:
			if s.drain.Load() {
				for {
					select {
					case d := <-s.events:
						s.deliver(d)
					default:
						return
					}
				}
			}
			return
		}
	}
}

func (s *Subscription) deliver(d delivery) {
	b := s.bus
	evt, err := event.Decode(d.payload)
	b.metrics.RecordCodec(d.ctx, "restore", len(d.payload), err)
	if err == nil {
		err = s.listener.Handle(d.ctx, evt)
	}
	if err == nil {
		return
	}

	observability.LogListenerError(b.config.Logger, d.name, s.id, err)
	if b.config.DeadLetters != nil {
		if _, dlErr := b.config.DeadLetters.Add(s.id, d.name, d.payload, err); dlErr != nil {
			b.metrics.RecordDropped(d.ctx, d.name)
			observability.LogBusDrop(b.config.Logger, d.name, s.id)
		}
	}
	if b.config.OnError != nil {
		b.config.OnError(evt, s.id, err)
	}
}

func (s *Subscription) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// Unsubscribe removes the subscription. Events still buffered may be
// discarded; an event being handled finishes first.
func (s *Subscription) Unsubscribe() {
	b := s.bus
	b.mu.Lock()
	delete(b.subscriptions, s.id)
	delete(b.wildcards, s.id)
	for _, n := range s.names {
		if subs, ok := b.byName[n]; ok {
			delete(subs, s.id)
			if len(subs) == 0 {
				delete(b.byName, n)
			}
		}
	}
	b.mu.Unlock()

	s.stop()
}

// Pause stops delivery of new events. Events published while paused are
// skipped, not queued. Events already buffered are still delivered.
func (s *Subscription) Pause() {
	s.paused.Store(true)
}

// Resume continues delivery after Pause.
func (s *Subscription) Resume() {
	s.paused.Store(false)
}

// IsPaused reports whether the subscription is paused.
func (s *Subscription) IsPaused() bool {
	return s.paused.Load()
}
