package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/glowdan/framework/pkg/framework/config"
	ferrors "github.com/glowdan/framework/pkg/framework/errors"
	"github.com/glowdan/framework/pkg/framework/event"
	"github.com/glowdan/framework/pkg/framework/observability"
)

const (
	defaultMaxDepth        = 10
	defaultSuggestDistance = 3
	maxSuggestions         = 3
)

// ListenerID identifies one registration for Remove.
type ListenerID uint64

// entry is one registered listener.
type entry struct {
	id       ListenerID
	label    string
	listener Listener
	priority int
	timeout  time.Duration
}

// Dispatcher hands events to the listeners registered for their name.
//
// Listeners for a name, together with the wildcard listeners added by
// OnAny, run one after another in priority order on the caller's goroutine.
// They share the same *event.Event. After each listener the dispatcher
// checks IsPropagationStopped and skips the rest of the chain when set.
//
// Dispatcher is safe for concurrent use; registration may happen while
// other goroutines dispatch.
type Dispatcher struct {
	logger          *slog.Logger
	metrics         observability.MetricsRecorder
	spans           observability.SpanManager
	maxDepth        int
	stopOnError     bool
	slowListener    time.Duration
	suggestDistance int

	mu         sync.RWMutex
	byName     map[string][]entry
	wildcards  []entry
	middleware []MiddlewareFunc
	nextID     ListenerID
}

// New creates a dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		metrics:         observability.NoopMetrics{},
		spans:           observability.NoopSpanManager{},
		maxDepth:        defaultMaxDepth,
		stopOnError:     true,
		suggestDistance: defaultSuggestDistance,
		byName:          make(map[string][]entry),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewFromSettings creates a dispatcher from the dispatch section of s.
// opts are applied after the settings and win over them.
func NewFromSettings(s config.Settings, opts ...Option) *Dispatcher {
	return New(append(fromSettings(s), opts...)...)
}

// Use adds middleware that wraps listeners registered after the call.
func (d *Dispatcher) Use(middleware ...MiddlewareFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.middleware = append(d.middleware, middleware...)
}

// On registers l for events called name. The name goes through
// event.CheckName, so " order.created " and "order.created" are the same
// registration key.
func (d *Dispatcher) On(name string, l Listener, opts ...ListenerOption) (ListenerID, error) {
	checked, err := event.CheckName(name)
	if err != nil {
		return 0, err
	}
	if l == nil {
		return 0, event.ErrNullArgument
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	e := d.newEntry(l, opts)
	d.byName[checked] = insertByPriority(d.byName[checked], e)
	return e.id, nil
}

// OnAny registers l for every event.
func (d *Dispatcher) OnAny(l Listener, opts ...ListenerOption) (ListenerID, error) {
	if l == nil {
		return 0, event.ErrNullArgument
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	e := d.newEntry(l, opts)
	d.wildcards = insertByPriority(d.wildcards, e)
	return e.id, nil
}

// newEntry must be called with d.mu held.
func (d *Dispatcher) newEntry(l Listener, opts []ListenerOption) entry {
	d.nextID++
	e := entry{id: d.nextID, listener: l}
	for _, opt := range opts {
		opt(&e)
	}
	if e.label == "" {
		e.label = fmt.Sprintf("%T#%d", l, e.id)
	}
	e.listener = Chain(e.listener, d.middleware...)
	return e
}

// insertByPriority returns a new slice sorted by descending priority with e
// placed after existing entries of the same priority. Slices handed out by
// chain are never modified in place.
func insertByPriority(list []entry, e entry) []entry {
	i, _ := slices.BinarySearchFunc(list, e.priority, func(x entry, p int) int {
		if x.priority >= p {
			return -1
		}
		return 1
	})
	out := make([]entry, 0, len(list)+1)
	out = append(out, list[:i]...)
	out = append(out, e)
	return append(out, list[i:]...)
}

// Off removes every listener registered for name and reports how many
// were removed.
func (d *Dispatcher) Off(name string) int {
	checked, err := event.CheckName(name)
	if err != nil {
		return 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.byName[checked])
	delete(d.byName, checked)
	return n
}

// Remove deletes a single registration.
func (d *Dispatcher) Remove(id ListenerID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	match := func(e entry) bool { return e.id == id }
	for name, list := range d.byName {
		if i := slices.IndexFunc(list, match); i >= 0 {
			list = slices.Delete(slices.Clone(list), i, i+1)
			if len(list) == 0 {
				delete(d.byName, name)
			} else {
				d.byName[name] = list
			}
			return true
		}
	}
	if i := slices.IndexFunc(d.wildcards, match); i >= 0 {
		d.wildcards = slices.Delete(slices.Clone(d.wildcards), i, i+1)
		return true
	}
	return false
}

// HasListeners reports whether a dispatch of name would reach any listener,
// wildcards included.
func (d *Dispatcher) HasListeners(name string) bool {
	checked, err := event.CheckName(name)
	if err != nil {
		return false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byName[checked]) > 0 || len(d.wildcards) > 0
}

// Names returns the sorted event names that have named listeners.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.byName))
	for name := range d.byName {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// chain snapshots the listeners for name: named and wildcard entries merged
// by priority, named first on ties.
func (d *Dispatcher) chain(name string) []entry {
	d.mu.RLock()
	named := d.byName[name]
	wild := d.wildcards
	d.mu.RUnlock()

	out := make([]entry, 0, len(named)+len(wild))
	i, j := 0, 0
	for i < len(named) && j < len(wild) {
		if wild[j].priority > named[i].priority {
			out = append(out, wild[j])
			j++
		} else {
			out = append(out, named[i])
			i++
		}
	}
	out = append(out, named[i:]...)
	return append(out, wild[j:]...)
}

// Trigger builds an event from name and params and dispatches it with
// target set.
func (d *Dispatcher) Trigger(ctx context.Context, name string, params event.Params, target any) (*event.Event, error) {
	evt, err := event.New(name, params)
	if err != nil {
		return nil, err
	}
	return d.Dispatch(ctx, evt, WithTarget(target))
}

// Handle dispatches evt, so a Dispatcher can itself serve as a Listener,
// e.g. behind a Bus subscription.
func (d *Dispatcher) Handle(ctx context.Context, evt *event.Event) error {
	_, err := d.Dispatch(ctx, evt)
	return err
}

// Dispatch runs the listener chain for evt and returns evt, with whatever
// changes the listeners made to it.
//
// The propagation flag is checked after each listener. An event that is
// already stopped when Dispatch is called reaches no listener.
//
// A listener error ends the chain and comes back as a *ListenerError. With
// WithStopOnError(false) the remaining listeners still run and all errors
// are joined.
func (d *Dispatcher) Dispatch(ctx context.Context, evt *event.Event, opts ...DispatchOption) (*event.Event, error) {
	if evt == nil {
		return nil, event.ErrNullArgument
	}
	name := evt.Name()
	if name == "" {
		return evt, ErrUnnamedEvent
	}

	depth := Depth(ctx)
	if depth >= d.maxDepth {
		return evt, fmt.Errorf("%w: %s at depth %d (limit %d)", ErrMaxDepth, name, depth, d.maxDepth)
	}

	var call dispatchCall
	for _, opt := range opts {
		opt(&call)
	}
	if call.hasTarget {
		evt.SetTarget(call.target)
	}

	dispatchID := uuid.NewString()
	ctx = withDispatchDepth(ctx, depth+1)
	ctx, span := d.spans.StartDispatchSpan(ctx, name, dispatchID)
	done := observability.TimedOperation()
	logger := observability.EnrichLogger(d.logger, dispatchID, depth+1)

	entries := d.chain(name)
	observability.LogDispatchStart(logger, name, len(entries))
	if len(entries) == 0 {
		d.logUnheard(logger, name)
	}

	called, err := d.run(ctx, logger, evt, entries)

	elapsed := done()
	stopped := evt.IsPropagationStopped()
	d.metrics.RecordDispatch(ctx, name, len(entries), stopped, elapsed, err)
	d.spans.EndSpanWithError(span, err)
	observability.LogDispatchComplete(logger, name, elapsed, called, stopped)

	return evt, err
}

// run invokes entries in order and returns how many were called.
func (d *Dispatcher) run(ctx context.Context, logger *slog.Logger, evt *event.Event, entries []entry) (int, error) {
	if evt.IsPropagationStopped() {
		return 0, nil
	}

	name := evt.Name()
	var errs []error
	called := 0

	for i, e := range entries {
		called++
		if err := d.invoke(ctx, logger, evt, i, e); err != nil {
			lerr := &ListenerError{Event: name, Listener: e.label, Index: i, Err: err}
			observability.LogListenerError(logger, name, e.label, err)
			if d.stopOnError {
				return called, lerr
			}
			errs = append(errs, lerr)
		}

		if evt.IsPropagationStopped() {
			skipped := len(entries) - i - 1
			observability.LogPropagationStopped(logger, name, e.label, skipped)
			d.spans.AddSpanEvent(ctx, "propagation.stopped",
				attribute.Int("listener.index", i),
				attribute.Int("skipped", skipped),
			)
			break
		}
	}

	return called, errors.Join(errs...)
}

// invoke runs one listener. When the listener's own deadline expires, its
// error comes back as a *errors.TimeoutError.
func (d *Dispatcher) invoke(ctx context.Context, logger *slog.Logger, evt *event.Event, index int, e entry) error {
	ctx, span := d.spans.StartListenerSpan(ctx, evt.Name(), index)
	parent := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	err := e.listener.Handle(ctx, evt)
	elapsed := time.Since(start)

	if err != nil && e.timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		err = &ferrors.TimeoutError{Op: "listener " + e.label, Duration: e.timeout, Err: err}
	}

	d.metrics.RecordListener(ctx, evt.Name(), elapsed, err)
	d.spans.EndSpanWithError(span, err)
	if d.slowListener > 0 && elapsed > d.slowListener {
		observability.LogSlowListener(logger, evt.Name(), e.label, elapsed)
	}
	return err
}

func (d *Dispatcher) logUnheard(logger *slog.Logger, name string) {
	if logger == nil || !logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	observability.LogUnheard(logger, name, d.Suggest(name))
}

// Suggest returns up to three registered names within the configured edit
// distance of name, closest first.
func (d *Dispatcher) Suggest(name string) []string {
	if d.suggestDistance <= 0 {
		return nil
	}

	type candidate struct {
		name string
		dist int
	}
	var found []candidate
	for _, known := range d.Names() {
		if known == name {
			continue
		}
		if dist := levenshtein.ComputeDistance(name, known); dist <= d.suggestDistance {
			found = append(found, candidate{known, dist})
		}
	}

	slices.SortFunc(found, func(a, b candidate) int {
		if a.dist != b.dist {
			return a.dist - b.dist
		}
		if a.name < b.name {
			return -1
		}
		return 1
	})

	out := make([]string, 0, min(len(found), maxSuggestions))
	for _, c := range found[:min(len(found), maxSuggestions)] {
		out = append(out, c.name)
	}
	return out
}

type contextKey string

const depthKey contextKey = "dispatch_depth"

// Depth reports the dispatch nesting level of ctx: 0 outside any listener,
// 1 inside a listener of a top-level dispatch.
func Depth(ctx context.Context) int {
	if v, ok := ctx.Value(depthKey).(int); ok {
		return v
	}
	return 0
}

func withDispatchDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthKey, depth)
}
