package event

import (
	"fmt"
	"log/slog"
)

// Event is a named, mutable carrier of parameters handed through a chain of
// listeners.
//
// An Event is passed by pointer so that every listener observes the
// mutations of the ones before it. It performs no locking: only one
// goroutine may use it at a time.
type Event struct {
	name    string
	params  Params
	target  any
	stopped bool
}

// Accessor is index-style access to the parameter bag. It mirrors
// GetParam, SetParam, HasParam and RemoveParam one to one.
type Accessor interface {
	Get(name string) any
	Set(name string, value any)
	Has(name string) bool
	Delete(name string)
}

// Compile-time interface check.
var _ Accessor = (*Event)(nil)

// New creates an event. An empty name leaves the event unnamed; any other
// name must pass CheckName. params is stored as is, without copying.
func New(name string, params Params) (*Event, error) {
	e := &Event{params: params}
	if name != "" {
		if err := e.SetName(name); err != nil {
			return nil, err
		}
	}
	if e.params == nil {
		e.params = Params{}
	}
	return e, nil
}

// MustNew is like New but panics on an invalid name.
func MustNew(name string, params Params) *Event {
	e, err := New(name, params)
	if err != nil {
		panic(err)
	}
	return e
}

// Name returns the event name, or "" if none has been set.
func (e *Event) Name() string {
	return e.name
}

// SetName validates name with CheckName and stores the trimmed result.
// The current name is kept when validation fails.
func (e *Event) SetName(name string) error {
	checked, err := CheckName(name)
	if err != nil {
		return err
	}
	e.name = checked
	return nil
}

// SetParams replaces the parameter bag.
func (e *Event) SetParams(params Params) {
	if params == nil {
		params = Params{}
	}
	e.params = params
}

// AddParams merges params into the bag. Incoming values win on collision.
func (e *Event) AddParams(params Params) *Event {
	e.ensureParams()
	for k, v := range params {
		e.params[k] = v
	}
	return e
}

// Params returns the live parameter bag. Writes through it are visible to
// the event; use Params().Clone() for a private copy.
func (e *Event) Params() Params {
	return e.params
}

// ClearParams empties the bag and returns the parameters it held.
func (e *Event) ClearParams() Params {
	old := e.params
	e.params = Params{}
	return old
}

// AddParam sets key only when the bag has no non-nil value for it. It
// returns the event whether or not anything changed; the only error is
// ErrNullArgument for NilKey.
func (e *Event) AddParam(key ParamKey, value any) (*Event, error) {
	if name, ok := key.Name(); ok && e.HasParam(name) {
		return e, nil
	}
	return e.SetParam(key, value)
}

// SetParam stores value under key, overwriting any previous value. It
// fails with ErrNullArgument, leaving the bag untouched, when key is NilKey.
func (e *Event) SetParam(key ParamKey, value any) (*Event, error) {
	name, ok := key.Name()
	if !ok {
		return e, ErrNullArgument
	}
	e.ensureParams()
	e.params[name] = value
	return e, nil
}

// GetParam returns the value stored under name, or def when the key is
// missing or holds nil.
func (e *Event) GetParam(name string, def any) any {
	if v, ok := e.params[name]; ok && v != nil {
		return v
	}
	return def
}

// HasParam reports whether name holds a non-nil value.
func (e *Event) HasParam(name string) bool {
	v, ok := e.params[name]
	return ok && v != nil
}

// RemoveParam deletes name from the bag. Missing keys are ignored.
func (e *Event) RemoveParam(name string) {
	delete(e.params, name)
}

// Get is GetParam with a nil default.
func (e *Event) Get(name string) any {
	return e.GetParam(name, nil)
}

// Set is SetParam for a plain string key, which can never be NilKey.
func (e *Event) Set(name string, value any) {
	_, _ = e.SetParam(Key(name), value)
}

// Has is HasParam.
func (e *Event) Has(name string) bool {
	return e.HasParam(name)
}

// Delete is RemoveParam.
func (e *Event) Delete(name string) {
	e.RemoveParam(name)
}

// ensureParams lets a zero Event accept writes.
func (e *Event) ensureParams() {
	if e.params == nil {
		e.params = Params{}
	}
}

// Target returns the object the event was raised for, if any.
func (e *Event) Target() any {
	return e.target
}

// SetTarget records the object the event was raised for. Any value is
// accepted, including nil.
func (e *Event) SetTarget(target any) {
	e.target = target
}

// StopPropagation sets the propagation flag to exactly flag. Passing false
// resumes propagation after an earlier stop.
func (e *Event) StopPropagation(flag bool) {
	e.stopped = flag
}

// IsPropagationStopped reports whether remaining listeners should be
// skipped. Enforcement is the dispatcher's job.
func (e *Event) IsPropagationStopped() bool {
	return e.stopped
}

// String implements fmt.Stringer.
func (e *Event) String() string {
	name := e.name
	if name == "" {
		name = "<unnamed>"
	}
	return fmt.Sprintf("event %s (%d params, stopped=%t)", name, len(e.params), e.stopped)
}

// LogValue implements slog.LogValuer. Parameter values are left out.
func (e *Event) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", e.name),
		slog.Int("params", len(e.params)),
		slog.Bool("stopped", e.stopped),
	)
}
