// Package event provides the mutable event object handed through listener
// chains.
//
// # Overview
//
// An Event carries four things:
//
//   - a name, validated by CheckName (2-50 characters: a word character,
//     then word characters, '-' or '.')
//   - a parameter bag (Params), read and written by producer and listeners
//   - an opaque target, usually the object that raised the event
//   - a propagation flag that tells the dispatcher to skip remaining listeners
//
// Construct with New or MustNew:
//
//	evt, err := event.New("order.created", event.Params{"id": 42})
//	evt.SetTarget(order)
//
// # Parameters
//
// SetParam always overwrites; AddParam only fills a missing key and returns
// the event either way. Both take a ParamKey so that the absent name NilKey
// can be told apart from the empty name Key(""):
//
//	evt.SetParam(event.Key("amount"), 19.99)
//	evt.AddParam(event.Key("currency"), "EUR")
//	_, err := evt.SetParam(event.NilKey, 1) // ErrNullArgument
//
// A key holding nil reads as missing: GetParam returns the default,
// HasParam returns false and AddParam overwrites it.
//
// The Accessor methods Get, Set, Has and Delete are index-style shorthands
// for the named operations.
//
// # Propagation
//
// StopPropagation(true) asks the dispatcher not to call further listeners;
// StopPropagation(false) undoes it. Event records the flag and nothing else.
//
// # Wire Form
//
// Serialize writes the msgpack array [name, params, stopPropagation]. The
// target is not written and is nil after Restore. Restore walks the payload
// itself and accepts only nil, bool, integers, floats, strings, binary,
// lists, string-keyed maps and timestamps; any other msgpack extension is
// rejected with ErrDecodeRejected before the event is touched.
//
// Values come back normalized: integers as int (uint64 above
// math.MaxInt64), floats as float64, lists as []any, nested maps as
// map[string]any, timestamps as UTC time.Time.
//
// # Concurrency
//
// Event has no locks. Hand one *Event through listeners sequentially; to
// fan out to goroutines, give each its own copy, e.g. via Decode.
package event
