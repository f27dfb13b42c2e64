package event

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"slices"
	"strconv"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// The wire form is a msgpack array of exactly three elements:
//
//	[name (str or nil), params (map), stopPropagation (bool)]
//
// The target is never written. Values inside params are limited to nil,
// bool, integers, floats, strings, binary, lists, string-keyed maps and
// timestamps; nothing else is written and nothing else is read back.
const (
	tripleLen = 3

	// maxDepth bounds nesting inside params on both sides of the codec.
	maxDepth = 64

	// maxPrealloc caps container preallocation driven by untrusted lengths.
	maxPrealloc = 64
)

var timeType = reflect.TypeOf(time.Time{})

// Serialize encodes the name, the parameter bag and the propagation flag.
// Map keys are written in sorted order, so equal events encode to equal bytes.
//
// Parameter values outside the wire value set (structs other than
// time.Time, channels, functions, maps with non-string keys) fail with a
// *CodecError wrapping ErrUnsupportedValue.
func (e *Event) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)

	if err := enc.EncodeArrayLen(tripleLen); err != nil {
		return nil, encodeErr("", err)
	}

	var err error
	if e.name == "" {
		err = enc.EncodeNil()
	} else {
		err = enc.EncodeString(e.name)
	}
	if err != nil {
		return nil, encodeErr("name", err)
	}

	if err := encodeMap(enc, reflect.ValueOf(e.params), "params", 0); err != nil {
		return nil, err
	}

	if err := enc.EncodeBool(e.stopped); err != nil {
		return nil, encodeErr("stopPropagation", err)
	}

	return buf.Bytes(), nil
}

// Restore decodes data produced by Serialize and overwrites the name, the
// parameter bag and the propagation flag. The target is reset to nil.
//
// Restore is all or nothing: on error the event is left exactly as it was.
// A payload carrying an extension type other than a timestamp fails with
// ErrDecodeRejected; a structurally broken payload fails with ErrMalformed;
// a name that CheckName refuses fails with ErrInvalidName.
func (e *Event) Restore(data []byte) error {
	name, params, stopped, err := decodeTriple(data)
	if err != nil {
		return err
	}

	e.name = name
	e.params = params
	e.stopped = stopped
	e.target = nil
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (e *Event) MarshalBinary() ([]byte, error) {
	return e.Serialize()
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (e *Event) UnmarshalBinary(data []byte) error {
	return e.Restore(data)
}

// Decode builds a new Event from the wire form.
func Decode(data []byte) (*Event, error) {
	e := &Event{}
	if err := e.Restore(data); err != nil {
		return nil, err
	}
	return e, nil
}

func encodeErr(path string, err error) error {
	return &CodecError{Op: "serialize", Path: path, Err: err}
}

func unsupported(path string, t reflect.Type) error {
	return encodeErr(path, fmt.Errorf("%w: %s", ErrUnsupportedValue, t))
}

func encodeValue(enc *msgpack.Encoder, v reflect.Value, path string, depth int) error {
	if depth > maxDepth {
		return encodeErr(path, fmt.Errorf("%w: nesting deeper than %d", ErrUnsupportedValue, maxDepth))
	}
	if !v.IsValid() {
		return enc.EncodeNil()
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return enc.EncodeNil()
		}
		return encodeValue(enc, v.Elem(), path, depth)
	case reflect.Pointer:
		if v.IsNil() {
			return enc.EncodeNil()
		}
		return encodeValue(enc, v.Elem(), path, depth+1)
	case reflect.Bool:
		return enc.EncodeBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return enc.EncodeInt(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return enc.EncodeUint(v.Uint())
	case reflect.Float32:
		return enc.EncodeFloat32(float32(v.Float()))
	case reflect.Float64:
		return enc.EncodeFloat64(v.Float())
	case reflect.String:
		return enc.EncodeString(v.String())
	case reflect.Slice:
		if v.IsNil() {
			return enc.EncodeNil()
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return enc.EncodeBytes(v.Bytes())
		}
		return encodeList(enc, v, path, depth)
	case reflect.Array:
		return encodeList(enc, v, path, depth)
	case reflect.Map:
		if v.IsNil() {
			return enc.EncodeNil()
		}
		return encodeMap(enc, v, path, depth)
	case reflect.Struct:
		if v.Type() == timeType {
			return enc.EncodeTime(v.Interface().(time.Time))
		}
	}
	return unsupported(path, v.Type())
}

func encodeList(enc *msgpack.Encoder, v reflect.Value, path string, depth int) error {
	if err := enc.EncodeArrayLen(v.Len()); err != nil {
		return encodeErr(path, err)
	}
	for i := 0; i < v.Len(); i++ {
		if err := encodeValue(enc, v.Index(i), path+"["+strconv.Itoa(i)+"]", depth+1); err != nil {
			return err
		}
	}
	return nil
}

// encodeMap writes a string-keyed map with sorted keys. A nil map is
// written as an empty one.
func encodeMap(enc *msgpack.Encoder, v reflect.Value, path string, depth int) error {
	if v.Type().Key().Kind() != reflect.String {
		return unsupported(path, v.Type())
	}

	keys := v.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		switch {
		case a.String() < b.String():
			return -1
		case a.String() > b.String():
			return 1
		}
		return 0
	})

	if err := enc.EncodeMapLen(len(keys)); err != nil {
		return encodeErr(path, err)
	}
	for _, k := range keys {
		if err := enc.EncodeString(k.String()); err != nil {
			return encodeErr(path, err)
		}
		if err := encodeValue(enc, v.MapIndex(k), path+"."+k.String(), depth+1); err != nil {
			return err
		}
	}
	return nil
}

func decodeErr(path string, err error) error {
	return &CodecError{Op: "restore", Path: path, Err: err}
}

func malformed(path, format string, args ...any) error {
	return decodeErr(path, fmt.Errorf("%w: "+format, append([]any{ErrMalformed}, args...)...))
}

// readFailure classifies an error returned by the msgpack decoder.
func readFailure(path string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return malformed(path, "truncated payload")
	}
	return decodeErr(path, fmt.Errorf("%w: %v", ErrMalformed, err))
}

// unexpected reports a code that does not belong at path. Extension types
// are rejected outright rather than reported as malformed.
func unexpected(path, want string, c byte) error {
	if msgpcode.IsExt(c) {
		return decodeErr(path, fmt.Errorf("%w: extension where %s belongs", ErrDecodeRejected, want))
	}
	return malformed(path, "expected %s, got code %#x", want, c)
}

func decodeTriple(data []byte) (string, Params, bool, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))

	c, err := dec.PeekCode()
	if err != nil {
		return "", nil, false, readFailure("", err)
	}
	if !isArray(c) {
		return "", nil, false, unexpected("", "array", c)
	}
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return "", nil, false, readFailure("", err)
	}
	if n != tripleLen {
		return "", nil, false, malformed("", "expected a %d-element array, got %d", tripleLen, n)
	}

	name, err := decodeName(dec)
	if err != nil {
		return "", nil, false, err
	}

	params, err := decodeParams(dec)
	if err != nil {
		return "", nil, false, err
	}

	c, err = dec.PeekCode()
	if err != nil {
		return "", nil, false, readFailure("stopPropagation", err)
	}
	if c != msgpcode.True && c != msgpcode.False {
		return "", nil, false, unexpected("stopPropagation", "bool", c)
	}
	stopped, err := dec.DecodeBool()
	if err != nil {
		return "", nil, false, readFailure("stopPropagation", err)
	}

	if _, err := dec.PeekCode(); !errors.Is(err, io.EOF) {
		return "", nil, false, malformed("", "trailing data after event")
	}

	return name, params, stopped, nil
}

func decodeName(dec *msgpack.Decoder) (string, error) {
	c, err := dec.PeekCode()
	if err != nil {
		return "", readFailure("name", err)
	}
	if c == msgpcode.Nil {
		return "", dec.DecodeNil()
	}
	if !msgpcode.IsString(c) {
		return "", unexpected("name", "string or nil", c)
	}

	raw, err := dec.DecodeString()
	if err != nil {
		return "", readFailure("name", err)
	}
	name, err := CheckName(raw)
	if err != nil {
		return "", decodeErr("name", err)
	}
	return name, nil
}

func decodeParams(dec *msgpack.Decoder) (Params, error) {
	c, err := dec.PeekCode()
	if err != nil {
		return nil, readFailure("params", err)
	}
	if c == msgpcode.Nil {
		return Params{}, dec.DecodeNil()
	}
	if !isMap(c) {
		return nil, unexpected("params", "map", c)
	}

	m, err := decodeMap(dec, "params", 0)
	if err != nil {
		return nil, err
	}
	return Params(m), nil
}

func isMap(c byte) bool {
	return msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32
}

func isArray(c byte) bool {
	return msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32
}

// decodeValue reads one value, admitting only the wire value set. It never
// consults the msgpack extension registry: the timestamp extension is the
// only one read, everything else is rejected.
func decodeValue(dec *msgpack.Decoder, path string, depth int) (any, error) {
	if depth > maxDepth {
		return nil, malformed(path, "nesting deeper than %d", maxDepth)
	}

	c, err := dec.PeekCode()
	if err != nil {
		return nil, readFailure(path, err)
	}

	var v any
	switch {
	case c == msgpcode.Nil:
		err = dec.DecodeNil()
	case c == msgpcode.True || c == msgpcode.False:
		v, err = dec.DecodeBool()
	case c == msgpcode.Uint64:
		var u uint64
		u, err = dec.DecodeUint64()
		if u <= math.MaxInt64 {
			v = int(u)
		} else {
			v = u
		}
	case msgpcode.IsFixedNum(c),
		c == msgpcode.Uint8, c == msgpcode.Uint16, c == msgpcode.Uint32,
		c == msgpcode.Int8, c == msgpcode.Int16, c == msgpcode.Int32, c == msgpcode.Int64:
		var n int64
		n, err = dec.DecodeInt64()
		v = int(n)
	case c == msgpcode.Float || c == msgpcode.Double:
		v, err = dec.DecodeFloat64()
	case msgpcode.IsString(c):
		v, err = dec.DecodeString()
	case msgpcode.IsBin(c):
		v, err = dec.DecodeBytes()
	case isArray(c):
		return decodeList(dec, path, depth)
	case isMap(c):
		return decodeMap(dec, path, depth)
	case msgpcode.IsExt(c):
		var t time.Time
		t, err = dec.DecodeTime()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, readFailure(path, err)
		}
		if err != nil {
			return nil, decodeErr(path, fmt.Errorf("%w: %v", ErrDecodeRejected, err))
		}
		v = t.UTC()
	default:
		return nil, malformed(path, "unexpected code %#x", c)
	}

	if err != nil {
		return nil, readFailure(path, err)
	}
	return v, nil
}

func decodeList(dec *msgpack.Decoder, path string, depth int) (any, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, readFailure(path, err)
	}

	out := make([]any, 0, min(n, maxPrealloc))
	for i := 0; i < n; i++ {
		item, err := decodeValue(dec, path+"["+strconv.Itoa(i)+"]", depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func decodeMap(dec *msgpack.Decoder, path string, depth int) (map[string]any, error) {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, readFailure(path, err)
	}

	out := make(map[string]any, min(n, maxPrealloc))
	for i := 0; i < n; i++ {
		c, err := dec.PeekCode()
		if err != nil {
			return nil, readFailure(path, err)
		}
		if !msgpcode.IsString(c) {
			return nil, unexpected(path, "string key", c)
		}
		key, err := dec.DecodeString()
		if err != nil {
			return nil, readFailure(path, err)
		}

		val, err := decodeValue(dec, path+"."+key, depth+1)
		if err != nil {
			return nil, err
		}
		out[key] = val
	}
	return out, nil
}
