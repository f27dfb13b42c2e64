package event

import (
	"time"

	"github.com/glowdan/framework/pkg/framework/config"
)

// Params is an event's parameter bag.
//
// The typed readers below treat a missing key, a nil value, and a value of
// the wrong shape alike: they return the supplied default.
type Params map[string]any

// String returns the string parameter name, or def.
func (p Params) String(name, def string) string {
	return config.New(p).String(name, def)
}

// Int returns the integer parameter name, or def.
func (p Params) Int(name string, def int) int {
	return config.New(p).Int(name, def)
}

// Float returns the numeric parameter name as float64, or def.
func (p Params) Float(name string, def float64) float64 {
	return config.New(p).Float(name, def)
}

// Bool returns the bool parameter name, or def.
func (p Params) Bool(name string, def bool) bool {
	return config.New(p).Bool(name, def)
}

// Duration returns the duration parameter name, or def.
func (p Params) Duration(name string, def time.Duration) time.Duration {
	return config.New(p).Duration(name, def)
}

// Time returns the time parameter name, or def.
func (p Params) Time(name string, def time.Time) time.Time {
	return config.New(p).Time(name, def)
}

// Clone returns a shallow copy of p. Nested maps and slices are shared.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ParamKey names a parameter in SetParam and AddParam.
//
// Its zero value is NilKey, the absent name, which is distinct from the
// empty-string key Key("").
type ParamKey struct {
	name  string
	valid bool
}

// NilKey is the absent parameter name. SetParam and AddParam reject it.
var NilKey ParamKey

// Key returns the ParamKey for name. Key("") is a legal key.
func Key(name string) ParamKey {
	return ParamKey{name: name, valid: true}
}

// Name returns the key's name and false for NilKey.
func (k ParamKey) Name() (string, bool) {
	return k.name, k.valid
}

// IsNil reports whether k is NilKey.
func (k ParamKey) IsNil() bool {
	return !k.valid
}

// String implements fmt.Stringer.
func (k ParamKey) String() string {
	if !k.valid {
		return "<nil>"
	}
	return k.name
}
