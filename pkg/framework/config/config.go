package config

import (
	"math"
	"time"
)

// Config is a read-only view over a loosely typed map, such as a decoded
// YAML document or an event parameter bag. Accessors never fail: a missing
// key or a value of the wrong shape yields the supplied default.
type Config struct {
	data map[string]any
}

// New wraps data. A nil map behaves like an empty one.
func New(data map[string]any) Config {
	if data == nil {
		data = map[string]any{}
	}
	return Config{data: data}
}

func (c Config) lookup(key string) (any, bool) {
	v, ok := c.data[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// String returns the string stored under key.
func (c Config) String(key, def string) string {
	if s, ok := c.data[key].(string); ok {
		return s
	}
	return def
}

// Bool returns the bool stored under key.
func (c Config) Bool(key string, def bool) bool {
	if b, ok := c.data[key].(bool); ok {
		return b
	}
	return def
}

// Int returns the integer stored under key. Any Go integer type is accepted
// as long as it fits in an int; float64 is accepted when it has no
// fractional part, which covers numbers decoded from JSON.
func (c Config) Int(key string, def int) int {
	v, ok := c.lookup(key)
	if !ok {
		return def
	}
	if n, ok := toInt64(v); ok && n >= math.MinInt && n <= math.MaxInt {
		return int(n)
	}
	return def
}

// Float returns the number stored under key as float64.
func (c Config) Float(key string, def float64) float64 {
	v, ok := c.lookup(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	}
	if n, ok := toInt64(v); ok {
		return float64(n)
	}
	return def
}

// Duration returns the duration stored under key.
//
// Strings go through time.ParseDuration; bare numbers are seconds.
func (c Config) Duration(key string, def time.Duration) time.Duration {
	v, ok := c.lookup(key)
	if !ok {
		return def
	}
	switch d := v.(type) {
	case time.Duration:
		return d
	case string:
		if parsed, err := time.ParseDuration(d); err == nil {
			return parsed
		}
		return def
	case float64:
		return time.Duration(d * float64(time.Second))
	}
	if n, ok := toInt64(v); ok {
		return time.Duration(n) * time.Second
	}
	return def
}

// Time returns the time stored under key. RFC 3339 strings are parsed.
func (c Config) Time(key string, def time.Time) time.Time {
	v, ok := c.lookup(key)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
	}
	return def
}

// StringSlice returns the list of strings stored under key. A list holding
// anything other than strings yields def.
func (c Config) StringSlice(key string, def []string) []string {
	v, ok := c.lookup(key)
	if !ok {
		return def
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return def
			}
			out = append(out, s)
		}
		return out
	}
	return def
}

// Sub returns the nested section stored under key, or an empty Config.
func (c Config) Sub(key string) Config {
	switch m := c.data[key].(type) {
	case map[string]any:
		return New(m)
	case map[any]any:
		converted := make(map[string]any, len(m))
		for k, v := range m {
			if s, ok := k.(string); ok {
				converted[s] = v
			}
		}
		return New(converted)
	}
	return New(nil)
}

// Any returns the raw value under key, or def when absent.
func (c Config) Any(key string, def any) any {
	if v, ok := c.data[key]; ok {
		return v
	}
	return def
}

// Has reports whether key is present, even when it holds nil.
func (c Config) Has(key string) bool {
	_, ok := c.data[key]
	return ok
}

// Raw exposes the wrapped map. Callers must not modify it.
func (c Config) Raw() map[string]any {
	return c.data
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) <= math.MaxInt64 {
			return int64(n), true
		}
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n), true
		}
	case float64:
		if n == math.Trunc(n) && n >= math.MinInt64 && n < math.MaxInt64 {
			return int64(n), true
		}
	}
	return 0, false
}
