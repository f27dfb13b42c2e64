/*
Package config provides typed, default-returning access to loosely typed maps
and the runtime Settings of the event stack.

# Accessors

Config wraps a map[string]any, typically decoded from YAML or JSON, or an
event parameter bag:

	cfg := config.New(map[string]any{"timeout": "30s", "retries": 3})
	cfg.Duration("timeout", time.Second) // 30s
	cfg.Int("retries", 1)                // 3
	cfg.String("missing", "fallback")    // "fallback"

A missing key, a nil value, or a value of the wrong shape returns the default.
Numbers are converted between Go integer and float types when no precision is
lost. Durations accept time.ParseDuration strings or a number of seconds.

# Settings

Settings groups the dispatcher, journal and relay configuration:

	s, err := config.LoadSettings("framework.yaml")

Keys the file does not mention keep the values from DefaultSettings.

# Thread Safety

Config never writes to the wrapped map. Concurrent reads are safe as long as
nobody else mutates the map.
*/
package config
