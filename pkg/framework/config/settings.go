package config

import (
	"errors"
	"fmt"
	"time"
)

// Journal drivers understood by Settings.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// ErrInvalidSettings is wrapped by every error returned from Settings.Validate.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings is the runtime configuration of the dispatcher, journal and relay.
//
// A YAML file looks like:
//
//	dispatch:
//	  max_depth: 10
//	  stop_on_error: true
//	  slow_listener: 250ms
//	journal:
//	  driver: sqlite
//	  dsn: ./events.db
//	relay:
//	  addr: localhost:6379
//	  channel: framework.events
//	  retries: 3
//	  backoff: 200ms
type Settings struct {
	Dispatch DispatchSettings
	Journal  JournalSettings
	Relay    RelaySettings
}

// DispatchSettings configures a dispatcher.
type DispatchSettings struct {
	// MaxDepth bounds nested dispatches triggered from inside listeners.
	MaxDepth int
	// StopOnError halts the listener chain at the first listener error.
	StopOnError bool
	// SlowListener is the latency above which a listener run is logged at warn.
	// Zero disables the warning.
	SlowListener time.Duration
	// SuggestDistance is the edit distance used for "did you mean" hints.
	SuggestDistance int
}

// JournalSettings selects the journal backend.
type JournalSettings struct {
	Driver string
	DSN    string
}

// RelaySettings configures the redis relay.
type RelaySettings struct {
	Addr    string
	Channel string
	Retries int
	Backoff time.Duration
}

// DefaultSettings returns the settings used for anything a file leaves out.
func DefaultSettings() Settings {
	return Settings{
		Dispatch: DispatchSettings{
			MaxDepth:        10,
			StopOnError:     true,
			SuggestDistance: 3,
		},
		Journal: JournalSettings{
			Driver: DriverMemory,
		},
		Relay: RelaySettings{
			Addr:    "localhost:6379",
			Channel: "framework.events",
			Retries: 3,
			Backoff: 200 * time.Millisecond,
		},
	}
}

// Settings extracts typed settings from c, falling back to DefaultSettings.
func (c Config) Settings() Settings {
	s := DefaultSettings()

	d := c.Sub("dispatch")
	s.Dispatch.MaxDepth = d.Int("max_depth", s.Dispatch.MaxDepth)
	s.Dispatch.StopOnError = d.Bool("stop_on_error", s.Dispatch.StopOnError)
	s.Dispatch.SlowListener = d.Duration("slow_listener", s.Dispatch.SlowListener)
	s.Dispatch.SuggestDistance = d.Int("suggest_distance", s.Dispatch.SuggestDistance)

	j := c.Sub("journal")
	s.Journal.Driver = j.String("driver", s.Journal.Driver)
	s.Journal.DSN = j.String("dsn", s.Journal.DSN)

	r := c.Sub("relay")
	s.Relay.Addr = r.String("addr", s.Relay.Addr)
	s.Relay.Channel = r.String("channel", s.Relay.Channel)
	s.Relay.Retries = r.Int("retries", s.Relay.Retries)
	s.Relay.Backoff = r.Duration("backoff", s.Relay.Backoff)

	return s
}

// Validate reports the first inconsistent setting.
func (s Settings) Validate() error {
	if s.Dispatch.MaxDepth <= 0 {
		return fmt.Errorf("%w: dispatch.max_depth must be positive, got %d", ErrInvalidSettings, s.Dispatch.MaxDepth)
	}
	if s.Dispatch.SuggestDistance < 0 {
		return fmt.Errorf("%w: dispatch.suggest_distance must not be negative", ErrInvalidSettings)
	}
	switch s.Journal.Driver {
	case DriverMemory:
	case DriverSQLite:
		if s.Journal.DSN == "" {
			return fmt.Errorf("%w: journal.dsn is required for the sqlite driver", ErrInvalidSettings)
		}
	default:
		return fmt.Errorf("%w: unknown journal.driver %q", ErrInvalidSettings, s.Journal.Driver)
	}
	if s.Relay.Channel == "" {
		return fmt.Errorf("%w: relay.channel must not be empty", ErrInvalidSettings)
	}
	if s.Relay.Retries < 0 {
		return fmt.Errorf("%w: relay.retries must not be negative", ErrInvalidSettings)
	}
	return nil
}

// LoadSettings reads, decodes and validates a settings file.
func LoadSettings(path string) (Settings, error) {
	c, err := FromFile(path)
	if err != nil {
		return Settings{}, err
	}
	s := c.Settings()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}
