package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/glowdan/framework/pkg/framework/config"
	"github.com/glowdan/framework/pkg/framework/dispatch"
	"github.com/glowdan/framework/pkg/framework/event"
	"github.com/glowdan/framework/pkg/framework/observability"
)

const defaultPageSize = 256

// ReplayError reports the entry at which a replay stopped.
type ReplayError struct {
	Stream  string
	EntryID string
	Seq     int64
	Err     error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay %s entry %d (%s): %v", e.Stream, e.Seq, e.EntryID, e.Err)
}

func (e *ReplayError) Unwrap() error {
	return e.Err
}

// ReplayFunc receives each restored event. Returning an error ends the replay.
type ReplayFunc func(ctx context.Context, entry Entry, evt *event.Event) error

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Journal) { j.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(recorder observability.MetricsRecorder) Option {
	return func(j *Journal) {
		if recorder != nil {
			j.metrics = recorder
		}
	}
}

// WithPageSize sets how many entries Replay loads per store round trip.
// Default: 256.
func WithPageSize(n int) Option {
	return func(j *Journal) {
		if n > 0 {
			j.pageSize = n
		}
	}
}

// Journal records events into a Store and replays them.
type Journal struct {
	store    Store
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	pageSize int
	now      func() time.Time
}

// New creates a journal over store.
func New(store Store, opts ...Option) *Journal {
	j := &Journal{
		store:    store,
		metrics:  observability.NoopMetrics{},
		pageSize: defaultPageSize,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// OpenStore creates the store selected by the journal section of s.
func OpenStore(s config.Settings) (Store, error) {
	switch s.Journal.Driver {
	case "", config.DriverMemory:
		return NewMemoryStore(), nil
	case config.DriverSQLite:
		dsn := s.Journal.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		return NewSQLiteStore(dsn)
	default:
		return nil, fmt.Errorf("%w: unknown journal driver %q", config.ErrInvalidSettings, s.Journal.Driver)
	}
}

// Open creates a journal from the journal section of s.
func Open(s config.Settings, opts ...Option) (*Journal, error) {
	store, err := OpenStore(s)
	if err != nil {
		return nil, err
	}
	return New(store, opts...), nil
}

// Store returns the underlying store.
func (j *Journal) Store() Store {
	return j.store
}

// Record serializes evt and appends it to stream.
//
// The target does not travel; a replayed event has a nil target.
func (j *Journal) Record(ctx context.Context, stream string, evt *event.Event) (Entry, error) {
	if evt == nil {
		return Entry{}, event.ErrNullArgument
	}
	if err := checkStream(stream); err != nil {
		return Entry{}, err
	}

	data, err := evt.Serialize()
	j.metrics.RecordCodec(ctx, "serialize", len(data), err)
	if err != nil {
		observability.LogJournalError(j.logger, stream, "record", err)
		return Entry{}, err
	}

	entry := Entry{
		ID:         uuid.New().String(),
		Stream:     stream,
		Name:       evt.Name(),
		RecordedAt: j.now().UTC(),
		Data:       data,
	}

	seq, err := j.store.Append(ctx, stream, entry)
	if err != nil {
		observability.LogJournalError(j.logger, stream, "append", err)
		return Entry{}, fmt.Errorf("append to %s: %w", stream, err)
	}
	entry.Seq = seq

	observability.LogJournalAppend(j.logger, stream, entry.ID, seq, len(data))
	return entry, nil
}

// Replay restores every entry of stream in sequence order and passes it to
// fn. It returns the number of events handed to fn.
func (j *Journal) Replay(ctx context.Context, stream string, fn ReplayFunc) (int, error) {
	return j.ReplayFrom(ctx, stream, 0, fn)
}

// ReplayFrom is Replay starting after sequence after.
//
// The replay stops at the first entry that cannot be restored or that fn
// rejects; the returned *ReplayError names that entry. Entries before it
// have already been handed to fn.
func (j *Journal) ReplayFrom(ctx context.Context, stream string, after int64, fn ReplayFunc) (int, error) {
	if fn == nil {
		return 0, event.ErrNullArgument
	}
	if err := checkStream(stream); err != nil {
		return 0, err
	}

	replayed := 0
	for {
		if err := ctx.Err(); err != nil {
			return replayed, err
		}

		page, err := j.store.Load(ctx, stream, after, j.pageSize)
		if err != nil {
			observability.LogJournalError(j.logger, stream, "load", err)
			return replayed, fmt.Errorf("load %s: %w", stream, err)
		}
		if len(page) == 0 {
			return replayed, nil
		}

		for _, entry := range page {
			if err := j.replayOne(ctx, entry, fn); err != nil {
				observability.LogJournalError(j.logger, stream, "replay", err)
				return replayed, err
			}
			replayed++
			after = entry.Seq
		}

		if len(page) < j.pageSize {
			return replayed, nil
		}
	}
}

func (j *Journal) replayOne(ctx context.Context, entry Entry, fn ReplayFunc) error {
	evt, err := event.Decode(entry.Data)
	j.metrics.RecordCodec(ctx, "restore", len(entry.Data), err)
	if err != nil {
		if errors.Is(err, event.ErrDecodeRejected) {
			j.metrics.RecordRejected(ctx, "journal")
		}
		return &ReplayError{Stream: entry.Stream, EntryID: entry.ID, Seq: entry.Seq, Err: err}
	}

	if err := fn(ctx, entry, evt); err != nil {
		return &ReplayError{Stream: entry.Stream, EntryID: entry.ID, Seq: entry.Seq, Err: err}
	}
	return nil
}

// ReplayTo replays stream into l, typically a *dispatch.Dispatcher.
func (j *Journal) ReplayTo(ctx context.Context, stream string, l dispatch.Listener) (int, error) {
	if l == nil {
		return 0, event.ErrNullArgument
	}
	return j.Replay(ctx, stream, func(ctx context.Context, _ Entry, evt *event.Event) error {
		return l.Handle(ctx, evt)
	})
}

// Recorder returns a listener that records every event it sees into
// stream. Register it with Dispatcher.OnAny to journal a whole dispatcher.
func (j *Journal) Recorder(stream string) dispatch.Listener {
	return dispatch.ListenerFunc(func(ctx context.Context, evt *event.Event) error {
		_, err := j.Record(ctx, stream, evt)
		return err
	})
}

// Close closes the underlying store.
func (j *Journal) Close() error {
	return j.store.Close()
}
