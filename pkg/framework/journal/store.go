// Package journal persists events in wire form and replays them in order.
//
// A journal is a set of named streams. Each stream is an append-only list of
// entries numbered by a per-stream sequence that starts at 1 and never goes
// backwards, not even after Truncate. Entries carry the bytes produced by
// event.Serialize, so anything that can restore an event can read them.
package journal

import (
	"context"
	"errors"
	"time"
)

// Common errors.
var (
	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("journal store closed")

	// ErrInvalidStream is returned for an empty stream name.
	ErrInvalidStream = errors.New("invalid stream name")
)

// Entry is one recorded event.
type Entry struct {
	ID         string
	Stream     string
	Seq        int64
	Name       string
	RecordedAt time.Time
	Data       []byte
}

// Info describes an entry without its payload.
type Info struct {
	ID         string
	Stream     string
	Seq        int64
	Name       string
	RecordedAt time.Time
	Size       int
}

func (e Entry) info() Info {
	return Info{
		ID:         e.ID,
		Stream:     e.Stream,
		Seq:        e.Seq,
		Name:       e.Name,
		RecordedAt: e.RecordedAt,
		Size:       len(e.Data),
	}
}

// Store persists journal entries.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Append stores e at the end of stream and returns its sequence.
	// The Seq and Stream fields of e are ignored.
	Append(ctx context.Context, stream string, e Entry) (int64, error)

	// Load returns up to limit entries of stream with a sequence greater
	// than after, in sequence order. A limit of 0 or less means no limit.
	Load(ctx context.Context, stream string, after int64, limit int) ([]Entry, error)

	// List returns metadata for every entry of stream, in sequence order.
	List(ctx context.Context, stream string) ([]Info, error)

	// Streams returns the names of all streams that hold entries, sorted.
	Streams(ctx context.Context) ([]string, error)

	// Delete removes a stream and resets its sequence.
	// Deleting a missing stream is not an error.
	Delete(ctx context.Context, stream string) error

	// Truncate removes the entries of stream with a sequence of at most
	// through and reports how many were removed.
	Truncate(ctx context.Context, stream string, through int64) (int, error)

	// Close releases resources.
	Close() error
}

func checkStream(stream string) error {
	if stream == "" {
		return ErrInvalidStream
	}
	return nil
}
