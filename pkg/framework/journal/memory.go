package journal

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory journal store for tests and short-lived
// processes. Data is lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	streams map[string]*memoryStream
	closed  bool
}

type memoryStream struct {
	entries []Entry // ascending seq
	last    int64
}

// NewMemoryStore creates a new in-memory journal store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		streams: make(map[string]*memoryStream),
	}
}

// Append implements Store.
func (m *MemoryStore) Append(ctx context.Context, stream string, e Entry) (int64, error) {
	if err := checkStream(stream); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStoreClosed
	}

	s, ok := m.streams[stream]
	if !ok {
		s = &memoryStream{}
		m.streams[stream] = s
	}

	s.last++
	e.Stream = stream
	e.Seq = s.last
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	e.RecordedAt = e.RecordedAt.UTC()
	e.Data = slices.Clone(e.Data)

	s.entries = append(s.entries, e)
	return e.Seq, nil
}

// Load implements Store.
func (m *MemoryStore) Load(ctx context.Context, stream string, after int64, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	s, ok := m.streams[stream]
	if !ok {
		return nil, nil
	}

	start := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Seq > after
	})
	end := len(s.entries)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	if start >= end {
		return nil, nil
	}

	out := make([]Entry, 0, end-start)
	for _, e := range s.entries[start:end] {
		// callers must not reach the stored bytes
		e.Data = slices.Clone(e.Data)
		out = append(out, e)
	}
	return out, nil
}

// List implements Store.
func (m *MemoryStore) List(ctx context.Context, stream string) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	s, ok := m.streams[stream]
	if !ok {
		return nil, nil
	}

	infos := make([]Info, 0, len(s.entries))
	for _, e := range s.entries {
		infos = append(infos, e.info())
	}
	return infos, nil
}

// Streams implements Store.
func (m *MemoryStore) Streams(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	names := make([]string, 0, len(m.streams))
	for name, s := range m.streams {
		if len(s.entries) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(ctx context.Context, stream string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.streams, stream)
	return nil
}

// Truncate implements Store.
func (m *MemoryStore) Truncate(ctx context.Context, stream string, through int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStoreClosed
	}

	s, ok := m.streams[stream]
	if !ok {
		return 0, nil
	}

	cut := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Seq > through
	})
	s.entries = slices.Clone(s.entries[cut:])
	return cut, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.streams = nil
	return nil
}

// Len returns the total number of stored entries (for testing).
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, s := range m.streams {
		count += len(s.entries)
	}
	return count
}

var _ Store = (*MemoryStore)(nil)
