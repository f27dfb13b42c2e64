package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists journal entries to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a new SQLite journal store.
// The path should be a file path (e.g., "./events.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// a second pooled connection to ":memory:" would be a different database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS journal_streams (
			stream TEXT PRIMARY KEY,
			last_seq INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS journal_entries (
			stream TEXT NOT NULL,
			seq INTEGER NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (stream, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_entries_id
		ON journal_entries(id)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, stream string, e Entry) (int64, error) {
	if err := checkStream(stream); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	if e.Data == nil {
		e.Data = []byte{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO journal_streams (stream, last_seq) VALUES (?, 1)
		ON CONFLICT(stream) DO UPDATE SET last_seq = last_seq + 1
	`, stream); err != nil {
		return 0, fmt.Errorf("advance sequence: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		"SELECT last_seq FROM journal_streams WHERE stream = ?", stream,
	).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read sequence: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO journal_entries (stream, seq, id, name, recorded_at, data)
		VALUES (?, ?, ?, ?, ?, ?)
	`, stream, seq, e.ID, e.Name, e.RecordedAt.UTC().Format(time.RFC3339Nano), e.Data); err != nil {
		return 0, fmt.Errorf("insert entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append: %w", err)
	}
	return seq, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, stream string, after int64, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, name, recorded_at, data
		FROM journal_entries
		WHERE stream = ? AND seq > ?
		ORDER BY seq
		LIMIT ?
	`, stream, after, limit)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e  Entry
			ts string
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.Name, &ts, &e.Data); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if e.RecordedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		e.Stream = stream
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	return entries, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, stream string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, name, recorded_at, LENGTH(data)
		FROM journal_entries
		WHERE stream = ?
		ORDER BY seq
	`, stream)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var (
			info Info
			ts   string
		)
		if err := rows.Scan(&info.Seq, &info.ID, &info.Name, &ts, &info.Size); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if info.RecordedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		info.Stream = stream
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	return infos, nil
}

// Streams implements Store.
func (s *SQLiteStore) Streams(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT stream FROM journal_entries ORDER BY stream")
	if err != nil {
		return nil, fmt.Errorf("query streams: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate streams: %w", err)
	}
	return names, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, stream string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM journal_entries WHERE stream = ?", stream); err != nil {
		return fmt.Errorf("delete entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM journal_streams WHERE stream = ?", stream); err != nil {
		return fmt.Errorf("delete stream: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// Truncate implements Store.
func (s *SQLiteStore) Truncate(ctx context.Context, stream string, through int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM journal_entries WHERE stream = ? AND seq <= ?", stream, through)
	if err != nil {
		return 0, fmt.Errorf("truncate stream: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
