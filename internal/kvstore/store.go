// Package kvstore is a durable, process-wide key-value store on SQLite.
// Several processes may share one database file; each one observes the
// others' writes through Watch or Refresh and the subscription callbacks.
package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// Change describes a value written by another connection.
type Change struct {
	Key     string
	Value   string
	Deleted bool
}

type subscriber struct {
	id int
	fn func(Change)
}

// Store wraps the SQLite connection and the change subscriptions.
type Store struct {
	conn *sql.DB
	log  *slog.Logger

	mu      sync.Mutex
	subs    map[string][]subscriber
	seen    map[string]*string // last value this store read or wrote; nil means absent
	wrote   map[string]uint64  // seq of the last remember per key
	seq     uint64
	nextID  int
	version int64
}

// Open opens (creating if needed) the database file and applies the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	// data_version is tracked per connection, so the store must own exactly one.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		conn:  db,
		log:   logger.With("component", "kvstore"),
		subs:  make(map[string][]subscriber),
		seen:  make(map[string]*string),
		wrote: make(map[string]uint64),
	}
	if s.version, err = s.dataVersion(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Get returns the raw value stored under key and whether it exists.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		s.remember(key, nil)
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	s.remember(key, &value)
	return value, true, nil
}

// Set writes value under key, replacing any previous value. Last write wins.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	s.remember(key, &value)
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	s.remember(key, nil)
	return nil
}

// Subscribe registers fn for changes to key made by other connections.
// The returned function removes the subscription.
func (s *Store) Subscribe(key string, fn func(Change)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.subs[key] = append(s.subs[key], subscriber{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subs[key]
		for i, sub := range subs {
			if sub.id == id {
				s.subs[key] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(s.subs[key]) == 0 {
			delete(s.subs, key)
		}
	}
}

// Refresh re-reads every subscribed key and notifies subscribers of values
// that differ from what this store last saw. A key this store read or wrote
// after the refresh began keeps its newer value.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	start := s.seq
	keys := make([]string, 0, len(s.subs))
	for key := range s.subs {
		keys = append(keys, key)
	}
	s.mu.Unlock()

	for _, key := range keys {
		var value string
		err := s.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
		var current *string
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("failed to refresh key %s: %w", key, err)
		default:
			current = &value
		}

		change, subs, ok := s.apply(key, current, start)
		if !ok {
			continue
		}
		s.log.Debug("external change", "key", key, "deleted", change.Deleted)
		for _, sub := range subs {
			sub.fn(change)
		}
	}
	return nil
}

// apply records current as the value of key read by a refresh that began at
// seq start. It reports whether subscribers should be told.
func (s *Store) apply(key string, current *string, start uint64) (Change, []subscriber, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.wrote[key] > start {
		return Change{}, nil, false
	}
	prev, known := s.seen[key]
	if known && sameValue(prev, current) {
		return Change{}, nil, false
	}
	s.seen[key] = current
	change := Change{Key: key, Deleted: current == nil}
	if current != nil {
		change.Value = *current
	}
	return change, append([]subscriber(nil), s.subs[key]...), true
}

// Watch polls the database for commits made by other connections and runs
// Refresh when one is seen. It returns when ctx is done.
func (s *Store) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			version, err := s.dataVersion(ctx)
			if err != nil {
				s.log.Warn("Failed to poll data version", "error", err)
				continue
			}
			if version == s.version {
				continue
			}
			s.version = version
			if err := s.Refresh(ctx); err != nil {
				s.log.Warn("Failed to refresh subscribed keys", "error", err)
			}
		}
	}
}

func (s *Store) dataVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := s.conn.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read data version: %w", err)
	}
	return v, nil
}

func (s *Store) remember(key string, value *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.wrote[key] = s.seq
	if value == nil {
		s.seen[key] = nil
		return
	}
	v := *value
	s.seen[key] = &v
}

func sameValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
