package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is an optional persistent key/blob store whose entries
// survive process restarts. It stands alone: Cache does not read from or
// write to it. Grounded on internal/store.NewStore's
// directory-creation and CREATE TABLE IF NOT EXISTS pattern.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if absent) a SQLite-backed cache store
// under dataDir.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "cache.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	s := &SQLiteStore{db: db, path: dbPath}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	const table = `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		payload BLOB,
		expires_at DATETIME,
		last_accessed_at DATETIME,
		hit_count INTEGER DEFAULT 0
	);`
	if _, err := s.db.Exec(table); err != nil {
		return fmt.Errorf("failed to create cache_entries table: %w", err)
	}
	return nil
}

// Get returns the payload for key, or (nil, false) if absent or expired.
func (s *SQLiteStore) Get(key string) ([]byte, bool) {
	var payload []byte
	var expiresAt sql.NullTime
	row := s.db.QueryRow(`SELECT payload, expires_at FROM cache_entries WHERE key = ?`, key)
	if err := row.Scan(&payload, &expiresAt); err != nil {
		return nil, false
	}
	if expiresAt.Valid && !expiresAt.Time.IsZero() && expiresAt.Time.Before(time.Now()) {
		_, _ = s.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key)
		return nil, false
	}
	_, _ = s.db.Exec(`UPDATE cache_entries SET last_accessed_at = ?, hit_count = hit_count + 1 WHERE key = ?`, time.Now(), key)
	return payload, true
}

// Set upserts payload under key with the given ttl (zero means never
// expires).
func (s *SQLiteStore) Set(key string, payload []byte, ttl time.Duration) error {
	now := time.Now()
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: now.Add(ttl), Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO cache_entries (key, payload, expires_at, last_accessed_at, hit_count)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at, last_accessed_at = excluded.last_accessed_at
	`, key, payload, expiresAt, now)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

// Delete removes key unconditionally.
func (s *SQLiteStore) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key)
	return err
}

// Sweep removes all entries whose expires_at has passed.
func (s *SQLiteStore) Sweep() error {
	_, err := s.db.Exec(`DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`, time.Now())
	return err
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
