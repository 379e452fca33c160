package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"nanoclaw/internal/api"
)

// ErrNotFound is returned when a key or component has no stored row.
var ErrNotFound = errors.New("not found")

// ComponentRecord is the persisted view of one component.
type ComponentRecord struct {
	ComponentID   string
	Status        api.ComponentState
	Health        api.HealthStatus
	LastHeartbeat time.Time
	Usage         api.ResourceUsage
	Metrics       api.ComponentCounters
	UpdatedAt     time.Time
}

// Entry is one global key/value row.
type Entry struct {
	Key       string
	Value     json.RawMessage
	UpdatedAt time.Time
}

// SQLiteStore persists component state and global key/value snapshots.
type SQLiteStore struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
	now  func() time.Time
}

// Open opens (creating if needed) the database at path and applies
// migrations. Parent directories are created.
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc's driver serializes writers anyway; a single connection keeps
	// ":memory:" databases shared between calls.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLiteStore{conn: conn, path: path, now: time.Now}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

func (s *SQLiteStore) migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var current int
	if err := s.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1GlobalState},
		{2, migrationV2ComponentStates},
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}
	return nil
}

const migrationV1GlobalState = `
CREATE TABLE IF NOT EXISTS global_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

const migrationV2ComponentStates = `
CREATE TABLE IF NOT EXISTS slice_states (
	slice_id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	health_status TEXT NOT NULL DEFAULT 'unknown',
	last_heartbeat TEXT NOT NULL,
	resource_usage TEXT NOT NULL DEFAULT '{}',
	metrics TEXT NOT NULL DEFAULT '{}',
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_slice_states_status ON slice_states(status);
`

// SaveComponentState upserts rec. Zero timestamps are filled with the
// current time.
func (s *SQLiteStore) SaveComponentState(ctx context.Context, rec ComponentRecord) error {
	if rec.ComponentID == "" {
		return fmt.Errorf("component id must not be empty")
	}
	now := s.now()
	if rec.LastHeartbeat.IsZero() {
		rec.LastHeartbeat = now
	}
	if rec.Health == "" {
		rec.Health = api.HealthUnknown
	}

	usage, err := json.Marshal(rec.Usage)
	if err != nil {
		return fmt.Errorf("encode usage for %s: %w", rec.ComponentID, err)
	}
	metrics, err := json.Marshal(rec.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics for %s: %w", rec.ComponentID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO slice_states (slice_id, status, health_status, last_heartbeat, resource_usage, metrics, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slice_id) DO UPDATE SET
			status = excluded.status,
			health_status = excluded.health_status,
			last_heartbeat = excluded.last_heartbeat,
			resource_usage = excluded.resource_usage,
			metrics = excluded.metrics,
			updated_at = excluded.updated_at
	`, rec.ComponentID, string(rec.Status), string(rec.Health), formatTime(rec.LastHeartbeat),
		string(usage), string(metrics), formatTime(now))
	if err != nil {
		return fmt.Errorf("save state for %s: %w", rec.ComponentID, err)
	}
	return nil
}

// ComponentState returns the stored record for id, or ErrNotFound.
func (s *SQLiteStore) ComponentState(ctx context.Context, id string) (ComponentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.conn.QueryRowContext(ctx, `
		SELECT slice_id, status, health_status, last_heartbeat, resource_usage, metrics, updated_at
		FROM slice_states WHERE slice_id = ?
	`, id)
	rec, err := scanComponent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ComponentRecord{}, fmt.Errorf("component %s: %w", id, ErrNotFound)
	}
	return rec, err
}

// ListComponentStates returns every stored record ordered by id.
func (s *SQLiteStore) ListComponentStates(ctx context.Context) ([]ComponentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.QueryContext(ctx, `
		SELECT slice_id, status, health_status, last_heartbeat, resource_usage, metrics, updated_at
		FROM slice_states ORDER BY slice_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list component states: %w", err)
	}
	defer rows.Close()

	var out []ComponentRecord
	for rows.Next() {
		rec, err := scanComponent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Heartbeat refreshes last_heartbeat for id. It returns ErrNotFound when
// the component has never been saved.
func (s *SQLiteStore) Heartbeat(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.conn.ExecContext(ctx, `UPDATE slice_states SET last_heartbeat = ? WHERE slice_id = ?`,
		formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("heartbeat %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("component %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteComponentState removes the row for id. Missing rows are not an error.
func (s *SQLiteStore) DeleteComponentState(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conn.ExecContext(ctx, `DELETE FROM slice_states WHERE slice_id = ?`, id); err != nil {
		return fmt.Errorf("delete state for %s: %w", id, err)
	}
	return nil
}

// Set stores value as JSON under key.
func (s *SQLiteStore) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO global_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(data), formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Get decodes the value stored under key into out. It returns ErrNotFound
// when the key is absent.
func (s *SQLiteStore) Get(ctx context.Context, key string, out interface{}) error {
	s.mu.RLock()
	var raw string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM global_state WHERE key = ?`, key).Scan(&raw)
	s.mu.RUnlock()

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("key %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Delete removes key and reports whether it existed.
func (s *SQLiteStore) Delete(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.conn.ExecContext(ctx, `DELETE FROM global_state WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return n > 0, nil
}

// All returns every global entry ordered by key.
func (s *SQLiteStore) All(ctx context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.QueryContext(ctx, `SELECT key, value, updated_at FROM global_state ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list global state: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var value, updated string
		if err := rows.Scan(&e.Key, &value, &updated); err != nil {
			return nil, fmt.Errorf("scan global state: %w", err)
		}
		e.Value = json.RawMessage(value)
		e.UpdatedAt, _ = parseTime(updated)
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanComponent(row scanner) (ComponentRecord, error) {
	var rec ComponentRecord
	var status, health, heartbeat, usage, metrics, updated string
	if err := row.Scan(&rec.ComponentID, &status, &health, &heartbeat, &usage, &metrics, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan component state: %w", err)
	}
	rec.Status = api.ComponentState(status)
	rec.Health = api.HealthStatus(health)
	rec.LastHeartbeat, _ = parseTime(heartbeat)
	rec.UpdatedAt, _ = parseTime(updated)
	if err := json.Unmarshal([]byte(usage), &rec.Usage); err != nil {
		return rec, fmt.Errorf("decode usage for %s: %w", rec.ComponentID, err)
	}
	if err := json.Unmarshal([]byte(metrics), &rec.Metrics); err != nil {
		return rec, fmt.Errorf("decode metrics for %s: %w", rec.ComponentID, err)
	}
	return rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
