// Package storage persists a built protocol's graph.Snapshot across CLI
// invocations using SQLite. It is a collaborator, not part of
// internal/graph's tested invariants: a Protocol never depends on this
// package, only cmd/pbuild does, to save after "build"/"build-and-sign"
// and to read back for "visualize" and "list".
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bitvmx-labs/protocol-builder/internal/graph"
)

// ErrNotFound is returned by Load for a protocol name with no saved
// snapshot.
var ErrNotFound = errors.New("storage: protocol not found")

// Store is the persistence interface SQLiteStore satisfies. cmd/pbuild
// currently holds a *SQLiteStore directly rather than a Store.
type Store interface {
	Save(snap graph.Snapshot) error
	Load(name string) (graph.Snapshot, error)
	Delete(name string) error
	List() ([]string, error)
	Close() error
}

// SQLiteStore stores every protocol's snapshot as one row in a single
// SQLite database under DataDir.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds SQLiteStore settings.
type Config struct {
	DataDir string
}

// New creates a SQLiteStore, creating its data directory and database file
// if necessary.
func New(cfg *Config) (*SQLiteStore, error) {
	dataDir := expandPath(cfg.DataDir)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("storage: create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "pbuild.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db, dbPath: dbPath}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS protocols (
		name TEXT PRIMARY KEY,
		snapshot BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save writes snap to the protocols table, overwriting any previous
// snapshot under the same protocol name.
func (s *SQLiteStore) Save(snap graph.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("storage: marshal snapshot: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO protocols (name, snapshot, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at
	`, snap.Name, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("storage: save snapshot %q: %w", snap.Name, err)
	}
	return nil
}

// Load reads back a previously saved snapshot by protocol name.
func (s *SQLiteStore) Load(name string) (graph.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data []byte
	err := s.db.QueryRow(`SELECT snapshot FROM protocols WHERE name = ?`, name).Scan(&data)
	if err == sql.ErrNoRows {
		return graph.Snapshot{}, fmt.Errorf("storage: load snapshot %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return graph.Snapshot{}, fmt.Errorf("storage: load snapshot %q: %w", name, err)
	}

	var snap graph.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return graph.Snapshot{}, fmt.Errorf("storage: parse snapshot %q: %w", name, err)
	}
	return snap, nil
}

// Delete removes a saved snapshot. It is not an error to delete one that
// doesn't exist.
func (s *SQLiteStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM protocols WHERE name = ?`, name); err != nil {
		return fmt.Errorf("storage: delete snapshot %q: %w", name, err)
	}
	return nil
}

// List returns the protocol names with a saved snapshot.
func (s *SQLiteStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT name FROM protocols ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("storage: list protocols: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("storage: scan protocol name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
