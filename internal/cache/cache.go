// Package cache persists analysis results keyed by target path, source
// content and configuration, so unchanged files are not re-analysed.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/zeebo/xxh3"
)

// Cache wraps a SQLite database of analysis results.
type Cache struct {
	db *sql.DB
}

// fileHashes records the content hash of every file that contributed to a
// cached entry, the target itself included. An entry is valid only while
// all of them still match.
type fileHashes map[string]string

const schema = `
CREATE TABLE IF NOT EXISTS results (
	target     TEXT NOT NULL,
	config     TEXT NOT NULL,
	files      TEXT NOT NULL,
	payload    BLOB NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (target, config)
);`

// DefaultPath returns the per-user cache database location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, ".cache", "rattr", "results.db"), nil
}

// Open opens or creates the cache database at path.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir cache: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the database.
func (c *Cache) Close() error { return c.db.Close() }

// Get returns the cached payload for target under configHash, re-hashing
// every contributing file to check the entry is still valid.
func (c *Cache) Get(target, configHash string) ([]byte, bool) {
	var filesJSON string
	var payload []byte
	err := c.db.QueryRow(
		`SELECT files, payload FROM results WHERE target = ? AND config = ?`,
		target, configHash,
	).Scan(&filesJSON, &payload)
	if err != nil {
		return nil, false
	}

	var hashes fileHashes
	if err := json.Unmarshal([]byte(filesJSON), &hashes); err != nil {
		return nil, false
	}
	for path, want := range hashes {
		got, err := FileHash(path)
		if err != nil || got != want {
			return nil, false
		}
	}
	return payload, true
}

// Put stores payload for target under configHash, recording the current
// hash of every contributing file.
func (c *Cache) Put(target, configHash string, files []string, payload []byte) error {
	hashes := make(fileHashes, len(files)+1)
	for _, path := range append([]string{target}, files...) {
		h, err := FileHash(path)
		if err != nil {
			return fmt.Errorf("hash %s: %w", path, err)
		}
		hashes[path] = h
	}
	filesJSON, err := json.Marshal(hashes)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(
		`INSERT OR REPLACE INTO results (target, config, files, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		target, configHash, string(filesJSON), payload,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// FileHash returns the content hash of one file.
func FileHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return HashBytes(data), nil
}

// HashBytes returns the hash of a byte slice.
func HashBytes(data []byte) string {
	sum := xxh3.Hash128(data)
	return fmt.Sprintf("%016x%016x", sum.Hi, sum.Lo)
}

// ConfigHash returns the hash of a configuration fingerprint string.
func ConfigHash(fingerprint string) string {
	return HashBytes([]byte(fingerprint))
}
