// Package cache stores compiled modules in a SQLite database keyed by the
// SHA-256 of their source text, so unchanged scripts skip compilation.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/chazu/lark/bytecode"
)

// ErrMiss indicates the requested module is not cached.
var ErrMiss = errors.New("module not cached")

// Cache is a SQLite-backed store of compiled modules.
type Cache struct {
	db *sql.DB
	mu sync.Mutex
}

// Key returns the cache key for a source text.
func Key(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// Open creates or opens a cache database at path, creating parent
// directories as needed.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Create table if needed
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS modules (
		hash TEXT PRIMARY KEY,
		module BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating modules table: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Put stores a compiled module under hash, replacing any previous entry.
func (c *Cache) Put(hash string, module *bytecode.Module) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	blob, err := bytecode.MarshalModule(module)
	if err != nil {
		return fmt.Errorf("encoding module: %w", err)
	}

	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO modules (hash, module) VALUES (?, ?)",
		hash, blob,
	)
	if err != nil {
		return fmt.Errorf("storing module: %w", err)
	}
	return nil
}

// Get loads the module cached under hash. Returns ErrMiss when absent.
func (c *Cache) Get(hash string) (*bytecode.Module, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var blob []byte
	err := c.db.QueryRow("SELECT module FROM modules WHERE hash = ?", hash).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("loading module: %w", err)
	}

	module, err := bytecode.UnmarshalModule(blob)
	if err != nil {
		return nil, fmt.Errorf("decoding cached module: %w", err)
	}
	return module, nil
}
