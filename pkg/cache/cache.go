// Package cache stores finished decompilation envelopes in SQLite, keyed by
// the content of the bytecode they were built from. Re-decompiling an
// unchanged code object is a lookup.
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
	"time"

	_ "modernc.org/sqlite"

	"github.com/chazu/retrograde/pkg/pyc"
)

// ErrMiss indicates no cached build exists for the key.
var ErrMiss = errors.New("cache: no entry")

// Cache is a SQLite-backed store of decompilation envelopes.
type Cache struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open opens or creates a cache database at the given path.
func Open(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS builds (
		key TEXT PRIMARY KEY,
		dialect TEXT NOT NULL,
		code_name TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		envelope BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating builds table: %w", err)
	}

	return &Cache{db: db, dbPath: dbPath}, nil
}

// OpenDefault opens the cache at its default location.
func OpenDefault() (*Cache, error) {
	dbPath := os.Getenv("RETROGRADE_CACHE_DB")
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home dir: %w", err)
		}
		dbPath = filepath.Join(home, ".retrograde", "builds.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return Open(dbPath)
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Key derives the cache key for a code object under a dialect: the content
// hash of its serialized form (instruction bytes, constant pool, name
// tables, nested code objects), salted with the dialect so the same content
// decompiled under two versions occupies two entries.
func Key(code *pyc.Code, version pyc.Version) string {
	h := sha256.New()
	h.Write([]byte(version.String()))
	h.Write([]byte{0})
	h.Write(pyc.SerializeCode(code))
	return hex.EncodeToString(h.Sum(nil))
}

// Put stores a marshaled envelope under the code object's key, replacing
// any previous build.
func (c *Cache) Put(code *pyc.Code, version pyc.Version, envelope []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(
		"INSERT OR REPLACE INTO builds (key, dialect, code_name, created_at, envelope) VALUES (?, ?, ?, ?, ?)",
		Key(code, version), version.String(), code.Name, time.Now().Unix(), envelope,
	)
	if err != nil {
		return fmt.Errorf("saving build: %w", err)
	}
	return nil
}

// Get returns the marshaled envelope for a code object, or ErrMiss.
func (c *Cache) Get(code *pyc.Code, version pyc.Version) ([]byte, error) {
	var envelope []byte
	err := c.db.QueryRow(
		"SELECT envelope FROM builds WHERE key = ?", Key(code, version),
	).Scan(&envelope)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("querying build: %w", err)
	}
	return envelope, nil
}

// Delete removes one entry. Deleting a missing key is not an error.
func (c *Cache) Delete(code *pyc.Code, version pyc.Version) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec("DELETE FROM builds WHERE key = ?", Key(code, version)); err != nil {
		return fmt.Errorf("deleting build: %w", err)
	}
	return nil
}

// Count returns the number of cached builds.
func (c *Cache) Count() (int, error) {
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM builds").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting builds: %w", err)
	}
	return n, nil
}

// Prune removes entries older than the cutoff.
func (c *Cache) Prune(olderThan time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.Exec("DELETE FROM builds WHERE created_at < ?", olderThan.Unix())
	if err != nil {
		return 0, fmt.Errorf("pruning builds: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
