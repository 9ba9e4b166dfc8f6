// Package usercache implements the XDG-rooted, cross-repository cache
// that survives branch deletion: a content-hash keyed file-summary
// cache. It holds no per-branch UI state. Grounded on
// original_source/forge/session/manager.py's _get_cache_dir /
// _get_cache_key / _get_cached_summary / _cache_summary, and on
// _examples/theRebelliousNerd-codenerd/internal/store/local_core.go's
// mattn/go-sqlite3 connection setup (single-writer WAL pragma stanza).
package usercache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"forge/internal/logging"
)

// Dir returns the forge cache root: $XDG_CACHE_HOME/forge, falling back
// to ~/.cache/forge per the XDG base directory spec.
func Dir() (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "forge"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("usercache: resolving home dir: %w", err)
	}
	return filepath.Join(home, ".cache", "forge"), nil
}

// SummaryCache is a sqlite-backed cache of file summaries keyed by
// (blob OID, path) so a summary survives as long as the blob does,
// regardless of which branch currently points at it.
type SummaryCache struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenSummaryCache opens (creating if absent) the shared summary cache
// database under the XDG cache dir.
func OpenSummaryCache() (*SummaryCache, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("usercache: creating cache dir: %w", err)
	}
	path := filepath.Join(dir, "summaries.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("usercache: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.Get(logging.CategorySession).Warn("usercache: %s failed: %v", pragma, err)
		}
	}

	c := &SummaryCache{db: db}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SummaryCache) initSchema() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS summaries (
			blob_oid TEXT NOT NULL,
			path     TEXT NOT NULL,
			summary  TEXT NOT NULL,
			PRIMARY KEY (blob_oid, path)
		)
	`)
	return err
}

// Get returns the cached summary for (blobOID, path), if present.
func (c *SummaryCache) Get(blobOID, path string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var summary string
	err := c.db.QueryRow(
		"SELECT summary FROM summaries WHERE blob_oid = ? AND path = ?",
		blobOID, path,
	).Scan(&summary)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return summary, true, nil
}

// Put stores summary for (blobOID, path), replacing any prior entry —
// the blob OID changing whenever content changes is what makes this
// cache correct without an explicit invalidation path.
func (c *SummaryCache) Put(blobOID, path, summary string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.Exec(
		"INSERT OR REPLACE INTO summaries (blob_oid, path, summary) VALUES (?, ?, ?)",
		blobOID, path, summary,
	)
	return err
}

// Close releases the underlying database connection.
func (c *SummaryCache) Close() error {
	return c.db.Close()
}
