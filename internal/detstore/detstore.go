// Package detstore caches matched detector sets in SQLite, keyed by a
// blake3 fingerprint of the fragment boundary they were derived from.
// Re-annotating large computations hits the cache instead of re-running
// the cover search.
package detstore

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite"
)

// Entry is one cached boundary result: the detector offset sets plus
// the diagnostic messages the match produced.
type Entry struct {
	Detectors [][]int  `json:"detectors"`
	Warnings  []string `json:"warnings"`
}

// Store is a sqlite-backed detector cache.
type Store struct {
	db    *sql.DB
	mu    sync.Mutex
	runID string
}

// Open initializes the cache database at the given path, creating the
// schema on first use.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	s := &Store{db: db, runID: uuid.NewString()}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS boundary_detectors (
		fingerprint TEXT PRIMARY KEY,
		payload     TEXT NOT NULL,
		run_id      TEXT NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_boundary_run ON boundary_detectors(run_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initializing cache schema: %w", err)
	}
	return nil
}

// RunID identifies this store session in rows it writes.
func (s *Store) RunID() string { return s.runID }

// Fingerprint hashes the canonical encodings of a boundary into a cache
// key.
func Fingerprint(parts ...string) string {
	h := blake3.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Lookup returns the cached entry for a fingerprint, if present.
func (s *Store) Lookup(fingerprint string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload string
	err := s.db.QueryRow(
		`SELECT payload FROM boundary_detectors WHERE fingerprint = ?`, fingerprint,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache lookup: %w", err)
	}
	var e Entry
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return Entry{}, false, fmt.Errorf("decoding cache entry: %w", err)
	}
	return e, true, nil
}

// Save stores a boundary result, replacing any previous entry for the
// same fingerprint.
func (s *Store) Save(fingerprint string, e Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO boundary_detectors (fingerprint, payload, run_id) VALUES (?, ?, ?)`,
		fingerprint, string(payload), s.runID,
	)
	if err != nil {
		return fmt.Errorf("cache save: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
