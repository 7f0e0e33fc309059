// Package store persists pattern records in SQLite. Patterns are
// create-and-list only: a record's id is assigned once, never reused, and the
// record is never updated in place. Script text is stored verbatim and stays
// untrusted even after it is read back.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/kexing/starmatch/sandbox"
)

// Pattern is one stored predicate script plus its descriptive metadata.
type Pattern struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Script      string    `json:"script"`
	Description string    `json:"description"`
	Examples    string    `json:"examples"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ValidationError rejects a create call before anything touches storage.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid pattern: %s: %s", e.Field, e.Reason)
}

// Store is the durable pattern store. Writes are serialized; reads may run
// concurrently.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	log commonlog.Logger
}

// Open opens (or creates) the pattern database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS patterns (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		script TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		examples TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating patterns table: %w", err)
	}

	return &Store{
		db:  db,
		log: commonlog.GetLogger("starmatch.store"),
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Create validates and durably persists a new pattern, returning its id.
// Name and script are required; the script must also pass the static
// deny-list scan, which keeps known-hostile scripts out of storage.
func (s *Store) Create(name, script, description, examples string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", &ValidationError{Field: "name", Reason: "must not be blank"}
	}
	if strings.TrimSpace(script) == "" {
		return "", &ValidationError{Field: "script", Reason: "must not be blank"}
	}
	if err := sandbox.ScanScript(script); err != nil {
		return "", &ValidationError{Field: "script", Reason: err.Error()}
	}

	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("beginning insert: %w", err)
	}
	_, err = tx.Exec(
		"INSERT INTO patterns (id, name, script, description, examples, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, name, script, description, examples, time.Now().Unix(),
	)
	if err != nil {
		tx.Rollback()
		return "", fmt.Errorf("inserting pattern: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing pattern: %w", err)
	}

	s.log.Debugf("created pattern %s (%s)", id, name)
	return id, nil
}

// List returns all committed patterns in creation order.
func (s *Store) List() ([]Pattern, error) {
	rows, err := s.db.Query(
		"SELECT id, name, script, description, examples, created_at FROM patterns ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("querying patterns: %w", err)
	}
	defer rows.Close()

	var patterns []Pattern
	for rows.Next() {
		var p Pattern
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.Name, &p.Script, &p.Description, &p.Examples, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning pattern: %w", err)
		}
		p.CreatedAt = time.Unix(createdAt, 0)
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading patterns: %w", err)
	}
	return patterns, nil
}

// Count returns the number of stored patterns.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM patterns").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting patterns: %w", err)
	}
	return n, nil
}
