// Package audit records per-pattern evaluation outcomes in DuckDB for
// offline analysis (match rates, slow patterns). Recording is strictly
// best-effort: an audit failure is logged and the evaluation run proceeds.
package audit

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/tliron/commonlog"
)

// Recorder writes evaluation outcomes. Implements engine.Observer.
type Recorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log commonlog.Logger
}

// Open opens (or creates) the audit database at path. An empty path opens an
// in-memory database.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS evaluations (
		run_id VARCHAR NOT NULL,
		pattern_id VARCHAR NOT NULL,
		matched BOOLEAN NOT NULL,
		duration_ms BIGINT NOT NULL,
		recorded_at TIMESTAMP NOT NULL DEFAULT current_timestamp
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating evaluations table: %w", err)
	}

	return &Recorder{
		db:  db,
		log: commonlog.GetLogger("starmatch.audit"),
	}, nil
}

// Close closes the audit database.
func (r *Recorder) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Record stores one evaluation outcome. Failures are logged, never returned.
func (r *Recorder) Record(runID, patternID string, matched bool, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(
		"INSERT INTO evaluations (run_id, pattern_id, matched, duration_ms) VALUES (?, ?, ?, ?)",
		runID, patternID, matched, elapsed.Milliseconds(),
	)
	if err != nil {
		r.log.Warningf("failed to record evaluation of %s: %v", patternID, err)
	}
}

// Counts summarizes one pattern's recorded history.
type Counts struct {
	PatternID string
	Runs      int64
	Matches   int64
}

// MatchCounts aggregates run and match totals per pattern.
func (r *Recorder) MatchCounts() ([]Counts, error) {
	rows, err := r.db.Query(`
		SELECT pattern_id,
		       COUNT(*),
		       SUM(CASE WHEN matched THEN 1 ELSE 0 END)
		FROM evaluations
		GROUP BY pattern_id
		ORDER BY pattern_id`)
	if err != nil {
		return nil, fmt.Errorf("querying match counts: %w", err)
	}
	defer rows.Close()

	var out []Counts
	for rows.Next() {
		var c Counts
		if err := rows.Scan(&c.PatternID, &c.Runs, &c.Matches); err != nil {
			return nil, fmt.Errorf("scanning match counts: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
