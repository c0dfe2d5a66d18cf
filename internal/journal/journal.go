// Package journal persists the run history in a per-project SQLite database:
// phase transitions, gate evaluations, and recovery iterations. The journal
// backs the status command's history view; the pipeline state itself lives
// in .popeye/pipeline.json.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/randalmurphal/popeye/internal/pipeline"
)

// FileName is the journal database filename under the state directory.
const FileName = "journal.db"

const schema = `
CREATE TABLE IF NOT EXISTS transitions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	from_phase TEXT NOT NULL,
	to_phase TEXT NOT NULL,
	recovery_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS gates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	phase TEXT NOT NULL,
	pass INTEGER NOT NULL,
	blockers TEXT NOT NULL DEFAULT '',
	score REAL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS recoveries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	failed_phase TEXT NOT NULL,
	rewind_to TEXT NOT NULL,
	iteration INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
`

// Journal records pipeline history in SQLite.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal database for a project.
func Open(projectDir string) (*Journal, error) {
	dir := filepath.Join(projectDir, pipeline.StateDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordTransition logs a phase transition.
func (j *Journal) RecordTransition(from, to pipeline.Phase, recoveryCount int) error {
	_, err := j.db.Exec(
		`INSERT INTO transitions (from_phase, to_phase, recovery_count, created_at) VALUES (?, ?, ?, ?)`,
		string(from), string(to), recoveryCount, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// RecordGate logs a gate evaluation.
func (j *Journal) RecordGate(result pipeline.GateResult) error {
	blockers := ""
	for i, b := range result.Blockers {
		if i > 0 {
			blockers += "; "
		}
		blockers += b
	}
	var score any
	if result.Score != nil {
		score = *result.Score
	}
	_, err := j.db.Exec(
		`INSERT INTO gates (phase, pass, blockers, score, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(result.Phase), boolToInt(result.Pass), blockers, score,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record gate: %w", err)
	}
	return nil
}

// RecordRecovery logs one recovery iteration.
func (j *Journal) RecordRecovery(failed, rewindTo pipeline.Phase, iteration int) error {
	_, err := j.db.Exec(
		`INSERT INTO recoveries (failed_phase, rewind_to, iteration, created_at) VALUES (?, ?, ?, ?)`,
		string(failed), string(rewindTo), iteration, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record recovery: %w", err)
	}
	return nil
}

// Transition is one journaled phase transition.
type Transition struct {
	From          pipeline.Phase
	To            pipeline.Phase
	RecoveryCount int
	CreatedAt     string
}

// History returns the most recent transitions, newest first.
func (j *Journal) History(limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.Query(
		`SELECT from_phase, to_phase, recovery_count, created_at FROM transitions ORDER BY id DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		var from, to string
		if err := rows.Scan(&from, &to, &t.RecoveryCount, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.From = pipeline.Phase(from)
		t.To = pipeline.Phase(to)
		out = append(out, t)
	}
	return out, rows.Err()
}

// RecoveryCount returns the number of journaled recovery iterations.
func (j *Journal) RecoveryCount() (int, error) {
	var n int
	if err := j.db.QueryRow(`SELECT COUNT(*) FROM recoveries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recoveries: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
