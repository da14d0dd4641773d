// Package history persists finding fingerprints across processing runs so a
// run can be diffed against the previous one: which findings are new, which
// recur, and which have been resolved.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/threatcanvas/sdk/pkg/report"
	"github.com/threatcanvas/sdk/pkg/threats"
)

// Config configures the history store.
type Config struct {
	// DatabasePath is the SQLite database file.
	DatabasePath string
}

// DefaultConfig returns a config storing under the user's home directory.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		DatabasePath: filepath.Join(home, ".threatcanvas", "history.db"),
	}
}

// Store provides SQLite-based finding history.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore opens (creating if needed) the history database.
func NewStore(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	dir := filepath.Dir(cfg.DatabasePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		ran_at TIMESTAMP NOT NULL,
		findings_count INTEGER NOT NULL,
		highest_severity TEXT
	);

	CREATE TABLE IF NOT EXISTS findings (
		fingerprint TEXT NOT NULL,
		model TEXT NOT NULL,
		rule_id TEXT NOT NULL,
		severity TEXT NOT NULL,
		target TEXT NOT NULL,
		first_seen TIMESTAMP NOT NULL,
		last_seen TIMESTAMP NOT NULL,
		resolved_at TIMESTAMP,
		PRIMARY KEY (model, fingerprint)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_model ON runs(model, ran_at);
	CREATE INDEX IF NOT EXISTS idx_findings_model ON findings(model);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Diff is the comparison of a run against the stored history of its model.
type Diff struct {
	// New are findings whose fingerprint was never seen before (or was
	// previously resolved).
	New []threats.Finding

	// Recurring counts findings already present in history.
	Recurring int

	// Resolved are fingerprints that were active before this run and did
	// not appear in it.
	Resolved []string
}

// RunRecord is one stored processing run.
type RunRecord struct {
	ID              string
	Model           string
	RanAt           time.Time
	FindingsCount   int
	HighestSeverity string
}

// RecordRun stores the run, upserts its findings, marks history entries
// missing from the run as resolved, and returns the diff.
func (s *Store) RecordRun(ctx context.Context, r *report.Report) (*Diff, error) {
	if r == nil {
		return nil, fmt.Errorf("record run: report is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := r.Metadata.Timestamp
	model := r.Model.Name

	active, err := activeFingerprints(ctx, tx, model)
	if err != nil {
		return nil, err
	}

	diff := &Diff{}
	current := make(map[string]bool, len(r.Findings))
	for _, f := range r.Findings {
		current[f.Fingerprint] = true
		if active[f.Fingerprint] {
			diff.Recurring++
		} else {
			diff.New = append(diff.New, f)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO findings (
				fingerprint, model, rule_id, severity, target,
				first_seen, last_seen, resolved_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
			ON CONFLICT(model, fingerprint) DO UPDATE SET
				severity = excluded.severity,
				target = excluded.target,
				last_seen = excluded.last_seen,
				resolved_at = NULL
		`, f.Fingerprint, model, f.RuleID, string(f.Severity), f.Target, now, now)
		if err != nil {
			return nil, fmt.Errorf("upsert finding: %w", err)
		}
	}

	for fp := range active {
		if current[fp] {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE findings SET resolved_at = ? WHERE model = ? AND fingerprint = ?`,
			now, model, fp); err != nil {
			return nil, fmt.Errorf("resolve finding: %w", err)
		}
		diff.Resolved = append(diff.Resolved, fp)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, model, ran_at, findings_count, highest_severity)
		VALUES (?, ?, ?, ?, ?)
	`, r.Metadata.ID, model, now, len(r.Findings), string(r.HighestSeverity()))
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return diff, nil
}

// Runs returns the most recent runs for a model, newest first.
func (s *Store) Runs(ctx context.Context, model string, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, model, ran_at, findings_count, highest_severity
		FROM runs
		WHERE model = ?
		ORDER BY ran_at DESC
		LIMIT ?
	`, model, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.Model, &r.RanAt, &r.FindingsCount, &r.HighestSeverity); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ActiveCount returns how many unresolved findings the model has in history.
func (s *Store) ActiveCount(ctx context.Context, model string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM findings WHERE model = ? AND resolved_at IS NULL`,
		model).Scan(&n)
	return n, err
}

// Prune removes runs older than the retention window and findings that have
// been resolved for longer than it. Active findings are kept regardless of
// age so first_seen stays accurate. Returns how many rows were removed.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("prune: retention must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-retention)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var removed int64
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE ran_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}

	res, err = tx.ExecContext(ctx,
		`DELETE FROM findings WHERE resolved_at IS NOT NULL AND resolved_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune findings: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(removed), nil
}

func activeFingerprints(ctx context.Context, tx *sql.Tx, model string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT fingerprint FROM findings WHERE model = ? AND resolved_at IS NULL`, model)
	if err != nil {
		return nil, fmt.Errorf("query active findings: %w", err)
	}
	defer rows.Close()

	active := make(map[string]bool)
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, err
		}
		active[fp] = true
	}
	return active, rows.Err()
}
