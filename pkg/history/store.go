// Package history keeps a SQLite record of suite runs so pass rates can be
// compared across runs.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/devicelab-dev/flowtest/pkg/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    started_at INTEGER NOT NULL,
    finished_at INTEGER NOT NULL,
    source TEXT,
    base_url TEXT,
    driver TEXT,
    total INTEGER NOT NULL,
    passed INTEGER NOT NULL,
    failed INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

CREATE TABLE IF NOT EXISTS scenarios (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    story_id TEXT,
    scenario TEXT NOT NULL,
    passed BOOLEAN NOT NULL,
    duration INTEGER NOT NULL,
    steps INTEGER NOT NULL,
    first_error TEXT,
    video TEXT
);

CREATE INDEX IF NOT EXISTS idx_scenarios_run ON scenarios(run_id);
CREATE INDEX IF NOT EXISTS idx_scenarios_name ON scenarios(story_id, scenario);
`

// ErrRunNotFound is returned when a run ID is not in the store.
var ErrRunNotFound = errors.New("history: run not found")

// RunInfo describes the invocation that produced a suite result.
type RunInfo struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Source     string // requirements document path
	BaseURL    string
	Driver     string
}

// Run is one recorded suite run.
type Run struct {
	ID string
	RunInfo
	Total  int
	Passed int
	Failed int
}

// PassRate returns passed/total in percent, 0 for an empty run.
func (r Run) PassRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Passed) * 100 / float64(r.Total)
}

// ScenarioRecord is one scenario outcome within a run.
type ScenarioRecord struct {
	RunID      string
	StoryID    string
	Scenario   string
	Passed     bool
	Duration   int64 // Milliseconds
	Steps      int
	FirstError string
	Video      string
}

// ScenarioStats aggregates one scenario's outcomes across runs.
type ScenarioStats struct {
	StoryID  string
	Scenario string
	Runs     int
	Passed   int
	LastRun  time.Time
}

// PassRate returns passed/runs in percent.
func (s ScenarioStats) PassRate() float64 {
	if s.Runs == 0 {
		return 0
	}
	return float64(s.Passed) * 100 / float64(s.Runs)
}

// Flaky reports whether the scenario both passed and failed.
func (s ScenarioStats) Flaky() bool {
	return s.Passed > 0 && s.Passed < s.Runs
}

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("history path required")
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores suite under a new run ID and returns the run.
func (s *Store) Record(ctx context.Context, info RunInfo, suite *core.SuiteResult) (Run, error) {
	if suite == nil {
		return Run{}, fmt.Errorf("suite result required")
	}
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	if info.FinishedAt.IsZero() {
		info.FinishedAt = info.StartedAt
	}

	run := Run{
		ID:      ulid.MustNew(ulid.Timestamp(info.StartedAt), ulid.DefaultEntropy()).String(),
		RunInfo: info,
		Total:   suite.TotalScenarios,
		Passed:  suite.Passed,
		Failed:  suite.Failed,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, source, base_url, driver, total, passed, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		info.StartedAt.UnixMilli(),
		info.FinishedAt.UnixMilli(),
		info.Source,
		info.BaseURL,
		info.Driver,
		run.Total,
		run.Passed,
		run.Failed,
	); err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scenarios (run_id, story_id, scenario, passed, duration, steps, first_error, video)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return Run{}, fmt.Errorf("prepare scenario insert: %w", err)
	}
	defer stmt.Close()

	for _, sc := range suite.Scenarios {
		var firstErr, video string
		if len(sc.Errors) > 0 {
			firstErr = sc.Errors[0].Error
		}
		if sc.Video != nil {
			video = *sc.Video
		}
		if _, err := stmt.ExecContext(ctx,
			run.ID, sc.StoryID, sc.Scenario, sc.Passed, sc.Duration, len(sc.Steps), firstErr, video,
		); err != nil {
			return Run{}, fmt.Errorf("insert scenario %s: %w", sc.Scenario, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("commit: %w", err)
	}
	return run, nil
}

// Recent returns up to limit runs, newest first. limit <= 0 means 20.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, COALESCE(source, ''), COALESCE(base_url, ''),
		       COALESCE(driver, ''), total, passed, failed
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns one run by ID.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, COALESCE(source, ''), COALESCE(base_url, ''),
		       COALESCE(driver, ''), total, passed, failed
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return run, err
}

// Scenarios returns the scenario outcomes of a run in execution order.
func (s *Store) Scenarios(ctx context.Context, runID string) ([]ScenarioRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, COALESCE(story_id, ''), scenario, passed, duration, steps,
		       COALESCE(first_error, ''), COALESCE(video, '')
		FROM scenarios
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query scenarios: %w", err)
	}
	defer rows.Close()

	var out []ScenarioRecord
	for rows.Next() {
		var r ScenarioRecord
		if err := rows.Scan(&r.RunID, &r.StoryID, &r.Scenario, &r.Passed, &r.Duration,
			&r.Steps, &r.FirstError, &r.Video); err != nil {
			return nil, fmt.Errorf("scan scenario: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats aggregates every scenario seen in the last limit runs, ordered by
// pass rate ascending so failing scenarios come first.
func (s *Store) Stats(ctx context.Context, limit int) ([]ScenarioStats, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(sc.story_id, ''), sc.scenario, COUNT(*),
		       SUM(CASE WHEN sc.passed THEN 1 ELSE 0 END), MAX(r.started_at)
		FROM scenarios sc
		JOIN (SELECT id, started_at FROM runs ORDER BY started_at DESC, id DESC LIMIT ?) r
		  ON r.id = sc.run_id
		GROUP BY sc.story_id, sc.scenario
		ORDER BY CAST(SUM(CASE WHEN sc.passed THEN 1 ELSE 0 END) AS REAL) / COUNT(*),
		         sc.story_id, sc.scenario
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var out []ScenarioStats
	for rows.Next() {
		var st ScenarioStats
		var last int64
		if err := rows.Scan(&st.StoryID, &st.Scenario, &st.Runs, &st.Passed, &last); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		st.LastRun = time.UnixMilli(last)
		out = append(out, st)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep runs and returns how many were
// removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, id DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var started, finished int64
	if err := row.Scan(&run.ID, &started, &finished, &run.Source, &run.BaseURL,
		&run.Driver, &run.Total, &run.Passed, &run.Failed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt = time.UnixMilli(started)
	run.FinishedAt = time.UnixMilli(finished)
	return run, nil
}
