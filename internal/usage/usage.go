// Package usage provides persistent token accounting for pipeline
// runs. Every agent session appends one record tagged with the run,
// stage, and ticker it served, so token spend can be broken down per
// stage after the fact. Records are append-only.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record is a single agent session's token usage.
type Record struct {
	ID           string
	Timestamp    time.Time
	RunID        string
	Project      string
	Stage        string // research, extraction, analysis, visualization
	Ticker       string // empty for stages that span the whole project
	Provider     string
	Model        string
	Turns        int
	InputTokens  int
	OutputTokens int
}

// Summary aggregates records over some slice of the ledger.
type Summary struct {
	Sessions     int   `json:"sessions"`
	Turns        int64 `json:"turns"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// TotalTokens returns input plus output tokens.
func (s *Summary) TotalTokens() int64 {
	return s.InputTokens + s.OutputTokens
}

// Store persists usage records in SQLite. It shares the project
// registry database, so callers open the connection and hand it in.
type Store struct {
	db *sql.DB
}

// NewStore prepares a usage store on an open database, creating the
// schema if needed.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrating usage schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS usage_records (
			id            TEXT PRIMARY KEY,
			timestamp     TEXT NOT NULL,
			run_id        TEXT NOT NULL,
			project       TEXT NOT NULL,
			stage         TEXT NOT NULL,
			ticker        TEXT NOT NULL DEFAULT '',
			provider      TEXT NOT NULL,
			model         TEXT NOT NULL DEFAULT '',
			turns         INTEGER NOT NULL DEFAULT 0,
			input_tokens  INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_usage_run ON usage_records(run_id);
		CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage_records(timestamp);
		CREATE INDEX IF NOT EXISTS idx_usage_project ON usage_records(project);
	`)
	return err
}

// Record appends one usage record. A missing ID or timestamp is
// filled in; timestamps are stored as RFC 3339 UTC text.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generating record ID: %w", err)
		}
		rec.ID = id.String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records
			(id, timestamp, run_id, project, stage, ticker, provider, model, turns, input_tokens, output_tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.UTC().Format(time.RFC3339), rec.RunID, rec.Project,
		rec.Stage, rec.Ticker, rec.Provider, rec.Model,
		rec.Turns, rec.InputTokens, rec.OutputTokens,
	)
	if err != nil {
		return fmt.Errorf("recording usage: %w", err)
	}
	return nil
}

// RunSummary totals all records for one run.
func (s *Store) RunSummary(ctx context.Context, runID string) (*Summary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(turns), 0),
		       COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0)
		FROM usage_records WHERE run_id = ?`, runID)
	var sum Summary
	if err := row.Scan(&sum.Sessions, &sum.Turns, &sum.InputTokens, &sum.OutputTokens); err != nil {
		return nil, fmt.Errorf("summarizing run %s: %w", runID, err)
	}
	return &sum, nil
}

// StageSummary is a per-stage slice of a run's usage.
type StageSummary struct {
	Stage string
	Summary
}

// RunSummaryByStage breaks a run's usage down per stage, in the order
// the stages first recorded.
func (s *Store) RunSummaryByStage(ctx context.Context, runID string) ([]StageSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage,
		       COUNT(*),
		       COALESCE(SUM(turns), 0),
		       COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0)
		FROM usage_records WHERE run_id = ?
		GROUP BY stage ORDER BY MIN(timestamp), MIN(id)`, runID)
	if err != nil {
		return nil, fmt.Errorf("summarizing run %s by stage: %w", runID, err)
	}
	defer rows.Close()

	var out []StageSummary
	for rows.Next() {
		var ss StageSummary
		if err := rows.Scan(&ss.Stage, &ss.Sessions, &ss.Turns, &ss.InputTokens, &ss.OutputTokens); err != nil {
			return nil, fmt.Errorf("scanning stage summary: %w", err)
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

// ProjectSummary totals all records ever written for one project
// across runs.
func (s *Store) ProjectSummary(ctx context.Context, project string) (*Summary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(turns), 0),
		       COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0)
		FROM usage_records WHERE project = ?`, project)
	var sum Summary
	if err := row.Scan(&sum.Sessions, &sum.Turns, &sum.InputTokens, &sum.OutputTokens); err != nil {
		return nil, fmt.Errorf("summarizing project %s: %w", project, err)
	}
	return &sum, nil
}
