package usage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store, err := NewStore(db)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	return store
}

func TestRecordAndRunSummary(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	records := []Record{
		{RunID: "run-1", Project: "ai-capex", Stage: "research", Provider: "anthropic", Turns: 4, InputTokens: 1200, OutputTokens: 300},
		{RunID: "run-1", Project: "ai-capex", Stage: "extraction", Ticker: "MSFT", Provider: "anthropic", Turns: 9, InputTokens: 8000, OutputTokens: 2400},
		{RunID: "run-1", Project: "ai-capex", Stage: "extraction", Ticker: "NVDA", Provider: "anthropic", Turns: 7, InputTokens: 7000, OutputTokens: 2100},
		{RunID: "run-2", Project: "other", Stage: "research", Provider: "openai", Turns: 3, InputTokens: 500, OutputTokens: 100},
	}
	for _, rec := range records {
		if err := store.Record(ctx, rec); err != nil {
			t.Fatalf("recording: %v", err)
		}
	}

	sum, err := store.RunSummary(ctx, "run-1")
	if err != nil {
		t.Fatalf("summarizing: %v", err)
	}
	if sum.Sessions != 3 {
		t.Errorf("sessions = %d, want 3", sum.Sessions)
	}
	if sum.Turns != 20 {
		t.Errorf("turns = %d, want 20", sum.Turns)
	}
	if sum.InputTokens != 16200 {
		t.Errorf("input tokens = %d, want 16200", sum.InputTokens)
	}
	if sum.OutputTokens != 4800 {
		t.Errorf("output tokens = %d, want 4800", sum.OutputTokens)
	}
	if got := sum.TotalTokens(); got != 21000 {
		t.Errorf("total tokens = %d, want 21000", got)
	}
}

func TestRunSummaryEmptyRun(t *testing.T) {
	store := setupTestStore(t)

	sum, err := store.RunSummary(context.Background(), "no-such-run")
	if err != nil {
		t.Fatalf("summarizing empty run: %v", err)
	}
	if sum.Sessions != 0 || sum.TotalTokens() != 0 {
		t.Errorf("empty run summary = %+v, want zeros", sum)
	}
}

func TestRecordFillsIDAndTimestamp(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, Record{RunID: "run-1", Project: "p", Stage: "research", Provider: "local"}); err != nil {
		t.Fatalf("recording: %v", err)
	}

	var id, ts string
	row := store.db.QueryRow(`SELECT id, timestamp FROM usage_records WHERE run_id = 'run-1'`)
	if err := row.Scan(&id, &ts); err != nil {
		t.Fatalf("scanning: %v", err)
	}
	if id == "" {
		t.Error("expected generated record ID")
	}
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		t.Fatalf("timestamp %q is not RFC 3339: %v", ts, err)
	}
	if time.Since(parsed) > time.Minute {
		t.Errorf("timestamp %v is not recent", parsed)
	}
}

func TestRunSummaryByStage(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	records := []Record{
		{Timestamp: base, RunID: "run-1", Project: "p", Stage: "research", Provider: "local", Turns: 2, InputTokens: 100, OutputTokens: 50},
		{Timestamp: base.Add(1 * time.Minute), RunID: "run-1", Project: "p", Stage: "extraction", Ticker: "AAPL", Provider: "local", Turns: 5, InputTokens: 900, OutputTokens: 200},
		{Timestamp: base.Add(2 * time.Minute), RunID: "run-1", Project: "p", Stage: "extraction", Ticker: "MSFT", Provider: "local", Turns: 6, InputTokens: 1100, OutputTokens: 250},
		{Timestamp: base.Add(3 * time.Minute), RunID: "run-1", Project: "p", Stage: "analysis", Ticker: "AAPL", Provider: "local", Turns: 4, InputTokens: 700, OutputTokens: 400},
	}
	for _, rec := range records {
		if err := store.Record(ctx, rec); err != nil {
			t.Fatalf("recording: %v", err)
		}
	}

	stages, err := store.RunSummaryByStage(ctx, "run-1")
	if err != nil {
		t.Fatalf("summarizing by stage: %v", err)
	}
	if len(stages) != 3 {
		t.Fatalf("got %d stages, want 3", len(stages))
	}
	order := []string{"research", "extraction", "analysis"}
	for i, want := range order {
		if stages[i].Stage != want {
			t.Errorf("stage[%d] = %q, want %q", i, stages[i].Stage, want)
		}
	}
	if stages[1].Sessions != 2 {
		t.Errorf("extraction sessions = %d, want 2", stages[1].Sessions)
	}
	if stages[1].InputTokens != 2000 {
		t.Errorf("extraction input tokens = %d, want 2000", stages[1].InputTokens)
	}
}

func TestProjectSummaryAcrossRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	records := []Record{
		{RunID: "run-1", Project: "ai-capex", Stage: "research", Provider: "local", InputTokens: 100, OutputTokens: 10},
		{RunID: "run-2", Project: "ai-capex", Stage: "research", Provider: "local", InputTokens: 200, OutputTokens: 20},
		{RunID: "run-3", Project: "other", Stage: "research", Provider: "local", InputTokens: 999, OutputTokens: 99},
	}
	for _, rec := range records {
		if err := store.Record(ctx, rec); err != nil {
			t.Fatalf("recording: %v", err)
		}
	}

	sum, err := store.ProjectSummary(ctx, "ai-capex")
	if err != nil {
		t.Fatalf("summarizing project: %v", err)
	}
	if sum.Sessions != 2 {
		t.Errorf("sessions = %d, want 2", sum.Sessions)
	}
	if sum.InputTokens != 300 || sum.OutputTokens != 30 {
		t.Errorf("tokens = %d/%d, want 300/30", sum.InputTokens, sum.OutputTokens)
	}
}
