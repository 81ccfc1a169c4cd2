package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ledgerline/mosaic/internal/project"
	"github.com/ledgerline/mosaic/internal/workspace"
)

func TestRunDispatch(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantOut string
		wantErr string
	}{
		{name: "no args prints usage", args: nil, wantOut: "Usage: mosaic"},
		{name: "help flag", args: []string{"-h"}, wantOut: "Usage: mosaic"},
		{name: "version", args: []string{"version"}, wantOut: "Mosaic"},
		{name: "unknown command", args: []string{"frobnicate"}, wantErr: "unknown command"},
		{name: "unknown flag", args: []string{"-frobnicate"}, wantErr: "unknown flag"},
		{name: "bad output format", args: []string{"-o", "xml", "version"}, wantErr: "unknown output format"},
		{name: "run without project", args: []string{"run"}, wantErr: "usage: mosaic run"},
		{name: "report without project", args: []string{"report"}, wantErr: "usage: mosaic report"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(context.Background(), &stdout, &stderr, tt.args)

			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want substring %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if !strings.Contains(stdout.String(), tt.wantOut) {
				t.Errorf("stdout = %q, want substring %q", stdout.String(), tt.wantOut)
			}
		})
	}
}

func TestRunVersionJSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), &stdout, &stderr, []string{"-o", "json", "version"}); err != nil {
		t.Fatalf("run: %v", err)
	}

	var info map[string]string
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		t.Fatalf("version output is not JSON: %v\n%s", err, stdout.String())
	}
	for _, key := range []string{"version", "go_version", "os"} {
		if info[key] == "" {
			t.Errorf("version JSON missing %q: %v", key, info)
		}
	}
}

// writeTestConfig writes a minimal config whose projects tree lives inside
// the test's temp directory, and returns the config path.
func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	cfgPath := filepath.Join(dir, "mosaic.yaml")
	content := fmt.Sprintf("projects:\n  dir: %s\nlog_level: warn\n", filepath.Join(dir, "projects"))
	if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func openTestStore(t *testing.T, dir string) *project.Store {
	t.Helper()
	db, err := project.Open(filepath.Join(dir, "projects", "projects.db"))
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := project.NewStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestResolveProject(t *testing.T) {
	dir := t.TempDir()
	store := openTestStore(t, dir)
	var out bytes.Buffer

	_, err := resolveProject(&out, store, "missing", "", "")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not-found guidance, got %v", err)
	}

	proj, err := resolveProject(&out, store, "fresh", "Apple Inc:AAPL", "Who wins?")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(proj.Companies) != 1 || proj.Companies[0].Ticker != "AAPL" {
		t.Errorf("companies = %v", proj.Companies)
	}
	if !strings.Contains(out.String(), "Created project") {
		t.Errorf("output = %q", out.String())
	}

	// Second resolve without flags loads the stored definition.
	proj2, err := resolveProject(&out, store, "fresh", "", "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if proj2.Question != "Who wins?" {
		t.Errorf("question = %q", proj2.Question)
	}

	// A question flag updates the stored project.
	proj3, err := resolveProject(&out, store, "fresh", "", "Who loses?")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if proj3.Question != "Who loses?" {
		t.Errorf("question = %q", proj3.Question)
	}
	stored, err := store.Get("fresh")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Question != "Who loses?" {
		t.Errorf("stored question = %q", stored.Question)
	}

	// Garbage companies are rejected.
	if _, err := resolveProject(&out, store, "fresh", "no tickers here", ""); err == nil {
		t.Error("expected parse error for malformed companies")
	}
}

func TestValidateProjectName(t *testing.T) {
	if err := validateProjectName("ai-capex"); err != nil {
		t.Errorf("valid name rejected: %v", err)
	}
	for _, bad := range []string{"", "a/b", `a\b`, "..", "."} {
		if err := validateProjectName(bad); err == nil {
			t.Errorf("name %q should be rejected", bad)
		}
	}
}

func TestRunProjects(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)

	var out bytes.Buffer
	if err := runProjects(&out, cfgPath, "text"); err != nil {
		t.Fatalf("runProjects empty: %v", err)
	}
	if !strings.Contains(out.String(), "No projects registered") {
		t.Errorf("output = %q", out.String())
	}

	store := openTestStore(t, dir)
	if err := store.Save(&project.Project{
		Name:      "ai-capex",
		Question:  "Who is best positioned?",
		Companies: []project.Company{{Name: "Microsoft Corporation", Ticker: "MSFT"}},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	out.Reset()
	if err := runProjects(&out, cfgPath, "text"); err != nil {
		t.Fatalf("runProjects: %v", err)
	}
	for _, want := range []string{"ai-capex", "MSFT", "Who is best positioned?"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output %q missing %q", out.String(), want)
		}
	}

	out.Reset()
	if err := runProjects(&out, cfgPath, "json"); err != nil {
		t.Fatalf("runProjects json: %v", err)
	}
	var decoded []project.Project
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("projects output is not JSON: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Name != "ai-capex" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestRunReport(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)
	store := openTestStore(t, dir)

	if err := store.Save(&project.Project{
		Name:      "demo",
		Question:  "q",
		Companies: []project.Company{{Name: "Apple Inc.", Ticker: "AAPL"}},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	var stdout, stderr bytes.Buffer

	// Unknown project surfaces the registry error.
	err := runReport(&stdout, &stderr, cfgPath, []string{"-project", "nope"})
	if !errors.Is(err, project.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// No sector report saved yet.
	err = runReport(&stdout, &stderr, cfgPath, []string{"-project", "demo"})
	if err == nil || !strings.Contains(err.Error(), "no sector report") {
		t.Fatalf("expected missing-report error, got %v", err)
	}

	ws := workspace.New(filepath.Join(dir, "projects", "demo"), slog.Default())
	if err := ws.Scaffold(); err != nil {
		t.Fatalf("scaffold: %v", err)
	}
	if _, err := ws.SaveSectorReport("# Verdict\n\nOverweight."); err != nil {
		t.Fatalf("seed report: %v", err)
	}

	stdout.Reset()
	if err := runReport(&stdout, &stderr, cfgPath, []string{"-project", "demo"}); err != nil {
		t.Fatalf("runReport: %v", err)
	}
	if !strings.Contains(stdout.String(), "Exported") {
		t.Errorf("stdout = %q", stdout.String())
	}

	html, err := os.ReadFile(filepath.Join(dir, "projects", "demo", "analyses", "sector_report_latest.html"))
	if err != nil {
		t.Fatalf("read exported html: %v", err)
	}
	if !strings.Contains(string(html), "Overweight.") {
		t.Error("exported html should contain the report body")
	}
}
