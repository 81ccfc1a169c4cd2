// Package project persists research project definitions in SQLite: the
// companies a project covers, its research question, and timestamps. The
// project name keys both the registry row and the artifact tree on disk, so
// repeated runs of the same project resume against existing artifacts.
package project

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when no project exists under the requested name.
var ErrNotFound = errors.New("project not found")

// Company is one company under coverage.
type Company struct {
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
}

// Project is a persisted research project.
type Project struct {
	Name      string
	Question  string
	Companies []Company
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tickers returns the project's tickers in coverage order.
func (p *Project) Tickers() []string {
	out := make([]string, 0, len(p.Companies))
	for _, c := range p.Companies {
		out = append(out, c.Ticker)
	}
	return out
}

// ParseCompanies parses a "Name:TICKER, Name:TICKER" list. The ticker is
// whatever follows the last colon, so company names may contain colons.
// Malformed entries are skipped; tickers are upcased.
func ParseCompanies(raw string) []Company {
	var companies []Company
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		idx := strings.LastIndex(part, ":")
		if idx < 0 {
			continue
		}
		name := strings.TrimSpace(part[:idx])
		ticker := strings.ToUpper(strings.TrimSpace(part[idx+1:]))
		if name == "" || ticker == "" {
			continue
		}
		companies = append(companies, Company{Name: name, Ticker: ticker})
	}
	return companies
}

// Open opens the registry database, creating the parent directory if needed.
func Open(dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create registry directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}
	return db, nil
}

// Store persists projects in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a project store, running migrations on first use.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate projects: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS projects (
			name       TEXT PRIMARY KEY,
			companies  TEXT NOT NULL,
			question   TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	return err
}

// Save inserts a project, or replaces the companies and question of an
// existing one. CreatedAt is preserved across updates.
func (s *Store) Save(p *Project) error {
	if p.Name == "" {
		return errors.New("project name is required")
	}
	if len(p.Companies) == 0 {
		return errors.New("at least one company is required")
	}
	companies, err := json.Marshal(p.Companies)
	if err != nil {
		return fmt.Errorf("encode companies: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.db.Exec(`
		INSERT INTO projects (name, companies, question, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			companies  = excluded.companies,
			question   = excluded.question,
			updated_at = excluded.updated_at
	`, p.Name, string(companies), p.Question, now, now)
	return err
}

// Get loads a project by name.
func (s *Store) Get(name string) (*Project, error) {
	row := s.db.QueryRow(`
		SELECT name, companies, question, created_at, updated_at
		FROM projects
		WHERE name = ?
	`, name)

	p := &Project{}
	var companies string
	err := row.Scan(&p.Name, &companies, &p.Question, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(companies), &p.Companies); err != nil {
		return nil, fmt.Errorf("decode companies for %s: %w", p.Name, err)
	}
	return p, nil
}

// List returns all projects in creation order.
func (s *Store) List() ([]*Project, error) {
	rows, err := s.db.Query(`
		SELECT name, companies, question, created_at, updated_at
		FROM projects
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p := &Project{}
		var companies string
		if err := rows.Scan(&p.Name, &companies, &p.Question, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(companies), &p.Companies); err != nil {
			return nil, fmt.Errorf("decode companies for %s: %w", p.Name, err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// Touch bumps a project's updated timestamp after a completed run.
// Unknown names are a no-op.
func (s *Store) Touch(name string) error {
	_, err := s.db.Exec(
		`UPDATE projects SET updated_at = ? WHERE name = ?`,
		time.Now().UTC(), name,
	)
	return err
}
