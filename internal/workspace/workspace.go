// Package workspace manages the on-disk layout of a research project and
// exposes the file tools the pipeline stages hand to their sessions: listing
// and reading filings (with HTML stripped to text), keyword excerpt search,
// and the savers that write the named artifacts downstream stages consume.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Subdirectories of a project root. Filings holds raw downloaded documents
// grouped by ticker, Data the extracted per-company artifacts, Analyses the
// generated reports, Charts the rendered images.
const (
	FilingsDirName  = "filings"
	DataDirName     = "data"
	AnalysesDirName = "analyses"
	ChartsDirName   = "charts"
)

// Workspace resolves paths inside a single project directory. Methods never
// escape the root for relative inputs; absolute paths are honored as given so
// sessions can reference tool output verbatim.
type Workspace struct {
	root string
	log  *slog.Logger
}

func New(root string, log *slog.Logger) *Workspace {
	if log == nil {
		log = slog.Default()
	}
	return &Workspace{root: root, log: log}
}

func (w *Workspace) Root() string        { return w.root }
func (w *Workspace) FilingsDir() string  { return filepath.Join(w.root, FilingsDirName) }
func (w *Workspace) DataDir() string     { return filepath.Join(w.root, DataDirName) }
func (w *Workspace) AnalysesDir() string { return filepath.Join(w.root, AnalysesDirName) }
func (w *Workspace) ChartsDir() string   { return filepath.Join(w.root, ChartsDirName) }

// TickerFilingsDir is where downloaded filings for one company live, one
// subdirectory per filing.
func (w *Workspace) TickerFilingsDir(ticker string) string {
	return filepath.Join(w.FilingsDir(), NormalizeTicker(ticker))
}

// Scaffold creates the project directory tree. Existing directories are left
// alone.
func (w *Workspace) Scaffold() error {
	for _, dir := range []string{w.FilingsDir(), w.DataDir(), w.AnalysesDir(), w.ChartsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("scaffold %s: %w", dir, err)
		}
	}
	return nil
}

// Artifact paths. The "_latest" names are stable per ticker: savers overwrite
// so downstream stages always find exactly one current file per company.

func (w *Workspace) FactsPath(ticker string) string {
	return filepath.Join(w.DataDir(), NormalizeTicker(ticker)+"_facts_latest.json")
}

func (w *Workspace) BriefPath(ticker string) string {
	return filepath.Join(w.DataDir(), NormalizeTicker(ticker)+"_brief_latest.md")
}

func (w *Workspace) QuoteBankPath(ticker string) string {
	return filepath.Join(w.DataDir(), NormalizeTicker(ticker)+"_quote_bank.json")
}

func (w *Workspace) AnalystReportPath(ticker string) string {
	return filepath.Join(w.AnalysesDir(), NormalizeTicker(ticker)+"_report_latest.md")
}

func (w *Workspace) SectorReportPath() string {
	return filepath.Join(w.AnalysesDir(), "sector_report_latest.md")
}

// HasExtractionArtifacts reports whether all three extraction outputs for a
// ticker already exist, which lets the pipeline skip the extraction session
// on re-runs.
func (w *Workspace) HasExtractionArtifacts(ticker string) bool {
	for _, p := range []string{w.FactsPath(ticker), w.BriefPath(ticker), w.QuoteBankPath(ticker)} {
		if !fileExists(p) {
			return false
		}
	}
	return true
}

// HasSectorReport reports whether a sector report has been saved.
func (w *Workspace) HasSectorReport() bool {
	return fileExists(w.SectorReportPath())
}

// HasAnalystReport reports whether the per-company analyst report exists.
func (w *Workspace) HasAnalystReport(ticker string) bool {
	return fileExists(w.AnalystReportPath(ticker))
}

// SaveCompanyFacts writes the structured facts JSON for a ticker and returns
// the path written.
func (w *Workspace) SaveCompanyFacts(ticker, content string) (string, error) {
	return w.saveArtifact(w.FactsPath(ticker), content)
}

// SaveCompanyBrief writes the company brief markdown for a ticker.
func (w *Workspace) SaveCompanyBrief(ticker, content string) (string, error) {
	return w.saveArtifact(w.BriefPath(ticker), content)
}

// SaveQuoteBank writes the verbatim-quote JSON for a ticker.
func (w *Workspace) SaveQuoteBank(ticker, content string) (string, error) {
	return w.saveArtifact(w.QuoteBankPath(ticker), content)
}

// SaveAnalystReport writes the per-company analyst report markdown.
func (w *Workspace) SaveAnalystReport(ticker, content string) (string, error) {
	return w.saveArtifact(w.AnalystReportPath(ticker), content)
}

// SaveSectorReport writes the sector synthesis report markdown.
func (w *Workspace) SaveSectorReport(content string) (string, error) {
	return w.saveArtifact(w.SectorReportPath(), content)
}

func (w *Workspace) saveArtifact(path, content string) (string, error) {
	if err := WriteFileString(path, content); err != nil {
		return "", err
	}
	w.log.Debug("artifact saved", "path", path, "chars", len(content))
	return path, nil
}

// Resolve turns a session-supplied path into an absolute one. Relative paths
// are anchored at the project root so sessions can use the short forms the
// prompts mention ("filings/MSFT", "data").
func (w *Workspace) Resolve(path string) string {
	if path == "" {
		return w.root
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(w.root, path)
}

// NormalizeTicker uppercases and trims a ticker symbol.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// WriteFileString writes content to path, creating parent directories as
// needed.
func WriteFileString(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
