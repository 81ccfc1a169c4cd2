// Package pipeline drives the four-stage research run: filing collection,
// per-company extraction, investment analysis, and chart generation. Stages
// run strictly in sequence and every work item gets a fresh isolated agent
// session; artifacts that already exist are never rebuilt, so an interrupted
// run resumes where it stopped.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/mosaic/internal/agent"
	"github.com/ledgerline/mosaic/internal/charts"
	"github.com/ledgerline/mosaic/internal/config"
	"github.com/ledgerline/mosaic/internal/edgar"
	"github.com/ledgerline/mosaic/internal/llm"
	"github.com/ledgerline/mosaic/internal/project"
	"github.com/ledgerline/mosaic/internal/prompts"
	"github.com/ledgerline/mosaic/internal/tools"
	"github.com/ledgerline/mosaic/internal/usage"
	"github.com/ledgerline/mosaic/internal/workspace"
)

// Stage names, used for session labelling and warning attribution.
const (
	StageResearch      = "research"
	StageExtraction    = "extraction"
	StageAnalysis      = "analysis"
	StageVisualization = "visualization"
)

// Warning records one non-fatal degradation during a run. A failed item
// never stops the run; it shows up here instead.
type Warning struct {
	Stage  string `json:"stage"`
	Ticker string `json:"ticker,omitempty"`
	Detail string `json:"detail"`
}

func (w Warning) String() string {
	if w.Ticker != "" {
		return fmt.Sprintf("[%s] %s: %s", w.Stage, w.Ticker, w.Detail)
	}
	return fmt.Sprintf("[%s] %s", w.Stage, w.Detail)
}

// RunReport summarizes a completed pipeline run.
type RunReport struct {
	RunID   string
	Project string

	// ResearchSummary and VizSummary are the final stage texts; the
	// sector report itself lands in the analyses directory.
	ResearchSummary string
	VizSummary      string
	VizSpecs        int

	Warnings     []Warning
	InputTokens  int
	OutputTokens int
	Elapsed      time.Duration
}

// Degraded reports whether the run accumulated any warnings.
func (r *RunReport) Degraded() bool { return len(r.Warnings) > 0 }

// Coordinator owns the stage sequence for one project run.
type Coordinator struct {
	cfg      *config.Config
	provider llm.Provider
	ws       *workspace.Workspace
	edgar    *edgar.Client
	renderer *charts.Renderer
	usage    *usage.Store
	log      *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithEDGARClient substitutes the EDGAR client, mainly for tests.
func WithEDGARClient(c *edgar.Client) Option {
	return func(co *Coordinator) { co.edgar = c }
}

// WithRenderer substitutes the chart renderer.
func WithRenderer(r *charts.Renderer) Option {
	return func(co *Coordinator) { co.renderer = r }
}

// WithUsageStore enables per-session token accounting in the given
// store. Without it the run report totals are the only accounting.
func WithUsageStore(s *usage.Store) Option {
	return func(co *Coordinator) { co.usage = s }
}

// WithLogger sets the coordinator logger.
func WithLogger(l *slog.Logger) Option {
	return func(co *Coordinator) { co.log = l }
}

// New creates a coordinator for one project workspace.
func New(cfg *config.Config, provider llm.Provider, ws *workspace.Workspace, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:      cfg,
		provider: provider,
		ws:       ws,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.edgar == nil {
		edgarOpts := []edgar.Option{
			edgar.WithUserAgent(cfg.EDGAR.UserAgent),
			edgar.WithLogger(c.log),
		}
		if cfg.EDGAR.CacheMaxAgeDays > 0 {
			edgarOpts = append(edgarOpts, edgar.WithCacheMaxAge(time.Duration(cfg.EDGAR.CacheMaxAgeDays)*24*time.Hour))
		}
		c.edgar = edgar.NewClient(ws, edgarOpts...)
	}
	if c.renderer == nil {
		c.renderer = charts.NewRenderer(ws, c.log)
	}
	return c
}

// Run executes all four stages for the project. Item and stage failures are
// downgraded to warnings; the returned error is non-nil only for
// cancellation or when the workspace cannot be prepared.
func (c *Coordinator) Run(ctx context.Context, proj *project.Project) (*RunReport, error) {
	runID, _ := uuid.NewV7()
	rep := &RunReport{RunID: runID.String(), Project: proj.Name}
	start := time.Now()

	if err := c.ws.Scaffold(); err != nil {
		return rep, fmt.Errorf("prepare workspace: %w", err)
	}

	companies := make([]prompts.Company, 0, len(proj.Companies))
	for _, co := range proj.Companies {
		companies = append(companies, prompts.Company{Name: co.Name, Ticker: workspace.NormalizeTicker(co.Ticker)})
	}

	c.log.Info("pipeline run started",
		"run", rep.RunID,
		"project", proj.Name,
		"companies", len(companies),
		"provider", c.provider.Name(),
	)

	c.runResearch(ctx, rep, companies)
	if err := ctx.Err(); err != nil {
		return rep, err
	}

	c.runExtraction(ctx, rep, companies)
	if err := ctx.Err(); err != nil {
		return rep, err
	}

	specs := c.runAnalysis(ctx, rep, proj, companies)
	if err := ctx.Err(); err != nil {
		return rep, err
	}

	c.runVisualization(ctx, rep, specs)
	if err := ctx.Err(); err != nil {
		return rep, err
	}

	rep.Elapsed = time.Since(start).Round(time.Millisecond)
	c.log.Info("pipeline run finished",
		"run", rep.RunID,
		"project", proj.Name,
		"warnings", len(rep.Warnings),
		"input_tokens", rep.InputTokens,
		"output_tokens", rep.OutputTokens,
		"elapsed", rep.Elapsed,
	)
	return rep, nil
}

func (c *Coordinator) warn(rep *RunReport, stage, ticker, detail string) {
	rep.Warnings = append(rep.Warnings, Warning{Stage: stage, Ticker: ticker, Detail: detail})
	c.log.Warn("pipeline degradation", "run", rep.RunID, "stage", stage, "ticker", ticker, "detail", detail)
}

// account folds a session result into the run totals and, when a usage
// store is attached, appends a ledger record. Ledger failures are
// logged and never degrade the run.
func (c *Coordinator) account(ctx context.Context, rep *RunReport, stage, ticker string, res *agent.Result) {
	if res == nil {
		return
	}
	rep.InputTokens += res.InputTokens
	rep.OutputTokens += res.OutputTokens
	if c.usage == nil {
		return
	}
	rec := usage.Record{
		RunID:        rep.RunID,
		Project:      rep.Project,
		Stage:        stage,
		Ticker:       ticker,
		Provider:     c.provider.Name(),
		Model:        res.Model,
		Turns:        res.Turns,
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
	}
	if err := c.usage.Record(ctx, rec); err != nil {
		c.log.Warn("usage record failed", "run", rep.RunID, "stage", stage, "error", err)
	}
}

func (c *Coordinator) newSession(stage, system string, reasoning int, registry *tools.Registry) *agent.Session {
	opts := []agent.SessionOption{
		agent.WithSystem(system),
		agent.WithMaxTurns(c.cfg.Pipeline.MaxTurns),
		agent.WithHistoryBudget(c.cfg.Pipeline.HistoryBudget),
		agent.WithStage(stage),
		agent.WithLogger(c.log),
	}
	if c.cfg.Pipeline.Reasoning.Enabled && reasoning > 0 {
		opts = append(opts, agent.WithReasoningBudget(reasoning))
	}
	return agent.NewSession(c.provider, registry, opts...)
}

// sessionWarning folds a session outcome into at most one warning string.
// Empty means the session completed cleanly.
func sessionWarning(res *agent.Result) string {
	switch {
	case res.Aborted():
		return fmt.Sprintf("turn budget exhausted after %d turns, using last output", res.Turns)
	case res.Irregular:
		return "session ended with an unrecognized stop reason"
	}
	return ""
}

// runResearch collects filings for every company in one session.
func (c *Coordinator) runResearch(ctx context.Context, rep *RunReport, companies []prompts.Company) {
	registry := tools.NewRegistry(c.log)
	c.edgar.RegisterTools(registry)
	c.ws.RegisterListTool(registry)

	sess := c.newSession(StageResearch, prompts.ResearchSystem, 0, registry)
	res, err := sess.Run(ctx, prompts.ResearchMessage(companies, c.ws.FilingsDir()))
	if err != nil {
		c.warn(rep, StageResearch, "", fmt.Sprintf("stage failed: %v", err))
		return
	}
	c.account(ctx, rep, StageResearch, "", res)
	if w := sessionWarning(res); w != "" {
		c.warn(rep, StageResearch, "", w)
	}
	rep.ResearchSummary = res.Text
}

// runExtraction produces the three compact artifacts per company, one
// isolated session each. Companies whose artifacts all exist are skipped.
func (c *Coordinator) runExtraction(ctx context.Context, rep *RunReport, companies []prompts.Company) {
	for _, co := range companies {
		if ctx.Err() != nil {
			return
		}
		if c.ws.HasExtractionArtifacts(co.Ticker) {
			c.log.Info("extraction artifacts exist, skipping company", "run", rep.RunID, "ticker", co.Ticker)
			c.warn(rep, StageExtraction, co.Ticker, "artifacts already exist, session skipped")
			continue
		}

		registry := tools.NewRegistry(c.log)
		c.ws.RegisterBrowseTools(registry)

		ticker := co.Ticker
		sections := []agent.SectionSpec{
			{Tag: prompts.TagCompanyFacts, Save: func(content string) error {
				_, err := c.ws.SaveCompanyFacts(ticker, content)
				return err
			}},
			{Tag: prompts.TagCompanyBrief, Save: func(content string) error {
				_, err := c.ws.SaveCompanyBrief(ticker, content)
				return err
			}},
			{Tag: prompts.TagQuoteBank, Save: func(content string) error {
				_, err := c.ws.SaveQuoteBank(ticker, content)
				return err
			}},
		}

		sess := c.newSession(StageExtraction, prompts.ExtractionSystem, c.cfg.Pipeline.Reasoning.Extract, registry)
		task := prompts.ExtractionMessage(co, c.ws.TickerFilingsDir(co.Ticker))
		sres, err := agent.RunStructured(ctx, sess, task, sections, c.cfg.Pipeline.RecoveryRetries)
		if err != nil {
			c.warn(rep, StageExtraction, co.Ticker, fmt.Sprintf("session failed: %v", err))
			continue
		}
		c.account(ctx, rep, StageExtraction, co.Ticker, sres.Result)
		if w := sessionWarning(sres.Result); w != "" {
			c.warn(rep, StageExtraction, co.Ticker, w)
		}
		for _, tag := range sres.Missing {
			c.warn(rep, StageExtraction, co.Ticker, fmt.Sprintf("section %s missing after %d corrective retries", tag, sres.Retries))
		}
		for tag, err := range sres.SaveErrors {
			c.warn(rep, StageExtraction, co.Ticker, fmt.Sprintf("section %s could not be saved: %v", tag, err))
		}
	}
}

// runAnalysis writes per-company analyst reports, then the sector synthesis.
// It returns any chart specs embedded in the synthesis output.
func (c *Coordinator) runAnalysis(ctx context.Context, rep *RunReport, proj *project.Project, companies []prompts.Company) []charts.VizSpec {
	for _, co := range companies {
		if ctx.Err() != nil {
			return nil
		}
		if c.ws.HasAnalystReport(co.Ticker) {
			c.log.Info("analyst report exists, skipping company", "run", rep.RunID, "ticker", co.Ticker)
			c.warn(rep, StageAnalysis, co.Ticker, "analyst report already exists, session skipped")
			continue
		}
		c.runAnalystReport(ctx, rep, co)
	}
	if ctx.Err() != nil {
		return nil
	}
	return c.runSynthesis(ctx, rep, proj, companies)
}

func (c *Coordinator) analysisRegistry() *tools.Registry {
	registry := tools.NewRegistry(c.log)
	c.ws.RegisterBrowseTools(registry)
	c.ws.RegisterAnalysisTools(registry)
	return registry
}

func (c *Coordinator) runAnalystReport(ctx context.Context, rep *RunReport, co prompts.Company) {
	sess := c.newSession(StageAnalysis, prompts.AnalystSystem, c.cfg.Pipeline.Reasoning.Analysis, c.analysisRegistry())
	res, err := sess.Run(ctx, prompts.AnalystMessage(co, c.ws.DataDir()))
	if err != nil {
		c.warn(rep, StageAnalysis, co.Ticker, fmt.Sprintf("session failed: %v", err))
		return
	}
	c.account(ctx, rep, StageAnalysis, co.Ticker, res)
	if w := sessionWarning(res); w != "" {
		c.warn(rep, StageAnalysis, co.Ticker, w)
	}

	// The model is told to save through the tool; when it narrates the
	// report instead, persist its text so downstream stages have it.
	if !c.ws.HasAnalystReport(co.Ticker) && res.Text != "" {
		if _, err := c.ws.SaveAnalystReport(co.Ticker, res.Text); err != nil {
			c.warn(rep, StageAnalysis, co.Ticker, fmt.Sprintf("fallback save failed: %v", err))
			return
		}
		c.warn(rep, StageAnalysis, co.Ticker, "report saved from session text (save tool never called)")
	}
}

func (c *Coordinator) runSynthesis(ctx context.Context, rep *RunReport, proj *project.Project, companies []prompts.Company) []charts.VizSpec {
	sess := c.newSession(StageAnalysis, prompts.SynthesisSystem, c.cfg.Pipeline.Reasoning.Synthesis, c.analysisRegistry())
	task := prompts.SynthesisMessage(proj.Name, proj.Question, companies, c.ws.DataDir(), c.ws.AnalysesDir())
	res, err := sess.Run(ctx, task)
	if err != nil {
		c.warn(rep, StageAnalysis, "", fmt.Sprintf("synthesis session failed: %v", err))
		return nil
	}
	c.account(ctx, rep, StageAnalysis, "", res)
	if w := sessionWarning(res); w != "" {
		c.warn(rep, StageAnalysis, "", w)
	}

	if !c.ws.HasSectorReport() && res.Text != "" {
		if _, err := c.ws.SaveSectorReport(res.Text); err != nil {
			c.warn(rep, StageAnalysis, "", fmt.Sprintf("sector report fallback save failed: %v", err))
		} else {
			c.warn(rep, StageAnalysis, "", "sector report saved from session text (save tool never called)")
		}
	}

	specs := charts.ParseVizSpecs(res.Text)
	c.log.Info("synthesis complete", "run", rep.RunID, "chars", len(res.Text), "viz_specs", len(specs))
	return specs
}

// runVisualization renders the charts the synthesis asked for. Without
// specs there is nothing to draw and the stage is skipped.
func (c *Coordinator) runVisualization(ctx context.Context, rep *RunReport, specs []charts.VizSpec) {
	rep.VizSpecs = len(specs)
	if len(specs) == 0 {
		c.log.Info("no visualization specs produced, skipping stage", "run", rep.RunID)
		c.warn(rep, StageVisualization, "", "no visualization specs produced, stage skipped")
		return
	}

	specsJSON, err := json.MarshalIndent(specs, "", "  ")
	if err != nil {
		c.warn(rep, StageVisualization, "", fmt.Sprintf("encode specs: %v", err))
		return
	}

	registry := tools.NewRegistry(c.log)
	c.ws.RegisterReadTool(registry)
	c.renderer.RegisterTools(registry)

	sess := c.newSession(StageVisualization, prompts.VisualizationSystem, 0, registry)
	res, err := sess.Run(ctx, prompts.VisualizationMessage(string(specsJSON), c.ws.DataDir()))
	if err != nil {
		c.warn(rep, StageVisualization, "", fmt.Sprintf("stage failed: %v", err))
		return
	}
	c.account(ctx, rep, StageVisualization, "", res)
	if w := sessionWarning(res); w != "" {
		c.warn(rep, StageVisualization, "", w)
	}
	rep.VizSummary = res.Text
}
