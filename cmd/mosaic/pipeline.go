package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ledgerline/mosaic/internal/config"
	"github.com/ledgerline/mosaic/internal/llm"
	"github.com/ledgerline/mosaic/internal/pipeline"
	"github.com/ledgerline/mosaic/internal/project"
	"github.com/ledgerline/mosaic/internal/usage"
	"github.com/ledgerline/mosaic/internal/workspace"
)

// runPipeline handles the "mosaic run" subcommand: resolve the project,
// build the provider and coordinator, execute all four stages, and print
// the run summary.
func runPipeline(ctx context.Context, stdout, stderr io.Writer, configPath string, args []string) error {
	var projectName, companiesRaw, question string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-project" && i+1 < len(args):
			projectName = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-project="):
			projectName = strings.TrimPrefix(args[i], "-project=")
		case args[i] == "-companies" && i+1 < len(args):
			companiesRaw = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-companies="):
			companiesRaw = strings.TrimPrefix(args[i], "-companies=")
		case args[i] == "-question" && i+1 < len(args):
			question = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-question="):
			question = strings.TrimPrefix(args[i], "-question=")
		default:
			return fmt.Errorf("unknown run argument: %s", args[i])
		}
	}
	if err := validateProjectName(projectName); err != nil {
		return err
	}

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := newLogger(stderr, level)
	if cfgPath != "" {
		logger.Info("config loaded", "path", cfgPath)
	} else {
		logger.Info("no config file found, using defaults")
	}

	db, err := project.Open(cfg.Projects.DBPath())
	if err != nil {
		return err
	}
	defer db.Close()
	store, err := project.NewStore(db)
	if err != nil {
		return err
	}

	proj, err := resolveProject(stdout, store, projectName, companiesRaw, question)
	if err != nil {
		return err
	}

	usageStore, err := usage.NewStore(db)
	if err != nil {
		return err
	}

	provider, err := llm.FromConfig(cfg, logger)
	if err != nil {
		return err
	}

	ws := workspace.New(filepath.Join(cfg.Projects.Dir, proj.Name), logger)
	coord := pipeline.New(cfg, provider, ws,
		pipeline.WithLogger(logger),
		pipeline.WithUsageStore(usageStore),
	)

	// SIGINT/SIGTERM cancel the run at the next turn boundary.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Fprintf(stdout, "Running project %q (%s)\n", proj.Name, strings.Join(proj.Tickers(), ", "))
	fmt.Fprintf(stdout, "Question: %s\n\n", proj.Question)

	rep, err := coord.Run(ctx, proj)
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}
	if err := store.Touch(proj.Name); err != nil {
		logger.Warn("could not update project timestamp", "project", proj.Name, "error", err)
	}

	printRunSummary(ctx, stdout, ws, usageStore, rep)
	return nil
}

func validateProjectName(name string) error {
	if name == "" {
		return errors.New(`usage: mosaic run -project <name> [-companies "Name:TICKER,..."] [-question "..."]`)
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid project name %q: must not contain path separators", name)
	}
	return nil
}

// resolveProject loads the named project, creating or updating it from the
// -companies and -question flags. A new project needs both.
func resolveProject(stdout io.Writer, store *project.Store, name, companiesRaw, question string) (*project.Project, error) {
	proj, err := store.Get(name)
	switch {
	case errors.Is(err, project.ErrNotFound):
		if companiesRaw == "" || question == "" {
			return nil, fmt.Errorf("project %q not found; create it by passing -companies and -question", name)
		}
		companies := project.ParseCompanies(companiesRaw)
		if len(companies) == 0 {
			return nil, fmt.Errorf("could not parse companies from %q (format: Name:TICKER, Name:TICKER)", companiesRaw)
		}
		proj = &project.Project{Name: name, Question: question, Companies: companies}
		if err := store.Save(proj); err != nil {
			return nil, fmt.Errorf("save project: %w", err)
		}
		fmt.Fprintf(stdout, "Created project %q with %d company/companies\n", name, len(companies))
		return proj, nil

	case err != nil:
		return nil, err
	}

	changed := false
	if companiesRaw != "" {
		companies := project.ParseCompanies(companiesRaw)
		if len(companies) == 0 {
			return nil, fmt.Errorf("could not parse companies from %q (format: Name:TICKER, Name:TICKER)", companiesRaw)
		}
		proj.Companies = companies
		changed = true
	}
	if question != "" && question != proj.Question {
		proj.Question = question
		changed = true
	}
	if changed {
		if err := store.Save(proj); err != nil {
			return nil, fmt.Errorf("update project: %w", err)
		}
		fmt.Fprintf(stdout, "Updated project %q\n", name)
	}
	return proj, nil
}

func printRunSummary(ctx context.Context, w io.Writer, ws *workspace.Workspace, us *usage.Store, rep *pipeline.RunReport) {
	fmt.Fprintf(w, "\nRun %s finished in %s (input tokens %d, output tokens %d)\n",
		rep.RunID, rep.Elapsed, rep.InputTokens, rep.OutputTokens)

	if us != nil {
		if stages, err := us.RunSummaryByStage(ctx, rep.RunID); err == nil && len(stages) > 0 {
			fmt.Fprintln(w, "\nToken usage by stage:")
			for _, st := range stages {
				fmt.Fprintf(w, "  %-14s %d session(s), %d turns, %d in / %d out\n",
					st.Stage, st.Sessions, st.Turns, st.InputTokens, st.OutputTokens)
			}
		}
	}

	fmt.Fprintln(w, "\nOutput locations:")
	fmt.Fprintf(w, "  filings:  %s\n", ws.FilingsDir())
	fmt.Fprintf(w, "  data:     %s\n", ws.DataDir())
	fmt.Fprintf(w, "  analyses: %s\n", ws.AnalysesDir())
	fmt.Fprintf(w, "  charts:   %s\n", ws.ChartsDir())
	if ws.HasSectorReport() {
		fmt.Fprintf(w, "\nSector report: %s\n", ws.SectorReportPath())
	}

	if len(rep.Warnings) == 0 {
		fmt.Fprintln(w, "\nNo warnings.")
		return
	}
	fmt.Fprintf(w, "\nWarnings (%d):\n", len(rep.Warnings))
	for _, warning := range rep.Warnings {
		fmt.Fprintf(w, "  - %s\n", warning)
	}
}
