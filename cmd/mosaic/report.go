package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ledgerline/mosaic/internal/project"
	"github.com/ledgerline/mosaic/internal/report"
	"github.com/ledgerline/mosaic/internal/workspace"
)

// runReport handles "mosaic report -project <name>": export the project's
// sector report as a standalone HTML document.
func runReport(stdout, stderr io.Writer, configPath string, args []string) error {
	var projectName string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-project" && i+1 < len(args):
			projectName = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-project="):
			projectName = strings.TrimPrefix(args[i], "-project=")
		default:
			return fmt.Errorf("unknown report argument: %s", args[i])
		}
	}
	if projectName == "" {
		return errors.New("usage: mosaic report -project <name>")
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
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
	proj, err := store.Get(projectName)
	if err != nil {
		return err
	}

	logger := newLogger(stderr, slog.LevelWarn)
	ws := workspace.New(filepath.Join(cfg.Projects.Dir, proj.Name), logger)
	exp := report.NewExporter(ws, logger)

	path, err := exp.ExportSectorHTML(fmt.Sprintf("%s sector report", proj.Name))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Exported %s\n", path)
	return nil
}
