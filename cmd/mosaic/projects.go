package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ledgerline/mosaic/internal/project"
)

// runProjects handles "mosaic projects": list the registry.
func runProjects(w io.Writer, configPath, outputFmt string) error {
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

	projects, err := store.List()
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(projects)
	}

	if len(projects) == 0 {
		fmt.Fprintln(w, "No projects registered. Create one with:")
		fmt.Fprintln(w, `  mosaic run -project <name> -companies "Name:TICKER,..." -question "..."`)
		return nil
	}

	for _, p := range projects {
		fmt.Fprintf(w, "%s  (%s)  created %s\n",
			p.Name, strings.Join(p.Tickers(), ", "), p.CreatedAt.Format("2006-01-02"))
		fmt.Fprintf(w, "    %s\n", p.Question)
	}
	return nil
}
