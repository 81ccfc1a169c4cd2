package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ledgerline/mosaic/internal/defaults"
)

// runInit initializes a Mosaic working directory: the projects tree and a
// commented default config. Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing Mosaic workspace in %s\n", dir)

	projectsDir := filepath.Join(dir, "projects")
	if err := os.MkdirAll(projectsDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", projectsDir, err)
	}
	fmt.Fprintf(w, "  ✓ %s\n", projectsDir)

	// The config may hold API keys, hence the restricted mode.
	configPath := filepath.Join(dir, "mosaic.yaml")
	if err := writeIfMissing(w, configPath, defaults.ConfigYAML, 0o600); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit mosaic.yaml to pick a provider and set its API key.")
	fmt.Fprintln(w, "Set edgar.user_agent to your own contact string before fetching filings.")
	return nil
}

// writeIfMissing writes content to path unless the file already exists,
// reporting either outcome on w. Init must never clobber user edits.
func writeIfMissing(w io.Writer, path string, content []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		if os.IsExist(err) {
			fmt.Fprintf(w, "  - %s exists, skipping\n", path)
			return nil
		}
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(content); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(w, "  ✓ %s\n", path)
	return nil
}
