// Mosaic is an agent-driven equity research pipeline over SEC filings.
//
// A run walks four stages: filing collection from EDGAR, per-company
// extraction of compact facts/brief/quote artifacts, analyst and sector
// report writing, and chart generation. Each stage drives an LLM agent
// session with stage-specific tools; artifacts that already exist are
// reused, so re-running a project resumes where it stopped.
//
// Usage:
//
//	mosaic init [dir]                Initialize a working directory with defaults
//	mosaic run -project <name>       Run the research pipeline for a project
//	mosaic projects                  List registered projects
//	mosaic report -project <name>    Export a project's sector report to HTML
//	mosaic version                   Print version and build information
//	mosaic -o json version           Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ledgerline/mosaic/internal/buildinfo"
	"github.com/ledgerline/mosaic/internal/config"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so the
// full lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run parses arguments and dispatches to the subcommand handlers. The
// flag package relies on package-level globals, which interferes with
// calling run() concurrently from tests; the argument surface is small
// enough to parse by hand.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case command == "":
			if strings.HasPrefix(args[i], "-") {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
			command = args[i]
		default:
			// Everything after the subcommand belongs to it, flags
			// included.
			cmdArgs = append(cmdArgs, args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "run":
		return runPipeline(ctx, stdout, stderr, configPath, cmdArgs)
	case "projects":
		return runProjects(stdout, configPath, outputFmt)
	case "report":
		return runReport(stdout, stderr, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Mosaic - agent-driven equity research over SEC filings")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: mosaic [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  init [dir]   Initialize a working directory with defaults (default: .)")
	fmt.Fprintln(w, "  run          Run the research pipeline for a project")
	fmt.Fprintln(w, "               -project <name> [-companies \"Name:TICKER,...\"] [-question \"...\"]")
	fmt.Fprintln(w, "  projects     List registered projects")
	fmt.Fprintln(w, "  report       Export a project's sector report to HTML: -project <name>")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./mosaic.yaml, ~/.config/mosaic/config.yaml, /etc/mosaic/config.yaml")
	fmt.Fprintln(w, "  (built-in defaults apply when no config file exists)")
	return nil
}

// loadConfig resolves the effective configuration. A missing config file
// is only an error when one was named explicitly; otherwise the built-in
// defaults apply and API keys come from the environment.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.Default(), "", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// newLogger builds the process logger. Trace gets its proper name in
// output via the config replacer.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}
