package workspace

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ledgerline/mosaic/internal/tools"
)

// saveResult is the payload every saver tool returns.
type saveResult struct {
	Success   bool   `json:"success"`
	Path      string `json:"filepath"`
	SizeChars int    `json:"size_chars"`
}

func marshalPayload(v any) (string, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool payload: %w", err)
	}
	return string(out), nil
}

// RegisterBrowseTools registers list_files and read_file together, for
// stages that both discover and read downloaded documents.
func (w *Workspace) RegisterBrowseTools(registry *tools.Registry) {
	w.RegisterListTool(registry)
	w.RegisterReadTool(registry)
}

// RegisterListTool registers list_files.
func (w *Workspace) RegisterListTool(registry *tools.Registry) {
	registry.Register(&tools.Tool{
		Name: "list_files",
		Description: "List files and subdirectories in a directory. " +
			"Use this to discover what data is available before reading files. " +
			"Relative paths are resolved against the project root.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"directory": map[string]any{
					"type":        "string",
					"description": "Directory to list, e.g. 'filings/MSFT' or an absolute path.",
				},
			},
			"required": []string{"directory"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			dir := tools.StringArg(args, "directory")
			if dir == "" {
				return "", fmt.Errorf("directory is required")
			}
			listing, err := w.ListDir(dir)
			if err != nil {
				return "", err
			}
			return marshalPayload(listing)
		},
	})
}

// RegisterReadTool registers read_file.
func (w *Workspace) RegisterReadTool(registry *tools.Registry) {
	registry.Register(&tools.Tool{
		Name: "read_file",
		Description: "Read the text content of a file. HTML filings are stripped to plain " +
			"text automatically. Content is capped at 40,000 characters with a truncation " +
			"notice when the file is larger; prefer the most recent filing per company.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"filepath": map[string]any{
					"type":        "string",
					"description": "Path of the file to read.",
				},
			},
			"required": []string{"filepath"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			path := tools.StringArg(args, "filepath")
			if path == "" {
				return "", fmt.Errorf("filepath is required")
			}
			res, err := w.ReadFileCapped(path)
			if err != nil {
				return "", err
			}
			return marshalPayload(res)
		},
	})
}

// RegisterAnalysisTools registers excerpt search plus the report savers used
// by the analysis stage.
func (w *Workspace) RegisterAnalysisTools(registry *tools.Registry) {
	registry.Register(&tools.Tool{
		Name: "search_excerpts",
		Description: "Search a company's downloaded filings for paragraphs containing ALL the " +
			"given keywords (case-insensitive) and return short excerpts. Use this to pull " +
			"specific evidence or citations without reading a whole filing into context.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ticker": map[string]any{
					"type":        "string",
					"description": "Stock ticker symbol, e.g. 'MSFT'.",
				},
				"keywords": map[string]any{
					"type":        "string",
					"description": "Space-separated keywords; every one must appear in a paragraph to match.",
				},
				"max_chars": map[string]any{
					"type":        "integer",
					"description": "Maximum total excerpt characters to return (default 8000).",
				},
			},
			"required": []string{"ticker", "keywords"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			ticker := tools.StringArg(args, "ticker")
			if ticker == "" {
				return "", fmt.Errorf("ticker is required")
			}
			keywords := tools.StringArg(args, "keywords")
			if keywords == "" {
				return "", fmt.Errorf("keywords is required")
			}
			budget := tools.IntArg(args, "max_chars", DefaultExcerptBudget)
			return marshalPayload(w.SearchExcerpts(ticker, keywords, budget))
		},
	})

	registry.Register(&tools.Tool{
		Name:        "save_analyst_report",
		Description: "Save the per-company analyst report markdown for a ticker. Overwrites any previous report.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ticker": map[string]any{
					"type":        "string",
					"description": "Stock ticker symbol, e.g. 'MSFT'.",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "Markdown report content.",
				},
			},
			"required": []string{"ticker", "content"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			ticker := tools.StringArg(args, "ticker")
			if ticker == "" {
				return "", fmt.Errorf("ticker is required")
			}
			content := tools.StringArg(args, "content")
			if content == "" {
				return "", fmt.Errorf("content is required")
			}
			written, err := w.SaveAnalystReport(ticker, content)
			if err != nil {
				return "", err
			}
			return marshalPayload(saveResult{Success: true, Path: written, SizeChars: len(content)})
		},
	})

	registry.Register(&tools.Tool{
		Name:        "save_sector_report",
		Description: "Save the sector-level synthesis report markdown. Overwrites any previous report.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content": map[string]any{
					"type":        "string",
					"description": "Markdown sector report content.",
				},
			},
			"required": []string{"content"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			content := tools.StringArg(args, "content")
			if content == "" {
				return "", fmt.Errorf("content is required")
			}
			written, err := w.SaveSectorReport(content)
			if err != nil {
				return "", err
			}
			return marshalPayload(saveResult{Success: true, Path: written, SizeChars: len(content)})
		},
	})
}

