// Package report exports sector reports as standalone HTML documents.
package report

import (
	"bytes"
	"fmt"
	"html"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/ledgerline/mosaic/internal/workspace"
)

// md renders GitHub-flavored markdown so cross-company tables survive export.
var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Exporter converts saved sector reports to self-contained HTML files.
type Exporter struct {
	ws  *workspace.Workspace
	log *slog.Logger
}

// NewExporter creates an exporter for one project workspace.
func NewExporter(ws *workspace.Workspace, log *slog.Logger) *Exporter {
	if log == nil {
		log = slog.Default()
	}
	return &Exporter{ws: ws, log: log}
}

// ExportSectorHTML renders the project's sector report to HTML next to the
// markdown source and returns the written path.
func (e *Exporter) ExportSectorHTML(title string) (string, error) {
	src := e.ws.SectorReportPath()
	raw, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no sector report found at %s (run the pipeline first)", src)
		}
		return "", fmt.Errorf("read sector report: %w", err)
	}

	doc, err := RenderHTML(title, string(raw))
	if err != nil {
		return "", fmt.Errorf("render sector report: %w", err)
	}

	out := strings.TrimSuffix(src, filepath.Ext(src)) + ".html"
	if err := workspace.WriteFileString(out, doc); err != nil {
		return "", fmt.Errorf("write html report: %w", err)
	}
	e.log.Info("sector report exported", "path", out, "bytes", len(doc))
	return out, nil
}

// RenderHTML converts markdown to a complete HTML document with inline
// styling and no external resources.
func RenderHTML(title, markdown string) (string, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return "", err
	}

	var doc bytes.Buffer
	fmt.Fprintf(&doc, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: Georgia, serif; font-size: 15px; line-height: 1.6; color: #1a1a1a;
       max-width: 860px; margin: 2em auto; padding: 0 1em; }
h1, h2, h3 { font-family: Helvetica, Arial, sans-serif; color: #0d2137; }
table { border-collapse: collapse; margin: 1em 0; width: 100%%; }
th, td { border: 1px solid #c6cdd4; padding: 6px 10px; text-align: left; }
th { background: #eef2f6; }
code { background: #f4f4f4; padding: 1px 4px; font-size: 13px; }
blockquote { border-left: 3px solid #c6cdd4; margin-left: 0; padding-left: 1em; color: #444; }
footer { margin-top: 3em; font-size: 12px; color: #777; border-top: 1px solid #ddd; padding-top: 0.5em; }
</style>
</head>
<body>
`, html.EscapeString(title))
	doc.Write(body.Bytes())
	fmt.Fprintf(&doc, `<footer>Generated %s</footer>
</body>
</html>
`, time.Now().Format("2006-01-02 15:04"))

	return doc.String(), nil
}
