// Package charts renders the visualization stage's PNG charts with go-chart
// and parses the machine-readable chart specifications the synthesis stage
// embeds in its report text.
package charts

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/ledgerline/mosaic/internal/workspace"
)

const (
	chartWidth  = 1024
	chartHeight = 512
	barWidth    = 60
)

// palette cycles through the series colors in a stable order.
var palette = []drawing.Color{
	drawing.ColorFromHex("2196F3"),
	drawing.ColorFromHex("F44336"),
	drawing.ColorFromHex("4CAF50"),
	drawing.ColorFromHex("FF9800"),
	drawing.ColorFromHex("9C27B0"),
	drawing.ColorFromHex("00BCD4"),
}

var unsafeChartName = regexp.MustCompile(`[^\w\-. ]`)

// Renderer writes chart PNGs into the workspace charts directory.
type Renderer struct {
	ws  *workspace.Workspace
	log *slog.Logger
}

func NewRenderer(ws *workspace.Workspace, log *slog.Logger) *Renderer {
	if log == nil {
		log = slog.Default()
	}
	return &Renderer{ws: ws, log: log}
}

// Result reports a rendered chart.
type Result struct {
	Success   bool   `json:"success"`
	Path      string `json:"filepath"`
	ChartType string `json:"chart_type"`
}

// pngChart is satisfied by every go-chart graph type.
type pngChart interface {
	Render(rp chart.RendererProvider, w io.Writer) error
}

// RenderBarChart draws one bar per label and saves the PNG.
func (r *Renderer) RenderBarChart(title string, labels []string, values []float64, filename, yLabel string) (Result, error) {
	if len(labels) == 0 {
		return Result{}, fmt.Errorf("at least one bar is required")
	}
	if len(labels) != len(values) {
		return Result{}, fmt.Errorf("labels and values differ in length: %d vs %d", len(labels), len(values))
	}

	bars := make([]chart.Value, len(labels))
	for i, label := range labels {
		bars[i] = chart.Value{
			Label: label,
			Value: values[i],
			Style: chart.Style{FillColor: palette[i%len(palette)], StrokeWidth: 0},
		}
	}

	graph := chart.BarChart{
		Title:      title,
		Width:      chartWidth,
		Height:     chartHeight,
		BarWidth:   barWidth,
		Background: chart.Style{Padding: chart.Box{Top: 40}},
		YAxis:      chart.YAxis{Name: yLabel},
		Bars:       bars,
	}
	return r.writePNG(graph, filename, "bar")
}

// RenderLineChart draws one line per series over shared x labels. Series are
// drawn in sorted name order so re-renders are stable.
func (r *Renderer) RenderLineChart(title string, xLabels []string, series map[string][]float64, filename, yLabel, xLabel string) (Result, error) {
	if len(xLabels) < 2 {
		return Result{}, fmt.Errorf("a line chart needs at least two x labels")
	}
	if len(series) == 0 {
		return Result{}, fmt.Errorf("at least one series is required")
	}

	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	xs := make([]float64, len(xLabels))
	ticks := make([]chart.Tick, len(xLabels))
	for i, label := range xLabels {
		xs[i] = float64(i)
		ticks[i] = chart.Tick{Value: float64(i), Label: label}
	}

	var lines []chart.Series
	for i, name := range names {
		ys := series[name]
		if len(ys) != len(xLabels) {
			return Result{}, fmt.Errorf("series %q has %d values for %d x labels", name, len(ys), len(xLabels))
		}
		color := palette[i%len(palette)]
		lines = append(lines, chart.ContinuousSeries{
			Name: name,
			Style: chart.Style{
				StrokeColor: color,
				StrokeWidth: 2,
				DotColor:    color,
				DotWidth:    4,
			},
			XValues: xs,
			YValues: ys,
		})
	}

	graph := chart.Chart{
		Title:      title,
		Width:      chartWidth,
		Height:     chartHeight,
		Background: chart.Style{Padding: chart.Box{Top: 40}},
		XAxis:      chart.XAxis{Name: xLabel, Ticks: ticks},
		YAxis:      chart.YAxis{Name: yLabel},
		Series:     lines,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	return r.writePNG(graph, filename, "line")
}

// RenderComparisonChart draws one bar per company for a single metric,
// companies in the given order.
func (r *Renderer) RenderComparisonChart(title string, companies []string, values map[string]float64, filename, yLabel string) (Result, error) {
	if len(companies) == 0 {
		return Result{}, fmt.Errorf("at least one company is required")
	}

	vals := make([]float64, len(companies))
	for i, company := range companies {
		vals[i] = values[company]
	}
	res, err := r.RenderBarChart(title, companies, vals, filename, yLabel)
	if err != nil {
		return Result{}, err
	}
	res.ChartType = "comparison_bar"
	return res, nil
}

// writePNG renders into memory first so a failed render never leaves a
// partial file, then writes under charts/.
func (r *Renderer) writePNG(graph pngChart, filename, chartType string) (Result, error) {
	name, err := pngName(filename)
	if err != nil {
		return Result{}, err
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return Result{}, fmt.Errorf("render %s chart: %w", chartType, err)
	}

	path := filepath.Join(r.ws.ChartsDir(), name)
	if err := workspace.WriteFileString(path, buf.String()); err != nil {
		return Result{}, err
	}
	r.log.Info("chart rendered", "type", chartType, "path", path, "bytes", buf.Len())
	return Result{Success: true, Path: path, ChartType: chartType}, nil
}

func pngName(filename string) (string, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return "", fmt.Errorf("filename is required")
	}
	filename = unsafeChartName.ReplaceAllString(filepath.Base(filename), "_")
	if !strings.HasSuffix(strings.ToLower(filename), ".png") {
		filename += ".png"
	}
	return filename, nil
}
