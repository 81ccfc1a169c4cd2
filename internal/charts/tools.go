package charts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ledgerline/mosaic/internal/tools"
)

func marshalPayload(v any) (string, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool payload: %w", err)
	}
	return string(out), nil
}

// RegisterTools registers the three chart renderers used by the
// visualization stage.
func (r *Renderer) RegisterTools(registry *tools.Registry) {
	registry.Register(&tools.Tool{
		Name: "create_bar_chart",
		Description: "Create a bar chart PNG in the project charts directory. " +
			"Use for single-category comparisons, e.g. revenue by company.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title": map[string]any{"type": "string", "description": "Chart title."},
				"labels": map[string]any{
					"type": "array", "items": map[string]any{"type": "string"},
					"description": "X-axis category labels, one per bar.",
				},
				"values": map[string]any{
					"type": "array", "items": map[string]any{"type": "number"},
					"description": "Numeric values, one per bar.",
				},
				"filename": map[string]any{"type": "string", "description": "Output PNG filename, e.g. 'revenue.png'."},
				"y_label":  map[string]any{"type": "string", "description": "Optional Y-axis label."},
			},
			"required": []string{"title", "labels", "values", "filename"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			labels, err := stringsArg(args, "labels")
			if err != nil {
				return "", err
			}
			values, err := floatsArg(args, "values")
			if err != nil {
				return "", err
			}
			res, err := r.RenderBarChart(
				tools.StringArg(args, "title"),
				labels, values,
				tools.StringArg(args, "filename"),
				tools.StringArg(args, "y_label"),
			)
			if err != nil {
				return "", err
			}
			return marshalPayload(res)
		},
	})

	registry.Register(&tools.Tool{
		Name: "create_line_chart",
		Description: "Create a multi-line chart PNG in the project charts directory. " +
			"Use for trends over time, e.g. quarterly revenue for several companies.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title": map[string]any{"type": "string", "description": "Chart title."},
				"x_labels": map[string]any{
					"type": "array", "items": map[string]any{"type": "string"},
					"description": "X-axis tick labels, e.g. quarters or years.",
				},
				"series": map[string]any{
					"type":        "object",
					"description": `Mapping of series name to numeric values, e.g. {"MSFT": [100, 110, 120]}. Every series needs one value per x label.`,
				},
				"filename": map[string]any{"type": "string", "description": "Output PNG filename."},
				"y_label":  map[string]any{"type": "string", "description": "Optional Y-axis label."},
				"x_label":  map[string]any{"type": "string", "description": "Optional X-axis label."},
			},
			"required": []string{"title", "x_labels", "series", "filename"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			xLabels, err := stringsArg(args, "x_labels")
			if err != nil {
				return "", err
			}
			series, err := seriesArg(args, "series")
			if err != nil {
				return "", err
			}
			res, err := r.RenderLineChart(
				tools.StringArg(args, "title"),
				xLabels, series,
				tools.StringArg(args, "filename"),
				tools.StringArg(args, "y_label"),
				tools.StringArg(args, "x_label"),
			)
			if err != nil {
				return "", err
			}
			return marshalPayload(res)
		},
	})

	registry.Register(&tools.Tool{
		Name: "create_comparison_chart",
		Description: "Create a comparison bar chart PNG, one bar per company for a single " +
			"metric. If a company maps to an array of values the most recent (last) is used.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title": map[string]any{"type": "string", "description": "Chart title."},
				"companies": map[string]any{
					"type": "array", "items": map[string]any{"type": "string"},
					"description": "Company names in display order.",
				},
				"values": map[string]any{
					"type":        "object",
					"description": `Mapping of company to metric value, e.g. {"MSFT": 245.1, "AAPL": 391.0}.`,
				},
				"filename": map[string]any{"type": "string", "description": "Output PNG filename."},
				"y_label":  map[string]any{"type": "string", "description": "Optional Y-axis label."},
			},
			"required": []string{"title", "companies", "values", "filename"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			companies, err := stringsArg(args, "companies")
			if err != nil {
				return "", err
			}
			values, err := valuesArg(args, "values")
			if err != nil {
				return "", err
			}
			res, err := r.RenderComparisonChart(
				tools.StringArg(args, "title"),
				companies, values,
				tools.StringArg(args, "filename"),
				tools.StringArg(args, "y_label"),
			)
			if err != nil {
				return "", err
			}
			return marshalPayload(res)
		},
	})
}

// Arg coercion for JSON-decoded arrays and objects. Models occasionally send
// numbers where strings belong and vice versa, so these convert rather than
// reject where a sane reading exists.

func stringsArg(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key].([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array of strings", key)
	}
	out := make([]string, len(raw))
	for i, v := range raw {
		switch t := v.(type) {
		case string:
			out[i] = t
		case float64:
			out[i] = trimFloat(t)
		default:
			return nil, fmt.Errorf("%s[%d] is not a string", key, i)
		}
	}
	return out, nil
}

func floatsArg(args map[string]any, key string) ([]float64, error) {
	raw, ok := args[key].([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array of numbers", key)
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%s[%d] is not a number", key, i)
		}
		out[i] = f
	}
	return out, nil
}

func seriesArg(args map[string]any, key string) (map[string][]float64, error) {
	raw, ok := args[key].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an object mapping names to value arrays", key)
	}
	out := make(map[string][]float64, len(raw))
	for name, v := range raw {
		arr, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("%s[%q] is not an array", key, name)
		}
		vals := make([]float64, len(arr))
		for i, item := range arr {
			f, ok := toFloat(item)
			if !ok {
				return nil, fmt.Errorf("%s[%q][%d] is not a number", key, name, i)
			}
			vals[i] = f
		}
		out[name] = vals
	}
	return out, nil
}

// valuesArg reads a company-to-value object, taking the last element when an
// array arrives.
func valuesArg(args map[string]any, key string) (map[string]float64, error) {
	raw, ok := args[key].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an object mapping companies to values", key)
	}
	out := make(map[string]float64, len(raw))
	for name, v := range raw {
		if arr, ok := v.([]any); ok {
			if len(arr) == 0 {
				continue
			}
			v = arr[len(arr)-1]
		}
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%s[%q] is not a number", key, name)
		}
		out[name] = f
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	}
	return 0, false
}

func trimFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}
