package charts

import (
	"encoding/json"
	"regexp"
)

// VizSpec is one requested chart from the synthesis report's specification
// block. Data is chart-type specific: bar charts carry "labels" and
// "values", line charts "x_labels" and "series", comparison charts
// "companies" and "values".
type VizSpec struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Data     map[string]any `json:"data"`
	Filename string         `json:"filename"`
}

// The block is either fenced as ```json { ... "viz_specs": [...] ... }``` or
// embedded bare. The bare form tolerates no nested braces before the
// viz_specs key, which holds for the flat wrapper object the prompt asks for.
var (
	fencedVizSpecs = regexp.MustCompile("(?s)```json\\s*(\\{.*?\"viz_specs\".*?\\})\\s*```")
	bareVizSpecs   = regexp.MustCompile(`(?s)\{[^{}]*"viz_specs"\s*:\s*\[.*?\]\s*\}`)
)

type vizSpecsBlock struct {
	VizSpecs []VizSpec `json:"viz_specs"`
}

// ParseVizSpecs pulls the chart specification block out of report text.
// Missing or malformed blocks yield nil; the pipeline treats that as "no
// visualizations requested" rather than an error.
func ParseVizSpecs(text string) []VizSpec {
	if m := fencedVizSpecs.FindStringSubmatch(text); m != nil {
		if specs := decodeVizSpecs(m[1]); specs != nil {
			return specs
		}
	}
	if m := bareVizSpecs.FindString(text); m != "" {
		return decodeVizSpecs(m)
	}
	return nil
}

func decodeVizSpecs(raw string) []VizSpec {
	var block vizSpecsBlock
	if err := json.Unmarshal([]byte(raw), &block); err != nil {
		return nil
	}
	return block.VizSpecs
}
