package prompts

import (
	"strings"
	"testing"
)

func TestResearchMessage(t *testing.T) {
	result := ResearchMessage([]Company{
		{Name: "Microsoft Corporation", Ticker: "MSFT"},
		{Name: "Apple Inc.", Ticker: "AAPL"},
	}, "projects/demo/filings")

	if !strings.Contains(result, "Microsoft Corporation (Ticker: MSFT)") {
		t.Error("message should list the first company with its ticker")
	}
	if !strings.Contains(result, "Apple Inc. (Ticker: AAPL)") {
		t.Error("message should list the second company with its ticker")
	}
	if !strings.Contains(result, "projects/demo/filings") {
		t.Error("message should contain the filings directory")
	}
}

func TestExtractionMessage(t *testing.T) {
	result := ExtractionMessage(Company{Name: "Microsoft Corporation", Ticker: "msft"}, "projects/demo/filings/MSFT")

	if !strings.Contains(result, "MSFT") {
		t.Error("message should upcase the ticker")
	}
	if !strings.Contains(result, "projects/demo/filings/MSFT") {
		t.Error("message should contain the company filings directory")
	}
	for _, tag := range []string{TagCompanyFacts, TagCompanyBrief, TagQuoteBank} {
		if !strings.Contains(ExtractionSystem, tag) {
			t.Errorf("extraction system prompt should name section tag %s", tag)
		}
	}
}

func TestAnalystMessage(t *testing.T) {
	result := AnalystMessage(Company{Name: "Apple Inc.", Ticker: "aapl"}, "projects/demo/data")

	if !strings.Contains(result, "Apple Inc.") {
		t.Error("message should contain the company name")
	}
	if !strings.Contains(result, "AAPL_facts_latest.json") {
		t.Error("message should name the facts artifact")
	}
	if !strings.Contains(result, "AAPL_quote_bank.json") {
		t.Error("message should name the quote bank artifact")
	}
	if !strings.Contains(result, `save_analyst_report("AAPL"`) {
		t.Error("message should instruct the save tool call")
	}
}

func TestSynthesisMessage(t *testing.T) {
	companies := []Company{
		{Name: "Microsoft Corporation", Ticker: "MSFT"},
		{Name: "Apple Inc.", Ticker: "AAPL"},
	}
	result := SynthesisMessage("ai-capex", "Who is best positioned on AI capex?", companies,
		"projects/ai-capex/data", "projects/ai-capex/analyses")

	if !strings.Contains(result, "Who is best positioned on AI capex?") {
		t.Error("message should contain the research question")
	}
	if !strings.Contains(result, "MSFT_facts_latest.json") {
		t.Error("message should list per-company facts files")
	}
	if !strings.Contains(result, "AAPL_report_latest.md") {
		t.Error("message should list per-company analyst reports")
	}
	if !strings.Contains(result, "save_sector_report") {
		t.Error("message should instruct the sector save tool")
	}
	if !strings.Contains(SynthesisSystem, `"viz_specs"`) {
		t.Error("synthesis system prompt should show the viz_specs block format")
	}
}

func TestVisualizationMessage(t *testing.T) {
	specs := `[{"type": "bar", "title": "Revenue", "filename": "rev.png"}]`
	result := VisualizationMessage(specs, "projects/demo/data")

	if !strings.Contains(result, `"rev.png"`) {
		t.Error("message should embed the spec JSON")
	}
	if !strings.Contains(result, "projects/demo/data") {
		t.Error("message should contain the data directory")
	}
	for _, tool := range []string{"create_bar_chart", "create_line_chart", "create_comparison_chart"} {
		if !strings.Contains(VisualizationSystem, tool) {
			t.Errorf("visualization system prompt should name tool %s", tool)
		}
	}
}
