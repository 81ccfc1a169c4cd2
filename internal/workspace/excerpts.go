package workspace

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Excerpt search keeps citation hunting cheap: instead of re-reading a whole
// filing into context, a session asks for the paragraphs matching all of its
// keywords and gets short excerpts back.
const (
	// DefaultExcerptBudget bounds the total characters returned per search.
	DefaultExcerptBudget = 8000

	excerptMaxLen   = 500
	maxExcerpts     = 20
	minParagraphLen = 40
)

var paragraphSplit = regexp.MustCompile(`\n{2,}`)

// Excerpt is one matching paragraph, trimmed to excerptMaxLen.
type Excerpt struct {
	File string `json:"file"`
	Text string `json:"text"`
}

// ExcerptResult is the read model behind the search_excerpts tool.
type ExcerptResult struct {
	Ticker     string    `json:"ticker"`
	Keywords   string    `json:"keywords"`
	Excerpts   []Excerpt `json:"excerpts"`
	TotalFound int       `json:"total_excerpts_found"`
	Message    string    `json:"message,omitempty"`
}

// SearchExcerpts scans the downloaded filings for a ticker and returns
// paragraphs containing every keyword, case-insensitively. Newest files in a
// filing directory are scanned first; the scan stops once budget characters
// of excerpts have accumulated. Soft conditions (no filings, no keywords)
// come back in the result rather than as errors so the model can react.
func (w *Workspace) SearchExcerpts(ticker, keywords string, budget int) ExcerptResult {
	if budget <= 0 {
		budget = DefaultExcerptBudget
	}
	res := ExcerptResult{
		Ticker:   NormalizeTicker(ticker),
		Keywords: keywords,
		Excerpts: []Excerpt{},
	}

	tickerDir := w.TickerFilingsDir(ticker)
	if info, err := os.Stat(tickerDir); err != nil || !info.IsDir() {
		res.Message = "no filings directory for " + res.Ticker
		return res
	}

	terms := splitKeywords(keywords)
	if len(terms) == 0 {
		return res
	}

	used := 0
	for _, sub := range sortedSubdirs(tickerDir) {
		for _, name := range sortedFilesDesc(filepath.Join(tickerDir, sub)) {
			path := filepath.Join(tickerDir, sub, name)
			raw, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			text := string(raw)
			if isHTMLPath(path) {
				text = HTMLToText(text)
			}
			for _, para := range paragraphSplit.Split(text, -1) {
				para = strings.TrimSpace(para)
				if len(para) <= minParagraphLen || !matchesAll(para, terms) {
					continue
				}
				if len(para) > excerptMaxLen {
					para = para[:excerptMaxLen] + "..."
				}
				res.Excerpts = append(res.Excerpts, Excerpt{
					File: filepath.Join(sub, name),
					Text: para,
				})
				used += len(para)
				if used >= budget {
					break
				}
			}
			if used >= budget {
				break
			}
		}
		if used >= budget {
			break
		}
	}

	res.TotalFound = len(res.Excerpts)
	if len(res.Excerpts) > maxExcerpts {
		res.Excerpts = res.Excerpts[:maxExcerpts]
	}
	return res
}

func splitKeywords(keywords string) []string {
	var terms []string
	for _, k := range strings.Fields(keywords) {
		terms = append(terms, strings.ToLower(k))
	}
	return terms
}

func matchesAll(para string, terms []string) bool {
	lower := strings.ToLower(para)
	for _, t := range terms {
		if !strings.Contains(lower, t) {
			return false
		}
	}
	return true
}

func sortedSubdirs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var subs []string
	for _, e := range entries {
		if e.IsDir() {
			subs = append(subs, e.Name())
		}
	}
	sort.Strings(subs)
	return subs
}

// sortedFilesDesc returns file names newest-first by lexical order, which
// matches the date-stamped names filings are saved under.
func sortedFilesDesc(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names
}
