// Package edgar talks to the SEC EDGAR endpoints: ticker to CIK resolution
// via the published company_tickers.json, filing search over the submissions
// API, and document downloads into the workspace filing cache. SEC requires a
// declared User-Agent and fair-access pacing, so every download waits a
// politeness pause and all requests go through a shared identified client.
package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ledgerline/mosaic/internal/httpkit"
	"github.com/ledgerline/mosaic/internal/workspace"
)

const (
	// DefaultArchiveBaseURL serves company_tickers.json, the browse fallback,
	// and the document archives.
	DefaultArchiveBaseURL = "https://www.sec.gov"

	// DefaultDataBaseURL serves the submissions API.
	DefaultDataBaseURL = "https://data.sec.gov"

	// DefaultUserAgent satisfies the SEC fair-access policy, which rejects
	// anonymous clients. Deployments should override it with a real contact.
	DefaultUserAgent = "Mosaic Research admin@example.com"

	// DefaultCacheMaxAge is how old the newest cached filing may be before
	// the cache counts as stale (24 months).
	DefaultCacheMaxAge = 730 * 24 * time.Hour

	// DefaultDownloadPause is the politeness pause before each archive
	// download.
	DefaultDownloadPause = 500 * time.Millisecond

	// DefaultMonthsBack is the search window when the model does not pick one.
	DefaultMonthsBack = 24
)

// SupportedFilingTypes are the form types the pipeline works with.
var SupportedFilingTypes = []string{"10-K", "10-Q", "8-K", "DEF 14A"}

var (
	unsafeFilename = regexp.MustCompile(`[^\w\-. ]`)
	cikInURL       = regexp.MustCompile(`CIK=(\d+)`)
)

// Client fetches from EDGAR and stores documents through the workspace.
type Client struct {
	archiveBase string
	dataBase    string
	userAgent   string
	cacheMaxAge time.Duration
	pause       time.Duration
	http        *http.Client
	ws          *workspace.Workspace
	log         *slog.Logger
}

type Option func(*Client)

// WithArchiveBaseURL overrides the www.sec.gov base, mainly for tests.
func WithArchiveBaseURL(u string) Option {
	return func(c *Client) { c.archiveBase = strings.TrimRight(u, "/") }
}

// WithDataBaseURL overrides the data.sec.gov base, mainly for tests.
func WithDataBaseURL(u string) Option {
	return func(c *Client) { c.dataBase = strings.TrimRight(u, "/") }
}

// WithUserAgent sets the declared User-Agent sent on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithCacheMaxAge sets the freshness window for the local filing cache.
func WithCacheMaxAge(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.cacheMaxAge = d
		}
	}
}

// WithDownloadPause sets the politeness pause before each download. Tests
// set it to zero.
func WithDownloadPause(d time.Duration) Option {
	return func(c *Client) { c.pause = d }
}

// WithHTTPClient substitutes the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient builds an EDGAR client storing downloads in the given workspace.
func NewClient(ws *workspace.Workspace, opts ...Option) *Client {
	c := &Client{
		archiveBase: DefaultArchiveBaseURL,
		dataBase:    DefaultDataBaseURL,
		userAgent:   DefaultUserAgent,
		cacheMaxAge: DefaultCacheMaxAge,
		pause:       DefaultDownloadPause,
		ws:          ws,
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = httpkit.NewClient(
			httpkit.WithTimeout(60*time.Second),
			httpkit.WithUserAgent(c.userAgent),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(c.log),
		)
	}
	return c
}

// PadCIK left-pads a CIK to the 10 digits the submissions API expects.
func PadCIK(cik string) string {
	cik = strings.TrimSpace(cik)
	if len(cik) >= 10 {
		return cik
	}
	return strings.Repeat("0", 10-len(cik)) + cik
}

// CIKResult resolves a ticker to its EDGAR identity.
type CIKResult struct {
	Ticker      string `json:"ticker"`
	CIK         string `json:"cik"`
	CompanyName string `json:"company_name"`
}

// tickerEntry is one record of company_tickers.json, which is published as
// an object keyed by row index.
type tickerEntry struct {
	CIK    int64  `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// LookupCIK resolves a ticker through company_tickers.json, falling back to
// the browse-edgar company search when the published table misses it.
func (c *Client) LookupCIK(ctx context.Context, ticker, companyName string) (CIKResult, error) {
	ticker = workspace.NormalizeTicker(ticker)
	if ticker == "" {
		return CIKResult{}, fmt.Errorf("ticker is required")
	}

	entries, err := c.fetchTickerTable(ctx)
	if err != nil {
		c.log.Warn("company ticker table unavailable, trying browse fallback", "error", err)
	} else {
		for _, e := range entries {
			if strings.EqualFold(e.Ticker, ticker) {
				name := e.Title
				if name == "" {
					name = companyName
				}
				return CIKResult{
					Ticker:      ticker,
					CIK:         PadCIK(fmt.Sprintf("%d", e.CIK)),
					CompanyName: name,
				}, nil
			}
		}
	}

	res, err := c.browseLookup(ctx, ticker, companyName)
	if err != nil {
		return CIKResult{}, fmt.Errorf("resolve CIK for %s: %w", ticker, err)
	}
	return res, nil
}

func (c *Client) fetchTickerTable(ctx context.Context) ([]tickerEntry, error) {
	u := c.archiveBase + "/files/company_tickers.json"
	body, err := c.getJSON(ctx, u)
	if err != nil {
		return nil, err
	}
	defer httpkit.DrainAndClose(body, 1<<20)

	var table map[string]tickerEntry
	if err := json.NewDecoder(body).Decode(&table); err != nil {
		return nil, fmt.Errorf("decode company tickers: %w", err)
	}
	entries := make([]tickerEntry, 0, len(table))
	for _, e := range table {
		entries = append(entries, e)
	}
	return entries, nil
}

// browseLookup queries the legacy browse-edgar endpoint and scrapes the CIK
// out of the redirect URL or the atom body.
func (c *Client) browseLookup(ctx context.Context, ticker, companyName string) (CIKResult, error) {
	q := url.Values{
		"action": {"getcompany"},
		"CIK":    {ticker},
		"type":   {"10-K"},
		"count":  {"5"},
		"output": {"atom"},
	}
	if companyName != "" {
		q.Set("company", companyName)
	}
	u := c.archiveBase + "/cgi-bin/browse-edgar?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return CIKResult{}, fmt.Errorf("build browse request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return CIKResult{}, fmt.Errorf("browse-edgar: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		return CIKResult{}, fmt.Errorf("browse-edgar: status %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}

	if m := cikInURL.FindStringSubmatch(resp.Request.URL.String()); m != nil {
		return CIKResult{Ticker: ticker, CIK: PadCIK(m[1]), CompanyName: companyName}, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CIKResult{}, fmt.Errorf("read browse response: %w", err)
	}
	if m := cikInURL.FindStringSubmatch(string(body)); m != nil {
		return CIKResult{Ticker: ticker, CIK: PadCIK(m[1]), CompanyName: companyName}, nil
	}
	return CIKResult{}, fmt.Errorf("no CIK in browse-edgar response for %s", ticker)
}

// CachedFile is one filing already present in the local cache.
type CachedFile struct {
	Name     string `json:"filename"`
	Path     string `json:"path"`
	Modified string `json:"modified"`
}

// CacheResult reports local cache state for a ticker and filing type.
type CacheResult struct {
	Ticker      string       `json:"ticker"`
	FilingType  string       `json:"filing_type"`
	CachedFiles []CachedFile `json:"cached_files"`
	CacheFresh  bool         `json:"cache_fresh"`
	Message     string       `json:"message"`
}

// CheckLocalCache reports which filings of a type are already downloaded for
// a ticker and whether the newest is within the freshness window. The
// research stage calls this before searching EDGAR so fresh companies skip
// the network entirely.
func (c *Client) CheckLocalCache(ticker, filingType string) CacheResult {
	ticker = workspace.NormalizeTicker(ticker)
	res := CacheResult{
		Ticker:      ticker,
		FilingType:  filingType,
		CachedFiles: []CachedFile{},
	}

	dir := c.cacheDir(ticker, filingType)
	entries, err := os.ReadDir(dir)
	if err != nil {
		res.Message = "no cache directory found"
		return res
	}

	var newest time.Time
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		res.CachedFiles = append(res.CachedFiles, CachedFile{
			Name:     entry.Name(),
			Path:     filepath.Join(dir, entry.Name()),
			Modified: info.ModTime().Format("2006-01-02"),
		})
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
	}
	sort.Slice(res.CachedFiles, func(i, j int) bool { return res.CachedFiles[i].Name < res.CachedFiles[j].Name })

	res.CacheFresh = !newest.IsZero() && time.Since(newest) <= c.cacheMaxAge
	state := "is stale or empty"
	if res.CacheFresh {
		state = "is fresh"
	}
	res.Message = fmt.Sprintf("found %d cached file(s), cache %s", len(res.CachedFiles), state)
	return res
}

// Filing is one submissions row matching a search.
type Filing struct {
	Form            string `json:"form"`
	FilingDate      string `json:"filing_date"`
	AccessionNumber string `json:"accession_number"`
	PrimaryDocument string `json:"primary_document"`
	DocumentURL     string `json:"document_url"`
}

// SearchResult is the outcome of a submissions search.
type SearchResult struct {
	Ticker       string   `json:"ticker"`
	CIK          string   `json:"cik"`
	CompanyName  string   `json:"company_name"`
	FilingType   string   `json:"filing_type"`
	FilingsFound int      `json:"filings_found"`
	Filings      []Filing `json:"filings"`
}

// submissionsDoc mirrors the slice-parallel layout of the submissions API:
// recent filings arrive as aligned arrays, one per column.
type submissionsDoc struct {
	Name    string `json:"name"`
	Filings struct {
		Recent struct {
			Form            []string `json:"form"`
			FilingDate      []string `json:"filingDate"`
			AccessionNumber []string `json:"accessionNumber"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

// SearchFilings lists recent filings of one form type for a CIK, newest
// first as EDGAR returns them, bounded by monthsBack.
func (c *Client) SearchFilings(ctx context.Context, ticker, cik, filingType string, monthsBack int) (SearchResult, error) {
	ticker = workspace.NormalizeTicker(ticker)
	if monthsBack <= 0 {
		monthsBack = DefaultMonthsBack
	}
	padded := PadCIK(cik)

	body, err := c.getJSON(ctx, c.dataBase+"/submissions/CIK"+padded+".json")
	if err != nil {
		return SearchResult{}, fmt.Errorf("fetch submissions for %s: %w", ticker, err)
	}
	defer httpkit.DrainAndClose(body, 1<<20)

	var doc submissionsDoc
	if err := json.NewDecoder(body).Decode(&doc); err != nil {
		return SearchResult{}, fmt.Errorf("decode submissions for %s: %w", ticker, err)
	}

	cutoff := time.Now().AddDate(0, 0, -monthsBack*30)
	recent := doc.Filings.Recent
	res := SearchResult{
		Ticker:      ticker,
		CIK:         padded,
		CompanyName: doc.Name,
		FilingType:  filingType,
		Filings:     []Filing{},
	}
	if res.CompanyName == "" {
		res.CompanyName = ticker
	}

	for i, form := range recent.Form {
		if form != filingType {
			continue
		}
		date := sliceAt(recent.FilingDate, i)
		filed, err := time.Parse("2006-01-02", date)
		if err != nil || filed.Before(cutoff) {
			continue
		}
		accession := sliceAt(recent.AccessionNumber, i)
		docName := sliceAt(recent.PrimaryDocument, i)
		res.Filings = append(res.Filings, Filing{
			Form:            form,
			FilingDate:      date,
			AccessionNumber: accession,
			PrimaryDocument: docName,
			DocumentURL:     c.documentURL(padded, accession, docName),
		})
	}
	res.FilingsFound = len(res.Filings)
	return res, nil
}

// documentURL builds the archive URL for a primary document. Archives paths
// use the unpadded CIK and the accession number without dashes.
func (c *Client) documentURL(paddedCIK, accession, doc string) string {
	if doc == "" {
		return ""
	}
	cik := strings.TrimLeft(paddedCIK, "0")
	if cik == "" {
		cik = "0"
	}
	return fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s",
		c.archiveBase, cik, strings.ReplaceAll(accession, "-", ""), doc)
}

// DownloadResult reports a completed filing download.
type DownloadResult struct {
	Success    bool   `json:"success"`
	Ticker     string `json:"ticker"`
	FilingType string `json:"filing_type"`
	Path       string `json:"filepath"`
	BytesSaved int    `json:"bytes_saved"`
	URL        string `json:"url"`
}

// DownloadFiling fetches one document into the local cache after the
// politeness pause. The filename is sanitized before writing.
func (c *Client) DownloadFiling(ctx context.Context, docURL, ticker, filingType, filename string) (DownloadResult, error) {
	ticker = workspace.NormalizeTicker(ticker)
	if docURL == "" {
		return DownloadResult{}, fmt.Errorf("url is required")
	}

	if c.pause > 0 {
		select {
		case <-time.After(c.pause):
		case <-ctx.Done():
			return DownloadResult{}, ctx.Err()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml,text/plain")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("download %s: %w", docURL, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		return DownloadResult{}, fmt.Errorf("download %s: status %d: %s",
			docURL, resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("read %s: %w", docURL, err)
	}

	dir := c.cacheDir(ticker, filingType)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return DownloadResult{}, fmt.Errorf("create cache dir: %w", err)
	}
	path := filepath.Join(dir, sanitizeFilename(filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return DownloadResult{}, fmt.Errorf("save filing: %w", err)
	}

	c.log.Info("filing downloaded",
		"ticker", ticker,
		"form", filingType,
		"path", path,
		"bytes", len(data),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return DownloadResult{
		Success:    true,
		Ticker:     ticker,
		FilingType: filingType,
		Path:       path,
		BytesSaved: len(data),
		URL:        docURL,
	}, nil
}

// cacheDir is filings/{TICKER}/{TYPE} with the type flattened for the
// filesystem (10-K becomes 10K).
func (c *Client) cacheDir(ticker, filingType string) string {
	return filepath.Join(c.ws.TickerFilingsDir(ticker), safeFilingType(filingType))
}

func safeFilingType(ft string) string {
	return strings.NewReplacer("-", "", "/", "_", " ", "_").Replace(strings.TrimSpace(ft))
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "filing.htm"
	}
	return unsafeFilename.ReplaceAllString(name, "_")
}

func sliceAt(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}

// getJSON issues a GET with a JSON accept header and returns the body on
// status 200. Callers close it.
func (c *Client) getJSON(ctx context.Context, u string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d: %s", u, resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}
	return resp.Body, nil
}
