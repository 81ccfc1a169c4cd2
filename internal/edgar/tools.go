package edgar

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

// RegisterTools registers the EDGAR research tools: CIK lookup, local cache
// check, submissions search, and filing download. The research stage is the
// only stage that needs the network.
func (c *Client) RegisterTools(registry *tools.Registry) {
	registry.Register(&tools.Tool{
		Name: "lookup_cik",
		Description: "Look up the SEC EDGAR CIK (Central Index Key) for a company by stock " +
			"ticker. Returns the 10-digit zero-padded CIK required by the EDGAR APIs.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ticker": map[string]any{
					"type":        "string",
					"description": "Stock ticker symbol, e.g. 'MSFT', 'AAPL'.",
				},
				"company_name": map[string]any{
					"type":        "string",
					"description": "Optional company name to help disambiguate.",
				},
			},
			"required": []string{"ticker"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			ticker := tools.StringArg(args, "ticker")
			if ticker == "" {
				return "", fmt.Errorf("ticker is required")
			}
			res, err := c.LookupCIK(ctx, ticker, tools.StringArg(args, "company_name"))
			if err != nil {
				return "", err
			}
			return marshalPayload(res)
		},
	})

	registry.Register(&tools.Tool{
		Name: "check_local_cache",
		Description: "Check whether SEC filings for a ticker and filing type are already " +
			"cached locally, and whether the cache is fresh (newest file within the freshness " +
			"window). Use this BEFORE search_sec_edgar to avoid redundant downloads.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ticker": map[string]any{
					"type":        "string",
					"description": "Stock ticker symbol.",
				},
				"filing_type": map[string]any{
					"type":        "string",
					"description": "Filing form type, e.g. '10-K', '10-Q'.",
				},
			},
			"required": []string{"ticker", "filing_type"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			ticker := tools.StringArg(args, "ticker")
			if ticker == "" {
				return "", fmt.Errorf("ticker is required")
			}
			filingType := tools.StringArg(args, "filing_type")
			if filingType == "" {
				return "", fmt.Errorf("filing_type is required")
			}
			return marshalPayload(c.CheckLocalCache(ticker, filingType))
		},
	})

	registry.Register(&tools.Tool{
		Name: "search_sec_edgar",
		Description: "Search SEC EDGAR for recent filings of one form type for a company. " +
			"Requires the 10-digit CIK from lookup_cik. Returns filing metadata including " +
			"the document URL for download_filing.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ticker": map[string]any{
					"type":        "string",
					"description": "Stock ticker symbol.",
				},
				"cik": map[string]any{
					"type":        "string",
					"description": "Zero-padded 10-digit CIK from lookup_cik.",
				},
				"filing_type": map[string]any{
					"type":        "string",
					"description": "Filing form type to search for, e.g. '10-K'.",
				},
				"months_back": map[string]any{
					"type":        "integer",
					"description": "How many months of history to scan (default 24).",
				},
			},
			"required": []string{"ticker", "cik", "filing_type"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			ticker := tools.StringArg(args, "ticker")
			cik := tools.StringArg(args, "cik")
			filingType := tools.StringArg(args, "filing_type")
			if ticker == "" || cik == "" || filingType == "" {
				return "", fmt.Errorf("ticker, cik and filing_type are required")
			}
			res, err := c.SearchFilings(ctx, ticker, cik, filingType, tools.IntArg(args, "months_back", DefaultMonthsBack))
			if err != nil {
				return "", err
			}
			return marshalPayload(res)
		},
	})

	registry.Register(&tools.Tool{
		Name: "download_filing",
		Description: "Download a filing document from SEC EDGAR into the local cache. " +
			"Pass the document_url returned by search_sec_edgar. Each download waits a " +
			"politeness pause to respect SEC fair-access rules.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "Full document URL from search_sec_edgar.",
				},
				"ticker": map[string]any{
					"type":        "string",
					"description": "Stock ticker symbol, used to organise the cache.",
				},
				"filing_type": map[string]any{
					"type":        "string",
					"description": "Filing form type, e.g. '10-K'.",
				},
				"filename": map[string]any{
					"type":        "string",
					"description": "Filename to save the document as.",
				},
			},
			"required": []string{"url", "ticker", "filing_type", "filename"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			docURL := tools.StringArg(args, "url")
			ticker := tools.StringArg(args, "ticker")
			filingType := tools.StringArg(args, "filing_type")
			filename := tools.StringArg(args, "filename")
			if docURL == "" || ticker == "" || filingType == "" {
				return "", fmt.Errorf("url, ticker and filing_type are required")
			}
			res, err := c.DownloadFiling(ctx, docURL, ticker, filingType, filename)
			if err != nil {
				return "", err
			}
			return marshalPayload(res)
		},
	})
}
