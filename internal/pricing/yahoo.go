package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const yahooDefaultBaseURL = "https://query1.finance.yahoo.com"

// YahooClient fetches equity spot prices from the Yahoo Finance chart
// endpoint, one call per ticker.
type YahooClient struct {
	baseURL string
	client  *http.Client
}

// NewYahooClient creates a client against the given base URL, falling back
// to the public query host when empty.
func NewYahooClient(baseURL string) *YahooClient {
	resolved := strings.TrimRight(baseURL, "/")
	if resolved == "" {
		resolved = yahooDefaultBaseURL
	}
	return &YahooClient{
		baseURL: resolved,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice json.Number `json:"regularMarketPrice"`
				Currency           string      `json:"currency"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchPrice returns the current USD market price for one ticker.
func (c *YahooClient) FetchPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d",
		c.baseURL, url.PathEscape(ticker))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	req.Header.Set("Accept", "application/json")
	// The chart endpoint rejects requests without a browser-ish user agent.
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return decimal.Decimal{}, fmt.Errorf("yahoo: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload yahooChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Decimal{}, fmt.Errorf("yahoo: decode response: %w", err)
	}

	if payload.Chart.Error != nil {
		return decimal.Decimal{}, fmt.Errorf("yahoo: %s: %s",
			payload.Chart.Error.Code, payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 {
		return decimal.Decimal{}, fmt.Errorf("yahoo: no result for %s", ticker)
	}

	price, err := decimal.NewFromString(payload.Chart.Result[0].Meta.RegularMarketPrice.String())
	if err != nil || !price.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("yahoo: malformed price for %s", ticker)
	}

	return price, nil
}
