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

const coinGeckoDefaultBaseURL = "https://api.coingecko.com/api/v3"

// CoinGeckoClient fetches crypto spot prices from the CoinGecko simple-price
// endpoint, one batched call per lookup set.
type CoinGeckoClient struct {
	baseURL string
	client  *http.Client
}

// NewCoinGeckoClient creates a client against the given base URL, falling
// back to the public API when empty.
func NewCoinGeckoClient(baseURL string) *CoinGeckoClient {
	resolved := strings.TrimRight(baseURL, "/")
	if resolved == "" {
		resolved = coinGeckoDefaultBaseURL
	}
	return &CoinGeckoClient{
		baseURL: resolved,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchPrices returns the current USD price for each requested CoinGecko id.
// Ids absent from the response are absent from the result map; the caller
// decides whether that is an error.
func (c *CoinGeckoClient) FetchPrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	endpoint, err := url.Parse(c.baseURL + "/simple/price")
	if err != nil {
		return nil, err
	}
	query := endpoint.Query()
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", "usd")
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("coingecko: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// json.Number keeps the upstream digits exact for decimal conversion.
	var payload map[string]map[string]json.Number
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("coingecko: decode response: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(payload))
	for id, values := range payload {
		raw, ok := values["usd"]
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(raw.String())
		if err != nil || !price.IsPositive() {
			continue
		}
		prices[id] = price
	}

	return prices, nil
}
