package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCoinGeckoFetchPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simple/price" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		ids := r.URL.Query().Get("ids")
		if ids != "bitcoin,ethereum" {
			t.Errorf("unexpected ids param: %s", ids)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"bitcoin":{"usd":60000.12},"ethereum":{"usd":3000}}`))
	}))
	defer srv.Close()

	client := NewCoinGeckoClient(srv.URL)
	prices, err := client.FetchPrices(context.Background(), []string{"bitcoin", "ethereum"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !prices["bitcoin"].Equal(usd("60000.12")) {
		t.Errorf("unexpected bitcoin price: %s", prices["bitcoin"])
	}
	if !prices["ethereum"].Equal(usd("3000")) {
		t.Errorf("unexpected ethereum price: %s", prices["ethereum"])
	}
}

func TestCoinGeckoRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewCoinGeckoClient(srv.URL)
	if _, err := client.FetchPrices(context.Background(), []string{"bitcoin"}); err == nil {
		t.Fatal("expected an error on 429")
	}
}

func TestCoinGeckoSkipsMalformedPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"bitcoin":{"usd":0},"ethereum":{"eur":2800}}`))
	}))
	defer srv.Close()

	client := NewCoinGeckoClient(srv.URL)
	prices, err := client.FetchPrices(context.Background(), []string{"bitcoin", "ethereum"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prices) != 0 {
		t.Errorf("expected zero usable prices, got %v", prices)
	}
}

func TestCoinGeckoEmptyIDs(t *testing.T) {
	client := NewCoinGeckoClient("http://unused.invalid")
	prices, err := client.FetchPrices(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prices) != 0 {
		t.Errorf("expected empty result, got %v", prices)
	}
}

func TestYahooFetchPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v8/finance/chart/AAPL" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"chart":{"result":[{"meta":{"regularMarketPrice":150.25,"currency":"USD"}}],"error":null}}`))
	}))
	defer srv.Close()

	client := NewYahooClient(srv.URL)
	price, err := client.FetchPrice(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(usd("150.25")) {
		t.Errorf("unexpected price: %s", price)
	}
}

func TestYahooChartError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"chart":{"result":[],"error":{"code":"Not Found","description":"No data found"}}}`))
	}))
	defer srv.Close()

	client := NewYahooClient(srv.URL)
	if _, err := client.FetchPrice(context.Background(), "NOPE"); err == nil {
		t.Fatal("expected an error for unknown ticker")
	}
}

func TestYahooZeroPriceRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"chart":{"result":[{"meta":{"regularMarketPrice":0}}],"error":null}}`))
	}))
	defer srv.Close()

	client := NewYahooClient(srv.URL)
	if _, err := client.FetchPrice(context.Background(), "AAPL"); err == nil {
		t.Fatal("expected an error for non-positive price")
	}
}
