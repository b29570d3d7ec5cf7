package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// cryptoProvider is satisfied by *CoinGeckoClient; tests use fakes.
type cryptoProvider interface {
	FetchPrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error)
}

// equityProvider is satisfied by *YahooClient; tests use fakes.
type equityProvider interface {
	FetchPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
}

// SourceConfig holds tunable parameters for a Source.
type SourceConfig struct {
	// CryptoTTL bounds the age of in-memory crypto quotes. Default: 300s.
	CryptoTTL time.Duration

	// EquityTTL bounds the age of on-disk equity quotes. Default: 15m.
	EquityTTL time.Duration

	// CacheDir is where the persistent equity cache lives.
	CacheDir string

	Retry RetryPolicy

	CoinGeckoURL string
	YahooURL     string
}

// Source is the price acquisition facade: cached, retried lookups against
// two independent upstream providers. Crypto quotes live in memory for one
// run's TTL; equity quotes persist on disk across process restarts. The two
// paths never share a cache, TTL, or backoff budget.
type Source struct {
	crypto cryptoProvider
	equity equityProvider

	mem  *memoryCache
	disk *diskCache

	retry   RetryPolicy
	logger  *zap.Logger
	nowFunc func() time.Time
}

// NewSource creates a Source backed by CoinGecko and Yahoo Finance.
func NewSource(cfg SourceConfig, logger *zap.Logger) (*Source, error) {
	disk, err := newDiskCache(cfg.CacheDir, cfg.EquityTTL)
	if err != nil {
		return nil, fmt.Errorf("equity cache: %w", err)
	}
	return &Source{
		crypto:  NewCoinGeckoClient(cfg.CoinGeckoURL),
		equity:  NewYahooClient(cfg.YahooURL),
		mem:     newMemoryCache(cfg.CryptoTTL),
		disk:    disk,
		retry:   cfg.Retry,
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

// Warm prefetches all given crypto ids in one batched upstream call and each
// equity ticker individually, populating the caches. Per-key failures are
// returned without aborting sibling lookups; an empty map means every key
// resolved.
func (s *Source) Warm(ctx context.Context, cryptoIDs, tickers []string) map[string]error {
	failures := make(map[string]error)

	pending := make([]string, 0, len(cryptoIDs))
	for _, id := range cryptoIDs {
		if _, ok := s.mem.get(id); !ok {
			pending = append(pending, id)
		}
	}

	if len(pending) > 0 {
		prices, err := s.fetchCryptoBatch(ctx, pending)
		if err != nil {
			for _, id := range pending {
				failures[id] = unavailable(id, err)
			}
		} else {
			for _, id := range pending {
				price, ok := prices[id]
				if !ok {
					failures[id] = unavailable(id, fmt.Errorf("not in provider response"))
					continue
				}
				s.mem.put(Quote{Key: id, USD: price, ObservedAt: s.nowFunc()})
			}
		}
	}

	for _, ticker := range tickers {
		if _, err := s.EquityPrice(ctx, ticker); err != nil {
			failures[ticker] = err
		}
	}

	for key, err := range failures {
		s.logger.Warn("price lookup failed", zap.String("asset", key), zap.Error(err))
	}

	return failures
}

// CryptoPrice returns the current USD quote for one CoinGecko id, consulting
// the in-memory cache before the upstream provider.
func (s *Source) CryptoPrice(ctx context.Context, symbol string) (Quote, error) {
	if quote, ok := s.mem.get(symbol); ok {
		return quote, nil
	}

	prices, err := s.fetchCryptoBatch(ctx, []string{symbol})
	if err != nil {
		return Quote{}, unavailable(symbol, err)
	}

	price, ok := prices[symbol]
	if !ok {
		return Quote{}, unavailable(symbol, fmt.Errorf("not in provider response"))
	}

	quote := Quote{Key: symbol, USD: price, ObservedAt: s.nowFunc()}
	s.mem.put(quote)
	return quote, nil
}

// EquityPrice returns the current USD quote for one ticker, consulting the
// persistent disk cache before the upstream provider.
func (s *Source) EquityPrice(ctx context.Context, ticker string) (Quote, error) {
	if quote, ok := s.disk.get(ticker); ok {
		return quote, nil
	}

	var price decimal.Decimal
	err := s.retry.Do(ctx, func() error {
		var ferr error
		price, ferr = s.equity.FetchPrice(ctx, ticker)
		return ferr
	})
	if err != nil {
		return Quote{}, unavailable(ticker, err)
	}

	quote := Quote{Key: ticker, USD: price, ObservedAt: s.nowFunc()}
	if err := s.disk.put(quote); err != nil {
		s.logger.Warn("equity cache write failed", zap.String("ticker", ticker), zap.Error(err))
	}
	return quote, nil
}

func (s *Source) fetchCryptoBatch(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	var prices map[string]decimal.Decimal
	err := s.retry.Do(ctx, func() error {
		var ferr error
		prices, ferr = s.crypto.FetchPrices(ctx, ids)
		return ferr
	})
	return prices, err
}
