package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/plsync/plsync/internal/assets"
	"github.com/plsync/plsync/internal/config"
	"github.com/plsync/plsync/internal/pricing"
	"github.com/plsync/plsync/internal/runlock"
	"github.com/plsync/plsync/internal/runner"
	"github.com/plsync/plsync/internal/session"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", zap.Error(err))
		return 1
	}
	logger.Info("configuration loaded", zap.Stringer("config", cfg))

	accounts, err := assets.Load(cfg.AccountsPath, logger)
	if err != nil {
		logger.Error("failed to load accounts", zap.String("path", cfg.AccountsPath), zap.Error(err))
		return 1
	}
	logger.Info("accounts loaded", zap.Int("count", len(accounts)))

	source, err := pricing.NewSource(pricing.SourceConfig{
		CryptoTTL: cfg.Pricing.CryptoTTL,
		EquityTTL: cfg.Pricing.EquityTTL,
		CacheDir:  cfg.Pricing.CacheDir,
		Retry: pricing.RetryPolicy{
			MaxAttempts: cfg.Pricing.MaxAttempts,
			BaseDelay:   cfg.Pricing.RetryDelay,
			Growth:      cfg.Pricing.RetryGrowth,
		},
		CoinGeckoURL: cfg.Pricing.CoinGeckoURL,
		YahooURL:     cfg.Pricing.YahooURL,
	}, logger)
	if err != nil {
		logger.Error("failed to set up price source", zap.Error(err))
		return 1
	}

	guard := runlock.New(cfg.Lock.Path, cfg.Lock.StaleAfter, logger)

	dryRun := cfg.ValidateOnly || !cfg.ProjectionLab.Update
	if dryRun {
		logger.Info("dry run: no balances will be written")
	}

	pl := cfg.ProjectionLab
	factory := func() runner.UpdateSession {
		browser := session.NewChromeBrowser(session.ChromeConfig{
			URL:       pl.URL,
			PageDelay: pl.PageDelay,
			Headless:  pl.Headless,
			ExecPath:  pl.ExecPath,
		}, logger)
		creds := session.NewCredentials(pl.Username, pl.Password, pl.APIKey, pl.MFAKey)
		return session.New(browser, creds, session.Config{DryRun: dryRun}, logger)
	}

	r := runner.New(accounts, source, guard, factory, dryRun, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.RunOnce {
		return runPass(ctx, r, logger)
	}

	// Interval loop: one pass immediately, then one per tick until the
	// process is signalled.
	code := runPass(ctx, r, logger)
	ticker := time.NewTicker(cfg.RunInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return code
		case <-ticker.C:
			code = runPass(ctx, r, logger)
		}
	}
}

func runPass(ctx context.Context, r *runner.Runner, logger *zap.Logger) int {
	summary, err := r.Run(ctx)
	if errors.Is(err, runlock.ErrAlreadyRunning) {
		// A concurrent run is a normal skip, not a failure.
		logger.Warn("another run is in progress, skipping", zap.Error(err))
		return 0
	}
	if err != nil {
		logger.Error("run failed", zap.Error(err))
	}
	if summary != nil {
		summary.Log(logger)
		if summary.Success() && err == nil {
			return 0
		}
	}
	return 1
}
