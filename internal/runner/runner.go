// Package runner sequences one valuation-and-update run: acquire the run
// lock, price and value every account, push the balances through a single
// update session, report a summary.
package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/plsync/plsync/internal/assets"
	"github.com/plsync/plsync/internal/pricing"
	"github.com/plsync/plsync/internal/runlock"
	"github.com/plsync/plsync/internal/session"
	"github.com/plsync/plsync/internal/valuation"
)

// PriceSource is the slice of pricing.Source the runner needs; tests
// substitute a fixed-price fake.
type PriceSource interface {
	Warm(ctx context.Context, cryptoIDs, tickers []string) map[string]error
	CryptoPrice(ctx context.Context, symbol string) (pricing.Quote, error)
	EquityPrice(ctx context.Context, ticker string) (pricing.Quote, error)
}

// UpdateSession is one single-use authenticated write session.
type UpdateSession interface {
	Run(ctx context.Context, updates []session.AccountUpdate) ([]session.WriteResult, error)
}

// SessionFactory builds a fresh session per run; sessions are single-use.
type SessionFactory func() UpdateSession

// Runner owns the orchestration of one run.
type Runner struct {
	accounts   []assets.Account
	source     PriceSource
	guard      *runlock.Guard
	newSession SessionFactory
	logger     *zap.Logger
	dryRun     bool
	nowFunc    func() time.Time
}

// New creates a Runner. dryRun propagates the VALIDATE_ONLY /
// UPDATE_PROJECTIONLAB=false modes: everything up to the writes executes,
// no write is issued.
func New(accounts []assets.Account, source PriceSource, guard *runlock.Guard,
	factory SessionFactory, dryRun bool, logger *zap.Logger) *Runner {
	return &Runner{
		accounts:   accounts,
		source:     source,
		guard:      guard,
		newSession: factory,
		logger:     logger,
		dryRun:     dryRun,
		nowFunc:    time.Now,
	}
}

// Run executes one full pipeline pass. ErrAlreadyRunning propagates
// unwrapped so the caller can treat it as a clean skip. Any other returned
// error is fatal to the run; the summary is still populated as far as the
// run got.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	handle, err := r.guard.Acquire()
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	summary := &Summary{Configured: len(r.accounts), DryRun: r.dryRun}
	if len(r.accounts) == 0 {
		r.logger.Warn("no accounts configured, nothing to update")
		return summary, nil
	}

	// One batched crypto call plus per-ticker equity lookups fill the
	// caches; individual failures surface during per-account valuation.
	r.source.Warm(ctx, assets.CryptoSymbols(r.accounts), assets.EquityTickers(r.accounts))

	asOf := r.nowFunc()
	updates := make([]session.AccountUpdate, 0, len(r.accounts))
	for _, acct := range r.accounts {
		v, err := valuation.ValueAccount(acct, r.lookup(ctx), asOf)
		if err != nil {
			summary.Failed = append(summary.Failed, Failure{AccountID: acct.ID, Reason: err.Error()})
			r.logger.Error("account valuation failed",
				zap.String("account_id", acct.ID),
				zap.String("name", acct.Name),
				zap.Error(err))
			continue
		}

		r.logValuation(acct, v)
		updates = append(updates, session.AccountUpdate{
			ID:         acct.ID,
			Name:       acct.Name,
			BalanceUSD: v.TotalUSD,
		})
	}

	if len(updates) == 0 {
		return summary, fmt.Errorf("no account could be valued")
	}

	results, err := r.newSession().Run(ctx, updates)
	if err != nil {
		// Session-scoped failure: none of the pending writes happened.
		for _, u := range updates {
			summary.Failed = append(summary.Failed, Failure{AccountID: u.ID, Reason: err.Error()})
		}
		return summary, err
	}

	for _, res := range results {
		if res.Err != nil {
			summary.Failed = append(summary.Failed, Failure{AccountID: res.AccountID, Reason: res.Err.Error()})
			continue
		}
		summary.Succeeded = append(summary.Succeeded, res.AccountID)
	}

	return summary, nil
}

func (r *Runner) lookup(ctx context.Context) valuation.PriceLookup {
	return func(kind assets.Kind, key string) (pricing.Quote, error) {
		if kind == assets.KindCrypto {
			return r.source.CryptoPrice(ctx, key)
		}
		return r.source.EquityPrice(ctx, key)
	}
}

func (r *Runner) logValuation(acct assets.Account, v valuation.AccountValuation) {
	r.logger.Info("account valued",
		zap.String("account_id", acct.ID),
		zap.String("name", acct.Name),
		zap.String("total_usd", v.TotalUSD.StringFixed(2)))
	for _, line := range v.Lines {
		r.logger.Info("  holding",
			zap.String("asset", line.Key),
			zap.Stringer("kind", line.Kind),
			zap.String("quantity", line.Quantity.String()),
			zap.String("usd", line.USD.StringFixed(2)))
	}
}
