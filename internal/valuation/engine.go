// Package valuation computes the aggregate USD value of an account's
// declared holdings from already-fetched quotes. It performs no I/O; prices
// arrive through an injected lookup so tests can use a fixed map.
package valuation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/plsync/plsync/internal/assets"
	"github.com/plsync/plsync/internal/pricing"
)

// PriceLookup resolves one asset key to a current quote. Satisfied by
// pricing.Source via runner glue, or by a map in tests.
type PriceLookup func(kind assets.Kind, key string) (pricing.Quote, error)

// Line is one holding's contribution to an account total, kept for the
// per-asset run log.
type Line struct {
	Kind     assets.Kind
	Key      string
	Quantity decimal.Decimal
	USD      decimal.Decimal
}

// AccountValuation is the computed USD total for one account. It exists only
// within a single run.
type AccountValuation struct {
	AccountID string
	TotalUSD  decimal.Decimal
	AsOf      time.Time
	Lines     []Line
}

// Error marks an account whose valuation could not be completed because a
// required quote was missing. A partial total is never produced.
type Error struct {
	AccountID  string
	MissingKey string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("valuation of account %s: missing price for %s: %v",
		e.AccountID, e.MissingKey, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ValueAccount sums quantity×price across all holdings of one account. The
// first missing quote aborts the valuation with *Error; the sum itself is
// order-independent exact decimal arithmetic.
func ValueAccount(acct assets.Account, lookup PriceLookup, asOf time.Time) (AccountValuation, error) {
	total := decimal.Zero
	lines := make([]Line, 0, len(acct.Holdings))

	for _, h := range acct.Holdings {
		quote, err := lookup(h.Kind, h.Key)
		if err != nil {
			return AccountValuation{}, &Error{AccountID: acct.ID, MissingKey: h.Key, Err: err}
		}

		value := h.Quantity.Mul(quote.USD)
		total = total.Add(value)
		lines = append(lines, Line{
			Kind:     h.Kind,
			Key:      h.Key,
			Quantity: h.Quantity,
			USD:      value,
		})
	}

	return AccountValuation{
		AccountID: acct.ID,
		TotalUSD:  total,
		AsOf:      asOf,
		Lines:     lines,
	}, nil
}
