package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrPriceUnavailable marks a lookup whose upstream attempts are exhausted.
// It is always wrapped in a *PriceError carrying the asset key.
var ErrPriceUnavailable = errors.New("price unavailable")

// Quote is one observed spot price in USD. Quotes are never mutated; a
// re-fetch supersedes the old quote with a new one.
type Quote struct {
	Key        string
	USD        decimal.Decimal
	ObservedAt time.Time
}

// PriceError scopes a failure to a single asset key so sibling lookups can
// proceed.
type PriceError struct {
	Key string
	Err error
}

func (e *PriceError) Error() string {
	return fmt.Sprintf("price for %s: %v", e.Key, e.Err)
}

func (e *PriceError) Unwrap() error { return e.Err }

func unavailable(key string, cause error) *PriceError {
	return &PriceError{Key: key, Err: fmt.Errorf("%w: %v", ErrPriceUnavailable, cause)}
}
