package session

import (
	"context"

	"github.com/shopspring/decimal"
)

// Browser is the contract for reaching the external write surface. The
// concrete mechanism (headless Chrome today) stays swappable behind this
// interface; tests script a fake.
type Browser interface {
	// Start opens the browser context and navigates to the login surface.
	Start(ctx context.Context) error

	// Login submits the credential form.
	Login(ctx context.Context, username, password string) error

	// MFAChallenged reports whether the target is showing a one-time-code
	// challenge after login.
	MFAChallenged(ctx context.Context) (bool, error)

	// SubmitMFA enters the code. It returns false without error when the
	// target rejected the code and is still showing the challenge.
	SubmitMFA(ctx context.Context, code string) (bool, error)

	// WaitReady blocks until the in-page plugin hook is available, bounded
	// by the implementation's configured timeout.
	WaitReady(ctx context.Context) error

	// WriteAccount invokes the plugin hook's balance update for one account.
	WriteAccount(ctx context.Context, accountID string, balanceUSD decimal.Decimal, apiKey string) error

	// Close tears the browser context down. Idempotent.
	Close() error
}
