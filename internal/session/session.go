// Package session drives one authenticated ProjectionLab update: login,
// optional MFA, one balance write per account, teardown. The browser that
// reaches the undocumented write surface is hidden behind the Browser
// interface; the state machine itself is transport-agnostic.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Sentinel errors for session-scoped failures. Auth failures are fatal to
// the whole run: without authentication no writes can succeed.
var (
	ErrLoginFailed = errors.New("login failed")
	ErrMFARejected = errors.New("one-time code rejected twice")
	ErrSessionDone = errors.New("session already ran")
)

// State tracks the update session lifecycle.
type State uint8

const (
	StateUnauthenticated State = iota + 1
	StateLoggingIn
	StateMfaPending
	StateAuthenticated
	StateWritingAccounts
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateLoggingIn:
		return "logging-in"
	case StateMfaPending:
		return "mfa-pending"
	case StateAuthenticated:
		return "authenticated"
	case StateWritingAccounts:
		return "writing-accounts"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// AccountUpdate is one pending balance write.
type AccountUpdate struct {
	ID         string
	Name       string
	BalanceUSD decimal.Decimal
}

// WriteResult records the outcome of one account's write. Planned is set in
// dry-run mode, where the total is reported but no write is issued.
type WriteResult struct {
	AccountID  string
	BalanceUSD decimal.Decimal
	Planned    bool
	Err        error
}

// WriteError scopes a write failure to one account so the batch continues.
type WriteError struct {
	AccountID string
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write for account %s: %v", e.AccountID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Config holds session tunables.
type Config struct {
	// DryRun validates login and MFA but issues no writes.
	DryRun bool

	// WritePacing is the pause between consecutive account writes.
	// Default: 1s, matching the target application's plugin throttling.
	WritePacing time.Duration
}

// Session is a single-use update session. Run may be called once; the
// browser context and credentials are destroyed when it returns, whatever
// the outcome.
type Session struct {
	browser Browser
	creds   *Credentials
	cfg     Config
	logger  *zap.Logger

	state   State
	ran     bool
	nowFunc func() time.Time // injectable clock for TOTP generation in tests
	sleep   func(ctx context.Context, d time.Duration)
}

// New creates a Session over the given browser and credentials. The session
// takes ownership of creds and destroys them on close.
func New(browser Browser, creds *Credentials, cfg Config, logger *zap.Logger) *Session {
	if cfg.WritePacing <= 0 {
		cfg.WritePacing = time.Second
	}
	return &Session{
		browser: browser,
		creds:   creds,
		cfg:     cfg,
		logger:  logger,
		state:   StateUnauthenticated,
		nowFunc: time.Now,
		sleep:   sleepCtx,
	}
}

// State returns the machine's current state.
func (s *Session) State() State { return s.state }

// Run executes the whole update flow for the given accounts, in order. The
// returned slice has one entry per account. A non-nil error means the session
// itself failed (login, MFA) and no further writes were possible; per-account
// write failures are recorded in the results, not returned.
func (s *Session) Run(ctx context.Context, updates []AccountUpdate) ([]WriteResult, error) {
	if s.ran {
		return nil, ErrSessionDone
	}
	s.ran = true
	defer s.close()

	if err := s.authenticate(ctx); err != nil {
		s.transition(StateFailed)
		return nil, err
	}

	if s.cfg.DryRun {
		results := make([]WriteResult, 0, len(updates))
		for _, u := range updates {
			s.logger.Info("dry run: planned balance update",
				zap.String("account_id", u.ID),
				zap.String("name", u.Name),
				zap.String("balance_usd", u.BalanceUSD.StringFixed(2)))
			results = append(results, WriteResult{AccountID: u.ID, BalanceUSD: u.BalanceUSD, Planned: true})
		}
		return results, nil
	}

	s.transition(StateWritingAccounts)
	results := make([]WriteResult, 0, len(updates))
	for i, u := range updates {
		if i > 0 {
			s.sleep(ctx, s.cfg.WritePacing)
		}

		res := WriteResult{AccountID: u.ID, BalanceUSD: u.BalanceUSD}
		if err := s.writeAccount(ctx, u); err != nil {
			// One bad account never blocks the rest of the batch.
			res.Err = &WriteError{AccountID: u.ID, Err: err}
			s.logger.Error("account update failed",
				zap.String("account_id", u.ID),
				zap.String("name", u.Name),
				zap.Error(err))
		} else {
			s.logger.Info("account updated",
				zap.String("account_id", u.ID),
				zap.String("name", u.Name),
				zap.String("balance_usd", u.BalanceUSD.StringFixed(2)))
		}
		results = append(results, res)
	}

	return results, nil
}

// authenticate walks Unauthenticated → LoggingIn → (MfaPending) →
// Authenticated.
func (s *Session) authenticate(ctx context.Context) error {
	s.transition(StateLoggingIn)

	if err := s.browser.Start(ctx); err != nil {
		return fmt.Errorf("%w: start browser: %v", ErrLoginFailed, err)
	}

	password, err := s.creds.Password()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	err = s.browser.Login(ctx, s.creds.Username, password)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	challenged, err := s.browser.MFAChallenged(ctx)
	if err != nil {
		return fmt.Errorf("%w: detect MFA challenge: %v", ErrLoginFailed, err)
	}
	if challenged {
		s.transition(StateMfaPending)
		if err := s.submitMFA(ctx); err != nil {
			return err
		}
	}

	if err := s.browser.WaitReady(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	s.transition(StateAuthenticated)
	return nil
}

// submitMFA generates a one-time code and submits it. A rejection is
// expected to be a just-expired time window, so the code is regenerated once
// and retried exactly once more before the session fails.
func (s *Session) submitMFA(ctx context.Context) error {
	if !s.creds.HasMFA() {
		return fmt.Errorf("%w: MFA challenged but no shared secret configured", ErrLoginFailed)
	}

	code, err := s.creds.TOTPCode(s.nowFunc())
	if err != nil {
		return fmt.Errorf("%w: generate code: %v", ErrLoginFailed, err)
	}

	accepted, err := s.browser.SubmitMFA(ctx, code)
	if err != nil {
		return fmt.Errorf("%w: submit code: %v", ErrLoginFailed, err)
	}
	if accepted {
		return nil
	}

	s.logger.Warn("one-time code rejected, retrying with a fresh code")
	fresh, err := s.creds.TOTPCode(s.nowFunc())
	if err != nil {
		return fmt.Errorf("%w: regenerate code: %v", ErrLoginFailed, err)
	}

	accepted, err = s.browser.SubmitMFA(ctx, fresh)
	if err != nil {
		return fmt.Errorf("%w: submit code: %v", ErrLoginFailed, err)
	}
	if !accepted {
		return ErrMFARejected
	}
	return nil
}

func (s *Session) writeAccount(ctx context.Context, u AccountUpdate) error {
	apiKey, err := s.creds.APIKey()
	if err != nil {
		return err
	}
	return s.browser.WriteAccount(ctx, u.ID, u.BalanceUSD, apiKey)
}

// close tears down the browser and credential enclaves regardless of how the
// run ended, then settles the terminal state.
func (s *Session) close() {
	if err := s.browser.Close(); err != nil {
		s.logger.Warn("browser teardown failed", zap.Error(err))
	}
	s.creds.Destroy()

	if s.state != StateFailed {
		s.transition(StateClosed)
	}
}

func (s *Session) transition(next State) {
	s.logger.Debug("session state change",
		zap.Stringer("from", s.state),
		zap.Stringer("to", next))
	s.state = next
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
