package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// selectors and scripts for the ProjectionLab login flow. The app offers no
// stable automation hooks, so these track its Vuetify markup.
const (
	selEmailSignIn   = `#auth-container button:nth-of-type(2)`
	selEmailInput    = `#auth-container input[type="email"]`
	selPasswordInput = `#auth-container input[type="password"]`
	selSignInSubmit  = `#auth-container form button`

	jsOTPFieldCount = `document.querySelectorAll('.v-otp-input__field').length`
	jsPluginReady   = `typeof window.projectionlabPluginAPI !== 'undefined'`

	jsFillOTP = `(code => {
		const fields = document.querySelectorAll('.v-otp-input__field');
		for (let i = 0; i < fields.length && i < code.length; i++) {
			fields[i].value = code[i];
			fields[i].dispatchEvent(new Event('input', { bubbles: true }));
		}
		const btn = Array.from(document.querySelectorAll('button'))
			.find(b => b.textContent.includes('Submit'));
		if (btn) { btn.click(); return true; }
		return false;
	})`
)

// ChromeConfig holds tunables for the headless-Chrome browser.
type ChromeConfig struct {
	URL string

	// PageDelay bounds waits around page loads and login transitions.
	PageDelay time.Duration

	// ReadyTimeout bounds the wait for the in-page plugin hook after login.
	// Default: 30s.
	ReadyTimeout time.Duration

	Headless bool
	ExecPath string // optional Chrome binary override
}

// ChromeBrowser drives a headless Chrome through the ProjectionLab login and
// plugin API. One instance serves exactly one session.
type ChromeBrowser struct {
	cfg    ChromeConfig
	logger *zap.Logger

	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// NewChromeBrowser creates an unstarted browser.
func NewChromeBrowser(cfg ChromeConfig, logger *zap.Logger) *ChromeBrowser {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 30 * time.Second
	}
	return &ChromeBrowser{cfg: cfg, logger: logger}
}

// Start launches Chrome and navigates to the login surface, waiting out the
// configured page-load delay.
func (b *ChromeBrowser) Start(ctx context.Context) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
	)
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	b.ctx = tabCtx
	b.cancelTab = cancelTab
	b.cancelAlloc = cancelAlloc

	b.logger.Info("navigating to login page", zap.String("url", b.cfg.URL))
	if err := chromedp.Run(b.ctx,
		chromedp.Navigate(b.cfg.URL),
		chromedp.Sleep(b.cfg.PageDelay),
	); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	return nil
}

// run executes actions against the tab under both the tab's lifetime and the
// caller's deadline.
func (b *ChromeBrowser) run(ctx context.Context, actions ...chromedp.Action) error {
	if b.ctx == nil {
		return errors.New("browser not started")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(b.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Login clicks through the email sign-in form.
func (b *ChromeBrowser) Login(ctx context.Context, username, password string) error {
	err := b.run(ctx,
		chromedp.Click(selEmailSignIn, chromedp.ByQuery),
		chromedp.Sleep(time.Second),
		chromedp.WaitVisible(selEmailInput, chromedp.ByQuery),
		chromedp.SendKeys(selEmailInput, username, chromedp.ByQuery),
		chromedp.SendKeys(selPasswordInput, password, chromedp.ByQuery),
		chromedp.Click(selSignInSubmit, chromedp.ByQuery),
		chromedp.Sleep(3*time.Second),
	)
	if err != nil {
		return fmt.Errorf("submit login form: %w", err)
	}
	return nil
}

// MFAChallenged checks for the one-time-code input fields.
func (b *ChromeBrowser) MFAChallenged(ctx context.Context) (bool, error) {
	var count int
	if err := b.run(ctx, chromedp.Evaluate(jsOTPFieldCount, &count)); err != nil {
		return false, fmt.Errorf("probe MFA challenge: %w", err)
	}
	return count > 0, nil
}

// SubmitMFA fills the split code inputs and submits. A false return means
// the page is still showing the challenge — the code was rejected.
func (b *ChromeBrowser) SubmitMFA(ctx context.Context, code string) (bool, error) {
	var clicked bool
	script := fmt.Sprintf("%s(%q)", jsFillOTP, code)
	if err := b.run(ctx,
		chromedp.Evaluate(script, &clicked),
		chromedp.Sleep(5*time.Second),
	); err != nil {
		return false, fmt.Errorf("submit one-time code: %w", err)
	}
	if !clicked {
		return false, errors.New("submit button not found on MFA page")
	}

	// Still on the challenge page means the code was not accepted.
	var remaining int
	if err := b.run(ctx, chromedp.Evaluate(jsOTPFieldCount, &remaining)); err != nil {
		return false, fmt.Errorf("verify one-time code: %w", err)
	}
	return remaining == 0, nil
}

// WaitReady polls for the plugin API hook, bounded by ReadyTimeout.
func (b *ChromeBrowser) WaitReady(ctx context.Context) error {
	var ready bool
	err := b.run(ctx,
		chromedp.Poll(jsPluginReady, &ready,
			chromedp.WithPollingTimeout(b.cfg.ReadyTimeout),
			chromedp.WithPollingInterval(time.Second)),
	)
	if err != nil {
		return fmt.Errorf("plugin API not available after %s: %w", b.cfg.ReadyTimeout, err)
	}
	b.logger.Info("plugin API available, login complete")
	return nil
}

// WriteAccount invokes the plugin API balance update for one account.
func (b *ChromeBrowser) WriteAccount(ctx context.Context, accountID string, balanceUSD decimal.Decimal, apiKey string) error {
	script := fmt.Sprintf(
		"window.projectionlabPluginAPI.updateAccount(%q, { balance: %s }, { key: %q })",
		accountID, balanceUSD.StringFixed(2), apiKey)

	if err := b.run(ctx, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("updateAccount call: %w", err)
	}
	return nil
}

// Close shuts the tab and the Chrome process down. Idempotent.
func (b *ChromeBrowser) Close() error {
	if b.cancelTab != nil {
		b.cancelTab()
		b.cancelTab = nil
	}
	if b.cancelAlloc != nil {
		b.cancelAlloc()
		b.cancelAlloc = nil
	}
	b.ctx = nil
	return nil
}
