package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingCredentials is returned by Load when any of the required
// ProjectionLab settings (username, password, API key) is absent.
var ErrMissingCredentials = errors.New("PL_USERNAME, PL_PASSWORD and PL_API_KEY must be set")

// Config holds all application configuration.
type Config struct {
	ProjectionLab ProjectionLabConfig
	Pricing       PricingConfig
	Lock          LockConfig
	AccountsPath  string
	ValidateOnly  bool
	RunOnce       bool
	RunInterval   time.Duration
}

// ProjectionLabConfig holds everything needed to reach and authenticate
// against the ProjectionLab web application.
type ProjectionLabConfig struct {
	Username  string
	Password  string
	APIKey    string
	MFAKey    string
	URL       string
	PageDelay time.Duration
	Update    bool // false = dry run, no writes issued
	Headless  bool
	ExecPath  string // optional Chrome binary override
}

// PricingConfig holds cache and retry settings for the price sources.
type PricingConfig struct {
	CryptoTTL    time.Duration
	EquityTTL    time.Duration
	CacheDir     string
	MaxAttempts  int
	RetryDelay   time.Duration
	RetryGrowth  float64
	CoinGeckoURL string
	YahooURL     string
}

// LockConfig holds the run-guard marker settings.
type LockConfig struct {
	Path       string
	StaleAfter time.Duration
}

// Load reads configuration from the environment. ProjectionLab settings use
// the PL_ variable names of the original deployment; operational toggles
// (VALIDATE_ONLY, UPDATE_PROJECTIONLAB, RUN_ONCE) keep their unprefixed names.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	// ProjectionLab credentials and session knobs.
	v.BindEnv("pl.username", "PL_USERNAME")
	v.BindEnv("pl.password", "PL_PASSWORD")
	v.BindEnv("pl.api_key", "PL_API_KEY")
	v.BindEnv("pl.mfa_key", "PL_MFA_KEY")
	v.BindEnv("pl.url", "PL_URL")
	v.BindEnv("pl.time_delay", "PL_TIME_DELAY")
	v.BindEnv("pl.headless", "PL_HEADLESS")
	v.BindEnv("pl.exec_path", "PL_CHROME_PATH")
	v.BindEnv("pl.update", "UPDATE_PROJECTIONLAB")

	// Process behaviour.
	v.BindEnv("validate_only", "VALIDATE_ONLY")
	v.BindEnv("run_once", "RUN_ONCE")
	v.BindEnv("run_interval_sec", "UPDATE_INTERVAL")
	v.BindEnv("accounts_path", "ACCOUNTS_PATH")

	// Pricing.
	v.BindEnv("pricing.crypto_ttl_sec", "CRYPTO_CACHE_TTL")
	v.BindEnv("pricing.equity_ttl_sec", "EQUITY_CACHE_TTL")
	v.BindEnv("pricing.cache_dir", "PRICE_CACHE_DIR")
	v.BindEnv("pricing.max_attempts", "PRICE_MAX_RETRIES")
	v.BindEnv("pricing.retry_delay_sec", "PRICE_RETRY_DELAY")
	v.BindEnv("pricing.retry_growth", "PRICE_RETRY_GROWTH")

	// Run lock.
	v.BindEnv("lock.path", "LOCK_FILE_PATH")

	// Defaults.
	v.SetDefault("pl.url", "https://app.projectionlab.com/login")
	v.SetDefault("pl.time_delay", 10)
	v.SetDefault("pl.headless", true)
	v.SetDefault("pl.update", true)
	v.SetDefault("validate_only", false)
	v.SetDefault("run_once", true)
	v.SetDefault("run_interval_sec", 3600)
	v.SetDefault("accounts_path", "/app/accounts.yaml")

	v.SetDefault("pricing.crypto_ttl_sec", 300)
	v.SetDefault("pricing.equity_ttl_sec", 900)
	v.SetDefault("pricing.cache_dir", "/tmp/plsync-cache")
	v.SetDefault("pricing.max_attempts", 3)
	v.SetDefault("pricing.retry_delay_sec", 5)
	v.SetDefault("pricing.retry_growth", 2.0)
	v.SetDefault("pricing.coingecko_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("pricing.yahoo_url", "https://query1.finance.yahoo.com")

	v.SetDefault("lock.path", "/tmp/plsync_update.lock")
	v.SetDefault("lock.stale_sec", 3600)

	cfg := &Config{}

	cfg.ProjectionLab = ProjectionLabConfig{
		Username:  v.GetString("pl.username"),
		Password:  v.GetString("pl.password"),
		APIKey:    v.GetString("pl.api_key"),
		MFAKey:    cleanMFAKey(v.GetString("pl.mfa_key")),
		URL:       v.GetString("pl.url"),
		PageDelay: time.Duration(v.GetInt("pl.time_delay")) * time.Second,
		Update:    v.GetBool("pl.update"),
		Headless:  v.GetBool("pl.headless"),
		ExecPath:  v.GetString("pl.exec_path"),
	}

	cfg.Pricing = PricingConfig{
		CryptoTTL:    time.Duration(v.GetInt("pricing.crypto_ttl_sec")) * time.Second,
		EquityTTL:    time.Duration(v.GetInt("pricing.equity_ttl_sec")) * time.Second,
		CacheDir:     v.GetString("pricing.cache_dir"),
		MaxAttempts:  v.GetInt("pricing.max_attempts"),
		RetryDelay:   time.Duration(v.GetInt("pricing.retry_delay_sec")) * time.Second,
		RetryGrowth:  v.GetFloat64("pricing.retry_growth"),
		CoinGeckoURL: v.GetString("pricing.coingecko_url"),
		YahooURL:     v.GetString("pricing.yahoo_url"),
	}

	cfg.Lock = LockConfig{
		Path:       v.GetString("lock.path"),
		StaleAfter: time.Duration(v.GetInt("lock.stale_sec")) * time.Second,
	}

	cfg.AccountsPath = v.GetString("accounts_path")
	cfg.ValidateOnly = v.GetBool("validate_only")
	cfg.RunOnce = v.GetBool("run_once")
	cfg.RunInterval = time.Duration(v.GetInt("run_interval_sec")) * time.Second

	pl := cfg.ProjectionLab
	if pl.Username == "" || pl.Password == "" || pl.APIKey == "" {
		return nil, ErrMissingCredentials
	}

	return cfg, nil
}

// cleanMFAKey strips the separators and quoting that users commonly paste
// along with a base32 TOTP secret.
func cleanMFAKey(raw string) string {
	r := strings.NewReplacer(" ", "", "-", "", `"`, "", "'", "")
	return strings.ToUpper(r.Replace(raw))
}

// String returns a redacted representation safe for the startup log line.
func (c *Config) String() string {
	return fmt.Sprintf(
		"url=%s username=%s password=%s api_key=%s mfa_key=%s page_delay=%s accounts=%s validate_only=%t update=%t",
		c.ProjectionLab.URL,
		c.ProjectionLab.Username,
		redact(c.ProjectionLab.Password),
		redact(c.ProjectionLab.APIKey),
		redact(c.ProjectionLab.MFAKey),
		c.ProjectionLab.PageDelay,
		c.AccountsPath,
		c.ValidateOnly,
		c.ProjectionLab.Update,
	)
}

func redact(s string) string {
	if s == "" {
		return "<unset>"
	}
	return "********"
}
