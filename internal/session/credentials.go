package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
	"github.com/pquerna/otp/totp"
)

// ErrCredentialsDestroyed is returned when a secret is requested after the
// session tore the enclaves down.
var ErrCredentialsDestroyed = errors.New("credentials already destroyed")

// Credentials holds the login secrets sealed in memguard enclaves. Secrets
// are encrypted at rest in process memory and only opened momentarily at the
// call site. Destroy must be called exactly when the session ends.
type Credentials struct {
	Username string

	password *memguard.Enclave
	apiKey   *memguard.Enclave
	mfaKey   *memguard.Enclave // nil when MFA is not configured
}

// NewCredentials seals the given secrets. An empty mfaKey disables MFA.
func NewCredentials(username, password, apiKey, mfaKey string) *Credentials {
	c := &Credentials{
		Username: username,
		password: memguard.NewEnclave([]byte(password)),
		apiKey:   memguard.NewEnclave([]byte(apiKey)),
	}
	if mfaKey != "" {
		c.mfaKey = memguard.NewEnclave([]byte(mfaKey))
	}
	return c
}

// Password opens the password enclave for one use.
func (c *Credentials) Password() (string, error) {
	return c.open(c.password)
}

// APIKey opens the API key enclave for one use.
func (c *Credentials) APIKey() (string, error) {
	return c.open(c.apiKey)
}

// HasMFA reports whether a shared TOTP secret is configured.
func (c *Credentials) HasMFA() bool { return c.mfaKey != nil }

// TOTPCode derives the one-time code for the given instant from the sealed
// shared secret (SHA1, 6 digits, 30s window — the target's parameters).
func (c *Credentials) TOTPCode(at time.Time) (string, error) {
	if c.mfaKey == nil {
		return "", errors.New("no MFA secret configured")
	}
	secret, err := c.open(c.mfaKey)
	if err != nil {
		return "", err
	}
	code, err := totp.GenerateCode(secret, at)
	if err != nil {
		return "", fmt.Errorf("generate TOTP: %w", err)
	}
	return code, nil
}

// Destroy drops all enclaves. Subsequent secret access fails.
func (c *Credentials) Destroy() {
	c.password = nil
	c.apiKey = nil
	c.mfaKey = nil
}

func (c *Credentials) open(e *memguard.Enclave) (string, error) {
	if e == nil {
		return "", ErrCredentialsDestroyed
	}
	buf, err := e.Open()
	if err != nil {
		return "", fmt.Errorf("open enclave: %w", err)
	}
	defer buf.Destroy()
	return string(buf.Bytes()), nil
}
