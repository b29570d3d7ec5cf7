package session

import (
	"errors"
	"testing"
	"time"
)

func TestCredentialsRoundTrip(t *testing.T) {
	creds := NewCredentials("user@example.com", "secret-pw", "api-key", testSecret)

	pw, err := creds.Password()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pw != "secret-pw" {
		t.Errorf("unexpected password: %q", pw)
	}

	key, err := creds.APIKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "api-key" {
		t.Errorf("unexpected api key: %q", key)
	}
}

func TestCredentialsReusable(t *testing.T) {
	creds := NewCredentials("u", "pw", "key", testSecret)

	// The TOTP path opens the secret enclave once per code; the MFA retry
	// depends on a second open succeeding.
	if _, err := creds.TOTPCode(time.Now()); err != nil {
		t.Fatalf("first code: %v", err)
	}
	if _, err := creds.TOTPCode(time.Now()); err != nil {
		t.Fatalf("second code: %v", err)
	}
}

func TestTOTPCodeWindows(t *testing.T) {
	creds := NewCredentials("u", "pw", "key", testSecret)

	base := time.Unix(1_700_000_000, 0)
	c1, err := creds.TOTPCode(base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c2, err := creds.TOTPCode(base.Add(30 * time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(c1) != 6 {
		t.Errorf("expected 6-digit code, got %q", c1)
	}
	if c1 == c2 {
		t.Error("codes from different windows should differ")
	}

	same, err := creds.TOTPCode(base.Add(time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if same != c1 {
		t.Error("codes within one window should match")
	}
}

func TestNoMFAConfigured(t *testing.T) {
	creds := NewCredentials("u", "pw", "key", "")

	if creds.HasMFA() {
		t.Error("expected HasMFA false")
	}
	if _, err := creds.TOTPCode(time.Now()); err == nil {
		t.Error("expected an error without a secret")
	}
}

func TestDestroyedCredentials(t *testing.T) {
	creds := NewCredentials("u", "pw", "key", testSecret)
	creds.Destroy()

	if _, err := creds.Password(); !errors.Is(err, ErrCredentialsDestroyed) {
		t.Errorf("expected ErrCredentialsDestroyed, got %v", err)
	}
	if _, err := creds.APIKey(); !errors.Is(err, ErrCredentialsDestroyed) {
		t.Errorf("expected ErrCredentialsDestroyed, got %v", err)
	}
}
