package config

import (
	"testing"
)

func newValidViper() map[string]string {
	return map[string]string{
		"token.signing_secret":   "miniprogram-secret",
		"session.signing_secret": "web-session-secret",
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	for key, value := range newValidViper() {
		configViper.Set(key, value)
	}

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != "0.0.0.0:8080" {
		t.Fatalf("unexpected http address %s", cfg.HTTPAddress)
	}
	if cfg.TokenIssuer != "dimsum-miniprogram" || cfg.SessionIssuer != "dimsum-web" {
		t.Fatalf("unexpected issuers %s / %s", cfg.TokenIssuer, cfg.SessionIssuer)
	}
	if cfg.AccessTTLHours != 168 || cfg.RefreshTTLHours != 720 {
		t.Fatalf("unexpected TTLs %d / %d", cfg.AccessTTLHours, cfg.RefreshTTLHours)
	}
	if cfg.SessionCookieName != "app_session" {
		t.Fatalf("unexpected cookie name %s", cfg.SessionCookieName)
	}
}

func TestLoadRequiresSecrets(t *testing.T) {
	for _, missing := range []string{"token.signing_secret", "session.signing_secret"} {
		configViper := NewViper()
		for key, value := range newValidViper() {
			if key == missing {
				continue
			}
			configViper.Set(key, value)
		}
		if _, err := Load(configViper); err == nil {
			t.Fatalf("expected error when %s is missing", missing)
		}
	}
}

func TestLoadRejectsInvalidTTLs(t *testing.T) {
	configViper := NewViper()
	for key, value := range newValidViper() {
		configViper.Set(key, value)
	}
	configViper.Set("token.access_ttl_hours", 0)
	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected error for zero access TTL")
	}

	configViper = NewViper()
	for key, value := range newValidViper() {
		configViper.Set(key, value)
	}
	configViper.Set("token.access_ttl_hours", 720)
	configViper.Set("token.refresh_ttl_hours", 168)
	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected error when refresh TTL is shorter than access TTL")
	}
}
