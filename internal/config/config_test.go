package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("JWT_SECRET", "0123456789abcdef-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.Equal(t, time.Hour, cfg.Billing.PaymentTTL)
	assert.Equal(t, int64(10), cfg.Billing.ReferralPercent)
	assert.Equal(t, AmountRange{Min: 50, Max: 100_000}, cfg.Billing.TopUpRange("XTR"))
	assert.Equal(t, AmountRange{Min: 100, Max: 10_000_000}, cfg.Billing.TopUpRange("USD"))
	assert.Equal(t, "@every 1m", cfg.Scheduler.ExpirePaymentsSpec)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.CryptoPay.Enabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("JWT_SECRET", "0123456789abcdef-secret")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/x")
	t.Setenv("PUBLIC_URL", "https://bots.example.com")
	t.Setenv("CRYPTOPAY_TOKEN", "123:abc")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.Database.URL)
	assert.Equal(t, "https://bots.example.com", cfg.HTTP.PublicURL)
	assert.True(t, cfg.CryptoPay.Enabled())
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("JWT_SECRET", "0123456789abcdef-secret")

	yaml := "billing:\n  referral_percent: 25\n  payment_ttl: 30m\n  stars_topup:\n    min: 10\nlog:\n  level: debug\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "remnabot.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(25), cfg.Billing.ReferralPercent)
	assert.Equal(t, 30*time.Minute, cfg.Billing.PaymentTTL)
	assert.Equal(t, AmountRange{Min: 10, Max: 100_000}, cfg.Billing.StarsTopUp)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingSecret(t *testing.T) {
	chdirTemp(t)
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{URL: "postgres://x"},
			Auth:     AuthConfig{JWTSecret: "0123456789abcdef"},
			Billing: BillingConfig{
				ReferralPercent: 10,
				StarsTopUp:      AmountRange{Min: 1, Max: 10},
				FiatTopUp:       AmountRange{Min: 100, Max: 1000},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, true},
		{"plain http webhook", func(c *Config) { c.HTTP.PublicURL = "http://example.com" }, true},
		{"https webhook", func(c *Config) { c.HTTP.PublicURL = "https://example.com" }, false},
		{"referral over 100", func(c *Config) { c.Billing.ReferralPercent = 101 }, true},
		{"fiat bounds inverted", func(c *Config) { c.Billing.FiatTopUp.Max = 0 }, true},
		{"stars minimum missing", func(c *Config) { c.Billing.StarsTopUp.Min = 0 }, true},
		{"no database", func(c *Config) { c.Database.URL = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
