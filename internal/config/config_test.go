package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment does not
// leak into the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "DATA_DIR", "REDIS_URL", "REPROCESS_SECRET", "RECONCILE_SCHEDULE", "TRUST_PROXY",
		"MP_MODE", "MP_API_BASE_URL", "MP_ACCESS_TOKEN_SANDBOX", "MP_ACCESS_TOKEN_PRODUCTION", "MP_TIMEOUT",
		"MP_WEBHOOK_SECRET", "WEBHOOK_LOG_DSN", "WEBHOOK_LOG_SIZE", "SIGNATURE_MAX_AGE",
		"RATE_LIMIT_MAX", "RATE_LIMIT_WINDOW", "IP_ALLOWLIST_ENABLED", "IP_ALLOWLIST_ENFORCE",
		"IP_ALLOWLIST_SANDBOX", "IP_ALLOWLIST_PRODUCTION",
	} {
		t.Setenv(key, "")
	}
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ModeSandbox, cfg.Gateway.Mode)
	assert.Equal(t, 5*time.Minute, cfg.Webhook.MaxSignatureAge)
	assert.Equal(t, 100, cfg.Webhook.RateLimitMax)
	assert.Equal(t, 60*time.Second, cfg.Webhook.RateLimitWindow)
	assert.Equal(t, 100, cfg.Webhook.LogSize)
	assert.False(t, cfg.Allowlist.Enabled)
	assert.False(t, cfg.TrustProxy)
	assert.Contains(t, cfg.Allowlist.SandboxRanges, "127.0.0.0/8")
	assert.NotContains(t, cfg.Allowlist.ProductionRanges, "127.0.0.0/8")
	assert.Equal(t, "data/orders.json", cfg.OrdersPath())
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("MP_MODE", "PRODUCTION")
	t.Setenv("MP_ACCESS_TOKEN_SANDBOX", "sandbox-token")
	t.Setenv("MP_ACCESS_TOKEN_PRODUCTION", "prod-token")
	t.Setenv("SIGNATURE_MAX_AGE", "2m")
	t.Setenv("RATE_LIMIT_MAX", "10")
	t.Setenv("IP_ALLOWLIST_ENABLED", "true")
	t.Setenv("IP_ALLOWLIST_PRODUCTION", "10.0.0.0/8, 192.168.0.0/16")
	t.Setenv("DATA_DIR", "/srv/shop")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ModeProduction, cfg.Gateway.Mode)
	assert.Equal(t, "prod-token", cfg.Gateway.AccessToken())
	assert.Equal(t, 2*time.Minute, cfg.Webhook.MaxSignatureAge)
	assert.Equal(t, 10, cfg.Webhook.RateLimitMax)
	assert.True(t, cfg.Allowlist.Enabled)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.0.0/16"}, cfg.Allowlist.Ranges(ModeProduction))
	assert.Equal(t, "/srv/shop/products.json", cfg.ProductsPath())
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"RATE_LIMIT_MAX":       "lots",
		"SIGNATURE_MAX_AGE":    "5 minutes",
		"IP_ALLOWLIST_ENFORCE": "maybe",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Gateway: GatewayConfig{Mode: ModeSandbox, AccessTokenSandbox: "tok"},
			Webhook: WebhookConfig{Secret: "s", RateLimitMax: 100, RateLimitWindow: time.Minute},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad mode", func(c *Config) { c.Gateway.Mode = "staging" }, "MP_MODE"},
		{"token for other mode only", func(c *Config) { c.Gateway.Mode = ModeProduction }, "access token for production"},
		{"no webhook secret", func(c *Config) { c.Webhook.Secret = "" }, "MP_WEBHOOK_SECRET"},
		{"zero rate limit", func(c *Config) { c.Webhook.RateLimitMax = 0 }, "rate limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
