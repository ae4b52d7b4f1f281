package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Mode selects which gateway credentials and IP ranges apply.
type Mode string

const (
	ModeSandbox    Mode = "sandbox"
	ModeProduction Mode = "production"
)

// Default gateway ranges. They rotate; treat as advisory.
var (
	defaultProductionRanges = []string{
		"209.225.49.0/24",
		"216.33.197.0/24",
		"216.33.196.0/24",
		"63.128.82.0/24",
		"63.128.83.0/24",
		"63.128.94.0/24",
	}
	defaultSandboxRanges = append([]string{"127.0.0.0/8", "::1/128"}, defaultProductionRanges...)
)

type GatewayConfig struct {
	Mode                  Mode
	BaseURL               string
	AccessTokenSandbox    string
	AccessTokenProduction string
	Timeout               time.Duration
}

// AccessToken returns the bearer token for the active mode.
func (g GatewayConfig) AccessToken() string {
	if g.Mode == ModeProduction {
		return g.AccessTokenProduction
	}
	return g.AccessTokenSandbox
}

type WebhookConfig struct {
	Secret          string
	MaxSignatureAge time.Duration
	RateLimitMax    int
	RateLimitWindow time.Duration
	LogSize         int
	LogDSN          string
}

type AllowlistConfig struct {
	Enabled          bool
	Enforce          bool
	SandboxRanges    []string
	ProductionRanges []string
}

// Ranges returns the CIDRs for the given mode.
func (a AllowlistConfig) Ranges(mode Mode) []string {
	if mode == ModeProduction {
		return a.ProductionRanges
	}
	return a.SandboxRanges
}

type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

type TelegramConfig struct {
	BotToken string
	APIURL   string
}

type AdminConfig struct {
	Email          string
	TelegramChatID string
}

type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

// Config is the full service configuration.
type Config struct {
	Port              string
	DataDir           string
	RedisURL          string
	ReprocessSecret   string
	ReconcileSchedule string
	// TrustProxy takes the client IP from X-Forwarded-For.
	TrustProxy bool

	Gateway   GatewayConfig
	Webhook   WebhookConfig
	Allowlist AllowlistConfig
	SMTP      SMTPConfig
	Telegram  TelegramConfig
	Admin     AdminConfig
	Telemetry TelemetryConfig
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		DataDir:           getEnv("DATA_DIR", "data"),
		RedisURL:          os.Getenv("REDIS_URL"),
		ReprocessSecret:   os.Getenv("REPROCESS_SECRET"),
		ReconcileSchedule: getEnv("RECONCILE_SCHEDULE", "FREQ=MINUTELY;INTERVAL=15"),
		Gateway: GatewayConfig{
			Mode:                  Mode(strings.ToLower(getEnv("MP_MODE", string(ModeSandbox)))),
			BaseURL:               getEnv("MP_API_BASE_URL", "https://api.mercadopago.com"),
			AccessTokenSandbox:    os.Getenv("MP_ACCESS_TOKEN_SANDBOX"),
			AccessTokenProduction: os.Getenv("MP_ACCESS_TOKEN_PRODUCTION"),
		},
		Webhook: WebhookConfig{
			Secret: os.Getenv("MP_WEBHOOK_SECRET"),
			LogDSN: os.Getenv("WEBHOOK_LOG_DSN"),
		},
		Allowlist: AllowlistConfig{
			SandboxRanges:    getEnvList("IP_ALLOWLIST_SANDBOX", defaultSandboxRanges),
			ProductionRanges: getEnvList("IP_ALLOWLIST_PRODUCTION", defaultProductionRanges),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     os.Getenv("SMTP_PORT"),
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASS"),
			From:     os.Getenv("EMAIL_FROM"),
		},
		Telegram: TelegramConfig{
			BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
			APIURL:   getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		},
		Admin: AdminConfig{
			Email:          os.Getenv("ADMIN_EMAIL"),
			TelegramChatID: os.Getenv("ADMIN_TELEGRAM_CHAT_ID"),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName:  getEnv("SERVICE_NAME", "storefront-payments"),
		},
	}

	var err error
	if cfg.Gateway.Timeout, err = getEnvDuration("MP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.Webhook.MaxSignatureAge, err = getEnvDuration("SIGNATURE_MAX_AGE", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Webhook.RateLimitWindow, err = getEnvDuration("RATE_LIMIT_WINDOW", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.Webhook.RateLimitMax, err = getEnvInt("RATE_LIMIT_MAX", 100); err != nil {
		return nil, err
	}
	if cfg.Webhook.LogSize, err = getEnvInt("WEBHOOK_LOG_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.Allowlist.Enabled, err = getEnvBool("IP_ALLOWLIST_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.Allowlist.Enforce, err = getEnvBool("IP_ALLOWLIST_ENFORCE", false); err != nil {
		return nil, err
	}
	if cfg.TrustProxy, err = getEnvBool("TRUST_PROXY", false); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings the webhook path cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.Gateway.Mode != ModeSandbox && c.Gateway.Mode != ModeProduction {
		errs = append(errs, fmt.Errorf("MP_MODE must be %q or %q, got %q", ModeSandbox, ModeProduction, c.Gateway.Mode))
	}
	if c.Gateway.AccessToken() == "" {
		errs = append(errs, fmt.Errorf("access token for %s mode is not set", c.Gateway.Mode))
	}
	if c.Webhook.Secret == "" {
		errs = append(errs, errors.New("MP_WEBHOOK_SECRET is not set"))
	}
	if c.Webhook.RateLimitMax <= 0 || c.Webhook.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("rate limit must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) OrdersPath() string     { return filepath.Join(c.DataDir, "orders.json") }
func (c *Config) ProductsPath() string   { return filepath.Join(c.DataDir, "products.json") }
func (c *Config) WebhookLogPath() string { return filepath.Join(c.DataDir, "webhook_log.json") }
func (c *Config) RateLimitPath() string  { return filepath.Join(c.DataDir, "rate_limit.json") }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
