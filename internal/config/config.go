package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
)

// Config holds all environment-based configuration for sercha-social.
type Config struct {
	// RunMode selects which components run: api, worker or all.
	RunMode string `env:"RUN_MODE" envDefault:"all"`

	Host        string `env:"HOST" envDefault:"0.0.0.0"`
	Port        int    `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT"`

	// DatabaseURL selects PostgreSQL persistence. Empty runs on in-memory stores.
	DatabaseURL    string        `env:"DATABASE_URL"`
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	DBConnIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"1m"`

	// RedisURL moves OAuth state and the scheduler lock to Redis.
	RedisURL string `env:"REDIS_URL"`

	// EncryptionKey is 64 hex characters (AES-256). Required.
	EncryptionKey string `env:"ENCRYPTION_KEY"`
	// JWTSecret signs and verifies caller bearer tokens. Required.
	JWTSecret string `env:"JWT_SECRET"`

	// FrontendURL receives the browser after an OAuth callback.
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	// TrustedProxies lists CIDRs or addresses allowed to set X-Forwarded-For.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	OAuthStateTTL       time.Duration            `env:"OAUTH_STATE_TTL" envDefault:"10m"`
	RefreshPollInterval time.Duration            `env:"REFRESH_POLL_INTERVAL" envDefault:"1m"`
	SchedulerEnabled    bool                     `env:"SCHEDULER_ENABLED" envDefault:"true"`
	ConnectedAtPolicy   domain.ConnectedAtPolicy `env:"CONNECTED_AT_POLICY" envDefault:"preserve"`
	HTTPClientTimeout   time.Duration            `env:"HTTP_CLIENT_TIMEOUT" envDefault:"15s"`

	// OTLPEndpoint enables trace export when set (host:port).
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	YouTube   PlatformCredentials `envPrefix:"YOUTUBE_"`
	Instagram PlatformCredentials `envPrefix:"INSTAGRAM_"`
	X         PlatformCredentials `envPrefix:"X_"`
	TikTok    TikTokCredentials   `envPrefix:"TIKTOK_"`
}

// PlatformCredentials are the OAuth client settings of one platform.
type PlatformCredentials struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURI  string `env:"REDIRECT_URI"`
}

// TikTokCredentials uses TikTok's client_key naming.
type TikTokCredentials struct {
	ClientKey    string `env:"CLIENT_KEY"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURI  string `env:"REDIRECT_URI"`
}

// Configured reports whether the platform can run OAuth flows.
func (c PlatformCredentials) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.RunMode {
	case "api", "worker", "all":
	default:
		return fmt.Errorf("RUN_MODE must be api, worker or all, got %q", c.RunMode)
	}

	if c.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(c.EncryptionKey) != 64 {
		return fmt.Errorf("ENCRYPTION_KEY must be 64 hex characters, got %d", len(c.EncryptionKey))
	}
	if _, err := hex.DecodeString(c.EncryptionKey); err != nil {
		return fmt.Errorf("ENCRYPTION_KEY must be hex encoded")
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if _, err := url.ParseRequestURI(c.FrontendURL); err != nil {
		return fmt.Errorf("FRONTEND_URL is not a valid URL: %w", err)
	}

	if !c.ConnectedAtPolicy.IsValid() {
		return fmt.Errorf("CONNECTED_AT_POLICY must be preserve or reset, got %q", c.ConnectedAtPolicy)
	}

	if c.OAuthStateTTL <= 0 {
		return fmt.Errorf("OAUTH_STATE_TTL must be positive")
	}
	if c.RefreshPollInterval <= 0 {
		return fmt.Errorf("REFRESH_POLL_INTERVAL must be positive")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// EffectiveLogFormat returns LOG_FORMAT, defaulting to json in production
// and text elsewhere.
func (c *Config) EffectiveLogFormat() string {
	if c.LogFormat != "" {
		return strings.ToLower(c.LogFormat)
	}
	if c.IsProduction() {
		return "json"
	}
	return "text"
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
