// Package config loads and validates service configuration from the environment
// and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	HTTPAddr       string `mapstructure:"HTTP_ADDR"`
	GRPCAddr       string `mapstructure:"GRPC_ADDR"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	MigrateOnStart bool   `mapstructure:"MIGRATE_ON_START"`

	// JWTPrivateKey and JWTPublicKey hold PEM text or a path to a PEM file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	JWTPublicKey  string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTKeyID      string `mapstructure:"JWT_KEY_ID"`
	JWTIssuer     string `mapstructure:"JWT_ISSUER"`
	JWTAccessTTL  string `mapstructure:"JWT_ACCESS_TTL"`

	RefreshTokenTTL    string `mapstructure:"REFRESH_TOKEN_TTL"`
	RefreshTokenLength int    `mapstructure:"REFRESH_TOKEN_LENGTH"`
	RefreshTokenHash   string `mapstructure:"REFRESH_TOKEN_HASH"`

	CookieName     string `mapstructure:"REFRESH_COOKIE_NAME"`
	CookieSecure   bool   `mapstructure:"REFRESH_COOKIE_SECURE"`
	CookieSameSite string `mapstructure:"REFRESH_COOKIE_SAMESITE"`
	CookieMaxAge   int    `mapstructure:"REFRESH_COOKIE_MAX_AGE"`

	BcryptCost int `mapstructure:"BCRYPT_COST"`

	CORSAllowedOrigins string  `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RateLimitBurst     int     `mapstructure:"RATE_LIMIT_BURST"`
	RateLimitPerSecond float64 `mapstructure:"RATE_LIMIT_PER_SECOND"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For.
	// Enable only behind a proxy that overwrites the header.
	TrustProxyHeaders bool `mapstructure:"TRUST_PROXY_HEADERS"`

	SweepInterval string `mapstructure:"SWEEP_INTERVAL"`

	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogLevel     string `mapstructure:"LOG_LEVEL"`
	Env          string `mapstructure:"APP_ENV"`
}

var supportedHashes = map[string]struct{}{
	"SHA-256": {},
	"SHA-384": {},
	"SHA-512": {},
}

// Load reads .env (if present), then builds and validates Config from the environment.
// Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("MIGRATE_ON_START", false)
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_KEY_ID", "taskdeck-1")
	v.SetDefault("JWT_ISSUER", "tasks-management")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("REFRESH_TOKEN_TTL", "168h")
	v.SetDefault("REFRESH_TOKEN_LENGTH", 64)
	v.SetDefault("REFRESH_TOKEN_HASH", "SHA-256")
	v.SetDefault("REFRESH_COOKIE_NAME", "refresh_token")
	v.SetDefault("REFRESH_COOKIE_SECURE", true)
	v.SetDefault("REFRESH_COOKIE_SAMESITE", "Strict")
	v.SetDefault("REFRESH_COOKIE_MAX_AGE", 604800)
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_PER_SECOND", 10)
	v.SetDefault("TRUST_PROXY_HEADERS", false)
	v.SetDefault("SWEEP_INTERVAL", "24h")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "development")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	c.RefreshTokenHash = strings.ToUpper(strings.TrimSpace(c.RefreshTokenHash))
	if _, ok := supportedHashes[c.RefreshTokenHash]; !ok {
		return fmt.Errorf("config: unsupported REFRESH_TOKEN_HASH %q", c.RefreshTokenHash)
	}
	if c.RefreshTokenLength < 32 {
		return errors.New("config: REFRESH_TOKEN_LENGTH must be at least 32 bytes")
	}
	switch strings.ToLower(c.CookieSameSite) {
	case "strict", "lax":
	case "none":
		if !c.CookieSecure {
			return errors.New("config: REFRESH_COOKIE_SAMESITE=None requires REFRESH_COOKIE_SECURE=true")
		}
	default:
		return fmt.Errorf("config: unsupported REFRESH_COOKIE_SAMESITE %q", c.CookieSameSite)
	}
	if c.CookieName == "" {
		return errors.New("config: REFRESH_COOKIE_NAME must be set")
	}
	if c.IsProduction() && (c.JWTPrivateKey == "" || c.JWTPublicKey == "") {
		return errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required when APP_ENV=production")
	}
	if (c.JWTPrivateKey == "") != (c.JWTPublicKey == "") {
		return errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set together")
	}
	return nil
}

// IsProduction reports whether APP_ENV selects production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// AccessTTL parses JWTAccessTTL. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses RefreshTokenTTL. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.RefreshTokenTTL, 168*time.Hour)
}

// SweepEvery parses SweepInterval. Returns 24h if unset or invalid.
func (c *Config) SweepEvery() time.Duration {
	return parseDuration(c.SweepInterval, 24*time.Hour)
}

// AllowedOrigins returns the CORS origins from the comma-separated config.
func (c *Config) AllowedOrigins() []string {
	if c == nil || c.CORSAllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.CORSAllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// LoadPEM returns value itself when it already holds PEM text, otherwise reads it as a file path.
func LoadPEM(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	if strings.HasPrefix(value, "-----BEGIN") {
		return value, nil
	}
	data, err := os.ReadFile(value)
	if err != nil {
		return "", fmt.Errorf("config: read key file: %w", err)
	}
	return string(data), nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
