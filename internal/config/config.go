// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the Postgres DSN backing the session store; empty selects the in-memory store.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTRetiredPublicKeys is a comma-separated list of retired public keys (PEM or file paths) still honored during the rotation grace window.
	JWTRetiredPublicKeys string `mapstructure:"JWT_RETIRED_PUBLIC_KEYS"`
	// JWTRotationGrace is how long retired keys keep verifying tokens (e.g. "24h").
	JWTRotationGrace string `mapstructure:"JWT_ROTATION_GRACE"`
	// JWTIssuer is the iss claim stamped on every token.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim stamped on every token.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h"). Must exceed JWT_ACCESS_TTL.
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// JWTLeeway is the clock-skew tolerance applied when validating exp/nbf (e.g. "30s").
	JWTLeeway string `mapstructure:"JWT_LEEWAY"`
	// BcryptCost is the bcrypt cost factor (4-31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// RateLimitMaxFailures is how many failed logins per identifier within the window trip the limiter.
	RateLimitMaxFailures int `mapstructure:"RATE_LIMIT_MAX_FAILURES"`
	// RateLimitWindow is the sliding window for counting failures (e.g. "15m").
	RateLimitWindow string `mapstructure:"RATE_LIMIT_WINDOW"`
	// RateLimitLockout is the initial lockout once tripped; doubles per consecutive trip. Defaults to the window.
	RateLimitLockout string `mapstructure:"RATE_LIMIT_LOCKOUT"`
	// RevocationCheck makes Authorize consult the session store on every call instead of trusting the token alone.
	RevocationCheck bool `mapstructure:"REVOCATION_CHECK"`
	// StoreTimeout bounds every session-store and credential-lookup call (e.g. "3s").
	StoreTimeout string `mapstructure:"STORE_TIMEOUT"`
	// SessionSweepInterval is how often the worker purges expired sessions (e.g. "1h").
	SessionSweepInterval string `mapstructure:"SESSION_SWEEP_INTERVAL"`
	// ScopePolicy is a Rego policy (inline or file path) overriding the built-in scope rules; empty uses the default.
	ScopePolicy string `mapstructure:"SCOPE_POLICY"`
	// OTLPEndpoint is the OTLP/gRPC collector for auth events (e.g. localhost:4317); empty disables export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_RETIRED_PUBLIC_KEYS", "")
	v.SetDefault("JWT_ROTATION_GRACE", "24h")
	v.SetDefault("JWT_ISSUER", "authcore")
	v.SetDefault("JWT_AUDIENCE", "authcore-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("JWT_LEEWAY", "30s")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("RATE_LIMIT_MAX_FAILURES", 5)
	v.SetDefault("RATE_LIMIT_WINDOW", "15m")
	v.SetDefault("RATE_LIMIT_LOCKOUT", "")
	v.SetDefault("REVOCATION_CHECK", true)
	v.SetDefault("STORE_TIMEOUT", "3s")
	v.SetDefault("SESSION_SWEEP_INTERVAL", "1h")
	v.SetDefault("SCOPE_POLICY", "")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.JWTIssuer == "" || cfg.JWTAudience == "" {
		return nil, errors.New("config: JWT_ISSUER and JWT_AUDIENCE must be set")
	}
	if cfg.AccessTTL() >= cfg.RefreshTTL() {
		return nil, errors.New("config: JWT_ACCESS_TTL must be shorter than JWT_REFRESH_TTL")
	}
	if cfg.RateLimitMaxFailures < 0 {
		return nil, errors.New("config: RATE_LIMIT_MAX_FAILURES must not be negative")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return durationOr(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return durationOr(c.JWTRefreshTTL, 168*time.Hour)
}

// Leeway parses JWTLeeway. Returns 30s if unset or invalid.
func (c *Config) Leeway() time.Duration {
	return durationOr(c.JWTLeeway, 30*time.Second)
}

// RotationGrace parses JWTRotationGrace. Returns 24h if unset or invalid.
func (c *Config) RotationGrace() time.Duration {
	return durationOr(c.JWTRotationGrace, 24*time.Hour)
}

// FailureWindow parses RateLimitWindow. Returns 15m if unset or invalid.
func (c *Config) FailureWindow() time.Duration {
	return durationOr(c.RateLimitWindow, 15*time.Minute)
}

// Lockout parses RateLimitLockout. Returns the failure window if unset or invalid.
func (c *Config) Lockout() time.Duration {
	return durationOr(c.RateLimitLockout, c.FailureWindow())
}

// StoreCallTimeout parses StoreTimeout. Returns 3s if unset or invalid.
func (c *Config) StoreCallTimeout() time.Duration {
	return durationOr(c.StoreTimeout, 3*time.Second)
}

// SweepInterval parses SessionSweepInterval. Returns 1h if unset or invalid.
func (c *Config) SweepInterval() time.Duration {
	return durationOr(c.SessionSweepInterval, time.Hour)
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
