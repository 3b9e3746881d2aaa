package token

import (
	"os"
	"strings"
	"time"
)

// Config defines runtime configuration for the token codec.
//
// It controls the signing secret, the issuer claim, and the access/refresh
// lifetimes. This struct is intentionally explicit and environment-driven so
// deployments can tune token policy without code changes.
type Config struct {
	// Secret is the HS256 signing key. Required unless Relaxed is set.
	Secret []byte

	// Issuer is the value set in the "iss" claim and enforced on decode.
	Issuer string

	// AccessTTL is the lifetime of access tokens.
	AccessTTL time.Duration

	// RefreshTTL is the lifetime of refresh tokens. It also bounds the
	// session record created alongside the refresh token.
	RefreshTTL time.Duration

	// Relaxed permits missing-secret operation: every request resolves to
	// anonymous instead of the process failing startup. It is only honored
	// when GESAHNI_ENV=dev AND GESAHNI_JWT_OPTIONAL is truthy, never
	// silently.
	Relaxed bool
}

// DefaultConfig returns the default token policy: 15 minute access tokens and
// 30 day refresh tokens.
func DefaultConfig() Config {
	return Config{
		Issuer:     "gesahni",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 30 * 24 * time.Hour,
	}
}

// LoadConfigFromEnv loads token configuration from environment variables.
//
// Required:
//   - GESAHNI_JWT_SECRET (unless relaxed mode applies)
//
// Optional:
//   - GESAHNI_AUTH_ISSUER
//   - GESAHNI_AUTH_ACCESS_TTL
//   - GESAHNI_AUTH_REFRESH_TTL
//   - GESAHNI_ENV + GESAHNI_JWT_OPTIONAL (relaxed mode gate)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("GESAHNI_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("GESAHNI_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTTL = d
	}

	if v := os.Getenv("GESAHNI_AUTH_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTTL = d
	}

	// Access tokens must not outlive the refresh tokens that renew them.
	if cfg.AccessTTL >= cfg.RefreshTTL {
		return Config{}, ErrConfig
	}

	secret := strings.TrimSpace(os.Getenv("GESAHNI_JWT_SECRET"))
	if secret == "" {
		env := strings.TrimSpace(os.Getenv("GESAHNI_ENV"))
		optional := strings.TrimSpace(os.Getenv("GESAHNI_JWT_OPTIONAL"))
		if env == "dev" && (optional == "1" || strings.EqualFold(optional, "true")) {
			cfg.Relaxed = true
			return cfg, nil
		}
		return Config{}, ErrConfig
	}

	cfg.Secret = []byte(secret)
	return cfg, nil
}
