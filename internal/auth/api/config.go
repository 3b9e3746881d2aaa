package api

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	// SecureCookies marks the triad Secure; enable behind HTTPS.
	SecureCookies bool
	MaxBodyBytes  int64

	// Per-caller login throttle.
	LoginMax    int
	LoginWindow time.Duration
}

// LoadConfigFromEnv loads API config from environment variables with safe
// defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		SecureCookies: envBool("GESAHNI_COOKIE_SECURE", false),
		MaxBodyBytes:  envInt64("GESAHNI_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
		LoginMax:      envInt("GESAHNI_AUTH_LOGIN_MAX", 10),
		LoginWindow:   envDuration("GESAHNI_AUTH_LOGIN_WINDOW", 5*time.Minute),
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.LoginMax <= 0 {
		cfg.LoginMax = 10
	}
	return cfg
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
