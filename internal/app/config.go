package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// DatabaseURL enables the durable revocation ledger. Empty keeps the
	// in-process ledger.
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true, /readyz returns 503 unless the database is configured and
	// reachable.
	ReadinessRequireDB bool

	// SessionCleanupEvery drives the in-process store's expiry sweep.
	SessionCleanupEvery time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("GESAHNI_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("GESAHNI_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("GESAHNI_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("GESAHNI_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("GESAHNI_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("GESAHNI_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("GESAHNI_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("GESAHNI_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("GESAHNI_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("GESAHNI_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("GESAHNI_READINESS_REQUIRE_DB", false),

		SessionCleanupEvery: EnvDuration("GESAHNI_SESSION_CLEANUP_EVERY", 5*time.Minute),
	}
}
