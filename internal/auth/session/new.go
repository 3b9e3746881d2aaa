package session

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// pingTimeout bounds the startup reachability probe.
const pingTimeout = 2 * time.Second

// New picks a backend from the environment.
//
// When GESAHNI_REDIS_URL is set and the server answers a ping within the
// probe window, the Redis store is used. Otherwise the in-process store is
// returned, with a warning when Redis was configured but unreachable. The
// choice is made once at startup; it does not fail the process.
func New(ctx context.Context, log *slog.Logger) Store {
	if log == nil {
		log = slog.Default()
	}

	url := os.Getenv("GESAHNI_REDIS_URL")
	if url == "" {
		log.Info("session: using in-process store")
		return NewMemoryStore()
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Warn("session: invalid GESAHNI_REDIS_URL, falling back to in-process store", "error", err)
		return NewMemoryStore()
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("session: redis unreachable, falling back to in-process store", "error", err)
		_ = client.Close()
		return NewMemoryStore()
	}

	log.Info("session: using redis store", "addr", opts.Addr)
	return NewRedisStore(client, log)
}
