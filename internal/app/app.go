// Package app wires the Gesahni auth runtime: config, logging, the identity
// core, HTTP routes, and the realtime gateway.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/7L7K/GesahniV2-sub005/internal/auth/api"
	"github.com/7L7K/GesahniV2-sub005/internal/auth/identity"
	"github.com/7L7K/GesahniV2-sub005/internal/auth/issuer"
	"github.com/7L7K/GesahniV2-sub005/internal/auth/revocation"
	"github.com/7L7K/GesahniV2-sub005/internal/auth/session"
	"github.com/7L7K/GesahniV2-sub005/internal/auth/token"
	"github.com/7L7K/GesahniV2-sub005/internal/realtime"
	"github.com/7L7K/GesahniV2-sub005/internal/security/anonid"
)

// App owns the wired runtime: the identity core, HTTP server, and gateway.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool

	store session.Store
	auth  *api.Handler
	ws    *realtime.WSGateway
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	tokenCfg, err := token.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	codec, err := token.NewCodec(tokenCfg)
	if err != nil {
		return nil, err
	}

	store := session.New(ctx, log)

	var (
		dbPool    *pgxpool.Pool
		dbEnabled bool
		ledger    revocation.Ledger = revocation.NewMemoryLedger()
	)
	if cfg.DatabaseURL != "" {
		dbPool, err = NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		dbEnabled = true
		ledger = revocation.NewPostgresLedger(dbPool)
		log.Info("revocation.ledger.postgres")
	} else {
		log.Info("revocation.ledger.inmemory")
	}

	anon, err := anonid.New()
	if err != nil {
		return nil, err
	}

	resolver := identity.NewResolver(codec, store, ledger, anon, log)

	var iss issuer.CredentialIssuer
	if static := issuer.NewStaticFromEnv(); static != nil {
		iss = static
		log.Info("issuer.static.enabled")
	}

	authHandler := api.NewHandler(log, api.LoadConfigFromEnv(), codec, store, ledger, resolver, iss, anon)
	ws := realtime.NewWSGateway(log, resolver)

	return &App{
		cfg:       cfg,
		log:       log,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		store:     store,
		auth:      authHandler,
		ws:        ws,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or a
// fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.ws, a.auth)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	go a.cleanupLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if a.dbPool != nil {
		a.dbPool.Close()
	}

	a.log.Info("server.stopped")
	return nil
}

// cleanupLoop sweeps expired session records. A no-op for the Redis backend,
// which expires keys natively.
func (a *App) cleanupLoop(ctx context.Context) {
	every := nonZeroDuration(a.cfg.SessionCleanupEvery, 5*time.Minute)
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := a.store.CleanupExpired(ctx, time.Now().UTC())
			if err != nil {
				a.log.Warn("session.cleanup.fail", "err", err)
				continue
			}
			if n > 0 {
				a.log.Info("session.cleanup", "purged", n)
			}
		}
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
