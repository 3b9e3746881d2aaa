package api

import (
	"context"
	"net/http"
	"time"

	"github.com/7L7K/GesahniV2-sub005/internal/auth/cookies"
	"github.com/7L7K/GesahniV2-sub005/internal/auth/creds"
	"github.com/7L7K/GesahniV2-sub005/internal/auth/identity"
)

type ctxKey int

const resolutionKey ctxKey = iota

// ResolutionFrom returns the identity resolution stashed by Authenticate.
func ResolutionFrom(ctx context.Context) (identity.Resolution, bool) {
	res, ok := ctx.Value(resolutionKey).(identity.Resolution)
	return res, ok
}

// Authenticate resolves identity for every request and stashes the result in
// the context. A silent refresh rewrites the cookie triad on the way through.
// It never blocks a request by itself; pair it with Require for routes that
// need an authenticated principal.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		res := h.resolver.Resolve(ctx, time.Now().UTC(), creds.FromHTTP(r))

		if res.Refresh.Refreshed {
			cookies.Apply(ctx, w, cookies.IssueTriad(
				res.Refresh.AccessToken, res.Refresh.RefreshToken,
				h.codec.AccessTTL(), h.codec.RefreshTTL(), h.cfg.SecureCookies))
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, resolutionKey, res)))
	})
}

// Require rejects requests whose resolution is not Authenticated: 401 for
// rejected or anonymous callers, 503 when the session store is down.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := ResolutionFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		switch res.Outcome {
		case identity.OutcomeAuthenticated:
			next.ServeHTTP(w, r)
		case identity.OutcomeStoreUnavailable:
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", "please retry later")
		default:
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		}
	})
}
