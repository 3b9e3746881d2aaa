package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/7L7K/GesahniV2-sub005/internal/auth/cookies"
	"github.com/7L7K/GesahniV2-sub005/internal/auth/creds"
	"github.com/7L7K/GesahniV2-sub005/internal/auth/identity"
	"github.com/7L7K/GesahniV2-sub005/internal/auth/issuer"
	"github.com/7L7K/GesahniV2-sub005/internal/auth/revocation"
	"github.com/7L7K/GesahniV2-sub005/internal/auth/session"
	"github.com/7L7K/GesahniV2-sub005/internal/auth/token"
	"github.com/7L7K/GesahniV2-sub005/internal/security/anonid"
)

// Handler wires the HTTP auth endpoints to the identity core.
type Handler struct {
	log *slog.Logger
	cfg Config

	codec    *token.Codec
	store    session.Store
	ledger   revocation.Ledger
	resolver *identity.Resolver
	issuer   issuer.CredentialIssuer
	anon     *anonid.Deriver

	loginLimiter *KeyedLimiter
}

// NewHandler constructs the auth Handler. The issuer may be nil, in which
// case login answers 503 and only token/refresh flows work.
func NewHandler(log *slog.Logger, cfg Config, codec *token.Codec, store session.Store, ledger revocation.Ledger, resolver *identity.Resolver, iss issuer.CredentialIssuer, anon *anonid.Deriver) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		log:          log,
		cfg:          cfg,
		codec:        codec,
		store:        store,
		ledger:       ledger,
		resolver:     resolver,
		issuer:       iss,
		anon:         anon,
		loginLimiter: NewKeyedLimiter(cfg.LoginMax, cfg.LoginWindow),
	}
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/v1/auth/login", h.handleLogin)
	mux.HandleFunc("/v1/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/v1/auth/logout", h.handleLogout)
	mux.HandleFunc("/v1/whoami", h.handleWhoami)
}

// ---- handlers ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.issuer == nil {
		writeError(w, http.StatusServiceUnavailable, "login_unavailable", "no credential issuer configured")
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	if !h.loginLimiter.Allow(h.anon.Derive(r.RemoteAddr), now) {
		writeRateLimited(w, h.cfg.LoginWindow)
		return
	}

	grant, err := h.issuer.Exchange(ctx, now, username, req.Password)
	if err != nil {
		if errors.Is(err, issuer.ErrBadCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		h.log.Error("auth.login.exchange.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	}

	familyID, err := session.NewFamilyID(now)
	if err != nil {
		h.log.Error("auth.login.family_id.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	expiresAt := now.Add(h.codec.RefreshTTL())
	if !grant.Expiry.IsZero() && grant.Expiry.Before(expiresAt) {
		expiresAt = grant.Expiry
	}

	sessionID, err := h.store.Create(ctx, now, familyID, expiresAt)
	if err != nil {
		if errors.Is(err, session.ErrStoreUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", "please retry later")
			return
		}
		h.log.Error("auth.login.create_session.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	access, _, err := h.codec.EncodeAccess(grant.Subject, familyID, sessionID, now)
	if err != nil {
		h.log.Error("auth.login.mint_access.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	refresh, _, err := h.codec.EncodeRefresh(grant.Subject, familyID, sessionID, now)
	if err != nil {
		h.log.Error("auth.login.mint_refresh.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	cookies.Apply(ctx, w, cookies.IssueTriad(access, refresh, h.codec.AccessTTL(), h.codec.RefreshTTL(), h.cfg.SecureCookies))
	writeJSON(w, http.StatusOK, loginResponse{UserID: grant.Subject, SessionID: sessionID})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	res := h.resolver.Resolve(ctx, now, creds.FromHTTP(r))

	switch res.Outcome {
	case identity.OutcomeAuthenticated:
		if res.Refresh.Refreshed {
			cookies.Apply(ctx, w, cookies.IssueTriad(
				res.Refresh.AccessToken, res.Refresh.RefreshToken,
				h.codec.AccessTTL(), h.codec.RefreshTTL(), h.cfg.SecureCookies))
		}
		writeJSON(w, http.StatusOK, refreshResponse{UserID: res.Principal.UserID, Refreshed: res.Refresh.Refreshed})
	case identity.OutcomeStoreUnavailable:
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "please retry later")
	default:
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	req := creds.FromHTTP(r)

	// Tear down whatever the request can prove it holds. A logout with no
	// usable tokens still clears the cookies.
	if claims, ok := h.teardownClaims(req, now); ok {
		if _, err := h.store.Delete(ctx, claims.SessionID); err != nil {
			h.log.Warn("auth.logout.delete_session.fail", "err", err)
		}
		if err := h.ledger.Revoke(ctx, now, claims.FamilyID, revocation.ReasonLogout); err != nil {
			h.log.Warn("auth.logout.revoke_family.fail", "err", err)
		}
	} else if mirror := creds.SessionMirror(req); strings.HasPrefix(mirror, "sess_") {
		if _, err := h.store.Delete(ctx, mirror); err != nil {
			h.log.Warn("auth.logout.delete_session.fail", "err", err)
		}
	}

	cookies.Apply(ctx, w, cookies.ClearTriad(h.cfg.SecureCookies))
	w.WriteHeader(http.StatusNoContent)
}

// teardownClaims finds the strongest decodable token the logout request
// carries. The refresh cookie is preferred, but a lone access token still
// names the session and family to invalidate.
func (h *Handler) teardownClaims(req creds.Request, now time.Time) (token.Claims, bool) {
	if raw := creds.RefreshToken(req); raw != "" {
		if claims, err := h.codec.Decode(raw, now); err == nil && claims.Kind == token.KindRefresh {
			return claims, true
		}
	}
	if cred := creds.Extract(req); cred.Found() {
		if claims, err := h.codec.Decode(cred.Raw, now); err == nil {
			return claims, true
		}
	}
	return token.Claims{}, false
}

func (h *Handler) handleWhoami(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	res := h.resolver.Resolve(ctx, now, creds.FromHTTP(r))

	switch res.Outcome {
	case identity.OutcomeAuthenticated:
		if res.Refresh.Refreshed {
			cookies.Apply(ctx, w, cookies.IssueTriad(
				res.Refresh.AccessToken, res.Refresh.RefreshToken,
				h.codec.AccessTTL(), h.codec.RefreshTTL(), h.cfg.SecureCookies))
		}
		writeJSON(w, http.StatusOK, whoamiResponse{
			UserID:        res.Principal.UserID,
			Authenticated: true,
			Source:        string(res.Principal.Source),
		})
	case identity.OutcomeAnonymous:
		writeJSON(w, http.StatusOK, whoamiResponse{
			UserID:        res.Principal.UserID,
			Authenticated: false,
			Source:        string(res.Principal.Source),
		})
	case identity.OutcomeStoreUnavailable:
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "please retry later")
	default:
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
	}
}
