package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/7L7K/GesahniV2-sub005/internal/auth/creds"
	"github.com/7L7K/GesahniV2-sub005/internal/auth/revocation"
	"github.com/7L7K/GesahniV2-sub005/internal/auth/session"
	"github.com/7L7K/GesahniV2-sub005/internal/auth/token"
	"github.com/7L7K/GesahniV2-sub005/internal/security/anonid"
)

// Outcome is the terminal state of a resolution.
type Outcome string

const (
	// OutcomeAuthenticated carries a verified user id.
	OutcomeAuthenticated Outcome = "authenticated"
	// OutcomeAnonymous carries only a pseudo-identity for bucketing.
	OutcomeAnonymous Outcome = "anonymous"
	// OutcomeRejected means the credential was bad and the boundary must 401.
	OutcomeRejected Outcome = "rejected"
	// OutcomeStoreUnavailable is an infrastructure failure, not an auth
	// failure; the boundary answers 503 so the client retries.
	OutcomeStoreUnavailable Outcome = "store_unavailable"
)

// Principal is the per-request identity. Recomputed on every request, never
// persisted.
type Principal struct {
	UserID        string
	Authenticated bool
	Source        creds.Source
}

// RefreshDecision reports whether a silent refresh happened and carries the
// tokens the cookie triad must be rewritten with.
type RefreshDecision struct {
	Refreshed    bool
	AccessToken  string
	RefreshToken string
	SessionID    string
}

// Resolution is what the boundary acts on.
type Resolution struct {
	Outcome   Outcome
	Principal Principal
	Refresh   RefreshDecision
	Reason    string
}

// Resolver composes the leaf components into per-request identity decisions.
// It is safe for concurrent use; resolution holds no locks across the store
// round-trip.
type Resolver struct {
	codec  *token.Codec
	store  session.Store
	ledger revocation.Ledger
	anon   *anonid.Deriver
	log    *slog.Logger
}

// NewResolver wires the resolver. All dependencies are required.
func NewResolver(codec *token.Codec, store session.Store, ledger revocation.Ledger, anon *anonid.Deriver, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{codec: codec, store: store, ledger: ledger, anon: anon, log: log}
}

// Resolve runs the state machine for one request. It never returns an error;
// every failure maps to a terminal outcome.
func (r *Resolver) Resolve(ctx context.Context, now time.Time, req creds.Request) Resolution {
	res := r.resolve(ctx, now, req)
	mResolutions.WithLabelValues(string(res.Outcome), string(req.Transport)).Inc()
	return res
}

func (r *Resolver) resolve(ctx context.Context, now time.Time, req creds.Request) Resolution {
	if r.codec.Relaxed() {
		return r.anonymous(req, "relaxed_mode")
	}

	cred := creds.Extract(req)
	if !cred.Found() {
		// No access credential at all. A refresh token alone still gets the
		// silent refresh path; a bare session mirror gets the store probe.
		if rt := creds.RefreshToken(req); rt != "" {
			return r.silentRefresh(ctx, now, req, rt)
		}
		if mirror := creds.SessionMirror(req); looksLikeSessionID(mirror) {
			return r.probeMirror(ctx, now, req, mirror)
		}
		return r.anonymous(req, "no_credential")
	}

	// An override header may carry a bare session id rather than a token.
	if cred.Source == creds.SourceOverride && looksLikeSessionID(cred.Raw) {
		return r.probeMirror(ctx, now, req, cred.Raw)
	}

	claims, err := r.codec.Decode(cred.Raw, now)
	if err != nil {
		var de *token.DecodeError
		if errors.As(err, &de) {
			mDecodeFailures.WithLabelValues(string(de.Kind)).Inc()
			if de.Kind == token.KindExpired {
				if rt := creds.RefreshToken(req); rt != "" {
					return r.silentRefresh(ctx, now, req, rt)
				}
				return r.rejectOrAnon(req, "access_expired")
			}
			return r.rejectOrAnon(req, string(de.Kind))
		}
		return r.rejectOrAnon(req, "decode_failed")
	}

	if claims.Kind == token.KindRefresh {
		// A refresh token presented in the access position is still a valid
		// refresh credential.
		return r.silentRefresh(ctx, now, req, cred.Raw)
	}

	return Resolution{
		Outcome: OutcomeAuthenticated,
		Principal: Principal{
			UserID:        claims.Subject,
			Authenticated: true,
			Source:        cred.Source,
		},
	}
}

// silentRefresh validates a refresh token against the session record and the
// revocation ledger, then mints a fresh access token.
//
// Family mismatch and a missing record while a refresh token exists are the
// replay-detection path: they reject on every transport and revoke the whole
// family. Store transport failures are the only soft spot, and they degrade
// to StoreUnavailable/Anonymous rather than Rejected.
func (r *Resolver) silentRefresh(ctx context.Context, now time.Time, req creds.Request, rawRefresh string) Resolution {
	claims, err := r.codec.Decode(rawRefresh, now)
	if err != nil {
		var de *token.DecodeError
		if errors.As(err, &de) {
			mDecodeFailures.WithLabelValues(string(de.Kind)).Inc()
			if de.Kind == token.KindExpired {
				return r.rejectOrAnon(req, "refresh_expired")
			}
			return r.rejectOrAnon(req, "refresh_"+string(de.Kind))
		}
		return r.rejectOrAnon(req, "refresh_decode_failed")
	}
	if claims.Kind != token.KindRefresh {
		return r.rejectOrAnon(req, "wrong_token_kind")
	}

	revoked, err := r.ledger.IsRevoked(ctx, claims.FamilyID)
	if err != nil {
		r.log.Warn("identity: revocation ledger unreachable", "error", err)
		return r.degraded(req, "ledger_unavailable")
	}
	if revoked {
		mFamilyMismatch.Inc()
		r.log.Error("identity: refresh attempt on revoked family",
			"family_id", claims.FamilyID, "subject", claims.Subject)
		return r.reject("family_revoked")
	}

	familyID, ok, err := r.store.Get(ctx, now, claims.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrStoreUnavailable) {
			r.log.Warn("identity: session store unreachable during refresh", "error", err)
		}
		return r.degraded(req, "store_unavailable")
	}
	if !ok {
		// A refresh token outliving its session record means the record was
		// deleted (logout) or expired while the token kept circulating.
		mFamilyMismatch.Inc()
		r.log.Error("identity: refresh token without session record, revoking family",
			"family_id", claims.FamilyID, "session_id", claims.SessionID)
		r.revokeFamily(ctx, now, claims.FamilyID)
		return r.reject("session_absent")
	}
	if familyID != claims.FamilyID {
		mFamilyMismatch.Inc()
		r.log.Error("identity: refresh family mismatch, revoking family and session",
			"token_family", claims.FamilyID, "record_family", familyID, "session_id", claims.SessionID)
		r.revokeFamily(ctx, now, claims.FamilyID)
		if _, err := r.store.Delete(ctx, claims.SessionID); err != nil {
			r.log.Warn("identity: failed to delete compromised session", "error", err)
		}
		return r.reject("family_mismatch")
	}

	access, _, err := r.codec.EncodeAccess(claims.Subject, claims.FamilyID, claims.SessionID, now)
	if err != nil {
		r.log.Error("identity: failed to mint access token during refresh", "error", err)
		return r.rejectOrAnon(req, "mint_failed")
	}

	mSilentRefresh.Inc()
	return Resolution{
		Outcome: OutcomeAuthenticated,
		Principal: Principal{
			UserID:        claims.Subject,
			Authenticated: true,
			Source:        creds.SourceCookie,
		},
		Refresh: RefreshDecision{
			Refreshed:    true,
			AccessToken:  access,
			RefreshToken: rawRefresh,
			SessionID:    claims.SessionID,
		},
	}
}

// probeMirror handles a request whose only identity signal is a bare session
// id. The mirror never authenticates on its own; the probe exists to tell a
// dead store apart from a plain anonymous request.
func (r *Resolver) probeMirror(ctx context.Context, now time.Time, req creds.Request, sessionID string) Resolution {
	_, _, err := r.store.Get(ctx, now, sessionID)
	if err != nil {
		return r.degraded(req, "store_unavailable")
	}
	return r.anonymous(req, "mirror_only")
}

func (r *Resolver) anonymous(req creds.Request, reason string) Resolution {
	return Resolution{
		Outcome: OutcomeAnonymous,
		Principal: Principal{
			UserID: r.anon.Derive(req.RemoteAddr),
			Source: creds.SourceNone,
		},
		Reason: reason,
	}
}

func (r *Resolver) reject(reason string) Resolution {
	return Resolution{Outcome: OutcomeRejected, Reason: reason}
}

// rejectOrAnon applies the transport asymmetry: HTTP fails closed, a
// WebSocket handshake downgrades to anonymous so it can complete.
func (r *Resolver) rejectOrAnon(req creds.Request, reason string) Resolution {
	if req.Transport == creds.TransportWebSocket {
		return r.anonymous(req, reason)
	}
	return r.reject(reason)
}

// degraded applies the same asymmetry to infrastructure failures: HTTP gets
// a retryable status, a handshake proceeds anonymously.
func (r *Resolver) degraded(req creds.Request, reason string) Resolution {
	mStoreDegraded.Inc()
	if req.Transport == creds.TransportWebSocket {
		return r.anonymous(req, reason)
	}
	return Resolution{Outcome: OutcomeStoreUnavailable, Reason: reason}
}

func (r *Resolver) revokeFamily(ctx context.Context, now time.Time, familyID string) {
	if err := r.ledger.Revoke(ctx, now, familyID, revocation.ReasonReplay); err != nil {
		r.log.Error("identity: failed to persist family revocation", "family_id", familyID, "error", err)
	}
}

func looksLikeSessionID(s string) bool {
	return strings.HasPrefix(s, "sess_")
}
