package identity

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/7L7K/GesahniV2-sub005/internal/auth/creds"
	"github.com/7L7K/GesahniV2-sub005/internal/auth/revocation"
	"github.com/7L7K/GesahniV2-sub005/internal/auth/session"
	"github.com/7L7K/GesahniV2-sub005/internal/auth/token"
	"github.com/7L7K/GesahniV2-sub005/internal/security/anonid"
)

func newDeriver(t *testing.T) (*anonid.Deriver, error) {
	t.Helper()
	return anonid.New()
}

type fixture struct {
	resolver *Resolver
	codec    *token.Codec
	store    session.Store
	ledger   revocation.Ledger
}

func newFixture(t *testing.T, store session.Store) *fixture {
	t.Helper()

	cfg := token.DefaultConfig()
	cfg.Secret = []byte("0123456789abcdef0123456789abcdef")
	codec, err := token.NewCodec(cfg)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	if store == nil {
		store = session.NewMemoryStore()
	}
	ledger := revocation.NewMemoryLedger()

	anon, err := newDeriver(t)
	if err != nil {
		t.Fatalf("anonid.New: %v", err)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return &fixture{
		resolver: NewResolver(codec, store, ledger, anon, log),
		codec:    codec,
		store:    store,
		ledger:   ledger,
	}
}

// login simulates issuance: a session record plus a matched token pair.
func (f *fixture) login(t *testing.T, now time.Time, subject string) (access, refresh, sessionID, familyID string) {
	t.Helper()

	familyID = "fam_test_" + subject
	sessionID, err := f.store.Create(context.Background(), now, familyID, now.Add(f.codec.RefreshTTL()))
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}

	access, _, err = f.codec.EncodeAccess(subject, familyID, sessionID, now)
	if err != nil {
		t.Fatalf("EncodeAccess: %v", err)
	}
	refresh, _, err = f.codec.EncodeRefresh(subject, familyID, sessionID, now)
	if err != nil {
		t.Fatalf("EncodeRefresh: %v", err)
	}
	return access, refresh, sessionID, familyID
}

func httpReq(headers map[string]string) creds.Request {
	r := httptest.NewRequest("GET", "/v1/whoami", nil)
	r.RemoteAddr = "203.0.113.7:51234"
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return creds.FromHTTP(r)
}

func wsReq(target string, headers map[string]string) creds.Request {
	r := httptest.NewRequest("GET", target, nil)
	r.RemoteAddr = "203.0.113.7:51234"
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return creds.FromWebSocket(r)
}

func TestResolve_ValidAccessToken(t *testing.T) {
	f := newFixture(t, nil)
	now := time.Now().UTC()
	access, _, _, _ := f.login(t, now, "user-1")

	res := f.resolver.Resolve(context.Background(), now.Add(time.Second),
		httpReq(map[string]string{"Authorization": "Bearer " + access}))

	if res.Outcome != OutcomeAuthenticated {
		t.Fatalf("outcome = %q (%s)", res.Outcome, res.Reason)
	}
	if res.Principal.UserID != "user-1" || !res.Principal.Authenticated {
		t.Fatalf("principal = %+v", res.Principal)
	}
	if res.Principal.Source != creds.SourceHeader {
		t.Fatalf("source = %q", res.Principal.Source)
	}
	if res.Refresh.Refreshed {
		t.Fatalf("no refresh expected")
	}
}

func TestResolve_HeaderBeatsCookie(t *testing.T) {
	f := newFixture(t, nil)
	now := time.Now().UTC()
	headerTok, _, _, _ := f.login(t, now, "header-user")
	cookieTok, _, _, _ := f.login(t, now, "cookie-user")

	res := f.resolver.Resolve(context.Background(), now.Add(time.Second), httpReq(map[string]string{
		"Authorization": "Bearer " + headerTok,
		"Cookie":        "access_token=" + cookieTok,
	}))

	if res.Principal.UserID != "header-user" {
		t.Fatalf("principal = %q, header identity must win", res.Principal.UserID)
	}
}

func TestResolve_NoCredentialIsAnonymous(t *testing.T) {
	f := newFixture(t, nil)

	res := f.resolver.Resolve(context.Background(), time.Now(), httpReq(nil))
	if res.Outcome != OutcomeAnonymous {
		t.Fatalf("outcome = %q", res.Outcome)
	}
	if !strings.HasPrefix(res.Principal.UserID, "anon_") {
		t.Fatalf("pseudo-id = %q", res.Principal.UserID)
	}
	if res.Principal.Authenticated {
		t.Fatalf("anonymous principal marked authenticated")
	}
}

func TestResolve_MalformedToken_TransportAsymmetry(t *testing.T) {
	f := newFixture(t, nil)
	now := time.Now()

	httpRes := f.resolver.Resolve(context.Background(), now,
		httpReq(map[string]string{"Authorization": "Bearer not-a-token"}))
	if httpRes.Outcome != OutcomeRejected {
		t.Fatalf("http outcome = %q, want rejected", httpRes.Outcome)
	}

	wsRes := f.resolver.Resolve(context.Background(), now,
		wsReq("/ws", map[string]string{"Authorization": "Bearer not-a-token"}))
	if wsRes.Outcome != OutcomeAnonymous {
		t.Fatalf("ws outcome = %q, want anonymous", wsRes.Outcome)
	}
}

func TestResolve_BadSignatureRejectedOnHTTP(t *testing.T) {
	f := newFixture(t, nil)
	now := time.Now().UTC()

	forged := token.DefaultConfig()
	forged.Secret = []byte("wrong-secret-wrong-secret-wrong!")
	fc, err := token.NewCodec(forged)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	raw, _, err := fc.EncodeAccess("attacker", "fam_x", "sess_x", now)
	if err != nil {
		t.Fatalf("EncodeAccess: %v", err)
	}

	res := f.resolver.Resolve(context.Background(), now,
		httpReq(map[string]string{"Authorization": "Bearer " + raw}))
	if res.Outcome != OutcomeRejected {
		t.Fatalf("outcome = %q (%s)", res.Outcome, res.Reason)
	}
}

func TestResolve_SilentRefresh(t *testing.T) {
	f := newFixture(t, nil)
	now := time.Now().UTC()
	access, refresh, sessionID, _ := f.login(t, now, "user-1")

	// Twenty minutes later the access token is expired but the refresh+mirror
	// cookies are still around.
	later := now.Add(20 * time.Minute)
	res := f.resolver.Resolve(context.Background(), later, httpReq(map[string]string{
		"Cookie": "access_token=" + access + "; refresh_token=" + refresh + "; __session=" + access,
	}))

	if res.Outcome != OutcomeAuthenticated {
		t.Fatalf("outcome = %q (%s)", res.Outcome, res.Reason)
	}
	if res.Principal.UserID != "user-1" {
		t.Fatalf("principal = %+v", res.Principal)
	}
	if !res.Refresh.Refreshed {
		t.Fatalf("expected a silent refresh")
	}
	if res.Refresh.AccessToken == "" || res.Refresh.AccessToken == access {
		t.Fatalf("expected a fresh access token")
	}
	if res.Refresh.RefreshToken != refresh {
		t.Fatalf("refresh token must carry over unchanged")
	}
	if res.Refresh.SessionID != sessionID {
		t.Fatalf("session id = %q, want %q", res.Refresh.SessionID, sessionID)
	}

	// The minted token must itself authenticate.
	claims, err := f.codec.Decode(res.Refresh.AccessToken, later.Add(time.Second))
	if err != nil {
		t.Fatalf("Decode minted token: %v", err)
	}
	if claims.Subject != "user-1" || claims.Kind != token.KindAccess {
		t.Fatalf("minted claims = %+v", claims)
	}
}

func TestResolve_RefreshOnlyCookies(t *testing.T) {
	f := newFixture(t, nil)
	now := time.Now().UTC()
	access, refresh, _, _ := f.login(t, now, "user-1")

	// Access cookie already dropped by the client; mirror and refresh remain.
	later := now.Add(20 * time.Minute)
	res := f.resolver.Resolve(context.Background(), later, httpReq(map[string]string{
		"Cookie": "refresh_token=" + refresh + "; __session=" + access,
	}))

	if res.Outcome != OutcomeAuthenticated || !res.Refresh.Refreshed {
		t.Fatalf("outcome = %q refreshed=%v (%s)", res.Outcome, res.Refresh.Refreshed, res.Reason)
	}
}

func TestResolve_ExpiredAccessWithoutRefresh(t *testing.T) {
	f := newFixture(t, nil)
	now := time.Now().UTC()
	access, _, _, _ := f.login(t, now, "user-1")
	later := now.Add(20 * time.Minute)

	httpRes := f.resolver.Resolve(context.Background(), later,
		httpReq(map[string]string{"Authorization": "Bearer " + access}))
	if httpRes.Outcome != OutcomeRejected {
		t.Fatalf("http outcome = %q", httpRes.Outcome)
	}

	wsRes := f.resolver.Resolve(context.Background(), later,
		wsReq("/ws", map[string]string{"Authorization": "Bearer " + access}))
	if wsRes.Outcome != OutcomeAnonymous {
		t.Fatalf("ws outcome = %q", wsRes.Outcome)
	}
}

func TestResolve_FamilyMismatchRejectsOnEveryTransport(t *testing.T) {
	f := newFixture(t, nil)
	now := time.Now().UTC()
	_, _, sessionID, _ := f.login(t, now, "user-1")

	// A refresh token forged for the right session but the wrong family.
	refresh, _, err := f.codec.EncodeRefresh("user-1", "fam_stolen", sessionID, now)
	if err != nil {
		t.Fatalf("EncodeRefresh: %v", err)
	}

	later := now.Add(20 * time.Minute)
	for _, req := range []creds.Request{
		httpReq(map[string]string{"Cookie": "refresh_token=" + refresh}),
		wsReq("/ws", map[string]string{"Cookie": "refresh_token=" + refresh}),
	} {
		res := f.resolver.Resolve(context.Background(), later, req)
		if res.Outcome != OutcomeRejected {
			t.Fatalf("%s outcome = %q, mismatch must never fail open", req.Transport, res.Outcome)
		}
	}

	// The family is revoked and the session destroyed.
	revoked, err := f.ledger.IsRevoked(context.Background(), "fam_stolen")
	if err != nil || !revoked {
		t.Fatalf("family not revoked: ok=%v err=%v", revoked, err)
	}
	if _, ok, _ := f.store.Get(context.Background(), later, sessionID); ok {
		t.Fatalf("compromised session still live")
	}
}

func TestResolve_ReplayAfterLogout(t *testing.T) {
	f := newFixture(t, nil)
	now := time.Now().UTC()
	_, refresh, sessionID, familyID := f.login(t, now, "user-1")

	// Logout destroys the record.
	if _, err := f.store.Delete(context.Background(), sessionID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	later := now.Add(time.Minute)
	res := f.resolver.Resolve(context.Background(), later,
		httpReq(map[string]string{"Cookie": "refresh_token=" + refresh}))
	if res.Outcome != OutcomeRejected {
		t.Fatalf("outcome = %q (%s)", res.Outcome, res.Reason)
	}

	// The replay hard-revokes the family, so even a resurrected record would
	// not help.
	revoked, _ := f.ledger.IsRevoked(context.Background(), familyID)
	if !revoked {
		t.Fatalf("family not revoked after replay")
	}

	res = f.resolver.Resolve(context.Background(), later,
		httpReq(map[string]string{"Cookie": "refresh_token=" + refresh}))
	if res.Outcome != OutcomeRejected || res.Reason != "family_revoked" {
		t.Fatalf("second attempt = %q (%s)", res.Outcome, res.Reason)
	}
}

func TestResolve_WebSocketQueryToken(t *testing.T) {
	f := newFixture(t, nil)
	now := time.Now().UTC()
	access, _, _, _ := f.login(t, now, "user-1")

	res := f.resolver.Resolve(context.Background(), now.Add(time.Second),
		wsReq("/ws?access_token="+access, nil))
	if res.Outcome != OutcomeAuthenticated || res.Principal.UserID != "user-1" {
		t.Fatalf("outcome = %q principal = %+v", res.Outcome, res.Principal)
	}
	if res.Principal.Source != creds.SourceQuery {
		t.Fatalf("source = %q", res.Principal.Source)
	}
}

// unavailableStore fails every operation with a transport error.
type unavailableStore struct{}

func (unavailableStore) Create(context.Context, time.Time, string, time.Time) (string, error) {
	return "", session.ErrStoreUnavailable
}
func (unavailableStore) Get(context.Context, time.Time, string) (string, bool, error) {
	return "", false, session.ErrStoreUnavailable
}
func (unavailableStore) Delete(context.Context, string) (bool, error) {
	return false, session.ErrStoreUnavailable
}
func (unavailableStore) CleanupExpired(context.Context, time.Time) (int, error) {
	return 0, session.ErrStoreUnavailable
}

func TestResolve_StoreUnavailableDuringRefresh(t *testing.T) {
	healthy := newFixture(t, nil)
	now := time.Now().UTC()
	_, refresh, _, _ := healthy.login(t, now, "user-1")

	f := newFixture(t, unavailableStore{})
	later := now.Add(20 * time.Minute)

	httpRes := f.resolver.Resolve(context.Background(), later,
		httpReq(map[string]string{"Cookie": "refresh_token=" + refresh}))
	if httpRes.Outcome != OutcomeStoreUnavailable {
		t.Fatalf("http outcome = %q, want store_unavailable", httpRes.Outcome)
	}

	wsRes := f.resolver.Resolve(context.Background(), later,
		wsReq("/ws", map[string]string{"Cookie": "refresh_token=" + refresh}))
	if wsRes.Outcome != OutcomeAnonymous {
		t.Fatalf("ws outcome = %q, want anonymous", wsRes.Outcome)
	}
}

func TestResolve_HeaderAuthSurvivesDeadStore(t *testing.T) {
	healthy := newFixture(t, nil)
	now := time.Now().UTC()
	access, _, _, _ := healthy.login(t, now, "user-1")

	f := newFixture(t, unavailableStore{})
	res := f.resolver.Resolve(context.Background(), now.Add(time.Second),
		httpReq(map[string]string{"Authorization": "Bearer " + access}))
	if res.Outcome != OutcomeAuthenticated {
		t.Fatalf("outcome = %q, header auth must not depend on the store", res.Outcome)
	}
}

func TestResolve_MirrorOnly(t *testing.T) {
	f := newFixture(t, nil)
	res := f.resolver.Resolve(context.Background(), time.Now(),
		httpReq(map[string]string{"X-Session-ID": "sess_mirror_only"}))
	if res.Outcome != OutcomeAnonymous {
		t.Fatalf("outcome = %q, a bare mirror id must not authenticate", res.Outcome)
	}

	dead := newFixture(t, unavailableStore{})
	res = dead.resolver.Resolve(context.Background(), time.Now(),
		httpReq(map[string]string{"X-Session-ID": "sess_mirror_only"}))
	if res.Outcome != OutcomeStoreUnavailable {
		t.Fatalf("outcome = %q, want store_unavailable", res.Outcome)
	}

	wsRes := dead.resolver.Resolve(context.Background(), time.Now(),
		wsReq("/ws", map[string]string{"X-Session-ID": "sess_mirror_only"}))
	if wsRes.Outcome != OutcomeAnonymous {
		t.Fatalf("ws outcome = %q, want anonymous", wsRes.Outcome)
	}
}

func TestResolve_RelaxedCodecIsAlwaysAnonymous(t *testing.T) {
	cfg := token.DefaultConfig()
	cfg.Relaxed = true
	codec, err := token.NewCodec(cfg)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	anon, err := newDeriver(t)
	if err != nil {
		t.Fatalf("anonid.New: %v", err)
	}
	r := NewResolver(codec, session.NewMemoryStore(), revocation.NewMemoryLedger(), anon, nil)

	res := r.Resolve(context.Background(), time.Now(),
		httpReq(map[string]string{"Authorization": "Bearer whatever"}))
	if res.Outcome != OutcomeAnonymous {
		t.Fatalf("outcome = %q, relaxed mode must not reject", res.Outcome)
	}
}

func TestResolve_AnonymousIDStablePerAddress(t *testing.T) {
	f := newFixture(t, nil)
	a := f.resolver.Resolve(context.Background(), time.Now(), httpReq(nil))
	b := f.resolver.Resolve(context.Background(), time.Now(), httpReq(nil))
	if a.Principal.UserID != b.Principal.UserID {
		t.Fatalf("pseudo-id not stable: %q vs %q", a.Principal.UserID, b.Principal.UserID)
	}
}
