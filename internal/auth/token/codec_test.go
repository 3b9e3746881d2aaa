package token

import (
	"testing"
	"time"
)

func testCodec(t *testing.T) *Codec {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Secret = []byte("0123456789abcdef0123456789abcdef")
	c, err := NewCodec(cfg)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func TestEncodeDecode_Access(t *testing.T) {
	c := testCodec(t)
	now := time.Now().UTC().Truncate(time.Second)

	raw, exp, err := c.EncodeAccess("user-1", "fam-1", "sess_1", now)
	if err != nil {
		t.Fatalf("EncodeAccess: %v", err)
	}
	if !exp.Equal(now.Add(c.AccessTTL())) {
		t.Fatalf("exp = %v, want now+%v", exp, c.AccessTTL())
	}

	claims, err := c.Decode(raw, now.Add(time.Second))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if claims.Subject != "user-1" || claims.FamilyID != "fam-1" || claims.SessionID != "sess_1" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
	if claims.Kind != KindAccess {
		t.Fatalf("kind = %q, want access", claims.Kind)
	}
	if claims.Issuer != "gesahni" {
		t.Fatalf("issuer = %q", claims.Issuer)
	}
}

func TestDecode_Expired(t *testing.T) {
	c := testCodec(t)
	now := time.Now().UTC()

	raw, _, err := c.EncodeAccess("user-1", "fam-1", "sess_1", now)
	if err != nil {
		t.Fatalf("EncodeAccess: %v", err)
	}

	_, err = c.Decode(raw, now.Add(c.AccessTTL()+time.Minute))
	if !IsExpired(err) {
		t.Fatalf("expected expired decode error, got %v", err)
	}
}

func TestDecode_BadSignature(t *testing.T) {
	c := testCodec(t)
	now := time.Now().UTC()

	raw, _, err := c.EncodeAccess("user-1", "fam-1", "sess_1", now)
	if err != nil {
		t.Fatalf("EncodeAccess: %v", err)
	}

	other := DefaultConfig()
	other.Secret = []byte("another-secret-another-secret-xx")
	oc, err := NewCodec(other)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	_, err = oc.Decode(raw, now)
	de, ok := err.(*DecodeError)
	if !ok || de.Kind != KindBadSignature {
		t.Fatalf("expected bad_signature, got %v", err)
	}
}

func TestDecode_WrongIssuer(t *testing.T) {
	other := DefaultConfig()
	other.Issuer = "someone-else"
	other.Secret = []byte("0123456789abcdef0123456789abcdef")
	oc, err := NewCodec(other)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	now := time.Now().UTC()
	raw, _, err := oc.EncodeAccess("user-1", "fam-1", "sess_1", now)
	if err != nil {
		t.Fatalf("EncodeAccess: %v", err)
	}

	c := testCodec(t)
	_, err = c.Decode(raw, now)
	de, ok := err.(*DecodeError)
	if !ok || de.Kind != KindWrongIssuer {
		t.Fatalf("expected wrong_issuer, got %v", err)
	}
}

func TestDecode_Malformed(t *testing.T) {
	c := testCodec(t)
	now := time.Now().UTC()

	for _, raw := range []string{"", "garbage", "a.b", "a.b.c.d"} {
		_, err := c.Decode(raw, now)
		de, ok := err.(*DecodeError)
		if !ok || de.Kind != KindMalformed {
			t.Fatalf("Decode(%q): expected malformed, got %v", raw, err)
		}
	}
}

func TestRelaxedMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Relaxed = true
	c, err := NewCodec(cfg)
	if err != nil {
		t.Fatalf("NewCodec relaxed: %v", err)
	}
	if !c.Relaxed() {
		t.Fatalf("expected relaxed codec")
	}

	if _, _, err := c.EncodeAccess("u", "f", "s", time.Now()); err == nil {
		t.Fatalf("relaxed Encode must fail")
	}
	if _, err := c.Decode("anything", time.Now()); err == nil {
		t.Fatalf("relaxed Decode must fail")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("GESAHNI_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("GESAHNI_AUTH_ISSUER", "gesahni-test")
	t.Setenv("GESAHNI_AUTH_ACCESS_TTL", "10m")
	t.Setenv("GESAHNI_AUTH_REFRESH_TTL", "240h")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Issuer != "gesahni-test" {
		t.Fatalf("issuer mismatch: %q", cfg.Issuer)
	}
	if cfg.AccessTTL != 10*time.Minute || cfg.RefreshTTL != 240*time.Hour {
		t.Fatalf("ttl mismatch: %v / %v", cfg.AccessTTL, cfg.RefreshTTL)
	}
}

func TestLoadConfigFromEnv_MissingSecret(t *testing.T) {
	t.Setenv("GESAHNI_JWT_SECRET", "")
	t.Setenv("GESAHNI_ENV", "")
	t.Setenv("GESAHNI_JWT_OPTIONAL", "")
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig on missing secret, got %v", err)
	}
}

func TestLoadConfigFromEnv_RelaxedGate(t *testing.T) {
	t.Setenv("GESAHNI_JWT_SECRET", "")
	t.Setenv("GESAHNI_ENV", "dev")
	t.Setenv("GESAHNI_JWT_OPTIONAL", "1")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Relaxed {
		t.Fatalf("expected relaxed config")
	}

	// The flag alone is not enough outside dev.
	t.Setenv("GESAHNI_ENV", "prod")
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig outside dev, got %v", err)
	}
}

func TestLoadConfigFromEnv_AccessMustBeShorter(t *testing.T) {
	t.Setenv("GESAHNI_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("GESAHNI_AUTH_ACCESS_TTL", "48h")
	t.Setenv("GESAHNI_AUTH_REFRESH_TTL", "24h")
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig for access >= refresh, got %v", err)
	}
}
