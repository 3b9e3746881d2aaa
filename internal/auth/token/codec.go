package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind distinguishes access from refresh tokens.
type Kind string

const (
	// KindAccess is a short-lived bearer token.
	KindAccess Kind = "access"
	// KindRefresh is a long-lived token used only to mint new access tokens.
	KindRefresh Kind = "refresh"
)

// Claims is the identity envelope carried inside every signed token.
type Claims struct {
	Subject   string
	FamilyID  string
	SessionID string
	Kind      Kind
	IssuedAt  time.Time
	ExpiresAt time.Time
	Issuer    string
}

type wireClaims struct {
	FamilyID  string `json:"fid,omitempty"`
	SessionID string `json:"sid,omitempty"`
	Kind      string `json:"kind"`
	jwt.RegisteredClaims
}

// Codec encodes and decodes signed tokens. It holds no mutable state and is
// safe for concurrent use.
type Codec struct {
	cfg Config
}

// NewCodec validates cfg and constructs a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.Issuer == "" || cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, ErrConfig
	}
	if len(cfg.Secret) == 0 && !cfg.Relaxed {
		return nil, ErrConfig
	}
	return &Codec{cfg: cfg}, nil
}

// Relaxed reports whether the codec runs without a signing secret.
// In that mode Encode fails and callers must treat all traffic as anonymous.
func (c *Codec) Relaxed() bool { return len(c.cfg.Secret) == 0 }

// AccessTTL returns the configured access-token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.cfg.AccessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.cfg.RefreshTTL }

// EncodeAccess mints an access token for subject bound to the given family
// and session.
func (c *Codec) EncodeAccess(subject, familyID, sessionID string, now time.Time) (string, time.Time, error) {
	exp := now.Add(c.cfg.AccessTTL)
	s, err := c.encode(subject, familyID, sessionID, KindAccess, now, exp)
	return s, exp, err
}

// EncodeRefresh mints a refresh token for subject bound to the given family
// and session.
func (c *Codec) EncodeRefresh(subject, familyID, sessionID string, now time.Time) (string, time.Time, error) {
	exp := now.Add(c.cfg.RefreshTTL)
	s, err := c.encode(subject, familyID, sessionID, KindRefresh, now, exp)
	return s, exp, err
}

func (c *Codec) encode(subject, familyID, sessionID string, kind Kind, now, exp time.Time) (string, error) {
	if c.Relaxed() {
		return "", ErrConfig
	}
	if subject == "" || familyID == "" || sessionID == "" {
		return "", ErrConfig
	}

	wc := wireClaims{
		FamilyID:  familyID,
		SessionID: sessionID,
		Kind:      string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, wc).SignedString(c.cfg.Secret)
}

// Decode verifies raw against the configured secret and issuer at time now.
//
// On failure it returns a *DecodeError whose Kind distinguishes expired from
// malformed, bad-signature, and wrong-issuer tokens. Backend library errors
// never leak upward unclassified.
func (c *Codec) Decode(raw string, now time.Time) (Claims, error) {
	if c.Relaxed() {
		// Without a secret nothing can be verified; treat every token as
		// unparsable so callers fall through to anonymous handling.
		return Claims{}, &DecodeError{Kind: KindMalformed, err: ErrConfig}
	}

	var wc wireClaims
	_, err := jwt.ParseWithClaims(raw, &wc,
		func(t *jwt.Token) (any, error) { return c.cfg.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.cfg.Issuer),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return Claims{}, classify(err)
	}

	kind := Kind(wc.Kind)
	if kind != KindAccess && kind != KindRefresh {
		return Claims{}, &DecodeError{Kind: KindMalformed, err: errors.New("unknown token kind")}
	}
	if wc.Subject == "" || wc.FamilyID == "" || wc.SessionID == "" {
		return Claims{}, &DecodeError{Kind: KindMalformed, err: errors.New("missing identity claims")}
	}

	claims := Claims{
		Subject:   wc.Subject,
		FamilyID:  wc.FamilyID,
		SessionID: wc.SessionID,
		Kind:      kind,
		Issuer:    wc.Issuer,
	}
	if wc.IssuedAt != nil {
		claims.IssuedAt = wc.IssuedAt.Time
	}
	if wc.ExpiresAt != nil {
		claims.ExpiresAt = wc.ExpiresAt.Time
	}
	return claims, nil
}

func classify(err error) *DecodeError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &DecodeError{Kind: KindExpired, err: err}
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return &DecodeError{Kind: KindWrongIssuer, err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return &DecodeError{Kind: KindBadSignature, err: err}
	default:
		return &DecodeError{Kind: KindMalformed, err: err}
	}
}
