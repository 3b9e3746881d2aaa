// Package issuer defines the upstream credential exchange this service
// consumes. The exchange itself (OAuth or otherwise) happens elsewhere; only
// its verified output crosses this boundary.
package issuer

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"
)

// ErrBadCredentials is returned for any credential the issuer refuses.
// Callers must not distinguish unknown users from wrong passwords.
var ErrBadCredentials = errors.New("bad credentials")

// Grant is the verified output of a credential exchange.
type Grant struct {
	Subject string
	Scopes  []string
	Expiry  time.Time
}

// CredentialIssuer exchanges a username/password pair for a grant.
type CredentialIssuer interface {
	Exchange(ctx context.Context, now time.Time, username, password string) (Grant, error)
}

// StaticIssuer grants a fixed identity to one configured credential pair.
// It exists for development and tests; production wires a real exchange.
type StaticIssuer struct {
	username string
	password string
	ttl      time.Duration
}

// NewStaticFromEnv builds a StaticIssuer from GESAHNI_DEV_USER and
// GESAHNI_DEV_PASSWORD. Returns nil when either is unset.
func NewStaticFromEnv() *StaticIssuer {
	user := strings.TrimSpace(os.Getenv("GESAHNI_DEV_USER"))
	pass := os.Getenv("GESAHNI_DEV_PASSWORD")
	if user == "" || pass == "" {
		return nil
	}
	return &StaticIssuer{username: user, password: pass, ttl: 720 * time.Hour}
}

// NewStatic builds a StaticIssuer with explicit credentials, for tests.
func NewStatic(username, password string, ttl time.Duration) *StaticIssuer {
	return &StaticIssuer{username: username, password: password, ttl: ttl}
}

func (s *StaticIssuer) Exchange(_ context.Context, now time.Time, username, password string) (Grant, error) {
	if username != s.username || password != s.password {
		return Grant{}, ErrBadCredentials
	}
	return Grant{
		Subject: s.username,
		Scopes:  []string{"user"},
		Expiry:  now.Add(s.ttl),
	}, nil
}
