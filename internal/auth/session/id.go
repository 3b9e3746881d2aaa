package session

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// idPrefix marks session ids so they are recognizable in logs and cookies.
const idPrefix = "sess_"

// NewID returns a fresh unpredictable session id: a fixed prefix plus a ULID
// drawn from crypto/rand. Collisions with live records are practically
// impossible at this entropy and are not checked.
func NewID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return idPrefix + id.String(), nil
}

// NewFamilyID returns a fresh token-family id, shared by a session record and
// the refresh token issued alongside it.
func NewFamilyID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return "fam_" + id.String(), nil
}
