// Package anonid derives stable pseudo-identities for unauthenticated
// callers. The id is a keyed one-way hash of the client address: stable
// within a process run, unlinkable across runs, and never an authorization
// grant. It exists for telemetry bucketing and coarse rate-limiting only.
package anonid

import (
	"crypto/rand"
	"encoding/hex"
	"net"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// idLen is the number of hex characters kept after hashing. 16 hex chars is
// 64 bits, plenty for bucketing without inviting use as an identifier.
const idLen = 16

// Deriver hashes client addresses under a per-process random key, so ids
// cannot be correlated across restarts or precomputed offline.
type Deriver struct {
	key []byte
}

// New creates a Deriver with a fresh random key.
func New() (*Deriver, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return &Deriver{key: key}, nil
}

// Derive returns the pseudo-id for a client address. The port is stripped
// first so one client keeps one id across connections; an address without a
// port is hashed as-is. An empty address maps to the fixed "anon_unknown".
func (d *Deriver) Derive(remoteAddr string) string {
	host := strings.TrimSpace(remoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" {
		return "anon_unknown"
	}

	h, err := blake2b.New256(d.key)
	if err != nil {
		// Only reachable with an invalid key size; the constructor fixes it.
		return "anon_unknown"
	}
	h.Write([]byte(host))
	sum := h.Sum(nil)
	return "anon_" + hex.EncodeToString(sum)[:idLen]
}
