// Package identity turns raw request credentials into a resolved principal.
//
// The resolver composes credential extraction, token decoding, the session
// record store, and the revocation ledger into one decision per request:
// Authenticated, Anonymous, Rejected, or StoreUnavailable. HTTP traffic fails
// closed on decode errors; WebSocket handshakes fail open to anonymous so a
// bad cookie cannot kill the handshake. The one path that never fails open on
// either transport is refresh-family mismatch, which is treated as token
// theft.
package identity
