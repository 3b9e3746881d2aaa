// Package token implements the signed-token codec for Gesahni's auth core.
//
// Access and refresh tokens are JWTs (HS256) carrying the subject, the issuer,
// the token-family id, the backing session id, and the token kind. Encoding and
// decoding are pure functions over the configured secret; no I/O happens here.
//
// Decode failures are classified so callers can pick different recovery paths:
// an expired access token may still be refreshed, a malformed or forged token
// never is. See DecodeError.
package token
