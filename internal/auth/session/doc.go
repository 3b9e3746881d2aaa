// Package session implements Gesahni's session record store.
//
// A session record maps an opaque session id to the token-family id it was
// issued for, with an absolute expiry. Records back the silent-refresh path:
// a refresh token is only honored while a live record with a matching family
// id exists.
//
// Two interchangeable backends are provided: a Redis-backed store that relies
// on native key TTLs, and an in-process store with manual expiry used as a
// fallback when Redis is not configured or unreachable at startup. Both
// behave identically for Create/Get/Delete; only cleanup cost differs.
package session
