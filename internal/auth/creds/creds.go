package creds

import (
	"net/http"
	"net/url"
	"strings"
)

// Transport distinguishes plain HTTP requests from WebSocket handshakes.
// The two share extraction logic but differ in which sources are consulted
// and in how the caller treats decode failures.
type Transport string

const (
	TransportHTTP      Transport = "http"
	TransportWebSocket Transport = "websocket"
)

// Source records where a credential was found. It feeds telemetry and the
// per-source policy decisions downstream.
type Source string

const (
	SourceOverride Source = "override"
	SourceHeader   Source = "header"
	SourceCookie   Source = "cookie"
	SourceQuery    Source = "query"
	SourceNone     Source = "none"
)

// Cookie names shared with the rotation side.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
	MirrorCookie  = "__session"
)

// OverrideHeader carries a same-request identity override. It wins over every
// other source so that short-lived in-flight re-authentication messages can
// swap identity without touching cookies.
const OverrideHeader = "X-Session-ID"

// Credential is a raw bearer string and its provenance. Zero value means
// "nothing found".
type Credential struct {
	Raw    string
	Source Source
}

// Found reports whether extraction produced anything.
func (c Credential) Found() bool { return c.Source != SourceNone && c.Raw != "" }

// Request is the transport-neutral view extraction operates on. Both HTTP
// requests and WebSocket handshakes reduce to this shape.
type Request struct {
	Transport  Transport
	Header     http.Header
	Query      url.Values
	RemoteAddr string
}

// FromHTTP adapts an inbound HTTP request.
func FromHTTP(r *http.Request) Request {
	return Request{
		Transport:  TransportHTTP,
		Header:     r.Header,
		Query:      r.URL.Query(),
		RemoteAddr: r.RemoteAddr,
	}
}

// FromWebSocket adapts a WebSocket handshake request. The handshake is an
// HTTP request too, but query-string tokens are only honored here.
func FromWebSocket(r *http.Request) Request {
	return Request{
		Transport:  TransportWebSocket,
		Header:     r.Header,
		Query:      r.URL.Query(),
		RemoteAddr: r.RemoteAddr,
	}
}

// Extract returns the highest-precedence credential the request carries,
// stopping at the first source that yields one:
//
//  1. the override header
//  2. Authorization: Bearer
//  3. the access-token cookie
//  4. WebSocket only: an access_token or token query parameter, then a
//     manually parsed Cookie header for clients that cannot set cookies
//     through the normal jar
//
// A malformed value in one source is skipped, never surfaced.
func Extract(req Request) Credential {
	if v := strings.TrimSpace(req.Header.Get(OverrideHeader)); v != "" {
		return Credential{Raw: v, Source: SourceOverride}
	}

	if v := bearer(req.Header.Get("Authorization")); v != "" {
		return Credential{Raw: v, Source: SourceHeader}
	}

	if v := cookieValue(req.Header, AccessCookie); v != "" {
		return Credential{Raw: v, Source: SourceCookie}
	}

	if req.Transport == TransportWebSocket {
		for _, name := range []string{"access_token", "token"} {
			if v := strings.TrimSpace(req.Query.Get(name)); v != "" {
				return Credential{Raw: v, Source: SourceQuery}
			}
		}
		if v := rawCookieValue(req.Header, AccessCookie); v != "" {
			return Credential{Raw: v, Source: SourceCookie}
		}
	}

	return Credential{Source: SourceNone}
}

// RefreshToken returns the refresh-token cookie value, or "".
func RefreshToken(req Request) string {
	if v := cookieValue(req.Header, RefreshCookie); v != "" {
		return v
	}
	if req.Transport == TransportWebSocket {
		return rawCookieValue(req.Header, RefreshCookie)
	}
	return ""
}

// SessionMirror returns the bare session id a request may carry via the
// mirror cookie or the override header. It is an identity hint, not a
// credential; callers must consult the session store before trusting it.
func SessionMirror(req Request) string {
	if v := strings.TrimSpace(req.Header.Get(OverrideHeader)); v != "" {
		return v
	}
	if v := cookieValue(req.Header, MirrorCookie); v != "" {
		return v
	}
	if req.Transport == TransportWebSocket {
		return rawCookieValue(req.Header, MirrorCookie)
	}
	return ""
}

// bearer pulls the token out of an Authorization header value. Scheme match
// is case-insensitive; anything that is not a two-part Bearer value yields "".
func bearer(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// cookieValue reads one cookie through the standard jar semantics.
func cookieValue(h http.Header, name string) string {
	r := http.Request{Header: h}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// rawCookieValue parses the Cookie header by hand. Some WebSocket clients
// send a hand-built Cookie line the jar parser refuses; a lenient split
// recovers the value anyway.
func rawCookieValue(h http.Header, name string) string {
	for _, line := range h.Values("Cookie") {
		for _, pair := range strings.Split(line, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok {
				continue
			}
			if k == name {
				return strings.Trim(strings.TrimSpace(v), `"`)
			}
		}
	}
	return ""
}
