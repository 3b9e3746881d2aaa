// Package cookies renders the auth cookie triad.
//
// Three cookies travel together: the access token, the refresh token, and a
// mirror cookie whose value always equals the current access token (kept for
// readers that only understand a single session cookie). They are written or
// cleared as a unit, never partially, so no reader can observe one cookie
// disagreeing with another.
package cookies

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/7L7K/GesahniV2-sub005/internal/auth/creds"
)

// Instruction is a single Set-Cookie header value, precomputed. net/http's
// Cookie type cannot express the Priority attribute, so rendering is manual.
type Instruction struct {
	Name   string
	Value  string
	MaxAge int
	Secure bool
}

// String renders the full Set-Cookie header value. All triad members share
// Path=/, HttpOnly, SameSite=Lax, Priority=High, and no Domain, so two
// instructions differ only in name, value, and Max-Age (and Secure when the
// deployment is HTTPS).
func (i Instruction) String() string {
	var b strings.Builder
	b.WriteString(i.Name)
	b.WriteByte('=')
	b.WriteString(i.Value)
	b.WriteString("; Path=/; Max-Age=")
	b.WriteString(strconv.Itoa(i.MaxAge))
	b.WriteString("; HttpOnly; SameSite=Lax; Priority=High")
	if i.Secure {
		b.WriteString("; Secure")
	}
	return b.String()
}

// IssueTriad returns the three set instructions for a login or a silent
// refresh. The mirror carries the access token and shares its lifetime.
func IssueTriad(accessToken, refreshToken string, accessTTL, refreshTTL time.Duration, secure bool) []Instruction {
	access := int(accessTTL / time.Second)
	refresh := int(refreshTTL / time.Second)
	return []Instruction{
		{Name: creds.AccessCookie, Value: accessToken, MaxAge: access, Secure: secure},
		{Name: creds.RefreshCookie, Value: refreshToken, MaxAge: refresh, Secure: secure},
		{Name: creds.MirrorCookie, Value: accessToken, MaxAge: access, Secure: secure},
	}
}

// ClearTriad returns the three clear instructions for logout. They are
// attribute-identical to the set instructions except for the empty value and
// Max-Age=0.
func ClearTriad(secure bool) []Instruction {
	return []Instruction{
		{Name: creds.AccessCookie, Secure: secure},
		{Name: creds.RefreshCookie, Secure: secure},
		{Name: creds.MirrorCookie, Secure: secure},
	}
}

// Apply attaches the instructions to a response. If the request was cancelled
// the whole batch is abandoned; a partial triad must never be emitted.
func Apply(ctx context.Context, w http.ResponseWriter, instructions []Instruction) {
	if ctx.Err() != nil {
		return
	}
	for _, in := range instructions {
		w.Header().Add("Set-Cookie", in.String())
	}
}
