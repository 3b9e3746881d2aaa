package realtime

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Version is the wire protocol version announced in every envelope.
const Version = 1

// Envelope frame types.
const (
	TypeHello  = "hello"
	TypePing   = "ping"
	TypePong   = "pong"
	TypeWhoami = "whoami"
	TypeError  = "error"
)

// Envelope is the single frame shape crossing the socket in either direction.
type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate rejects frames the loop should not even dispatch on.
func (e Envelope) Validate() error {
	if e.V != Version {
		return errors.New("unsupported envelope version")
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing type")
	}
	return nil
}

// HelloPayload is pushed by the server right after accept. It tells the
// client who the handshake resolved to; anonymous connections still get one.
type HelloPayload struct {
	UserID        string `json:"user_id"`
	Authenticated bool   `json:"authenticated"`
}

// ErrorPayload carries a soft per-frame error. The connection stays up.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) Envelope {
	return Envelope{
		V:       Version,
		Type:    typ,
		ID:      ulid.MustNew(ulid.Timestamp(ts), rand.Reader).String(),
		TS:      ts,
		Payload: payload,
	}
}
