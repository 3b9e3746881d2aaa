package token

import (
	"errors"
	"fmt"
)

// ErrConfig is returned for invalid codec configuration.
var ErrConfig = errors.New("invalid token config")

// ErrorKind classifies why a token failed to decode.
type ErrorKind string

const (
	// KindExpired means signature and claims were fine but the token is past
	// its expiry. Recoverable via silent refresh.
	KindExpired ErrorKind = "expired"

	// KindMalformed means the input is not a well-formed token or its claims
	// are structurally invalid. Never recoverable.
	KindMalformed ErrorKind = "malformed"

	// KindBadSignature means the signature does not verify under the
	// configured secret. Never recoverable.
	KindBadSignature ErrorKind = "bad_signature"

	// KindWrongIssuer means the token was signed for a different issuer.
	// Never recoverable.
	KindWrongIssuer ErrorKind = "wrong_issuer"
)

// DecodeError reports a classified decode failure.
type DecodeError struct {
	Kind ErrorKind
	err  error
}

func (e *DecodeError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("token decode failed: %s", e.Kind)
	}
	return fmt.Sprintf("token decode failed: %s: %v", e.Kind, e.err)
}

func (e *DecodeError) Unwrap() error { return e.err }

// IsExpired reports whether err is a DecodeError of kind KindExpired.
func IsExpired(err error) bool {
	var de *DecodeError
	return errors.As(err, &de) && de.Kind == KindExpired
}
