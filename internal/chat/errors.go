package chat

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound    Kind = "NOT_FOUND"
	KindTransport   Kind = "TRANSPORT_FAILURE"
	KindMalformed   Kind = "MALFORMED_RESPONSE"
	KindPersistence Kind = "PERSISTENCE_FAILURE"
)

// Error is the typed failure of a chat operation.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("chat: %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("chat: %s: %s: %v", e.Kind, e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func notFound(sessionID string) *Error {
	return &Error{Kind: KindNotFound, Reason: "session " + sessionID + " does not exist"}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound reports whether err is a KindNotFound *Error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
