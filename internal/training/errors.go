package training

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds surfaced by every core operation. Callers match them with
// errors.Is and map them to their own failure channel (HTTP status, retry
// policy, UI message).
var (
	// ErrValidation marks malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition marks a state change not permitted from the
	// session's current status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrDuplicateRequest marks a signature request for a period that
	// already has one outstanding.
	ErrDuplicateRequest = errors.New("signature request already outstanding")
	// ErrFrozenSession marks a mutation attempted on a completed or
	// cancelled session.
	ErrFrozenSession = errors.New("session is frozen")
	// ErrNotFound marks a reference to a session or participant that does
	// not exist.
	ErrNotFound = errors.New("not found")
)

// Error carries an error kind plus enough context (ids, field names) for the
// caller to render a meaningful message.
type Error struct {
	Kind   error
	Msg    string
	Fields []string
}

func (e *Error) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Msg, strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is lets errors.Is match the kind.
func (e *Error) Is(target error) bool { return errors.Is(e.Kind, target) }

func validationErr(msg string, fields ...string) *Error {
	return &Error{Kind: ErrValidation, Msg: msg, Fields: fields}
}

func transitionErr(sessionID string, from SessionStatus, to SessionStatus) *Error {
	return &Error{
		Kind: ErrInvalidTransition,
		Msg:  fmt.Sprintf("session %s cannot move from %s to %s", sessionID, from, to),
	}
}

func duplicateErr(sessionID string, period Period) *Error {
	return &Error{
		Kind: ErrDuplicateRequest,
		Msg:  fmt.Sprintf("session %s already has a pending request for %s", sessionID, period),
	}
}

func frozenErr(sessionID string, status SessionStatus) *Error {
	return &Error{
		Kind: ErrFrozenSession,
		Msg:  fmt.Sprintf("session %s is %s", sessionID, status),
	}
}

func notFoundErr(what, id string) *Error {
	return &Error{Kind: ErrNotFound, Msg: fmt.Sprintf("%s %s", what, id)}
}
