// Package apperr defines the closed set of error kinds surfaced by the
// service. Domain packages attach a Kind to their sentinel and typed errors;
// the HTTP layer maps kinds to status codes.
package apperr

import (
	"github.com/go-faster/errors"
)

// Kind classifies a failure for callers.
type Kind string

const (
	KindInternal   Kind = "Internal"
	KindNotFound   Kind = "NotFound"
	KindValidation Kind = "Validation"
	// KindAuthorization covers role and ownership mismatches.
	KindAuthorization Kind = "Authorization"
	// KindConflict covers state conflicts: coupon windows, illegal
	// transitions, duplicate assignments.
	KindConflict Kind = "Conflict"
	// KindExternal is a failure of an external collaborator such as the
	// payment gateway.
	KindExternal Kind = "ExternalServiceFailure"
)

// Kinded is implemented by errors that carry a Kind.
type Kinded interface {
	error
	Kind() Kind
}

// Error is a message with a kind. Use New for sentinels.
type Error struct {
	kind Kind
	msg  string
}

// New returns a sentinel error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind returns the error kind.
func (e *Error) Kind() Kind { return e.kind }

// KindOf returns the kind of the first Kinded error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// Message returns the message of the first Kinded error in err's chain.
// Internal errors yield a generic message so that driver or network
// details never leak to clients.
func Message(err error) string {
	var k Kinded
	if errors.As(err, &k) {
		return k.Error()
	}
	return "internal server error"
}
