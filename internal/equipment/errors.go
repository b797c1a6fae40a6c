package equipment

import (
	"errors"
	"fmt"
)

// Kind identifies a caller-visible failure.
type Kind string

const (
	InvalidItem      Kind = "INVALID_ITEM"
	NotYours         Kind = "NOT_YOURS"
	InvalidRecipient Kind = "INVALID_RECIPIENT"
	Banned           Kind = "BANNED"
	AlreadyInQueue   Kind = "ALREADY_IN_QUEUE"
	NotInQueue       Kind = "NOT_IN_QUEUE"
	CannotDropOut    Kind = "CANNOT_DROP_OUT"
	NotAllowed       Kind = "NOT_ALLOWED"
	InvalidPhone     Kind = "INVALID_PHONE"
	OtpRequired      Kind = "OTP_REQUIRED"
	OtpExpired       Kind = "OTP_EXPIRED"
	OtpRateLimited   Kind = "OTP_RATE_LIMITED"
	OtpIncorrect     Kind = "OTP_INCORRECT"
)

// Error is returned for every rule the caller broke. Any other error is an
// internal failure.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Retryable reports whether the caller may simply try again, e.g. after
// retyping a passcode.
func (e *Error) Retryable() bool {
	return e.Kind == OtpIncorrect
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
