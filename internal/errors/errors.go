// Package errors provides the structured error taxonomy used across the bot:
// every failure is tagged with a kind so callers can distinguish transient
// platform hiccups from fatal credential problems and expected control-flow
// outcomes like an exhausted relay quota.
package errors

import (
	"errors"
	"fmt"
)

// Kind categorizes an error for handling decisions and metrics labels.
type Kind string

const (
	// KindTransient indicates a timeout or 5xx from the platform or the
	// captcha service; the operation is dropped, not retried.
	KindTransient Kind = "transient_network"
	// KindInvalidCredentials is fatal: the process must stop consuming events.
	KindInvalidCredentials Kind = "invalid_credentials"
	// KindRateLimited is an expected relay outcome, not an operator-facing error.
	KindRateLimited Kind = "rate_limited"
	// KindCaptchaUnavailable means the challenge service failed; pending
	// challenge state is cleared and the identity left unchallenged.
	KindCaptchaUnavailable Kind = "captcha_unavailable"
	// KindMalformedEvent marks a feed frame missing expected fields.
	KindMalformedEvent Kind = "malformed_event"
)

// Error is a categorized error with an optional cause and context fields.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds a context field to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func Transient(message string, cause error) *Error {
	return &Error{Kind: KindTransient, Message: message, Cause: cause}
}

func InvalidCredentials(message string, cause error) *Error {
	return &Error{Kind: KindInvalidCredentials, Message: message, Cause: cause}
}

func RateLimited(message string) *Error {
	return &Error{Kind: KindRateLimited, Message: message}
}

func CaptchaUnavailable(message string, cause error) *Error {
	return &Error{Kind: KindCaptchaUnavailable, Message: message, Cause: cause}
}

func MalformedEvent(message string, cause error) *Error {
	return &Error{Kind: KindMalformedEvent, Message: message, Cause: cause}
}

// KindOf reports the kind of err, or "" if err carries no kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err (or anything it wraps) has the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRateLimited reports whether err is the expected quota-exhausted outcome.
func IsRateLimited(err error) bool {
	return IsKind(err, KindRateLimited)
}

// IsFatal reports whether err must halt event consumption.
func IsFatal(err error) bool {
	return IsKind(err, KindInvalidCredentials)
}
