package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures so the orchestrator can decide between
// retrying, falling back to the next provider and aborting.
type ErrorKind string

const (
	KindAuth                  ErrorKind = "AuthError"
	KindRateLimited           ErrorKind = "RateLimited"
	KindTransient             ErrorKind = "Transient"
	KindInvalidResponse       ErrorKind = "InvalidResponse"
	KindInvalidRequest        ErrorKind = "InvalidRequest"
	KindOperationTimeout      ErrorKind = "OperationTimeout"
	KindDeliveryFailed        ErrorKind = "DeliveryFailed"
	KindAllProvidersExhausted ErrorKind = "AllProvidersExhausted"
	KindCancelled             ErrorKind = "Cancelled"
)

// Sentinels for errors.Is comparisons against a classified *Error.
var (
	ErrAuth                  = errors.New("auth error")
	ErrRateLimited           = errors.New("rate limited")
	ErrTransient             = errors.New("transient error")
	ErrInvalidResponse       = errors.New("invalid response")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrOperationTimeout      = errors.New("operation timeout")
	ErrDeliveryFailed        = errors.New("delivery failed")
	ErrAllProvidersExhausted = errors.New("all providers exhausted")
	ErrCancelled             = errors.New("cancelled")
)

var kindSentinels = map[ErrorKind]error{
	KindAuth:                  ErrAuth,
	KindRateLimited:           ErrRateLimited,
	KindTransient:             ErrTransient,
	KindInvalidResponse:       ErrInvalidResponse,
	KindInvalidRequest:        ErrInvalidRequest,
	KindOperationTimeout:      ErrOperationTimeout,
	KindDeliveryFailed:        ErrDeliveryFailed,
	KindAllProvidersExhausted: ErrAllProvidersExhausted,
	KindCancelled:             ErrCancelled,
}

// Error is a classified generation failure.
type Error struct {
	Kind     ErrorKind
	Provider string
	Op       string
	Err      error
	// SourceURI is the provider-side location of an undeliverable asset.
	SourceURI string
	// Attempts lists every provider attempt made before the failure.
	Attempts []AttemptRecord
}

// NewError builds a classified error.
func NewError(kind ErrorKind, provider, op string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind ErrorKind, provider, op, format string, args ...any) *Error {
	return NewError(kind, provider, op, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// KindOf returns the classification of err. Context errors map to
// Cancelled; unclassified errors are treated as Transient.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindTransient
}

// AttemptsOf returns the attempt records carried by err, if any.
func AttemptsOf(err error) []AttemptRecord {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Attempts
	}
	return nil
}

// cancelled builds the error returned when the caller's context ends.
func cancelled(ctx context.Context, provider, op string) *Error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
	}
	return NewError(KindCancelled, provider, op, cause)
}
