package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/maauso/mediagen/internal/generation"
)

// maxBodySnippet bounds how much of an error body ends up in messages.
const maxBodySnippet = 256

// ClassifyStatus maps a provider HTTP status onto the error taxonomy.
func ClassifyStatus(provider, op string, status int, body string) error {
	kind := KindForStatus(status)
	return generation.Errorf(kind, provider, op, "status %d: %s", status, Snippet(body))
}

// KindForStatus returns the error kind for an HTTP status code.
func KindForStatus(status int) generation.ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return generation.KindAuth
	case status == http.StatusTooManyRequests:
		return generation.KindRateLimited
	case status == http.StatusRequestTimeout || status >= 500:
		return generation.KindTransient
	case status >= 400:
		return generation.KindInvalidRequest
	default:
		return generation.KindInvalidResponse
	}
}

// ClassifyTransport maps an error returned before any response was read.
// Caller cancellation becomes Cancelled; everything else is Transient.
func ClassifyTransport(ctx context.Context, provider, op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *generation.Error
	if errors.As(err, &ge) {
		return err
	}
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return generation.NewError(generation.KindCancelled, provider, op, err)
	}
	return generation.NewError(generation.KindTransient, provider, op, err)
}

// MissingCredentials is the error returned by adapters invoked without keys.
func MissingCredentials(provider, what string) error {
	return generation.NewError(generation.KindAuth, provider, "invoke", fmt.Errorf("missing credentials: %s is not configured", what))
}

// Snippet trims and truncates a response body for error messages.
func Snippet(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > maxBodySnippet {
		return body[:maxBodySnippet] + "..."
	}
	return body
}
