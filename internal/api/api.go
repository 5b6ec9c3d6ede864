// Package api defines the JSON bodies shared by the HTTP and queue
// transports and their mapping onto the generation core.
package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/mediagen/internal/generation"
)

// ErrInvalidSourceData is returned when source_asset.data is not base64.
var ErrInvalidSourceData = errors.New("api: source_asset.data is not valid base64")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared request validator.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// SourceAsset is an inline input asset for edit requests.
type SourceAsset struct {
	MIMEType string `json:"mime_type" validate:"required"`
	// Data is the base64-encoded asset.
	Data string `json:"data" validate:"required,base64"`
}

// Options mirrors generation.Options on the wire.
type Options struct {
	AspectRatio     string            `json:"aspect_ratio,omitempty" validate:"omitempty,max=16"`
	DurationSeconds int               `json:"duration_seconds,omitempty" validate:"min=0,max=60"`
	Quality         string            `json:"quality,omitempty"`
	Voice           string            `json:"voice,omitempty"`
	LanguageCode    string            `json:"language_code,omitempty"`
	SampleCount     int               `json:"sample_count,omitempty" validate:"min=0,max=8"`
	Format          string            `json:"format,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// GenerationRequest is the request body accepted by every transport.
type GenerationRequest struct {
	Kind           string       `json:"kind" validate:"required,oneof=image video speech"`
	Prompt         string       `json:"prompt" validate:"required"`
	SourceAsset    *SourceAsset `json:"source_asset,omitempty"`
	Options        Options      `json:"options"`
	IdempotencyKey string       `json:"idempotency_key,omitempty" validate:"max=256"`
}

// ToDomain validates the body and converts it into a generation.Request.
func (r GenerationRequest) ToDomain() (generation.Request, error) {
	if err := Validator().Struct(r); err != nil {
		return generation.Request{}, err
	}

	kind, err := generation.ParseKind(r.Kind)
	if err != nil {
		return generation.Request{}, err
	}

	req := generation.Request{
		Kind:   kind,
		Prompt: r.Prompt,
		Options: generation.Options{
			AspectRatio:     r.Options.AspectRatio,
			DurationSeconds: r.Options.DurationSeconds,
			Quality:         r.Options.Quality,
			Voice:           r.Options.Voice,
			LanguageCode:    r.Options.LanguageCode,
			SampleCount:     r.Options.SampleCount,
			Format:          r.Options.Format,
			Extra:           r.Options.Extra,
		},
		IdempotencyKey: strings.TrimSpace(r.IdempotencyKey),
	}

	if r.SourceAsset != nil {
		data, err := base64.StdEncoding.DecodeString(r.SourceAsset.Data)
		if err != nil {
			return generation.Request{}, fmt.Errorf("%w: %w", ErrInvalidSourceData, err)
		}
		req.Source = &generation.SourceAsset{MIMEType: r.SourceAsset.MIMEType, Data: data}
	}

	if err := req.Validate(); err != nil {
		return generation.Request{}, err
	}
	return req, nil
}

// Success is the body returned for a delivered asset.
type Success struct {
	DeliveredURI   string `json:"delivered_uri"`
	DeliveryMethod string `json:"delivery_method"`
	ProviderUsed   string `json:"provider_used"`
	MIMEType       string `json:"mime_type,omitempty"`
}

// Attempt summarizes one provider attempt in a failure body.
type Attempt struct {
	Provider  string `json:"provider"`
	Outcome   string `json:"outcome"`
	ErrorKind string `json:"error_kind,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Failure is the body returned when no asset was delivered.
type Failure struct {
	ErrorKind string    `json:"error_kind"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	SourceURI string    `json:"source_uri,omitempty"`
	Attempts  []Attempt `json:"attempts"`
}

// NewSuccess converts a delivered asset into its wire form.
func NewSuccess(asset generation.DeliveredAsset) Success {
	return Success{
		DeliveredURI:   asset.URI,
		DeliveryMethod: string(asset.Method),
		ProviderUsed:   asset.Provider,
		MIMEType:       asset.MIMEType,
	}
}

// NewFailure converts a generation error into its wire form.
func NewFailure(err error) Failure {
	kind := generation.KindOf(err)
	f := Failure{
		ErrorKind: string(kind),
		Code:      Code(kind),
		Message:   err.Error(),
		Attempts:  Attempts(generation.AttemptsOf(err)),
	}
	var ge *generation.Error
	if errors.As(err, &ge) {
		f.SourceURI = ge.SourceURI
	}
	return f
}

// Attempts converts attempt records into their wire form.
func Attempts(records []generation.AttemptRecord) []Attempt {
	out := make([]Attempt, 0, len(records))
	for _, rec := range records {
		out = append(out, Attempt{
			Provider:  rec.Provider,
			Outcome:   string(rec.Outcome),
			ErrorKind: string(rec.ErrorKind),
			Message:   rec.Message,
		})
	}
	return out
}

// Code returns the stable error code for an error kind.
func Code(kind generation.ErrorKind) string {
	switch kind {
	case generation.KindAuth:
		return "AUTH_ERROR"
	case generation.KindRateLimited:
		return "RATE_LIMITED"
	case generation.KindTransient:
		return "TRANSIENT"
	case generation.KindInvalidResponse:
		return "INVALID_RESPONSE"
	case generation.KindInvalidRequest:
		return "INVALID_REQUEST"
	case generation.KindOperationTimeout:
		return "OPERATION_TIMEOUT"
	case generation.KindDeliveryFailed:
		return "DELIVERY_FAILED"
	case generation.KindAllProvidersExhausted:
		return "ALL_PROVIDERS_EXHAUSTED"
	case generation.KindCancelled:
		return "CANCELLED"
	default:
		return "INTERNAL_ERROR"
	}
}

// StatusClientClosedRequest is reported when the caller went away.
const StatusClientClosedRequest = 499

// HTTPStatus returns the response status for a failed generation.
func HTTPStatus(kind generation.ErrorKind) int {
	switch kind {
	case generation.KindInvalidRequest:
		return http.StatusBadRequest
	case generation.KindCancelled:
		return StatusClientClosedRequest
	case generation.KindOperationTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
