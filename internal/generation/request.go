// Package generation contains the media generation core: the request and
// asset types, the error taxonomy, the retry controller, the long-running
// operation poller and the provider fallback orchestrator.
package generation

import (
	"errors"
	"strings"
	"time"
)

// Kind is the type of media being generated.
type Kind string

const (
	// KindImage produces a still image.
	KindImage Kind = "image"
	// KindVideo produces a video clip.
	KindVideo Kind = "video"
	// KindSpeech produces synthesized speech audio.
	KindSpeech Kind = "speech"
)

// IsValid returns true if the kind is one of the supported media kinds.
func (k Kind) IsValid() bool {
	return k == KindImage || k == KindVideo || k == KindSpeech
}

// ParseKind converts a free-form string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", ErrUnknownKind
	}
	return k, nil
}

// Static validation errors for requests.
var (
	// ErrUnknownKind is returned when the request kind is not image, video or speech.
	ErrUnknownKind = errors.New("generation: unknown kind")
	// ErrPromptRequired is returned when the request carries no prompt text.
	ErrPromptRequired = errors.New("generation: prompt is required")
	// ErrEmptySourceAsset is returned when a source asset carries no bytes.
	ErrEmptySourceAsset = errors.New("generation: source asset has no data")
)

// SourceAsset is an input asset for edit or transform operations.
type SourceAsset struct {
	MIMEType string
	Data     []byte
}

// Options holds the provider-facing generation parameters.
// Zero values mean "provider default".
type Options struct {
	AspectRatio     string
	DurationSeconds int
	Quality         string
	Voice           string
	LanguageCode    string
	SampleCount     int
	Format          string
	// Extra carries provider-specific parameters not covered above.
	Extra map[string]string
}

// Request is an immutable generation request. It is created once per caller
// invocation and passed by value to every provider.
type Request struct {
	Kind           Kind
	Prompt         string
	Source         *SourceAsset
	Options        Options
	IdempotencyKey string
}

// Validate checks that the request is well formed.
func (r Request) Validate() error {
	if !r.Kind.IsValid() {
		return ErrUnknownKind
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return ErrPromptRequired
	}
	if r.Source != nil && len(r.Source.Data) == 0 {
		return ErrEmptySourceAsset
	}
	return nil
}

// IsEdit reports whether the request transforms a source asset.
func (r Request) IsEdit() bool {
	return r.Source != nil
}

// RawAsset is the binary output of a provider. Either Data or URI (or both)
// is set. Ownership passes from the adapter to the delivery pipeline.
type RawAsset struct {
	// Data is the inline payload, if the provider returned bytes.
	Data []byte
	// URI is the provider-side location (gs://, s3:// or https://).
	URI string
	// MIMEType is the content type reported by the provider.
	MIMEType string
	// Size is the payload size in bytes, 0 when unknown.
	Size int64
	// Provider is the name of the provider that produced the asset.
	Provider string
	// Public is true when URI can be fetched without credentials.
	Public bool
}

// IsEmpty reports whether the asset has neither inline bytes nor a location.
func (a RawAsset) IsEmpty() bool {
	return len(a.Data) == 0 && strings.TrimSpace(a.URI) == ""
}

// DeliveryMethod describes how a DeliveredAsset was made public.
type DeliveryMethod string

const (
	// DeliveryUploaded means the bytes were re-uploaded to the delivery store.
	DeliveryUploaded DeliveryMethod = "uploaded"
	// DeliveryPublicSource means the provider-side object was made public.
	DeliveryPublicSource DeliveryMethod = "public-source"
	// DeliveryRawLink means the provider's own public URL is returned as-is.
	DeliveryRawLink DeliveryMethod = "raw-link"
)

// DeliveredAsset is the terminal, externally visible result of a generation.
type DeliveredAsset struct {
	URI      string         `json:"uri"`
	Method   DeliveryMethod `json:"method"`
	Provider string         `json:"provider"`
	MIMEType string         `json:"mime_type,omitempty"`
	Size     int64          `json:"size,omitempty"`
}

// Outcome is the result of one provider attempt.
type Outcome string

const (
	// OutcomeSuccess means the provider produced a delivered asset.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailure means the provider failed and fallback continued.
	OutcomeFailure Outcome = "failure"
	// OutcomeSkipped means the provider cannot serve the request and was not called.
	OutcomeSkipped Outcome = "skipped"
)

// AttemptRecord captures one provider attempt for fallback decisions and
// diagnostics. It is never persisted beyond the orchestration call except as
// part of a returned error or job record.
type AttemptRecord struct {
	Provider  string        `json:"provider"`
	Outcome   Outcome       `json:"outcome"`
	ErrorKind ErrorKind     `json:"error_kind,omitempty"`
	Message   string        `json:"message,omitempty"`
	Calls     int           `json:"calls"`
	Duration  time.Duration `json:"duration"`
}
