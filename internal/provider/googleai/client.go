// Package googleai adapts Google's generative media models (Imagen, Gemini
// image and Veo) to the generation adapter contract.
package googleai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/maauso/mediagen/internal/generation"
	"github.com/maauso/mediagen/internal/provider"
)

// Default model identifiers.
const (
	DefaultImagenModel      = "imagen-4.0-generate-001"
	DefaultGeminiImageModel = "gemini-2.5-flash-image"
	DefaultVeoModel         = "veo-3.0-generate-001"
)

// ClientConfig selects the Gemini API (API key) or Vertex AI (project and
// location, with application default credentials) backend.
type ClientConfig struct {
	APIKey     string
	Project    string
	Location   string
	BaseURL    string
	HTTPClient *http.Client
}

// Configured reports whether enough credentials are present to build a client.
func (c ClientConfig) Configured() bool {
	return c.APIKey != "" || c.Project != ""
}

// NewClient builds a genai client. It returns nil and no error when no
// credentials are configured; adapters built on a nil client fail every
// invocation with AuthError so fallback can proceed.
func NewClient(ctx context.Context, cfg ClientConfig) (*genai.Client, error) {
	if !cfg.Configured() {
		return nil, nil
	}

	config := &genai.ClientConfig{
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.Project != "" {
		config.Backend = genai.BackendVertexAI
		config.Project = cfg.Project
		config.Location = cfg.Location
		if config.Location == "" {
			config.Location = "us-central1"
		}
	} else {
		config.Backend = genai.BackendGeminiAPI
		config.APIKey = cfg.APIKey
	}
	if cfg.BaseURL != "" {
		config.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return client, nil
}

// classify maps genai SDK errors onto the error taxonomy.
func classify(ctx context.Context, name, op string, err error) error {
	if err == nil {
		return nil
	}
	if code, status, msg, ok := apiError(err); ok {
		kind := provider.KindForStatus(code)
		switch strings.ToUpper(status) {
		case "UNAUTHENTICATED", "PERMISSION_DENIED":
			kind = generation.KindAuth
		case "RESOURCE_EXHAUSTED":
			kind = generation.KindRateLimited
		case "UNAVAILABLE", "DEADLINE_EXCEEDED", "INTERNAL":
			kind = generation.KindTransient
		}
		// Gemini API reports a bad key as 400 INVALID_ARGUMENT.
		if kind == generation.KindInvalidRequest && strings.Contains(strings.ToLower(msg), "api key") {
			kind = generation.KindAuth
		}
		return generation.NewError(kind, name, op, err)
	}
	return provider.ClassifyTransport(ctx, name, op, err)
}

func apiError(err error) (code int, status, message string, ok bool) {
	var valueErr genai.APIError
	if errors.As(err, &valueErr) {
		return valueErr.Code, valueErr.Status, valueErr.Message, true
	}
	var ptrErr *genai.APIError
	if errors.As(err, &ptrErr) && ptrErr != nil {
		return ptrErr.Code, ptrErr.Status, ptrErr.Message, true
	}
	return 0, "", "", false
}

// sampleCount clamps the requested sample count to the 1..4 range the
// models accept.
func sampleCount(n int) int32 {
	switch {
	case n < 1:
		return 1
	case n > 4:
		return 4
	default:
		return int32(n)
	}
}
