// Package openai adapts the OpenAI Images and Audio APIs to the generation
// adapter contract.
package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/maauso/mediagen/internal/generation"
	"github.com/maauso/mediagen/internal/provider"
)

// Default models.
const (
	DefaultImageModel  = "gpt-image-1"
	DefaultSpeechModel = "gpt-4o-mini-tts"
)

// ClientConfig holds the connection settings shared by the OpenAI adapters.
type ClientConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Extra      []option.RequestOption
}

// NewClient creates an OpenAI client. It returns nil when no API key is
// configured, which the adapters report as an AuthError on invocation.
// SDK-level retries are disabled; retries are owned by the orchestrator.
func NewClient(cfg ClientConfig) *openai.Client {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	opts = append(opts, cfg.Extra...)

	client := openai.NewClient(opts...)
	return &client
}

// classify maps an SDK error onto the error taxonomy.
func classify(ctx context.Context, name, op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		kind := provider.KindForStatus(apiErr.StatusCode)
		switch apiErr.Code {
		case "rate_limit_exceeded":
			kind = generation.KindRateLimited
		case "invalid_api_key", "insufficient_quota":
			// An exhausted billing quota does not recover on retry.
			kind = generation.KindAuth
		}
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return generation.Errorf(kind, name, op, "status %d: %s", apiErr.StatusCode, provider.Snippet(msg))
	}
	return provider.ClassifyTransport(ctx, name, op, err)
}
