// Package pollinations adapts the public, keyless Pollinations image
// endpoint to the generation adapter contract.
package pollinations

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/maauso/mediagen/internal/generation"
	"github.com/maauso/mediagen/internal/provider"
)

// ProviderName is the registry name of the Pollinations adapter.
const ProviderName = "pollinations"

// Defaults.
const (
	DefaultBaseURL = "https://image.pollinations.ai"
	DefaultModel   = "flux"

	maxImageBytes = 32 << 20
)

// ImageAdapter generates images through a deterministic public URL. The
// URL is fetched once to verify that an image is actually produced, and is
// returned alongside the bytes so it can be linked directly.
type ImageAdapter struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

var _ generation.Adapter = (*ImageAdapter)(nil)

// Option configures an ImageAdapter.
type Option func(*ImageAdapter)

// WithBaseURL overrides the endpoint.
func WithBaseURL(u string) Option {
	return func(a *ImageAdapter) {
		if u != "" {
			a.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithModel sets the Pollinations model parameter.
func WithModel(m string) Option {
	return func(a *ImageAdapter) {
		if m != "" {
			a.model = m
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *ImageAdapter) {
		if c != nil {
			a.httpClient = c
		}
	}
}

// NewImageAdapter creates an ImageAdapter.
func NewImageAdapter(opts ...Option) *ImageAdapter {
	a := &ImageAdapter{
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Descriptor implements generation.Adapter.
func (a *ImageAdapter) Descriptor() generation.Descriptor {
	return generation.Descriptor{
		Name:         ProviderName,
		Kinds:        []generation.Kind{generation.KindImage},
		PublicOutput: true,
	}
}

// Invoke implements generation.Adapter.
func (a *ImageAdapter) Invoke(ctx context.Context, req generation.Request) (generation.Invocation, error) {
	if req.IsEdit() {
		return generation.Invocation{}, generation.NewError(generation.KindInvalidRequest, ProviderName, "invoke", generation.ErrEditUnsupported)
	}

	imageURL := a.ImageURL(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return generation.Invocation{}, generation.NewError(generation.KindInvalidRequest, ProviderName, "build_url", err)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return generation.Invocation{}, provider.ClassifyTransport(ctx, ProviderName, "fetch_image", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return generation.Invocation{}, provider.ClassifyStatus(ProviderName, "fetch_image", resp.StatusCode, string(body))
	}

	contentType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(contentType, "image/") {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return generation.Invocation{}, generation.Errorf(generation.KindInvalidResponse, ProviderName, "fetch_image",
			"expected an image, got %q: %s", contentType, provider.Snippet(string(body)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return generation.Invocation{}, provider.ClassifyTransport(ctx, ProviderName, "fetch_image", err)
	}
	if len(data) == 0 {
		return generation.Invocation{}, generation.Errorf(generation.KindInvalidResponse, ProviderName, "fetch_image", "empty image body")
	}
	if len(data) > maxImageBytes {
		return generation.Invocation{}, generation.Errorf(generation.KindInvalidResponse, ProviderName, "fetch_image", "image exceeds %d bytes", maxImageBytes)
	}

	return generation.Invocation{Asset: &generation.RawAsset{
		Data:     data,
		URI:      imageURL,
		MIMEType: contentType,
		Size:     int64(len(data)),
		Public:   true,
	}}, nil
}

// Poll implements generation.Adapter. Image generation is synchronous.
func (a *ImageAdapter) Poll(context.Context, string) (generation.PollResult, error) {
	return generation.PollResult{}, generation.NewError(generation.KindInvalidRequest, ProviderName, "poll", generation.ErrPollUnsupported)
}

// ImageURL builds the deterministic image URL for req. The same request
// always yields the same URL.
func (a *ImageAdapter) ImageURL(req generation.Request) string {
	width, height := dimensions(req.Options.AspectRatio)

	q := url.Values{}
	q.Set("width", strconv.Itoa(width))
	q.Set("height", strconv.Itoa(height))
	q.Set("model", a.model)
	q.Set("nologo", "true")
	q.Set("seed", seedFor(req))

	return fmt.Sprintf("%s/prompt/%s?%s", a.baseURL, url.PathEscape(strings.TrimSpace(req.Prompt)), q.Encode())
}

// seedFor returns the explicit seed, or one derived from the idempotency
// key, or from the prompt and aspect ratio when there is no key. A seed is
// always sent so a raw link keeps resolving to the image that was verified.
func seedFor(req generation.Request) string {
	if s := req.Options.Extra["seed"]; s != "" {
		return s
	}
	basis := req.IdempotencyKey
	if basis == "" {
		basis = strings.TrimSpace(req.Prompt) + "\x00" + req.Options.AspectRatio
	}
	sum := sha256.Sum256([]byte(basis))
	return strconv.FormatUint(uint64(binary.BigEndian.Uint32(sum[:4])), 10)
}

// dimensions maps an aspect ratio to pixel dimensions.
func dimensions(aspect string) (int, int) {
	switch strings.TrimSpace(strings.ToLower(aspect)) {
	case "16:9":
		return 1920, 1080
	case "9:16":
		return 1080, 1920
	case "4:5":
		return 1024, 1280
	case "3:2":
		return 1536, 1024
	case "1:1", "square", "":
		return 1024, 1024
	default:
		parts := strings.Split(aspect, ":")
		if len(parts) == 2 {
			a, errA := strconv.Atoi(strings.TrimSpace(parts[0]))
			b, errB := strconv.Atoi(strings.TrimSpace(parts[1]))
			if errA == nil && errB == nil && a > 0 && b > 0 {
				return 1024, 1024 * b / a
			}
		}
		return 1024, 1024
	}
}
