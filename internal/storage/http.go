package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultMaxFetchBytes caps a single provider download.
const DefaultMaxFetchBytes int64 = 512 << 20

// HTTPSource downloads provider output served over HTTP(S). Hosts can be
// given extra headers, typically an API key for provider file endpoints.
type HTTPSource struct {
	client   *http.Client
	headers  map[string]http.Header
	maxBytes int64
}

var _ Fetcher = (*HTTPSource)(nil)

// HTTPSourceOption configures an HTTPSource.
type HTTPSourceOption func(*HTTPSource)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) HTTPSourceOption {
	return func(s *HTTPSource) {
		if c != nil {
			s.client = c
		}
	}
}

// WithHostHeader adds a header sent on every request to host.
func WithHostHeader(host, key, value string) HTTPSourceOption {
	return func(s *HTTPSource) {
		if value == "" {
			return
		}
		h, ok := s.headers[host]
		if !ok {
			h = make(http.Header)
			s.headers[host] = h
		}
		h.Set(key, value)
	}
}

// WithMaxFetchBytes sets the download size limit.
func WithMaxFetchBytes(n int64) HTTPSourceOption {
	return func(s *HTTPSource) {
		s.maxBytes = n
	}
}

// NewHTTPSource creates an HTTPSource.
func NewHTTPSource(opts ...HTTPSourceOption) *HTTPSource {
	s := &HTTPSource{
		client:   &http.Client{Timeout: 5 * time.Minute},
		headers:  make(map[string]http.Header),
		maxBytes: DefaultMaxFetchBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch downloads uri.
func (s *HTTPSource) Fetch(ctx context.Context, uri string) ([]byte, string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, "", fmt.Errorf("parse uri: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	for k, vs := range s.headers[u.Hostname()] {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", u.Redacted(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, "", fmt.Errorf("download %s: %w (status %d)", u.Redacted(), ErrAccessDenied, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, "", fmt.Errorf("download %s: %w", u.Redacted(), ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, "", fmt.Errorf("download %s: unexpected status %d", u.Redacted(), resp.StatusCode)
	}

	data, err := readLimited(resp.Body, s.maxBytes)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", u.Redacted(), err)
	}
	contentType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return data, contentType, nil
}

// SchemeRouter dispatches Fetch to a Fetcher registered for the URI scheme.
type SchemeRouter map[string]Fetcher

var _ Fetcher = SchemeRouter(nil)

// Fetch downloads uri with the fetcher registered for its scheme.
func (r SchemeRouter) Fetch(ctx context.Context, uri string) ([]byte, string, error) {
	scheme, _, ok := strings.Cut(uri, "://")
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, uri)
	}
	f, ok := r[strings.ToLower(scheme)]
	if !ok || f == nil {
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	return f.Fetch(ctx, uri)
}
