package pollinations

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediagen/internal/generation"
)

var jpegBytes = []byte("\xff\xd8\xff\xe0fake-jpeg")

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestImageAdapter_Descriptor(t *testing.T) {
	d := NewImageAdapter().Descriptor()

	assert.Equal(t, ProviderName, d.Name)
	assert.True(t, d.PublicOutput)
	assert.False(t, d.SupportsEdit)
	assert.False(t, d.RequiresCredentials)
	assert.True(t, d.Supports(generation.KindImage))
	assert.False(t, d.Supports(generation.KindVideo))
}

func TestImageAdapter_ImageURL(t *testing.T) {
	a := NewImageAdapter()
	req := generation.Request{
		Kind:           generation.KindImage,
		Prompt:         "a red fox / in snow",
		Options:        generation.Options{AspectRatio: "16:9"},
		IdempotencyKey: "req-1",
	}

	raw := a.ImageURL(req)
	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "image.pollinations.ai", u.Host)
	assert.Equal(t, "/prompt/a red fox / in snow", u.Path)
	assert.Contains(t, u.RawPath, "%2F")
	assert.Equal(t, "1920", u.Query().Get("width"))
	assert.Equal(t, "1080", u.Query().Get("height"))
	assert.Equal(t, "true", u.Query().Get("nologo"))
	assert.NotEmpty(t, u.Query().Get("seed"))
	assert.Equal(t, raw, a.ImageURL(req), "url must be deterministic")
}

func TestImageAdapter_ImageURLSeedWithoutIdempotencyKey(t *testing.T) {
	a := NewImageAdapter()
	req := generation.Request{Kind: generation.KindImage, Prompt: "a lighthouse"}

	u, err := url.Parse(a.ImageURL(req))
	require.NoError(t, err)
	seed := u.Query().Get("seed")
	require.NotEmpty(t, seed)

	again, err := url.Parse(a.ImageURL(req))
	require.NoError(t, err)
	assert.Equal(t, seed, again.Query().Get("seed"))

	req.Prompt = "a different lighthouse"
	other, err := url.Parse(a.ImageURL(req))
	require.NoError(t, err)
	assert.NotEqual(t, seed, other.Query().Get("seed"))

	req.Options.Extra = map[string]string{"seed": "42"}
	explicit, err := url.Parse(a.ImageURL(req))
	require.NoError(t, err)
	assert.Equal(t, "42", explicit.Query().Get("seed"))
}

func TestImageAdapter_InvokeReturnsPublicAsset(t *testing.T) {
	var gotPath string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(jpegBytes)
	})

	a := NewImageAdapter(WithBaseURL(srv.URL))
	inv, err := a.Invoke(context.Background(), generation.Request{Kind: generation.KindImage, Prompt: "sunset"})

	require.NoError(t, err)
	require.NotNil(t, inv.Asset)
	assert.Equal(t, "/prompt/sunset", gotPath)
	assert.Equal(t, jpegBytes, inv.Asset.Data)
	assert.True(t, inv.Asset.Public)
	assert.True(t, strings.HasPrefix(inv.Asset.URI, srv.URL+"/prompt/sunset?"))
	assert.Equal(t, "image/jpeg", inv.Asset.MIMEType)
}

func TestImageAdapter_RejectsEdit(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })

	a := NewImageAdapter(WithBaseURL(srv.URL))
	_, err := a.Invoke(context.Background(), generation.Request{
		Kind:   generation.KindImage,
		Prompt: "x",
		Source: &generation.SourceAsset{MIMEType: "image/png", Data: []byte("png")},
	})

	assert.ErrorIs(t, err, generation.ErrEditUnsupported)
	assert.Equal(t, generation.KindInvalidRequest, generation.KindOf(err))
	assert.Zero(t, calls.Load())
}

func TestImageAdapter_ErrorMapping(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		want        generation.ErrorKind
	}{
		{"rate limited", http.StatusTooManyRequests, "text/plain", generation.KindRateLimited},
		{"server error", http.StatusInternalServerError, "text/plain", generation.KindTransient},
		{"html instead of image", http.StatusOK, "text/html; charset=utf-8", generation.KindInvalidResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("<html>queue full</html>"))
			})

			_, err := NewImageAdapter(WithBaseURL(srv.URL)).Invoke(context.Background(), generation.Request{Kind: generation.KindImage, Prompt: "x"})

			require.Error(t, err)
			assert.Equal(t, tt.want, generation.KindOf(err))
		})
	}
}

func TestImageAdapter_Cancelled(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewImageAdapter(WithBaseURL(srv.URL)).Invoke(ctx, generation.Request{Kind: generation.KindImage, Prompt: "x"})

	assert.Equal(t, generation.KindCancelled, generation.KindOf(err))
}

func TestDimensions(t *testing.T) {
	tests := []struct {
		aspect string
		w, h   int
	}{
		{"", 1024, 1024},
		{"1:1", 1024, 1024},
		{"9:16", 1080, 1920},
		{"4:5", 1024, 1280},
		{"3:2", 1536, 1024},
		{"2:1", 1024, 512},
		{"bogus", 1024, 1024},
	}
	for _, tt := range tests {
		w, h := dimensions(tt.aspect)
		assert.Equal(t, tt.w, w, tt.aspect)
		assert.Equal(t, tt.h, h, tt.aspect)
	}
}
