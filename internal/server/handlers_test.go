package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediagen/internal/api"
	"github.com/maauso/mediagen/internal/generation"
	"github.com/maauso/mediagen/internal/job"
)

// mockGenerator implements job.Generator for testing.
type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, req generation.Request) (generation.DeliveredAsset, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(generation.DeliveredAsset), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestHandlers(t *testing.T) (*Handlers, *mockGenerator, job.Repository) {
	t.Helper()
	repo := job.NewMemoryRepository()
	gen := &mockGenerator{}
	logger := testLogger()

	svc := job.NewService(repo, gen, job.WithLogger(logger))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return NewHandlers(svc, logger), gen, repo
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func TestHealth(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.Health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

func TestCreateGeneration_Success(t *testing.T) {
	h, gen, _ := newTestHandlers(t)
	gen.On("Generate", mock.Anything, mock.Anything).
		Return(generation.DeliveredAsset{URI: "https://cdn/a.png", Method: generation.DeliveryUploaded, Provider: "imagen"}, nil)

	body := api.GenerationRequest{Kind: "image", Prompt: "a lighthouse at dusk"}
	req := httptest.NewRequest(http.MethodPost, "/generations", jsonBody(t, body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.CreateGeneration(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp CreateGenerationResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.ID, "gen_"))
	assert.Equal(t, "QUEUED", resp.Status)
}

func TestCreateGeneration_InvalidJSON(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/generations", bytes.NewReader([]byte("invalid json")))
	rec := httptest.NewRecorder()

	h.CreateGeneration(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "INVALID_JSON", resp.Code)
}

func TestCreateGeneration_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body api.GenerationRequest
	}{
		{"missing prompt", api.GenerationRequest{Kind: "image"}},
		{"unknown kind", api.GenerationRequest{Kind: "hologram", Prompt: "x"}},
		{"bad source data", api.GenerationRequest{Kind: "image", Prompt: "x", SourceAsset: &api.SourceAsset{MIMEType: "image/png", Data: "not base64!"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, gen, _ := newTestHandlers(t)

			req := httptest.NewRequest(http.MethodPost, "/generations", jsonBody(t, tt.body))
			rec := httptest.NewRecorder()

			h.CreateGeneration(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, "VALIDATION_ERROR", resp.Code)
			gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateGeneration_BodyTooLarge(t *testing.T) {
	repo := job.NewMemoryRepository()
	svc := job.NewService(repo, &mockGenerator{}, job.WithLogger(testLogger()))
	h := NewHandlers(svc, testLogger(), WithMaxBodyBytes(16))

	body := api.GenerationRequest{Kind: "image", Prompt: strings.Repeat("x", 64)}
	req := httptest.NewRequest(http.MethodPost, "/generations", jsonBody(t, body))
	rec := httptest.NewRecorder()

	h.CreateGeneration(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestGenerateSync_Success(t *testing.T) {
	h, gen, _ := newTestHandlers(t)
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(r generation.Request) bool {
		return r.Kind == generation.KindImage && r.IsEdit() && string(r.Source.Data) == "png"
	})).Return(generation.DeliveredAsset{URI: "https://image.pollinations.ai/prompt/x", Method: generation.DeliveryRawLink, Provider: "pollinations"}, nil)

	body := api.GenerationRequest{
		Kind:        "image",
		Prompt:      "make it blue",
		SourceAsset: &api.SourceAsset{MIMEType: "image/png", Data: base64.StdEncoding.EncodeToString([]byte("png"))},
	}
	req := httptest.NewRequest(http.MethodPost, "/generations:sync", jsonBody(t, body))
	rec := httptest.NewRecorder()

	h.GenerateSync(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.Success
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "raw-link", resp.DeliveryMethod)
	assert.Equal(t, "pollinations", resp.ProviderUsed)
	assert.Equal(t, "https://image.pollinations.ai/prompt/x", resp.DeliveredURI)
}

func TestGenerateSync_Failure(t *testing.T) {
	h, gen, _ := newTestHandlers(t)
	gen.On("Generate", mock.Anything, mock.Anything).Return(generation.DeliveredAsset{}, &generation.Error{
		Kind: generation.KindAllProvidersExhausted,
		Op:   "generate",
		Err:  errors.New("no provider produced an asset"),
		Attempts: []generation.AttemptRecord{
			{Provider: "veo", Outcome: generation.OutcomeFailure, ErrorKind: generation.KindInvalidResponse, Message: "empty result"},
		},
	})

	body := api.GenerationRequest{Kind: "video", Prompt: "waves"}
	req := httptest.NewRequest(http.MethodPost, "/generations:sync", jsonBody(t, body))
	rec := httptest.NewRecorder()

	h.GenerateSync(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var resp api.Failure
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "AllProvidersExhausted", resp.ErrorKind)
	assert.Equal(t, "ALL_PROVIDERS_EXHAUSTED", resp.Code)
	require.Len(t, resp.Attempts, 1)
	assert.Equal(t, "empty result", resp.Attempts[0].Message)
}

func waitForStatus(t *testing.T, repo job.Repository, id string, want job.Status) *job.Job {
	t.Helper()
	var found *job.Job
	require.Eventually(t, func() bool {
		j, err := repo.FindByID(context.Background(), id)
		if err != nil {
			return false
		}
		found = j
		return j.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return found
}

func TestGetGeneration_Completed(t *testing.T) {
	h, gen, repo := newTestHandlers(t)
	gen.On("Generate", mock.Anything, mock.Anything).
		Return(generation.DeliveredAsset{URI: "https://cdn/a.mp3", Method: generation.DeliveryUploaded, Provider: "openai-tts", MIMEType: "audio/mpeg"}, nil)

	createReq := httptest.NewRequest(http.MethodPost, "/generations", jsonBody(t, api.GenerationRequest{Kind: "speech", Prompt: "hello"}))
	createRec := httptest.NewRecorder()
	h.CreateGeneration(createRec, createReq)
	var created CreateGenerationResponse
	require.NoError(t, json.NewDecoder(createRec.Body).Decode(&created))

	waitForStatus(t, repo, created.ID, job.StatusCompleted)

	req := httptest.NewRequest(http.MethodGet, "/generations/"+created.ID, nil)
	req.SetPathValue("id", created.ID)
	rec := httptest.NewRecorder()

	h.GetGeneration(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp GenerationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "COMPLETED", resp.Status)
	assert.Equal(t, "speech", resp.Kind)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "https://cdn/a.mp3", resp.Result.DeliveredURI)
	assert.Nil(t, resp.Failure)
	assert.NotNil(t, resp.CompletedAt)
}

func TestGetGeneration_Failed(t *testing.T) {
	h, _, repo := newTestHandlers(t)
	ctx := context.Background()

	j := job.New(generation.Request{Kind: generation.KindVideo, Prompt: "waves"})
	_ = j.Start()
	_ = j.Fail(generation.Errorf(generation.KindDeliveryFailed, "", "deliver", "no delivery method succeeded"))
	require.NoError(t, repo.Save(ctx, j))

	req := httptest.NewRequest(http.MethodGet, "/generations/"+j.ID, nil)
	req.SetPathValue("id", j.ID)
	rec := httptest.NewRecorder()

	h.GetGeneration(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp GenerationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "FAILED", resp.Status)
	require.NotNil(t, resp.Failure)
	assert.Equal(t, "DeliveryFailed", resp.Failure.ErrorKind)
	assert.Equal(t, "DELIVERY_FAILED", resp.Failure.Code)
	assert.Nil(t, resp.Result)
}

func TestGetGeneration_NotFound(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/generations/gen_missing", nil)
	req.SetPathValue("id", "gen_missing")
	rec := httptest.NewRecorder()

	h.GetGeneration(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "GENERATION_NOT_FOUND", resp.Code)
}

func TestGetGeneration_MissingID(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/generations/", nil)
	rec := httptest.NewRecorder()

	h.GetGeneration(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelGeneration(t *testing.T) {
	h, gen, repo := newTestHandlers(t)
	started := make(chan struct{})
	gen.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			close(started)
			<-args.Get(0).(context.Context).Done()
		}).
		Return(generation.DeliveredAsset{}, generation.Errorf(generation.KindCancelled, "", "generate", "context canceled"))

	createRec := httptest.NewRecorder()
	h.CreateGeneration(createRec, httptest.NewRequest(http.MethodPost, "/generations", jsonBody(t, api.GenerationRequest{Kind: "video", Prompt: "slow"})))
	var created CreateGenerationResponse
	require.NoError(t, json.NewDecoder(createRec.Body).Decode(&created))
	<-started

	req := httptest.NewRequest(http.MethodDelete, "/generations/"+created.ID, nil)
	req.SetPathValue("id", created.ID)
	rec := httptest.NewRecorder()
	h.CancelGeneration(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	cancelled := waitForStatus(t, repo, created.ID, job.StatusCancelled)
	assert.Equal(t, generation.KindCancelled, cancelled.ErrorKind)

	// A finished generation cannot be cancelled again.
	req = httptest.NewRequest(http.MethodDelete, "/generations/"+created.ID, nil)
	req.SetPathValue("id", created.ID)
	rec = httptest.NewRecorder()
	h.CancelGeneration(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelGeneration_NotFound(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodDelete, "/generations/gen_missing", nil)
	req.SetPathValue("id", "gen_missing")
	rec := httptest.NewRecorder()

	h.CancelGeneration(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// recordingMetrics implements MetricsRecorder for testing.
type recordingMetrics struct {
	routes []string
}

func (m *recordingMetrics) RecordHTTPRequest(method, route string, status int, _ time.Duration) {
	m.routes = append(m.routes, route)
}

func (m *recordingMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "mediagen_up 1\n")
	})
}

func TestRouter_Integration(t *testing.T) {
	h, gen, _ := newTestHandlers(t)
	gen.On("Generate", mock.Anything, mock.Anything).
		Return(generation.DeliveredAsset{URI: "https://cdn/a.png", Method: generation.DeliveryUploaded, Provider: "imagen"}, nil)

	metrics := &recordingMetrics{}
	router := NewRouter(h, testLogger(), Config{AllowedOrigins: []string{"*"}, Metrics: metrics})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/generations", jsonBody(t, api.GenerationRequest{Kind: "image", Prompt: "p"}))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var created CreateGenerationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	req = httptest.NewRequest(http.MethodGet, "/generations/"+created.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/generations:sync", jsonBody(t, api.GenerationRequest{Kind: "image", Prompt: "p"}))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mediagen_up")

	assert.Contains(t, metrics.routes, "GET /generations/{id}")
	assert.Contains(t, metrics.routes, "POST /generations:sync")
}

func TestRouter_ServesLocalAssets(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "image"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image", "a.png"), []byte("png-bytes"), 0600))

	router := NewRouter(h, testLogger(), Config{AssetsDir: dir})

	req := httptest.NewRequest(http.MethodGet, "/assets/image/a.png", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png-bytes", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSMiddleware(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	cfg := Config{AllowedOrigins: []string{"https://example.com"}}
	router := NewRouter(h, testLogger(), cfg)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/generations", nil)
	req.Header.Set("Origin", "https://example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	handler := RecoveryMiddleware(testLogger())(panicHandler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "INTERNAL_ERROR", resp.Code)
}
