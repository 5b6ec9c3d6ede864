package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/maauso/mediagen/internal/api"
	"github.com/maauso/mediagen/internal/generation"
	"github.com/maauso/mediagen/internal/job"
)

// DefaultMaxBodyBytes bounds request bodies, which may carry a base64 source asset.
const DefaultMaxBodyBytes = 32 << 20

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service      *job.Service
	logger       *slog.Logger
	maxBodyBytes int64
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithMaxBodyBytes overrides the request body limit.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.Service, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:      service,
		logger:       logger,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateGeneration handles POST /generations requests.
func (h *Handlers) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	created, err := h.service.CreateJob(r.Context(), req)
	if err != nil {
		if errors.Is(err, job.ErrShuttingDown) {
			writeError(w, http.StatusServiceUnavailable, err.Error(), "SHUTTING_DOWN")
			return
		}
		h.logger.Error("failed to create generation",
			slog.String("kind", string(req.Kind)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create generation", "JOB_CREATION_FAILED")
		return
	}

	writeJSON(w, http.StatusAccepted, CreateGenerationResponse{
		ID:     created.ID,
		Status: string(created.Status),
	})
}

// GenerateSync handles POST /generations:sync requests. The request
// context bounds the generation; a disconnecting client cancels it.
func (h *Handlers) GenerateSync(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	asset, err := h.service.GenerateSync(r.Context(), req)
	if err != nil {
		failure := api.NewFailure(err)
		h.logger.Warn("synchronous generation failed",
			slog.String("kind", string(req.Kind)),
			slog.String("error_kind", failure.ErrorKind),
		)
		writeJSON(w, api.HTTPStatus(generation.KindOf(err)), failure)
		return
	}

	writeJSON(w, http.StatusOK, api.NewSuccess(asset))
}

// GetGeneration handles GET /generations/{id} requests.
func (h *Handlers) GetGeneration(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "generation ID is required", "MISSING_GENERATION_ID")
		return
	}

	found, err := h.service.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "generation not found", "GENERATION_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get generation",
			slog.String("generation_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get generation", "GENERATION_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, toGenerationResponse(found))
}

// CancelGeneration handles DELETE /generations/{id} requests.
func (h *Handlers) CancelGeneration(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "generation ID is required", "MISSING_GENERATION_ID")
		return
	}

	err := h.service.Cancel(r.Context(), id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "generation not found", "GENERATION_NOT_FOUND")
	case errors.Is(err, job.ErrJobTerminal):
		writeError(w, http.StatusConflict, "generation already finished", "GENERATION_FINISHED")
	default:
		h.logger.Error("failed to cancel generation",
			slog.String("generation_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to cancel generation", "GENERATION_CANCEL_FAILED")
	}
}

// decodeRequest parses and validates the request body, writing the error
// response itself when it returns false.
func (h *Handlers) decodeRequest(w http.ResponseWriter, r *http.Request) (generation.Request, bool) {
	var body api.GenerationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes)).Decode(&body); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "BODY_TOO_LARGE")
			return generation.Request{}, false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return generation.Request{}, false
	}

	req, err := body.ToDomain()
	if err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return generation.Request{}, false
	}
	return req, true
}

func toGenerationResponse(j *job.Job) GenerationResponse {
	resp := GenerationResponse{
		ID:        j.ID,
		Kind:      string(j.Kind),
		Status:    string(j.Status),
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
	if !j.CompletedAt.IsZero() {
		completed := j.CompletedAt
		resp.CompletedAt = &completed
	}

	switch j.Status {
	case job.StatusCompleted:
		if j.Result != nil {
			success := api.NewSuccess(*j.Result)
			resp.Result = &success
		}
	case job.StatusFailed, job.StatusCancelled:
		resp.Failure = &api.Failure{
			ErrorKind: string(j.ErrorKind),
			Code:      api.Code(j.ErrorKind),
			Message:   j.Error,
			Attempts:  api.Attempts(j.Attempts),
		}
	}
	return resp
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
