// Package server provides the HTTP transport for the generation service.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/mediagen/internal/api"
)

// CreateGenerationResponse is the HTTP response after queueing a generation.
type CreateGenerationResponse struct {
	// ID is the unique identifier for the generation job.
	ID string `json:"id"`
	// Status is the job status at creation time.
	Status string `json:"status"`
}

// GenerationResponse is the HTTP response for getting a generation job.
type GenerationResponse struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
	// Result is set when the job completed.
	Result *api.Success `json:"result,omitempty"`
	// Failure is set when the job failed or was cancelled.
	Failure     *api.Failure `json:"failure,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
