// Package job provides the generation Job aggregate, its persistence ports
// and the service that runs generations in the background.
package job

import (
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/maauso/mediagen/internal/generation"
	"github.com/maauso/mediagen/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusQueued indicates the job is accepted but generation has not started.
	StatusQueued Status = "QUEUED"
	// StatusRunning indicates providers are being driven for the job.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the asset was generated and delivered.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates generation or delivery failed.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled by the caller.
	StatusCancelled Status = "CANCELLED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusQueued:    {StatusRunning, StatusCompleted, StatusFailed, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	return slices.Contains(validTransitions[from], to)
}

// Job represents one generation request and its outcome.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Kind is the requested media kind.
	Kind generation.Kind
	// Prompt is the request prompt.
	Prompt string
	// IdempotencyKey is the caller-supplied deduplication key, if any.
	IdempotencyKey string
	// Status is the current job state.
	Status Status
	// Result is the delivered asset once the job is COMPLETED.
	Result *generation.DeliveredAsset
	// ErrorKind classifies the failure once the job is FAILED or CANCELLED.
	ErrorKind generation.ErrorKind
	// Error contains the failure message.
	Error string
	// Attempts records every provider attempt made for the job.
	Attempts []generation.AttemptRecord
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when generation started.
	StartedAt time.Time
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time
}

// New creates a new QUEUED Job for req with a generated ID.
func New(req generation.Request) *Job {
	return NewWithID(id.Generate(), req)
}

// NewWithID creates a new QUEUED Job with the specified ID.
func NewWithID(jobID string, req generation.Request) *Job {
	now := time.Now()
	return &Job{
		ID:             jobID,
		Kind:           req.Kind,
		Prompt:         req.Prompt,
		IdempotencyKey: req.IdempotencyKey,
		Status:         StatusQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Start transitions the job from QUEUED to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete records the delivered asset and transitions to COMPLETED.
func (j *Job) Complete(asset generation.DeliveredAsset) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.Result = &asset
	return nil
}

// Fail records err and transitions to FAILED, or to CANCELLED when err is a
// cancellation.
func (j *Job) Fail(err error) error {
	kind := generation.KindOf(err)
	target := StatusFailed
	if kind == generation.KindCancelled {
		target = StatusCancelled
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if terr := j.transitionLocked(target); terr != nil {
		return terr
	}
	j.ErrorKind = kind
	j.Error = err.Error()
	j.Attempts = generation.AttemptsOf(err)
	return nil
}

// Cancel transitions the job to CANCELLED.
func (j *Job) Cancel() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCancelled); err != nil {
		return err
	}
	j.ErrorKind = generation.KindCancelled
	j.Error = "cancelled by caller"
	return nil
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted ||
		j.Status == StatusFailed ||
		j.Status == StatusCancelled
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.snapshot().job()
}

// MarshalJSON implements json.Marshaler.
func (j *Job) MarshalJSON() ([]byte, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return json.Marshal(j.snapshot())
}

// UnmarshalJSON implements json.Unmarshaler.
func (j *Job) UnmarshalJSON(data []byte) error {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	decoded := rec.job()

	j.mu.Lock()
	defer j.mu.Unlock()
	j.ID = decoded.ID
	j.Kind = decoded.Kind
	j.Prompt = decoded.Prompt
	j.IdempotencyKey = decoded.IdempotencyKey
	j.Status = decoded.Status
	j.Result = decoded.Result
	j.ErrorKind = decoded.ErrorKind
	j.Error = decoded.Error
	j.Attempts = decoded.Attempts
	j.CreatedAt = decoded.CreatedAt
	j.UpdatedAt = decoded.UpdatedAt
	j.StartedAt = decoded.StartedAt
	j.CompletedAt = decoded.CompletedAt
	return nil
}

// record is the lock-free wire form of a Job.
type record struct {
	ID             string                     `json:"id"`
	Kind           generation.Kind            `json:"kind"`
	Prompt         string                     `json:"prompt"`
	IdempotencyKey string                     `json:"idempotency_key,omitempty"`
	Status         Status                     `json:"status"`
	Result         *generation.DeliveredAsset `json:"result,omitempty"`
	ErrorKind      generation.ErrorKind       `json:"error_kind,omitempty"`
	Error          string                     `json:"error,omitempty"`
	Attempts       []generation.AttemptRecord `json:"attempts,omitempty"`
	CreatedAt      time.Time                  `json:"created_at"`
	UpdatedAt      time.Time                  `json:"updated_at"`
	StartedAt      time.Time                  `json:"started_at,omitzero"`
	CompletedAt    time.Time                  `json:"completed_at,omitzero"`
}

func (j *Job) snapshot() record {
	var result *generation.DeliveredAsset
	if j.Result != nil {
		r := *j.Result
		result = &r
	}
	return record{
		ID:             j.ID,
		Kind:           j.Kind,
		Prompt:         j.Prompt,
		IdempotencyKey: j.IdempotencyKey,
		Status:         j.Status,
		Result:         result,
		ErrorKind:      j.ErrorKind,
		Error:          j.Error,
		Attempts:       slices.Clone(j.Attempts),
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
}

func (r record) job() *Job {
	return &Job{
		ID:             r.ID,
		Kind:           r.Kind,
		Prompt:         r.Prompt,
		IdempotencyKey: r.IdempotencyKey,
		Status:         r.Status,
		Result:         r.Result,
		ErrorKind:      r.ErrorKind,
		Error:          r.Error,
		Attempts:       r.Attempts,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
	}
}
