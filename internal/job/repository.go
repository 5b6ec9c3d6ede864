package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when no generation job has the given ID.
var ErrJobNotFound = errors.New("job not found")

// Repository stores generation jobs. Implementations hand out copies, so a
// caller mutating a returned *Job never affects stored state.
type Repository interface {
	// Save inserts or replaces the job.
	Save(ctx context.Context, job *Job) error
	// FindByID returns ErrJobNotFound for unknown or expired IDs.
	FindByID(ctx context.Context, id string) (*Job, error)
	// Delete returns ErrJobNotFound for unknown IDs.
	Delete(ctx context.Context, id string) error
}
