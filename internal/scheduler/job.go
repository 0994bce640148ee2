package scheduler

import "context"

// Job represents a unit of work that can be executed by the worker pool.
// Different job types can be implemented (digest delivery, cleanup, ...).
type Job interface {
	// Execute runs the job with the given context.
	// Context should be respected for cancellation and timeouts.
	Execute(ctx context.Context) error

	// Name identifies the job instance (e.g. the digest frequency it
	// covers). Used for logging and tracking.
	Name() string

	// Description returns a human-readable description of the job.
	Description() string
}
