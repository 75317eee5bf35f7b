package scheduler

import (
	"errors"
)

// Error definitions
var (
	// ErrInvalidSchedule is returned for cron expressions that do not parse.
	ErrInvalidSchedule = errors.New("invalid cron expression")

	// ErrJobNameRequired is returned when adding a job without a name.
	ErrJobNameRequired = errors.New("job name is required")

	// ErrDuplicateJob is returned when a job name is already scheduled.
	ErrDuplicateJob = errors.New("job already scheduled")

	// ErrShutdownTimeout is returned when running jobs outlive the stop deadline.
	ErrShutdownTimeout = errors.New("scheduler shutdown timed out")
)
