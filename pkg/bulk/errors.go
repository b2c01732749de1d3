package bulk

import (
	"errors"
	"fmt"
)

// Sentinel errors for bulk job operations.
var (
	// ErrJobRejected indicates the upstream refused to start the job.
	ErrJobRejected = errors.New("bulk job rejected")

	// ErrJobFailed indicates the job reached a failed terminal state.
	ErrJobFailed = errors.New("bulk job failed")

	// ErrPollTimeout indicates the job did not finish within the poll budget.
	ErrPollTimeout = errors.New("bulk job poll timed out")

	// ErrCancelled indicates polling stopped because the caller cancelled.
	ErrCancelled = errors.New("bulk job polling cancelled")

	// ErrJobMismatch indicates the status call reported a different job than
	// the one being awaited.
	ErrJobMismatch = errors.New("current bulk job is not the awaited job")

	// ErrInvalidTransition indicates an attempt to leave a terminal state.
	ErrInvalidTransition = errors.New("invalid bulk job status transition")
)

// JobRejectedError carries the upstream's reason for refusing a job.
type JobRejectedError struct {
	Reason string
}

// Error implements the error interface.
func (e *JobRejectedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrJobRejected, e.Reason)
}

// Unwrap returns ErrJobRejected for errors.Is support.
func (e *JobRejectedError) Unwrap() error {
	return ErrJobRejected
}

// JobFailedError carries the upstream error code of a failed job.
type JobFailedError struct {
	JobID     string
	ErrorCode string
}

// Error implements the error interface.
func (e *JobFailedError) Error() string {
	code := e.ErrorCode
	if code == "" {
		code = "unknown"
	}
	if e.JobID != "" {
		return fmt.Sprintf("%s: %s: %s", ErrJobFailed, e.JobID, code)
	}
	return fmt.Sprintf("%s: %s", ErrJobFailed, code)
}

// Unwrap returns ErrJobFailed for errors.Is support.
func (e *JobFailedError) Unwrap() error {
	return ErrJobFailed
}

// IsJobRejected returns true if the error indicates a rejected submission.
func IsJobRejected(err error) bool {
	return errors.Is(err, ErrJobRejected)
}

// IsJobFailed returns true if the error indicates a failed job.
func IsJobFailed(err error) bool {
	return errors.Is(err, ErrJobFailed)
}

// IsPollTimeout returns true if the error indicates an exhausted poll budget.
func IsPollTimeout(err error) bool {
	return errors.Is(err, ErrPollTimeout)
}

// IsCancelled returns true if the error indicates caller cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
