// Package bulk drives an upstream asynchronous export job: submission,
// status polling and the job's monotonic state machine.
package bulk

import (
	"fmt"
	"strings"
	"time"

	"github.com/3leaps/gobulk/pkg/resource"
)

// Status is the lifecycle state of a bulk job.
//
// NOTE: These values are persisted in job registry records and are part of
// the stable on-disk contract.
type Status string

const (
	StatusSubmitted Status = "SUBMITTED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) rank() int {
	switch s {
	case StatusSubmitted:
		return 0
	case StatusRunning:
		return 1
	default:
		return 2
	}
}

// ParseStatus maps an upstream status string onto Status.
//
// Upstream reports CREATED for accepted jobs and CANCELING while a cancel is
// in flight; CANCELED and EXPIRED are terminal failures. The second return
// value is the error code implied by the upstream status itself, if any.
func ParseStatus(s string) (Status, string, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CREATED", "SUBMITTED":
		return StatusSubmitted, "", nil
	case "RUNNING", "CANCELING":
		return StatusRunning, "", nil
	case "COMPLETED":
		return StatusCompleted, "", nil
	case "FAILED":
		return StatusFailed, "", nil
	case "CANCELED", "CANCELLED":
		return StatusFailed, "CANCELED", nil
	case "EXPIRED":
		return StatusFailed, "EXPIRED", nil
	}
	return "", "", fmt.Errorf("unknown bulk job status %q", s)
}

// Job is one upstream export job for a single resource kind.
type Job struct {
	ID             string        `json:"id"`
	Kind           resource.Kind `json:"kind"`
	Status         Status        `json:"status"`
	ResultLocation string        `json:"result_location,omitempty"`
	ErrorCode      string        `json:"error_code,omitempty"`
	ObjectCount    int64         `json:"object_count,omitempty"`

	// Attempts counts status calls made while awaiting completion.
	Attempts int `json:"attempts"`

	SubmittedAt time.Time `json:"submitted_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Transition moves the job to next.
//
// Leaving a terminal state fails with ErrInvalidTransition. A non-terminal
// report older than the current state (RUNNING followed by SUBMITTED) is
// ignored so the status never moves backwards.
func (j *Job) Transition(next Status, at time.Time) error {
	if j.Status.IsTerminal() {
		if next == j.Status {
			return nil
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, next)
	}
	switch next {
	case StatusSubmitted, StatusRunning, StatusCompleted, StatusFailed:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}
	if next.rank() < j.Status.rank() {
		return nil
	}
	j.Status = next
	j.UpdatedAt = at
	return nil
}

// Clone returns a copy of the job.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	return &c
}
