package jobregistry

import (
	"time"

	"github.com/3leaps/gobulk/pkg/bulk"
)

// RunState is the lifecycle state of a recorded extraction run.
//
// NOTE: These values are persisted in job.json and are part of the stable
// on-disk contract.
type RunState string

const (
	RunStateRunning RunState = "running"
	RunStateSuccess RunState = "success"
	RunStateFailed  RunState = "failed"
	RunStateUnknown RunState = "unknown"
)

// JobRecord is the persistent record written to job.json, one per run of
// one kind.
//
// The schema is designed for backward-compatible extension (additive fields).
type JobRecord struct {
	RunID          string      `json:"run_id"`
	Kind           string      `json:"kind"`
	State          RunState    `json:"state"`
	BulkJobID      string      `json:"bulk_job_id"`
	Status         bulk.Status `json:"status"`
	ErrorCode      string      `json:"error_code,omitempty"`
	ResultLocation string      `json:"result_location,omitempty"`
	ObjectCount    int64       `json:"object_count,omitempty"`
	Attempts       int         `json:"attempts"`
	ManifestPath   string      `json:"manifest_path,omitempty"`
	PID            int         `json:"pid,omitempty"`
	SubmittedAt    time.Time   `json:"submitted_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	EndedAt        *time.Time  `json:"ended_at,omitempty"`
}

// stateFor maps a bulk job status onto the run lifecycle.
func stateFor(s bulk.Status) RunState {
	switch s {
	case bulk.StatusCompleted:
		return RunStateSuccess
	case bulk.StatusFailed:
		return RunStateFailed
	default:
		return RunStateRunning
	}
}
