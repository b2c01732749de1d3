// Package output provides JSONL output for extraction results.
//
// Output is structured as typed record envelopes containing canonical
// records, job updates, errors, and summaries. Each line is a
// self-contained JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/3leaps/gobulk/pkg/bulk"
)

// Record type constants follow the pattern gobulk.<type>.v<version>.
const (
	// TypeRecord identifies canonical record lines.
	TypeRecord = "gobulk.record.v1"

	// TypeJob identifies bulk job state updates.
	TypeJob = "gobulk.job.v1"

	// TypeError identifies per-kind error records.
	TypeError = "gobulk.error.v1"

	// TypeSummary identifies the final summary record.
	TypeSummary = "gobulk.summary.v1"
)

// Envelope wraps every JSONL line.
type Envelope struct {
	// Type identifies the payload (e.g., "gobulk.record.v1").
	Type string `json:"type"`

	// TS is when the line was written.
	TS time.Time `json:"ts"`

	// RunID correlates all lines of one invocation.
	RunID string `json:"run_id"`

	// Kind is the resource kind the line belongs to, if any.
	Kind string `json:"kind,omitempty"`

	Data json.RawMessage `json:"data"`
}

// JobRecord is the data payload for job state updates.
type JobRecord struct {
	JobID          string    `json:"job_id"`
	Status         string    `json:"status"`
	Attempts       int       `json:"attempts"`
	ObjectCount    int64     `json:"object_count,omitempty"`
	ErrorCode      string    `json:"error_code,omitempty"`
	ResultLocation string    `json:"result_location,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ErrorRecord is the data payload for a kind that failed.
//
// Errors are emitted as records rather than failing the whole run, so
// other kinds' records remain usable.
type ErrorRecord struct {
	// Code is a machine-readable error code (e.g., "JOB_FAILED").
	Code string `json:"code"`

	Message string `json:"message"`

	// JobID is the export job involved, if one was created.
	JobID string `json:"job_id,omitempty"`

	// Line is the result line number for parse errors.
	Line int `json:"line,omitempty"`

	Details any `json:"details,omitempty"`
}

// KindSummary reports one kind's counts.
type KindSummary struct {
	Kind      string `json:"kind"`
	Mode      string `json:"mode"`
	OK        bool   `json:"ok"`
	Code      string `json:"code,omitempty"`
	Raw       int    `json:"raw_count"`
	Entities  int    `json:"entity_count"`
	Skipped   int    `json:"skipped,omitempty"`
	Pages     int    `json:"pages,omitempty"`
	Stagnated bool   `json:"stagnated,omitempty"`
}

// SummaryRecord is the data payload for the final summary.
type SummaryRecord struct {
	Kinds []KindSummary `json:"kinds"`

	// Records is the total number of canonical records written.
	Records int `json:"records"`

	// Failed counts kinds that ended in error.
	Failed int `json:"failed"`

	Duration      time.Duration `json:"duration_ns"`
	DurationHuman string        `json:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// NewJobRecord builds the job payload from a bulk job.
func NewJobRecord(j *bulk.Job) *JobRecord {
	return &JobRecord{
		JobID:          j.ID,
		Status:         string(j.Status),
		Attempts:       j.Attempts,
		ObjectCount:    j.ObjectCount,
		ErrorCode:      j.ErrorCode,
		ResultLocation: j.ResultLocation,
		UpdatedAt:      j.UpdatedAt,
	}
}
