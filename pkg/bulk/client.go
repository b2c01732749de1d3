package bulk

import (
	"context"
	"strings"
)

// Client issues the two calls of the bulk export protocol.
//
// Implementations carry their own authentication; the bulk package never
// sees credentials.
type Client interface {
	// RunBulkQuery submits a bulk-operation mutation.
	RunBulkQuery(ctx context.Context, mutation string) (*SubmitResponse, error)

	// CurrentBulkOperation reports the state of the current job.
	// A nil response means no job is current yet.
	CurrentBulkOperation(ctx context.Context) (*StatusResponse, error)
}

// UserError is a validation failure reported by the submission call.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// String renders the error as "field.path: message".
func (u UserError) String() string {
	if len(u.Field) == 0 {
		return u.Message
	}
	return strings.Join(u.Field, ".") + ": " + u.Message
}

// SubmitResponse is the result of a submission call.
type SubmitResponse struct {
	JobID      string
	Status     string
	ErrorCode  string
	UserErrors []UserError
}

// StatusResponse is the result of a status call.
type StatusResponse struct {
	ID          string
	Status      string
	URL         string
	ErrorCode   string
	ObjectCount int64
}
