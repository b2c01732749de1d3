package bulk

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/gobulk/pkg/resource"
)

// Submitter starts export jobs.
type Submitter struct {
	client Client
	logger *zap.Logger
	now    func() time.Time
}

// NewSubmitter creates a submitter that sends mutations through c.
func NewSubmitter(c Client) *Submitter {
	return &Submitter{
		client: c,
		logger: zap.NewNop(),
		now:    time.Now,
	}
}

// WithLogger sets the logger used for submission events.
// Returns the submitter for method chaining.
func (s *Submitter) WithLogger(l *zap.Logger) *Submitter {
	if l != nil {
		s.logger = l
	}
	return s
}

// Submit builds the export mutation for kind and sends it.
//
// A response with user errors, or without a job id, fails with
// *JobRejectedError and yields no job. Transport errors are returned as-is
// and are not retried.
func (s *Submitter) Submit(ctx context.Context, kind resource.Kind) (*Job, error) {
	mutation, err := resource.BulkMutation(kind)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.RunBulkQuery(ctx, mutation)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, &JobRejectedError{Reason: "empty submission response"}
	}

	if len(resp.UserErrors) > 0 {
		reasons := make([]string, 0, len(resp.UserErrors))
		for _, ue := range resp.UserErrors {
			reasons = append(reasons, ue.String())
		}
		s.logger.Warn("Bulk job rejected",
			zap.String("kind", kind.String()),
			zap.Strings("user_errors", reasons))
		return nil, &JobRejectedError{Reason: strings.Join(reasons, "; ")}
	}
	if resp.JobID == "" {
		return nil, &JobRejectedError{Reason: "no job id in submission response"}
	}

	now := s.now()
	job := &Job{
		ID:          resp.JobID,
		Kind:        kind,
		Status:      StatusSubmitted,
		SubmittedAt: now,
		UpdatedAt:   now,
	}

	// Upstream may already report a later state; honor it monotonically.
	if resp.Status != "" {
		status, code, err := ParseStatus(resp.Status)
		if err == nil {
			if err := job.Transition(status, now); err != nil {
				return nil, err
			}
			if job.Status == StatusFailed {
				job.ErrorCode = firstNonEmpty(resp.ErrorCode, code)
				return job, &JobFailedError{JobID: job.ID, ErrorCode: job.ErrorCode}
			}
		}
	}

	s.logger.Info("Bulk job submitted",
		zap.String("kind", kind.String()),
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)))

	return job, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
