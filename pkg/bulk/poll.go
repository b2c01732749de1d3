package bulk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PollOptions bounds the wait for a job to finish.
type PollOptions struct {
	// Interval is the spacing between status calls.
	// Default: 3s
	Interval time.Duration

	// MaxAttempts caps the number of status calls.
	// Default: 200
	MaxAttempts int

	// Observer, if set, is notified after every status call of this wait,
	// in addition to the poller's own observer.
	Observer Observer
}

// DefaultPollOptions returns the default poll budget.
func DefaultPollOptions() PollOptions {
	return PollOptions{
		Interval:    3 * time.Second,
		MaxAttempts: 200,
	}
}

// Observer is notified after every status call.
type Observer interface {
	OnPoll(job *Job)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(job *Job)

// OnPoll implements Observer.
func (f ObserverFunc) OnPoll(job *Job) {
	f(job)
}

// Poller waits for jobs to reach a terminal state.
type Poller struct {
	client   Client
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
}

// NewPoller creates a poller that reads status through c.
func NewPoller(c Client) *Poller {
	return &Poller{
		client: c,
		logger: zap.NewNop(),
		now:    time.Now,
	}
}

// WithLogger sets the logger used for poll events.
// Returns the poller for method chaining.
func (p *Poller) WithLogger(l *zap.Logger) *Poller {
	if l != nil {
		p.logger = l
	}
	return p
}

// WithObserver sets an observer notified after every status call.
// Returns the poller for method chaining.
func (p *Poller) WithObserver(o Observer) *Poller {
	p.observer = o
	return p
}

// AwaitCompletion polls until job is COMPLETED or FAILED.
//
// At most opts.MaxAttempts status calls are made, the first immediately and
// each following one after opts.Interval. The returned job is a copy; the
// input is not modified. Outcomes:
//   - COMPLETED: the job with ResultLocation (empty when the export is empty)
//   - FAILED: *JobFailedError with the upstream error code
//   - budget exhausted or ctx deadline: ErrPollTimeout
//   - ctx cancelled: ErrCancelled
//   - status for a different job: ErrJobMismatch
func (p *Poller) AwaitCompletion(ctx context.Context, job *Job, opts PollOptions) (*Job, error) {
	if job == nil {
		return nil, errors.New("await completion: nil job")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollOptions().Interval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultPollOptions().MaxAttempts
	}

	cur := job.Clone()
	switch cur.Status {
	case StatusCompleted:
		return cur, nil
	case StatusFailed:
		return cur, &JobFailedError{JobID: cur.ID, ErrorCode: cur.ErrorCode}
	}

	timer := time.NewTimer(opts.Interval)
	timer.Stop()
	defer timer.Stop()

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			timer.Reset(opts.Interval)
			select {
			case <-ctx.Done():
				return cur, contextError(ctx.Err(), cur.Attempts)
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return cur, contextError(err, cur.Attempts)
		}

		resp, err := p.client.CurrentBulkOperation(ctx)
		cur.Attempts = attempt
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return cur, contextError(ctxErr, cur.Attempts)
			}
			return cur, err
		}

		done, err := p.apply(cur, resp)
		p.notify(cur, opts.Observer)
		if err != nil || done {
			return cur, err
		}

		p.logger.Debug("Bulk job not finished",
			zap.String("kind", cur.Kind.String()),
			zap.String("job_id", cur.ID),
			zap.String("status", string(cur.Status)),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", opts.MaxAttempts))
	}

	p.logger.Warn("Bulk job poll budget exhausted",
		zap.String("kind", cur.Kind.String()),
		zap.String("job_id", cur.ID),
		zap.Int("attempts", cur.Attempts))
	return cur, fmt.Errorf("%w: job %s still %s after %d attempts", ErrPollTimeout, cur.ID, cur.Status, cur.Attempts)
}

// apply folds one status response into cur and reports whether cur is final.
func (p *Poller) apply(cur *Job, resp *StatusResponse) (bool, error) {
	if resp == nil {
		return false, nil
	}
	if resp.ID != "" && cur.ID != "" && resp.ID != cur.ID {
		return true, fmt.Errorf("%w: awaiting %s, current is %s", ErrJobMismatch, cur.ID, resp.ID)
	}

	status, code, err := ParseStatus(resp.Status)
	if err != nil {
		return true, err
	}
	if err := cur.Transition(status, p.now()); err != nil {
		return true, err
	}
	if resp.ObjectCount > 0 {
		cur.ObjectCount = resp.ObjectCount
	}

	switch cur.Status {
	case StatusCompleted:
		cur.ResultLocation = resp.URL
		p.logger.Info("Bulk job completed",
			zap.String("kind", cur.Kind.String()),
			zap.String("job_id", cur.ID),
			zap.Int64("object_count", cur.ObjectCount),
			zap.Int("attempts", cur.Attempts))
		return true, nil
	case StatusFailed:
		cur.ErrorCode = firstNonEmpty(resp.ErrorCode, code)
		p.logger.Warn("Bulk job failed",
			zap.String("kind", cur.Kind.String()),
			zap.String("job_id", cur.ID),
			zap.String("error_code", cur.ErrorCode))
		return true, &JobFailedError{JobID: cur.ID, ErrorCode: cur.ErrorCode}
	}
	return false, nil
}

func (p *Poller) notify(job *Job, call Observer) {
	if p.observer != nil {
		p.observer.OnPoll(job.Clone())
	}
	if call != nil {
		call.OnPoll(job.Clone())
	}
}

func contextError(err error, attempts int) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %d attempts: %w", ErrPollTimeout, attempts, err)
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrCancelled, attempts, err)
}
