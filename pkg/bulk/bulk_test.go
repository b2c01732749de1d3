package bulk

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gobulk/pkg/resource"
)

// fakeClient replays scripted responses in order; the last status repeats.
type fakeClient struct {
	mu sync.Mutex

	submit    *SubmitResponse
	submitErr error
	mutations []string

	statuses  []*StatusResponse
	statusErr error
	calls     int
}

func (f *fakeClient) RunBulkQuery(_ context.Context, mutation string) (*SubmitResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations = append(f.mutations, mutation)
	return f.submit, f.submitErr
}

func (f *fakeClient) CurrentBulkOperation(_ context.Context) (*StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if len(f.statuses) == 0 {
		return nil, nil
	}
	idx := f.calls - 1
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	return f.statuses[idx], nil
}

func fastPoll(max int) PollOptions {
	return PollOptions{Interval: time.Millisecond, MaxAttempts: max}
}

func submittedJob() *Job {
	return &Job{ID: "gid://shop/BulkOperation/1", Kind: resource.KindProducts, Status: StatusSubmitted}
}

func TestSubmit_Success(t *testing.T) {
	c := &fakeClient{submit: &SubmitResponse{JobID: "gid://shop/BulkOperation/1", Status: "CREATED"}}

	job, err := NewSubmitter(c).Submit(context.Background(), resource.KindProducts)
	require.NoError(t, err)

	assert.Equal(t, "gid://shop/BulkOperation/1", job.ID)
	assert.Equal(t, StatusSubmitted, job.Status)
	assert.Equal(t, resource.KindProducts, job.Kind)
	require.Len(t, c.mutations, 1)
	assert.Contains(t, c.mutations[0], "bulkOperationRunQuery")
	assert.Contains(t, c.mutations[0], "variants")
}

func TestSubmit_UserErrorsReject(t *testing.T) {
	c := &fakeClient{submit: &SubmitResponse{
		UserErrors: []UserError{
			{Field: []string{"query"}, Message: "Invalid bulk query"},
			{Message: "A bulk query operation is already in progress"},
		},
	}}

	job, err := NewSubmitter(c).Submit(context.Background(), resource.KindOrders)
	require.Error(t, err)
	assert.Nil(t, job)
	assert.True(t, IsJobRejected(err))

	var rejected *JobRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "query: Invalid bulk query; A bulk query operation is already in progress", rejected.Reason)
}

func TestSubmit_MissingJobIDRejects(t *testing.T) {
	c := &fakeClient{submit: &SubmitResponse{}}
	_, err := NewSubmitter(c).Submit(context.Background(), resource.KindCustomers)
	assert.True(t, IsJobRejected(err))
}

func TestSubmit_UnsupportedKind(t *testing.T) {
	c := &fakeClient{}
	_, err := NewSubmitter(c).Submit(context.Background(), resource.Kind("invoices"))
	assert.True(t, resource.IsUnsupportedKind(err))
	assert.Empty(t, c.mutations, "nothing is sent for an unknown kind")
}

func TestSubmit_TransportErrorSurfaced(t *testing.T) {
	boom := errors.New("connection reset")
	c := &fakeClient{submitErr: boom}
	_, err := NewSubmitter(c).Submit(context.Background(), resource.KindProducts)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, c.mutations, 1, "no automatic retry")
}

func TestAwaitCompletion_CallObserver(t *testing.T) {
	c := &fakeClient{statuses: []*StatusResponse{
		{ID: "gid://shop/BulkOperation/1", Status: "RUNNING"},
		{ID: "gid://shop/BulkOperation/1", Status: "COMPLETED", URL: "https://storage.example/result.jsonl"},
	}}

	var pollerSeen, callSeen []int
	p := NewPoller(c).WithObserver(ObserverFunc(func(j *Job) { pollerSeen = append(pollerSeen, j.Attempts) }))

	opts := fastPoll(10)
	opts.Observer = ObserverFunc(func(j *Job) {
		callSeen = append(callSeen, j.Attempts)
		j.Status = StatusFailed
	})
	out, err := p.AwaitCompletion(context.Background(), submittedJob(), opts)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, out.Status, "observers receive copies")
	assert.Equal(t, []int{1, 2}, pollerSeen)
	assert.Equal(t, []int{1, 2}, callSeen)
}

func TestAwaitCompletion_Completed(t *testing.T) {
	c := &fakeClient{statuses: []*StatusResponse{
		{ID: "gid://shop/BulkOperation/1", Status: "CREATED"},
		{ID: "gid://shop/BulkOperation/1", Status: "RUNNING"},
		{ID: "gid://shop/BulkOperation/1", Status: "COMPLETED", URL: "https://storage.example/result.jsonl", ObjectCount: 3},
	}}

	var seen []Status
	p := NewPoller(c).WithObserver(ObserverFunc(func(j *Job) { seen = append(seen, j.Status) }))

	in := submittedJob()
	out, err := p.AwaitCompletion(context.Background(), in, fastPoll(10))
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, "https://storage.example/result.jsonl", out.ResultLocation)
	assert.Equal(t, int64(3), out.ObjectCount)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, []Status{StatusSubmitted, StatusRunning, StatusCompleted}, seen)
	assert.Equal(t, StatusSubmitted, in.Status, "input job is not mutated")
}

func TestAwaitCompletion_CompletedWithoutURL(t *testing.T) {
	c := &fakeClient{statuses: []*StatusResponse{
		{ID: "gid://shop/BulkOperation/1", Status: "COMPLETED"},
	}}
	out, err := NewPoller(c).AwaitCompletion(context.Background(), submittedJob(), fastPoll(5))
	require.NoError(t, err)
	assert.Empty(t, out.ResultLocation)
}

func TestAwaitCompletion_Failed(t *testing.T) {
	c := &fakeClient{statuses: []*StatusResponse{
		{ID: "gid://shop/BulkOperation/1", Status: "RUNNING"},
		{ID: "gid://shop/BulkOperation/1", Status: "FAILED", ErrorCode: "INTERNAL_ERROR"},
	}}

	out, err := NewPoller(c).AwaitCompletion(context.Background(), submittedJob(), fastPoll(10))
	require.Error(t, err)
	assert.True(t, IsJobFailed(err))

	var failed *JobFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "INTERNAL_ERROR", failed.ErrorCode)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, "INTERNAL_ERROR", out.ErrorCode)
}

func TestAwaitCompletion_CanceledUpstreamIsFailure(t *testing.T) {
	c := &fakeClient{statuses: []*StatusResponse{
		{ID: "gid://shop/BulkOperation/1", Status: "CANCELED"},
	}}
	_, err := NewPoller(c).AwaitCompletion(context.Background(), submittedJob(), fastPoll(3))

	var failed *JobFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "CANCELED", failed.ErrorCode)
}

func TestAwaitCompletion_NeverExceedsMaxAttempts(t *testing.T) {
	for _, max := range []int{1, 2, 7} {
		c := &fakeClient{statuses: []*StatusResponse{
			{ID: "gid://shop/BulkOperation/1", Status: "RUNNING"},
		}}
		out, err := NewPoller(c).AwaitCompletion(context.Background(), submittedJob(), fastPoll(max))
		require.Error(t, err)
		assert.True(t, IsPollTimeout(err))
		assert.Equal(t, max, c.calls)
		assert.Equal(t, max, out.Attempts)
	}
}

func TestAwaitCompletion_NilStatusKeepsPolling(t *testing.T) {
	c := &fakeClient{}
	_, err := NewPoller(c).AwaitCompletion(context.Background(), submittedJob(), fastPoll(4))
	assert.True(t, IsPollTimeout(err))
	assert.Equal(t, 4, c.calls)
}

func TestAwaitCompletion_Cancelled(t *testing.T) {
	c := &fakeClient{statuses: []*StatusResponse{
		{ID: "gid://shop/BulkOperation/1", Status: "RUNNING"},
	}}
	ctx, cancel := context.WithCancel(context.Background())

	p := NewPoller(c).WithObserver(ObserverFunc(func(*Job) { cancel() }))
	_, err := p.AwaitCompletion(ctx, submittedJob(), PollOptions{Interval: time.Hour, MaxAttempts: 100})

	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, c.calls, "cancellation is observed during the wait")
}

func TestAwaitCompletion_DeadlineIsPollTimeout(t *testing.T) {
	c := &fakeClient{statuses: []*StatusResponse{
		{ID: "gid://shop/BulkOperation/1", Status: "RUNNING"},
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewPoller(c).AwaitCompletion(ctx, submittedJob(), PollOptions{Interval: time.Hour, MaxAttempts: 100})
	require.Error(t, err)
	assert.True(t, IsPollTimeout(err))
	assert.Less(t, time.Since(start), time.Minute)
}

func TestAwaitCompletion_JobMismatch(t *testing.T) {
	c := &fakeClient{statuses: []*StatusResponse{
		{ID: "gid://shop/BulkOperation/99", Status: "RUNNING"},
	}}
	_, err := NewPoller(c).AwaitCompletion(context.Background(), submittedJob(), fastPoll(3))
	assert.ErrorIs(t, err, ErrJobMismatch)
}

func TestAwaitCompletion_TransportError(t *testing.T) {
	boom := errors.New("dial tcp: refused")
	c := &fakeClient{statusErr: boom}
	_, err := NewPoller(c).AwaitCompletion(context.Background(), submittedJob(), fastPoll(5))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, c.calls)
}

func TestAwaitCompletion_AlreadyTerminal(t *testing.T) {
	c := &fakeClient{}
	done := &Job{ID: "x", Status: StatusCompleted, ResultLocation: "file:///tmp/x.jsonl"}
	out, err := NewPoller(c).AwaitCompletion(context.Background(), done, fastPoll(3))
	require.NoError(t, err)
	assert.Equal(t, "file:///tmp/x.jsonl", out.ResultLocation)
	assert.Zero(t, c.calls)
}

func TestJobTransition(t *testing.T) {
	now := time.Unix(100, 0)

	j := &Job{Status: StatusSubmitted}
	require.NoError(t, j.Transition(StatusRunning, now))
	assert.Equal(t, StatusRunning, j.Status)

	require.NoError(t, j.Transition(StatusSubmitted, now))
	assert.Equal(t, StatusRunning, j.Status, "never moves backwards")

	require.NoError(t, j.Transition(StatusCompleted, now))
	require.NoError(t, j.Transition(StatusCompleted, now), "same terminal state is a no-op")

	err := j.Transition(StatusRunning, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	err = j.Transition(StatusFailed, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusCompleted, j.Status)
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in       string
		want     Status
		wantCode string
		wantErr  bool
	}{
		{"CREATED", StatusSubmitted, "", false},
		{"running", StatusRunning, "", false},
		{"CANCELING", StatusRunning, "", false},
		{"COMPLETED", StatusCompleted, "", false},
		{"FAILED", StatusFailed, "", false},
		{"CANCELED", StatusFailed, "CANCELED", false},
		{"EXPIRED", StatusFailed, "EXPIRED", false},
		{"PAUSED", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, code, err := ParseStatus(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestJobFailedError_Message(t *testing.T) {
	err := &JobFailedError{JobID: "j1", ErrorCode: "ACCESS_DENIED"}
	assert.True(t, strings.Contains(err.Error(), "ACCESS_DENIED"))
	assert.True(t, errors.Is(err, ErrJobFailed))
}
