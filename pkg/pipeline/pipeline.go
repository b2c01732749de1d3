// Package pipeline runs extraction per resource kind, from job submission
// (or paginated fetch) through reconciliation to canonical records.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3leaps/gobulk/pkg/bulk"
	"github.com/3leaps/gobulk/pkg/format"
	"github.com/3leaps/gobulk/pkg/paginate"
	"github.com/3leaps/gobulk/pkg/provider"
	"github.com/3leaps/gobulk/pkg/reconcile"
	"github.com/3leaps/gobulk/pkg/record"
	"github.com/3leaps/gobulk/pkg/resource"
	"github.com/3leaps/gobulk/pkg/stream"
)

// ErrNoPageSource is returned by RunPaginated when no page source is configured.
var ErrNoPageSource = errors.New("paginated fetch requires a page source")

// Mode names the extraction path used for a kind.
type Mode string

const (
	ModeBulk      Mode = "bulk"
	ModePaginated Mode = "paginated"
)

// Config configures a pipeline.
type Config struct {
	// Poll bounds job status polling.
	Poll bulk.PollOptions

	// Policy decides what happens to malformed result lines.
	// Default: fail_fast
	Policy stream.Policy

	// MaxLineBytes caps a single result line. Zero keeps the reader default.
	MaxLineBytes int

	// Paginate configures the paginated path.
	Paginate paginate.Config

	// Concurrency is the number of kinds RunBatch processes at once.
	// Upstream permits one current export job per shop, so values above 1
	// only make sense against a backend that lifts that limit.
	// Default: 1
	Concurrency int
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Poll:        bulk.DefaultPollOptions(),
		Policy:      stream.PolicyFailFast,
		Paginate:    paginate.DefaultConfig(),
		Concurrency: 1,
	}
}

// JobRecorder persists job state as a run progresses.
type JobRecorder interface {
	RecordJob(ctx context.Context, runID string, job *bulk.Job) error
}

// KindResult is the outcome of one kind's run.
type KindResult struct {
	Kind  resource.Kind
	RunID string
	Mode  Mode

	// Records are the canonical records, in entity arrival order.
	Records []record.Canonical

	// Job is the export job, nil on the paginated path or when submission
	// yielded no job. A job already FAILED at submission is kept.
	Job *bulk.Job

	// Skipped lists result lines dropped under the skip policy.
	Skipped []stream.LineError

	RawCount    int
	EntityCount int

	// Pages and Stagnated describe the paginated path.
	Pages     int
	Stagnated bool

	Err      error
	Duration time.Duration
}

// OK reports whether the kind completed without error.
func (r *KindResult) OK() bool {
	return r.Err == nil
}

// Pipeline wires the extraction stages together.
//
// A Pipeline is safe for concurrent use once configured.
type Pipeline struct {
	submitter *bulk.Submitter
	poller    *bulk.Poller
	reader    *stream.Reader
	pages     paginate.PageSource
	recorder  JobRecorder
	cfg       Config
	logger    *zap.Logger
}

// New creates a pipeline for the bulk path. Zero Config fields take defaults.
func New(client bulk.Client, opener provider.Opener, cfg Config) *Pipeline {
	def := DefaultConfig()
	if cfg.Poll.Interval <= 0 {
		cfg.Poll.Interval = def.Poll.Interval
	}
	if cfg.Poll.MaxAttempts <= 0 {
		cfg.Poll.MaxAttempts = def.Poll.MaxAttempts
	}
	if cfg.Policy == "" {
		cfg.Policy = def.Policy
	}
	if cfg.Paginate.PageSize <= 0 {
		cfg.Paginate.PageSize = def.Paginate.PageSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}

	reader := stream.NewReader(opener).WithPolicy(cfg.Policy)
	if cfg.MaxLineBytes > 0 {
		reader = reader.WithMaxLineBytes(cfg.MaxLineBytes)
	}

	p := &Pipeline{
		submitter: bulk.NewSubmitter(client),
		poller:    bulk.NewPoller(client),
		reader:    reader,
		cfg:       cfg,
		logger:    zap.NewNop(),
	}
	if ps, ok := client.(paginate.PageSource); ok {
		p.pages = ps
	}
	return p
}

// WithLogger sets the logger for the pipeline and its stages.
// Returns the pipeline for method chaining.
func (p *Pipeline) WithLogger(l *zap.Logger) *Pipeline {
	if l == nil {
		return p
	}
	p.logger = l
	p.submitter.WithLogger(l)
	p.poller.WithLogger(l)
	p.reader.WithLogger(l)
	return p
}

// WithPageSource overrides the source used by RunPaginated.
// Returns the pipeline for method chaining.
func (p *Pipeline) WithPageSource(ps paginate.PageSource) *Pipeline {
	p.pages = ps
	return p
}

// WithJobRecorder records job state after submission and after every
// status call, keyed by the kind's run id.
// Returns the pipeline for method chaining.
func (p *Pipeline) WithJobRecorder(r JobRecorder) *Pipeline {
	p.recorder = r
	return p
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Run extracts one kind through the bulk export path.
func (p *Pipeline) Run(ctx context.Context, kind resource.Kind) *KindResult {
	res := &KindResult{Kind: kind, RunID: uuid.NewString(), Mode: ModeBulk}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	log := p.logger.With(zap.String("kind", kind.String()), zap.String("run_id", res.RunID))

	st, err := resource.Lookup(kind)
	if err != nil {
		res.Err = err
		return res
	}

	job, err := p.submitter.Submit(ctx, kind)
	if job != nil {
		res.Job = job
		p.record(ctx, log, res.RunID, job)
	}
	if err != nil {
		res.Err = err
		log.Warn("Bulk job submission failed", zap.Error(err))
		return res
	}

	// Every status call is recorded under this run; the final job is
	// recorded again only when polling ended without a status update.
	var last *bulk.Job
	opts := p.cfg.Poll
	outer := opts.Observer
	opts.Observer = bulk.ObserverFunc(func(j *bulk.Job) {
		last = j
		p.record(ctx, log, res.RunID, j)
		if outer != nil {
			outer.OnPoll(j)
		}
	})

	final, err := p.poller.AwaitCompletion(ctx, job, opts)
	if final != nil {
		res.Job = final
		if last == nil || last.Attempts != final.Attempts || last.Status != final.Status {
			p.record(ctx, log, res.RunID, final)
		}
	}
	if err != nil {
		res.Err = err
		log.Warn("Bulk job did not complete", zap.Error(err))
		return res
	}

	streamed, err := p.reader.FetchRecords(ctx, final.ResultLocation)
	if streamed != nil {
		res.Skipped = streamed.Skipped
	}
	if err != nil {
		res.Err = err
		return res
	}

	p.finish(log, res, streamed.Records, st)
	return res
}

// RunPaginated extracts one kind through the cursor-paginated path.
func (p *Pipeline) RunPaginated(ctx context.Context, kind resource.Kind) *KindResult {
	res := &KindResult{Kind: kind, RunID: uuid.NewString(), Mode: ModePaginated}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	log := p.logger.With(zap.String("kind", kind.String()), zap.String("run_id", res.RunID))

	st, err := resource.Lookup(kind)
	if err != nil {
		res.Err = err
		return res
	}
	if p.pages == nil {
		res.Err = ErrNoPageSource
		return res
	}

	fetched, err := paginate.New(p.pages, p.cfg.Paginate).
		WithLogger(p.logger).
		FetchAll(ctx, kind, p.cfg.Paginate.PageSize)
	if fetched != nil {
		res.Pages = fetched.Pages
		res.Stagnated = fetched.Stagnated()
	}
	if err != nil {
		res.Err = err
		return res
	}
	if res.Stagnated {
		log.Warn("Pagination stopped early", zap.Error(fetched.Stagnation), zap.Int("pages", fetched.Pages))
	}

	p.finish(log, res, fetched.Records, st)
	return res
}

// RunBatch runs each kind and returns results in the order given.
// One kind's failure never prevents the others from running.
func (p *Pipeline) RunBatch(ctx context.Context, kinds []resource.Kind, mode Mode) []*KindResult {
	results := make([]*KindResult, len(kinds))
	run := p.Run
	if mode == ModePaginated {
		run = p.RunPaginated
	}

	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	for i, kind := range kinds {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[i] = &KindResult{Kind: kind, Mode: mode, Err: cancelled(ctx.Err())}
			continue
		}
		wg.Add(1)
		go func(i int, kind resource.Kind) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = run(ctx, kind)
		}(i, kind)
	}
	wg.Wait()
	return results
}

func (p *Pipeline) finish(log *zap.Logger, res *KindResult, raw []record.Raw, st resource.Strategy) {
	set := reconcile.Reconcile(raw, st)
	records, err := format.FormatAll(set.Entities(), st.Kind)
	if err != nil {
		res.Err = err
		return
	}
	res.Records = records
	res.RawCount = len(raw)
	res.EntityCount = set.Len()

	log.Info("Extracted kind",
		zap.String("mode", string(res.Mode)),
		zap.Int("raw_count", res.RawCount),
		zap.Int("entity_count", res.EntityCount),
		zap.Int("children", set.Children()),
		zap.Int("placeholders", set.Placeholders()),
		zap.Int("skipped", len(res.Skipped)))
}

func (p *Pipeline) record(ctx context.Context, log *zap.Logger, runID string, job *bulk.Job) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.RecordJob(ctx, runID, job); err != nil {
		log.Warn("Failed to record job state", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func cancelled(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.Join(bulk.ErrCancelled, err)
}
