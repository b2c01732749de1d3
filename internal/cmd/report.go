package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"go.uber.org/zap"

	"github.com/3leaps/gobulk/internal/observability"
	"github.com/3leaps/gobulk/pkg/output"
	"github.com/3leaps/gobulk/pkg/pipeline"
	"github.com/3leaps/gobulk/pkg/recordstore"
	"github.com/3leaps/gobulk/pkg/stream"
)

// emitResults writes every kind's job state, records or error, then the
// summary. Kinds are written in the order they were requested.
func emitResults(ctx context.Context, w output.Writer, results []*pipeline.KindResult, elapsed time.Duration) (*output.SummaryRecord, error) {
	sum := &output.SummaryRecord{Kinds: make([]output.KindSummary, 0, len(results))}

	for _, res := range results {
		kind := res.Kind.String()
		if res.Job != nil {
			if err := w.WriteJob(ctx, kind, output.NewJobRecord(res.Job)); err != nil {
				return nil, err
			}
		}

		ks := output.KindSummary{
			Kind:      kind,
			Mode:      string(res.Mode),
			OK:        res.OK(),
			Raw:       res.RawCount,
			Entities:  res.EntityCount,
			Skipped:   len(res.Skipped),
			Pages:     res.Pages,
			Stagnated: res.Stagnated,
		}

		if res.Err != nil {
			ks.Code = pipeline.Classify(res.Err)
			sum.Failed++
			if err := w.WriteError(ctx, kind, errorRecord(res, ks.Code)); err != nil {
				return nil, err
			}
		} else {
			for i := range res.Records {
				if err := w.WriteRecord(ctx, &res.Records[i]); err != nil {
					return nil, err
				}
			}
			sum.Records += len(res.Records)
		}
		sum.Kinds = append(sum.Kinds, ks)
	}

	sum.Duration = elapsed
	sum.DurationHuman = elapsed.Round(time.Millisecond).String()
	if err := w.WriteSummary(ctx, sum); err != nil {
		return nil, err
	}
	return sum, nil
}

func errorRecord(res *pipeline.KindResult, code string) *output.ErrorRecord {
	rec := &output.ErrorRecord{Code: code, Message: res.Err.Error()}
	if res.Job != nil {
		rec.JobID = res.Job.ID
	}
	var perr *stream.RecordParseError
	if errors.As(res.Err, &perr) {
		rec.Line = perr.Line
	}
	if len(res.Skipped) > 0 {
		rec.Details = map[string]any{"skipped": res.Skipped}
	}
	return rec
}

// persistResults saves each finished kind's run and records. Kinds that
// never started have no run id and are not stored.
func persistResults(ctx context.Context, db *sql.DB, results []*pipeline.KindResult) error {
	now := time.Now().UTC()
	var errs []error
	for _, res := range results {
		if res.RunID == "" {
			continue
		}
		ended := now
		run := recordstore.Run{
			RunID:       res.RunID,
			Kind:        res.Kind.String(),
			Mode:        string(res.Mode),
			StartedAt:   now.Add(-res.Duration),
			EndedAt:     &ended,
			Status:      recordstore.RunStatusSuccess,
			RawCount:    res.RawCount,
			EntityCount: res.EntityCount,
		}
		if res.Job != nil {
			run.JobID = res.Job.ID
		}
		records := res.Records
		if res.Err != nil {
			run.Status = recordstore.RunStatusFailed
			run.ErrorCode = pipeline.Classify(res.Err)
			records = nil
		}
		if err := recordstore.SaveRun(ctx, db, run, records); err != nil {
			errs = append(errs, fmt.Errorf("save %s run: %w", run.Kind, err))
			continue
		}
		observability.CLILogger.Debug("Saved run to record store",
			zap.String("run_id", run.RunID),
			zap.String("kind", run.Kind),
			zap.Int("records", len(records)))
	}
	return errors.Join(errs...)
}

// batchExitError maps a batch outcome to a process error. A batch in which
// some kinds succeeded exits with ExitExternalServiceUnavailable; a batch in
// which every kind failed exits with the first failure's code.
func batchExitError(ctx context.Context, results []*pipeline.KindResult) error {
	var first *pipeline.KindResult
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			if first == nil {
				first = res
			}
		}
	}
	if failed == 0 {
		return nil
	}
	if ctx.Err() != nil {
		return exitError(foundry.ExitSignalInt, "Extraction cancelled", ctx.Err())
	}

	msg := fmt.Sprintf("%d of %d kinds failed", failed, len(results))
	if failed < len(results) {
		return exitError(foundry.ExitExternalServiceUnavailable, msg, first.Err)
	}
	return exitError(exitCodeFor(pipeline.Classify(first.Err)), msg, first.Err)
}

func exitCodeFor(code string) int {
	switch code {
	case pipeline.CodeUnsupportedKind:
		return int(foundry.ExitInvalidArgument)
	case pipeline.CodeCancelled:
		return int(foundry.ExitSignalInt)
	case pipeline.CodeRecordParse:
		return int(foundry.ExitFileReadError)
	default:
		return int(foundry.ExitExternalServiceUnavailable)
	}
}
