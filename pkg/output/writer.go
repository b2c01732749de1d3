package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/3leaps/gobulk/pkg/record"
)

// Writer outputs JSONL lines for an extraction run.
//
// Implementations must be safe for concurrent use. Each Write* method
// emits one complete line.
type Writer interface {
	WriteRecord(ctx context.Context, rec *record.Canonical) error
	WriteJob(ctx context.Context, kind string, job *JobRecord) error
	WriteError(ctx context.Context, kind string, err *ErrorRecord) error
	WriteSummary(ctx context.Context, sum *SummaryRecord) error
	Close() error
}

// JSONLWriter writes envelopes as newline-delimited JSON to an io.Writer.
//
// Writes are serialized with a mutex so lines never interleave.
type JSONLWriter struct {
	w      io.Writer
	runID  string
	mu     sync.Mutex
	closed bool
	now    func() time.Time
}

// NewJSONLWriter creates a writer that stamps every line with runID.
func NewJSONLWriter(w io.Writer, runID string) *JSONLWriter {
	return &JSONLWriter{
		w:     w,
		runID: runID,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WriteRecord emits a canonical record.
func (jw *JSONLWriter) WriteRecord(ctx context.Context, rec *record.Canonical) error {
	return jw.write(ctx, TypeRecord, rec.Kind, rec)
}

// WriteJob emits a job state update.
func (jw *JSONLWriter) WriteJob(ctx context.Context, kind string, job *JobRecord) error {
	return jw.write(ctx, TypeJob, kind, job)
}

// WriteError emits an error record.
func (jw *JSONLWriter) WriteError(ctx context.Context, kind string, err *ErrorRecord) error {
	return jw.write(ctx, TypeError, kind, err)
}

// WriteSummary emits the summary record.
func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.write(ctx, TypeSummary, "", sum)
}

// Close marks the writer as closed. The underlying writer is not closed.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	jw.closed = true
	return nil
}

func (jw *JSONLWriter) write(ctx context.Context, typ, kind string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}

	line, err := json.Marshal(Envelope{
		Type:  typ,
		TS:    jw.now(),
		RunID: jw.runID,
		Kind:  kind,
		Data:  payload,
	})
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	// io.Writer may report a short write with a nil error.
	line = append(line, '\n')
	if err := writeAll(jw.w, line); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

var _ Writer = (*JSONLWriter)(nil)
