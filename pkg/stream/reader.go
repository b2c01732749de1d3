package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/3leaps/gobulk/pkg/provider"
)

// Reader fetches and decodes result payloads.
type Reader struct {
	opener       provider.Opener
	policy       Policy
	maxLineBytes int
	logger       *zap.Logger
}

func NewReader(o provider.Opener) *Reader {
	return &Reader{
		opener:       o,
		policy:       PolicyFailFast,
		maxLineBytes: DefaultMaxLineBytes,
		logger:       zap.NewNop(),
	}
}

func (r *Reader) WithPolicy(p Policy) *Reader {
	if p != "" {
		r.policy = p
	}
	return r
}

func (r *Reader) WithMaxLineBytes(n int) *Reader {
	if n > 0 {
		r.maxLineBytes = n
	}
	return r
}

func (r *Reader) WithLogger(l *zap.Logger) *Reader {
	if l != nil {
		r.logger = l
	}
	return r
}

// FetchRecords opens location and decodes every line.
//
// An empty location stands for an export with no objects and yields an
// empty result.
func (r *Reader) FetchRecords(ctx context.Context, location string) (*Result, error) {
	if location == "" {
		return &Result{}, nil
	}

	body, err := r.opener.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return r.ReadRecords(ctx, body)
}

// ReadRecords decodes an already opened payload.
func (r *Reader) ReadRecords(ctx context.Context, body io.Reader) (*Result, error) {
	dec := NewDecoder(body)
	dec.SetMaxLineBytes(r.maxLineBytes)

	res := &Result{}
	for {
		if err := ctx.Err(); err != nil {
			res.Lines = dec.Line()
			return res, err
		}

		rec, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		var perr *RecordParseError
		if errors.As(err, &perr) {
			if r.policy != PolicySkip {
				res.Lines = dec.Line()
				return res, err
			}
			r.logger.Warn("Skipping malformed result line",
				zap.Int("line", perr.Line),
				zap.Error(perr.Err))
			res.Skipped = append(res.Skipped, LineError{Line: perr.Line, Reason: perr.Err.Error()})
			continue
		}
		if err != nil {
			res.Lines = dec.Line()
			return res, fmt.Errorf("read result payload: %w", err)
		}

		res.Records = append(res.Records, rec)
	}

	res.Lines = dec.Line()
	r.logger.Debug("Decoded result payload",
		zap.Int("lines", res.Lines),
		zap.Int("records", len(res.Records)),
		zap.Int("skipped", len(res.Skipped)))
	return res, nil
}
