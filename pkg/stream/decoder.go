// Package stream decodes the newline-delimited result payload of a
// completed bulk export into raw records.
package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/3leaps/gobulk/pkg/record"
)

// DefaultMaxLineBytes bounds a single JSONL line.
const DefaultMaxLineBytes = 16 << 20

type Decoder struct {
	r            *bufio.Reader
	maxLineBytes int
	line         int
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r), maxLineBytes: DefaultMaxLineBytes}
}

func (d *Decoder) SetMaxLineBytes(n int) {
	if n <= 0 {
		d.maxLineBytes = DefaultMaxLineBytes
		return
	}
	d.maxLineBytes = n
}

// Line returns the number of physical lines consumed so far.
func (d *Decoder) Line() int {
	return d.line
}

// Next returns the next record, skipping blank lines.
//
// A line that cannot be decoded yields *RecordParseError; the line is fully
// consumed, so the caller may keep calling Next. io.EOF ends the stream.
func (d *Decoder) Next() (record.Raw, error) {
	for {
		line, err := readLineLimited(d.r, d.maxLineBytes)
		if errors.Is(err, io.EOF) {
			return record.Raw{}, io.EOF
		}
		d.line++
		if errors.Is(err, ErrLineTooLong) {
			return record.Raw{}, &RecordParseError{Line: d.line, Err: err}
		}
		if err != nil {
			return record.Raw{}, err
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		rec, err := record.Decode(line)
		if err != nil {
			return record.Raw{}, &RecordParseError{Line: d.line, Err: err}
		}
		return rec, nil
	}
}

// readLineLimited returns the next line without its terminator.
//
// An overlong line is discarded through its newline and reported as
// ErrLineTooLong so decoding can resume on the following line.
func readLineLimited(r *bufio.Reader, maxBytes int) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxLineBytes
	}

	var out []byte
	tooLong := false
	for {
		frag, err := r.ReadSlice('\n')
		if !tooLong {
			out = append(out, frag...)
			if len(bytes.TrimSuffix(out, []byte("\n"))) > maxBytes {
				tooLong = true
				out = nil
			}
		}
		if err == nil {
			if tooLong {
				return nil, ErrLineTooLong
			}
			return bytes.TrimSuffix(bytes.TrimSuffix(out, []byte("\n")), []byte("\r")), nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			if tooLong {
				return nil, ErrLineTooLong
			}
			if len(out) == 0 {
				return nil, io.EOF
			}
			return bytes.TrimSuffix(out, []byte("\r")), nil
		}
		return nil, err
	}
}
