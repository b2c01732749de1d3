package stream

import (
	"errors"
	"fmt"
	"strings"

	"github.com/3leaps/gobulk/pkg/record"
)

// Policy decides what happens to a line that fails to decode.
type Policy string

const (
	// PolicyFailFast aborts the whole fetch on the first bad line.
	PolicyFailFast Policy = "fail_fast"

	// PolicySkip records the bad line in Result.Skipped and continues.
	PolicySkip Policy = "skip"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyFailFast:
		return PolicyFailFast, nil
	case PolicySkip:
		return PolicySkip, nil
	}
	return "", fmt.Errorf("unknown parse policy %q (want %s or %s)", s, PolicyFailFast, PolicySkip)
}

var (
	ErrRecordParse = errors.New("result record parse error")
	ErrLineTooLong = errors.New("jsonl line exceeds max bytes")
)

// RecordParseError reports the 1-based physical line that failed to decode.
type RecordParseError struct {
	Line int
	Err  error
}

func (e *RecordParseError) Error() string {
	return fmt.Sprintf("%s at line %d: %v", ErrRecordParse, e.Line, e.Err)
}

func (e *RecordParseError) Unwrap() []error {
	return []error{ErrRecordParse, e.Err}
}

func IsRecordParse(err error) bool {
	return errors.Is(err, ErrRecordParse)
}

// LineError is a skipped line under PolicySkip.
type LineError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

type Result struct {
	// Records are in file order, which says nothing about parent/child order.
	Records []record.Raw

	Skipped []LineError

	// Lines counts physical lines read, blank ones included.
	Lines int
}
