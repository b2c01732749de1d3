package pipeline

import (
	"context"
	"errors"

	"github.com/3leaps/gobulk/pkg/bulk"
	"github.com/3leaps/gobulk/pkg/provider"
	"github.com/3leaps/gobulk/pkg/resource"
	"github.com/3leaps/gobulk/pkg/stream"
	"github.com/3leaps/gobulk/pkg/upstream"
)

// Error codes reported for failed kinds.
const (
	CodeUnsupportedKind = "UNSUPPORTED_KIND"
	CodeJobRejected     = "JOB_REJECTED"
	CodeJobFailed       = "JOB_FAILED"
	CodePollTimeout     = "POLL_TIMEOUT"
	CodeCancelled       = "CANCELLED"
	CodeTimeout         = "TIMEOUT"
	CodeRecordParse     = "RECORD_PARSE"
	CodeNetwork         = "NETWORK"
	CodeInternal        = "INTERNAL"
)

// Classify maps an error to a stable code. A nil error yields "".
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case resource.IsUnsupportedKind(err):
		return CodeUnsupportedKind
	case bulk.IsJobRejected(err):
		return CodeJobRejected
	case bulk.IsJobFailed(err):
		return CodeJobFailed
	case bulk.IsPollTimeout(err):
		return CodePollTimeout
	case bulk.IsCancelled(err), errors.Is(err, context.Canceled):
		return CodeCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case stream.IsRecordParse(err):
		return CodeRecordParse
	case upstream.IsNetwork(err), provider.IsProviderError(err):
		return CodeNetwork
	default:
		return CodeInternal
	}
}
