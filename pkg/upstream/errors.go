package upstream

import (
	"errors"
	"fmt"
)

// ErrNetwork indicates a failed call to the upstream API.
//
// Transport failures, non-2xx responses and top-level GraphQL errors all
// match ErrNetwork. The calls are not retried.
var ErrNetwork = errors.New("upstream network error")

// NetworkError wraps an upstream call failure with context.
type NetworkError struct {
	// Op is the call that failed (e.g., "RunBulkQuery").
	Op string

	// StatusCode is the HTTP status, zero when no response was received.
	StatusCode int

	// Cause is the underlying failure.
	Cause error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: http %d: %v", ErrNetwork, e.Op, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("%s %s: %v", ErrNetwork, e.Op, e.Cause)
}

// Unwrap returns both ErrNetwork and the cause for errors.Is/As support.
func (e *NetworkError) Unwrap() []error {
	return []error{ErrNetwork, e.Cause}
}

// IsNetwork returns true if the error is an upstream call failure.
func IsNetwork(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// GraphQLError is one entry of a response's top-level errors list.
type GraphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// GraphQLErrors is the top-level errors list of a response.
type GraphQLErrors []GraphQLError

// Error implements the error interface.
func (g GraphQLErrors) Error() string {
	if len(g) == 0 {
		return "graphql error"
	}
	if len(g) == 1 {
		return "graphql error: " + g[0].Message
	}
	return fmt.Sprintf("graphql error: %s (and %d more)", g[0].Message, len(g)-1)
}
