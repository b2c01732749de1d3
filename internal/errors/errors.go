// Package errors serves gofulmen error envelopes as JSON HTTP responses.
//
// An AppError pairs an envelope with the HTTP status it is served with.
// Handlers build one with the constructors below and hand it to
// RespondWithError; the request id becomes the envelope's correlation id.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	gferrors "github.com/fulmenhq/gofulmen/errors"
)

// HTTPErrorResponse is the JSON body of every error response.
type HTTPErrorResponse struct {
	Error HTTPErrorBody `json:"error"`
}

// HTTPErrorBody carries the envelope code, message, details and the
// correlation id of the request that failed.
type HTTPErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// AppError is an error envelope with an HTTP status.
type AppError struct {
	*gferrors.ErrorEnvelope
	Status int
	Err    error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetails records d on the envelope and returns e. Entries the
// envelope context accepts are also set as context; the rest are kept in
// the envelope details only.
func (e *AppError) WithDetails(d map[string]any) *AppError {
	e.ErrorEnvelope.WithDetails(d)
	_, _ = e.ErrorEnvelope.WithContext(d)
	return e
}

// New returns an AppError for status with a fresh envelope.
func New(status int, code, message string) *AppError {
	return FromEnvelope(gferrors.NewErrorEnvelope(code, message), status)
}

// FromEnvelope serves env with status. The envelope severity is derived
// from status when env has none.
func FromEnvelope(env *gferrors.ErrorEnvelope, status int) *AppError {
	if env.Severity == "" {
		_, _ = env.WithSeverity(severityFor(status))
	}
	return &AppError{ErrorEnvelope: env, Status: status}
}

func severityFor(status int) gferrors.Severity {
	switch {
	case status >= 500:
		return gferrors.SeverityHigh
	case status >= 400:
		return gferrors.SeverityLow
	default:
		return gferrors.SeverityInfo
	}
}

func NewNotFound(message string) *AppError {
	return New(http.StatusNotFound, "NOT_FOUND", message)
}

func NewMethodNotAllowed(message string) *AppError {
	return New(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", message)
}

func NewBadRequest(code, message string) *AppError {
	return New(http.StatusBadRequest, code, message)
}

func NewServiceUnavailable(message string) *AppError {
	return New(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message)
}

// NewExternalServiceError reports a failing upstream dependency.
func NewExternalServiceError(message string) *AppError {
	return New(http.StatusBadGateway, "EXTERNAL_SERVICE_ERROR", message)
}

// WrapInternal wraps err as a 500 INTERNAL_ERROR correlated with the
// request id in ctx.
func WrapInternal(ctx context.Context, err error, message string) *AppError {
	e := New(http.StatusInternalServerError, "INTERNAL_ERROR", message)
	e.Err = err
	e.WithOriginal(err)
	if id := RequestIDFrom(ctx); id != "" {
		e.WithCorrelationID(id)
	}
	return e
}

type requestIDKey struct{}

// WithRequestID stores id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id stored in ctx, if any.
func RequestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RespondWithError writes err as an HTTPErrorResponse.
//
// An *AppError is served with its own status. A bare envelope is served
// as 500. Any other error becomes 500 INTERNAL_ERROR without its text.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		appErr *AppError
		env    *gferrors.ErrorEnvelope
	)
	switch {
	case errors.As(err, &appErr):
	case errors.As(err, &env):
		appErr = FromEnvelope(env, http.StatusInternalServerError)
	default:
		appErr = New(http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		appErr.Err = err
	}

	if appErr.CorrelationID == "" {
		if id := RequestIDFrom(r.Context()); id != "" {
			appErr.WithCorrelationID(id)
		}
	}
	WriteEnvelope(w, appErr.ErrorEnvelope, appErr.Status)
}

// WriteEnvelope writes env with status. Envelope details and context are
// merged into the response details, context winning on conflicts.
func WriteEnvelope(w http.ResponseWriter, env *gferrors.ErrorEnvelope, status int) {
	msg := env.Message
	if msg == "" {
		msg = http.StatusText(status)
	}

	var details map[string]any
	if len(env.Details)+len(env.Context) > 0 {
		details = make(map[string]any, len(env.Details)+len(env.Context))
		for k, v := range env.Details {
			details[k] = v
		}
		for k, v := range env.Context {
			details[k] = v
		}
	}

	WriteJSON(w, status, HTTPErrorResponse{Error: HTTPErrorBody{
		Code:      env.Code,
		Message:   msg,
		Details:   details,
		RequestID: env.CorrelationID,
	}})
}

// WriteJSON writes v with status and a JSON content type.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
