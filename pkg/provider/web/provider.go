// Package web opens result payloads served over http and https, such as the
// pre-signed URLs a completed export job reports.
package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/3leaps/gobulk/pkg/provider"
)

// maxErrorBody bounds how much of a failed response body is kept.
const maxErrorBody = 1 << 10

// Config configures a web provider.
type Config struct {
	// HTTPClient overrides the HTTP client.
	HTTPClient *http.Client

	// Timeout applies when HTTPClient is nil. It covers the whole body
	// download, so it must allow for large exports.
	// Default: 30m
	Timeout time.Duration

	// Header is added to every request (e.g. an authorization header for
	// non-signed mirrors).
	Header http.Header
}

// Provider opens http and https locations with GET.
type Provider struct {
	client *http.Client
	header http.Header
}

var _ provider.Opener = (*Provider)(nil)

// New creates a web provider.
func New(cfg Config) *Provider {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Minute
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Provider{client: hc, header: cfg.Header.Clone()}
}

// Open implements provider.Opener.
func (p *Provider) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, p.wrapError(location, 0, err)
	}
	for k, vs := range p.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, p.wrapError(location, 0, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return resp.Body, nil
	}

	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, p.wrapError(location, resp.StatusCode,
		fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(snippet))))
}

// wrapError maps HTTP statuses to provider sentinel errors.
func (p *Provider) wrapError(location string, status int, err error) error {
	wrapped := &provider.ProviderError{
		Op:       "Open",
		Provider: provider.ProviderHTTP,
		Location: redact(location),
		Err:      err,
	}
	switch {
	case status == http.StatusNotFound, status == http.StatusGone:
		wrapped.Err = fmt.Errorf("%w: %w", provider.ErrNotFound, err)
	case status == http.StatusUnauthorized:
		wrapped.Err = fmt.Errorf("%w: %w", provider.ErrInvalidCredentials, err)
	case status == http.StatusForbidden:
		wrapped.Err = fmt.Errorf("%w: %w", provider.ErrAccessDenied, err)
	case status == http.StatusTooManyRequests:
		wrapped.Err = fmt.Errorf("%w: %w", provider.ErrThrottled, err)
	case status >= 500:
		wrapped.Err = fmt.Errorf("%w: %w", provider.ErrProviderUnavailable, err)
	}
	return wrapped
}

// redact drops the query string, which carries the signature of a
// pre-signed URL.
func redact(location string) string {
	if i := strings.IndexByte(location, '?'); i >= 0 {
		return location[:i] + "?<redacted>"
	}
	return location
}
