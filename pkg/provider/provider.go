// Package provider retrieves bulk export result payloads.
//
// A result location is a URI; the scheme selects the Opener that fetches
// it. Providers only read. Authentication uses SDK default credential
// chains or pre-signed URLs; providers do not implement custom auth logic.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
)

// Opener streams the payload at a location.
//
// Implementations should:
//   - Return ErrNotFound when nothing exists at the location
//   - Honor ctx for the whole lifetime of the returned body
//   - Be safe for concurrent use
type Opener interface {
	// Open returns the payload body. The caller must close it.
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, location string) (io.ReadCloser, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	return f(ctx, location)
}

// ProviderType identifies a payload provider.
type ProviderType string

const (
	// ProviderHTTP fetches http and https URLs (pre-signed export URLs).
	ProviderHTTP ProviderType = "http"

	// ProviderS3 represents AWS S3 or S3-compatible storage.
	ProviderS3 ProviderType = "s3"

	// ProviderFile represents local filesystem paths.
	ProviderFile ProviderType = "file"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}

// Registry dispatches Open to the opener registered for a location's scheme.
//
// Locations without a scheme are treated as local file paths.
type Registry struct {
	mu      sync.RWMutex
	openers map[string]Opener
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{openers: make(map[string]Opener)}
}

// Register associates an opener with one or more URI schemes.
// Returns the registry for method chaining.
func (r *Registry) Register(o Opener, schemes ...string) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range schemes {
		r.openers[strings.ToLower(s)] = o
	}
	return r
}

// Schemes returns the registered schemes.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.openers))
	for s := range r.openers {
		out = append(out, s)
	}
	return out
}

// Open implements Opener.
func (r *Registry) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	scheme, err := Scheme(location)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	o, ok := r.openers[scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	return o.Open(ctx, location)
}

// Scheme returns the lower-cased scheme of location, "file" for bare paths.
func Scheme(location string) (string, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "", errors.New("empty location")
	}
	if filepath.IsAbs(location) || !strings.Contains(location, "://") {
		return string(ProviderFile), nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse location: %w", err)
	}
	return strings.ToLower(u.Scheme), nil
}
