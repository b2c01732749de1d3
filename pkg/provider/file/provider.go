// Package file opens result payloads stored on the local filesystem.
package file

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/3leaps/gobulk/pkg/provider"
)

// Provider opens file:// locations and bare paths.
type Provider struct {
	baseDir string
}

var _ provider.Opener = (*Provider)(nil)

// Config configures a file provider.
type Config struct {
	// BaseDir, when set, confines every opened path to this directory and
	// resolves relative paths against it.
	BaseDir string
}

// New creates a file provider.
func New(cfg Config) *Provider {
	base := strings.TrimSpace(cfg.BaseDir)
	if base != "" {
		base = filepath.Clean(base)
	}
	return &Provider{baseDir: base}
}

// Open implements provider.Opener.
func (p *Provider) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, p.wrapError(location, err)
	}
	path, err := p.resolve(location)
	if err != nil {
		return nil, p.wrapError(location, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, p.wrapError(location, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, p.wrapError(location, err)
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, &provider.ProviderError{Op: "Open", Provider: provider.ProviderFile, Location: location, Err: provider.ErrNotFound}
	}
	return f, nil
}

func (p *Provider) resolve(location string) (string, error) {
	path := strings.TrimSpace(location)
	if strings.HasPrefix(strings.ToLower(path), "file://") {
		u, err := url.Parse(path)
		if err != nil {
			return "", fmt.Errorf("parse file location: %w", err)
		}
		if u.Host != "" && u.Host != "localhost" {
			return "", fmt.Errorf("remote file host %q not supported", u.Host)
		}
		path = u.Path
	}
	if path == "" {
		return "", fmt.Errorf("empty file path")
	}
	if p.baseDir == "" {
		return filepath.Clean(path), nil
	}

	// Prevent path traversal out of the base directory.
	var full string
	if filepath.IsAbs(path) {
		full = filepath.Clean(path)
	} else {
		full = filepath.Join(p.baseDir, filepath.Clean("/"+path))
	}
	rel, err := filepath.Rel(p.baseDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes base dir", location)
	}
	return full, nil
}

func (p *Provider) wrapError(location string, err error) error {
	wrapped := &provider.ProviderError{Op: "Open", Provider: provider.ProviderFile, Location: location, Err: err}
	switch {
	case os.IsNotExist(err):
		wrapped.Err = provider.ErrNotFound
	case os.IsPermission(err):
		wrapped.Err = provider.ErrAccessDenied
	}
	return wrapped
}
