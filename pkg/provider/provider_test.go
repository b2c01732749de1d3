package provider

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticOpener(body string) Opener {
	return OpenerFunc(func(_ context.Context, _ string) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(body)), nil
	})
}

func TestScheme(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://storage.example/r.jsonl?sig=1", "https", false},
		{"HTTP://x/y", "http", false},
		{"s3://bucket/key", "s3", false},
		{"file:///tmp/r.jsonl", "file", false},
		{"/tmp/r.jsonl", "file", false},
		{"relative/r.jsonl", "file", false},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Scheme(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry_Dispatch(t *testing.T) {
	r := NewRegistry().
		Register(staticOpener("web"), "http", "https").
		Register(staticOpener("local"), "file")

	rc, err := r.Open(context.Background(), "https://h/p")
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "web", string(b))

	rc, err = r.Open(context.Background(), "/var/tmp/x.jsonl")
	require.NoError(t, err)
	b, _ = io.ReadAll(rc)
	assert.Equal(t, "local", string(b))

	assert.ElementsMatch(t, []string{"http", "https", "file"}, r.Schemes())
}

func TestRegistry_UnsupportedScheme(t *testing.T) {
	_, err := NewRegistry().Open(context.Background(), "gs://bucket/key")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedScheme))
}

func TestProviderError(t *testing.T) {
	err := &ProviderError{Op: "Open", Provider: ProviderS3, Location: "s3://b/k", Err: ErrNotFound}
	assert.Equal(t, "s3 Open: s3://b/k: object not found", err.Error())
	assert.True(t, IsNotFound(err))
	assert.True(t, IsProviderError(err))
	assert.False(t, IsAccessDenied(err))

	bare := &ProviderError{Op: "New", Provider: ProviderS3, Err: ErrInvalidCredentials}
	assert.Equal(t, "s3 New: invalid credentials", bare.Error())
	assert.True(t, IsInvalidCredentials(bare))
}
