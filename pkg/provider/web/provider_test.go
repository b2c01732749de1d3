package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gobulk/pkg/provider"
)

func TestOpen_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		_, _ = io.WriteString(w, "{\"id\":\"1\"}\n{\"id\":\"2\"}\n")
	}))
	defer srv.Close()

	p := New(Config{Header: http.Header{"X-Test": []string{"yes"}}})
	rc, err := p.Open(context.Background(), srv.URL+"/result.jsonl")
	require.NoError(t, err)
	defer rc.Close()

	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "{\"id\":\"1\"}\n{\"id\":\"2\"}\n", string(b))
}

func TestOpen_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, provider.ErrNotFound},
		{http.StatusUnauthorized, provider.ErrInvalidCredentials},
		{http.StatusForbidden, provider.ErrAccessDenied},
		{http.StatusTooManyRequests, provider.ErrThrottled},
		{http.StatusServiceUnavailable, provider.ErrProviderUnavailable},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := New(Config{}).Open(context.Background(), srv.URL+"/r.jsonl?X-Goog-Signature=secret")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.NotContains(t, err.Error(), "secret")
		})
	}
}

func TestOpen_OtherStatusIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	_, err := New(Config{}).Open(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, provider.IsProviderError(err))
	assert.False(t, provider.IsNotFound(err))
}

func TestOpen_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Config{}).Open(context.Background(), url)
	require.Error(t, err)
	assert.True(t, provider.IsProviderError(err))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "https://h/p?<redacted>", redact("https://h/p?sig=1"))
	assert.Equal(t, "https://h/p", redact("https://h/p"))
}
