package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gobulk/pkg/recordstore"
)

func TestSignalHealthChecker(t *testing.T) {
	assert.NoError(t, signalHealthChecker{}.CheckHealth(context.Background()))
}

func TestIdentityHealthChecker(t *testing.T) {
	tests := []struct {
		name    string
		checker identityHealthChecker
		wantErr string
	}{
		{"complete", identityHealthChecker{"gobulk", "GOBULK", "gobulk"}, ""},
		{"no binary", identityHealthChecker{"", "GOBULK", "gobulk"}, "missing binary name"},
		{"no prefix", identityHealthChecker{"gobulk", "", "gobulk"}, "missing env prefix"},
		{"no config", identityHealthChecker{"gobulk", "GOBULK", ""}, "missing config name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.checker.CheckHealth(context.Background())
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestUpstreamHealthChecker(t *testing.T) {
	assert.NoError(t, upstreamHealthChecker{}.CheckHealth(context.Background()))

	cause := errors.New("endpoint is required")
	err := upstreamHealthChecker{err: cause}.CheckHealth(context.Background())
	assert.ErrorIs(t, err, cause)
}

func TestStoreHealthChecker(t *testing.T) {
	assert.Error(t, storeHealthChecker{}.CheckHealth(context.Background()))

	ctx := context.Background()
	db, err := recordstore.Open(ctx, recordstore.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	assert.NoError(t, storeHealthChecker{db: db}.CheckHealth(ctx))
}
