package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gobulk/pkg/provider/s3"
	"github.com/3leaps/gobulk/pkg/stream"
	"github.com/3leaps/gobulk/pkg/upstream"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()
	t.Setenv("GOBULK_CONFIG", "")

	t.Run("LoadDefaults", func(t *testing.T) {
		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "console", cfg.Logging.Format)

		assert.Equal(t, 3*time.Second, cfg.Poll.Interval)
		assert.Equal(t, 200, cfg.Poll.MaxAttempts)
		assert.Equal(t, "fail_fast", cfg.Stream.Policy)
		assert.Equal(t, 50, cfg.Paginate.PageSize)
		assert.Equal(t, 1, cfg.Concurrency)
		assert.Equal(t, "SHOPIFY_ACCESS_TOKEN", cfg.Upstream.TokenEnv)
		assert.Equal(t, upstream.DefaultTokenHeader, cfg.Upstream.TokenHeader)
		assert.Empty(t, cfg.Store.Location)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "console", cfg.Logging.Format)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("GOBULK_PORT", "3000")
		t.Setenv("GOBULK_LOG_LEVEL", "warn")
		t.Setenv("GOBULK_POLL_INTERVAL", "500ms")
		t.Setenv("GOBULK_STREAM_POLICY", "skip")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, 500*time.Millisecond, cfg.Poll.Interval)
		assert.Equal(t, "skip", cfg.Stream.Policy)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		t.Setenv("GOBULK_PORT", "4000")

		cfg, err := Load(ctx, map[string]any{"server": map[string]any{"port": 5000}})
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Server.Port)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := Load(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLoadFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "gobulk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
upstream:
  endpoint: https://shop.example/admin/api/2024-01/graphql.json
poll:
  interval: 1s
  max_attempts: 10
concurrency: 2
`), 0o600))

	t.Run("FileValues", func(t *testing.T) {
		cfg, err := LoadFile(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, "https://shop.example/admin/api/2024-01/graphql.json", cfg.Upstream.Endpoint)
		assert.Equal(t, time.Second, cfg.Poll.Interval)
		assert.Equal(t, 10, cfg.Poll.MaxAttempts)
		assert.Equal(t, 2, cfg.Concurrency)
	})

	t.Run("EnvBeatsFile", func(t *testing.T) {
		t.Setenv("GOBULK_CONCURRENCY", "3")
		cfg, err := LoadFile(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.Concurrency)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadFile(ctx, filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestLoad_Invalid(t *testing.T) {
	ctx := context.Background()
	t.Setenv("GOBULK_CONFIG", "")

	tests := []struct {
		name      string
		overrides map[string]any
		want      string
	}{
		{"bad policy", map[string]any{"stream": map[string]any{"policy": "retry"}}, "stream.policy"},
		{"zero interval", map[string]any{"poll": map[string]any{"interval": "0s"}}, "poll.interval"},
		{"zero attempts", map[string]any{"poll": map[string]any{"max_attempts": 0}}, "poll.max_attempts"},
		{"page size", map[string]any{"paginate": map[string]any{"page_size": 500}}, "paginate.page_size"},
		{"concurrency", map[string]any{"concurrency": 9}, "concurrency"},
		{"port", map[string]any{"server": map[string]any{"port": 70000}}, "server.port"},
		{"log format", map[string]any{"logging": map[string]any{"format": "xml"}}, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(ctx, tt.overrides)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGetConfig(t *testing.T) {
	t.Setenv("GOBULK_CONFIG", "")
	cfg, err := Load(context.Background(), map[string]any{"server": map[string]any{"port": 8181}})
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
}

func TestEnvSpecs(t *testing.T) {
	names := make(map[string]string)
	for _, spec := range getEnvSpecs() {
		names[spec.Name] = spec.Key
	}

	assert.Equal(t, "logging.level", names["GOBULK_LOG_LEVEL"])
	assert.Equal(t, "server.port", names["GOBULK_PORT"])
	assert.Equal(t, "server.host", names["GOBULK_HOST"])
	assert.Equal(t, "upstream.endpoint", names["GOBULK_ENDPOINT"])
	assert.Equal(t, "store.location", names["GOBULK_STORE"])
	assert.Equal(t, "s3.endpoint", names["GOBULK_S3_ENDPOINT"])
	assert.Equal(t, "s3.force_path_style", names["GOBULK_S3_FORCE_PATH_STYLE"])
}

func TestPipelineConfig(t *testing.T) {
	t.Setenv("GOBULK_CONFIG", "")
	cfg, err := Load(context.Background(), map[string]any{
		"stream": map[string]any{"policy": "skip"},
		"poll":   map[string]any{"interval": "250ms", "max_attempts": 4},
	})
	require.NoError(t, err)

	pc, err := cfg.PipelineConfig()
	require.NoError(t, err)
	assert.Equal(t, stream.PolicySkip, pc.Policy)
	assert.Equal(t, 250*time.Millisecond, pc.Poll.Interval)
	assert.Equal(t, 4, pc.Poll.MaxAttempts)
	assert.Equal(t, 50, pc.Paginate.PageSize)
}

func TestUpstreamClientConfig(t *testing.T) {
	cfg := &Config{Upstream: UpstreamConfig{
		Endpoint:    "https://shop.example/graphql.json",
		TokenEnv:    "GOBULK_TEST_TOKEN",
		TokenHeader: "X-Token",
	}}

	t.Setenv("GOBULK_TEST_TOKEN", "")
	_, err := cfg.UpstreamClientConfig()
	require.Error(t, err)

	t.Setenv("GOBULK_TEST_TOKEN", "shpat_abc")
	uc, err := cfg.UpstreamClientConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example/graphql.json", uc.Endpoint)
	assert.Equal(t, upstream.TokenAuthorizer{Header: "X-Token", Token: "shpat_abc"}, uc.Authorizer)

	cfg.Upstream.Endpoint = ""
	_, err = cfg.UpstreamClientConfig()
	assert.Error(t, err)
}

func TestJobsDir(t *testing.T) {
	cfg := &Config{Jobs: JobsConfig{Dir: "/var/lib/gobulk/jobs"}}
	dir, err := cfg.JobsDir()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/gobulk/jobs", dir)

	dataHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)
	dir, err = (&Config{}).JobsDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dataHome, "gobulk", "jobs"), dir)

	home := t.TempDir()
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", home)
	dir, err = (&Config{}).JobsDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".local", "share", "gobulk", "jobs"), dir)

	t.Setenv("HOME", "")
	_, err = (&Config{}).JobsDir()
	assert.Error(t, err)
}

func TestS3Settings(t *testing.T) {
	ctx := context.Background()
	t.Setenv("GOBULK_CONFIG", "")

	t.Run("Defaults", func(t *testing.T) {
		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, s3.Config{}, cfg.S3ProviderConfig())
	})

	t.Run("Environment", func(t *testing.T) {
		t.Setenv("GOBULK_S3_ENDPOINT", "http://localhost:9000")
		t.Setenv("GOBULK_S3_REGION", "eu-west-1")
		t.Setenv("GOBULK_S3_PROFILE", "exports")
		t.Setenv("GOBULK_S3_FORCE_PATH_STYLE", "true")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, s3.Config{
			Endpoint:       "http://localhost:9000",
			Region:         "eu-west-1",
			Profile:        "exports",
			ForcePathStyle: true,
		}, cfg.S3ProviderConfig())
	})

	t.Run("ConfigFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "gobulk.yaml")
		require.NoError(t, os.WriteFile(path, []byte("s3:\n  region: ap-south-1\n  force_path_style: true\n"), 0o644))

		cfg, err := LoadFile(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, "ap-south-1", cfg.S3.Region)
		assert.True(t, cfg.S3.ForcePathStyle)
		assert.Empty(t, cfg.S3.Endpoint)
	})
}
