package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gobulk/internal/config"
	"github.com/3leaps/gobulk/pkg/manifest"
	"github.com/3leaps/gobulk/pkg/pipeline"
	"github.com/3leaps/gobulk/pkg/provider"
	"github.com/3leaps/gobulk/pkg/provider/s3"
)

func TestNewOpener_Schemes(t *testing.T) {
	assert.ElementsMatch(t, []string{"file", "http", "https", "s3"}, newOpener(s3.Config{}).Schemes())
}

func TestNewOpener_UsesS3Settings(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	t.Setenv("AWS_CONFIG_FILE", empty)
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", empty)
	t.Setenv("AWS_PROFILE", "")

	opener := newOpener(s3.Config{Profile: "gobulk-missing-profile", Region: "us-east-1"})

	for range 2 {
		_, err := opener.Open(t.Context(), "s3://exports/result.jsonl")
		require.Error(t, err)
		var pe *provider.ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "New", pe.Op)
		assert.Equal(t, provider.ProviderS3, pe.Provider)
	}
}

func TestApplyManifest_OverlaysS3(t *testing.T) {
	cfg := &config.Config{
		Jobs: config.JobsConfig{Dir: t.TempDir()},
		S3:   config.S3Config{Region: "us-west-2", Profile: "exports"},
	}
	plan, err := planFromConfig(cfg, pipeline.ModeBulk)
	require.NoError(t, err)
	assert.Equal(t, s3.Config{Region: "us-west-2", Profile: "exports"}, plan.s3)

	m, err := manifest.LoadFromBytes([]byte(`version: "1.0"
connection:
  endpoint: https://shop.example/admin/api/2024-01/graphql.json
  s3:
    endpoint: http://minio:9000
    force_path_style: true
kinds: [PRODUCTS]
`), "extract.yaml")
	require.NoError(t, err)

	require.NoError(t, applyManifest(plan, m, pipeline.ModeBulk))
	assert.Equal(t, s3.Config{
		Endpoint:       "http://minio:9000",
		Region:         "us-west-2",
		Profile:        "exports",
		ForcePathStyle: true,
	}, plan.s3)
}
