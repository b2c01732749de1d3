package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gobulk/pkg/pipeline"
	"github.com/3leaps/gobulk/pkg/provider/s3"
	"github.com/3leaps/gobulk/pkg/resource"
	"github.com/3leaps/gobulk/pkg/stream"
)

const minimalYAML = `version: "1.0"
connection:
  endpoint: https://shop.example/admin/api/2024-01/graphql.json
kinds: [products]
`

const minimalJSON = `{
  "version": "1.0",
  "connection": {"endpoint": "https://shop.example/admin/api/2024-01/graphql.json"},
  "kinds": ["orders"]
}`

const fullYAML = `$schema: https://schemas.3leaps.dev/gobulk/v1.0.0/extraction-manifest.schema.json
version: "1.0"
connection:
  endpoint: https://shop.example/admin/api/2024-01/graphql.json
  token_env: SHOP_TOKEN
  token_header: X-Access-Token
  rate_limit: 2
  timeout: 10s
kinds: [products, Order, customers, orders]
mode: paginated
concurrency: 2
poll:
  interval: 500ms
  max_attempts: 20
stream:
  policy: skip
  max_line_bytes: 2048
paginate:
  page_size: 25
  max_pages: 4
output:
  destination: out/records.jsonl
  store: sqlite://out/records.db
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MinimalAppliesDefaults(t *testing.T) {
	m, err := Load(writeFile(t, "extract.yaml", minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, DefaultMode, m.Mode)
	assert.Equal(t, DefaultConcurrency, m.Concurrency)
	assert.Equal(t, DefaultTokenEnv, m.Connection.TokenEnv)
	assert.Equal(t, "X-Shopify-Access-Token", m.Connection.TokenHeader)
	assert.Equal(t, "3s", m.Poll.Interval)
	assert.Equal(t, 200, m.Poll.MaxAttempts)
	assert.Equal(t, "fail_fast", m.Stream.Policy)
	assert.Equal(t, 50, m.Paginate.PageSize)
	assert.Equal(t, "stdout", m.Output.Destination)
	assert.NotEmpty(t, m.Path)

	cfg, err := m.PipelineConfig()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Poll.Interval)
	assert.Equal(t, stream.PolicyFailFast, cfg.Policy)
}

func TestLoad_JSON(t *testing.T) {
	m, err := Load(writeFile(t, "extract.json", minimalJSON))
	require.NoError(t, err)
	kinds, err := m.ResourceKinds()
	require.NoError(t, err)
	assert.Equal(t, []resource.Kind{resource.KindOrders}, kinds)
}

func TestLoad_Full(t *testing.T) {
	m, err := Load(writeFile(t, "extract.yml", fullYAML))
	require.NoError(t, err)

	kinds, err := m.ResourceKinds()
	require.NoError(t, err)
	assert.Equal(t, []resource.Kind{resource.KindProducts, resource.KindOrders, resource.KindCustomers}, kinds)
	assert.Equal(t, pipeline.ModePaginated, m.PipelineMode())

	cfg, err := m.PipelineConfig()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.Poll.Interval)
	assert.Equal(t, 20, cfg.Poll.MaxAttempts)
	assert.Equal(t, stream.PolicySkip, cfg.Policy)
	assert.Equal(t, 2048, cfg.MaxLineBytes)
	assert.Equal(t, 25, cfg.Paginate.PageSize)
	assert.Equal(t, 4, cfg.Paginate.MaxPages)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, "sqlite://out/records.db", m.Output.Store)
}

func TestLoad_KindsAnyCase(t *testing.T) {
	tests := []struct {
		kinds string
		want  []resource.Kind
	}{
		{"[PRODUCT]", []resource.Kind{resource.KindProducts}},
		{"[Order, Customers]", []resource.Kind{resource.KindOrders, resource.KindCustomers}},
		{"[products, PRODUCTS, product]", []resource.Kind{resource.KindProducts}},
	}
	for _, tt := range tests {
		t.Run(tt.kinds, func(t *testing.T) {
			content := strings.Replace(minimalYAML, "[products]", tt.kinds, 1)
			m, err := LoadFromBytes([]byte(content), "extract.yaml")
			require.NoError(t, err)

			kinds, err := m.ResourceKinds()
			require.NoError(t, err)
			assert.Equal(t, tt.want, kinds)
		})
	}
}

func TestLoad_UnknownKindReportsPath(t *testing.T) {
	content := strings.Replace(minimalYAML, "[products]", "[Products, Invoices]", 1)
	_, err := LoadFromBytes([]byte(content), "extract.yaml")
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, "/kinds", verrs[0].Path)
	assert.Contains(t, err.Error(), "Invoices")
}

func TestS3ProviderConfig(t *testing.T) {
	base := s3.Config{Region: "us-east-2", Profile: "default", ForcePathStyle: true}

	m, err := LoadFromBytes([]byte(minimalYAML), "extract.yaml")
	require.NoError(t, err)
	assert.Equal(t, base, m.S3ProviderConfig(base))

	content := strings.Replace(minimalYAML, "kinds:", `  s3:
    endpoint: http://minio:9000
    region: eu-central-1
    force_path_style: false
kinds:`, 1)
	m, err = LoadFromBytes([]byte(content), "extract.yaml")
	require.NoError(t, err)
	assert.Equal(t, s3.Config{
		Endpoint:       "http://minio:9000",
		Region:         "eu-central-1",
		Profile:        "default",
		ForcePathStyle: false,
	}, m.S3ProviderConfig(base))

	bad := strings.Replace(minimalYAML, "kinds:", "  s3:\n    bucket: x\nkinds:", 1)
	_, err = LoadFromBytes([]byte(bad), "extract.yaml")
	assert.Error(t, err)
}

func TestUpstreamConfig(t *testing.T) {
	m, err := LoadFromBytes([]byte(fullYAML), "extract.yaml")
	require.NoError(t, err)

	t.Setenv("SHOP_TOKEN", "")
	_, err = m.UpstreamConfig()
	require.Error(t, err)

	t.Setenv("SHOP_TOKEN", "shpat_x")
	cfg, err := m.UpstreamConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example/admin/api/2024-01/graphql.json", cfg.Endpoint)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 2.0, cfg.RateLimit)
}

func TestLoadFromBytes_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		content string
		path    string
		match   string
	}{
		{"empty", "   \n", "m.yaml", "empty"},
		{"invalid yaml", "version: [", "m.yaml", "invalid YAML"},
		{"invalid json", "{", "m.json", "invalid JSON"},
		{"missing kinds", "version: \"1.0\"\nconnection:\n  endpoint: x\n", "m.yaml", ""},
		{"unknown field", minimalYAML + "extra: 1\n", "m.yaml", ""},
		{"bad kind", strings.Replace(minimalYAML, "[products]", "[invoices]", 1), "m.yaml", ""},
		{"bad mode", minimalYAML + "mode: stream\n", "m.yaml", ""},
		{"bad policy", minimalYAML + "stream:\n  policy: retry\n", "m.yaml", ""},
		{"bad interval", minimalYAML + "poll:\n  interval: soon\n", "m.yaml", "/poll/interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.content), tt.path)
			require.Error(t, err)
			if tt.match != "" {
				assert.Contains(t, err.Error(), tt.match)
			}
		})
	}
}

func TestLoadFromBytes_SchemaErrorsAreValidationErrors(t *testing.T) {
	_, err := LoadFromBytes([]byte(minimalYAML+"extra: 1\n"), "m.yaml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidationFailed))

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.NotEmpty(t, verrs)
}

func TestLoad_FileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadFromReader(t *testing.T) {
	m, err := LoadFromReader(strings.NewReader(minimalJSON), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, m.Kinds)
}

func TestValidate_Struct(t *testing.T) {
	m := &Manifest{
		Version:    "1.0",
		Connection: ConnectionConfig{Endpoint: "https://shop.example/graphql.json"},
		Kinds:      []string{"customers"},
	}
	assert.NoError(t, Validate(m))

	m.Kinds = nil
	assert.Error(t, Validate(m))
}

func TestValidationErrors_Error(t *testing.T) {
	one := ValidationErrors{{Path: "/kinds", Message: "required"}}
	assert.Equal(t, "/kinds: required", one.Error())

	two := ValidationErrors{{Path: "/a", Message: "x"}, {Message: "y"}}
	assert.Contains(t, two.Error(), "2 errors")
	assert.Contains(t, two.Error(), "  - y")
}
