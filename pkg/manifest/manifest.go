// Package manifest loads and validates gobulk extraction manifests.
//
// A manifest is a YAML or JSON file describing one extraction: the admin
// API connection, the kinds to extract, the extraction mode, and polling,
// stream, pagination, and output settings. It is validated against an
// embedded JSON Schema that disallows unknown properties.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	connection:
//	  endpoint: https://example.myshopify.com/admin/api/2024-01/graphql.json
//	  token_env: SHOPIFY_ACCESS_TOKEN
//	kinds: [products, orders]
//	poll:
//	  interval: 3s
//	  max_attempts: 200
//	stream:
//	  policy: skip
//	output:
//	  destination: stdout
package manifest

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/3leaps/gobulk/pkg/bulk"
	"github.com/3leaps/gobulk/pkg/paginate"
	"github.com/3leaps/gobulk/pkg/pipeline"
	"github.com/3leaps/gobulk/pkg/provider/s3"
	"github.com/3leaps/gobulk/pkg/resource"
	"github.com/3leaps/gobulk/pkg/stream"
	"github.com/3leaps/gobulk/pkg/upstream"
)

// Manifest is a validated extraction manifest.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version must be "1.0".
	Version string `json:"version" yaml:"version"`

	Connection ConnectionConfig `json:"connection" yaml:"connection"`

	// Kinds lists resource kinds in the order they are extracted.
	Kinds []string `json:"kinds" yaml:"kinds"`

	// Mode is "bulk" (default) or "paginated".
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`

	// Concurrency is the number of kinds extracted at once. Default: 1.
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`

	Poll     PollConfig     `json:"poll,omitempty" yaml:"poll,omitempty"`
	Stream   StreamConfig   `json:"stream,omitempty" yaml:"stream,omitempty"`
	Paginate PaginateConfig `json:"paginate,omitempty" yaml:"paginate,omitempty"`
	Output   OutputConfig   `json:"output,omitempty" yaml:"output,omitempty"`

	// Path is the file the manifest was loaded from, if any.
	Path string `json:"-" yaml:"-"`
}

// ConnectionConfig configures the admin API connection.
type ConnectionConfig struct {
	// Endpoint is the GraphQL endpoint URL.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// TokenEnv names the environment variable holding the access token.
	// Default: SHOPIFY_ACCESS_TOKEN
	TokenEnv string `json:"token_env,omitempty" yaml:"token_env,omitempty"`

	// TokenHeader is the header the token is sent in.
	// Default: X-Shopify-Access-Token
	TokenHeader string `json:"token_header,omitempty" yaml:"token_header,omitempty"`

	// RateLimit is the maximum API calls per second (0 = unlimited).
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`

	// Timeout bounds a single API call, as a Go duration. Default: 30s.
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// S3 configures access to s3:// result locations. Unset fields keep
	// the runtime configuration's values.
	S3 *S3Config `json:"s3,omitempty" yaml:"s3,omitempty"`
}

// S3Config overrides the object storage client settings.
type S3Config struct {
	Endpoint       string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Region         string `json:"region,omitempty" yaml:"region,omitempty"`
	Profile        string `json:"profile,omitempty" yaml:"profile,omitempty"`
	ForcePathStyle *bool  `json:"force_path_style,omitempty" yaml:"force_path_style,omitempty"`
}

// PollConfig bounds job status polling.
type PollConfig struct {
	// Interval is a Go duration string. Default: 3s.
	Interval    string `json:"interval,omitempty" yaml:"interval,omitempty"`
	MaxAttempts int    `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
}

// StreamConfig configures result decoding.
type StreamConfig struct {
	// Policy is "fail_fast" (default) or "skip".
	Policy       string `json:"policy,omitempty" yaml:"policy,omitempty"`
	MaxLineBytes int    `json:"max_line_bytes,omitempty" yaml:"max_line_bytes,omitempty"`
}

// PaginateConfig configures the paginated path.
type PaginateConfig struct {
	PageSize  int     `json:"page_size,omitempty" yaml:"page_size,omitempty"`
	MaxPages  int     `json:"max_pages,omitempty" yaml:"max_pages,omitempty"`
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}

// OutputConfig configures where canonical records go.
type OutputConfig struct {
	// Destination is "stdout" or a file path for JSONL output.
	// Default: "stdout".
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`

	// Store is an optional record store (sqlite://path or libsql://host).
	Store string `json:"store,omitempty" yaml:"store,omitempty"`
}

// Default values for optional fields.
const (
	DefaultVersion     = "1.0"
	DefaultMode        = string(pipeline.ModeBulk)
	DefaultConcurrency = 1
	DefaultTokenEnv    = "SHOPIFY_ACCESS_TOKEN"
	DefaultDestination = "stdout"
	DefaultPollEvery   = "3s"
)

// ApplyDefaults fills in optional fields.
func (m *Manifest) ApplyDefaults() {
	if m.Mode == "" {
		m.Mode = DefaultMode
	}
	if m.Concurrency == 0 {
		m.Concurrency = DefaultConcurrency
	}
	if m.Connection.TokenEnv == "" {
		m.Connection.TokenEnv = DefaultTokenEnv
	}
	if m.Connection.TokenHeader == "" {
		m.Connection.TokenHeader = upstream.DefaultTokenHeader
	}
	if m.Poll.Interval == "" {
		m.Poll.Interval = DefaultPollEvery
	}
	if m.Poll.MaxAttempts == 0 {
		m.Poll.MaxAttempts = bulk.DefaultPollOptions().MaxAttempts
	}
	if m.Stream.Policy == "" {
		m.Stream.Policy = string(stream.PolicyFailFast)
	}
	if m.Paginate.PageSize == 0 {
		m.Paginate.PageSize = paginate.DefaultConfig().PageSize
	}
	if m.Output.Destination == "" {
		m.Output.Destination = DefaultDestination
	}
}

// check validates values the schema cannot express.
func (m *Manifest) check() error {
	var errs ValidationErrors
	if _, err := m.ResourceKinds(); err != nil {
		errs = append(errs, ValidationError{Path: "/kinds", Message: err.Error()})
	}
	if _, err := time.ParseDuration(m.Poll.Interval); err != nil {
		errs = append(errs, ValidationError{Path: "/poll/interval", Message: err.Error()})
	}
	if m.Connection.Timeout != "" {
		if _, err := time.ParseDuration(m.Connection.Timeout); err != nil {
			errs = append(errs, ValidationError{Path: "/connection/timeout", Message: err.Error()})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ResourceKinds returns the manifest's kinds, deduplicated in order.
func (m *Manifest) ResourceKinds() ([]resource.Kind, error) {
	return resource.ParseKinds(strings.Join(m.Kinds, ","))
}

// PipelineMode returns the extraction mode.
func (m *Manifest) PipelineMode() pipeline.Mode {
	return pipeline.Mode(m.Mode)
}

// PipelineConfig converts the manifest into a pipeline configuration.
func (m *Manifest) PipelineConfig() (pipeline.Config, error) {
	interval, err := time.ParseDuration(m.Poll.Interval)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("poll interval: %w", err)
	}
	policy, err := stream.ParsePolicy(m.Stream.Policy)
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		Poll:         bulk.PollOptions{Interval: interval, MaxAttempts: m.Poll.MaxAttempts},
		Policy:       policy,
		MaxLineBytes: m.Stream.MaxLineBytes,
		Paginate: paginate.Config{
			PageSize:  m.Paginate.PageSize,
			MaxPages:  m.Paginate.MaxPages,
			RateLimit: m.Paginate.RateLimit,
		},
		Concurrency: m.Concurrency,
	}, nil
}

// UpstreamConfig builds the API client configuration, reading the access
// token from the configured environment variable.
func (m *Manifest) UpstreamConfig() (upstream.Config, error) {
	token := strings.TrimSpace(os.Getenv(m.Connection.TokenEnv))
	if token == "" {
		return upstream.Config{}, fmt.Errorf("access token env %s is not set", m.Connection.TokenEnv)
	}
	cfg := upstream.Config{
		Endpoint:   m.Connection.Endpoint,
		Authorizer: upstream.TokenAuthorizer{Header: m.Connection.TokenHeader, Token: token},
		RateLimit:  m.Connection.RateLimit,
	}
	if m.Connection.Timeout != "" {
		d, err := time.ParseDuration(m.Connection.Timeout)
		if err != nil {
			return upstream.Config{}, fmt.Errorf("connection timeout: %w", err)
		}
		cfg.Timeout = d
	}
	return cfg, nil
}

// S3ProviderConfig overlays the manifest's s3 settings on base.
func (m *Manifest) S3ProviderConfig(base s3.Config) s3.Config {
	o := m.Connection.S3
	if o == nil {
		return base
	}
	if o.Endpoint != "" {
		base.Endpoint = o.Endpoint
	}
	if o.Region != "" {
		base.Region = o.Region
	}
	if o.Profile != "" {
		base.Profile = o.Profile
	}
	if o.ForcePathStyle != nil {
		base.ForcePathStyle = *o.ForcePathStyle
	}
	return base
}
