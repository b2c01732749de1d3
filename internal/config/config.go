// Package config loads the gobulk runtime configuration.
//
// Sources, lowest precedence first: built-in defaults, the YAML config
// file, a .env file in the working directory, GOBULK_* environment
// variables, and runtime overrides passed to Load.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/3leaps/gobulk/pkg/bulk"
	"github.com/3leaps/gobulk/pkg/paginate"
	"github.com/3leaps/gobulk/pkg/pipeline"
	"github.com/3leaps/gobulk/pkg/provider/s3"
	"github.com/3leaps/gobulk/pkg/stream"
	"github.com/3leaps/gobulk/pkg/upstream"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "GOBULK"

// AppName names the application directories under the XDG base dirs.
const AppName = "gobulk"

// Config is the resolved runtime configuration.
type Config struct {
	Server      ServerConfig   `mapstructure:"server"`
	Logging     LoggingConfig  `mapstructure:"logging"`
	Upstream    UpstreamConfig `mapstructure:"upstream"`
	Poll        PollConfig     `mapstructure:"poll"`
	Stream      StreamConfig   `mapstructure:"stream"`
	Paginate    PaginateConfig `mapstructure:"paginate"`
	S3          S3Config       `mapstructure:"s3"`
	Store       StoreConfig    `mapstructure:"store"`
	Jobs        JobsConfig     `mapstructure:"jobs"`
	Concurrency int            `mapstructure:"concurrency"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type UpstreamConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	TokenEnv    string        `mapstructure:"token_env"`
	TokenHeader string        `mapstructure:"token_header"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type PollConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

type StreamConfig struct {
	Policy       string `mapstructure:"policy"`
	MaxLineBytes int    `mapstructure:"max_line_bytes"`
}

type PaginateConfig struct {
	PageSize  int     `mapstructure:"page_size"`
	MaxPages  int     `mapstructure:"max_pages"`
	RateLimit float64 `mapstructure:"rate_limit"`
}

// S3Config configures the client used for s3:// result locations.
// Credentials come from the AWS default chain or the named profile.
type S3Config struct {
	Endpoint       string `mapstructure:"endpoint"`
	Region         string `mapstructure:"region"`
	Profile        string `mapstructure:"profile"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// StoreConfig locates the canonical record store. An empty location
// disables persistence.
type StoreConfig struct {
	Location string `mapstructure:"location"`
}

// JobsConfig locates the job registry. An empty dir resolves to
// <XDG data dir>/gobulk/jobs.
type JobsConfig struct {
	Dir string `mapstructure:"dir"`
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if _, err := stream.ParsePolicy(c.Stream.Policy); err != nil {
		return fmt.Errorf("stream.policy: %w", err)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive, got %s", c.Poll.Interval)
	}
	if c.Poll.MaxAttempts <= 0 {
		return fmt.Errorf("poll.max_attempts must be positive, got %d", c.Poll.MaxAttempts)
	}
	if c.Paginate.PageSize < 1 || c.Paginate.PageSize > 250 {
		return fmt.Errorf("paginate.page_size must be in 1..250, got %d", c.Paginate.PageSize)
	}
	if c.Concurrency < 1 || c.Concurrency > 8 {
		return fmt.Errorf("concurrency must be in 1..8, got %d", c.Concurrency)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

// PipelineConfig converts the loaded settings into a pipeline configuration.
func (c *Config) PipelineConfig() (pipeline.Config, error) {
	policy, err := stream.ParsePolicy(c.Stream.Policy)
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		Poll:         bulk.PollOptions{Interval: c.Poll.Interval, MaxAttempts: c.Poll.MaxAttempts},
		Policy:       policy,
		MaxLineBytes: c.Stream.MaxLineBytes,
		Paginate: paginate.Config{
			PageSize:  c.Paginate.PageSize,
			MaxPages:  c.Paginate.MaxPages,
			RateLimit: c.Paginate.RateLimit,
		},
		Concurrency: c.Concurrency,
	}, nil
}

// UpstreamClientConfig builds the API client configuration, reading the
// access token from the configured environment variable.
func (c *Config) UpstreamClientConfig() (upstream.Config, error) {
	if strings.TrimSpace(c.Upstream.Endpoint) == "" {
		return upstream.Config{}, fmt.Errorf("upstream.endpoint is not set (%s_ENDPOINT)", EnvPrefix)
	}
	token := strings.TrimSpace(os.Getenv(c.Upstream.TokenEnv))
	if token == "" {
		return upstream.Config{}, fmt.Errorf("access token env %s is not set", c.Upstream.TokenEnv)
	}
	return upstream.Config{
		Endpoint:   c.Upstream.Endpoint,
		Authorizer: upstream.TokenAuthorizer{Header: c.Upstream.TokenHeader, Token: token},
		RateLimit:  c.Upstream.RateLimit,
		Timeout:    c.Upstream.Timeout,
	}, nil
}

// S3ProviderConfig converts the s3 section into a provider configuration.
func (c *Config) S3ProviderConfig() s3.Config {
	return s3.Config{
		Endpoint:       strings.TrimSpace(c.S3.Endpoint),
		Region:         strings.TrimSpace(c.S3.Region),
		Profile:        strings.TrimSpace(c.S3.Profile),
		ForcePathStyle: c.S3.ForcePathStyle,
	}
}
