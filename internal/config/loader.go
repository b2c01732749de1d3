package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/3leaps/gobulk/pkg/stream"
	"github.com/3leaps/gobulk/pkg/upstream"
)

// envSpec maps one environment variable to a config key.
type envSpec struct {
	Name string
	Key  string
}

var (
	mu      sync.RWMutex
	current *Config
)

// SetDefaults registers built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("upstream.endpoint", "")
	v.SetDefault("upstream.token_env", "SHOPIFY_ACCESS_TOKEN")
	v.SetDefault("upstream.token_header", upstream.DefaultTokenHeader)
	v.SetDefault("upstream.rate_limit", 2.0)
	v.SetDefault("upstream.timeout", "30s")

	v.SetDefault("poll.interval", "3s")
	v.SetDefault("poll.max_attempts", 200)

	v.SetDefault("stream.policy", "fail_fast")
	v.SetDefault("stream.max_line_bytes", stream.DefaultMaxLineBytes)

	v.SetDefault("paginate.page_size", 50)
	v.SetDefault("paginate.max_pages", 0)
	v.SetDefault("paginate.rate_limit", 0.0)

	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.profile", "")
	v.SetDefault("s3.force_path_style", false)

	v.SetDefault("store.location", "")
	v.SetDefault("jobs.dir", "")
	v.SetDefault("concurrency", 1)
}

func getEnvSpecs() []envSpec {
	p := EnvPrefix + "_"
	return []envSpec{
		{p + "HOST", "server.host"},
		{p + "PORT", "server.port"},
		{p + "READ_TIMEOUT", "server.read_timeout"},
		{p + "WRITE_TIMEOUT", "server.write_timeout"},
		{p + "IDLE_TIMEOUT", "server.idle_timeout"},
		{p + "SHUTDOWN_TIMEOUT", "server.shutdown_timeout"},
		{p + "LOG_LEVEL", "logging.level"},
		{p + "LOG_FORMAT", "logging.format"},
		{p + "ENDPOINT", "upstream.endpoint"},
		{p + "TOKEN_ENV", "upstream.token_env"},
		{p + "TOKEN_HEADER", "upstream.token_header"},
		{p + "RATE_LIMIT", "upstream.rate_limit"},
		{p + "UPSTREAM_TIMEOUT", "upstream.timeout"},
		{p + "POLL_INTERVAL", "poll.interval"},
		{p + "POLL_MAX_ATTEMPTS", "poll.max_attempts"},
		{p + "STREAM_POLICY", "stream.policy"},
		{p + "MAX_LINE_BYTES", "stream.max_line_bytes"},
		{p + "PAGE_SIZE", "paginate.page_size"},
		{p + "MAX_PAGES", "paginate.max_pages"},
		{p + "S3_ENDPOINT", "s3.endpoint"},
		{p + "S3_REGION", "s3.region"},
		{p + "S3_PROFILE", "s3.profile"},
		{p + "S3_FORCE_PATH_STYLE", "s3.force_path_style"},
		{p + "STORE", "store.location"},
		{p + "JOBS_DIR", "jobs.dir"},
		{p + "CONCURRENCY", "concurrency"},
	}
}

// BindEnv binds every GOBULK_* variable on v.
func BindEnv(v *viper.Viper) error {
	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Key, spec.Name); err != nil {
			return fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}
	return nil
}

// Load resolves configuration from defaults, the file named by
// GOBULK_CONFIG, .env, the environment and overrides, validates it and
// makes it available through GetConfig.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	return LoadFile(ctx, os.Getenv(EnvPrefix+"_CONFIG"), overrides...)
}

// LoadFile is Load with an explicit config file. An empty path skips the file.
func LoadFile(ctx context.Context, path string, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_ = godotenv.Load(".env")

	v := viper.New()
	SetDefaults(v)
	if err := BindEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	for _, o := range overrides {
		for k, val := range flatten("", o) {
			v.Set(k, val)
		}
	}

	cfg, err := FromViper(v)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	current = cfg
	mu.Unlock()
	return cfg, nil
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// GetConfig returns the configuration from the last successful Load.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// JobsDir returns the configured job registry directory, defaulting to
// the jobs directory under the application data dir
// ($XDG_DATA_HOME/gobulk/jobs or ~/.local/share/gobulk/jobs).
func (c *Config) JobsDir() (string, error) {
	if c.Jobs.Dir != "" {
		return c.Jobs.Dir, nil
	}
	if gfconfig.GetXDGBaseDirs().DataHome == "" {
		return "", errors.New("resolve jobs directory: neither XDG_DATA_HOME nor HOME is set")
	}
	return filepath.Join(gfconfig.GetAppDataDir(AppName), "jobs"), nil
}

func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}
