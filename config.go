package paperdesk

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the SDK configuration, read from a YAML file with
// PAPERDESK_* environment overrides (e.g. PAPERDESK_API_AUTH_TOKEN).
type Config struct {
	API   APIConfig   `mapstructure:"api" json:"api"`
	Cache CacheConfig `mapstructure:"cache" json:"cache"`
	Log   LogConfig   `mapstructure:"log" json:"log"`
}

// APIConfig configures the transport layer.
type APIConfig struct {
	// BaseURL is the platform API root, e.g. https://api.paperdesk.dev/v1
	BaseURL string `mapstructure:"base_url" json:"base_url" jsonschema:"required"`

	// AuthToken is the bearer token; usually injected via environment.
	AuthToken string `mapstructure:"auth_token" json:"auth_token,omitempty"`

	// Timeout bounds each request.
	Timeout time.Duration `mapstructure:"timeout" json:"timeout,omitempty"`

	// RetryCount enables transport retries of idempotent requests.
	// Zero disables retries.
	RetryCount int `mapstructure:"retry_count" json:"retry_count,omitempty"`

	// RetryWaitTime is the base delay between retries.
	RetryWaitTime time.Duration `mapstructure:"retry_wait_time" json:"retry_wait_time,omitempty"`
}

// CacheConfig configures the query cache.
type CacheConfig struct {
	// StaleTime is how long a fetched value counts as fresh.
	StaleTime time.Duration `mapstructure:"stale_time" json:"stale_time,omitempty"`

	// GCTime is how long an unused entry survives before eviction.
	GCTime time.Duration `mapstructure:"gc_time" json:"gc_time,omitempty"`

	// MaxEntries bounds the cache; 0 means unlimited.
	MaxEntries int `mapstructure:"max_entries" json:"max_entries,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" json:"level,omitempty"`

	// JSON switches from the console encoder to JSON output.
	JSON bool `mapstructure:"json" json:"json,omitempty"`
}

// Default configuration values
const (
	defaultStaleTime = 30 * time.Second
	defaultGCTime    = 5 * time.Minute
	defaultTimeout   = 30 * time.Second
)

// ReadConfig loads and validates a config file.
func ReadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetEnvPrefix("PAPERDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api.timeout", defaultTimeout)
	v.SetDefault("cache.stale_time", defaultStaleTime)
	v.SetDefault("cache.gc_time", defaultGCTime)
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// Validate checks the configuration for mistakes that would only
// surface as confusing runtime failures.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("config: api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Errorf("config: api.base_url %q is not a valid URL", c.API.BaseURL)
	}

	if c.API.RetryCount < 0 {
		return errors.New("config: api.retry_count cannot be negative")
	}
	if c.Cache.MaxEntries < 0 {
		return errors.New("config: cache.max_entries cannot be negative")
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.Errorf("config: unknown log level %q", c.Log.Level)
	}
	return nil
}

// ConfigSchema returns the JSON schema of the configuration, for editor
// tooling and the `paperdesk schema` command.
func ConfigSchema() ([]byte, error) {
	r := &jsonschema.Reflector{ExpandedStruct: true}
	schema := r.Reflect(&Config{})
	return json.MarshalIndent(schema, "", "  ")
}
