package paperdesk

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			API: APIConfig{BaseURL: "https://api.paperdesk.dev"},
			Log: LogConfig{Level: "info"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing base url",
			mutate:  func(c *Config) { c.API.BaseURL = "" },
			wantErr: "base_url is required",
		},
		{
			name:    "base url without scheme",
			mutate:  func(c *Config) { c.API.BaseURL = "api.paperdesk.dev" },
			wantErr: "not a valid URL",
		},
		{
			name:    "negative retry count",
			mutate:  func(c *Config) { c.API.RetryCount = -1 },
			wantErr: "retry_count",
		},
		{
			name:    "negative max entries",
			mutate:  func(c *Config) { c.Cache.MaxEntries = -5 },
			wantErr: "max_entries",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: "unknown log level",
		},
		{
			name:   "empty log level allowed",
			mutate: func(c *Config) { c.Log.Level = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := valid()
			tt.mutate(&conf)
			err := conf.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestReadConfig(t *testing.T) {
	path := writeConfigFile(t, `
api:
  base_url: https://api.paperdesk.dev
  retry_count: 2
  retry_wait_time: 250ms
cache:
  stale_time: 10s
log:
  level: debug
`)

	conf, err := ReadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.paperdesk.dev", conf.API.BaseURL)
	assert.Equal(t, 2, conf.API.RetryCount)
	assert.Equal(t, 250*time.Millisecond, conf.API.RetryWaitTime)
	assert.Equal(t, 10*time.Second, conf.Cache.StaleTime)
	assert.Equal(t, "debug", conf.Log.Level)

	// Defaults fill in what the file leaves out.
	assert.Equal(t, defaultTimeout, conf.API.Timeout)
	assert.Equal(t, defaultGCTime, conf.Cache.GCTime)
}

func TestReadConfigEnvOverride(t *testing.T) {
	path := writeConfigFile(t, `
api:
  base_url: https://api.paperdesk.dev
log:
  level: info
`)

	t.Setenv("PAPERDESK_LOG_LEVEL", "warn")

	conf, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", conf.Log.Level)
}

func TestReadConfigInvalid(t *testing.T) {
	path := writeConfigFile(t, `
log:
  level: info
`)

	_, err := ReadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}

func TestConfigSchema(t *testing.T) {
	b, err := ConfigSchema()
	require.NoError(t, err)
	assert.Contains(t, string(b), `"base_url"`)
	assert.Contains(t, string(b), `"stale_time"`)
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paperdesk.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
