package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://api.tripo3d.ai/v2/openapi", cfg.Client.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Client.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.Client.WallTimeout)
	assert.Equal(t, "glb", cfg.Client.OutputFormat)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.EqualValues(t, 4, cfg.Server.MaxConcurrentJobs)
}

func TestLoadFromYAML(t *testing.T) {
	t.Setenv("TRIPO_API_KEY", "") // empty env values never override

	path := filepath.Join(t.TempDir(), "tripo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
client:
  api_key: yaml-key
  poll_interval: 5s
  output_format: obj
server:
  addr: ":9090"
  max_concurrent_jobs: 8
log:
  level: debug
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "yaml-key", cfg.Client.APIKey)
	assert.Equal(t, 5*time.Second, cfg.Client.PollInterval)
	assert.Equal(t, "obj", cfg.Client.OutputFormat)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.EqualValues(t, 8, cfg.Server.MaxConcurrentJobs)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Untouched fields keep their defaults.
	assert.Equal(t, 10*time.Minute, cfg.Client.WallTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	require.Error(t, err)
}

func TestEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tripo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client:\n  api_key: yaml-key\n"), 0o644))

	t.Setenv("TRIPO_API_KEY", "env-key")
	t.Setenv("TRIPO_POLL_INTERVAL", "250ms")
	t.Setenv("TRIPO_SERVER_ADDR", ":7070")
	t.Setenv("TRIPO_LOG_LEVEL", "warn")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Client.APIKey)
	assert.Equal(t, 250*time.Millisecond, cfg.Client.PollInterval)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative poll interval", func(c *Config) { c.Client.PollInterval = -time.Second }},
		{"zero wall timeout", func(c *Config) { c.Client.WallTimeout = 0 }},
		{"bad output format", func(c *Config) { c.Client.OutputFormat = "gltf" }},
		{"zero max jobs", func(c *Config) { c.Server.MaxConcurrentJobs = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
