package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "copilot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 15, cfg.Pipeline.MaxNew)
	assert.Equal(t, 3200*time.Millisecond, cfg.Pipeline.MaxDelay)
	assert.Equal(t, 45*time.Second, cfg.Browser.ScrapeTimeout)
	assert.Equal(t, "file", cfg.Cache.Backend)
	assert.Equal(t, "builtin", cfg.Classifier.ModelURL, "bundled descriptor works without a download")
}

func TestLoadConfig_YAML(t *testing.T) {
	path := writeConfig(t, `
page_url: https://www.linkedin.com/feed/
log_level: debug
pipeline:
  max_new: 5
  max_delay: 500ms
browser:
  headless: false
cache:
  backend: memory
watch:
  schedule: "*/10 * * * *"
server:
  rate_limit:
    exempt: [10.0.0.1]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://www.linkedin.com/feed/", cfg.PageURL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.Pipeline.MaxNew)
	assert.Equal(t, 500*time.Millisecond, cfg.Pipeline.MaxDelay)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, "*/10 * * * *", cfg.Watch.Schedule)
	assert.Equal(t, []string{"10.0.0.1"}, cfg.Server.RateLimit.Exempt)

	// Untouched keys keep their defaults.
	assert.Equal(t, 1200*time.Millisecond, cfg.Pipeline.StartDelay)
	assert.Equal(t, 2*time.Second, cfg.Classifier.RetryDelay)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("COPILOT_PIPELINE_MAX_NEW", "3")
	t.Setenv("COPILOT_CLASSIFIER_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("DATABASE_URL", "postgres://localhost/copilot")
	t.Setenv("COPILOT_CACHE_BACKEND", "postgres")

	cfg, err := LoadConfig(writeConfig(t, "verbose: true\n"))
	require.NoError(t, err)

	assert.True(t, cfg.Verbose)
	assert.Equal(t, 3, cfg.Pipeline.MaxNew)
	assert.Equal(t, "openai", cfg.Classifier.Provider)
	assert.Equal(t, "sk-test", cfg.Classifier.APIKey)
	assert.Equal(t, "postgres://localhost/copilot", cfg.Cache.DatabaseURL)
}

func TestLoadConfig_ExplicitKeyWins(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-env")

	cfg, err := LoadConfig(writeConfig(t, "classifier:\n  api_key: from-file\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Classifier.APIKey)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "pipeline: [unclosed"))
		assert.Error(t, err)
	})

	t.Run("invalid value", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "cache:\n  backend: redis\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Backend")
	})
}

func TestLoadConfig_NoFileSearched(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, Default().Pipeline, cfg.Pipeline)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "LogLevel"},
		{"bad page url", func(c *Config) { c.PageURL = "not a url" }, "PageURL"},
		{"zero max new", func(c *Config) { c.Pipeline.MaxNew = 0 }, "MaxNew"},
		{"negative delay", func(c *Config) { c.Pipeline.MaxDelay = -time.Second }, "MaxDelay"},
		{"unknown provider", func(c *Config) { c.Classifier.Provider = "llama" }, "Provider"},
		{"missing assets", func(c *Config) { c.Assets.BaseURL = "" }, "BaseURL"},
		{"port range", func(c *Config) { c.Server.Port = 70000 }, "Port"},
		{"postgres without url", func(c *Config) { c.Cache.Backend = "postgres" }, "cache.database_url"},
		{"file without path", func(c *Config) { c.Cache.Path = "" }, "cache.path"},
		{"outreach without endpoint", func(c *Config) { c.Outreach.Endpoint = "" }, "outreach.endpoint"},
		{"bad schedule", func(c *Config) { c.Watch.Schedule = "every tuesday" }, "watch.schedule"},
		{"limit without window", func(c *Config) { c.Server.RateLimit.Window = 0 }, "server.rate_limit.window"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestValidate_Accepts(t *testing.T) {
	cfg := Default()
	cfg.Outreach = OutreachConfig{Enabled: false}
	cfg.Cache = CacheConfig{Backend: "memory"}
	cfg.Watch.Schedule = "@every 15m"
	cfg.Pipeline.MaxDelay = 0
	assert.NoError(t, cfg.Validate())
}
