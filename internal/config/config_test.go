package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "phase2.csv", cfg.Input.Path)
	assert.Equal(t, "Activation ID", cfg.Input.IDColumn)
	assert.True(t, cfg.Input.SkipSettled)
	assert.Equal(t, "https://www.joinsecret.com/activation/%s", cfg.Fetch.BaseURL)
	assert.Equal(t, 6, cfg.Fetch.PadWidth)
	assert.Equal(t, 10*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Fetch.AssetTimeout)
	assert.Equal(t, 100, cfg.Fetch.Concurrency)
	assert.Equal(t, 10*time.Second, cfg.Retry.Cooldown)
	assert.Equal(t, 0, cfg.Retry.MaxAttempts)
	assert.Equal(t, "secret_codes_summary.csv", cfg.Output.SummaryPath)
	assert.Equal(t, "html_responses", cfg.Output.HTMLDir)
	assert.Equal(t, "assets", cfg.Output.AssetsSubdir)
	assert.Equal(t, "html_responses.zip", cfg.Output.ArchivePath)
	assert.Equal(t, int64(5*1024*1024), cfg.Output.MaxArtifactBytes)
	assert.False(t, cfg.Server.Enabled)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Logging.Development)
}

func TestLoad_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
input:
  path: ids.csv
fetch:
  concurrency: 8
  timeout: 3s
retry:
  cooldown: 2s
  max_attempts: 5
server:
  enabled: true
  port: 9090
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ids.csv", cfg.Input.Path)
	assert.Equal(t, 8, cfg.Fetch.Concurrency)
	assert.Equal(t, 3*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Retry.Cooldown)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 6, cfg.Fetch.PadWidth, "unset keys keep defaults")
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("HARVEST_FETCH_CONCURRENCY", "4")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Fetch.Concurrency)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"EmptyInputPath", func(c *Config) { c.Input.Path = "" }},
		{"EmptyIDColumn", func(c *Config) { c.Input.IDColumn = "" }},
		{"NoPlaceholder", func(c *Config) { c.Fetch.BaseURL = "https://example.com/activation" }},
		{"TwoPlaceholders", func(c *Config) { c.Fetch.BaseURL = "https://example.com/%s/%s" }},
		{"ZeroPadWidth", func(c *Config) { c.Fetch.PadWidth = 0 }},
		{"ZeroTimeout", func(c *Config) { c.Fetch.Timeout = 0 }},
		{"ZeroAssetTimeout", func(c *Config) { c.Fetch.AssetTimeout = 0 }},
		{"ZeroConcurrency", func(c *Config) { c.Fetch.Concurrency = 0 }},
		{"NegativeCooldown", func(c *Config) { c.Retry.Cooldown = -time.Second }},
		{"NegativeMaxAttempts", func(c *Config) { c.Retry.MaxAttempts = -1 }},
		{"EmptySummaryPath", func(c *Config) { c.Output.SummaryPath = "" }},
		{"EmptyHTMLDir", func(c *Config) { c.Output.HTMLDir = "" }},
		{"EmptyAssetsSubdir", func(c *Config) { c.Output.AssetsSubdir = "" }},
		{"EmptyArchivePath", func(c *Config) { c.Output.ArchivePath = "" }},
		{"ZeroMaxArtifactBytes", func(c *Config) { c.Output.MaxArtifactBytes = 0 }},
		{"ServerEnabledBadPort", func(c *Config) { c.Server.Enabled = true; c.Server.Port = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
