// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Input   InputConfig   `mapstructure:"input"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Output  OutputConfig  `mapstructure:"output"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// InputConfig locates the identifier list.
type InputConfig struct {
	Path string `mapstructure:"path"`
	// IDColumn is the CSV header of the integer identifier column.
	IDColumn string `mapstructure:"id_column"`
	// SkipSettled excludes identifiers already present in the summary file,
	// so a restarted run does not re-fetch settled work.
	SkipSettled bool `mapstructure:"skip_settled"`
}

// FetchConfig governs the per-identifier fetch pipeline.
type FetchConfig struct {
	// BaseURL is a printf template with a single %s for the padded identifier.
	BaseURL string `mapstructure:"base_url"`
	// PadWidth is the zero-padding width applied to identifiers.
	PadWidth     int           `mapstructure:"pad_width"`
	UserAgent    string        `mapstructure:"user_agent"`
	Timeout      time.Duration `mapstructure:"timeout"`
	AssetTimeout time.Duration `mapstructure:"asset_timeout"`
	Concurrency  int           `mapstructure:"concurrency"`
}

// RetryConfig drives the inter-round retry loop.
type RetryConfig struct {
	// Cooldown is the static delay between rounds.
	Cooldown time.Duration `mapstructure:"cooldown"`
	// MaxAttempts settles an identifier as failed after this many transient
	// attempts. Zero retries indefinitely.
	MaxAttempts int `mapstructure:"max_attempts"`
}

// OutputConfig sets destination paths for records, artifacts, and the archive.
type OutputConfig struct {
	SummaryPath      string `mapstructure:"summary_path"`
	HTMLDir          string `mapstructure:"html_dir"`
	AssetsSubdir     string `mapstructure:"assets_subdir"`
	ArchivePath      string `mapstructure:"archive_path"`
	MaxArtifactBytes int64  `mapstructure:"max_artifact_bytes"`
}

// ServerConfig controls the optional observability HTTP listener.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("input.path", "phase2.csv")
	v.SetDefault("input.id_column", "Activation ID")
	v.SetDefault("input.skip_settled", true)
	v.SetDefault("fetch.base_url", "https://www.joinsecret.com/activation/%s")
	v.SetDefault("fetch.pad_width", 6)
	v.SetDefault("fetch.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36")
	v.SetDefault("fetch.timeout", "10s")
	v.SetDefault("fetch.asset_timeout", "5s")
	v.SetDefault("fetch.concurrency", 100)
	v.SetDefault("retry.cooldown", "10s")
	v.SetDefault("retry.max_attempts", 0)
	v.SetDefault("output.summary_path", "secret_codes_summary.csv")
	v.SetDefault("output.html_dir", "html_responses")
	v.SetDefault("output.assets_subdir", "assets")
	v.SetDefault("output.archive_path", "html_responses.zip")
	v.SetDefault("output.max_artifact_bytes", 5*1024*1024)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Input.Path == "" {
		return fmt.Errorf("input.path must be set")
	}
	if c.Input.IDColumn == "" {
		return fmt.Errorf("input.id_column must be set")
	}
	if strings.Count(c.Fetch.BaseURL, "%s") != 1 {
		return fmt.Errorf("fetch.base_url must contain exactly one %%s placeholder")
	}
	if c.Fetch.PadWidth <= 0 {
		return fmt.Errorf("fetch.pad_width must be > 0")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Fetch.AssetTimeout <= 0 {
		return fmt.Errorf("fetch.asset_timeout must be > 0")
	}
	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("fetch.concurrency must be > 0")
	}
	if c.Retry.Cooldown < 0 {
		return fmt.Errorf("retry.cooldown must be >= 0")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must be >= 0")
	}
	if c.Output.SummaryPath == "" {
		return fmt.Errorf("output.summary_path must be set")
	}
	if c.Output.HTMLDir == "" {
		return fmt.Errorf("output.html_dir must be set")
	}
	if c.Output.AssetsSubdir == "" {
		return fmt.Errorf("output.assets_subdir must be set")
	}
	if c.Output.ArchivePath == "" {
		return fmt.Errorf("output.archive_path must be set")
	}
	if c.Output.MaxArtifactBytes <= 0 {
		return fmt.Errorf("output.max_artifact_bytes must be > 0")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	return nil
}
