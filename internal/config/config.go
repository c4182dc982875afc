// Package config handles configuration loading and validation for
// loupe.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so yaml values like "250ms" or "30s"
// decode; yaml.v3 has no native duration support.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"250ms\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config holds the application configuration.
type Config struct {
	Plugins PluginsConfig `yaml:"plugins"`
	Amp     AmpConfig     `yaml:"amp"`
	Diff    DiffConfig    `yaml:"diff"`
	Watch   WatchConfig   `yaml:"watch"`
}

// PluginsConfig selects and orders agent plugins.
type PluginsConfig struct {
	// Preferred lists plugin ids in presentation order; unlisted
	// plugins follow, sorted by label.
	Preferred []string `yaml:"preferred"`
}

// AmpConfig configures the Amp CLI plugin.
type AmpConfig struct {
	Binary  string   `yaml:"binary"`
	Timeout Duration `yaml:"timeout"`
}

// DiffConfig tunes diff construction.
type DiffConfig struct {
	ContextLines int `yaml:"context_lines"`
	RenameScore  int `yaml:"rename_score"`
}

// WatchConfig tunes the repository watcher.
type WatchConfig struct {
	Debounce Duration `yaml:"debounce"`
	// Ignore holds doublestar glob patterns matched against paths
	// relative to the repository root.
	Ignore []string `yaml:"ignore"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Plugins: PluginsConfig{
			Preferred: []string{"amp", "git-only"},
		},
		Amp: AmpConfig{
			Binary:  "amp",
			Timeout: Duration(60 * time.Second),
		},
		Diff: DiffConfig{
			ContextLines: 3,
			RenameScore:  50,
		},
		Watch: WatchConfig{
			Debounce: Duration(250 * time.Millisecond),
			Ignore:   []string{"**/node_modules/**", "**/.DS_Store"},
		},
	}
}

// DefaultPath returns the conventional config location, or "" when the
// user config dir cannot be determined.
func DefaultPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "loupe", "config.yaml")
}

// Load reads configuration from path. A missing file (or empty path)
// yields the defaults; a present but malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// applyDefaults sets default values for any unset options, so a
// partial config file only overrides what it names.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if len(c.Plugins.Preferred) == 0 {
		c.Plugins.Preferred = defaults.Plugins.Preferred
	}
	if c.Amp.Binary == "" {
		c.Amp.Binary = defaults.Amp.Binary
	}
	if c.Amp.Timeout == 0 {
		c.Amp.Timeout = defaults.Amp.Timeout
	}
	if c.Diff.ContextLines == 0 {
		c.Diff.ContextLines = defaults.Diff.ContextLines
	}
	if c.Diff.RenameScore == 0 {
		c.Diff.RenameScore = defaults.Diff.RenameScore
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = defaults.Watch.Debounce
	}
}

// Validate rejects values the rest of the system cannot work with.
func (c *Config) Validate() error {
	if c.Diff.ContextLines < 0 {
		return fmt.Errorf("diff.context_lines must not be negative, got %d", c.Diff.ContextLines)
	}
	if c.Diff.RenameScore < 0 || c.Diff.RenameScore > 100 {
		return fmt.Errorf("diff.rename_score must be between 0 and 100, got %d", c.Diff.RenameScore)
	}
	if c.Amp.Timeout < 0 {
		return fmt.Errorf("amp.timeout must not be negative, got %s", c.Amp.Timeout)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got %s", c.Watch.Debounce)
	}
	return nil
}
