// Package config loads rulebook settings from rulebook.yaml and RULEBOOK_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the complete rulebook configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Parser   ParserConfig   `mapstructure:"parser" yaml:"parser"`
	Snapshot SnapshotConfig `mapstructure:"snapshot" yaml:"snapshot"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Search   SearchConfig   `mapstructure:"search" yaml:"search"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // console or json
}

// ParserConfig configures the rules parser.
type ParserConfig struct {
	SectionDivisor int    `mapstructure:"sectionDivisor" yaml:"sectionDivisor"`
	Version        string `mapstructure:"version" yaml:"version"`
	Profile        string `mapstructure:"profile" yaml:"profile"`
	ProfileDir     string `mapstructure:"profileDir" yaml:"profileDir"`
	Workers        int    `mapstructure:"workers" yaml:"workers"`
}

// SnapshotConfig configures where and how datasets are serialized.
type SnapshotConfig struct {
	Path      string `mapstructure:"path" yaml:"path"`
	Compress  bool   `mapstructure:"compress" yaml:"compress"`
	OmitIndex bool   `mapstructure:"omitIndex" yaml:"omitIndex"`
}

// StoreConfig configures the SQLite export.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// SearchConfig configures search output.
type SearchConfig struct {
	Limit   int `mapstructure:"limit" yaml:"limit"`
	ID      int `mapstructure:"idWeight" yaml:"idWeight"`
	Title   int `mapstructure:"titleWeight" yaml:"titleWeight"`
	Content int `mapstructure:"contentWeight" yaml:"contentWeight"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Parser: ParserConfig{
			SectionDivisor: 100,
			Profile:        "default",
			ProfileDir:     "profiles",
			Workers:        4,
		},
		Snapshot: SnapshotConfig{
			Path: "rules.json",
		},
		Store: StoreConfig{
			Path: "rules.db",
		},
		Search: SearchConfig{
			Limit:   20,
			ID:      10,
			Title:   5,
			Content: 1,
		},
	}
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("parser.sectionDivisor", def.Parser.SectionDivisor)
	v.SetDefault("parser.version", def.Parser.Version)
	v.SetDefault("parser.profile", def.Parser.Profile)
	v.SetDefault("parser.profileDir", def.Parser.ProfileDir)
	v.SetDefault("parser.workers", def.Parser.Workers)
	v.SetDefault("snapshot.path", def.Snapshot.Path)
	v.SetDefault("snapshot.compress", def.Snapshot.Compress)
	v.SetDefault("snapshot.omitIndex", def.Snapshot.OmitIndex)
	v.SetDefault("store.path", def.Store.Path)
	v.SetDefault("search.limit", def.Search.Limit)
	v.SetDefault("search.idWeight", def.Search.ID)
	v.SetDefault("search.titleWeight", def.Search.Title)
	v.SetDefault("search.contentWeight", def.Search.Content)
}

// Load reads configuration. When path is empty, rulebook.yaml is searched
// in the working directory and in $HOME/.rulebook; a missing file yields the
// defaults. Environment variables such as RULEBOOK_LOG_LEVEL override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RULEBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("rulebook")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".rulebook"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the tools cannot use.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "console", "json":
	default:
		return &ConfigError{Field: "log.format", Message: fmt.Sprintf("unsupported format %q", c.Log.Format)}
	}
	if c.Parser.SectionDivisor <= 0 {
		return &ConfigError{Field: "parser.sectionDivisor", Message: "must be positive"}
	}
	if c.Parser.Workers <= 0 {
		return &ConfigError{Field: "parser.workers", Message: "must be positive"}
	}
	if c.Search.Limit < 0 {
		return &ConfigError{Field: "search.limit", Message: "must not be negative"}
	}
	return nil
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
