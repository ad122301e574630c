// Package config loads timebox settings from defaults, an optional YAML
// file and TIMEBOX_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// DataDirName is the directory timebox keeps its state in.
	DataDirName = ".timebox"
	// FileName is the config file looked up inside the data directory.
	FileName = "config.yaml"

	EnvPrefix = "TIMEBOX"

	DefaultMaxConcurrency = 10
	DefaultCapacity       = 100
	DefaultLogLevel       = "info"
)

// Config holds all runtime settings.
type Config struct {
	DataDir        string `mapstructure:"data_dir" yaml:"data_dir,omitempty" validate:"required"`
	DBPath         string `mapstructure:"db_path" yaml:"db_path,omitempty"`
	SnapshotPath   string `mapstructure:"snapshot_path" yaml:"snapshot_path,omitempty"`
	MaxConcurrency int    `mapstructure:"max_concurrency" yaml:"max_concurrency" validate:"min=1,max=10"`
	Capacity       int    `mapstructure:"capacity" yaml:"capacity" validate:"min=1,max=1000"`
	LogLevel       string `mapstructure:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	AutoSnapshot   bool   `mapstructure:"auto_snapshot" yaml:"auto_snapshot"`
	ConfirmStart   bool   `mapstructure:"confirm_start" yaml:"confirm_start"`
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		DataDir:        DataDirName,
		MaxConcurrency: DefaultMaxConcurrency,
		Capacity:       DefaultCapacity,
		LogLevel:       DefaultLogLevel,
		AutoSnapshot:   true,
		ConfirmStart:   true,
	}
}

var validate = validator.New()

// LoadFrom reads the configuration. path may be empty, in which case
// <data_dir>/config.yaml is used if it exists. An explicitly named file
// that does not exist is an error. A non-empty dataDir overrides the
// configured one, as done by the -data-dir flag.
func LoadFrom(dataDir, path string) (*Config, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	def := Default()
	v := viper.New()
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("db_path", "")
	v.SetDefault("snapshot_path", "")
	v.SetDefault("max_concurrency", def.MaxConcurrency)
	v.SetDefault("capacity", def.Capacity)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("auto_snapshot", def.AutoSnapshot)
	v.SetDefault("confirm_start", def.ConfirmStart)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if dataDir != "" {
		v.Set("data_dir", dataDir)
	}

	explicit := path != ""
	if !explicit {
		path = filepath.Join(v.GetString("data_dir"), FileName)
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), !explicit && errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.applyPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the value ranges of every setting.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) applyPaths() {
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "timebox.db")
	}
	if c.SnapshotPath == "" {
		c.SnapshotPath = filepath.Join(c.DataDir, "tasks.jsonl")
	}
}

// WriteDefault writes a default config file to path unless one exists.
// It reports whether a file was written.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	def := Default()
	def.DataDir = ""
	data, err := yaml.Marshal(&def)
	if err != nil {
		return false, fmt.Errorf("failed to encode default config: %w", err)
	}
	header := "# timebox configuration. Environment variables (TIMEBOX_*) override these values.\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}
