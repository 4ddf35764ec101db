package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/quantmind-br/pkglife/internal/security"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Paths      PathsConfig      `mapstructure:"paths"`
	Scriptlets ScriptletsConfig `mapstructure:"scriptlets"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// PathsConfig contains path-related configuration
type PathsConfig struct {
	DataDir string `mapstructure:"data_dir"`
	DBFile  string `mapstructure:"db_file"`
	LogFile string `mapstructure:"log_file"`
}

// ScriptletsConfig controls how scriptlets are executed
type ScriptletsConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	DefaultInterpreter string        `mapstructure:"default_interpreter"`
	Root               string        `mapstructure:"root"`
	Suppress           bool          `mapstructure:"suppress"`
	Env                []string      `mapstructure:"env"` // KEY=VALUE pairs added to every scriptlet
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	Color string `mapstructure:"color"`
}

// Load loads configuration from the default search path and environment
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration from file, or from the default search path when
// file is empty. PKGLIFE_* environment variables override both.
func LoadFile(file string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	if file != "" {
		v.SetConfigFile(expandPath(file))
	} else {
		v.SetConfigName("config")
		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "pkglife"))
		}
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.SetEnvPrefix("PKGLIFE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Paths.DataDir = expandPath(cfg.Paths.DataDir)
	cfg.Paths.DBFile = expandPath(cfg.Paths.DBFile)
	cfg.Paths.LogFile = expandPath(cfg.Paths.LogFile)
	cfg.Scriptlets.Root = expandPath(cfg.Scriptlets.Root)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	if c.Scriptlets.Timeout <= 0 {
		return fmt.Errorf("scriptlets.timeout must be positive, got %s", c.Scriptlets.Timeout)
	}
	if err := security.ValidateInterpreter(c.Scriptlets.DefaultInterpreter); err != nil {
		return fmt.Errorf("scriptlets.default_interpreter: %w", err)
	}
	if _, err := c.ScriptEnv(); err != nil {
		return fmt.Errorf("scriptlets.env: %w", err)
	}
	return nil
}

// ScriptEnv returns the configured extra environment as a map
func (c *Config) ScriptEnv() (map[string]string, error) {
	return security.ParseEnvAssignments(c.Scriptlets.Env)
}

func setDefaults(v *viper.Viper) {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		homeDir = os.Getenv("HOME")
	}
	if homeDir == "" {
		homeDir = "."
	}

	dataDir := filepath.Join(homeDir, ".local", "share", "pkglife")
	v.SetDefault("paths.data_dir", dataDir)
	v.SetDefault("paths.db_file", filepath.Join(dataDir, "packages.db"))
	v.SetDefault("paths.log_file", filepath.Join(dataDir, "pkglife.log"))

	v.SetDefault("scriptlets.timeout", 60*time.Second)
	v.SetDefault("scriptlets.default_interpreter", "/bin/sh")
	v.SetDefault("scriptlets.root", "/")
	v.SetDefault("scriptlets.suppress", false)
	v.SetDefault("scriptlets.env", []string{})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.color", "auto")
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[1:])
		}
	}

	return os.ExpandEnv(path)
}
