// Package config loads msixmgr settings from defaults, an optional YAML
// file, MSIXCORE_* environment variables and command line overrides, in
// increasing order of precedence.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joomcode/errorx"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/peitaosu/msix-packaging/pkg/container"
	"github.com/peitaosu/msix-packaging/pkg/platform"
)

const EnvPrefix = "MSIXCORE"

// Keys accepted in the config file, the environment and overrides.
const (
	KeyRoot          = "root"
	KeyValidation    = "validation"
	KeyLogLevel      = "log.level"
	KeyLogFormat     = "log.format"
	KeyLogFile       = "log.file"
	KeyLogMaxSizeMB  = "log.max_size_mb"
	KeyLogMaxBackups = "log.max_backups"
	KeyLockTimeout   = "lock_timeout"
)

const (
	DefaultRoot        = "~/.msixcore"
	DefaultLockTimeout = 30 * time.Second
)

var (
	ErrorsNamespace = errorx.NewNamespace("config")
	NotFoundError   = ErrorsNamespace.NewType("not_found", errorx.NotFound())
	InvalidConfig   = ErrorsNamespace.NewType("invalid")
)

// Config holds the settings of one msixmgr invocation.
type Config struct {
	Root        string        `mapstructure:"root"`
	Validation  string        `mapstructure:"validation"`
	Log         LogConfig     `mapstructure:"log"`
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

// LogConfig configures the process logger. An empty File logs to stderr
// only; otherwise the file is rotated at MaxSizeMB.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyRoot, DefaultRoot)
	v.SetDefault(KeyValidation, container.ValidateFull.String())
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyLogMaxSizeMB, 10)
	v.SetDefault(KeyLogMaxBackups, 3)
	v.SetDefault(KeyLockTimeout, DefaultLockTimeout)
}

// Load reads the configuration. path may be empty; overrides are applied
// last, keyed like the config file.
func Load(path string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil, NotFoundError.Wrap(err, "config file not found: %s", path).
				WithProperty(errorx.PropertyPayload(), path)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errorx.IllegalFormat.Wrap(err, "failed to read config file: %s", path).
				WithProperty(errorx.PropertyPayload(), path)
		}
	}
	for key, value := range overrides {
		v.Set(key, value)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, InvalidConfig.Wrap(err, "failed to decode configuration")
	}

	var err error
	if c.Root, err = homedir.Expand(strings.TrimSpace(c.Root)); err != nil {
		return nil, InvalidConfig.Wrap(err, "invalid root %q", c.Root)
	}
	if c.Log.File, err = homedir.Expand(strings.TrimSpace(c.Log.File)); err != nil {
		return nil, InvalidConfig.Wrap(err, "invalid log file %q", c.Log.File)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks every field.
func (c *Config) Validate() error {
	if c.Root == "" {
		return InvalidConfig.New("root must not be empty")
	}
	if _, err := container.ParseValidation(c.Validation); err != nil {
		return InvalidConfig.Wrap(err, "invalid %s", KeyValidation)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return InvalidConfig.New("invalid %s %q: want text or json", KeyLogFormat, c.Log.Format)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 {
		return InvalidConfig.New("log rotation limits must not be negative")
	}
	if c.LockTimeout < 0 {
		return InvalidConfig.New("invalid %s %s", KeyLockTimeout, c.LockTimeout)
	}
	return nil
}

// ValidationPolicy returns the parsed package validation policy.
func (c *Config) ValidationPolicy() container.Validation {
	v, _ := container.ParseValidation(c.Validation)
	return v
}

// Paths returns the host location mappings under Root.
func (c *Config) Paths() (platform.Paths, error) {
	return platform.NewPaths(c.Root)
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(l.Level))); err != nil {
		return 0, InvalidConfig.Wrap(err, "invalid %s %q", KeyLogLevel, l.Level)
	}
	return level, nil
}
