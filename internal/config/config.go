// Package config provides configuration management for binwatch.
//
// Configuration is loaded from three sources with the following precedence
// (highest to lowest):
//  1. CLI flags
//  2. Environment variables (BINWATCH_ prefix)
//  3. Config file (.binwatch.yaml)
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Supported log levels.
const (
	LogLevelTrace = "trace"
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Supported log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Supported host notification modes.
const (
	HostNotificationsEnabled  = "enabled"
	HostNotificationsDisabled = "disabled"
	HostNotificationsUnknown  = "unknown"
)

// Watch defaults.
const (
	DefaultBinDir      = "bin"
	DefaultDebounce    = 1500 * time.Millisecond
	DefaultQuietSuffix = ".log.resources"
	DefaultGracePeriod = 10 * time.Second
)

// Config represents the global configuration for binwatch.
type Config struct {
	// LogLevel controls the verbosity of log output.
	// Valid values: trace, debug, info, warn, error.
	LogLevel string `mapstructure:"log-level" json:"logLevel" yaml:"log-level"`

	// LogFormat controls the format of log output.
	// Valid values: text, json.
	LogFormat string `mapstructure:"log-format" json:"logFormat" yaml:"log-format"`

	// LogFile, when set, sends log output to a size-rotated file instead of stderr.
	LogFile string `mapstructure:"log-file" json:"logFile" yaml:"log-file"`

	// LogMaxSize is the rotation threshold for LogFile in megabytes.
	LogMaxSize int `mapstructure:"log-max-size" json:"logMaxSize" yaml:"log-max-size"`

	// LogMaxBackups is the number of rotated log files to keep.
	LogMaxBackups int `mapstructure:"log-max-backups" json:"logMaxBackups" yaml:"log-max-backups"`

	// Quiet suppresses all log output below error level.
	Quiet bool `mapstructure:"quiet" json:"quiet" yaml:"quiet"`

	// AppRoot is the application root directory. The watch target is
	// derived from it.
	AppRoot string `mapstructure:"app-root" json:"appRoot" yaml:"app-root"`

	// BinDir is the binary-assets directory, relative to AppRoot.
	BinDir string `mapstructure:"bin-dir" json:"binDir" yaml:"bin-dir"`

	// Debounce is the quiet period after the last qualifying change before
	// a recycle is requested.
	Debounce time.Duration `mapstructure:"debounce" json:"debounce" yaml:"debounce"`

	// QuietSuffix excludes matching paths from activity logging.
	QuietSuffix string `mapstructure:"quiet-suffix" json:"quietSuffix" yaml:"quiet-suffix"`

	// HostNotifications reports whether the host already restarts itself on
	// file changes. Valid values: enabled, disabled, unknown.
	HostNotifications string `mapstructure:"host-notifications" json:"hostNotifications" yaml:"host-notifications"`

	// FallbackHandle decides whether binwatch owns restarts when the host
	// notification mode cannot be determined.
	FallbackHandle bool `mapstructure:"fallback-handle" json:"fallbackHandle" yaml:"fallback-handle"`

	// GracePeriod is how long a supervised command gets to exit after
	// SIGTERM before it is killed.
	GracePeriod time.Duration `mapstructure:"grace-period" json:"gracePeriod" yaml:"grace-period"`

	// ConfigFile is the resolved path to the config file used.
	// Set after Load(), never read from config itself.
	ConfigFile string `mapstructure:"-" json:"-" yaml:"-"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel:          LogLevelInfo,
		LogFormat:         LogFormatText,
		LogMaxSize:        10,
		LogMaxBackups:     3,
		Quiet:             false,
		AppRoot:           ".",
		BinDir:            DefaultBinDir,
		Debounce:          DefaultDebounce,
		QuietSuffix:       DefaultQuietSuffix,
		HostNotifications: HostNotificationsUnknown,
		FallbackHandle:    true,
		GracePeriod:       DefaultGracePeriod,
	}
}

// Validate checks that all config values are valid.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		// valid
	default:
		return fmt.Errorf("invalid log level %q: must be one of trace, debug, info, warn, error", c.LogLevel)
	}

	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
		// valid
	default:
		return fmt.Errorf("invalid log format %q: must be one of text, json", c.LogFormat)
	}

	switch c.HostNotifications {
	case HostNotificationsEnabled, HostNotificationsDisabled, HostNotificationsUnknown:
		// valid
	default:
		return fmt.Errorf("invalid host notifications %q: must be one of enabled, disabled, unknown", c.HostNotifications)
	}

	if c.Debounce <= 0 {
		return fmt.Errorf("invalid debounce %s: must be positive", c.Debounce)
	}

	if c.GracePeriod < 0 {
		return fmt.Errorf("invalid grace period %s: must not be negative", c.GracePeriod)
	}

	if strings.TrimSpace(c.BinDir) == "" {
		return errors.New("invalid bin dir: must not be empty")
	}

	if c.LogFile != "" && c.LogMaxSize <= 0 {
		return fmt.Errorf("invalid log max size %d: must be positive", c.LogMaxSize)
	}

	return nil
}

// EffectiveLogLevel returns the log level to use. When Quiet is true the log
// level is overridden to "error" regardless of the configured LogLevel.
func (c *Config) EffectiveLogLevel() string {
	if c.Quiet {
		return LogLevelError
	}

	return c.LogLevel
}

// WatchTarget returns the absolute path of the binary-assets directory.
func (c *Config) WatchTarget() (string, error) {
	dir := c.BinDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(c.AppRoot, dir)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving watch target %q: %w", dir, err)
	}

	return abs, nil
}

// Load initialises configuration from flags, environment variables, and an
// optional config file. A fresh viper instance is used on every call so that
// Load is safe for concurrent tests.
func Load(cmd *cobra.Command, configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	configureEnv(v)

	if err := configureFile(v, configFile); err != nil {
		return nil, err
	}

	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("log-format", d.LogFormat)
	v.SetDefault("log-file", d.LogFile)
	v.SetDefault("log-max-size", d.LogMaxSize)
	v.SetDefault("log-max-backups", d.LogMaxBackups)
	v.SetDefault("quiet", d.Quiet)
	v.SetDefault("app-root", d.AppRoot)
	v.SetDefault("bin-dir", d.BinDir)
	v.SetDefault("debounce", d.Debounce)
	v.SetDefault("quiet-suffix", d.QuietSuffix)
	v.SetDefault("host-notifications", d.HostNotifications)
	v.SetDefault("fallback-handle", d.FallbackHandle)
	v.SetDefault("grace-period", d.GracePeriod)
}

// configureEnv sets up environment variable support.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix("BINWATCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

// configureFile sets up the config file source.
func configureFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %q: %w", configFile, err)
		}

		return nil
	}

	v.SetConfigName(".binwatch")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "binwatch"))
	}

	if err := v.ReadInConfig(); err != nil {
		// No config file found → perfectly fine in auto-discovery.
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}

		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// bindFlags walks from cmd up to the root and binds all PersistentFlags.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if cmd == nil {
		return nil
	}

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	for c := cmd; c != nil; c = c.Parent() {
		if err := v.BindPFlags(c.PersistentFlags()); err != nil {
			return fmt.Errorf("binding persistent flags: %w", err)
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

type ctxKey struct{}

// NewContext returns a child context carrying cfg.
func NewContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext extracts a Config from ctx, falling back to Default().
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(ctxKey{}).(*Config); ok {
		return cfg
	}

	return Default()
}
