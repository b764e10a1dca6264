// Package config loads the daemon configuration from defaults, a config
// file and DEMI_* environment variables.
package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mergar/devd-watcher/internal/errors"
)

const (
	// DefaultPath is the config file read when none is given.
	DefaultPath = "etc/devd-watcher.conf"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "DEMI"

	defaultLockDir            = "run"
	defaultLockTimeoutSeconds = 5
)

// Config holds the daemon configuration. It is loaded once at startup and
// treated as read-only afterwards.
type Config struct {
	// LockDir holds the per-device lock files.
	LockDir string `mapstructure:"lock_dir"`
	// LockTimeoutSeconds bounds the wait for a busy device lock. Always
	// positive after Load. Decoded separately by ParseTimeout.
	LockTimeoutSeconds int `mapstructure:"-"`
	// AllowedDevices is the space separated allow-list. Empty allows all.
	AllowedDevices string `mapstructure:"allowed_devices"`
	// HelpersDir contains <platform>/<action> helper programs.
	HelpersDir string `mapstructure:"helpers_dir"`
	Platform   string `mapstructure:"platform"`
	// DevDir prefixes device names to form device node paths.
	DevDir string `mapstructure:"dev_dir"`
	// Source selects the event source: auto, netlink, devd, devfs or script.
	Source string `mapstructure:"source"`
	// MaxConcurrent caps concurrently running tasks. 0 is unbounded.
	MaxConcurrent int    `mapstructure:"max_concurrent"`
	Shell         string `mapstructure:"shell"`

	Logging LoggingConfig `mapstructure:",squash"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error"
	Level string `mapstructure:"log_level"`
	// File is the log file path. Empty logs to stderr.
	File string `mapstructure:"log_file"`
	// Format is "auto", "json" or "text".
	Format string `mapstructure:"log_format"`
	// MaxSizeMB is the maximum size of a log file before rotation
	MaxSizeMB int `mapstructure:"log_max_size_mb"`
	// MaxBackups is the number of rotated log files to keep
	MaxBackups int `mapstructure:"log_max_backups"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		LockDir:            defaultLockDir,
		LockTimeoutSeconds: defaultLockTimeoutSeconds,
		AllowedDevices:     "",
		HelpersDir:         "helpers",
		Platform:           DefaultPlatform(runtime.GOOS),
		DevDir:             "/dev",
		Source:             "auto",
		MaxConcurrent:      0,
		Shell:              "/bin/sh",
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			Format:     "auto",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// DefaultPlatform maps a GOOS value to the helper platform directory name.
func DefaultPlatform(goos string) string {
	switch goos {
	case "linux", "freebsd":
		return goos
	default:
		return "unknown"
	}
}

// LockTimeout returns the lock wait bound as a duration.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutSeconds) * time.Second
}

// keyNames maps config file KEY names to viper keys. The viper key with
// EnvPrefix is also the environment variable name.
var keyNames = map[string]string{
	"DEMI_LOCK_DIR":             "lock_dir",
	"DEMI_LOCK_TIMEOUT_SECONDS": "lock_timeout_seconds",
	"DEMI_ALLOWED_DEVICES":      "allowed_devices",
	"DEMI_HELPERS_DIR":          "helpers_dir",
	"DEMI_PLATFORM":             "platform",
	"DEMI_DEV_DIR":              "dev_dir",
	"DEMI_SOURCE":               "source",
	"DEMI_MAX_CONCURRENT":       "max_concurrent",
	"DEMI_SHELL":                "shell",
	"DEMI_LOG_LEVEL":            "log_level",
	"DEMI_LOG_FILE":             "log_file",
	"DEMI_LOG_FORMAT":           "log_format",
	"DEMI_LOG_MAX_SIZE_MB":      "log_max_size_mb",
	"DEMI_LOG_MAX_BACKUPS":      "log_max_backups",
}

// SetDefaults registers defaults and environment overrides on v.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("lock_dir", defaults.LockDir)
	v.SetDefault("lock_timeout_seconds", defaults.LockTimeoutSeconds)
	v.SetDefault("allowed_devices", defaults.AllowedDevices)
	v.SetDefault("helpers_dir", defaults.HelpersDir)
	v.SetDefault("platform", defaults.Platform)
	v.SetDefault("dev_dir", defaults.DevDir)
	v.SetDefault("source", defaults.Source)
	v.SetDefault("max_concurrent", defaults.MaxConcurrent)
	v.SetDefault("shell", defaults.Shell)

	v.SetDefault("log_level", defaults.Logging.Level)
	v.SetDefault("log_file", defaults.Logging.File)
	v.SetDefault("log_format", defaults.Logging.Format)
	v.SetDefault("log_max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("log_max_backups", defaults.Logging.MaxBackups)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
}

// ReadFile merges the config file at path into v. Files ending in .yaml,
// .yml, .toml or .json are read natively with lower-case keys; anything
// else is parsed as KEY=VALUE lines. Unknown keys are ignored.
//
// An unreadable file yields a *errors.ConfigError wrapping
// ErrConfigUnreadable; callers log it and continue with defaults.
func ReadFile(v *viper.Viper, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".toml", ".json":
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return errors.NewConfigError("cannot read config file",
				fmt.Errorf("%w: %w", errors.ErrConfigUnreadable, err)).WithKey(path)
		}
		return nil
	}

	values, err := ParseFile(path)
	if err != nil {
		return errors.NewConfigError("cannot read config file",
			fmt.Errorf("%w: %w", errors.ErrConfigUnreadable, err)).WithKey(path)
	}

	settings := make(map[string]any, len(values))
	for name, value := range values {
		if key, ok := keyNames[name]; ok {
			settings[key] = value
		}
	}
	return v.MergeConfigMap(settings)
}

// Load builds a Config from v. Recoverable problems such as a non-positive
// lock timeout are fixed up and returned as warnings; invalid values that
// cannot be defaulted are returned as ValidationErrors.
func Load(v *viper.Viper) (*Config, []error, error) {
	var warnings []error

	rawTimeout := v.GetString("lock_timeout_seconds")
	timeout, err := ParseTimeout(rawTimeout)
	if err != nil {
		warnings = append(warnings, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, warnings, errors.NewConfigError("cannot decode configuration", err)
	}
	cfg.LockTimeoutSeconds = timeout
	cfg.applyFallbacks()

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, warnings, ValidationErrors(errs)
	}
	return &cfg, warnings, nil
}

// applyFallbacks restores defaults for settings that are empty after
// loading, e.g. "DEMI_LOCK_DIR=" in the config file.
func (c *Config) applyFallbacks() {
	d := Default()
	if c.LockDir == "" {
		c.LockDir = d.LockDir
	}
	if c.HelpersDir == "" {
		c.HelpersDir = d.HelpersDir
	}
	if c.Platform == "" {
		c.Platform = d.Platform
	}
	if c.DevDir == "" {
		c.DevDir = d.DevDir
	}
	if c.Source == "" {
		c.Source = d.Source
	}
	if c.Shell == "" {
		c.Shell = d.Shell
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)
}

// ParseTimeout converts a timeout setting the way atoi(3) would: leading
// blanks and an optional sign, then digits up to the first non-digit. A
// result that is not positive becomes the default of 5 seconds and is
// reported as a *errors.ConfigError.
func ParseTimeout(raw string) (int, error) {
	n := atoi(raw)
	if n > 0 {
		return n, nil
	}
	return defaultLockTimeoutSeconds, errors.NewConfigError(
		fmt.Sprintf("lock timeout must be positive, using %d", defaultLockTimeoutSeconds),
		errors.ErrInvalidTimeout).WithKey("DEMI_LOCK_TIMEOUT_SECONDS").WithValue(raw)
}

func atoi(s string) int {
	s = strings.TrimLeft(s, " \t\n\v\f\r")
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	n := 0
	for i := 0; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int(s[i]-'0')
		if n > 1<<31 {
			n = 1 << 31
		}
	}
	if neg {
		return -n
	}
	return n
}

// Setting is one effective configuration value for display.
type Setting struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// Settings lists the effective configuration in config file key order.
func (c *Config) Settings() []Setting {
	return []Setting{
		{"DEMI_LOCK_DIR", c.LockDir},
		{"DEMI_LOCK_TIMEOUT_SECONDS", fmt.Sprint(c.LockTimeoutSeconds)},
		{"DEMI_ALLOWED_DEVICES", c.AllowedDevices},
		{"DEMI_HELPERS_DIR", c.HelpersDir},
		{"DEMI_PLATFORM", c.Platform},
		{"DEMI_DEV_DIR", c.DevDir},
		{"DEMI_SOURCE", c.Source},
		{"DEMI_MAX_CONCURRENT", fmt.Sprint(c.MaxConcurrent)},
		{"DEMI_SHELL", c.Shell},
		{"DEMI_LOG_LEVEL", c.Logging.Level},
		{"DEMI_LOG_FILE", c.Logging.File},
		{"DEMI_LOG_FORMAT", c.Logging.Format},
		{"DEMI_LOG_MAX_SIZE_MB", fmt.Sprint(c.Logging.MaxSizeMB)},
		{"DEMI_LOG_MAX_BACKUPS", fmt.Sprint(c.Logging.MaxBackups)},
	}
}
