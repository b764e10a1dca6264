package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config key (e.g., "DEMI_MAX_CONCURRENT")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the list of valid log output formats
func ValidLogFormats() []string {
	return []string{"auto", "json", "text"}
}

// ValidSources returns the list of valid event source kinds
func ValidSources() []string {
	return []string{"auto", "netlink", "devd", "devfs", "script"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateCore()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateCore() []ValidationError {
	var errors []ValidationError

	if c.LockTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "DEMI_LOCK_TIMEOUT_SECONDS",
			Value:   c.LockTimeoutSeconds,
			Message: "must be positive",
		})
	}

	for field, path := range map[string]string{
		"DEMI_LOCK_DIR":    c.LockDir,
		"DEMI_HELPERS_DIR": c.HelpersDir,
		"DEMI_DEV_DIR":     c.DevDir,
	} {
		if strings.ContainsRune(path, '\x00') {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   path,
				Message: "contains invalid null character",
			})
		}
	}

	if strings.ContainsAny(c.Platform, "/\x00") {
		errors = append(errors, ValidationError{
			Field:   "DEMI_PLATFORM",
			Value:   c.Platform,
			Message: "must be a single directory name",
		})
	}

	if !slices.Contains(ValidSources(), c.Source) {
		errors = append(errors, ValidationError{
			Field:   "DEMI_SOURCE",
			Value:   c.Source,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidSources(), ", ")),
		})
	}

	if c.MaxConcurrent < 0 {
		errors = append(errors, ValidationError{
			Field:   "DEMI_MAX_CONCURRENT",
			Value:   c.MaxConcurrent,
			Message: "must be non-negative (0 means unbounded)",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "DEMI_LOG_LEVEL",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if !slices.Contains(ValidLogFormats(), c.Logging.Format) {
		errors = append(errors, ValidationError{
			Field:   "DEMI_LOG_FORMAT",
			Value:   c.Logging.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogFormats(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "DEMI_LOG_MAX_SIZE_MB",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative (0 disables rotation)",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "DEMI_LOG_MAX_SIZE_MB",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "DEMI_LOG_MAX_BACKUPS",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
