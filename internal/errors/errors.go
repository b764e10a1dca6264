// Package errors provides centralized error definitions and error handling utilities
// for devd-watcher. It defines the daemon's error taxonomy, error constructors
// with context wrapping, and error classification helpers.
//
// # Error Types
//
// The package mirrors the failure classes the dispatcher has to tell apart:
//   - ConfigError: a configuration value was malformed and has been defaulted
//   - SourceError: the hot-plug event source failed or was exhausted (process-fatal)
//   - LockError: the per-device lock could not be taken (directory, timeout, io)
//   - HelperError: the helper program exited non-zero or could not be started
//
// Only SourceError terminates the dispatch loop. Lock and helper errors are
// contained to the task that produced them.
//
// # Usage
//
//	err := errors.NewLockError("lock busy", errors.ErrLockTimeout).WithDevice("md0")
//
//	if errors.Is(err, errors.ErrLockTimeout) { ... }
//
//	var lockErr *errors.LockError
//	if errors.As(err, &lockErr) { ... }
//
//	if errors.IsFatal(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Configuration sentinel errors
var (
	// ErrInvalidTimeout indicates a non-positive or unparsable lock timeout.
	ErrInvalidTimeout = New("invalid lock timeout")
	// ErrConfigUnreadable indicates the configuration file could not be read.
	ErrConfigUnreadable = New("configuration file unreadable")
	// ErrUnknownSource indicates an unsupported event source kind.
	ErrUnknownSource = New("unknown event source")
)

// Event source sentinel errors
var (
	// ErrSourceExhausted indicates the event source has no more events.
	ErrSourceExhausted = New("event source exhausted")
	// ErrSourceRead indicates a fatal read failure on the event source.
	ErrSourceRead = New("event source read failed")
	// ErrSourceUnsupported indicates the source is not available on this platform.
	ErrSourceUnsupported = New("event source not supported on this platform")
)

// Lock sentinel errors
var (
	// ErrNotADirectory indicates the lock directory path exists but is not a directory.
	ErrNotADirectory = New("lock path is not a directory")
	// ErrLockDirectory indicates the lock directory could not be inspected or created.
	ErrLockDirectory = New("lock directory unavailable")
	// ErrLockTimeout indicates the device lock stayed busy for the whole timeout.
	ErrLockTimeout = New("lock busy")
	// ErrLockIO indicates an unexpected failure opening or locking the lock file.
	ErrLockIO = New("lock io failure")
)

// Helper sentinel errors
var (
	// ErrHelperFailed indicates the helper exited with a non-zero status.
	ErrHelperFailed = New("helper exited with failure")
	// ErrHelperStart indicates the helper process could not be started.
	ErrHelperStart = New("helper failed to start")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// WatcherError is the base interface for all devd-watcher errors.
type WatcherError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsFatal returns true if the error must terminate the dispatch loop.
	IsFatal() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message  string
	cause    error
	severity Severity
	fatal    bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsFatal returns whether the error ends the dispatch loop.
func (e *baseError) IsFatal() bool {
	return e.fatal
}

// formatWithContext renders "<kind> [k=v, ...]: message: cause".
func (e *baseError) formatWithContext(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain Errors
// -----------------------------------------------------------------------------

// ConfigError represents a malformed configuration value. These are recovered
// by falling back to a default and are never fatal.
//
// Example:
//
//	err := errors.NewConfigError("lock timeout must be positive", errors.ErrInvalidTimeout).
//		WithKey("DEMI_LOCK_TIMEOUT_SECONDS").WithValue("-3")
type ConfigError struct {
	baseError
	Key   string
	Value string
}

// NewConfigError creates a new ConfigError.
func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityWarning,
		},
	}
}

// WithKey adds the configuration key to the error context.
func (e *ConfigError) WithKey(key string) *ConfigError {
	e.Key = key
	return e
}

// WithValue adds the offending raw value to the error context.
func (e *ConfigError) WithValue(value string) *ConfigError {
	e.Value = value
	return e
}

// Error returns the formatted error message.
func (e *ConfigError) Error() string {
	var parts []string
	if e.Key != "" {
		parts = append(parts, fmt.Sprintf("key=%s", e.Key))
	}
	if e.Value != "" {
		parts = append(parts, fmt.Sprintf("value=%q", e.Value))
	}
	return e.formatWithContext("config error", parts)
}

// Is checks if this error matches the target.
func (e *ConfigError) Is(target error) bool {
	if _, ok := target.(*ConfigError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// SourceError represents a failure of the hot-plug event source. It is the
// only error class that terminates the dispatch loop.
//
// Example:
//
//	err := errors.NewSourceError("recvfrom failed", syscallErr).WithSource("netlink")
type SourceError struct {
	baseError
	Source string
}

// NewSourceError creates a new SourceError.
func NewSourceError(message string, cause error) *SourceError {
	return &SourceError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityCritical,
			fatal:    true,
		},
	}
}

// WithSource records which event source kind failed.
func (e *SourceError) WithSource(kind string) *SourceError {
	e.Source = kind
	return e
}

// Error returns the formatted error message.
func (e *SourceError) Error() string {
	var parts []string
	if e.Source != "" {
		parts = append(parts, fmt.Sprintf("source=%s", e.Source))
	}
	return e.formatWithContext("source error", parts)
}

// Is checks if this error matches the target.
func (e *SourceError) Is(target error) bool {
	if _, ok := target.(*SourceError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// LockError represents a failure to take the per-device advisory lock.
//
// Example:
//
//	err := errors.NewLockError("lock busy", errors.ErrLockTimeout).
//		WithDevice("md0").WithPath("run/md0.lock").WithWaited(5*time.Second)
type LockError struct {
	baseError
	Device string
	Path   string
	Waited time.Duration
}

// NewLockError creates a new LockError. Timeouts are expected under
// contention and are reported at warning severity.
func NewLockError(message string, cause error) *LockError {
	severity := SeverityError
	if errors.Is(cause, ErrLockTimeout) {
		severity = SeverityWarning
	}
	return &LockError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: severity,
		},
	}
}

// WithDevice adds the device basename to the error context.
func (e *LockError) WithDevice(device string) *LockError {
	e.Device = device
	return e
}

// WithPath adds the lock file or directory path to the error context.
func (e *LockError) WithPath(path string) *LockError {
	e.Path = path
	return e
}

// WithWaited records how long acquisition waited before giving up.
func (e *LockError) WithWaited(d time.Duration) *LockError {
	e.Waited = d
	return e
}

// Error returns the formatted error message.
func (e *LockError) Error() string {
	var parts []string
	if e.Device != "" {
		parts = append(parts, fmt.Sprintf("device=%s", e.Device))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	if e.Waited > 0 {
		parts = append(parts, fmt.Sprintf("waited=%s", e.Waited))
	}
	return e.formatWithContext("lock error", parts)
}

// Is checks if this error matches the target.
func (e *LockError) Is(target error) bool {
	if _, ok := target.(*LockError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// HelperError represents a helper invocation that did not exit cleanly.
// The dispatcher logs it and moves on.
//
// Example:
//
//	err := errors.NewHelperError("helper failed", errors.ErrHelperFailed).
//		WithCommand("helpers/linux/attach /dev/sdb").WithExitCode(2)
type HelperError struct {
	baseError
	Command  string
	ExitCode int
	Output   string
}

// NewHelperError creates a new HelperError.
func NewHelperError(message string, cause error) *HelperError {
	return &HelperError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityWarning,
		},
		ExitCode: -1, // -1 indicates not set
	}
}

// WithCommand adds the executed command line to the error context.
func (e *HelperError) WithCommand(command string) *HelperError {
	e.Command = command
	return e
}

// WithExitCode records the helper's exit status.
func (e *HelperError) WithExitCode(code int) *HelperError {
	e.ExitCode = code
	return e
}

// WithOutput attaches captured helper output.
func (e *HelperError) WithOutput(output string) *HelperError {
	e.Output = output
	return e
}

// Error returns the formatted error message.
func (e *HelperError) Error() string {
	var parts []string
	if e.Command != "" {
		parts = append(parts, fmt.Sprintf("command=%q", e.Command))
	}
	if e.ExitCode >= 0 {
		parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	}
	return e.formatWithContext("helper error", parts)
}

// Is checks if this error matches the target.
func (e *HelperError) Is(target error) bool {
	if _, ok := target.(*HelperError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsFatal returns true if the error must terminate the dispatch loop.
// Only SourceError (or an error wrapping one) is fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var watcherErr WatcherError
	if As(err, &watcherErr) {
		return watcherErr.IsFatal()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement WatcherError.
//
// Example:
//
//	switch errors.GetSeverity(err) {
//	case errors.SeverityCritical:
//	    logger.Error("fatal", "error", err)
//	case errors.SeverityWarning:
//	    logger.Warn("skipping", "error", err)
//	}
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var watcherErr WatcherError
	if As(err, &watcherErr) {
		return watcherErr.Severity()
	}

	return SeverityError
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike a bare fmt.Errorf, this returns nil for a nil error.
//
// Example:
//
//	err := errors.Wrap(baseErr, "open lock file")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "open lock file for %s", device)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
