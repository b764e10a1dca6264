// Package logging provides structured logging for devd-watcher.
//
// It wraps log/slog with level parsing, device and task scoped child loggers
// and an optional size-rotated log file.
//
// # Formats
//
// Output is JSON by default. With format "auto" a terminal on the other end
// of stderr gets slog's text handler instead, which is easier to read while
// running the daemon by hand.
//
// # Thread Safety
//
// [Logger] and [RotatingWriter] are safe for concurrent use. Child loggers
// created via With* share the writer of their parent.
//
// # Basic Usage
//
//	logger, err := logging.New(logging.Options{
//	    Level:    "info",
//	    File:     "/var/log/devd-watcher.log",
//	    Rotation: logging.DefaultRotationConfig(),
//	})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.WithDevice("md0").Warn("lock busy, skipping", "waited", 5*time.Second)
package logging
