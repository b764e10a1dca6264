package cmd

import (
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mergar/devd-watcher/internal/config"
	"github.com/mergar/devd-watcher/internal/devlock"
	"github.com/mergar/devd-watcher/internal/dispatch"
	"github.com/mergar/devd-watcher/internal/errors"
	"github.com/mergar/devd-watcher/internal/event"
	"github.com/mergar/devd-watcher/internal/filter"
	"github.com/mergar/devd-watcher/internal/helper"
	"github.com/mergar/devd-watcher/internal/logging"
	"github.com/mergar/devd-watcher/internal/source"
)

// runDaemon reads events until a signal arrives or the source fails, then
// waits for running helpers. A signal stops the reader only; helpers that
// already started run to completion. Only a source failure is returned.
func runDaemon(cmd *cobra.Command, cfg *config.Config, warnings []error) error {
	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
		Rotation: logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		},
		Stderr: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	for _, w := range warnings {
		logger.Warn("configuration problem, using defaults", "error", w)
	}

	kind := source.Resolve(cfg.Source, runtime.GOOS)
	src, err := source.Open(kind, source.Options{
		DevDir:  cfg.DevDir,
		Script:  eventsPath,
		Stdin:   cmd.InOrStdin(),
		Cloexec: true,
	})
	if err != nil {
		logger.Error("cannot open event source", "source", kind, "error", err)
		return err
	}
	defer func() { _ = src.Close() }()

	bus := event.NewBus()
	bus.OnPanic(func(eventType string, recovered any) {
		logger.Error("event handler panicked", "event_type", eventType, "panic", recovered)
	})
	subscribeLifecycle(bus, logger)

	d := dispatch.New(dispatch.Options{
		Rules: filter.Compile(cfg.AllowedDevices),
		Locks: devlock.NewManager(cfg.LockDir, cfg.LockTimeout()),
		Runner: helper.Invoker{
			Shell:      cfg.Shell,
			HelpersDir: cfg.HelpersDir,
			Platform:   cfg.Platform,
		},
		DevDir:        cfg.DevDir,
		MaxConcurrent: cfg.MaxConcurrent,
		SourceName:    kind,
		Logger:        logger,
		Bus:           bus,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("devd-watcher started",
		"source", kind,
		"platform", cfg.Platform,
		"lock_dir", cfg.LockDir,
		"lock_timeout", cfg.LockTimeout(),
		"allowed_devices", cfg.AllowedDevices,
	)

	runErr := d.Run(ctx, src)
	d.Wait()

	st := d.Stats()
	logger.Info("devd-watcher stopped",
		"received", st.Received,
		"dispatched", st.Dispatched,
		"filtered", st.Filtered,
		"ignored", st.Ignored,
		"lock_timeouts", st.LockTimeouts,
		"helper_failures", st.HelperFailures,
	)

	// A replayed script simply ends.
	if kind == source.KindScript && errors.Is(runErr, errors.ErrSourceExhausted) {
		return nil
	}
	if errors.IsFatal(runErr) {
		logger.Error("event source lost, exiting", "source", kind, "error", runErr)
	}
	return runErr
}

// subscribeLifecycle logs task outcomes that the dispatcher itself reports
// only at debug level.
func subscribeLifecycle(bus *event.Bus, logger *logging.Logger) {
	bus.Subscribe(event.TypeTaskCompleted, func(e event.Event) {
		ev, ok := e.(event.TaskCompletedEvent)
		if !ok {
			return
		}
		logger.WithTask(ev.TaskID).Debug("task completed",
			"device", ev.Basename, "outcome", ev.Outcome, "duration", ev.Duration)
	})
	bus.Subscribe(event.TypeDeviceFiltered, func(e event.Event) {
		if ev, ok := e.(event.DeviceFilteredEvent); ok {
			logger.Info("device not in allow-list, skipping", "device", ev.Device)
		}
	})
}
