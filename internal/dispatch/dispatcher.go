package dispatch

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"

	"github.com/mergar/devd-watcher/internal/devlock"
	"github.com/mergar/devd-watcher/internal/errors"
	"github.com/mergar/devd-watcher/internal/event"
	"github.com/mergar/devd-watcher/internal/filter"
	"github.com/mergar/devd-watcher/internal/helper"
	"github.com/mergar/devd-watcher/internal/logging"
	"github.com/mergar/devd-watcher/internal/source"
)

// Locker hands out per-device locks. *devlock.Manager implements it.
type Locker interface {
	Acquire(ctx context.Context, device string) (*devlock.Handle, error)
}

// Runner executes a helper. helper.Invoker implements it.
type Runner interface {
	Run(ctx context.Context, action, devnode string) (helper.Result, error)
}

// Task outcomes reported in task.completed events.
const (
	OutcomeOK           = "ok"
	OutcomeHelperFailed = "helper_failed"
	OutcomeLockTimeout  = "lock_timeout"
	OutcomeLockFailed   = "lock_failed"
)

// Options configures a Dispatcher.
type Options struct {
	Rules  filter.Rules
	Locks  Locker
	Runner Runner
	// DevDir prefixes device names to form the helper argument.
	DevDir string
	// MaxConcurrent bounds running tasks; 0 is unbounded.
	MaxConcurrent int
	// SourceName labels source errors and log lines.
	SourceName string
	Logger     *logging.Logger
	Bus        *event.Bus
}

// spawner runs tasks. conc.WaitGroup and *pool.Pool satisfy it.
type spawner interface {
	Go(func())
	Wait()
}

// Dispatcher drives events from a source through filter, lock and helper.
// Handle and Run must be called from a single goroutine.
type Dispatcher struct {
	rules      filter.Rules
	locks      Locker
	runner     Runner
	devDir     string
	maxTasks   int
	sourceName string
	logger     *logging.Logger
	bus        *event.Bus

	mu      sync.Mutex
	tasks   spawner
	nextID  atomic.Uint64
	counter counters
}

// New creates a Dispatcher. Locks and Runner are required.
func New(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	devDir := opts.DevDir
	if devDir == "" {
		devDir = "/dev"
	}
	d := &Dispatcher{
		rules:      opts.Rules,
		locks:      opts.Locks,
		runner:     opts.Runner,
		devDir:     devDir,
		maxTasks:   opts.MaxConcurrent,
		sourceName: opts.SourceName,
		logger:     logger,
		bus:        opts.Bus,
	}
	d.tasks = d.newSpawner()
	return d
}

func (d *Dispatcher) newSpawner() spawner {
	if d.maxTasks > 0 {
		return pool.New().WithMaxGoroutines(d.maxTasks)
	}
	return &conc.WaitGroup{}
}

// Run reads events from src until it fails or ctx is cancelled. A cancelled
// ctx returns nil; any other stop, including exhaustion, returns a
// *errors.SourceError. Run does not wait for in-flight tasks, and cancelling
// ctx does not cancel them; call Wait to let them finish.
func (d *Dispatcher) Run(ctx context.Context, src source.Source) error {
	log := d.logger.WithSource(d.sourceName)
	log.Info("dispatcher started", "max_concurrent", d.maxTasks, "filter", d.rules.String())

	for {
		ev, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("dispatcher stopped", "reason", ctx.Err())
				return nil
			}
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("%w: %w", errors.ErrSourceExhausted, err)
			}
			srcErr := errors.NewSourceError("event source stopped", err).WithSource(d.sourceName)
			log.Error("event source failed", "error", srcErr)
			return srcErr
		}
		d.Handle(ctx, ev)
	}
}

// Handle processes one event and reports whether a task was dispatched.
func (d *Dispatcher) Handle(ctx context.Context, ev source.Event) bool {
	d.counter.received.Add(1)
	d.bus.Publish(event.NewDeviceReceivedEvent(ev.Name, ev.Kind.String()))

	if ev.Name == "" {
		d.ignore(ev, "empty name")
		return false
	}
	action, ok := actionFor(ev.Kind)
	if !ok {
		d.ignore(ev, "unknown kind")
		return false
	}
	if !d.rules.Allowed(ev.Name) {
		d.counter.filtered.Add(1)
		d.logger.Debug("device filtered", "device", ev.Name, "action", action)
		d.bus.Publish(event.NewDeviceFilteredEvent(ev.Name))
		return false
	}

	task := newTask(d.nextID.Add(1), ev, d.devDir, action)
	if task.Truncated {
		d.logger.Warn("device basename too long, truncated",
			"device", task.Basename, "length", len(ev.Name))
	}

	d.counter.dispatched.Add(1)
	d.logger.Debug("task dispatched",
		"task_id", task.ID, "device", task.Basename, "action", task.Action, "devnode", task.DevNode)
	d.bus.Publish(event.NewTaskDispatchedEvent(task.ID, task.Basename, task.Action, task.DevNode, task.Truncated))

	d.mu.Lock()
	tasks := d.tasks
	d.mu.Unlock()
	// Shutdown stops the reader, not tasks: a started helper always finishes.
	taskCtx := context.WithoutCancel(ctx)
	tasks.Go(func() { d.runTask(taskCtx, task) })
	return true
}

func (d *Dispatcher) ignore(ev source.Event, reason string) {
	d.counter.ignored.Add(1)
	d.logger.Debug("event ignored", "device", ev.Name, "kind", ev.Kind.String(), "reason", reason)
	d.bus.Publish(event.NewDeviceIgnoredEvent(ev.Name, reason))
}

// runTask holds the device lock for the whole helper run.
func (d *Dispatcher) runTask(ctx context.Context, task Task) {
	start := time.Now()
	log := d.logger.WithTask(task.ID).WithDevice(task.Basename)

	handle, err := d.locks.Acquire(ctx, task.Basename)
	if err != nil {
		d.finish(task, d.lockFailed(log, task, err), start)
		return
	}
	waited := time.Since(start)
	log.Debug("lock acquired", "path", handle.Path(), "waited", waited)
	d.bus.Publish(event.NewLockAcquiredEvent(task.ID, task.Basename, handle.Path(), waited))

	outcome := OutcomeOK
	res, err := d.runner.Run(ctx, task.Action, task.DevNode)
	if err != nil {
		outcome = OutcomeHelperFailed
		d.counter.helperFailures.Add(1)
		logError(log, "helper failed", err,
			"command", res.Command, "exit_code", res.ExitCode, "duration", res.Duration)
	} else {
		log.Info("helper finished",
			"command", res.Command, "exit_code", res.ExitCode, "duration", res.Duration)
	}
	d.bus.Publish(event.NewHelperFinishedEvent(task.ID, task.Basename, res.Command, res.ExitCode, res.Duration, err))

	if err := handle.Release(); err != nil {
		log.Warn("lock release failed", "error", err)
	}
	d.finish(task, outcome, start)
}

func (d *Dispatcher) lockFailed(log *logging.Logger, task Task, err error) string {
	var waited time.Duration
	var lockErr *errors.LockError
	if errors.As(err, &lockErr) {
		waited = lockErr.Waited
	}

	if errors.Is(err, errors.ErrLockTimeout) {
		d.counter.lockTimeouts.Add(1)
		logError(log, "lock busy, skipping", err, "waited", waited)
		d.bus.Publish(event.NewLockTimeoutEvent(task.ID, task.Basename, waited))
		return OutcomeLockTimeout
	}

	d.counter.lockErrors.Add(1)
	logError(log, "lock failed", err)
	d.bus.Publish(event.NewLockFailedEvent(task.ID, task.Basename, err))
	return OutcomeLockFailed
}

// logError logs err at the level its severity calls for.
func logError(log *logging.Logger, msg string, err error, args ...any) {
	args = append(args, "error", err)
	switch errors.GetSeverity(err) {
	case errors.SeverityCritical, errors.SeverityError:
		log.Error(msg, args...)
	case errors.SeverityWarning:
		log.Warn(msg, args...)
	default:
		log.Info(msg, args...)
	}
}

func (d *Dispatcher) finish(task Task, outcome string, start time.Time) {
	d.counter.completed.Add(1)
	d.bus.Publish(event.NewTaskCompletedEvent(task.ID, task.Basename, outcome, time.Since(start)))
}

// Wait blocks until all dispatched tasks have finished. It must not run
// concurrently with Run or Handle. The dispatcher can be reused afterwards.
func (d *Dispatcher) Wait() {
	d.mu.Lock()
	tasks := d.tasks
	d.tasks = d.newSpawner()
	d.mu.Unlock()
	tasks.Wait()
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return d.counter.snapshot()
}
