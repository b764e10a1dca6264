// Package event provides the in-process bus the dispatcher uses to report
// task lifecycle progress.
//
// The dispatcher publishes; the CLI subscribes a logger and tests subscribe
// recorders. Nothing in the hot path depends on a subscriber being present.
//
// # Event Types
//
//   - device.received, device.ignored, device.filtered: per notification
//   - task.dispatched, task.completed: per spawned task
//   - lock.acquired, lock.timeout, lock.failed: device lock outcome
//   - helper.finished: helper exit status and duration
//
// # Thread Safety
//
// [Bus] is safe for concurrent use. Tasks publish from their own goroutines,
// so handlers see events from different devices interleaved. A panicking
// handler is recovered and does not stop delivery to the others.
//
// # Basic Usage
//
//	bus := event.NewBus()
//	bus.Subscribe(event.TypeLockTimeout, func(e event.Event) {
//	    te := e.(event.LockTimeoutEvent)
//	    log.Printf("%s busy for %v", te.Basename, te.Waited)
//	})
package event
