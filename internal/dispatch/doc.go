// Package dispatch turns device notifications into helper runs.
//
// A [Dispatcher] reads events from a [source.Source] on a single goroutine.
// Each event with a device name and a known kind is checked against the
// allow-list; accepted events become a [Task] that runs on its own goroutine:
//
//	acquire device lock -> run helper -> release lock
//
// The reader never waits for tasks. Tasks for different devices run in any
// order and may overlap; tasks for the same device are serialized by the
// device lock, and a task that cannot get the lock within the timeout drops
// its event.
//
// # Concurrency
//
// With MaxConcurrent == 0 every task gets its own goroutine. A positive value
// runs tasks on a bounded worker pool and the reader blocks while the pool is
// full.
//
// Tasks are never cancelled from outside. Cancelling the context given to Run
// or Handle stops reading, while started tasks keep their lock wait and run
// their helper to completion; Wait blocks until they are done.
//
// # Failures
//
// Lock and helper failures stay inside their task: they are logged, counted
// in [Stats] and published on the event bus. Only a source failure ends Run.
package dispatch
