// Package devlock serializes work per device using advisory file locks.
//
// Each device basename maps to a lock file "<dir>/<basename>.lock". A task
// takes the lock with a non-blocking flock(2) and, while another holder owns
// it, polls every [DefaultPollInterval] until the configured timeout runs out.
// The lock is advisory: only cooperating processes (other devd-watcher
// instances and other tasks of this one) observe it.
//
// # Basic Usage
//
//	mgr := devlock.NewManager("run", 5*time.Second)
//
//	h, err := mgr.Acquire(ctx, "md0")
//	if errors.Is(err, errors.ErrLockTimeout) {
//	    // busy, skip this event
//	}
//	defer h.Release()
//
// # Guarantees
//
// Acquisitions for different basenames never block each other. Acquisitions
// for the same basename are strictly serialized by the kernel; waiters are not
// queued and no fairness or ordering is promised among them.
//
// Lock files are left in place after release.
package devlock
