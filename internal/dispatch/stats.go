package dispatch

import "sync/atomic"

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Received       uint64 `yaml:"received"`
	Ignored        uint64 `yaml:"ignored"`
	Filtered       uint64 `yaml:"filtered"`
	Dispatched     uint64 `yaml:"dispatched"`
	LockTimeouts   uint64 `yaml:"lock_timeouts"`
	LockErrors     uint64 `yaml:"lock_errors"`
	HelperFailures uint64 `yaml:"helper_failures"`
	Completed      uint64 `yaml:"completed"`
}

// InFlight returns the number of dispatched tasks that have not completed.
func (s Stats) InFlight() uint64 {
	return s.Dispatched - s.Completed
}

type counters struct {
	received       atomic.Uint64
	ignored        atomic.Uint64
	filtered       atomic.Uint64
	dispatched     atomic.Uint64
	lockTimeouts   atomic.Uint64
	lockErrors     atomic.Uint64
	helperFailures atomic.Uint64
	completed      atomic.Uint64
}

func (c *counters) snapshot() Stats {
	// Completed first so InFlight never underflows.
	completed := c.completed.Load()
	return Stats{
		Received:       c.received.Load(),
		Ignored:        c.ignored.Load(),
		Filtered:       c.filtered.Load(),
		Dispatched:     c.dispatched.Load(),
		LockTimeouts:   c.lockTimeouts.Load(),
		LockErrors:     c.lockErrors.Load(),
		HelperFailures: c.helperFailures.Load(),
		Completed:      completed,
	}
}
