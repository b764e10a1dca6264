package event

import "time"

// Event types, following the "category.action" convention.
const (
	TypeDeviceReceived = "device.received"
	TypeDeviceIgnored  = "device.ignored"
	TypeDeviceFiltered = "device.filtered"
	TypeTaskDispatched = "task.dispatched"
	TypeLockAcquired   = "lock.acquired"
	TypeLockTimeout    = "lock.timeout"
	TypeLockFailed     = "lock.failed"
	TypeHelperFinished = "helper.finished"
	TypeTaskCompleted  = "task.completed"
)

// Event is implemented by every published event.
type Event interface {
	EventType() string
	Timestamp() time.Time
}

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// -----------------------------------------------------------------------------
// Device Events
// -----------------------------------------------------------------------------

// DeviceReceivedEvent is emitted for every notification read from the source.
type DeviceReceivedEvent struct {
	baseEvent
	Device string
	Kind   string
}

// NewDeviceReceivedEvent creates a DeviceReceivedEvent.
func NewDeviceReceivedEvent(device, kind string) DeviceReceivedEvent {
	return DeviceReceivedEvent{
		baseEvent: newBaseEvent(TypeDeviceReceived),
		Device:    device,
		Kind:      kind,
	}
}

// DeviceIgnoredEvent is emitted when a notification has no device name or
// no helper action.
type DeviceIgnoredEvent struct {
	baseEvent
	Device string
	Reason string // "empty name" or "unknown kind"
}

// NewDeviceIgnoredEvent creates a DeviceIgnoredEvent.
func NewDeviceIgnoredEvent(device, reason string) DeviceIgnoredEvent {
	return DeviceIgnoredEvent{
		baseEvent: newBaseEvent(TypeDeviceIgnored),
		Device:    device,
		Reason:    reason,
	}
}

// DeviceFilteredEvent is emitted when the allow-list rejects a device.
type DeviceFilteredEvent struct {
	baseEvent
	Device string
}

// NewDeviceFilteredEvent creates a DeviceFilteredEvent.
func NewDeviceFilteredEvent(device string) DeviceFilteredEvent {
	return DeviceFilteredEvent{
		baseEvent: newBaseEvent(TypeDeviceFiltered),
		Device:    device,
	}
}

// -----------------------------------------------------------------------------
// Task Events
// -----------------------------------------------------------------------------

// TaskDispatchedEvent is emitted when a task is handed to a goroutine.
type TaskDispatchedEvent struct {
	baseEvent
	TaskID    uint64
	Basename  string
	Action    string
	DevNode   string
	Truncated bool // basename was cut to the platform limit
}

// NewTaskDispatchedEvent creates a TaskDispatchedEvent.
func NewTaskDispatchedEvent(taskID uint64, basename, action, devnode string, truncated bool) TaskDispatchedEvent {
	return TaskDispatchedEvent{
		baseEvent: newBaseEvent(TypeTaskDispatched),
		TaskID:    taskID,
		Basename:  basename,
		Action:    action,
		DevNode:   devnode,
		Truncated: truncated,
	}
}

// TaskCompletedEvent is emitted when a task has released its lock, or gave
// up before getting one.
type TaskCompletedEvent struct {
	baseEvent
	TaskID   uint64
	Basename string
	Outcome  string // "ok", "helper_failed", "lock_timeout", "lock_failed"
	Duration time.Duration
}

// NewTaskCompletedEvent creates a TaskCompletedEvent.
func NewTaskCompletedEvent(taskID uint64, basename, outcome string, d time.Duration) TaskCompletedEvent {
	return TaskCompletedEvent{
		baseEvent: newBaseEvent(TypeTaskCompleted),
		TaskID:    taskID,
		Basename:  basename,
		Outcome:   outcome,
		Duration:  d,
	}
}

// -----------------------------------------------------------------------------
// Lock Events
// -----------------------------------------------------------------------------

// LockAcquiredEvent is emitted when a task takes the device lock.
type LockAcquiredEvent struct {
	baseEvent
	TaskID   uint64
	Basename string
	Path     string
	Waited   time.Duration
}

// NewLockAcquiredEvent creates a LockAcquiredEvent.
func NewLockAcquiredEvent(taskID uint64, basename, path string, waited time.Duration) LockAcquiredEvent {
	return LockAcquiredEvent{
		baseEvent: newBaseEvent(TypeLockAcquired),
		TaskID:    taskID,
		Basename:  basename,
		Path:      path,
		Waited:    waited,
	}
}

// LockTimeoutEvent is emitted when the lock stayed busy for the whole
// timeout and the event was abandoned.
type LockTimeoutEvent struct {
	baseEvent
	TaskID   uint64
	Basename string
	Waited   time.Duration
}

// NewLockTimeoutEvent creates a LockTimeoutEvent.
func NewLockTimeoutEvent(taskID uint64, basename string, waited time.Duration) LockTimeoutEvent {
	return LockTimeoutEvent{
		baseEvent: newBaseEvent(TypeLockTimeout),
		TaskID:    taskID,
		Basename:  basename,
		Waited:    waited,
	}
}

// LockFailedEvent is emitted for lock failures other than a timeout.
type LockFailedEvent struct {
	baseEvent
	TaskID   uint64
	Basename string
	Err      error
}

// NewLockFailedEvent creates a LockFailedEvent.
func NewLockFailedEvent(taskID uint64, basename string, err error) LockFailedEvent {
	return LockFailedEvent{
		baseEvent: newBaseEvent(TypeLockFailed),
		TaskID:    taskID,
		Basename:  basename,
		Err:       err,
	}
}

// -----------------------------------------------------------------------------
// Helper Events
// -----------------------------------------------------------------------------

// HelperFinishedEvent is emitted after the helper exits, successfully or not.
type HelperFinishedEvent struct {
	baseEvent
	TaskID   uint64
	Basename string
	Command  string
	ExitCode int
	Duration time.Duration
	Err      error
}

// NewHelperFinishedEvent creates a HelperFinishedEvent.
func NewHelperFinishedEvent(taskID uint64, basename, command string, exitCode int, d time.Duration, err error) HelperFinishedEvent {
	return HelperFinishedEvent{
		baseEvent: newBaseEvent(TypeHelperFinished),
		TaskID:    taskID,
		Basename:  basename,
		Command:   command,
		ExitCode:  exitCode,
		Duration:  d,
		Err:       err,
	}
}

// Success reports whether the helper exited with status 0.
func (e HelperFinishedEvent) Success() bool { return e.Err == nil }
