package devlock

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mergar/devd-watcher/internal/errors"
)

const (
	// DefaultTimeout is how long Acquire waits for a busy lock.
	DefaultTimeout = 5 * time.Second
	// DefaultPollInterval is the delay between lock attempts while busy.
	DefaultPollInterval = 100 * time.Millisecond

	lockSuffix = ".lock"
	dirMode    = 0755
	fileMode   = 0644
)

// Handle is a held device lock. It owns the open lock file until Release.
type Handle struct {
	mu       sync.Mutex
	device   string
	path     string
	file     *os.File
	acquired time.Time
}

// Device returns the device basename the lock was taken for.
func (h *Handle) Device() string { return h.device }

// Path returns the lock file path.
func (h *Handle) Path() string { return h.path }

// AcquiredAt returns when the lock was obtained.
func (h *Handle) AcquiredAt() time.Time { return h.acquired }

// Release clears the advisory lock and closes the lock file.
// Releasing an already released handle is a no-op.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.file == nil {
		return nil
	}

	unlockErr := unlock(h.file)
	closeErr := h.file.Close()
	h.file = nil

	if unlockErr != nil {
		return errors.Wrapf(unlockErr, "funlock %s", h.path)
	}
	if closeErr != nil {
		return errors.Wrapf(closeErr, "close %s", h.path)
	}
	return nil
}

// Manager hands out per-device locks inside one lock directory.
// A Manager holds no per-device state and is safe for concurrent use.
type Manager struct {
	dir          string
	timeout      time.Duration
	pollInterval time.Duration
	now          func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithPollInterval overrides the delay between attempts on a busy lock.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithClock overrides the time source used for timeout accounting.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a Manager for dir. A non-positive timeout falls back
// to DefaultTimeout.
func NewManager(dir string, timeout time.Duration, opts ...Option) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	m := &Manager{
		dir:          dir,
		timeout:      timeout,
		pollInterval: DefaultPollInterval,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dir returns the lock directory.
func (m *Manager) Dir() string { return m.dir }

// Timeout returns the acquisition timeout.
func (m *Manager) Timeout() time.Duration { return m.timeout }

// Path returns the lock file path for a device basename.
func (m *Manager) Path(device string) string {
	return filepath.Join(m.dir, device+lockSuffix)
}

// Acquire takes the lock for device, creating the lock directory and file
// as needed. While the lock is held elsewhere it retries every poll
// interval; once the time since the first attempt reaches the timeout it
// fails with a LockError wrapping ErrLockTimeout. Any other flock failure
// is returned immediately as ErrLockIO. Cancelling ctx aborts the wait.
func (m *Manager) Acquire(ctx context.Context, device string) (*Handle, error) {
	if err := EnsureDir(m.dir); err != nil {
		return nil, errors.NewLockError("ensure lock directory", err).
			WithDevice(device).WithPath(m.dir)
	}

	path := m.Path(device)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, fileMode)
	if err != nil {
		return nil, errors.NewLockError("open lock file", fmt.Errorf("%w: %w", errors.ErrLockIO, err)).
			WithDevice(device).WithPath(path)
	}

	start := m.now()
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		busy, err := tryLock(f)
		if err != nil {
			_ = f.Close()
			return nil, errors.NewLockError("flock", fmt.Errorf("%w: %w", errors.ErrLockIO, err)).
				WithDevice(device).WithPath(path)
		}
		if !busy {
			h := &Handle{device: device, path: path, file: f, acquired: m.now()}
			writeOwnerNote(f, device, h.acquired)
			return h, nil
		}

		waited := m.now().Sub(start)
		if waited >= m.timeout {
			_ = f.Close()
			return nil, errors.NewLockError("lock busy, skipping", errors.ErrLockTimeout).
				WithDevice(device).WithPath(path).WithWaited(waited)
		}

		if timer == nil {
			timer = time.NewTimer(m.pollInterval)
		} else {
			timer.Reset(m.pollInterval)
		}
		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, errors.NewLockError("wait canceled", ctx.Err()).
				WithDevice(device).WithPath(path).WithWaited(m.now().Sub(start))
		case <-timer.C:
		}
	}
}

// Held reports whether another holder currently owns the lock for device.
// It never creates the lock directory; a missing lock file means not held.
func (m *Manager) Held(device string) (bool, error) {
	f, err := os.OpenFile(m.Path(device), os.O_RDWR, fileMode)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", errors.ErrLockIO, err)
	}
	defer f.Close()

	busy, err := tryLock(f)
	if err != nil {
		return false, fmt.Errorf("%w: %w", errors.ErrLockIO, err)
	}
	if !busy {
		_ = unlock(f)
	}
	return busy, nil
}

// Acquire is a convenience wrapper around NewManager(dir, timeout).Acquire.
func Acquire(ctx context.Context, dir, device string, timeout time.Duration) (*Handle, error) {
	return NewManager(dir, timeout).Acquire(ctx, device)
}

// EnsureDir makes sure dir exists and is a directory. A directory created
// concurrently by another task is not an error.
func EnsureDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return errors.ErrNotADirectory
		}
		return nil
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(dir, dirMode); err != nil {
			// Lost a creation race against a file rather than a directory.
			if info, statErr := os.Stat(dir); statErr == nil && !info.IsDir() {
				return errors.ErrNotADirectory
			}
			return fmt.Errorf("%w: %w", errors.ErrLockDirectory, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %w", errors.ErrLockDirectory, err)
	}
}

// writeOwnerNote replaces the lock file contents with one informational
// line. Failures are ignored; the content is never read back.
func writeOwnerNote(f *os.File, device string, at time.Time) {
	note := fmt.Sprintf("pid=%d acquired=%s device=%s\n", os.Getpid(), at.Format(time.RFC3339), device)
	if err := f.Truncate(0); err != nil {
		return
	}
	_, _ = f.WriteAt([]byte(note), 0)
}
