package helper

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/mergar/devd-watcher/internal/errors"
)

// Actions understood by the helper layout.
const (
	ActionAttach = "attach"
	ActionDetach = "detach"
	ActionChange = "change"
)

const (
	// DefaultShell runs the helper command line.
	DefaultShell = "/bin/sh"
	// OutputTailSize bounds the captured helper output.
	OutputTailSize = 4 << 10

	// waitDelay caps how long Wait blocks on output pipes after the shell
	// exits, for helpers that leave background children holding them.
	waitDelay = 2 * time.Second
)

// Invoker builds and runs helper commands.
type Invoker struct {
	Shell      string
	HelpersDir string
	Platform   string
}

// Result describes a finished helper run.
type Result struct {
	Command  string
	ExitCode int
	Duration time.Duration
	Output   string
}

// Success reports whether the helper exited with status 0.
func (r Result) Success() bool { return r.ExitCode == 0 }

// Command returns the command line for action on devnode.
func (inv Invoker) Command(action, devnode string) string {
	return fmt.Sprintf("%s %s", filepath.Join(inv.HelpersDir, inv.Platform, action), devnode)
}

// Run executes the helper for action and devnode and waits for it to exit.
//
// A non-zero exit status is reported as a *errors.HelperError wrapping
// ErrHelperFailed; failure to start the shell wraps ErrHelperStart. In both
// cases the returned Result is still populated as far as known. Cancelling
// ctx kills the helper's process group.
func (inv Invoker) Run(ctx context.Context, action, devnode string) (Result, error) {
	command := inv.Command(action, devnode)
	res := Result{Command: command, ExitCode: -1}

	shell := inv.Shell
	if shell == "" {
		shell = DefaultShell
	}

	out := newTailBuffer(OutputTailSize)
	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = waitDelay
	configureProcess(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		res.Duration = time.Since(start)
		return res, errors.NewHelperError("helper failed to start", fmt.Errorf("%w: %w", errors.ErrHelperStart, err)).
			WithCommand(command)
	}
	waitErr := cmd.Wait()
	res.Duration = time.Since(start)
	res.Output = out.String()
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if waitErr == nil {
		return res, nil
	}

	cause := errors.ErrHelperFailed
	if ctxErr := ctx.Err(); ctxErr != nil {
		cause = fmt.Errorf("%w: %w", errors.ErrHelperFailed, ctxErr)
	}
	return res, errors.NewHelperError("helper failed", cause).
		WithCommand(command).
		WithExitCode(res.ExitCode).
		WithOutput(res.Output)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	if n >= b.max {
		b.buf = append(b.buf[:0], p[n-b.max:]...)
		return n, nil
	}
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return n, nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
