//go:build unix

package helper

import (
	"os/exec"
	"syscall"
)

// configureProcess puts the helper in its own process group so a cancelled
// context takes down everything the shell started.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
