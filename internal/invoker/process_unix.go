//go:build !windows

package invoker

import (
	"os/exec"
	"syscall"
	"time"
)

// configureProcess runs the command in its own process group so that
// cancellation sends SIGTERM to the tool and every child it spawned. A tool
// still running after grace is killed.
func configureProcess(cmd *exec.Cmd, grace time.Duration) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
		if err == syscall.ESRCH {
			return nil
		}
		return err
	}
	cmd.WaitDelay = grace
}
