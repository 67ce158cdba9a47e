//go:build windows

package invoker

import (
	"os/exec"
	"time"
)

// configureProcess falls back to killing the process on cancellation;
// process groups are not available.
func configureProcess(cmd *exec.Cmd, grace time.Duration) {
	cmd.WaitDelay = grace
}
