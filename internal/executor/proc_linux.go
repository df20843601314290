//go:build linux

package executor

import (
	"os/exec"
	"syscall"
)

// configureCommandProcess puts the child in its own process group so the
// whole tree can be killed, and asks the kernel to kill it if the wrapper dies.
func configureCommandProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}
