package chromium

import (
	"os/exec"
	"syscall"
)

// killAfterParent makes the kernel kill the browser when the thread that
// started it exits.
func killAfterParent(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}
}
