//go:build !linux

package chromium

import "os/exec"

// killAfterParent is only supported on Linux. Elsewhere the browser is
// killed through the process register.
func killAfterParent(*exec.Cmd) {}
