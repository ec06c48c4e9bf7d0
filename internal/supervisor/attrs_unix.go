//go:build linux

package supervisor

import (
	"os/exec"
	"syscall"
)

// applyPlatformAttrs puts the child in its own session and process group
// (setsid makes it the leader of a new group) so the whole tree can be
// signalled via -pid, and sets PR_SET_PDEATHSIG so the child dies if procd
// itself dies unexpectedly.
func applyPlatformAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:    true,
		Pdeathsig: syscall.SIGTERM,
	}
}
