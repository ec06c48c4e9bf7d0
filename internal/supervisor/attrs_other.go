//go:build !linux

package supervisor

import "os/exec"

// applyPlatformAttrs is a no-op placeholder on non-Linux build targets;
// process-group isolation and PR_SET_PDEATHSIG have no portable analogue
// outside POSIX/Linux, and procd's supported deployment target is Linux.
func applyPlatformAttrs(cmd *exec.Cmd) {}
