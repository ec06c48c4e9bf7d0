//go:build !windows

package supervisor

import "golang.org/x/sys/unix"

// killGroup sends sig to the process group led by pid. On Linux, Spawn
// starts the child with Setsid (attrs_unix.go), so pid is the group leader
// and signalling -pid reaches every descendant as well. A pid of 0 is a
// no-op.
func killGroup(pid int, sig unix.Signal) {
	if pid == 0 {
		return
	}
	_ = unix.Kill(-pid, sig)
}

// killHard sends SIGKILL to the process group. Every control path
// (restart, kill, max_run timeout) terminates this way; signalling the
// group rather than just pid ensures grandchildren die along with the
// direct child.
func killHard(pid int) {
	killGroup(pid, unix.SIGKILL)
}
