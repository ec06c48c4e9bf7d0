//go:build windows

package supervisor

import "golang.org/x/sys/windows"

// killGroup opens pid with terminate rights and terminates it with exit
// code 1. Windows has no process-group signal equivalent to SIGKILL, so
// grandchildren are not guaranteed to die here.
func killGroup(pid int) {
	if pid == 0 {
		return
	}
	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		return
	}
	defer windows.CloseHandle(h)
	_ = windows.TerminateProcess(h, 1)
}

func killHard(pid int) { killGroup(pid) }
