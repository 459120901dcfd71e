//go:build windows

package procutil

import "os"

func signal0(proc *os.Process) error {
	// os.Process.Signal is unsupported on Windows except os.Kill; a nil
	// FindProcess result earlier already covers the common "doesn't exist"
	// case, so treat a resolved handle as alive.
	return nil
}

func gracefulSignal(proc *os.Process) error {
	return proc.Kill()
}

func ppidOf(pid int) (int, bool) {
	// No portable ancestry lookup without a Windows-specific toolhelp
	// snapshot; callers fall back to the session-state file (spec §9).
	return 0, false
}
