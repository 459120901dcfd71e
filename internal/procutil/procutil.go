// Package procutil implements the thin process-tree and termination
// collaborator interfaces the core consumes (spec §6): parent_id,
// ppid_of, is_alive, and terminate (graceful then forced).
package procutil

import (
	"os"
	"time"
)

// ParentPID returns the calling process's parent PID.
func ParentPID() int {
	return os.Getppid()
}

// IsAlive reports whether a process with the given PID currently exists.
// On unix, sending signal 0 checks existence without affecting the
// process; FindProcess never fails on unix so the real check happens in
// Signal.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return signal0(proc) == nil
}

// Terminate sends a graceful termination signal, waits up to timeout, and
// escalates to a forced kill if the process is still alive. Returns true if
// the process was confirmed gone by the time Terminate returns.
func Terminate(pid int, timeout time.Duration) bool {
	if !IsAlive(pid) {
		return true
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return true
	}
	_ = gracefulSignal(proc)

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !IsAlive(pid) {
			return true
		}
		time.Sleep(25 * time.Millisecond)
	}

	_ = proc.Kill()
	time.Sleep(25 * time.Millisecond)
	return !IsAlive(pid)
}

// PPIDOf returns the parent PID of an arbitrary (not necessarily the
// calling) process, used for ancestor-agent lookup (spec §4.10, §9). It is
// platform-specific; see procutil_unix.go / procutil_windows.go.
func PPIDOf(pid int) (int, bool) {
	return ppidOf(pid)
}
