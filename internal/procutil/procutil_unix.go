//go:build unix

package procutil

import (
	"os"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

func signal0(proc *os.Process) error {
	return proc.Signal(unix.Signal(0))
}

func gracefulSignal(proc *os.Process) error {
	return proc.Signal(unix.SIGTERM)
}

// ppidOf shells out to `ps` rather than reading /proc directly, since this
// must work on both Linux and macOS (spec §6 Process tree collaborator).
func ppidOf(pid int) (int, bool) {
	out, err := exec.Command("ps", "-o", "ppid=", "-p", strconv.Itoa(pid)).Output() // #nosec G204 -- pid is an int, no injection surface
	if err != nil {
		return 0, false
	}
	trimmed := strings.TrimSpace(string(out))
	ppid, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, false
	}
	return ppid, true
}
