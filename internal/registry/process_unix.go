//go:build !windows

package registry

import (
	"errors"
	"os"
	"syscall"
)

// isProcessAlive sends signal 0, the standard Unix liveness probe: it
// performs no action but still errors ESRCH if the PID no longer exists.
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPERM
	}
	return false
}

func terminate(proc *os.Process) error {
	return proc.Signal(syscall.SIGTERM)
}

func kill(proc *os.Process) error {
	return proc.Signal(syscall.SIGKILL)
}
