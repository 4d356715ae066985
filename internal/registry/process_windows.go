//go:build windows

package registry

import "os"

// isProcessAlive has no signal-0 equivalent on Windows; FindProcess
// succeeding is the best available liveness signal for a PID pkglab itself
// recorded.
func isProcessAlive(pid int) bool {
	_, err := os.FindProcess(pid)
	return err == nil
}

func terminate(proc *os.Process) error {
	return proc.Kill()
}

func kill(proc *os.Process) error {
	return proc.Kill()
}
