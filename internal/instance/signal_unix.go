//go:build !windows

package instance

import (
	"os"
	"syscall"
)

// signalZero probes liveness via signal 0: delivered to no one, but
// existence/permission errors still surface.
func signalZero(proc *os.Process) bool {
	err := proc.Signal(syscall.Signal(0))
	return err == nil
}
