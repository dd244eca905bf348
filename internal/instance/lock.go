// Package instance implements the process-single-instance guard: a PID
// lock file, expressed as a scoped handle released on all exit paths.
package instance

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrAlreadyRunning is returned by Acquire when another live process
// already holds the lock.
var ErrAlreadyRunning = fmt.Errorf("instance: another ownmon process is already running")

// Lock is an owning handle on the single-instance lock file. Close must be
// called on every exit path to release it.
type Lock struct {
	path string
}

// Acquire creates the lock file at path, holding the current process PID.
// If an existing lock file names a PID that is no longer alive, it is
// treated as stale and reclaimed. If the named process is alive,
// ErrAlreadyRunning is returned.
func Acquire(path string) (*Lock, error) {
	if existing, ok := readPID(path); ok {
		if processAlive(existing) {
			return nil, ErrAlreadyRunning
		}
		// Stale lock: the previous process died without cleaning up.
		os.Remove(path)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			// Lost a race with another process between the stale check and
			// creation; treat conservatively as already running.
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("instance: create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("instance: write lock file: %w", err)
	}

	return &Lock{path: path}, nil
}

// Close releases the lock by removing the lock file.
func (l *Lock) Close() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("instance: remove lock file: %w", err)
	}
	return nil
}

func readPID(path string) (pid int, ok bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return n, true
}

// processAlive reports whether pid refers to a live process. On Unix,
// os.FindProcess always succeeds, so liveness is probed with signal 0,
// which performs permission and existence checks without affecting the
// target process.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return signalZero(proc)
}
