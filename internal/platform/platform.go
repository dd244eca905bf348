// Package platform defines the OS collaborator interfaces the core
// consumes: input hooks, foreground-window sampling, and media sampling.
// Real implementations require platform-specific syscalls or cgo and are
// out of scope; this package ships only a best-effort host stub. The
// deterministic simulated implementation lives in internal/mockdriver,
// and the secret store interface in internal/integrity.
package platform

import "github.com/ownmon/ownmon/internal/counter"

// HookHandle is a scoped acquisition returned by InstallKeyboardHook and
// InstallMouseHook. Closing it releases the hook; it must be released on
// every exit path.
type HookHandle interface {
	Close() error
}

// InputKind discriminates which hook fired.
type InputKind = counter.Kind

// HookCallback is invoked by the OS on every matching input event. It must
// never surface an error — implementations always forward to the next
// hook in the chain regardless of what the callback does.
type HookCallback func(kind InputKind)

// HookInstaller is implemented by the OS-specific input hook
// collaborator.
type HookInstaller interface {
	InstallKeyboardHook(cb HookCallback) (HookHandle, error)
	InstallMouseHook(cb HookCallback) (HookHandle, error)
}

// WindowID is an opaque, runtime-only handle to a foreground window.
type WindowID int64

// ForegroundWindow is implemented by the OS-specific foreground-window
// collaborator.
type ForegroundWindow interface {
	// GetForegroundWindow returns the current foreground window id, or
	// ok=false if none (e.g. desktop focused, or unavailable).
	GetForegroundWindow() (id WindowID, ok bool)
	GetWindowTitle(id WindowID) (string, error)
	GetProcessIDOfWindow(id WindowID) (pid int, err error)
	// GetProcessName resolves a process id to its executable name.
	// ok=false when the name cannot be resolved (e.g. elevated process).
	GetProcessName(pid int) (name string, ok bool)
}

// MediaSampler is implemented by the OS-specific media-session
// collaborator (e.g. SMTC on Windows, MPRIS on Linux).
type MediaSampler interface {
	// SampleMedia returns the currently observed media state. ok=false
	// means no media player is reporting state at all.
	SampleMedia() (info MediaObservation, ok bool)
}

// MediaObservation mirrors activity.MediaInfo at the platform boundary so
// this package does not need to import the core's activity types.
type MediaObservation struct {
	Title     string
	Artist    string
	Album     string
	SourceApp string
	Playing   bool
	Paused    bool
}
