package platform

import "errors"

// ErrUnavailable is returned by stub methods: real OS input-hook and
// foreground-window primitives require platform-specific syscalls or cgo,
// which are out of scope for this module. The stub lets the rest of the
// pipeline build and run on any platform while clearly reporting that it
// cannot observe anything.
var ErrUnavailable = errors.New("platform: not available on this host build")

// HostStub is a best-effort collaborator implementation for platforms
// without a native backend wired in. Every operation reports unavailable
// rather than fabricating data.
type HostStub struct{}

// NewHostStub returns a HostStub implementing HookInstaller,
// ForegroundWindow, and MediaSampler.
func NewHostStub() *HostStub {
	return &HostStub{}
}

func (h *HostStub) InstallKeyboardHook(cb HookCallback) (HookHandle, error) {
	return nil, ErrUnavailable
}

func (h *HostStub) InstallMouseHook(cb HookCallback) (HookHandle, error) {
	return nil, ErrUnavailable
}

func (h *HostStub) GetForegroundWindow() (WindowID, bool) {
	return 0, false
}

func (h *HostStub) GetWindowTitle(id WindowID) (string, error) {
	return "", ErrUnavailable
}

func (h *HostStub) GetProcessIDOfWindow(id WindowID) (int, error) {
	return 0, ErrUnavailable
}

func (h *HostStub) GetProcessName(pid int) (string, bool) {
	return "", false
}

func (h *HostStub) SampleMedia() (MediaObservation, bool) {
	return MediaObservation{}, false
}
