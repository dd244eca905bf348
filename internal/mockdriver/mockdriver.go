// Package mockdriver implements a deterministic simulated environment
// collaborator, used by ownmon's --mock flag and by higher-level tests
// that need input/window/media activity without a real OS backend. The
// patterned-window-switch/patterned-typing approach is adapted from the
// teacher's synthetic session generator.
package mockdriver

import (
	"math/rand"
	"sync"
	"time"

	"github.com/ownmon/ownmon/internal/activity"
	"github.com/ownmon/ownmon/internal/platform"
)

// window describes one simulated application the driver cycles through.
type window struct {
	process string
	titles  []string
}

var defaultWindows = []window{
	{process: "code.exe", titles: []string{"main.go - myproject", "store_test.go - myproject"}},
	{process: "chrome.exe", titles: []string{"Inbox - Gmail", "golang.org - The Go Programming Language"}},
	{process: "slack.exe", titles: []string{"general | team-workspace"}},
	{process: "spotify.exe", titles: []string{"Now Playing"}},
}

// Driver simulates foreground-window changes, input bursts, and media
// playback on a fixed tick, feeding them through a HookCallback and the
// ForegroundWindow/MediaSampler interfaces. It implements
// platform.ForegroundWindow and platform.MediaSampler directly so it can
// stand in for the real OS collaborators during --mock runs.
type Driver struct {
	mu sync.Mutex
	rng *rand.Rand

	windows    []window
	current    int
	currentID  platform.WindowID
	nextID     platform.WindowID
	switchEvery time.Duration
	lastSwitch time.Time

	mediaIdx   int
	mediaPlaying bool

	keyCB platform.HookCallback
	mouseCB platform.HookCallback
}

// New returns a Driver seeded with a fixed window set. seed makes the
// simulated sequence reproducible across runs for a given seed value.
func New(seed int64) *Driver {
	d := &Driver{
		rng:         rand.New(rand.NewSource(seed)),
		windows:     defaultWindows,
		switchEvery: 15 * time.Second,
		nextID:      1,
	}
	d.currentID = d.nextID
	d.nextID++
	return d
}

// InstallKeyboardHook and InstallMouseHook satisfy platform.HookInstaller;
// the driver calls back into cb itself as it simulates input bursts via
// Tick.
func (d *Driver) InstallKeyboardHook(cb platform.HookCallback) (platform.HookHandle, error) {
	d.mu.Lock()
	d.keyCB = cb
	d.mu.Unlock()
	return noopHandle{}, nil
}

func (d *Driver) InstallMouseHook(cb platform.HookCallback) (platform.HookHandle, error) {
	d.mu.Lock()
	d.mouseCB = cb
	d.mu.Unlock()
	return noopHandle{}, nil
}

type noopHandle struct{}

func (noopHandle) Close() error { return nil }

// GetForegroundWindow implements platform.ForegroundWindow.
func (d *Driver) GetForegroundWindow() (platform.WindowID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentID, true
}

func (d *Driver) GetWindowTitle(id platform.WindowID) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w := d.windows[d.current]
	return w.titles[d.rng.Intn(len(w.titles))], nil
}

func (d *Driver) GetProcessIDOfWindow(id platform.WindowID) (int, error) {
	return int(id) + 1000, nil
}

func (d *Driver) GetProcessName(pid int) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.windows[d.current].process, true
}

// SampleMedia implements platform.MediaSampler: the "spotify.exe" window
// is treated as the active media source whenever it is foreground.
func (d *Driver) SampleMedia() (platform.MediaObservation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.windows[d.current].process != "spotify.exe" {
		return platform.MediaObservation{}, false
	}
	return platform.MediaObservation{
		Title:     "Simulated Track",
		Artist:    "Simulated Artist",
		Album:     "Simulated Album",
		SourceApp: "spotify.exe",
		Playing:   true,
	}, true
}

// Status converts the driver's simple playing flag into an
// activity.PlaybackStatus, for callers that want the activity-level enum
// directly rather than the platform.MediaObservation shape.
func Status(playing, paused bool) activity.PlaybackStatus {
	switch {
	case playing:
		return activity.Playing
	case paused:
		return activity.Paused
	default:
		return activity.Stopped
	}
}

// Tick advances the simulated world by one step: occasionally switches
// the foreground window and fires a burst of simulated input events
// through whatever hooks were installed. Intended to be called once per
// poller tick in --mock mode.
func (d *Driver) Tick(now time.Time) {
	d.mu.Lock()
	if d.lastSwitch.IsZero() {
		d.lastSwitch = now
	}
	if now.Sub(d.lastSwitch) >= d.switchEvery {
		d.current = d.rng.Intn(len(d.windows))
		d.currentID = d.nextID
		d.nextID++
		d.lastSwitch = now
	}
	keyCB, mouseCB := d.keyCB, d.mouseCB
	d.mu.Unlock()

	if keyCB == nil && mouseCB == nil {
		return
	}
	// Simulate a modest input burst most ticks, with the occasional quiet
	// tick so idle detection has something to observe in longer-running
	// mock sessions.
	if d.rng.Float64() < 0.1 {
		return
	}
	if keyCB != nil {
		for i := 0; i < d.rng.Intn(4); i++ {
			keyCB(platform.InputKind(0))
		}
	}
	if mouseCB != nil {
		for i := 0; i < d.rng.Intn(2); i++ {
			mouseCB(platform.InputKind(1 + d.rng.Intn(4)))
		}
	}
}
