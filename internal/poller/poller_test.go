package poller

import (
	"testing"
	"time"

	"github.com/ownmon/ownmon/internal/activity"
	"github.com/ownmon/ownmon/internal/config"
	"github.com/ownmon/ownmon/internal/counter"
	"github.com/ownmon/ownmon/internal/platform"
)

type fakeWindow struct {
	id    platform.WindowID
	ok    bool
	title string
	pid   int
	name  string
	nameOK bool
}

func (f *fakeWindow) GetForegroundWindow() (platform.WindowID, bool) { return f.id, f.ok }
func (f *fakeWindow) GetWindowTitle(platform.WindowID) (string, error) { return f.title, nil }
func (f *fakeWindow) GetProcessIDOfWindow(platform.WindowID) (int, error) { return f.pid, nil }
func (f *fakeWindow) GetProcessName(int) (string, bool) { return f.name, f.nameOK }

type fakeMedia struct {
	obs platform.MediaObservation
	ok  bool
}

func (f *fakeMedia) SampleMedia() (platform.MediaObservation, bool) { return f.obs, f.ok }

type fakePersister struct {
	calls int
	sessions []*activity.FocusSession
	media    []*activity.MediaSession
}

func (f *fakePersister) DrainAndAppend(sessions []*activity.FocusSession, media []*activity.MediaSession) {
	f.calls++
	f.sessions = append(f.sessions, sessions...)
	f.media = append(f.media, media...)
}

func newTestPoller(window *fakeWindow, media *fakeMedia, persister Persister) *Poller {
	cfg := &config.Config{
		Monitor: config.MonitorConfig{
			PollInterval:       10 * time.Millisecond,
			AfkThreshold:       5 * time.Second,
			MinSessionDuration: 0,
			MaxSessions:        100,
			PersistEveryTicks:  2,
		},
	}
	store := activity.NewStore(activity.Config{
		AfkThreshold:       cfg.Monitor.AfkThreshold,
		MinSessionDuration: cfg.Monitor.MinSessionDuration,
		MaxSessions:        cfg.Monitor.MaxSessions,
	}, nil)
	ring := counter.New()
	return New(cfg, store, ring, window, media, persister)
}

func TestTickSwitchesSessionOnWindowChange(t *testing.T) {
	w := &fakeWindow{id: 1, ok: true, title: "main.go - myproject", pid: 100, name: "code.exe", nameOK: true}
	p := newTestPoller(w, &fakeMedia{}, nil)

	p.tick()

	cur := p.store.CurrentSession()
	if cur == nil {
		t.Fatalf("expected a current session after first tick")
	}
	if cur.Process != "code.exe" {
		t.Fatalf("Process = %q, want code.exe", cur.Process)
	}
}

func TestTickIgnoresBlacklistedProcess(t *testing.T) {
	w := &fakeWindow{id: 1, ok: true, title: "Explorer", pid: 2, name: "explorer.exe", nameOK: true}
	p := newTestPoller(w, &fakeMedia{}, nil)
	p.cfg.Blacklist = []string{"*explorer.exe"}

	p.tick()

	if p.store.CurrentSession() != nil {
		t.Fatalf("expected no session for a blacklisted process")
	}
}

func TestTickFlushesCounterIntoSession(t *testing.T) {
	w := &fakeWindow{id: 1, ok: true, title: "t", pid: 1, name: "app.exe", nameOK: true}
	p := newTestPoller(w, &fakeMedia{}, nil)
	// The flush runs before the foreground sample, so the session must
	// already exist for the next tick's flush to land in it.
	p.tick()
	p.ring.Increment(counter.Keystroke)
	p.ring.Increment(counter.Keystroke)
	p.ring.Increment(counter.LeftClick)

	p.tick()

	cur := p.store.CurrentSession()
	if cur == nil {
		t.Fatalf("expected a current session")
	}
	if cur.Keystrokes != 2 || cur.Clicks != 1 {
		t.Fatalf("got keys=%d clicks=%d, want keys=2 clicks=1", cur.Keystrokes, cur.Clicks)
	}
}

func TestTickSamplesMediaAndFiresHook(t *testing.T) {
	w := &fakeWindow{id: 1, ok: true, title: "t", pid: 1, name: "app.exe", nameOK: true}
	m := &fakeMedia{ok: true, obs: platform.MediaObservation{Title: "Song", Artist: "Artist", Playing: true}}
	p := newTestPoller(w, m, nil)

	var hookCalls int
	p.SetMediaHook(func(*activity.MediaSession) { hookCalls++ })

	p.tick()

	if p.store.CurrentMedia() == nil {
		t.Fatalf("expected current media after sampling a playing track")
	}
	if hookCalls != 1 {
		t.Fatalf("hookCalls = %d, want 1", hookCalls)
	}
}

func TestTickFiresSessionHookOnSwitch(t *testing.T) {
	w := &fakeWindow{id: 1, ok: true, title: "main.go - myproject", pid: 100, name: "code.exe", nameOK: true}
	p := newTestPoller(w, &fakeMedia{}, nil)

	var hookCalls int
	var lastProcess string
	p.SetSessionHook(func(sess *activity.FocusSession) {
		hookCalls++
		if sess != nil {
			lastProcess = sess.Process
		}
	})

	p.tick()

	if hookCalls != 1 {
		t.Fatalf("hookCalls = %d, want 1", hookCalls)
	}
	if lastProcess != "code.exe" {
		t.Fatalf("lastProcess = %q, want code.exe", lastProcess)
	}

	// A second tick with no window change should not fire the hook again.
	p.tick()
	if hookCalls != 1 {
		t.Fatalf("hookCalls = %d after unchanged tick, want 1", hookCalls)
	}
}

func TestTickPersistsEveryNTicks(t *testing.T) {
	w := &fakeWindow{id: 1, ok: true, title: "t", pid: 1, name: "app.exe", nameOK: true}
	persister := &fakePersister{}
	p := newTestPoller(w, &fakeMedia{}, persister)

	p.tick()
	if persister.calls != 0 {
		t.Fatalf("persister should not fire before PersistEveryTicks is reached")
	}
	p.tick()
	if persister.calls != 1 {
		t.Fatalf("persister.calls = %d, want 1 after second tick", persister.calls)
	}
}

func TestAppNameFromTitleSeparatorsAndTruncation(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"main.go - myproject", "main.go"},
		{"general | team-workspace", "general"},
		{"Document — Word", "Document"},
		{"no separator here", "no separator here"},
		{"this title is intentionally far too long to keep whole", "this title is intentionally..."},
	}
	for _, c := range cases {
		if got := appNameFromTitle(c.title); got != c.want {
			t.Errorf("appNameFromTitle(%q) = %q, want %q", c.title, got, c.want)
		}
	}
}

func TestNormalizeProcessNameUWPAndElevated(t *testing.T) {
	if got := normalizeProcessName("ApplicationFrameHost.exe", true, "Mail - Inbox"); got != "[UWP] Mail" {
		t.Errorf("UWP case got %q", got)
	}
	if got := normalizeProcessName("", false, "Some Tool - Admin"); got != "[Elevated] Some Tool" {
		t.Errorf("elevated case got %q", got)
	}
	if got := normalizeProcessName("", false, ""); got != "[Elevated] unknown" {
		t.Errorf("elevated-no-title case got %q", got)
	}
	if got := normalizeProcessName("code.exe", true, "main.go - myproject"); got != "code.exe" {
		t.Errorf("normal case got %q", got)
	}
}

func TestIsBlacklistedMatchesGlob(t *testing.T) {
	patterns := []string{"*dwm.exe", "*explorer.exe"}
	if !isBlacklisted("dwm.exe", patterns) {
		t.Errorf("expected dwm.exe to be blacklisted")
	}
	if isBlacklisted("code.exe", patterns) {
		t.Errorf("expected code.exe to not be blacklisted")
	}
}
