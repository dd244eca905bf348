// Package poller implements the scheduled loop that samples the
// foreground window, drains the counter ring into the Activity Store,
// samples current media, drives idle detection, and kicks periodic
// persistence.
package poller

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ownmon/ownmon/internal/activity"
	"github.com/ownmon/ownmon/internal/config"
	"github.com/ownmon/ownmon/internal/counter"
	"github.com/ownmon/ownmon/internal/glob"
	"github.com/ownmon/ownmon/internal/platform"

	gopsutil "github.com/shirou/gopsutil/v3/process"
)

// Persister is the collaborator invoked every PersistEveryTicks ticks to
// drain and durably append pending sessions and media. Implemented by
// storage.Store.
type Persister interface {
	DrainAndAppend(sessions []*activity.FocusSession, media []*activity.MediaSession)
}

// MediaEventHook is called after every media sample the poller passes to
// UpdateMedia (whether or not the media changed), so the
// query layer can broadcast a media_update event without the poller
// importing the server package.
type MediaEventHook func(*activity.MediaSession)

// SessionEventHook is called whenever the foreground window sample causes a
// session switch, so the query layer can broadcast a session_change event
// without the poller importing the server package.
type SessionEventHook func(*activity.FocusSession)

// Poller runs the tick loop described by the spec: idle-check, flush,
// media sample, foreground sample, conditional persist.
type Poller struct {
	mu  sync.RWMutex
	cfg *config.Config

	store     *activity.Store
	ring      *counter.Ring
	window    platform.ForegroundWindow
	media     platform.MediaSampler
	persister Persister

	tickCount  int
	lastWindow platform.WindowID
	lastTitle  string

	mediaHook   MediaEventHook
	sessionHook SessionEventHook
}

// New constructs a Poller. cfg, store, ring, and window must be non-nil;
// media may be nil to disable media sampling, and persister may be nil to
// disable periodic persistence (useful in isolated tests).
func New(cfg *config.Config, store *activity.Store, ring *counter.Ring, window platform.ForegroundWindow, media platform.MediaSampler, persister Persister) *Poller {
	return &Poller{
		cfg:       cfg,
		store:     store,
		ring:      ring,
		window:    window,
		media:     media,
		persister: persister,
	}
}

// SetConfig replaces the poller's config pointer. The new config is read
// at the top of the next tick. Only poll-cycle-consulted fields take
// effect without a restart (AFK threshold, min session duration, poll
// interval, blacklist, categories, prune interval); server bind settings
// require a restart.
func (p *Poller) SetConfig(cfg *config.Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
	p.store.SetConfig(activity.Config{
		AfkThreshold:       cfg.Monitor.AfkThreshold,
		MinSessionDuration: cfg.Monitor.MinSessionDuration,
		MaxSessions:        cfg.Monitor.MaxSessions,
	})
}

// SetMediaHook registers a callback invoked with the current media
// session whenever UpdateMedia processes a sample.
func (p *Poller) SetMediaHook(hook MediaEventHook) {
	p.mu.Lock()
	p.mediaHook = hook
	p.mu.Unlock()
}

// SetSessionHook registers a callback invoked with the current focus
// session whenever the foreground window sample causes a switch.
func (p *Poller) SetSessionHook(hook SessionEventHook) {
	p.mu.Lock()
	p.sessionHook = hook
	p.mu.Unlock()
}

// Run starts the tick loop and blocks until ctx is canceled.
func (p *Poller) Run(ctx context.Context) {
	p.mu.RLock()
	interval := p.cfg.Monitor.PollInterval
	p.mu.RUnlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Println("poller: started")

	p.tick()

	for {
		select {
		case <-ctx.Done():
			log.Println("poller: stopped")
			return
		case <-ticker.C:
			p.tick()
			p.mu.RLock()
			next := p.cfg.Monitor.PollInterval
			p.mu.RUnlock()
			if next > 0 && next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// tick runs exactly one poll cycle, in the order mandated by §4.4: idle
// check, flush, media sample, foreground sample, conditional persist.
func (p *Poller) tick() {
	p.mu.RLock()
	cfg := p.cfg
	p.mu.RUnlock()

	// 1. Idle check.
	p.store.CheckAndSplitOnIdle()

	// 3. Flush the counter ring into the store.
	keys := p.ring.FlushKeystrokes()
	left, right, mid := p.ring.FlushClicks()
	scrolls := p.ring.FlushScrolls()
	if keys != 0 || left != 0 || right != 0 || mid != 0 || scrolls != 0 {
		p.store.AddInput(keys, left+right+mid, scrolls)
	}

	// 4. Sample current media.
	if p.media != nil {
		if obs, ok := p.media.SampleMedia(); ok {
			info := activity.MediaInfo{
				Title:     obs.Title,
				Artist:    obs.Artist,
				Album:     obs.Album,
				SourceApp: obs.SourceApp,
				Status:    statusFromObservation(obs),
			}
			p.mu.RLock()
			hook := p.mediaHook
			p.mu.RUnlock()
			p.store.Commit(func() {
				p.store.UpdateMediaLocked(info)
			}, func() {
				if hook != nil {
					hook(p.store.CurrentMediaLocked())
				}
			})
		}
	}

	// 5/6. Sample the foreground window and switch if it changed.
	p.sampleForegroundWindow(cfg)

	// 7. Every N ticks, persist.
	p.tickCount++
	if p.persister != nil && cfg.Monitor.PersistEveryTicks > 0 && p.tickCount%cfg.Monitor.PersistEveryTicks == 0 {
		sessions := p.store.DrainPendingSessions()
		mediaRows := p.store.DrainPendingMedia()
		p.persister.DrainAndAppend(sessions, mediaRows)
	}
}

func statusFromObservation(obs platform.MediaObservation) activity.PlaybackStatus {
	switch {
	case obs.Playing:
		return activity.Playing
	case obs.Paused:
		return activity.Paused
	default:
		return activity.Stopped
	}
}

// sampleForegroundWindow implements steps 5/6: sample the foreground
// window, normalize its process name, and call SwitchSession when the
// window (or, if configured, the title) changed and the process is not
// blacklisted.
func (p *Poller) sampleForegroundWindow(cfg *config.Config) {
	id, ok := p.window.GetForegroundWindow()
	if !ok {
		return
	}

	title, err := p.window.GetWindowTitle(id)
	if err != nil {
		title = ""
	}
	pid, err := p.window.GetProcessIDOfWindow(id)
	if err != nil {
		pid = 0
	}

	rawName, nameOK := p.window.GetProcessName(pid)
	if !nameOK {
		// Fall back to gopsutil before giving up on the process name
		// entirely.
		rawName, nameOK = processNameFromPID(pid)
	}

	process := normalizeProcessName(rawName, nameOK, title)

	if isBlacklisted(process, cfg.Blacklist) {
		return
	}

	changed := id != p.lastWindow
	if cfg.Monitor.TrackTitleChanges {
		changed = changed || title != p.lastTitle
	}
	if !changed {
		return
	}

	p.lastWindow = id
	p.lastTitle = title

	p.mu.RLock()
	hook := p.sessionHook
	p.mu.RUnlock()
	p.store.Commit(func() {
		p.store.SwitchSessionLocked(int64(id), pid, process, title)
	}, func() {
		if hook != nil {
			hook(p.store.CurrentSessionLocked())
		}
	})
}

// processNameFromPID resolves a PID to a process name via gopsutil when
// the foreground-window collaborator could not. This is the fallback
// enrichment path described in the poller's process-name resolution.
func processNameFromPID(pid int) (string, bool) {
	if pid <= 0 {
		return "", false
	}
	proc, err := gopsutil.NewProcess(int32(pid))
	if err != nil {
		return "", false
	}
	name, err := proc.Name()
	if err != nil || name == "" {
		return "", false
	}
	return name, true
}

// uwpHostName identifies the generic Universal Windows Platform host
// process, whose own name carries no useful app identity.
const uwpHostName = "applicationframehost.exe"

// normalizeProcessName applies the poller-boundary normalization rules:
// UWP host processes and elevated/unknown processes are prefixed with a
// title-derived app name instead of their raw (uninformative) process
// name.
func normalizeProcessName(rawName string, nameOK bool, title string) string {
	lower := strings.ToLower(rawName)

	if lower == uwpHostName {
		return "[UWP] " + appNameFromTitle(title)
	}
	if !nameOK && title != "" {
		return "[Elevated] " + appNameFromTitle(title)
	}
	if !nameOK {
		return "[Elevated] unknown"
	}
	return rawName
}

var titleSeparators = []string{" - ", " | ", " — "}

// appNameFromTitle extracts the app name portion of a window title: the
// substring up to the first occurrence of any configured separator,
// trimmed and, if longer than 30 characters, cut to the first 27 plus "...".
func appNameFromTitle(title string) string {
	name := title
	bestIdx := -1
	for _, sep := range titleSeparators {
		if idx := strings.Index(title, sep); idx >= 0 && (bestIdx == -1 || idx < bestIdx) {
			bestIdx = idx
		}
	}
	if bestIdx >= 0 {
		name = title[:bestIdx]
	}
	name = strings.TrimSpace(name)

	const maxLen = 30
	if len(name) > maxLen {
		name = name[:27] + "..."
	}
	return name
}

// isBlacklisted reports whether process matches any blacklist pattern.
func isBlacklisted(process string, patterns []string) bool {
	for _, pattern := range patterns {
		if glob.Match(pattern, process) {
			return true
		}
	}
	return false
}
