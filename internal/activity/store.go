package activity

import (
	"sync"
	"time"
)

// Config bundles the store's tunable thresholds. Callers (the poller) may
// swap it at runtime via SetConfig; reads take a snapshot under lock.
type Config struct {
	AfkThreshold       time.Duration
	MinSessionDuration time.Duration
	MaxSessions        int
}

// Store owns the current focus session, current media session, pending
// persistence queues, and completed in-memory history described in the
// data model. All mutating operations take the write lock; all reads take
// the read lock. Callers never receive or hand in live pointers — every
// cross-boundary value is copied.
type Store struct {
	mu sync.RWMutex

	cfg Config

	current      *FocusSession
	lastInput    time.Time
	history      []*FocusSession
	pendingSessions []*FocusSession

	currentMedia *MediaSession
	mediaHistory []*MediaSession
	pendingMedia []*MediaSession

	now func() time.Time
}

// NewStore constructs a Store with the given configuration. nowFn defaults
// to time.Now when nil; tests may supply a deterministic clock.
func NewStore(cfg Config, nowFn func() time.Time) *Store {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Store{cfg: cfg, now: nowFn}
}

// SetConfig replaces the store's tunable configuration. Safe to call
// concurrently with any other Store method.
func (s *Store) SetConfig(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Commit runs mutate and then notify while holding the store's write lock,
// so a caller combining a state transition with a dependent notification
// (broadcasting the session a SwitchSession/UpdateMedia call just produced)
// never has the two observed apart by another goroutine — grounded on the
// teacher's UpdateAndNotify/BatchUpdateAndNotify contract. mutate and notify
// must only touch the store through its *Locked methods: they run with the
// lock already held, and re-acquiring it (by calling the ordinary exported
// methods) deadlocks, since sync.RWMutex is not reentrant.
func (s *Store) Commit(mutate func(), notify func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mutate != nil {
		mutate()
	}
	if notify != nil {
		notify()
	}
}

// SwitchSession finalizes any current session (§4.3.1) and begins a new
// one for the given window/process/title.
func (s *Store) SwitchSession(windowID int64, pid int, process, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switchSessionLocked(windowID, pid, process, title)
}

// SwitchSessionLocked is SwitchSession for use inside a Commit mutate
// closure; the caller must already hold the write lock.
func (s *Store) SwitchSessionLocked(windowID int64, pid int, process, title string) {
	s.switchSessionLocked(windowID, pid, process, title)
}

func (s *Store) switchSessionLocked(windowID int64, pid int, process, title string) {
	now := s.now()
	if s.current != nil {
		s.finalizeLocked(s.current, now)
	}
	s.current = &FocusSession{
		WindowID: windowID,
		PID:      pid,
		Process:  process,
		Title:    title,
		Start:    now,
	}
	s.lastInput = now
}

// AddInput accumulates input counts into the current session. If the
// counts are nonzero, the idle-resume path (§4.3.2) runs before
// accumulation: an idle current session is finalized and replaced by a new
// active one, and an active current session past the AFK gap is split. The
// counts then go to the (possibly new) current session.
func (s *Store) AddInput(keys, clicks, scrolls uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if keys != 0 || clicks != 0 || scrolls != 0 {
		s.maybeResumeFromIdleLocked(now)
	}

	if s.current != nil {
		s.current.Keystrokes += keys
		s.current.Clicks += clicks
		s.current.Scrolls += scrolls
	}
	s.lastInput = now
}

// CheckAndSplitOnIdle is called once per poll tick. It transitions an
// active current session to idle after an AFK gap (§4.3.3), or extends an
// already-idle current session's end.
func (s *Store) CheckAndSplitOnIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return
	}
	now := s.now()
	gap := now.Sub(s.lastInput)

	if s.current.Idle {
		s.current.End = now
		return
	}
	if gap > s.cfg.AfkThreshold {
		s.transitionToIdleLocked(now)
	}
}

// maybeResumeFromIdleLocked implements §4.3.2: when input arrives after an
// AFK gap while the current session is still flagged not-idle, split it
// into an active slice, an idle slice, and a fresh new-active session.
// When the current session is already the idle slice, it is finalized and
// a fresh new-active session for the same window replaces it.
// Caller holds s.mu.
func (s *Store) maybeResumeFromIdleLocked(now time.Time) {
	if s.current == nil {
		return
	}
	if s.current.Idle {
		prev := s.current
		s.finalizeLocked(prev, now)
		s.current = &FocusSession{
			WindowID: prev.WindowID,
			PID:      prev.PID,
			Process:  prev.Process,
			Title:    prev.Title,
			Start:    now,
		}
		return
	}
	gap := now.Sub(s.lastInput)
	if gap <= s.cfg.AfkThreshold {
		return
	}

	prev := s.current
	hadActivity := prev.Keystrokes != 0 || prev.Clicks != 0 || prev.Scrolls != 0

	if hadActivity {
		active := prev.Clone()
		active.End = s.lastInput
		active.Idle = false
		s.saveIfValidLocked(active)
	}

	idleSlice := &FocusSession{
		WindowID: prev.WindowID,
		PID:      prev.PID,
		Process:  prev.Process,
		Title:    prev.Title,
		Start:    s.lastInput,
		End:      now,
		Idle:     true,
	}
	s.saveIfValidLocked(idleSlice)

	s.current = &FocusSession{
		WindowID: prev.WindowID,
		PID:      prev.PID,
		Process:  prev.Process,
		Title:    prev.Title,
		Start:    now,
	}
}

// transitionToIdleLocked implements §4.3.3: split the current session into
// an active slice (saved) and an idle slice, which itself becomes the new
// current session (no fresh active session yet — that happens on the next
// SwitchSession or AddInput resume). Caller holds s.mu.
func (s *Store) transitionToIdleLocked(now time.Time) {
	prev := s.current
	hadActivity := prev.Keystrokes != 0 || prev.Clicks != 0 || prev.Scrolls != 0

	if hadActivity {
		active := prev.Clone()
		active.End = s.lastInput
		active.Idle = false
		s.saveIfValidLocked(active)
	}

	s.current = &FocusSession{
		WindowID: prev.WindowID,
		PID:      prev.PID,
		Process:  prev.Process,
		Title:    prev.Title,
		Start:    s.lastInput,
		End:      now,
		Idle:     true,
	}
}

// UpdateMedia applies a newly sampled media observation (§4.3 UpdateMedia).
func (s *Store) UpdateMedia(info MediaInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateMediaLocked(info)
}

// UpdateMediaLocked is UpdateMedia for use inside a Commit mutate closure;
// the caller must already hold the write lock.
func (s *Store) UpdateMediaLocked(info MediaInfo) {
	s.updateMediaLocked(info)
}

func (s *Store) updateMediaLocked(info MediaInfo) {
	now := s.now()

	if info.Status == Playing {
		if s.currentMedia != nil {
			cur := MediaInfo{Title: s.currentMedia.Title, Artist: s.currentMedia.Artist}
			if cur.SameIdentity(info) {
				return
			}
			s.finalizeMediaLocked(now)
		}
		s.currentMedia = &MediaSession{
			Title:     info.Title,
			Artist:    info.Artist,
			Album:     info.Album,
			SourceApp: info.SourceApp,
			Start:     now,
		}
		return
	}

	if s.currentMedia != nil {
		s.finalizeMediaLocked(now)
	}
}

// finalizeMediaLocked finalizes the current media session, enqueues it for
// persistence, appends it to history, and clears current. Caller holds
// s.mu.
func (s *Store) finalizeMediaLocked(now time.Time) {
	m := s.currentMedia
	m.End = now
	s.pendingMedia = append(s.pendingMedia, m)
	s.mediaHistory = append(s.mediaHistory, m.Clone())
	s.pruneMediaHistoryLocked()
	s.currentMedia = nil
}

// saveIfValidLocked folds the MinSessionDuration filter, the pending-queue
// append, and the history append into one place, used by both
// idle-splitting paths per the design note against duplicating this logic.
// Sessions shorter than MinSessionDuration are dropped: not persisted, not
// appended to history. History keeps its own copy, so a drained pending
// session never aliases store state.
func (s *Store) saveIfValidLocked(sess *FocusSession) {
	if sess.Duration(sess.End) < s.cfg.MinSessionDuration {
		return
	}
	s.pendingSessions = append(s.pendingSessions, sess)
	s.history = append(s.history, sess.Clone())
	s.pruneHistoryLocked()
}

// finalizeLocked ends sess at now and runs it through saveIfValidLocked.
// Caller holds s.mu.
func (s *Store) finalizeLocked(sess *FocusSession, now time.Time) {
	sess.End = now
	s.saveIfValidLocked(sess)
}

// pruneHistoryLocked drops the oldest completed sessions once history
// exceeds MaxSessions (§4.3.4). Caller holds s.mu.
func (s *Store) pruneHistoryLocked() {
	if s.cfg.MaxSessions <= 0 {
		return
	}
	if over := len(s.history) - s.cfg.MaxSessions; over > 0 {
		s.history = s.history[over:]
	}
}

// pruneMediaHistoryLocked applies the same cap to media history. Caller
// holds s.mu.
func (s *Store) pruneMediaHistoryLocked() {
	if s.cfg.MaxSessions <= 0 {
		return
	}
	if over := len(s.mediaHistory) - s.cfg.MaxSessions; over > 0 {
		s.mediaHistory = s.mediaHistory[over:]
	}
}

// DrainPendingSessions atomically takes and clears the pending focus
// session queue.
func (s *Store) DrainPendingSessions() []*FocusSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	drained := s.pendingSessions
	s.pendingSessions = nil
	return drained
}

// DrainPendingMedia atomically takes and clears the pending media queue.
func (s *Store) DrainPendingMedia() []*MediaSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	drained := s.pendingMedia
	s.pendingMedia = nil
	return drained
}

// FinalizeCurrentSession is the shutdown hook: it finalizes the current
// focus and media sessions (if any) and enqueues them for persistence.
func (s *Store) FinalizeCurrentSession() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.current != nil {
		s.finalizeLocked(s.current, now)
		s.current = nil
	}
	if s.currentMedia != nil {
		s.finalizeMediaLocked(now)
	}
}

// CurrentSession returns a copy of the current focus session, or nil if
// none is active.
func (s *Store) CurrentSession() *FocusSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSessionLocked()
}

// CurrentSessionLocked is CurrentSession for use inside a Commit mutate or
// notify closure; the caller must already hold the lock (read or write).
func (s *Store) CurrentSessionLocked() *FocusSession {
	return s.currentSessionLocked()
}

func (s *Store) currentSessionLocked() *FocusSession {
	if s.current == nil {
		return nil
	}
	return s.current.Clone()
}

// CurrentMedia returns a copy of the current media session, or nil if
// none is active.
func (s *Store) CurrentMedia() *MediaSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentMediaLocked()
}

// CurrentMediaLocked is CurrentMedia for use inside a Commit mutate or
// notify closure; the caller must already hold the lock (read or write).
func (s *Store) CurrentMediaLocked() *MediaSession {
	return s.currentMediaLocked()
}

func (s *Store) currentMediaLocked() *MediaSession {
	if s.currentMedia == nil {
		return nil
	}
	return s.currentMedia.Clone()
}

// History returns a copy of the completed focus session history.
func (s *Store) History() []*FocusSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*FocusSession, len(s.history))
	for i, sess := range s.history {
		out[i] = sess.Clone()
	}
	return out
}

// MediaHistory returns a copy of the completed media session history.
func (s *Store) MediaHistory() []*MediaSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*MediaSession, len(s.mediaHistory))
	for i, m := range s.mediaHistory {
		out[i] = m.Clone()
	}
	return out
}

// LastInput returns the timestamp of the most recent AddInput or
// SwitchSession call (zero value if none yet). AddInput sets it whatever
// the counts; the poller only calls AddInput with nonzero counts.
func (s *Store) LastInput() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastInput
}
