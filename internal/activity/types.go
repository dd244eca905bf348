// Package activity implements the in-memory activity state machine: the
// current focus session, current media session, pending-save queues, and
// completed history. All mutations and reads go through Store, which is
// the sole owner of this state.
package activity

import "time"

// FocusSession represents a contiguous interval during which one window
// was focused (and either active or entirely idle).
type FocusSession struct {
	WindowID    int64
	PID         int
	Process     string
	Title       string
	Start       time.Time
	End         time.Time // zero while active
	Keystrokes  uint64
	Clicks      uint64
	Scrolls     uint64
	Idle        bool
	Hash        string
	Signature   string
	PrevHash    string
	HasIntegrity bool
}

// Active reports whether the session has not yet been finalized.
func (s *FocusSession) Active() bool {
	return s.End.IsZero()
}

// Duration returns End-Start, or now-Start while active.
func (s *FocusSession) Duration(now time.Time) time.Duration {
	end := s.End
	if end.IsZero() {
		end = now
	}
	return end.Sub(s.Start)
}

// Clone returns a deep copy. FocusSession has no pointer/slice fields, so
// a value copy already suffices, but Clone exists for symmetry and to
// guard against future fields that need deep copying.
func (s *FocusSession) Clone() *FocusSession {
	c := *s
	return &c
}

// PlaybackStatus is the observed state of a media player.
type PlaybackStatus int

const (
	Stopped PlaybackStatus = iota
	Paused
	Playing
)

// MediaInfo is a single observation of the current media player state,
// sampled by the poller each tick.
type MediaInfo struct {
	Title      string
	Artist     string
	Album      string
	SourceApp  string
	Status     PlaybackStatus
}

// SameIdentity reports whether two media infos represent the same media:
// title and artist match. Album changes never split a session.
func (m MediaInfo) SameIdentity(other MediaInfo) bool {
	return m.Title == other.Title && m.Artist == other.Artist
}

// MediaSession represents a contiguous interval during which one piece of
// media was the most recently observed Playing track.
type MediaSession struct {
	Title     string
	Artist    string
	Album     string
	SourceApp string
	Start     time.Time
	End       time.Time // zero while active
}

// Active reports whether the media session has not yet been finalized.
func (m *MediaSession) Active() bool {
	return m.End.IsZero()
}

func (m *MediaSession) Clone() *MediaSession {
	c := *m
	return &c
}

