// Package counter implements the lock-free input-event counter ring that
// backs the OS input-hook callbacks. Every operation the hook thread calls
// must be a straight-line atomic op: no allocation, no locking, no logging.
package counter

import "sync/atomic"

// Kind discriminates the five tracked input-event classes.
type Kind int

const (
	Keystroke Kind = iota
	LeftClick
	RightClick
	MiddleClick
	Scroll
)

// Ring holds five process-wide atomic counters. The zero value is ready to
// use. All methods are safe to call concurrently, including from an OS
// input-hook callback.
type Ring struct {
	keystrokes  atomic.Uint64
	leftClicks  atomic.Uint64
	rightClicks atomic.Uint64
	midClicks   atomic.Uint64
	scrolls     atomic.Uint64
}

// New returns a ready-to-use Ring.
func New() *Ring {
	return &Ring{}
}

// Increment adds one to the counter for kind. This is the only operation
// meant for the hot path: it never allocates and never blocks.
func (r *Ring) Increment(kind Kind) {
	switch kind {
	case Keystroke:
		r.keystrokes.Add(1)
	case LeftClick:
		r.leftClicks.Add(1)
	case RightClick:
		r.rightClicks.Add(1)
	case MiddleClick:
		r.midClicks.Add(1)
	case Scroll:
		r.scrolls.Add(1)
	}
}

// FlushKeystrokes atomically reads and resets the keystroke counter.
func (r *Ring) FlushKeystrokes() uint64 {
	return r.keystrokes.Swap(0)
}

// FlushClicks atomically reads and resets left, right, and middle click
// counters, returning them in that order.
func (r *Ring) FlushClicks() (left, right, middle uint64) {
	return r.leftClicks.Swap(0), r.rightClicks.Swap(0), r.midClicks.Swap(0)
}

// FlushScrolls atomically reads and resets the scroll counter.
func (r *Ring) FlushScrolls() uint64 {
	return r.scrolls.Swap(0)
}

// Totals is a diagnostic snapshot of all five counters without resetting
// them.
type Totals struct {
	Keystrokes  uint64
	LeftClicks  uint64
	RightClicks uint64
	MidClicks   uint64
	Scrolls     uint64
}

// PeekAll returns the current value of every counter without resetting any
// of them.
func (r *Ring) PeekAll() Totals {
	return Totals{
		Keystrokes:  r.keystrokes.Load(),
		LeftClicks:  r.leftClicks.Load(),
		RightClicks: r.rightClicks.Load(),
		MidClicks:   r.midClicks.Load(),
		Scrolls:     r.scrolls.Load(),
	}
}

// ResetAll zeroes every counter. Diagnostic only; not used on the hot path.
func (r *Ring) ResetAll() {
	r.keystrokes.Store(0)
	r.leftClicks.Store(0)
	r.rightClicks.Store(0)
	r.midClicks.Store(0)
	r.scrolls.Store(0)
}
