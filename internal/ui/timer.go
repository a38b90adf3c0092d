package ui

import (
	"sync/atomic"
	"time"

	"audioplot.dev/internal/transport"
)

// FrameTimer is a transport.Timer driven by the TUI event loop instead of a
// goroutine of its own, so frames are composed on the same goroutine that
// handles input and draws the screen.
type FrameTimer struct {
	interval time.Duration
	fn       func()
	active   atomic.Bool
}

// Bind has the signature of transport.Config.NewTimer.
func (t *FrameTimer) Bind(interval time.Duration, fn func()) transport.Timer {
	t.interval = interval
	t.fn = fn
	return t
}

func (t *FrameTimer) Start()       { t.active.Store(true) }
func (t *FrameTimer) Stop()        { t.active.Store(false) }
func (t *FrameTimer) Active() bool { return t.active.Load() }

// Interval returns the bound frame period.
func (t *FrameTimer) Interval() time.Duration { return t.interval }

// Fire runs the bound function when the timer is active.
func (t *FrameTimer) Fire() {
	if t.fn != nil && t.Active() {
		t.fn()
	}
}
