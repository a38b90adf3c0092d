package render

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the frame period of the render loop.
const DefaultInterval = 20 * time.Millisecond

// Ticker calls a function at a fixed period on its own goroutine. Ticks that
// come due while the previous call is still running are dropped, so a slow
// frame never builds a backlog.
type Ticker struct {
	interval time.Duration
	fn       func()

	mutex  sync.Mutex
	cancel context.CancelFunc
}

// NewTicker creates a stopped ticker.
func NewTicker(interval time.Duration, fn func()) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Ticker{interval: interval, fn: fn}
}

// Start begins ticking. Starting a running ticker does nothing.
func (t *Ticker) Start() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go t.run(ctx)
	slog.Debug("render ticker started", "interval", t.interval)
}

// Stop ends ticking. It does not wait for an in-flight call, so it is safe
// to call while holding a lock that fn also takes.
func (t *Ticker) Stop() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.cancel == nil {
		return
	}
	t.cancel()
	t.cancel = nil
	slog.Debug("render ticker stopped")
}

// Active reports whether the ticker is running.
func (t *Ticker) Active() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.cancel != nil
}

func (t *Ticker) run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			t.fn()
		}
	}
}
