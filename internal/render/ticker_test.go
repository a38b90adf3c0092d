package render

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTickerStartStop(t *testing.T) {
	var calls atomic.Int32
	ticker := NewTicker(time.Millisecond, func() { calls.Add(1) })
	assert.False(t, ticker.Active())

	ticker.Start()
	ticker.Start()
	assert.True(t, ticker.Active())
	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)

	ticker.Stop()
	ticker.Stop()
	assert.False(t, ticker.Active())

	// allow an in-flight call to finish
	time.Sleep(10 * time.Millisecond)
	stopped := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load(), "no calls after Stop")
}

func TestTickerStopFromCallback(t *testing.T) {
	var ticker *Ticker
	done := make(chan struct{})
	ticker = NewTicker(time.Millisecond, func() {
		ticker.Stop()
		select {
		case <-done:
		default:
			close(done)
		}
	})
	ticker.Start()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback never ran")
	}
	assert.False(t, ticker.Active())
}

func TestTickerDefaultInterval(t *testing.T) {
	ticker := NewTicker(0, func() {})
	assert.Equal(t, DefaultInterval, ticker.interval)
}
