package playback

import (
	"sync/atomic"
	"time"
)

// readAttempts bounds how long a reader retries while a publish is in progress.
const readAttempts = 8

// Position is one published snapshot of the playback cursor.
type Position struct {
	// Frame is the index of the next frame to be delivered.
	Frame int64
	// Version increases by one on every publish.
	Version uint64
	// At is when the delivery cycle that produced Frame started, in Unix nanoseconds.
	At int64
}

// Time returns At as a time.Time.
func (p Position) Time() time.Time { return time.Unix(0, p.At) }

// Publisher hands the cursor from the audio context to the render context
// without locks. There is exactly one writer (the audio context) and one
// reader (the render context).
//
// The writer bumps seq to an odd value, stores the fields, then bumps seq to
// the next even value. A reader accepts a snapshot only when it saw the same
// even seq before and after loading the fields; otherwise it retries a few
// times and then falls back to the last snapshot it accepted.
type Publisher struct {
	seq   atomic.Uint64
	frame atomic.Int64
	at    atomic.Int64

	// reader-owned
	last Position
}

// Publish stores a new position. Only the audio context may call it.
func (p *Publisher) Publish(frame, at int64) {
	s := p.seq.Load()
	p.seq.Store(s + 1)
	p.frame.Store(frame)
	p.at.Store(at)
	p.seq.Store(s + 2)
}

// Load returns the latest consistent snapshot. ok is false until something
// has been published. Only the render context may call it.
func (p *Publisher) Load() (pos Position, ok bool) {
	for range readAttempts {
		s := p.seq.Load()
		if s&1 == 1 {
			continue
		}
		frame := p.frame.Load()
		at := p.at.Load()
		if p.seq.Load() != s {
			continue
		}
		if s == 0 {
			return Position{}, false
		}
		p.last = Position{Frame: frame, Version: s / 2, At: at}
		return p.last, true
	}
	return p.last, p.last.Version > 0
}
