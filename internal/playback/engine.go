// Package playback delivers a decoded waveform to an output device and
// publishes where the delivery cursor is.
//
// The engine is split across two contexts. Control methods (Open, Play,
// Pause, Stop, Seek, SetVolume) are called from the render context and only
// store requests into atomics. Fill is called from the audio context, applies
// pending requests at the start of each delivery cycle, copies samples and
// publishes the new cursor. Nothing on the Fill path locks, allocates, logs
// or blocks.
package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"audioplot.dev/internal/audio"
)

// Engine errors
var (
	ErrInvalidFormat  = errors.New("buffer has no playable audio")
	ErrNoBuffer       = errors.New("no buffer loaded")
	ErrAlreadyPlaying = errors.New("already playing")
	ErrNotPlaying     = errors.New("not playing")
	ErrInvalidVolume  = errors.New("volume must be between 0.0 and 1.0")
)

// State is the playback state.
type State int32

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

const noSeek = -1

// Cursor is what the render context needs to place the position marker.
type Cursor struct {
	Frame int64
	State State
	// Version and At come from the last published position; both are zero
	// when Frame is a pending seek target or nothing has been published yet.
	Version uint64
	At      int64
}

// Stats counts delivery cycles.
type Stats struct {
	Cycles       uint64
	Frames       uint64
	PaddedFrames uint64
	// Underruns counts cycles that started more than two block durations
	// after the previous one while playing.
	Underruns uint64
}

// Engine plays one SampleBuffer at a time.
type Engine struct {
	buffer atomic.Pointer[audio.SampleBuffer]
	state  atomic.Int32
	seek   atomic.Int64
	gain   atomic.Uint32
	// resumed tells Fill that the gap before its next cycle is not an underrun
	resumed atomic.Bool

	publisher Publisher
	finished  chan struct{}
	now       func() int64

	// audio context only
	cursor   int64
	lastFill int64

	cycles    atomic.Uint64
	frames    atomic.Uint64
	padded    atomic.Uint64
	underruns atomic.Uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the clock used to timestamp delivery cycles.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = func() int64 { return now().UnixNano() }
	}
}

// NewEngine creates an engine with no buffer loaded.
func NewEngine(opts ...Option) *Engine {
	slog.Debug("creating playback engine")
	e := &Engine{
		finished: make(chan struct{}, 1),
		now:      func() int64 { return time.Now().UnixNano() },
	}
	e.seek.Store(noSeek)
	e.gain.Store(math.Float32bits(1))
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate reports whether buf can be played.
func Validate(buf *audio.SampleBuffer) error {
	switch {
	case buf == nil:
		return fmt.Errorf("%w: nil buffer", ErrInvalidFormat)
	case buf.Channels() == 0:
		return fmt.Errorf("%w: no channels", ErrInvalidFormat)
	case buf.SampleRate() <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalidFormat, buf.SampleRate())
	case buf.Len() == 0:
		return fmt.Errorf("%w: no frames", ErrInvalidFormat)
	}
	return nil
}

// Open binds buf, stops playback and rewinds to frame 0.
func (e *Engine) Open(buf *audio.SampleBuffer) error {
	if err := Validate(buf); err != nil {
		slog.Error("rejecting buffer", "error", err)
		return err
	}

	e.state.Store(int32(Stopped))
	e.seek.Store(0)
	e.buffer.Store(buf)
	e.drainFinished()

	slog.Info("buffer opened",
		"name", buf.Name(),
		"frames", buf.Len(),
		"channels", buf.Channels(),
		"sample_rate", buf.SampleRate())
	return nil
}

// Close unbinds the current buffer. Fill produces silence afterwards.
func (e *Engine) Close() {
	e.state.Store(int32(Stopped))
	e.seek.Store(0)
	e.buffer.Store(nil)
	e.drainFinished()
	slog.Debug("playback engine closed")
}

// Buffer returns the bound buffer, or nil.
func (e *Engine) Buffer() *audio.SampleBuffer { return e.buffer.Load() }

// Play starts delivery from the current cursor. Playing from the end of the
// buffer restarts at frame 0.
func (e *Engine) Play() error {
	buf := e.buffer.Load()
	if buf == nil {
		return ErrNoBuffer
	}
	if e.State() == Playing {
		return ErrAlreadyPlaying
	}
	if e.Cursor().Frame >= int64(buf.Len()) {
		e.seek.Store(0)
	}
	e.drainFinished()
	e.resumed.Store(true)
	e.state.Store(int32(Playing))
	slog.Debug("playback requested", "frame", e.Cursor().Frame)
	return nil
}

// PlayFrom seeks to frame and starts delivery.
func (e *Engine) PlayFrom(frame int64) error {
	if e.buffer.Load() == nil {
		return ErrNoBuffer
	}
	if e.State() == Playing {
		return ErrAlreadyPlaying
	}
	if err := e.Seek(frame); err != nil {
		return err
	}
	return e.Play()
}

// Pause halts delivery and keeps the cursor.
func (e *Engine) Pause() error {
	if !e.state.CompareAndSwap(int32(Playing), int32(Paused)) {
		return ErrNotPlaying
	}
	slog.Debug("pause requested")
	return nil
}

// Stop halts delivery and rewinds to frame 0. It succeeds in every state.
func (e *Engine) Stop() {
	e.state.Store(int32(Stopped))
	e.seek.Store(0)
	slog.Debug("stop requested")
}

// Seek moves the cursor to frame, clamped to [0, length-1]. The last request
// made before the next delivery cycle wins.
func (e *Engine) Seek(frame int64) error {
	buf := e.buffer.Load()
	if buf == nil {
		return ErrNoBuffer
	}
	frame = max(0, min(frame, int64(buf.Len())-1))
	e.seek.Store(frame)
	return nil
}

// SetVolume sets the linear output gain.
func (e *Engine) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 || math.IsNaN(volume) {
		return fmt.Errorf("%w: %v", ErrInvalidVolume, volume)
	}
	e.gain.Store(math.Float32bits(float32(volume)))
	return nil
}

// Volume returns the linear output gain.
func (e *Engine) Volume() float64 {
	return float64(math.Float32frombits(e.gain.Load()))
}

// State returns the current playback state.
func (e *Engine) State() State { return State(e.state.Load()) }

// Finished receives once each time playback reaches the end of the buffer.
// Sends never block; an unread signal is coalesced with later ones.
func (e *Engine) Finished() <-chan struct{} { return e.finished }

// Cursor returns where the position marker belongs: a seek target that has
// not reached the audio context yet, otherwise the last published position.
// Render context only.
func (e *Engine) Cursor() Cursor {
	state := e.State()
	if target := e.seek.Load(); target != noSeek {
		return Cursor{Frame: target, State: state}
	}
	pos, ok := e.publisher.Load()
	if !ok {
		return Cursor{State: state}
	}
	return Cursor{Frame: pos.Frame, State: state, Version: pos.Version, At: pos.At}
}

// Stats returns delivery counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Cycles:       e.cycles.Load(),
		Frames:       e.frames.Load(),
		PaddedFrames: e.padded.Load(),
		Underruns:    e.underruns.Load(),
	}
}

// Fill runs one delivery cycle: dst receives interleaved frames for the
// bound buffer's channel count, zero-padded past the end of the buffer or
// when not playing. Audio context only.
func (e *Engine) Fill(dst []float32) {
	now := e.now()
	buf := e.buffer.Load()
	if buf == nil {
		clear(dst)
		return
	}

	channels := buf.Channels()
	length := int64(buf.Len())
	frames := len(dst) / channels

	if target := e.seek.Swap(noSeek); target != noSeek {
		e.cursor = target
	}
	e.cursor = min(e.cursor, length)
	e.cycles.Add(1)

	if State(e.state.Load()) != Playing {
		clear(dst)
		e.lastFill = 0
		e.publisher.Publish(e.cursor, now)
		return
	}

	if e.resumed.Swap(false) {
		e.lastFill = 0
	}
	if e.lastFill != 0 && frames > 0 {
		block := int64(frames) * int64(time.Second) / int64(buf.SampleRate())
		if now-e.lastFill > 2*block {
			e.underruns.Add(1)
		}
	}
	e.lastFill = now

	gain := math.Float32frombits(e.gain.Load())
	n := int(min(int64(frames), length-e.cursor))
	for ch := 0; ch < channels; ch++ {
		src := buf.Channel(ch)[e.cursor : e.cursor+int64(n)]
		for i, v := range src {
			dst[i*channels+ch] = v * gain
		}
	}
	clear(dst[n*channels:])

	e.cursor += int64(n)
	e.frames.Add(uint64(n))
	if n < frames {
		e.padded.Add(uint64(frames - n))
	}
	e.publisher.Publish(e.cursor, now)

	if e.cursor >= length && e.state.CompareAndSwap(int32(Playing), int32(Stopped)) {
		select {
		case e.finished <- struct{}{}:
		default:
		}
	}
}

func (e *Engine) drainFinished() {
	select {
	case <-e.finished:
	default:
	}
}
