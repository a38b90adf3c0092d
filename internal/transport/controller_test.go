package transport

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audioplot.dev/internal/audio"
	"audioplot.dev/internal/audio/audiotest"
	"audioplot.dev/internal/playback"
	"audioplot.dev/internal/render"
	"audioplot.dev/internal/tracking"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// manualTimer never fires on its own.
type manualTimer struct {
	active bool
	starts int
	fn     func()
}

func (t *manualTimer) Start()       { t.active = true; t.starts++ }
func (t *manualTimer) Stop()        { t.active = false }
func (t *manualTimer) Active() bool { return t.active }

type memoryRecorder struct {
	mu     sync.Mutex
	opened []tracking.FileInfo
	events []tracking.Event
}

func (r *memoryRecorder) Open(info tracking.FileInfo) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, info)
	return "session"
}

func (r *memoryRecorder) Record(e tracking.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *memoryRecorder) kinds() []tracking.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []tracking.EventKind
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// countingDevice wraps a NullDevice and counts Open calls.
type countingDevice struct {
	*audio.NullDevice
	opens   int
	formats []audio.Format
	closed  bool
}

func (d *countingDevice) Open(format audio.Format, src audio.FrameSource) error {
	d.opens++
	d.formats = append(d.formats, format)
	return d.NullDevice.Open(format, src)
}

func (d *countingDevice) Close() error {
	d.closed = true
	return d.NullDevice.Close()
}

type fixture struct {
	clock    *fakeClock
	device   *countingDevice
	engine   *playback.Engine
	timer    *manualTimer
	recorder *memoryRecorder
	fs       afero.Fs
	frames   []*render.Frame
	ctrl     *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:    &fakeClock{now: time.Unix(1700000000, 0)},
		timer:    &manualTimer{},
		recorder: &memoryRecorder{},
		fs:       afero.NewMemMapFs(),
	}
	f.device = &countingDevice{NullDevice: audio.NewNullDevice(audio.WithoutPacer(), audio.WithClock(f.clock.Now))}
	f.engine = playback.NewEngine(playback.WithClock(f.clock.Now))

	ctrl, err := New(Config{
		Engine:   f.engine,
		Device:   f.device,
		Fs:       f.fs,
		Recorder: f.recorder,
		Presenter: render.PresenterFunc(func(frame *render.Frame) error {
			f.frames = append(f.frames, frame)
			return nil
		}),
		NewTimer: func(interval time.Duration, fn func()) Timer {
			f.timer.fn = fn
			return f.timer
		},
		BlockSize: 100,
		Size:      render.Size{Width: 100, Height: 20},
		Render:    render.Options{ShowReadout: true},
	})
	require.NoError(t, err)
	f.ctrl = ctrl
	return f
}

// advance moves the clock and lets the device deliver what is due.
func (f *fixture) advance(d time.Duration) int {
	f.clock.Advance(d)
	return f.device.Pump(f.clock.Now())
}

func ramp(t *testing.T, frames, channels, rate int) *audio.SampleBuffer {
	t.Helper()
	planes := make([][]float32, channels)
	for ch := range planes {
		planes[ch] = make([]float32, frames)
		for i := range planes[ch] {
			planes[ch][i] = float32(i) / float32(frames)
		}
	}
	buf, err := audio.NewSampleBuffer(planes, rate)
	require.NoError(t, err)
	return buf.WithSource("test", "ramp.wav")
}

func TestNewRequiresEngineAndDevice(t *testing.T) {
	_, err := New(Config{Device: audio.NewNullDevice()})
	assert.Error(t, err)
	_, err = New(Config{Engine: playback.NewEngine()})
	assert.Error(t, err)
	_, err = New(Config{Engine: playback.NewEngine(), Device: audio.NewNullDevice(), Size: render.Size{Width: -1, Height: 1}})
	assert.ErrorIs(t, err, render.ErrInvalidSize)
}

func TestCommandsWithoutFile(t *testing.T) {
	f := newFixture(t)
	c := f.ctrl

	assert.Equal(t, NoFile, c.State())
	assert.False(t, c.timer.Active())

	for name, err := range map[string]error{
		"play":      c.Play(),
		"play from": c.PlayFrom(1),
		"pause":     c.Pause(),
		"toggle":    c.TogglePause(),
		"stop":      c.Stop(),
		"seek":      c.Seek(1),
		"seek by":   c.SeekBy(1),
		"seek x":    c.SeekToX(3),
		"marker":    c.SetMarker(1, ""),
		"mark x":    c.MarkAtX(3),
		"mark here": c.MarkHere(""),
	} {
		assert.ErrorIs(t, err, ErrNoFile, name)
	}

	_, err := c.Tick()
	assert.ErrorIs(t, err, ErrNoFile)
	_, ok := c.RemoveNearestMarker()
	assert.False(t, ok)
	assert.False(t, c.Zoom(0.5))
	assert.Equal(t, Status{State: NoFile, Volume: 1, Device: "null"}, c.Status())
}

func TestOpenBufferLoadsAndStartsTimer(t *testing.T) {
	f := newFixture(t)
	buf := ramp(t, 1000, 2, 1000)

	require.NoError(t, f.ctrl.OpenBuffer(buf))

	assert.Equal(t, Stopped, f.ctrl.State())
	assert.True(t, f.ctrl.timer.Active())
	assert.Equal(t, []audio.Format{{SampleRate: 1000, Channels: 2, BlockSize: 100}}, f.device.formats)

	status := f.ctrl.Status()
	assert.Equal(t, "ramp.wav", status.File)
	assert.Equal(t, "test", status.Format)
	assert.Equal(t, 2, status.Channels)
	assert.Equal(t, 1.0, status.Duration)
	assert.Equal(t, int64(1000), status.Length)
	assert.Equal(t, render.Range{Start: 0, End: 1000}, status.View)

	require.Len(t, f.recorder.opened, 1)
	assert.Equal(t, tracking.FileInfo{
		Name: "ramp.wav", Format: "test", Channels: 2, SampleRate: 1000, Seconds: 1, Backend: "null",
	}, f.recorder.opened[0])
}

func TestOpenBufferRejectsUnplayable(t *testing.T) {
	f := newFixture(t)
	empty, err := audio.NewSampleBuffer([][]float32{{}}, 1000)
	require.NoError(t, err)

	assert.ErrorIs(t, f.ctrl.OpenBuffer(empty), playback.ErrInvalidFormat)
	assert.Equal(t, NoFile, f.ctrl.State())
	assert.Zero(t, f.device.opens)
}

func TestOpenReconfiguresDeviceOnlyOnFormatChange(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.OpenBuffer(ramp(t, 1000, 1, 1000)))
	require.NoError(t, f.ctrl.OpenBuffer(ramp(t, 500, 1, 1000)))
	assert.Equal(t, 1, f.device.opens, "same format keeps the stream")

	require.NoError(t, f.ctrl.OpenBuffer(ramp(t, 500, 2, 2000)))
	assert.Equal(t, 2, f.device.opens)
	assert.Equal(t, audio.Format{SampleRate: 2000, Channels: 2, BlockSize: 100}, f.device.formats[1])
	assert.Equal(t, int64(500), f.ctrl.Status().View.End, "viewport reset to the new file")
}

func TestOpenDecodesFromFilesystem(t *testing.T) {
	f := newFixture(t)
	data := audiotest.WAV(8000, 1, 800, audiotest.Sine(8000, 440, 0.5))
	require.NoError(t, afero.WriteFile(f.fs, "/music/tone.wav", data, 0644))
	require.NoError(t, afero.WriteFile(f.fs, "/music/notes.txt", []byte("not audio"), 0644))

	require.NoError(t, f.ctrl.Open("/music/tone.wav"))
	status := f.ctrl.Status()
	assert.Equal(t, "tone.wav", status.File)
	assert.Equal(t, "WAV", status.Format)
	assert.Equal(t, 8000, status.SampleRate)
	assert.InDelta(t, 0.1, status.Duration, 1e-9)

	err := f.ctrl.Open("/music/notes.txt")
	assert.ErrorIs(t, err, audio.ErrUnsupportedFormat)
	assert.Equal(t, "tone.wav", f.ctrl.Status().File, "failed open keeps the current file")

	err = f.ctrl.Open("/music/missing.wav")
	assert.Error(t, err)
}

func TestTransportStateMachine(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.OpenBuffer(ramp(t, 1000, 1, 1000)))
	c := f.ctrl

	require.NoError(t, c.Play())
	assert.Equal(t, Playing, c.State())
	assert.ErrorIs(t, c.Play(), playback.ErrAlreadyPlaying)

	assert.Equal(t, 3, f.advance(300*time.Millisecond))
	assert.Equal(t, int64(300), c.Status().Frame)

	require.NoError(t, c.Pause())
	assert.Equal(t, Paused, c.State())
	assert.ErrorIs(t, c.Pause(), playback.ErrNotPlaying)
	f.advance(200 * time.Millisecond)
	assert.Equal(t, int64(300), c.Status().Frame, "paused keeps the position")

	require.NoError(t, c.TogglePause())
	assert.Equal(t, Playing, c.State())
	f.advance(100 * time.Millisecond)
	assert.Equal(t, int64(400), c.Status().Frame)

	require.NoError(t, c.TogglePause())
	assert.Equal(t, Paused, c.State())

	require.NoError(t, c.Stop())
	assert.Equal(t, Stopped, c.State())
	assert.Equal(t, int64(0), c.Status().Frame)
	require.NoError(t, c.Stop(), "stop always succeeds")

	require.NoError(t, c.PlayFrom(0.25))
	f.advance(100 * time.Millisecond)
	assert.Equal(t, int64(350), c.Status().Frame)

	assert.Equal(t, []tracking.EventKind{
		tracking.EventPlay,
		tracking.EventPause,
		tracking.EventResume,
		tracking.EventPause,
		tracking.EventStop,
		tracking.EventStop,
		tracking.EventPlay,
	}, f.recorder.kinds())
}

func TestEndOfFileStopsAndNotifiesOnce(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.OpenBuffer(ramp(t, 1000, 1, 1000)))

	require.NoError(t, f.ctrl.Play())
	f.advance(1100 * time.Millisecond)
	assert.Equal(t, Stopped, f.ctrl.State())
	assert.Equal(t, int64(1000), f.ctrl.Status().Frame)

	_, err := f.ctrl.Tick()
	require.NoError(t, err)
	_, err = f.ctrl.Tick()
	require.NoError(t, err)

	var finished int
	for _, k := range f.recorder.kinds() {
		if k == tracking.EventFinished {
			finished++
		}
	}
	assert.Equal(t, 1, finished)

	require.NoError(t, f.ctrl.Play(), "play at the end restarts")
	f.advance(100 * time.Millisecond)
	assert.Equal(t, int64(100), f.ctrl.Status().Frame)
}

func TestSeekMovesMarkerWithinOneTick(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.OpenBuffer(ramp(t, 1000, 1, 1000)))

	for _, tt := range []struct {
		seconds float64
		frame   int64
		x       int
	}{
		{0.5, 500, 50},
		{0.1, 100, 10},
		{0.999, 999, 99},
		{5, 999, 99},
		{1e300, 999, 99},
		{math.Inf(1), 999, 99},
		{math.Inf(-1), 0, 0},
	} {
		require.NoError(t, f.ctrl.Seek(tt.seconds))
		frame, err := f.ctrl.Tick()
		require.NoError(t, err)

		assert.Equal(t, tt.frame, frame.Cursor.Frame, "seek to %v", tt.seconds)
		assert.Equal(t, tt.x, frame.X)
		assert.True(t, frame.Visible)
	}

	require.NoError(t, f.ctrl.Play())
	require.NoError(t, f.ctrl.Seek(0.2))
	require.NoError(t, f.ctrl.Seek(0.7))
	f.advance(100 * time.Millisecond)
	frame, err := f.ctrl.Tick()
	require.NoError(t, err)
	assert.Equal(t, int64(800), frame.Cursor.Frame, "last seek wins, then one block plays")
}

func TestSeekByAndSeekToX(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.OpenBuffer(ramp(t, 1000, 1, 1000)))

	require.NoError(t, f.ctrl.Seek(0.5))
	require.NoError(t, f.ctrl.SeekBy(0.2))
	assert.Equal(t, int64(700), f.ctrl.Status().Frame)
	require.NoError(t, f.ctrl.SeekBy(-5))
	assert.Equal(t, int64(0), f.ctrl.Status().Frame)

	require.NoError(t, f.ctrl.SeekToX(25))
	assert.Equal(t, int64(250), f.ctrl.Status().Frame)

	f.ctrl.Zoom(0.5)
	rng := f.ctrl.Status().View
	require.NoError(t, f.ctrl.SeekToX(0))
	assert.Equal(t, rng.Start, f.ctrl.Status().Frame)

	var seeks int
	for _, e := range f.recorder.events {
		if e.Kind == tracking.EventSeek {
			seeks++
		}
	}
	assert.Equal(t, 5, seeks)
}

func TestMarkers(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.OpenBuffer(ramp(t, 1000, 1, 1000)))
	_, err := f.ctrl.Tick()
	require.NoError(t, err)
	rebuilds := f.ctrl.cache.Rebuilds()

	require.NoError(t, f.ctrl.SetMarker(0.25, "intro"))
	require.NoError(t, f.ctrl.MarkAtX(50))
	require.NoError(t, f.ctrl.Seek(0.75))
	require.NoError(t, f.ctrl.MarkHere(""))
	require.NoError(t, f.ctrl.SetMarker(0.25, "intro"), "duplicate is a no-op")

	all := f.ctrl.Markers()
	require.Len(t, all, 3)
	assert.Equal(t, []float64{0.25, 0.5, 0.75}, []float64{all[0].Seconds, all[1].Seconds, all[2].Seconds})
	assert.Equal(t, "intro", all[0].Label)

	status := f.ctrl.Status()
	assert.Equal(t, 3, status.Markers)
	require.NotNil(t, status.LastMarker)
	assert.Equal(t, 0.25, status.LastMarker.Seconds)

	frame, err := f.ctrl.Tick()
	require.NoError(t, err)
	assert.Equal(t, rebuilds+1, f.ctrl.cache.Rebuilds(), "marker edits between ticks cost one rebuild")
	assert.Equal(t, "Marker: 0.250 sec.", frame.MarkerReadout)
	assert.Contains(t, frame.Readout, "Time: ")

	assert.True(t, f.ctrl.RemoveMarker(0.5))
	assert.False(t, f.ctrl.RemoveMarker(0.5))

	require.NoError(t, f.ctrl.Seek(0.6))
	m, ok := f.ctrl.RemoveNearestMarker()
	require.True(t, ok)
	assert.Equal(t, 0.75, m.Seconds)
	m, ok = f.ctrl.RemoveNearestMarker()
	require.True(t, ok)
	assert.Equal(t, "intro", m.Label)
	_, ok = f.ctrl.RemoveNearestMarker()
	assert.False(t, ok)

	require.NoError(t, f.ctrl.SetMarker(0.1, ""))
	f.ctrl.ClearMarkers()
	assert.Empty(t, f.ctrl.Markers())
}

func TestViewCommands(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.OpenBuffer(ramp(t, 1000, 1, 1000)))

	require.NoError(t, f.ctrl.Seek(0.8))
	assert.True(t, f.ctrl.Zoom(0.5))
	rng := f.ctrl.Status().View
	assert.Equal(t, int64(500), rng.Span())
	assert.True(t, rng.Start <= 800 && 800 <= rng.End, "zoom keeps the play position on screen")

	assert.True(t, f.ctrl.Pan(-0.5))
	assert.Equal(t, rng.Start-250, f.ctrl.Status().View.Start)

	assert.True(t, f.ctrl.ZoomAll())
	assert.False(t, f.ctrl.ZoomAll())

	changed, err := f.ctrl.Resize(render.Size{Width: 200, Height: 40})
	require.NoError(t, err)
	assert.True(t, changed)
	frame, err := f.ctrl.Tick()
	require.NoError(t, err)
	assert.Equal(t, 200, frame.Image.Bounds().Dx())

	_, err = f.ctrl.Resize(render.Size{})
	assert.ErrorIs(t, err, render.ErrInvalidSize)
}

func TestCloseAndShutdown(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.OpenBuffer(ramp(t, 1000, 1, 1000)))
	require.NoError(t, f.ctrl.Play())

	f.ctrl.Close()
	assert.Equal(t, NoFile, f.ctrl.State())
	assert.False(t, f.ctrl.timer.Active())
	assert.Nil(t, f.engine.Buffer())
	_, err := f.ctrl.Tick()
	assert.ErrorIs(t, err, ErrNoFile)
	assert.Contains(t, f.recorder.kinds(), tracking.EventClose)

	f.ctrl.Close()

	require.NoError(t, f.ctrl.Shutdown())
	assert.True(t, f.device.closed)
}

func TestTimerCallbackTicks(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.OpenBuffer(ramp(t, 1000, 1, 1000)))

	f.timer.fn()
	f.timer.fn()
	assert.Len(t, f.frames, 2)

	f.ctrl.Close()
	f.timer.fn()
	assert.Len(t, f.frames, 2, "no frames after close")
}

func TestPresenterErrorSurfacesFromTick(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.OpenBuffer(ramp(t, 1000, 1, 1000)))
	boom := errors.New("display gone")
	f.ctrl.SetPresenter(render.PresenterFunc(func(*render.Frame) error { return boom }))

	_, err := f.ctrl.Tick()
	assert.ErrorIs(t, err, boom)
}

func TestSetVolume(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.SetVolume(0.5))
	assert.Equal(t, 0.5, f.ctrl.Status().Volume)
	assert.ErrorIs(t, f.ctrl.SetVolume(2), playback.ErrInvalidVolume)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "no file", NoFile.String())
	assert.Equal(t, "playing", Playing.String())
	assert.Equal(t, "State(9)", State(9).String())
}

// Drives the real ticker and a paced null device while commands arrive from
// another goroutine. Meant for the race detector.
func TestConcurrentCommandsWithRealLoop(t *testing.T) {
	engine := playback.NewEngine()
	ctrl, err := New(Config{
		Engine:    engine,
		Device:    audio.NewNullDevice(),
		BlockSize: 64,
		Interval:  2 * time.Millisecond,
		Size:      render.Size{Width: 64, Height: 16},
	})
	require.NoError(t, err)
	defer ctrl.Shutdown()

	require.NoError(t, ctrl.OpenBuffer(ramp(t, 8000, 2, 8000)))
	require.NoError(t, ctrl.Play())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_ = ctrl.Seek(float64(i%10) / 10)
			ctrl.Zoom(0.9)
			_ = ctrl.TogglePause()
			time.Sleep(time.Millisecond)
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("commands blocked")
	}
	assert.NotEqual(t, NoFile, ctrl.State())
	assert.Positive(t, engine.Stats().Cycles)
}
