// Package transport maps user commands onto the playback engine and keeps
// the frame loop running while a file is loaded.
package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"audioplot.dev/internal/audio"
	"audioplot.dev/internal/markers"
	"audioplot.dev/internal/playback"
	"audioplot.dev/internal/render"
	"audioplot.dev/internal/tracking"
)

// ErrNoFile is returned by commands that need a loaded file.
var ErrNoFile = errors.New("no file loaded")

// State is the controller's view of the transport.
type State int

const (
	NoFile State = iota
	Stopped
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case NoFile:
		return "no file"
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Recorder receives transport events. *tracking.Recorder implements it.
type Recorder interface {
	Open(info tracking.FileInfo) string
	Record(event tracking.Event)
}

type nopRecorder struct{}

func (nopRecorder) Open(tracking.FileInfo) string { return "" }
func (nopRecorder) Record(tracking.Event)         {}

// Timer drives Tick at the frame rate. *render.Ticker implements it.
type Timer interface {
	Start()
	Stop()
	Active() bool
}

// Config wires a Controller. Engine and Device are required.
type Config struct {
	Engine    *playback.Engine
	Device    audio.Device
	Registry  *audio.DecoderRegistry
	Fs        afero.Fs
	Presenter render.Presenter
	Recorder  Recorder

	// NewTimer builds the frame timer around fn. Nil means render.NewTicker.
	NewTimer func(interval time.Duration, fn func()) Timer

	BlockSize int
	Interval  time.Duration
	Size      render.Size
	Theme     render.Theme
	Render    render.Options
}

// Status is a snapshot for display.
type Status struct {
	State      State
	File       string
	Format     string
	Channels   int
	SampleRate int
	Duration   float64
	Seconds    float64
	Frame      int64
	Length     int64
	Volume     float64
	View       render.Range
	Markers    int
	LastMarker *markers.Marker
	Stats      playback.Stats
	Device     string
}

// Controller owns the render side of the player. All methods are safe for
// concurrent use; the audio context never takes the controller lock.
type Controller struct {
	mutex sync.Mutex

	engine   *playback.Engine
	device   audio.Device
	registry *audio.DecoderRegistry
	fs       afero.Fs
	recorder Recorder

	blockSize int
	format    audio.Format
	started   bool

	view  *render.Viewport
	marks *markers.Set
	cache *render.Cache
	comp  *render.Compositor
	timer Timer

	buffer *audio.SampleBuffer
	path   string
}

// New creates a controller with no file loaded.
func New(cfg Config) (*Controller, error) {
	if cfg.Engine == nil || cfg.Device == nil {
		return nil, errors.New("transport requires an engine and a device")
	}
	if cfg.Registry == nil {
		cfg.Registry = audio.NewDefaultRegistry()
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.NewTimer == nil {
		cfg.NewTimer = func(interval time.Duration, fn func()) Timer {
			return render.NewTicker(interval, fn)
		}
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = 512
	}
	if cfg.Interval <= 0 {
		cfg.Interval = render.DefaultInterval
	}
	if cfg.Size == (render.Size{}) {
		cfg.Size = render.Size{Width: 1200, Height: 400}
	}
	if err := cfg.Size.Validate(); err != nil {
		return nil, err
	}
	if cfg.Theme == (render.Theme{}) {
		cfg.Theme = render.DefaultTheme()
	}

	c := &Controller{
		engine:    cfg.Engine,
		device:    cfg.Device,
		registry:  cfg.Registry,
		fs:        cfg.Fs,
		recorder:  cfg.Recorder,
		blockSize: cfg.BlockSize,
		view:      render.NewViewport(0, cfg.Size),
		marks:     markers.NewSet(),
		cache:     render.NewCache(cfg.Theme),
	}
	c.comp = render.NewCompositor(c.engine, c.cache, c.view, c.marks, cfg.Presenter, cfg.Render)
	c.timer = cfg.NewTimer(cfg.Interval, c.tick)

	slog.Debug("transport controller created",
		"device", cfg.Device.Name(),
		"block_size", cfg.BlockSize,
		"interval", cfg.Interval,
		"width", cfg.Size.Width,
		"height", cfg.Size.Height)
	return c, nil
}

// Open decodes path and loads it.
func (c *Controller) Open(path string) error {
	buf, err := c.registry.DecodePath(c.fs, path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.load(buf); err != nil {
		return err
	}
	c.path = path
	return nil
}

// OpenBuffer loads an already decoded buffer.
func (c *Controller) OpenBuffer(buf *audio.SampleBuffer) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.load(buf); err != nil {
		return err
	}
	c.path = buf.Name()
	return nil
}

func (c *Controller) load(buf *audio.SampleBuffer) error {
	if err := playback.Validate(buf); err != nil {
		return err
	}

	format := audio.Format{
		SampleRate: buf.SampleRate(),
		Channels:   buf.Channels(),
		BlockSize:  c.blockSize,
	}
	reconfigure := !c.started || format != c.format
	if reconfigure && c.started {
		if err := c.device.Stop(); err != nil {
			slog.Warn("failed to stop output device", "error", err)
		}
		c.started = false
	}

	if err := c.engine.Open(buf); err != nil {
		return err
	}

	if reconfigure {
		if err := c.startDevice(format); err != nil {
			c.engine.Close()
			c.unload()
			return err
		}
	}

	c.buffer = buf
	c.view.Reset(int64(buf.Len()))
	c.marks.Clear()
	c.cache.Invalidate()
	c.comp.SetBuffer(buf)
	c.timer.Start()

	c.recorder.Open(tracking.FileInfo{
		Name:       buf.Name(),
		Format:     buf.Format(),
		Channels:   buf.Channels(),
		SampleRate: buf.SampleRate(),
		Seconds:    buf.Seconds(),
		Backend:    c.device.Name(),
	})

	slog.Info("file loaded",
		"name", buf.Name(),
		"format", buf.Format(),
		"duration", buf.Duration(),
		"channels", buf.Channels(),
		"sample_rate", buf.SampleRate())
	return nil
}

func (c *Controller) startDevice(format audio.Format) error {
	c.format = audio.Format{}
	if err := c.device.Open(format, c.engine); err != nil {
		return fmt.Errorf("failed to open output device: %w", err)
	}
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start output device: %w", err)
	}
	c.format = format
	c.started = true
	slog.Info("output device configured",
		"device", c.device.Name(),
		"sample_rate", format.SampleRate,
		"channels", format.Channels,
		"block_size", format.BlockSize)
	return nil
}

func (c *Controller) unload() {
	c.timer.Stop()
	c.buffer = nil
	c.path = ""
	c.comp.SetBuffer(nil)
	c.cache.Invalidate()
	c.marks.Clear()
	c.view.Reset(0)
}

// Close unloads the file and stops the frame timer. The device keeps
// running and delivers silence.
func (c *Controller) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.buffer == nil {
		return
	}
	c.record(tracking.EventClose)
	c.engine.Close()
	c.unload()
	slog.Debug("file closed")
}

// Shutdown closes the file and releases the output device.
func (c *Controller) Shutdown() error {
	c.Close()

	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.started = false
	c.format = audio.Format{}
	if err := c.device.Close(); err != nil {
		return fmt.Errorf("failed to close output device: %w", err)
	}
	return nil
}

// State returns the transport state.
func (c *Controller) State() State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state()
}

func (c *Controller) state() State {
	if c.buffer == nil {
		return NoFile
	}
	switch c.engine.State() {
	case playback.Playing:
		return Playing
	case playback.Paused:
		return Paused
	}
	return Stopped
}

// Play starts or resumes playback.
func (c *Controller) Play() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.buffer == nil {
		return ErrNoFile
	}
	kind := tracking.EventPlay
	if c.engine.State() == playback.Paused {
		kind = tracking.EventResume
	}
	if err := c.engine.Play(); err != nil {
		return err
	}
	c.record(kind)
	return nil
}

// PlayFrom starts playback at seconds.
func (c *Controller) PlayFrom(seconds float64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.buffer == nil {
		return ErrNoFile
	}
	if err := c.engine.PlayFrom(c.buffer.FrameAt(seconds)); err != nil {
		return err
	}
	c.recordAt(tracking.EventPlay, seconds)
	return nil
}

// Pause pauses playback, keeping the position.
func (c *Controller) Pause() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.buffer == nil {
		return ErrNoFile
	}
	if err := c.engine.Pause(); err != nil {
		return err
	}
	c.record(tracking.EventPause)
	return nil
}

// TogglePause pauses while playing and plays otherwise.
func (c *Controller) TogglePause() error {
	c.mutex.Lock()
	playing := c.buffer != nil && c.engine.State() == playback.Playing
	c.mutex.Unlock()

	if playing {
		if err := c.Pause(); !errors.Is(err, playback.ErrNotPlaying) {
			return err
		}
		// finished between the check and the pause
	}
	return c.Play()
}

// Stop stops playback and rewinds to the start.
func (c *Controller) Stop() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.buffer == nil {
		return ErrNoFile
	}
	c.record(tracking.EventStop)
	c.engine.Stop()
	return nil
}

// Seek moves the play position to seconds, clamped to the file.
func (c *Controller) Seek(seconds float64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.buffer == nil {
		return ErrNoFile
	}
	return c.seekFrame(c.buffer.FrameAt(seconds))
}

// SeekBy moves the play position by delta seconds.
func (c *Controller) SeekBy(delta float64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.buffer == nil {
		return ErrNoFile
	}
	now := c.buffer.SecondsAt(c.engine.Cursor().Frame)
	return c.seekFrame(c.buffer.FrameAt(now + delta))
}

// SeekToX moves the play position to the frame under pixel column x.
func (c *Controller) SeekToX(x int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.buffer == nil {
		return ErrNoFile
	}
	return c.seekFrame(c.view.XToFrame(x))
}

func (c *Controller) seekFrame(frame int64) error {
	from := c.buffer.SecondsAt(c.engine.Cursor().Frame)
	if err := c.engine.Seek(frame); err != nil {
		return err
	}
	c.recorder.Record(tracking.Event{
		Kind:      tracking.EventSeek,
		Seconds:   c.buffer.SecondsAt(min(frame, int64(c.buffer.Len())-1)),
		Underruns: c.engine.Stats().Underruns,
		Detail:    map[string]any{"from": from},
	})
	return nil
}

// SetVolume sets the output gain in [0, 1].
func (c *Controller) SetVolume(volume float64) error {
	return c.engine.SetVolume(volume)
}

// SetMarker adds a marker at seconds.
func (c *Controller) SetMarker(seconds float64, label string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.buffer == nil {
		return ErrNoFile
	}
	seconds = c.buffer.SecondsAt(c.buffer.FrameAt(seconds))
	if c.marks.Add(markers.Marker{Seconds: seconds, Label: label}) {
		c.recordAt(tracking.EventMarker, seconds)
	}
	return nil
}

// MarkAtX adds a marker at the frame under pixel column x.
func (c *Controller) MarkAtX(x int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.buffer == nil {
		return ErrNoFile
	}
	seconds := c.buffer.SecondsAt(c.view.XToFrame(x))
	if c.marks.Add(markers.Marker{Seconds: seconds}) {
		c.recordAt(tracking.EventMarker, seconds)
	}
	return nil
}

// MarkHere adds a marker at the current play position.
func (c *Controller) MarkHere(label string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.buffer == nil {
		return ErrNoFile
	}
	seconds := c.buffer.SecondsAt(c.engine.Cursor().Frame)
	if c.marks.Add(markers.Marker{Seconds: seconds, Label: label}) {
		c.recordAt(tracking.EventMarker, seconds)
	}
	return nil
}

// RemoveMarker deletes the marker at seconds and reports whether one existed.
func (c *Controller) RemoveMarker(seconds float64) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.marks.Remove(seconds)
}

// RemoveNearestMarker deletes the marker closest to the play position and
// returns it.
func (c *Controller) RemoveNearestMarker() (markers.Marker, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.buffer == nil {
		return markers.Marker{}, false
	}
	m, ok := c.marks.Nearest(c.buffer.SecondsAt(c.engine.Cursor().Frame))
	if !ok {
		return markers.Marker{}, false
	}
	c.marks.Remove(m.Seconds)
	return m, true
}

// ClearMarkers removes every marker.
func (c *Controller) ClearMarkers() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.marks.Clear()
}

// Markers returns the markers in time order.
func (c *Controller) Markers() []markers.Marker {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.marks.All()
}

// Zoom scales the visible span by factor, keeping the play position in
// place when it is on screen and the view center otherwise.
func (c *Controller) Zoom(factor float64) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.buffer == nil {
		return false
	}
	rng := c.view.Range()
	center := rng.Start + rng.Span()/2
	if frame := c.engine.Cursor().Frame; frame >= rng.Start && frame <= rng.End {
		center = frame
	}
	return c.view.Zoom(factor, center)
}

// ZoomAll shows the whole file.
func (c *Controller) ZoomAll() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.view.ZoomAll()
}

// Pan shifts the view by fraction of the visible span.
func (c *Controller) Pan(fraction float64) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	span := c.view.Range().Span()
	return c.view.Pan(int64(fraction * float64(span)))
}

// Resize changes the plot size.
func (c *Controller) Resize(size render.Size) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.view.Resize(size)
}

// SetTheme changes the plot colors.
func (c *Controller) SetTheme(theme render.Theme) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.comp.SetTheme(theme)
}

// SetPresenter replaces where frames go.
func (c *Controller) SetPresenter(p render.Presenter) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.comp.SetPresenter(p)
}

// Tick handles a pending end-of-file notification and composes one frame.
// The frame is only valid until the next Tick.
func (c *Controller) Tick() (*render.Frame, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	select {
	case <-c.engine.Finished():
		if c.buffer != nil {
			c.recordAt(tracking.EventFinished, c.buffer.Seconds())
			slog.Debug("playback finished", "file", c.path)
		}
	default:
	}

	if c.buffer == nil {
		return nil, ErrNoFile
	}
	return c.comp.Tick()
}

func (c *Controller) tick() {
	if _, err := c.Tick(); err != nil && !errors.Is(err, ErrNoFile) {
		slog.Warn("frame tick failed", "error", err)
	}
}

// Status returns a snapshot of the transport.
func (c *Controller) Status() Status {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	s := Status{
		State:   c.state(),
		Volume:  c.engine.Volume(),
		Stats:   c.engine.Stats(),
		Device:  c.device.Name(),
		View:    c.view.Range(),
		Markers: c.marks.Len(),
	}
	if c.buffer == nil {
		return s
	}
	cursor := c.engine.Cursor()
	s.File = c.buffer.Name()
	if c.path != "" {
		s.File = filepath.Base(c.path)
	}
	s.Format = c.buffer.Format()
	s.Channels = c.buffer.Channels()
	s.SampleRate = c.buffer.SampleRate()
	s.Duration = c.buffer.Seconds()
	s.Frame = cursor.Frame
	s.Seconds = c.buffer.SecondsAt(cursor.Frame)
	s.Length = int64(c.buffer.Len())
	if m, ok := c.marks.Last(); ok {
		s.LastMarker = &m
	}
	return s
}

func (c *Controller) record(kind tracking.EventKind) {
	c.recordAt(kind, c.buffer.SecondsAt(c.engine.Cursor().Frame))
}

func (c *Controller) recordAt(kind tracking.EventKind, seconds float64) {
	c.recorder.Record(tracking.Event{
		Kind:      kind,
		Seconds:   seconds,
		Underruns: c.engine.Stats().Underruns,
	})
}
