package render

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"log/slog"

	"audioplot.dev/internal/audio"
	"audioplot.dev/internal/markers"
	"audioplot.dev/internal/playback"
)

// headSize is the half-width in pixels of the optional cursor heads.
const headSize = 4

// CursorSource reports where the position marker belongs.
type CursorSource interface {
	Cursor() playback.Cursor
}

// Options controls the overlay.
type Options struct {
	// LineWidth of the position marker in pixels. Zero means 1.
	LineWidth int
	// ShowCursor draws triangular heads at both ends of the marker.
	ShowCursor bool
	// ShowReadout fills Frame.Readout and Frame.MarkerReadout.
	ShowReadout bool
}

// Frame is one composed picture. The image and the Frame itself belong to
// the Compositor and are only valid until the next Tick.
type Frame struct {
	Image *image.RGBA
	// Dirty covers every pixel that differs from the previously presented frame.
	Dirty image.Rectangle
	// Full is set when the whole background was restored.
	Full          bool
	Cursor        playback.Cursor
	X             int
	Visible       bool
	Seconds       float64
	Readout       string
	MarkerReadout string
	Key           ViewKey
	Tick          uint64
}

// Compositor restores the cached background each tick and draws the moving
// overlay on top. Everything it touches belongs to the render context.
type Compositor struct {
	source    CursorSource
	cache     *Cache
	view      *Viewport
	marks     *markers.Set
	presenter Presenter
	opts      Options

	buffer  *audio.SampleBuffer
	canvas  *image.RGBA
	shown   *Background
	overlay image.Rectangle
	ticks   uint64
	frame   Frame
	line    *image.Uniform
}

// NewCompositor wires a compositor. presenter may be nil.
func NewCompositor(source CursorSource, cache *Cache, view *Viewport, marks *markers.Set, presenter Presenter, opts Options) *Compositor {
	if opts.LineWidth <= 0 {
		opts.LineWidth = 1
	}
	slog.Debug("creating frame compositor",
		"line_width", opts.LineWidth,
		"show_cursor", opts.ShowCursor,
		"show_readout", opts.ShowReadout)
	return &Compositor{
		source:    source,
		cache:     cache,
		view:      view,
		marks:     marks,
		presenter: presenter,
		opts:      opts,
		line:      image.NewUniform(cache.theme.Position),
	}
}

// SetBuffer changes the waveform being drawn.
func (c *Compositor) SetBuffer(buf *audio.SampleBuffer) {
	c.buffer = buf
	c.shown = nil
}

// SetTheme changes the colors; the background is rebuilt on the next tick.
func (c *Compositor) SetTheme(theme Theme) {
	c.cache.SetTheme(theme)
	c.line = image.NewUniform(theme.Position)
	c.shown = nil
}

// SetPresenter replaces the presenter.
func (c *Compositor) SetPresenter(p Presenter) { c.presenter = p }

// Key returns the view key for the current buffer, view and markers.
func (c *Compositor) Key() ViewKey {
	return ViewKey{
		Buffer:        c.buffer,
		Range:         c.view.Range(),
		Size:          c.view.Size(),
		MarkerVersion: c.marks.Version(),
	}
}

// visibleMarkers returns the markers that fall inside rng.
func (c *Compositor) visibleMarkers(rng Range) []markers.Marker {
	return c.marks.Between(c.buffer.SecondsAt(rng.Start), c.buffer.SecondsAt(rng.End))
}

// Tick composes and presents one frame. A failed rebuild falls back to the
// previous background; a present failure is returned with the frame.
func (c *Compositor) Tick() (*Frame, error) {
	if c.buffer == nil {
		return nil, ErrNoBuffer
	}
	c.ticks++

	cursor := c.source.Cursor()
	key := c.Key()

	bg, err := c.cache.Get(key)
	if errors.Is(err, ErrStale) {
		bg, err = c.cache.Rebuild(c.buffer, key, c.visibleMarkers(key.Range))
		if err != nil {
			bg = c.cache.Last()
			if bg == nil {
				return nil, err
			}
			slog.Warn("background rebuild failed, reusing previous image", "error", err)
		}
	}

	full := bg != c.shown || c.canvas == nil || c.canvas.Bounds() != bg.Image.Bounds()
	var dirty image.Rectangle
	if full {
		c.canvas = ensureRGBA(c.canvas, bg.Image.Bounds())
		copy(c.canvas.Pix, bg.Image.Pix)
		c.shown = bg
		dirty = c.canvas.Bounds()
	} else if !c.overlay.Empty() {
		draw.Draw(c.canvas, c.overlay, bg.Image, c.overlay.Min, draw.Src)
		dirty = c.overlay
	}

	x, visible := c.view.FrameToX(cursor.Frame)
	c.overlay = image.Rectangle{}
	if visible {
		c.overlay = c.drawMarker(x)
		dirty = dirty.Union(c.overlay)
	}

	c.frame = Frame{
		Image:   c.canvas,
		Dirty:   dirty,
		Full:    full,
		Cursor:  cursor,
		X:       x,
		Visible: visible,
		Seconds: c.buffer.SecondsAt(cursor.Frame),
		Key:     bg.Key,
		Tick:    c.ticks,
	}
	if c.opts.ShowReadout {
		c.frame.Readout = fmt.Sprintf("Time: %.3f sec.", c.frame.Seconds)
		if m, ok := c.marks.Last(); ok {
			c.frame.MarkerReadout = fmt.Sprintf("Marker: %.3f sec.", m.Seconds)
		} else {
			c.frame.MarkerReadout = "Marker: - sec."
		}
	}

	if c.presenter != nil {
		if err := c.presenter.Present(&c.frame); err != nil {
			return &c.frame, fmt.Errorf("failed to present frame: %w", err)
		}
	}
	return &c.frame, nil
}

// drawMarker draws the position line at x and returns the touched rectangle.
func (c *Compositor) drawMarker(x int) image.Rectangle {
	bounds := c.canvas.Bounds()
	left := x - (c.opts.LineWidth-1)/2
	line := image.Rect(left, bounds.Min.Y, left+c.opts.LineWidth, bounds.Max.Y).Intersect(bounds)
	draw.Draw(c.canvas, line, c.line, image.Point{}, draw.Over)
	touched := line

	if c.opts.ShowCursor {
		for row := 0; row < headSize; row++ {
			w := headSize - row
			top := image.Rect(x-w, bounds.Min.Y+row, x+w+1, bounds.Min.Y+row+1).Intersect(bounds)
			bottom := image.Rect(x-w, bounds.Max.Y-row-1, x+w+1, bounds.Max.Y-row).Intersect(bounds)
			draw.Draw(c.canvas, top, c.line, image.Point{}, draw.Over)
			draw.Draw(c.canvas, bottom, c.line, image.Point{}, draw.Over)
			touched = touched.Union(top).Union(bottom)
		}
	}
	return touched
}
