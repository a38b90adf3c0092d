package render

import (
	"errors"
	"fmt"
	"math"

	"audioplot.dev/internal/audio"
)

// MinSpan is the narrowest view, in frames, that Zoom will produce.
const MinSpan = 16

var ErrInvalidSize = errors.New("invalid surface size")

// Size is a surface size in pixels.
type Size struct {
	Width  int
	Height int
}

// Validate reports whether both dimensions are positive.
func (s Size) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, s.Width, s.Height)
	}
	return nil
}

// Range is the half-open frame interval [Start, End) shown on screen.
type Range struct {
	Start int64
	End   int64
}

// Span returns End - Start.
func (r Range) Span() int64 { return r.End - r.Start }

// ViewKey identifies everything a background raster depends on.
type ViewKey struct {
	Buffer        *audio.SampleBuffer
	Range         Range
	Size          Size
	MarkerVersion uint64
}

// Viewport maps frames of a buffer onto the horizontal pixels of a surface.
// It is owned by the render context.
type Viewport struct {
	length int64
	rng    Range
	size   Size
}

// NewViewport shows the whole of a buffer with length frames.
func NewViewport(length int64, size Size) *Viewport {
	v := &Viewport{size: size}
	v.Reset(length)
	return v
}

// Reset shows the whole of a buffer with length frames.
func (v *Viewport) Reset(length int64) {
	v.length = max(length, 0)
	v.rng = Range{Start: 0, End: v.length}
}

// Range returns the visible frames.
func (v *Viewport) Range() Range { return v.rng }

// Size returns the surface size.
func (v *Viewport) Size() Size { return v.size }

// Length returns the length of the buffer being viewed.
func (v *Viewport) Length() int64 { return v.length }

// Resize changes the surface size and reports whether it changed.
func (v *Viewport) Resize(size Size) (bool, error) {
	if err := size.Validate(); err != nil {
		return false, err
	}
	if size == v.size {
		return false, nil
	}
	v.size = size
	return true, nil
}

// Zoom scales the visible span by factor around center. factor < 1 zooms in.
// It reports whether the range changed.
func (v *Viewport) Zoom(factor float64, center int64) bool {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) || v.length == 0 {
		return false
	}
	span := v.rng.Span()
	next := int64(math.Round(float64(span) * factor))
	next = max(min(next, v.length), min(MinSpan, v.length))
	if next == span {
		return false
	}

	center = max(0, min(center, v.length))
	// keep center at the same relative position on screen
	rel := 0.5
	if span > 0 {
		rel = float64(center-v.rng.Start) / float64(span)
		rel = max(0, min(rel, 1))
	}
	start := center - int64(math.Round(rel*float64(next)))
	return v.place(start, next)
}

// Pan shifts the visible range by delta frames, stopping at either end.
// It reports whether the range changed.
func (v *Viewport) Pan(delta int64) bool {
	return v.place(v.rng.Start+delta, v.rng.Span())
}

// ZoomAll shows the whole buffer and reports whether the range changed.
func (v *Viewport) ZoomAll() bool {
	return v.place(0, v.length)
}

func (v *Viewport) place(start, span int64) bool {
	start = max(0, min(start, v.length-span))
	next := Range{Start: start, End: start + span}
	if next == v.rng {
		return false
	}
	v.rng = next
	return true
}

// FrameToX maps frame to a pixel column. visible is false when the frame is
// outside the range; the end of the buffer maps to the last column.
func (v *Viewport) FrameToX(frame int64) (x int, visible bool) {
	span := v.rng.Span()
	if span <= 0 || v.size.Width <= 0 || frame < v.rng.Start || frame > v.rng.End {
		return 0, false
	}
	x = int((frame - v.rng.Start) * int64(v.size.Width) / span)
	return min(x, v.size.Width-1), true
}

// XToFrame maps a pixel column to the first frame it covers.
func (v *Viewport) XToFrame(x int) int64 {
	if v.size.Width <= 0 {
		return v.rng.Start
	}
	x = max(0, min(x, v.size.Width-1))
	return v.rng.Start + int64(x)*v.rng.Span()/int64(v.size.Width)
}
