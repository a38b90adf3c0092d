package render

import (
	"image"
	"image/draw"
	"math"

	"audioplot.dev/internal/audio"
	"audioplot.dev/internal/markers"
)

// Rasterizer draws the static part of the plot for rng into dst.
type Rasterizer func(dst *image.RGBA, buf *audio.SampleBuffer, rng Range, marks []markers.Marker, theme Theme)

// Rasterize draws one lane per channel: background, grid, a min/max envelope
// per pixel column, the zero axis, then any markers inside rng.
func Rasterize(dst *image.RGBA, buf *audio.SampleBuffer, rng Range, marks []markers.Marker, theme Theme) {
	bounds := dst.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	draw.Draw(dst, bounds, image.NewUniform(theme.Background), image.Point{}, draw.Src)

	channels := buf.Channels()
	span := rng.Span()
	if channels == 0 || span <= 0 || width == 0 {
		return
	}

	grid := image.NewUniform(theme.Grid)
	plot := image.NewUniform(theme.Plot)
	axis := image.NewUniform(theme.Axis)

	rate := float64(buf.SampleRate())
	step := tickStep(float64(span)/rate, 8)
	first := math.Ceil(float64(rng.Start)/rate/step) * step
	for sec := first; sec*rate < float64(rng.End); sec += step {
		x := int((int64(math.Round(sec*rate)) - rng.Start) * int64(width) / span)
		fill(dst, image.Rect(x, 0, x+1, height), grid)
	}

	for ch := 0; ch < channels; ch++ {
		top := ch * height / channels
		bottom := (ch + 1) * height / channels
		mid := (top + bottom) / 2
		half := float64(bottom-top)/2 - 1

		for _, level := range []float64{-0.5, 0.5} {
			y := mid - int(math.Round(level*half))
			fill(dst, image.Rect(0, y, width, y+1), grid)
		}

		for x := 0; x < width; x++ {
			f0 := rng.Start + int64(x)*span/int64(width)
			f1 := rng.Start + int64(x+1)*span/int64(width)
			// one extra frame joins neighbouring columns when zoomed in
			lo, hi := buf.Peak(ch, f0, max(f1, f0+1)+1)
			y0 := mid - int(math.Round(float64(hi)*half))
			y1 := mid - int(math.Round(float64(lo)*half))
			fill(dst, image.Rect(x, y0, x+1, y1+1), plot)
		}

		fill(dst, image.Rect(0, mid, width, mid+1), axis)
	}

	if len(marks) == 0 {
		return
	}
	marker := image.NewUniform(theme.Marker)
	for _, m := range marks {
		frame := int64(math.Round(m.Seconds * rate))
		if frame < rng.Start || frame > rng.End {
			continue
		}
		x := min(int((frame-rng.Start)*int64(width)/span), width-1)
		fill(dst, image.Rect(x, 0, x+1, height), marker)
	}
}

// fill composites src over dst inside r.
func fill(dst draw.Image, r image.Rectangle, src image.Image) {
	draw.Draw(dst, r.Intersect(dst.Bounds()), src, image.Point{}, draw.Over)
}

// tickStep picks a 1-2-5 step in seconds that divides span into roughly n parts.
func tickStep(span float64, n int) float64 {
	if span <= 0 {
		return 1
	}
	raw := span / float64(n)
	mag := math.Pow(10, math.Floor(math.Log10(raw)))
	for _, m := range []float64{1, 2, 5, 10} {
		if m*mag >= raw {
			return m * mag
		}
	}
	return 10 * mag
}

// ensureRGBA returns img if it already has bounds r, otherwise a new image.
func ensureRGBA(img *image.RGBA, r image.Rectangle) *image.RGBA {
	if img != nil && img.Bounds() == r {
		return img
	}
	return image.NewRGBA(r)
}
