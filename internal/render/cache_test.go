package render

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audioplot.dev/internal/audio"
	"audioplot.dev/internal/markers"
)

func sineBuffer(t testing.TB, frames, channels int) *audio.SampleBuffer {
	t.Helper()
	planes := make([][]float32, channels)
	for ch := range planes {
		planes[ch] = make([]float32, frames)
		for i := range planes[ch] {
			if (i/50)%2 == 0 {
				planes[ch][i] = 0.8
			} else {
				planes[ch][i] = -0.8
			}
		}
	}
	buf, err := audio.NewSampleBuffer(planes, 1000)
	require.NoError(t, err)
	return buf
}

// countingRasterizer records how often it runs.
type countingRasterizer struct {
	calls int
	panic bool
	marks []markers.Marker
}

func (r *countingRasterizer) rasterize(dst *image.RGBA, buf *audio.SampleBuffer, rng Range, marks []markers.Marker, theme Theme) {
	r.calls++
	r.marks = marks
	if r.panic {
		panic("rasterizer exploded")
	}
	Rasterize(dst, buf, rng, marks, theme)
}

func TestCacheGetAndRebuild(t *testing.T) {
	buf := sineBuffer(t, 1000, 1)
	cache := NewCache(DefaultTheme())
	key := ViewKey{Buffer: buf, Range: Range{0, 1000}, Size: Size{100, 40}}

	_, err := cache.Get(key)
	assert.ErrorIs(t, err, ErrStale)
	assert.Nil(t, cache.Last())

	bg, err := cache.Rebuild(buf, key, nil)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 40), bg.Image.Bounds())

	got, err := cache.Get(key)
	require.NoError(t, err)
	assert.Same(t, bg, got)

	other := key
	other.MarkerVersion++
	_, err = cache.Get(other)
	assert.ErrorIs(t, err, ErrStale)

	cache.Invalidate()
	_, err = cache.Get(key)
	assert.ErrorIs(t, err, ErrStale)
	assert.Equal(t, 1, cache.Rebuilds())
}

func TestCacheRebuildRejectsBadInput(t *testing.T) {
	buf := sineBuffer(t, 1000, 1)
	cache := NewCache(DefaultTheme())
	good := ViewKey{Buffer: buf, Range: Range{0, 1000}, Size: Size{100, 40}}
	_, err := cache.Rebuild(buf, good, nil)
	require.NoError(t, err)

	_, err = cache.Rebuild(nil, good, nil)
	assert.ErrorIs(t, err, ErrNoBuffer)

	bad := good
	bad.Size = Size{0, 40}
	_, err = cache.Rebuild(buf, bad, nil)
	assert.ErrorIs(t, err, ErrInvalidSize)

	bad = good
	bad.Range = Range{10, 10}
	_, err = cache.Rebuild(buf, bad, nil)
	assert.ErrorIs(t, err, ErrEmptyView)

	assert.Equal(t, good, cache.Last().Key, "failed rebuilds keep the previous background")
}

func TestCacheRecoversFromRasterizerPanic(t *testing.T) {
	buf := sineBuffer(t, 1000, 1)
	r := &countingRasterizer{panic: true}
	cache := NewCacheWithRasterizer(DefaultTheme(), r.rasterize)

	_, err := cache.Rebuild(buf, ViewKey{Buffer: buf, Range: Range{0, 1000}, Size: Size{10, 10}}, nil)
	assert.ErrorContains(t, err, "failed to rasterize background")
	assert.Nil(t, cache.Last())
	assert.Equal(t, 0, cache.Rebuilds())
}

func TestRasterizeDrawsWaveformAxisAndMarkers(t *testing.T) {
	buf := sineBuffer(t, 1000, 2)
	theme := DefaultTheme()
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))

	Rasterize(img, buf, Range{0, 1000}, []markers.Marker{{Seconds: 0.5}, {Seconds: 5}}, theme)

	bg := img.RGBAAt(1, 1)
	assert.NotEqual(t, bg, img.RGBAAt(9, 10), "upper lane has a waveform above the axis")
	assert.NotEqual(t, bg, img.RGBAAt(9, 60), "lower lane has a waveform above the axis")

	marker := img.RGBAAt(100, 50)
	assert.Equal(t, uint8(0x80), marker.G, "marker at 0.5s is drawn at the middle column")
	assert.Equal(t, uint8(0), marker.R)
}
