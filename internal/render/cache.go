package render

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"audioplot.dev/internal/audio"
	"audioplot.dev/internal/markers"
)

// Cache errors
var (
	ErrStale     = errors.New("background is stale")
	ErrNoBuffer  = errors.New("no buffer to render")
	ErrEmptyView = errors.New("view range is empty")
)

// Background is a rasterized plot for one ViewKey. Its image is never
// modified after Rebuild returns it.
type Background struct {
	Key     ViewKey
	Image   *image.RGBA
	BuiltIn time.Duration
}

// Cache holds the most recent Background. It is owned by the render context.
type Cache struct {
	theme     Theme
	rasterize Rasterizer
	current   *Background
	rebuilds  int
}

// NewCache creates an empty cache that draws with Rasterize.
func NewCache(theme Theme) *Cache {
	return NewCacheWithRasterizer(theme, Rasterize)
}

// NewCacheWithRasterizer creates an empty cache with an injected rasterizer for testing
func NewCacheWithRasterizer(theme Theme, rasterize Rasterizer) *Cache {
	slog.Debug("creating render surface cache")
	return &Cache{theme: theme, rasterize: rasterize}
}

// Get returns the cached background when its key equals key, and ErrStale otherwise.
func (c *Cache) Get(key ViewKey) (*Background, error) {
	if c.current == nil || c.current.Key != key {
		return nil, ErrStale
	}
	return c.current, nil
}

// Last returns the most recently built background regardless of key, or nil.
func (c *Cache) Last() *Background { return c.current }

// Rebuilds returns how many backgrounds have been rasterized.
func (c *Cache) Rebuilds() int { return c.rebuilds }

// Invalidate drops the cached background.
func (c *Cache) Invalidate() { c.current = nil }

// SetTheme changes the colors and drops the cached background.
func (c *Cache) SetTheme(theme Theme) {
	c.theme = theme
	c.current = nil
}

// Rebuild rasterizes buf for key. On failure the previous background is kept.
func (c *Cache) Rebuild(buf *audio.SampleBuffer, key ViewKey, marks []markers.Marker) (bg *Background, err error) {
	if buf == nil {
		return nil, ErrNoBuffer
	}
	if err := key.Size.Validate(); err != nil {
		return nil, err
	}
	if key.Range.Span() <= 0 {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrEmptyView, key.Range.Start, key.Range.End)
	}

	defer func() {
		if r := recover(); r != nil {
			bg = nil
			err = fmt.Errorf("failed to rasterize background: %v", r)
		}
	}()

	started := time.Now()
	img := image.NewRGBA(image.Rect(0, 0, key.Size.Width, key.Size.Height))
	c.rasterize(img, buf, key.Range, marks, c.theme)

	c.current = &Background{Key: key, Image: img, BuiltIn: time.Since(started)}
	c.rebuilds++

	slog.Debug("background rebuilt",
		"range_start", key.Range.Start,
		"range_end", key.Range.End,
		"width", key.Size.Width,
		"height", key.Size.Height,
		"markers", len(marks),
		"duration", c.current.BuiltIn)
	return c.current, nil
}
