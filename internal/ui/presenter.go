package ui

import (
	"image"
	"strconv"

	"audioplot.dev/internal/render"
)

// halfBlock shows the upper pixel of a cell in the foreground color and the
// lower pixel in the background color.
const halfBlock = "▀"

type rgb [3]uint8

type cell struct {
	top, bottom rgb
}

// Presenter turns composed frames into terminal rows, two pixel rows per
// text row. Only cells inside the frame's dirty rectangle are resampled and
// only the rows they belong to are re-encoded.
//
// Presenter is not safe for concurrent use; the TUI event loop owns it.
type Presenter struct {
	width   int
	cells   [][]cell
	rows    []string
	buf     []byte
	frames  uint64
	encoded int

	readout       string
	markerReadout string
}

// NewPresenter creates an empty presenter.
func NewPresenter() *Presenter {
	return &Presenter{}
}

// Present implements render.Presenter.
func (p *Presenter) Present(frame *render.Frame) error {
	img := frame.Image
	b := img.Bounds()
	rows := (b.Dy() + 1) / 2

	dirty := frame.Dirty.Intersect(b)
	if frame.Full || b.Dx() != p.width || rows != len(p.rows) {
		p.resize(b.Dx(), rows)
		dirty = b
	}

	p.readout = frame.Readout
	p.markerReadout = frame.MarkerReadout
	p.frames++

	if dirty.Empty() {
		return nil
	}

	first := (dirty.Min.Y - b.Min.Y) / 2
	last := (dirty.Max.Y - b.Min.Y + 1) / 2
	for row := first; row < last && row < rows; row++ {
		y := b.Min.Y + row*2
		line := p.cells[row]
		for x := dirty.Min.X; x < dirty.Max.X; x++ {
			c := cell{top: pixel(img, x, y)}
			if y+1 < b.Max.Y {
				c.bottom = pixel(img, x, y+1)
			} else {
				c.bottom = c.top
			}
			line[x-b.Min.X] = c
		}
		p.buf = appendRow(p.buf[:0], line)
		p.rows[row] = string(p.buf)
		p.encoded++
	}
	return nil
}

func (p *Presenter) resize(width, rows int) {
	p.width = width
	p.cells = make([][]cell, rows)
	for i := range p.cells {
		p.cells[i] = make([]cell, width)
	}
	p.rows = make([]string, rows)
}

// Rows returns the encoded plot rows. The slice is reused by the next Present.
func (p *Presenter) Rows() []string { return p.rows }

// Readout returns the time readout of the last frame.
func (p *Presenter) Readout() string { return p.readout }

// MarkerReadout returns the marker readout of the last frame.
func (p *Presenter) MarkerReadout() string { return p.markerReadout }

// Frames returns how many frames were presented.
func (p *Presenter) Frames() uint64 { return p.frames }

// Encoded returns how many rows have been re-encoded in total.
func (p *Presenter) Encoded() int { return p.encoded }

func pixel(img *image.RGBA, x, y int) rgb {
	i := img.PixOffset(x, y)
	return rgb{img.Pix[i], img.Pix[i+1], img.Pix[i+2]}
}

// appendRow encodes one row of cells with 24-bit SGR sequences, emitting a
// new sequence only where the colors change.
func appendRow(dst []byte, line []cell) []byte {
	for i, c := range line {
		if i == 0 || c != line[i-1] {
			dst = append(dst, "\x1b[38;2;"...)
			dst = appendRGB(dst, c.top)
			dst = append(dst, ";48;2;"...)
			dst = appendRGB(dst, c.bottom)
			dst = append(dst, 'm')
		}
		dst = append(dst, halfBlock...)
	}
	if len(line) > 0 {
		dst = append(dst, "\x1b[0m"...)
	}
	return dst
}

func appendRGB(dst []byte, c rgb) []byte {
	dst = strconv.AppendUint(dst, uint64(c[0]), 10)
	dst = append(dst, ';')
	dst = strconv.AppendUint(dst, uint64(c[1]), 10)
	dst = append(dst, ';')
	return strconv.AppendUint(dst, uint64(c[2]), 10)
}
