package render

import (
	"errors"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"
)

// Presenter shows a composed frame. It is called on the render context and
// must not keep the frame or its image after returning.
type Presenter interface {
	Present(frame *Frame) error
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(frame *Frame) error

func (f PresenterFunc) Present(frame *Frame) error { return f(frame) }

// Presenters fans a frame out to several presenters.
type Presenters []Presenter

// Present calls every presenter and joins their errors.
func (ps Presenters) Present(frame *Frame) error {
	var errs []error
	for _, p := range ps {
		if err := p.Present(frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PNGPresenter writes each presented frame to a PNG file.
type PNGPresenter struct {
	fs   afero.Fs
	path string
}

// NewPNGPresenter writes frames to path on fs.
func NewPNGPresenter(fs afero.Fs, path string) *PNGPresenter {
	return &PNGPresenter{fs: fs, path: path}
}

// Present encodes the frame image.
func (p *PNGPresenter) Present(frame *Frame) error {
	if dir := filepath.Dir(p.path); dir != "." {
		if err := p.fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := p.fs.Create(p.path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", p.path, err)
	}
	if err := png.Encode(f, frame.Image); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", p.path, err)
	}

	slog.Debug("frame written", "path", p.path, "tick", frame.Tick, "seconds", frame.Seconds)
	return nil
}

// TextPresenter prints the readout on a single terminal line whenever it changes.
type TextPresenter struct {
	w    io.Writer
	last string
}

// NewTextPresenter writes readouts to w.
func NewTextPresenter(w io.Writer) *TextPresenter {
	return &TextPresenter{w: w}
}

// Present rewrites the line when the readout differs from the last one.
func (p *TextPresenter) Present(frame *Frame) error {
	line := frame.Readout
	if frame.MarkerReadout != "" {
		line += "  " + frame.MarkerReadout
	}
	if line == "" || line == p.last {
		return nil
	}
	p.last = line
	_, err := fmt.Fprintf(p.w, "\r%s\x1b[K", line)
	return err
}
