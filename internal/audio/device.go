package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Common errors for Device implementations
var (
	ErrDeviceNotAvailable  = errors.New("audio device not available")
	ErrDeviceClosed        = errors.New("audio device is closed")
	ErrDeviceNotOpen       = errors.New("audio device has not been opened")
	ErrInvalidDeviceFormat = errors.New("invalid device format")
)

// FrameSource produces interleaved float32 frames on demand. Fill is called
// from the device's audio context and must not block or allocate.
type FrameSource interface {
	Fill(dst []float32)
}

// Format describes the stream a device is opened with.
type Format struct {
	SampleRate int
	Channels   int
	// BlockSize is the number of frames requested per delivery cycle.
	BlockSize int
}

// Validate reports whether every field is positive.
func (f Format) Validate() error {
	if f.SampleRate <= 0 || f.Channels <= 0 || f.BlockSize <= 0 {
		return fmt.Errorf("%w: rate=%d channels=%d block=%d",
			ErrInvalidDeviceFormat, f.SampleRate, f.Channels, f.BlockSize)
	}
	return nil
}

// Device is an output stream that pulls frames from a FrameSource on its own
// schedule once started.
type Device interface {
	// Open configures the device for format and binds src. Reopening with a
	// different format replaces the underlying stream.
	Open(format Format, src FrameSource) error
	Start() error
	Stop() error
	Close() error
	Name() string
}

// encodeFloat32LE pulls len(out)/4 samples from src in blocks of len(scratch)
// and writes them little-endian into out.
func encodeFloat32LE(out []byte, src FrameSource, scratch []float32, channels int) {
	total := len(out) / 4
	for done := 0; done < total; {
		n := min(len(scratch), total-done)
		n -= n % channels
		if n == 0 {
			clear(out[done*4:])
			return
		}
		block := scratch[:n]
		src.Fill(block)
		for i, v := range block {
			binary.LittleEndian.PutUint32(out[(done+i)*4:], math.Float32bits(v))
		}
		done += n
	}
}
