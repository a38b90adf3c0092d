//go:build cgo

package audio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

// BeepDevice plays through the gopxl/beep speaker. The speaker is a process
// global, so at most one BeepDevice should be open at a time.
type BeepDevice struct {
	mutex    sync.Mutex
	streamer *frameStreamer
	format   Format
	ready    bool
	closed   bool
}

// NewBeepDevice creates an unopened beep device.
func NewBeepDevice() (*BeepDevice, error) {
	slog.Debug("creating beep device")
	return &BeepDevice{}, nil
}

// Name returns the backend name.
func (d *BeepDevice) Name() string { return "beep" }

// Open initializes the speaker for format and binds src.
func (d *BeepDevice) Open(format Format, src FrameSource) error {
	if err := format.Validate(); err != nil {
		return err
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}

	if d.ready {
		speaker.Clear()
		speaker.Close()
		d.ready = false
	}
	if err := speaker.Init(beep.SampleRate(format.SampleRate), format.BlockSize); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceNotAvailable, err)
	}
	d.ready = true
	d.format = format
	d.streamer = &frameStreamer{
		source:   src,
		scratch:  make([]float32, format.BlockSize*format.Channels),
		channels: format.Channels,
	}

	slog.Info("beep device opened",
		"sample_rate", format.SampleRate,
		"channels", format.Channels,
		"block_size", format.BlockSize)
	return nil
}

// Start hands the streamer to the speaker.
func (d *BeepDevice) Start() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}
	if !d.ready {
		return ErrDeviceNotOpen
	}
	speaker.Clear()
	speaker.Play(d.streamer)
	return nil
}

// Stop removes the streamer from the speaker.
func (d *BeepDevice) Stop() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.ready {
		speaker.Clear()
	}
	return nil
}

// Close shuts the speaker down.
func (d *BeepDevice) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	if d.ready {
		speaker.Clear()
		speaker.Close()
		d.ready = false
	}
	return nil
}

// frameStreamer adapts a FrameSource to beep's stereo float64 streamer.
// Mono sources are duplicated to both sides; channels past the second are
// dropped.
type frameStreamer struct {
	source   FrameSource
	scratch  []float32
	channels int
}

func (s *frameStreamer) Stream(samples [][2]float64) (int, bool) {
	per := len(s.scratch) / s.channels
	for done := 0; done < len(samples); {
		n := min(per, len(samples)-done)
		block := s.scratch[:n*s.channels]
		s.source.Fill(block)
		for i := 0; i < n; i++ {
			left := float64(block[i*s.channels])
			right := left
			if s.channels > 1 {
				right = float64(block[i*s.channels+1])
			}
			samples[done+i] = [2]float64{left, right}
		}
		done += n
	}
	return len(samples), true
}

func (s *frameStreamer) Err() error { return nil }
