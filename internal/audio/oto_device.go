//go:build cgo

package audio

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process, so its format is fixed by the
// first device that opens it.
var (
	otoOnce    sync.Once
	otoContext *oto.Context
	otoFormat  Format
	otoErr     error
)

// OtoDevice plays through ebitengine/oto. oto pulls bytes from an io.Reader
// on its own goroutine; the reader pulls frames from the source.
type OtoDevice struct {
	mutex  sync.Mutex
	player *oto.Player
	format Format
	closed bool
}

// NewOtoDevice creates an unopened oto device.
func NewOtoDevice() (*OtoDevice, error) {
	slog.Debug("creating oto device")
	return &OtoDevice{}, nil
}

// Name returns the backend name.
func (d *OtoDevice) Name() string { return "oto" }

// Open creates the shared oto context on first use and a player bound to src.
func (d *OtoDevice) Open(format Format, src FrameSource) error {
	if err := format.Validate(); err != nil {
		return err
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}

	otoOnce.Do(func() {
		var ready chan struct{}
		otoContext, ready, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   time.Duration(format.BlockSize) * time.Second / time.Duration(format.SampleRate),
		})
		if otoErr == nil {
			<-ready
			otoFormat = format
		}
	})
	if otoErr != nil {
		return fmt.Errorf("%w: %v", ErrDeviceNotAvailable, otoErr)
	}
	if otoFormat.SampleRate != format.SampleRate || otoFormat.Channels != format.Channels {
		slog.Error("oto context already running with a different format",
			"active", otoFormat, "requested", format)
		return fmt.Errorf("%w: oto is fixed at %d Hz/%d ch",
			ErrInvalidDeviceFormat, otoFormat.SampleRate, otoFormat.Channels)
	}

	if d.player != nil {
		d.player.Pause()
		if err := d.player.Close(); err != nil {
			slog.Warn("failed to close previous oto player", "error", err)
		}
	}

	reader := &frameReader{
		source:   src,
		scratch:  make([]float32, format.BlockSize*format.Channels),
		channels: format.Channels,
	}
	d.player = otoContext.NewPlayer(reader)
	d.player.SetBufferSize(format.BlockSize * format.Channels * 4)
	d.format = format

	slog.Info("oto device opened",
		"sample_rate", format.SampleRate,
		"channels", format.Channels,
		"block_size", format.BlockSize)
	return nil
}

// Start resumes the player.
func (d *OtoDevice) Start() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}
	if d.player == nil {
		return ErrDeviceNotOpen
	}
	d.player.Play()
	return nil
}

// Stop pauses the player.
func (d *OtoDevice) Stop() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.player != nil {
		d.player.Pause()
	}
	return nil
}

// Close releases the player. The process-wide oto context stays alive.
func (d *OtoDevice) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	if d.player == nil {
		return nil
	}
	d.player.Pause()
	err := d.player.Close()
	d.player = nil
	return err
}

// frameReader adapts a FrameSource to the io.Reader oto pulls from. It never
// returns io.EOF; silence is delivered while the source is idle. Reads are
// truncated to whole frames.
type frameReader struct {
	source   FrameSource
	scratch  []float32
	channels int
}

func (r *frameReader) Read(p []byte) (int, error) {
	n := len(p) - len(p)%(4*r.channels)
	if n == 0 {
		return 0, io.ErrShortBuffer
	}
	encodeFloat32LE(p[:n], r.source, r.scratch, r.channels)
	return n, nil
}
