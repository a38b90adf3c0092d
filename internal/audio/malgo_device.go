//go:build cgo

package audio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoDevice plays through miniaudio. The data callback runs on miniaudio's
// audio thread and pulls float32 frames straight from the bound source.
type MalgoDevice struct {
	mutex   sync.Mutex
	context *malgo.AllocatedContext
	device  *malgo.Device
	format  Format
	source  FrameSource
	scratch []float32
	closed  bool
}

// NewMalgoDevice creates a device with its own miniaudio context.
func NewMalgoDevice() (*MalgoDevice, error) {
	slog.Debug("creating malgo device")
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "message", message)
	})
	if err != nil {
		slog.Error("failed to initialize miniaudio context", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDeviceNotAvailable, err)
	}
	return &MalgoDevice{context: ctx}, nil
}

// Name returns the backend name.
func (d *MalgoDevice) Name() string { return "malgo" }

// Open initializes a playback device for format.
func (d *MalgoDevice) Open(format Format, src FrameSource) error {
	if err := format.Validate(); err != nil {
		return err
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}

	if d.device != nil && d.format == format && d.source == src {
		slog.Debug("malgo device already open with requested format", "format", format)
		return nil
	}
	d.releaseLocked()

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(format.Channels)
	cfg.SampleRate = uint32(format.SampleRate)
	cfg.PeriodSizeInFrames = uint32(format.BlockSize)
	cfg.Alsa.NoMMap = 1

	d.format = format
	d.source = src
	d.scratch = make([]float32, format.BlockSize*format.Channels)

	channels := format.Channels
	scratch := d.scratch
	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, _ uint32) {
			encodeFloat32LE(out, src, scratch, channels)
		},
	}

	device, err := malgo.InitDevice(d.context.Context, cfg, callbacks)
	if err != nil {
		slog.Error("failed to initialize malgo device", "error", err, "format", format)
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	d.device = device

	slog.Info("malgo device opened",
		"sample_rate", format.SampleRate,
		"channels", format.Channels,
		"block_size", format.BlockSize)
	return nil
}

// Start begins pulling frames.
func (d *MalgoDevice) Start() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}
	if d.device == nil {
		return ErrDeviceNotOpen
	}
	if d.device.IsStarted() {
		return nil
	}
	if err := d.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	slog.Debug("malgo device started")
	return nil
}

// Stop halts the callback. The device stays open.
func (d *MalgoDevice) Stop() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.device == nil || !d.device.IsStarted() {
		return nil
	}
	if err := d.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback device: %w", err)
	}
	slog.Debug("malgo device stopped")
	return nil
}

// Close releases the device and the miniaudio context.
func (d *MalgoDevice) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.releaseLocked()

	slog.Debug("closing malgo device")
	// miniaudio needs both Uninit and Free
	if err := d.context.Uninit(); err != nil {
		return fmt.Errorf("failed to release miniaudio context: %w", err)
	}
	d.context.Free()
	d.context = nil
	return nil
}

func (d *MalgoDevice) releaseLocked() {
	if d.device == nil {
		return
	}
	if d.device.IsStarted() {
		if err := d.device.Stop(); err != nil {
			slog.Warn("failed to stop malgo device during release", "error", err)
		}
	}
	d.device.Uninit()
	d.device = nil
}
