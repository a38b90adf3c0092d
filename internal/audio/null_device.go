package audio

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// NullDevice discards audio but pulls frames at the stream's real-time rate.
// It backs headless rendering, machines without a sound card, and tests.
type NullDevice struct {
	mutex     sync.Mutex
	format    Format
	source    FrameSource
	scratch   []float32
	now       func() time.Time
	pace      bool
	started   time.Time
	delivered int64
	running   bool
	cancel    context.CancelFunc
	closed    bool
}

// NullOption configures a NullDevice.
type NullOption func(*NullDevice)

// WithClock replaces the wall clock used to decide how many frames are due.
func WithClock(now func() time.Time) NullOption {
	return func(d *NullDevice) { d.now = now }
}

// WithoutPacer disables the background goroutine; frames are only delivered
// when Pump is called.
func WithoutPacer() NullOption {
	return func(d *NullDevice) { d.pace = false }
}

// NewNullDevice creates a null device.
func NewNullDevice(opts ...NullOption) *NullDevice {
	slog.Debug("creating null device")
	d := &NullDevice{now: time.Now, pace: true}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the backend name.
func (d *NullDevice) Name() string { return "null" }

// Open binds src.
func (d *NullDevice) Open(format Format, src FrameSource) error {
	if err := format.Validate(); err != nil {
		return err
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}
	d.format = format
	d.source = src
	d.scratch = make([]float32, format.BlockSize*format.Channels)
	d.started = d.now()
	d.delivered = 0
	return nil
}

// Start begins real-time delivery.
func (d *NullDevice) Start() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}
	if d.source == nil {
		return ErrDeviceNotOpen
	}
	if d.running {
		return nil
	}
	d.running = true
	d.started = d.now()
	d.delivered = 0

	if d.pace {
		ctx, cancel := context.WithCancel(context.Background())
		d.cancel = cancel
		go d.run(ctx, d.blockDuration()/2)
	}
	slog.Debug("null device started", "paced", d.pace)
	return nil
}

// Stop halts delivery.
func (d *NullDevice) Stop() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.running = false
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	return nil
}

// Close stops the device.
func (d *NullDevice) Close() error {
	if err := d.Stop(); err != nil {
		return err
	}
	d.mutex.Lock()
	d.closed = true
	d.mutex.Unlock()
	return nil
}

// Pump delivers every block that has come due by now and returns how many
// delivery cycles ran.
func (d *NullDevice) Pump(now time.Time) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.running || d.source == nil {
		return 0
	}
	due := int64(now.Sub(d.started).Seconds() * float64(d.format.SampleRate))
	block := int64(d.format.BlockSize)
	cycles := 0
	for d.delivered+block <= due {
		d.source.Fill(d.scratch)
		d.delivered += block
		cycles++
	}
	return cycles
}

func (d *NullDevice) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(max(interval, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Pump(d.now())
		}
	}
}

func (d *NullDevice) blockDuration() time.Duration {
	return time.Duration(d.format.BlockSize) * time.Second / time.Duration(d.format.SampleRate)
}
