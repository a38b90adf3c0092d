package audio

import (
	"fmt"
	"math"
	"time"
)

// SampleBuffer holds a fully decoded waveform in memory.
//
// Samples are stored planar (one slice per channel, all the same length) as
// float32 in the range [-1, 1]. A SampleBuffer is immutable once built and is
// shared read-only between the playback engine and the renderer.
type SampleBuffer struct {
	channels   [][]float32
	sampleRate int
	format     string
	name       string
}

// NewSampleBuffer builds a buffer from planar channel data. The slices are
// owned by the buffer afterwards and must not be modified by the caller.
func NewSampleBuffer(channels [][]float32, sampleRate int) (*SampleBuffer, error) {
	if len(channels) > 0 {
		n := len(channels[0])
		for i, ch := range channels[1:] {
			if len(ch) != n {
				return nil, fmt.Errorf("%w: channel %d has %d frames, channel 0 has %d",
					ErrInvalidData, i+1, len(ch), n)
			}
		}
	}
	return &SampleBuffer{channels: channels, sampleRate: sampleRate}, nil
}

// WithSource returns a copy of the buffer header labelled with the decoder
// format and file name. Sample data is shared.
func (b *SampleBuffer) WithSource(format, name string) *SampleBuffer {
	c := *b
	c.format = format
	c.name = name
	return &c
}

// Channels returns the number of channels.
func (b *SampleBuffer) Channels() int { return len(b.channels) }

// Len returns the number of frames (samples per channel).
func (b *SampleBuffer) Len() int {
	if len(b.channels) == 0 {
		return 0
	}
	return len(b.channels[0])
}

// SampleRate returns the sample rate in Hz.
func (b *SampleBuffer) SampleRate() int { return b.sampleRate }

// Format returns the name of the decoder that produced the buffer, if any.
func (b *SampleBuffer) Format() string { return b.format }

// Name returns the source file name, if any.
func (b *SampleBuffer) Name() string { return b.name }

// Channel returns the samples of channel i. The slice must be treated as read-only.
func (b *SampleBuffer) Channel(i int) []float32 { return b.channels[i] }

// Seconds returns the total duration in seconds.
func (b *SampleBuffer) Seconds() float64 {
	if b.sampleRate <= 0 {
		return 0
	}
	return float64(b.Len()) / float64(b.sampleRate)
}

// Duration returns the total duration.
func (b *SampleBuffer) Duration() time.Duration {
	return time.Duration(b.Seconds() * float64(time.Second))
}

// FrameAt converts a time offset to a frame index, clamped to [0, Len()].
func (b *SampleBuffer) FrameAt(seconds float64) int64 {
	if b.sampleRate <= 0 || seconds <= 0 || math.IsNaN(seconds) {
		return 0
	}
	// compare as floats first so huge or infinite offsets never reach the
	// int64 conversion
	f := math.Round(seconds * float64(b.sampleRate))
	if n := int64(b.Len()); f >= float64(n) {
		return n
	}
	return int64(f)
}

// SecondsAt converts a frame index to a time offset.
func (b *SampleBuffer) SecondsAt(frame int64) float64 {
	if b.sampleRate <= 0 {
		return 0
	}
	return float64(frame) / float64(b.sampleRate)
}

// Peak returns the minimum and maximum sample of channel ch within frames
// [start, end). An empty range reports the single sample at start, or zero.
func (b *SampleBuffer) Peak(ch int, start, end int64) (lo, hi float32) {
	data := b.channels[ch]
	n := int64(len(data))
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if start >= n {
		return 0, 0
	}
	if end <= start {
		v := data[start]
		return v, v
	}
	lo, hi = data[start], data[start]
	for _, v := range data[start+1 : end] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
