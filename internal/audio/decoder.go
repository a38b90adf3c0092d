package audio

import (
	"errors"
	"io"
)

// Common decoder errors
var (
	ErrInvalidData       = errors.New("invalid audio data")
	ErrReadFailure       = errors.New("failed to read audio data")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Decoder interface for audio format decoding
type Decoder interface {
	// Decode reads audio data from reader and returns the decoded waveform
	Decode(reader io.Reader) (*SampleBuffer, error)

	// CanDecode checks if this decoder can handle the given filename
	CanDecode(filename string) bool

	// FormatName returns the name of the format this decoder handles
	FormatName() string
}

// pcmScale returns the divisor that maps a signed integer sample of the given
// bit depth onto [-1, 1).
func pcmScale(bitDepth int) float32 {
	return float32(int64(1) << (bitDepth - 1))
}

// deinterleave splits interleaved integer PCM into planar float32 channels.
func deinterleave(data []int, channels, bitDepth int) [][]float32 {
	frames := len(data) / channels
	scale := pcmScale(bitDepth)
	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		base := i * channels
		for ch := 0; ch < channels; ch++ {
			out[ch][i] = float32(data[base+ch]) / scale
		}
	}
	return out
}
