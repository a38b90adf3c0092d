package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/hajimehoshi/go-mp3"
)

// Mp3Decoder handles MP3 audio format decoding
type Mp3Decoder struct{}

// NewMp3Decoder creates a new MP3 decoder instance
func NewMp3Decoder() *Mp3Decoder {
	slog.Debug("creating new MP3 decoder instance")
	return &Mp3Decoder{}
}

// Decode reads MP3 audio data from reader and returns the decoded waveform.
// go-mp3 always yields 16-bit little-endian stereo.
func (d *Mp3Decoder) Decode(reader io.Reader) (*SampleBuffer, error) {
	slog.Debug("starting MP3 decode operation")

	decoder, err := mp3.NewDecoder(reader)
	if err != nil {
		slog.Error("failed to create MP3 decoder", "error", err)
		return nil, ErrInvalidData
	}

	sampleRate := decoder.SampleRate()
	if sampleRate <= 0 {
		slog.Error("invalid MP3 sample rate", "sample_rate", sampleRate)
		return nil, ErrInvalidData
	}

	const frameBytes = 4
	var left, right []float32
	if n := decoder.Length(); n > 0 {
		left = make([]float32, 0, n/frameBytes)
		right = make([]float32, 0, n/frameBytes)
	}

	buf := make([]byte, 4096)
	var pending []byte
	for {
		n, err := decoder.Read(buf)
		if n > 0 {
			chunk := append(pending, buf[:n]...)
			whole := len(chunk) - len(chunk)%frameBytes
			for i := 0; i < whole; i += frameBytes {
				l := int16(binary.LittleEndian.Uint16(chunk[i:]))
				r := int16(binary.LittleEndian.Uint16(chunk[i+2:]))
				left = append(left, float32(l)/32768)
				right = append(right, float32(r)/32768)
			}
			pending = append(pending[:0], chunk[whole:]...)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			slog.Error("failed to read MP3 PCM data", "error", err)
			return nil, ErrReadFailure
		}
		if n == 0 {
			break
		}
	}

	if len(left) == 0 {
		slog.Error("no audio data found in MP3 file")
		return nil, ErrInvalidData
	}

	buffer, err := NewSampleBuffer([][]float32{left, right}, sampleRate)
	if err != nil {
		return nil, err
	}

	slog.Info("MP3 decode completed successfully",
		"frames", buffer.Len(),
		"sample_rate", sampleRate,
		"duration", buffer.Duration())

	return buffer, nil
}

// CanDecode checks if this decoder can handle the given filename
func (d *Mp3Decoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".mp3") || strings.HasSuffix(lower, ".mpeg")
}

// FormatName returns the name of the format this decoder handles
func (d *Mp3Decoder) FormatName() string {
	return "MP3"
}
