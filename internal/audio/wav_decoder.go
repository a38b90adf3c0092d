package audio

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/youpy/go-wav"
)

// WavDecoder handles WAV audio format decoding
type WavDecoder struct{}

// NewWavDecoder creates a new WAV decoder instance
func NewWavDecoder() *WavDecoder {
	slog.Debug("creating new WAV decoder instance")
	return &WavDecoder{}
}

// Decode reads WAV audio data from reader and returns the decoded waveform
func (d *WavDecoder) Decode(reader io.Reader) (*SampleBuffer, error) {
	slog.Debug("starting WAV decode operation")

	// youpy/go-wav needs random access, so buffer the whole stream first
	data, err := io.ReadAll(reader)
	if err != nil {
		slog.Error("failed to read WAV data", "error", err)
		return nil, ErrReadFailure
	}

	if len(data) == 0 {
		slog.Error("empty WAV data")
		return nil, ErrInvalidData
	}

	wavReader := wav.NewReader(bytes.NewReader(data))

	format, err := wavReader.Format()
	if err != nil {
		slog.Error("failed to read WAV format", "error", err)
		return nil, ErrInvalidData
	}

	slog.Debug("WAV format detected",
		"sample_rate", format.SampleRate,
		"channels", format.NumChannels,
		"bits_per_sample", format.BitsPerSample,
		"audio_format", format.AudioFormat)

	if format.NumChannels == 0 || format.SampleRate == 0 {
		slog.Error("invalid WAV format parameters",
			"channels", format.NumChannels,
			"sample_rate", format.SampleRate)
		return nil, ErrInvalidData
	}

	switch format.BitsPerSample {
	case 8, 16, 24, 32:
	default:
		slog.Error("unsupported bit depth", "bits", format.BitsPerSample)
		return nil, ErrUnsupportedFormat
	}

	// go-wav carries at most two channel values per sample
	channels := int(format.NumChannels)
	if channels > 2 {
		slog.Warn("WAV has more than two channels, keeping the first two",
			"channels", channels)
		channels = 2
	}

	planes := make([][]float32, channels)
	for {
		samples, err := wavReader.ReadSamples()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			slog.Error("failed to read WAV samples", "error", err)
			return nil, ErrReadFailure
		}
		if len(samples) == 0 {
			break
		}

		for _, sample := range samples {
			for ch := 0; ch < channels; ch++ {
				planes[ch] = append(planes[ch], float32(wavReader.FloatValue(sample, uint(ch))))
			}
		}
	}

	if len(planes[0]) == 0 {
		slog.Error("no audio data found in WAV file")
		return nil, ErrInvalidData
	}

	buffer, err := NewSampleBuffer(planes, int(format.SampleRate))
	if err != nil {
		return nil, err
	}

	slog.Info("WAV decode completed successfully",
		"frames", buffer.Len(),
		"channels", buffer.Channels(),
		"sample_rate", buffer.SampleRate(),
		"duration", buffer.Duration())

	return buffer, nil
}

// CanDecode checks if this decoder can handle the given filename
func (d *WavDecoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".wav") || strings.HasSuffix(lower, ".wave")
}

// FormatName returns the name of the format this decoder handles
func (d *WavDecoder) FormatName() string {
	return "WAV"
}
