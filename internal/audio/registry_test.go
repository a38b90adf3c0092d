package audio

import (
	"bytes"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audioplot.dev/internal/audio/audiotest"
)

func TestDecoderRegistry(t *testing.T) {
	registry := NewDecoderRegistry()

	if len(registry.GetDecoders()) != 0 {
		t.Errorf("expected empty registry, got %d decoders", len(registry.GetDecoders()))
	}

	registry.Register(nil)
	if len(registry.GetDecoders()) != 0 {
		t.Error("nil decoder should not be registered")
	}
}

func TestDecoderRegistryDetectFormat(t *testing.T) {
	registry := NewDecoderRegistry()

	wavDecoder := &MockDecoder{formatName: "WAV", extensions: []string{".wav", ".wave"}}
	mp3Decoder := &MockDecoder{formatName: "MP3", extensions: []string{".mp3", ".mpeg"}}

	registry.Register(wavDecoder)
	registry.Register(mp3Decoder)

	testCases := []struct {
		filename string
		expected Decoder
	}{
		{"audio.wav", wavDecoder},
		{"sound.WAV", wavDecoder},
		{"music.wave", wavDecoder},
		{"song.mp3", mp3Decoder},
		{"file.mpeg", mp3Decoder},
		{"unknown.flac", nil},
		{"", nil},
		{"no-extension", nil},
	}

	for _, tc := range testCases {
		if result := registry.DetectFormat(tc.filename); result != tc.expected {
			t.Errorf("DetectFormat('%s') = %v, expected %v", tc.filename, result, tc.expected)
		}
	}
}

func TestDecoderRegistryDetectFormatWithMagicBytes(t *testing.T) {
	registry := NewDecoderRegistry()

	wavDecoder := &MockDecoder{formatName: "WAV", extensions: []string{".wav", ".wave"}}
	mp3Decoder := &MockDecoder{formatName: "MP3", extensions: []string{".mp3", ".mpeg"}}

	registry.Register(wavDecoder)
	registry.Register(mp3Decoder)

	testCases := []struct {
		name     string
		filename string
		content  []byte
		expected Decoder
	}{
		{"WAV content with MP3 extension", "fake.mp3", []byte("RIFF\x24\x00\x00\x00WAVEfmt "), wavDecoder},
		{"MP3 content with WAV extension", "fake.wav", []byte("\xFF\xFB\x90\x00"), mp3Decoder},
		{"invalid content falls back to extension", "test.wav", []byte("not audio data"), wavDecoder},
		{"empty content falls back to extension", "test.mp3", nil, mp3Decoder},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := registry.DetectFormatWithContent(tc.filename, bytes.NewReader(tc.content))
			if result != tc.expected {
				t.Errorf("DetectFormatWithContent('%s') = %v, expected %v", tc.filename, result, tc.expected)
			}
		})
	}
}

func TestDecoderRegistryDetectFormatPriority(t *testing.T) {
	registry := NewDecoderRegistry()

	first := &MockDecoder{formatName: "FIRST", extensions: []string{".test"}}
	second := &MockDecoder{formatName: "SECOND", extensions: []string{".test"}}

	registry.Register(first)
	registry.Register(second)

	if result := registry.DetectFormat("file.test"); result != first {
		t.Errorf("expected first registered decoder to have priority, got %v", result)
	}
}

func TestDecoderRegistryDecodeFile(t *testing.T) {
	registry := NewDecoderRegistry()

	testData, _ := NewSampleBuffer([][]float32{{0.25, -0.25}}, 8000)
	registry.Register(&MockDecoder{formatName: "TEST", extensions: []string{".test"}, returnData: testData})
	registry.Register(&MockDecoder{formatName: "FAIL", extensions: []string{".fail"}, shouldFail: true})

	t.Run("successful decode is labelled with its source", func(t *testing.T) {
		result, err := registry.DecodeFile("/tmp/audio.test", bytes.NewReader([]byte("test audio data")))
		require.NoError(t, err)
		assert.Equal(t, "TEST", result.Format())
		assert.Equal(t, "audio.test", result.Name())
		assert.Equal(t, testData.Channel(0), result.Channel(0))
	})

	t.Run("unsupported format", func(t *testing.T) {
		result, err := registry.DecodeFile("audio.unknown", bytes.NewReader([]byte("test audio data")))
		assert.True(t, errors.Is(err, ErrUnsupportedFormat), "got %v", err)
		assert.Nil(t, result)
	})

	t.Run("decode failure", func(t *testing.T) {
		result, err := registry.DecodeFile("audio.fail", bytes.NewReader([]byte("test data")))
		assert.Error(t, err)
		assert.Nil(t, result)
	})
}

func TestDecoderRegistryDecodePath(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/sounds/tone.wav",
		audiotest.WAV(8000, 2, 800, audiotest.Sine(8000, 200, 0.8)), 0644))

	registry := NewDefaultRegistry()

	t.Run("decodes a file from the filesystem", func(t *testing.T) {
		buf, err := registry.DecodePath(fs, "/sounds/tone.wav")
		require.NoError(t, err)
		assert.Equal(t, 2, buf.Channels())
		assert.Equal(t, 800, buf.Len())
		assert.Equal(t, 8000, buf.SampleRate())
		assert.Equal(t, "tone.wav", buf.Name())
		assert.Equal(t, "WAV", buf.Format())
	})

	t.Run("missing file is a read failure", func(t *testing.T) {
		_, err := registry.DecodePath(fs, "/sounds/missing.wav")
		assert.True(t, errors.Is(err, ErrReadFailure), "got %v", err)
	})
}

func TestNewDefaultRegistry(t *testing.T) {
	registry := NewDefaultRegistry()

	assert.Equal(t, []string{"WAV", "MP3", "AIFF"}, registry.GetSupportedFormats())

	for filename, format := range map[string]string{
		"test.wav":  "WAV",
		"test.mp3":  "MP3",
		"test.aiff": "AIFF",
	} {
		decoder := registry.DetectFormat(filename)
		if assert.NotNil(t, decoder, filename) {
			assert.Equal(t, format, decoder.FormatName())
		}
	}
}
