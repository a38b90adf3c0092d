package audio

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

// sniffLen is how much of a file content detection looks at.
const sniffLen = 512

// mimeHints maps fragments of a detected MIME type onto decoder format names.
var mimeHints = []struct {
	fragment string
	format   string
}{
	{"wav", "WAV"},
	{"wave", "WAV"},
	{"mpeg", "MP3"},
	{"mp3", "MP3"},
	{"aiff", "AIFF"},
}

// DecoderRegistry picks a decoder for a file, by content first and by
// extension second. Decoders registered earlier win ties.
type DecoderRegistry struct {
	decoders []Decoder
}

// NewDecoderRegistry creates an empty registry.
func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{}
}

// NewDefaultRegistry knows WAV, MP3 and AIFF.
func NewDefaultRegistry() *DecoderRegistry {
	r := NewDecoderRegistry()
	r.Register(NewWavDecoder())
	r.Register(NewMp3Decoder())
	r.Register(NewAiffDecoder())
	slog.Debug("decoder registry ready", "formats", r.GetSupportedFormats())
	return r
}

// Register adds decoder. Nil is ignored.
func (r *DecoderRegistry) Register(decoder Decoder) {
	if decoder == nil {
		slog.Warn("attempted to register nil decoder")
		return
	}
	r.decoders = append(r.decoders, decoder)
}

// GetDecoders returns the registered decoders in priority order.
func (r *DecoderRegistry) GetDecoders() []Decoder {
	return r.decoders
}

// GetSupportedFormats lists the format names of the registered decoders.
func (r *DecoderRegistry) GetSupportedFormats() []string {
	formats := make([]string, len(r.decoders))
	for i, d := range r.decoders {
		formats[i] = d.FormatName()
	}
	return formats
}

// DetectFormat picks a decoder from the file name alone.
func (r *DecoderRegistry) DetectFormat(filename string) Decoder {
	if filename == "" {
		return nil
	}
	for _, d := range r.decoders {
		if d.CanDecode(filename) {
			return d
		}
	}
	return nil
}

// DetectFormatWithContent sniffs the start of reader and falls back to the
// file name when the content is not recognized.
func (r *DecoderRegistry) DetectFormatWithContent(filename string, reader io.Reader) Decoder {
	header, err := io.ReadAll(io.LimitReader(reader, sniffLen))
	if err != nil {
		slog.Warn("failed to read header for content detection", "filename", filename, "error", err)
	}
	return r.detect(filename, header)
}

func (r *DecoderRegistry) detect(filename string, header []byte) Decoder {
	if len(header) > 0 {
		mime := strings.ToLower(mimetype.Detect(header).String())
		if d := r.byMIME(mime); d != nil {
			slog.Debug("format detected from content", "filename", filename, "mime", mime, "format", d.FormatName())
			return d
		}
		slog.Debug("content not recognized", "filename", filename, "mime", mime)
	}

	d := r.DetectFormat(filename)
	if d == nil {
		slog.Warn("no decoder matches file", "filename", filename)
		return nil
	}
	slog.Debug("format detected from extension", "filename", filename, "format", d.FormatName())
	return d
}

func (r *DecoderRegistry) byMIME(mime string) Decoder {
	for _, hint := range mimeHints {
		if !strings.Contains(mime, hint.fragment) {
			continue
		}
		for _, d := range r.decoders {
			if strings.EqualFold(d.FormatName(), hint.format) {
				return d
			}
		}
	}
	return nil
}

// DecodeFile reads all of reader and decodes it into a buffer labelled with
// the decoder's format and the base name of filename.
func (r *DecoderRegistry) DecodeFile(filename string, reader io.Reader) (*SampleBuffer, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		slog.Error("failed to read audio file", "filename", filename, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}

	decoder := r.detect(filename, content[:min(len(content), sniffLen)])
	if decoder == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}

	buffer, err := decoder.Decode(bytes.NewReader(content))
	if err != nil {
		slog.Error("decode failed", "filename", filename, "format", decoder.FormatName(), "error", err)
		return nil, err
	}

	slog.Info("file decoded",
		"filename", filename,
		"format", decoder.FormatName(),
		"frames", buffer.Len(),
		"channels", buffer.Channels(),
		"sample_rate", buffer.SampleRate())
	return buffer.WithSource(decoder.FormatName(), filepath.Base(filename)), nil
}

// DecodePath opens path on fs and decodes it. Open failures wrap ErrReadFailure.
func (r *DecoderRegistry) DecodePath(fs afero.Fs, path string) (*SampleBuffer, error) {
	file, err := fs.Open(path)
	if err != nil {
		slog.Error("failed to open audio file", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}
	defer file.Close()

	return r.DecodeFile(path, file)
}
