// Package audiotest builds small in-memory audio fixtures for tests.
package audiotest

import (
	"bytes"
	"math"

	"github.com/youpy/go-wav"
)

// WAV encodes 16-bit PCM for channels (1 or 2) where sample(ch, i) returns
// a value in [-1, 1] for frame i.
func WAV(sampleRate, channels, frames int, sample func(ch, i int) float64) []byte {
	var buf bytes.Buffer
	w := wav.NewWriter(&buf, uint32(frames), uint16(channels), uint32(sampleRate), 16)

	samples := make([]wav.Sample, frames)
	for i := range samples {
		for ch := 0; ch < channels; ch++ {
			v := math.Max(-1, math.Min(1, sample(ch, i)))
			samples[i].Values[ch] = int(math.Round(v * 32767))
		}
	}
	if err := w.WriteSamples(samples); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Sine returns a sample function for a sine tone at freq Hz.
func Sine(sampleRate int, freq, amplitude float64) func(ch, i int) float64 {
	return func(_, i int) float64 {
		return amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
}

// Silence returns a sample function that is always zero.
func Silence() func(ch, i int) float64 {
	return func(int, int) float64 { return 0 }
}
