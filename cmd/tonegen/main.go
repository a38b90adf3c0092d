// Command tonegen writes test tones as 16-bit PCM WAV files, handy for
// checking the waveform view and seek accuracy by ear and eye.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/youpy/go-wav"
)

type toneOptions struct {
	output    string
	freq      float64
	sweepTo   float64
	seconds   float64
	rate      int
	channels  int
	amplitude float64
	clicks    float64
}

func (o toneOptions) validate() error {
	switch {
	case o.output == "":
		return fmt.Errorf("--output is required")
	case o.seconds <= 0:
		return fmt.Errorf("--seconds must be positive, got %g", o.seconds)
	case o.rate <= 0:
		return fmt.Errorf("--rate must be positive, got %d", o.rate)
	case o.channels != 1 && o.channels != 2:
		return fmt.Errorf("--channels must be 1 or 2, got %d", o.channels)
	case o.amplitude < 0 || o.amplitude > 1:
		return fmt.Errorf("--amplitude must be between 0.0 and 1.0, got %g", o.amplitude)
	case o.freq < 0 || o.sweepTo < 0:
		return fmt.Errorf("frequencies must not be negative")
	}
	return nil
}

// sample returns the value of frame i. A sweep moves the frequency
// linearly from freq to sweepTo; clicks add a full-scale sample every
// clicks seconds so positions can be checked against the plot.
func (o toneOptions) sample(i, frames int) float64 {
	t := float64(i) / float64(o.rate)
	phase := o.freq * t
	if o.sweepTo > 0 {
		duration := float64(frames) / float64(o.rate)
		phase = o.freq*t + (o.sweepTo-o.freq)*t*t/(2*duration)
	}
	v := o.amplitude * math.Sin(2*math.Pi*phase)

	if o.clicks > 0 {
		every := int(math.Round(o.clicks * float64(o.rate)))
		if every > 0 && i%every == 0 {
			v = 1
		}
	}
	return v
}

func generate(w io.Writer, o toneOptions) (int, error) {
	frames := int(math.Round(o.seconds * float64(o.rate)))
	writer := wav.NewWriter(w, uint32(frames), uint16(o.channels), uint32(o.rate), 16)

	samples := make([]wav.Sample, frames)
	for i := range samples {
		v := int(math.Round(math.Max(-1, math.Min(1, o.sample(i, frames))) * 32767))
		for ch := 0; ch < o.channels; ch++ {
			samples[i].Values[ch] = v
		}
	}
	if err := writer.WriteSamples(samples); err != nil {
		return 0, fmt.Errorf("failed to write samples: %w", err)
	}
	return frames, nil
}

func writeTone(fs afero.Fs, o toneOptions) (int, error) {
	if err := o.validate(); err != nil {
		return 0, err
	}
	f, err := fs.Create(o.output)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", o.output, err)
	}
	frames, err := generate(f, o)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close %s: %w", o.output, cerr)
	}
	return frames, err
}

func newRootCommand(fs afero.Fs) *cobra.Command {
	var opts toneOptions

	cmd := &cobra.Command{
		Use:   "tonegen",
		Short: "Write a sine tone, sweep or click track as a WAV file",
		Example: `  tonegen -o a440.wav
  tonegen -o sweep.wav --freq 100 --sweep-to 8000 --seconds 10
  tonegen -o clicks.wav --amplitude 0.2 --clicks 1 --channels 2`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			frames, err := writeTone(fs, opts)
			if err != nil {
				return err
			}
			slog.Info("tone written", "path", opts.output, "frames", frames)
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d frames, %d Hz, %d ch)\n",
				opts.output, frames, opts.rate, opts.channels)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output WAV path")
	cmd.Flags().Float64Var(&opts.freq, "freq", 440, "Tone frequency in Hz")
	cmd.Flags().Float64Var(&opts.sweepTo, "sweep-to", 0, "End frequency of a linear sweep in Hz")
	cmd.Flags().Float64Var(&opts.seconds, "seconds", 5, "Duration in seconds")
	cmd.Flags().IntVar(&opts.rate, "rate", 44100, "Sample rate in Hz")
	cmd.Flags().IntVar(&opts.channels, "channels", 1, "Channel count (1 or 2)")
	cmd.Flags().Float64Var(&opts.amplitude, "amplitude", 0.5, "Peak amplitude (0.0 to 1.0)")
	cmd.Flags().Float64Var(&opts.clicks, "clicks", 0, "Add a full-scale click every N seconds")

	return cmd
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	if err := newRootCommand(afero.NewOsFs()).Execute(); err != nil {
		os.Exit(1)
	}
}
