package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"
)

// fileSummary is what info reports for one decoded file.
type fileSummary struct {
	Path       string  `json:"path"`
	Name       string  `json:"name"`
	Format     string  `json:"format"`
	Channels   int     `json:"channels"`
	SampleRate int     `json:"sample_rate"`
	Frames     int     `json:"frames"`
	Seconds    float64 `json:"seconds"`
	Peak       float32 `json:"peak"`
}

func newInfoCommand() *cobra.Command {
	var asJSON bool

	infoCmd := &cobra.Command{
		Use:   "info FILE...",
		Short: "Show format, length and peak level of audio files",
		Long: `Decode each file and print its format, channel count, sample rate,
duration and peak sample level. Files that cannot be decoded are reported
and make the command fail after the others have been printed.

Examples:
  audioplot info song.wav
  audioplot info --json *.mp3`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd, args, asJSON)
		},
	}

	infoCmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")

	return infoCmd
}

func runInfo(cmd *cobra.Command, paths []string, asJSON bool) error {
	cli, err := mustCLI(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadAndValidateConfig(cmd, cli)
	if err != nil {
		return err
	}
	setupLogging(cfg, cli.configManager, cmd.ErrOrStderr())

	fs := cli.fsFactory.ReadOnly()
	var summaries []fileSummary
	var errs []error
	for _, path := range paths {
		buf, err := cli.registry.DecodePath(fs, path)
		if err != nil {
			slog.Warn("failed to decode file", "path", path, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}

		var peak float32
		for ch := 0; ch < buf.Channels(); ch++ {
			lo, hi := buf.Peak(ch, 0, int64(buf.Len()))
			peak = max(peak, -lo, hi)
		}
		summaries = append(summaries, fileSummary{
			Path:       path,
			Name:       filepath.Base(path),
			Format:     buf.Format(),
			Channels:   buf.Channels(),
			SampleRate: buf.SampleRate(),
			Frames:     buf.Len(),
			Seconds:    buf.Seconds(),
			Peak:       peak,
		})
	}

	w := cmd.OutOrStdout()
	if asJSON {
		if err := writeJSON(w, summaries); err != nil {
			return err
		}
	} else {
		for _, s := range summaries {
			outputFileSummary(w, s)
		}
	}
	return errors.Join(errs...)
}

func outputFileSummary(w io.Writer, s fileSummary) {
	fmt.Fprintln(w, s.Name)
	fmt.Fprintf(w, "  Format:      %s\n", s.Format)
	fmt.Fprintf(w, "  Channels:    %d\n", s.Channels)
	fmt.Fprintf(w, "  Sample rate: %d Hz\n", s.SampleRate)
	fmt.Fprintf(w, "  Frames:      %d\n", s.Frames)
	fmt.Fprintf(w, "  Duration:    %.3f sec.\n", s.Seconds)
	fmt.Fprintf(w, "  Peak:        %.3f\n", s.Peak)
}
