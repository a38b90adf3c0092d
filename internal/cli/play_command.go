package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"audioplot.dev/internal/audio"
	"audioplot.dev/internal/config"
	"audioplot.dev/internal/render"
	"audioplot.dev/internal/transport"
	"audioplot.dev/internal/ui"
)

// pollInterval is how often headless playback checks for the end of file.
const pollInterval = 50 * time.Millisecond

func newPlayCommand() *cobra.Command {
	var from float64
	var headless bool

	playCmd := &cobra.Command{
		Use:   "play FILE",
		Short: "Play a file with a live waveform",
		Long: `Play a WAV, MP3 or AIFF file.

On an interactive terminal the waveform is drawn full screen with the
position marker following playback:

  space  pause / resume      s      stop
  ←/→    seek 1 s            ⇧←/⇧→  seek 5 s
  +/-    zoom                [ ]    pan
  m      marker at position  x      remove last marker
  click  seek                right-click  marker
  q      quit

Otherwise a single "Time: ... sec." line is updated until the file ends.

Examples:
  audioplot play song.wav
  audioplot play --from 12.5 song.mp3
  audioplot play --headless --backend null song.aiff`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd, args[0], from, headless)
		},
	}

	playCmd.Flags().Float64Var(&from, "from", 0, "Start position in seconds")
	playCmd.Flags().BoolVar(&headless, "headless", false, "Print the time readout instead of the full screen view")

	return playCmd
}

func runPlay(cmd *cobra.Command, path string, from float64, headless bool) error {
	cli, err := mustCLI(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadAndValidateConfig(cmd, cli)
	if err != nil {
		return err
	}

	interactive := !headless && cli.isInteractiveWriter(cmd.OutOrStdout())

	// the TUI owns the terminal, so logs only go to the log file
	logWriter := cmd.ErrOrStderr()
	if interactive {
		logWriter = io.Discard
	}
	setupLogging(cfg, cli.configManager, logWriter)
	cli.initializeTracking(cfg)

	device, err := cli.deviceFactory.CreateDevice(cfg.AudioBackend)
	if err != nil {
		return fmt.Errorf("failed to create output device: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if interactive {
		return playInteractive(ctx, cmd, cli, cfg, device, path, from)
	}
	return playHeadless(ctx, cmd, cli, cfg, device, path, from)
}

func startPlayback(c *transport.Controller, path string, from float64) error {
	if err := c.Open(path); err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if from > 0 {
		return c.PlayFrom(from)
	}
	return c.Play()
}

func playInteractive(ctx context.Context, cmd *cobra.Command, cli *CLI, cfg *config.Config, device audio.Device, path string, from float64) error {
	presenter := ui.NewPresenter()
	timer := &ui.FrameTimer{}
	s, err := cli.newSession(cfg, device, presenter, timer.Bind)
	if err != nil {
		return err
	}
	defer s.close()

	if err := startPlayback(s.controller, path, from); err != nil {
		return err
	}

	model := ui.NewModel(s.controller, presenter, timer)
	return ui.Run(ctx, model, cmd.InOrStdin(), cmd.OutOrStdout())
}

// lockedWriter serializes the frame timer's readout with our own lines.
type lockedWriter struct {
	mutex sync.Mutex
	w     io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.w.Write(p)
}

// playHeadless plays to the end (or until interrupted) while a text
// presenter rewrites the time readout on one line.
func playHeadless(ctx context.Context, cmd *cobra.Command, cli *CLI, cfg *config.Config, device audio.Device, path string, from float64) error {
	out := &lockedWriter{w: cmd.OutOrStdout()}
	s, err := cli.newSession(cfg, device, render.NewTextPresenter(out), nil)
	if err != nil {
		return err
	}
	defer s.close()

	if err := startPlayback(s.controller, path, from); err != nil {
		return err
	}

	status := s.controller.Status()
	fmt.Fprintf(out, "%s  %.3f sec.  %d Hz  %d ch  (%s)\n",
		status.File, status.Duration, status.SampleRate, status.Channels, status.Device)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for s.controller.State() == transport.Playing {
		select {
		case <-ctx.Done():
			slog.Info("playback interrupted")
			if err := s.controller.Stop(); err != nil {
				return err
			}
		case <-ticker.C:
		}
	}

	// one last frame so the readout shows where playback ended
	if _, err := s.controller.Tick(); err != nil {
		slog.Warn("final frame failed", "error", err)
	}

	final := s.controller.Status()
	fmt.Fprintf(out, "\nPlayed %s to %.3f sec.", final.File, final.Seconds)
	if final.Stats.Underruns > 0 {
		fmt.Fprintf(out, ", %d underruns", final.Stats.Underruns)
	}
	fmt.Fprintln(out)
	return nil
}
