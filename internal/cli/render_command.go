package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"audioplot.dev/internal/audio"
	"audioplot.dev/internal/config"
	"audioplot.dev/internal/render"
	"audioplot.dev/internal/transport"
)

// stillTimer never fires; render composes exactly one frame by hand.
type stillTimer struct{ active bool }

func (t *stillTimer) Start()       { t.active = true }
func (t *stillTimer) Stop()        { t.active = false }
func (t *stillTimer) Active() bool { return t.active }

type renderOptions struct {
	output  string
	at      float64
	markers []float64
	zoom    float64
	width   int
	height  int
	cursor  bool
}

func newRenderCommand() *cobra.Command {
	var opts renderOptions

	renderCmd := &cobra.Command{
		Use:   "render FILE",
		Short: "Write the waveform with the position marker to a PNG",
		Long: `Render one frame of the waveform view to a PNG file without playing.

The position marker is drawn at --at; markers are drawn for every --marker.

Examples:
  audioplot render song.wav                       # writes song.png
  audioplot render song.wav -o plot.png --at 1.5
  audioplot render song.mp3 --marker 0.5 --marker 2 --zoom 0.25 --at 1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, args[0], opts)
		},
	}

	renderCmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output PNG path (default: FILE with .png extension)")
	renderCmd.Flags().Float64Var(&opts.at, "at", 0, "Position marker time in seconds")
	renderCmd.Flags().Float64SliceVar(&opts.markers, "marker", nil, "Marker time in seconds (repeatable)")
	renderCmd.Flags().Float64Var(&opts.zoom, "zoom", 1, "Visible fraction of the file, centered on --at")
	renderCmd.Flags().IntVar(&opts.width, "width", 0, "Image width in pixels (default from config)")
	renderCmd.Flags().IntVar(&opts.height, "height", 0, "Image height in pixels (default from config)")
	renderCmd.Flags().BoolVar(&opts.cursor, "cursor", false, "Draw heads on the position marker")

	return renderCmd
}

func defaultOutput(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".png"
}

func runRender(cmd *cobra.Command, path string, opts renderOptions) error {
	cli, err := mustCLI(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadAndValidateConfig(cmd, cli)
	if err != nil {
		return err
	}
	setupLogging(cfg, cli.configManager, cmd.ErrOrStderr())

	cfg = cli.configManager.MergeConfigs(cfg, &config.Config{
		Width:      max(opts.width, 0),
		Height:     max(opts.height, 0),
		ShowCursor: opts.cursor,
	})
	if opts.zoom <= 0 || opts.zoom > 1 {
		return fmt.Errorf("--zoom must be in (0, 1], got %g", opts.zoom)
	}
	if opts.output == "" {
		opts.output = defaultOutput(path)
	}

	dir, name := filepath.Split(opts.output)
	if dir = filepath.Clean(dir); dir == "." {
		dir = ""
	}
	out, err := cli.fsFactory.Under(dir)
	if err != nil {
		return fmt.Errorf("failed to prepare output: %w", err)
	}
	presenter := render.NewPNGPresenter(out, name)

	// nothing is played, so the device only has to accept the format
	device := audio.NewNullDevice(audio.WithoutPacer())
	timer := &stillTimer{}
	s, err := cli.newSession(cfg, device, presenter, func(time.Duration, func()) transport.Timer { return timer })
	if err != nil {
		return err
	}
	defer s.close()

	c := s.controller
	if err := c.Open(path); err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	for _, m := range opts.markers {
		if err := c.SetMarker(m, ""); err != nil {
			return err
		}
	}
	if err := c.Seek(opts.at); err != nil {
		return err
	}
	if opts.zoom < 1 {
		c.Zoom(opts.zoom)
	}

	frame, err := c.Tick()
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%dx%d, position %.3f sec., %d markers)\n",
		opts.output, frame.Image.Bounds().Dx(), frame.Image.Bounds().Dy(), frame.Seconds, len(c.Markers()))
	return nil
}
