package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"audioplot.dev/internal/audio"
	"audioplot.dev/internal/config"
	"audioplot.dev/internal/fs"
	"audioplot.dev/internal/playback"
	"audioplot.dev/internal/render"
	"audioplot.dev/internal/tracking"
	"audioplot.dev/internal/transport"
)

const Version = "0.4.0"

// CLI represents the command-line interface
type CLI struct {
	rootCmd          *cobra.Command
	configManager    *config.ConfigManager
	deviceFactory    audio.DeviceFactory
	fsFactory        fs.Factory
	registry         *audio.DecoderRegistry
	terminalDetector TerminalDetector
	trackingDB       *sql.DB // Optional tracking database
	ownsTrackingDB   bool
}

type cliKey struct{}

// NewCLI creates a new CLI instance
func NewCLI() *CLI {
	slog.Debug("creating new CLI instance")

	rootCmd := &cobra.Command{
		Use:   "audioplot",
		Short: "Waveform player with a live position marker",
		Long: `audioplot plays WAV, MP3 and AIFF files while drawing the waveform with a
position marker that follows playback. Interactive terminals get a full
screen view; everything else gets a one-line time readout.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handled, err := handleVersionFlag(cmd); handled || err != nil {
				return err
			}
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newPlayCommand())
	rootCmd.AddCommand(newRenderCommand())
	rootCmd.AddCommand(newInfoCommand())
	rootCmd.AddCommand(newAnalyzeCommand())

	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("volume", "", "Set volume (0.0 to 1.0)")
	rootCmd.PersistentFlags().String("backend", "", "Output device (auto, malgo, oto, beep, null)")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	return &CLI{rootCmd: rootCmd}
}

// contextWithCLI stores CLI instance in context for command handlers
func contextWithCLI(ctx context.Context, cli *CLI) context.Context {
	return context.WithValue(ctx, cliKey{}, cli)
}

// cliFromContext extracts CLI instance from context
func cliFromContext(ctx context.Context) *CLI {
	if cli, ok := ctx.Value(cliKey{}).(*CLI); ok {
		return cli
	}
	return nil
}

func mustCLI(cmd *cobra.Command) (*CLI, error) {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		slog.Error("CLI instance not found in context")
		return nil, fmt.Errorf("CLI instance not found in context")
	}
	return cli, nil
}

// handleVersionFlag checks and handles the version flag
// Returns true if version was handled and processing should stop
func handleVersionFlag(cmd *cobra.Command) (bool, error) {
	version, _ := cmd.Flags().GetBool("version")
	if version {
		printVersion(cmd.OutOrStdout())
		return true, nil
	}
	return false, nil
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "audioplot version %s\nWaveform player with a live position marker\n", Version)
}

// loadAndValidateConfig loads configuration from flags and files, applies overrides, and validates
func loadAndValidateConfig(cmd *cobra.Command, cli *CLI) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	volumeStr, _ := cmd.Flags().GetString("volume")
	backend, _ := cmd.Flags().GetString("backend")

	var volume float64
	if volumeStr != "" {
		vol, err := strconv.ParseFloat(volumeStr, 64)
		if err != nil {
			slog.Error("invalid volume value", "value", volumeStr, "error", err)
			return nil, fmt.Errorf("invalid volume value '%s': %w", volumeStr, err)
		}
		if vol < 0.0 || vol > 1.0 {
			slog.Error("volume out of range", "value", vol)
			return nil, fmt.Errorf("volume must be between 0.0 and 1.0, got %g", vol)
		}
		volume = vol
	}

	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = cli.configManager.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		cfg, err = cli.configManager.LoadConfig()
		if err != nil {
			slog.Error("config load failed", "error", err)
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	}

	cfg = cli.configManager.ApplyEnvironmentOverrides(cfg)
	cfg = cli.configManager.MergeConfigs(cfg, &config.Config{AudioBackend: backend})

	// zero is a valid volume, so it is applied outside the merge
	if volumeStr != "" {
		cfg.Volume = volume
		slog.Debug("volume override applied", "value", volume)
	}

	if err := cli.configManager.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Run executes the CLI with the given arguments and I/O streams
func (c *CLI) Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	slog.Debug("CLI run started", "args", args)

	if len(args) > 1 && (args[1] == "--version" || args[1] == "-v") {
		printVersion(stdout)
		return 0
	}

	c.initializeSystems()
	defer c.closeTracking()

	if len(args) > 0 {
		args = args[1:]
	}
	c.rootCmd.SetArgs(args)
	c.rootCmd.SetIn(stdin)
	c.rootCmd.SetOut(stdout)
	c.rootCmd.SetErr(stderr)

	if err := c.rootCmd.ExecuteContext(contextWithCLI(context.Background(), c)); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		slog.Error("command failed", "error", err)
		return 1
	}
	return 0
}

// initializeSystems lazily fills in every dependency a test has not injected.
func (c *CLI) initializeSystems() {
	if c.configManager == nil {
		c.configManager = config.NewConfigManager()
	}
	if c.deviceFactory == nil {
		c.deviceFactory = audio.NewDeviceFactory()
	}
	if c.fsFactory == nil {
		c.fsFactory = fs.NewDefaultFactory()
	}
	if c.registry == nil {
		c.registry = audio.NewDefaultRegistry()
	}
	if c.terminalDetector == nil {
		c.terminalDetector = &DefaultTerminalDetector{}
	}
}

// setupLogging configures slog: stderr gets the configured level, the
// rotating log file (when enabled) gets at least info.
func setupLogging(cfg *config.Config, cm *config.ConfigManager, stderrWriter io.Writer) {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelWarn
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(stderrWriter, &slog.HandlerOptions{Level: level}),
	}

	if cfg.FileLogging != nil && cfg.FileLogging.Enabled {
		logFilePath := cm.ResolveLogFilePath(cfg.FileLogging.Filename)

		logDir := filepath.Dir(logFilePath)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			slog.Error("failed to create log directory", "path", logDir, "error", err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   logFilePath,
				MaxSize:    cfg.FileLogging.MaxSizeMB,
				MaxBackups: cfg.FileLogging.MaxBackups,
				MaxAge:     cfg.FileLogging.MaxAgeDays,
				Compress:   cfg.FileLogging.Compress,
			}
			handlers = append(handlers, slog.NewTextHandler(fileWriter, &slog.HandlerOptions{
				Level: min(level, slog.LevelInfo),
			}))
		}
	}

	slog.SetDefault(slog.New(NewMultiLevelHandler(handlers...)))

	slog.Debug("logging setup completed",
		"level", level.String(),
		"handlers", len(handlers),
		"file_enabled", cfg.FileLogging != nil && cfg.FileLogging.Enabled)
}

// initializeTracking opens the tracking database if enabled in configuration.
// Failures leave tracking off; playback never depends on it.
func (c *CLI) initializeTracking(cfg *config.Config) {
	if c.trackingDB != nil {
		return
	}

	if cfg.Tracking == nil || !cfg.Tracking.Enabled {
		slog.Debug("session tracking disabled, skipping database initialization")
		return
	}

	dbPath := cfg.Tracking.DatabasePath
	if dbPath == "" {
		var err error
		dbPath, err = tracking.GetDatabasePath()
		if err != nil {
			slog.Error("failed to get database path, continuing without tracking", "error", err)
			return
		}
	}

	db, err := tracking.NewDatabase(dbPath)
	if err != nil {
		slog.Error("failed to initialize tracking database, continuing without tracking",
			"path", dbPath, "error", err)
		return
	}

	c.trackingDB = db
	c.ownsTrackingDB = true
	slog.Info("tracking database initialized", "path", dbPath)
}

func (c *CLI) closeTracking() {
	if c.trackingDB == nil || !c.ownsTrackingDB {
		return
	}
	if err := c.trackingDB.Close(); err != nil {
		slog.Error("error closing tracking database", "error", err)
	}
	c.trackingDB = nil
	c.ownsTrackingDB = false
}

// session bundles what the play and render commands build from the config.
type session struct {
	controller *transport.Controller
	engine     *playback.Engine
	device     audio.Device
	recorder   *tracking.Recorder
}

// close releases the device and flushes the recorder.
func (s *session) close() {
	if err := s.controller.Shutdown(); err != nil {
		slog.Error("failed to shut down transport", "error", err)
	}
	s.recorder.Close()
}

// newSession wires engine, device, recorder and controller from cfg. The
// session owns device from here on, even when it fails.
func (c *CLI) newSession(cfg *config.Config, device audio.Device, presenter render.Presenter, timer func(time.Duration, func()) transport.Timer) (*session, error) {
	theme, err := cfg.Theme.Resolve()
	if err != nil {
		device.Close()
		return nil, err
	}

	engine := playback.NewEngine()
	if err := engine.SetVolume(cfg.Volume); err != nil {
		device.Close()
		return nil, err
	}

	recorder := tracking.NewRecorder(c.trackingDB,
		tracking.WithHook(tracking.NewSlogHook(slog.Default())))

	controller, err := transport.New(transport.Config{
		Engine:    engine,
		Device:    device,
		Registry:  c.registry,
		Fs:        c.fsFactory.ReadOnly(),
		Presenter: presenter,
		Recorder:  recorder,
		NewTimer:  timer,
		BlockSize: cfg.BlockSize,
		Interval:  time.Duration(cfg.FrameIntervalMs) * time.Millisecond,
		Size:      render.Size{Width: cfg.Width, Height: cfg.Height},
		Theme:     theme,
		Render: render.Options{
			ShowCursor:  cfg.ShowCursor,
			ShowReadout: cfg.ShowReadout,
		},
	})
	if err != nil {
		recorder.Close()
		device.Close()
		return nil, err
	}

	return &session{
		controller: controller,
		engine:     engine,
		device:     device,
		recorder:   recorder,
	}, nil
}
