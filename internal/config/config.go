package config

import (
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"audioplot.dev/internal/audio"
	"audioplot.dev/internal/render"
)

// FileLoggingConfig represents file-based logging configuration
type FileLoggingConfig struct {
	Enabled    bool   `json:"enabled"`      // Whether file logging is enabled
	Filename   string `json:"filename"`     // Log file path (empty = XDG cache path)
	MaxSizeMB  int    `json:"max_size_mb"`  // Max file size in MB before rotation
	MaxBackups int    `json:"max_backups"`  // Max number of backup files to keep
	MaxAgeDays int    `json:"max_age_days"` // Max age in days before deletion
	Compress   bool   `json:"compress"`     // Whether to compress rotated files
}

// ThemeConfig holds plot colors as "#rrggbb" or "#rrggbbaa". Empty fields
// keep the default color.
type ThemeConfig struct {
	Background string `json:"background,omitempty"`
	Grid       string `json:"grid,omitempty"`
	Plot       string `json:"plot,omitempty"`
	Axis       string `json:"axis,omitempty"`
	Marker     string `json:"marker,omitempty"`
	Position   string `json:"position,omitempty"`
}

// Config represents audioplot configuration
type Config struct {
	Volume          float64            `json:"volume"`                 // Output gain (0.0 to 1.0)
	LogLevel        string             `json:"log_level"`              // Log level (debug, info, warn, error)
	AudioBackend    string             `json:"audio_backend"`          // Output device (auto, malgo, oto, beep, null)
	BlockSize       int                `json:"block_size"`             // Frames per delivery cycle
	FrameIntervalMs int                `json:"frame_interval_ms"`      // Render tick period
	Width           int                `json:"width"`                  // Plot width in pixels
	Height          int                `json:"height"`                 // Plot height in pixels
	ShowCursor      bool               `json:"show_cursor"`            // Draw heads on the position marker
	ShowReadout     bool               `json:"show_readout"`           // Show the time readout
	Theme           *ThemeConfig       `json:"theme,omitempty"`        // Plot colors
	FileLogging     *FileLoggingConfig `json:"file_logging,omitempty"` // File logging configuration
	Tracking        *TrackingConfig    `json:"tracking,omitempty"`     // Session tracking
}

const (
	minBlockSize = 16
	maxBlockSize = 16384
	maxInterval  = 1000
)

// XDGInterface defines the interface for XDG directory operations
type XDGInterface interface {
	GetConfigPaths(filename string) []string
	GetCachePath(purpose string) string
	CreateCacheDir(purpose string) error
}

// ConfigManager handles loading, saving, and validating configuration
type ConfigManager struct {
	xdg XDGInterface
	fs  afero.Fs
}

// NewConfigManager creates a configuration manager on the OS filesystem
func NewConfigManager() *ConfigManager {
	return NewConfigManagerWithFilesystem(afero.NewOsFs())
}

// NewConfigManagerWithFilesystem creates a configuration manager on fs
func NewConfigManagerWithFilesystem(fs afero.Fs) *ConfigManager {
	slog.Debug("creating new config manager")
	return &ConfigManager{
		xdg: NewXDGDirs(),
		fs:  fs,
	}
}

// GetDefaultConfig returns the default configuration
func (cm *ConfigManager) GetDefaultConfig() *Config {
	defaultConfig := &Config{
		Volume:          1.0,
		LogLevel:        "warn",
		AudioBackend:    audio.DeviceAuto,
		BlockSize:       512,
		FrameIntervalMs: 20,
		Width:           1200,
		Height:          400,
		ShowCursor:      false,
		ShowReadout:     true,
		Theme:           &ThemeConfig{},
		FileLogging: &FileLoggingConfig{
			Enabled:    false,
			Filename:   "", // Empty = XDG cache path
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Tracking: GetDefaultTrackingConfig(),
	}

	slog.Debug("generated default config",
		"volume", defaultConfig.Volume,
		"log_level", defaultConfig.LogLevel,
		"audio_backend", defaultConfig.AudioBackend,
		"block_size", defaultConfig.BlockSize,
		"frame_interval_ms", defaultConfig.FrameIntervalMs)

	return defaultConfig
}

// LoadFromFile loads configuration from a specific file. Fields missing from
// the file keep their default values.
func (cm *ConfigManager) LoadFromFile(filePath string) (*Config, error) {
	slog.Debug("loading config from file", "file_path", filePath)

	data, err := afero.ReadFile(cm.fs, filePath)
	if err != nil {
		slog.Error("failed to read config file", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := cm.GetDefaultConfig()
	err = json.Unmarshal(data, config)
	if err != nil {
		slog.Error("failed to parse config JSON", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	err = cm.ValidateConfig(config)
	if err != nil {
		slog.Error("config validation failed", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	slog.Debug("config loaded successfully",
		"file_path", filePath,
		"volume", config.Volume,
		"audio_backend", config.AudioBackend)

	return config, nil
}

// SaveToFile saves configuration to a specific file
func (cm *ConfigManager) SaveToFile(config *Config, filePath string) error {
	slog.Debug("saving config to file", "file_path", filePath)

	err := cm.ValidateConfig(config)
	if err != nil {
		slog.Error("cannot save invalid config", "error", err)
		return fmt.Errorf("cannot save invalid config: %w", err)
	}

	dir := filepath.Dir(filePath)
	err = cm.fs.MkdirAll(dir, 0755)
	if err != nil {
		slog.Error("failed to create config directory", "directory", dir, "error", err)
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		slog.Error("failed to marshal config", "error", err)
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	err = afero.WriteFile(cm.fs, filePath, data, 0644)
	if err != nil {
		slog.Error("failed to write config file", "file_path", filePath, "error", err)
		return fmt.Errorf("failed to write config file: %w", err)
	}

	slog.Info("config saved successfully", "file_path", filePath)
	return nil
}

// LoadConfig loads configuration using XDG path discovery
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	slog.Debug("loading config using XDG path discovery")

	configPaths := cm.xdg.GetConfigPaths("config.json")

	slog.Debug("searching for config file", "paths", configPaths)

	for i, configPath := range configPaths {
		slog.Debug("checking config path", "path_index", i, "path", configPath)

		if _, err := cm.fs.Stat(configPath); err == nil {
			slog.Debug("found config file", "path", configPath)
			return cm.LoadFromFile(configPath)
		} else {
			slog.Debug("config file not found", "path", configPath, "error", err)
		}
	}

	slog.Debug("no config file found, using defaults")
	return cm.GetDefaultConfig(), nil
}

// ValidateConfig validates configuration values
func (cm *ConfigManager) ValidateConfig(config *Config) error {
	var errors []string

	if config.Volume < 0.0 || config.Volume > 1.0 {
		errors = append(errors, fmt.Sprintf("volume must be between 0.0 and 1.0, got %f", config.Volume))
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if config.LogLevel != "" && !slices.Contains(validLogLevels, config.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s', must be one of: %s",
			config.LogLevel, strings.Join(validLogLevels, ", ")))
	}

	if !cm.IsValidAudioBackend(config.AudioBackend) {
		errors = append(errors, fmt.Sprintf("invalid audio backend '%s', must be one of: %s",
			config.AudioBackend, strings.Join(cm.GetSupportedAudioBackends(), ", ")))
	}

	if config.BlockSize < minBlockSize || config.BlockSize > maxBlockSize {
		errors = append(errors, fmt.Sprintf("block_size must be between %d and %d, got %d",
			minBlockSize, maxBlockSize, config.BlockSize))
	}

	if config.FrameIntervalMs <= 0 || config.FrameIntervalMs > maxInterval {
		errors = append(errors, fmt.Sprintf("frame_interval_ms must be between 1 and %d, got %d",
			maxInterval, config.FrameIntervalMs))
	}

	if err := (render.Size{Width: config.Width, Height: config.Height}).Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid plot size: %v", err))
	}

	if config.Theme != nil {
		if _, err := config.Theme.Resolve(); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if config.FileLogging != nil {
		fileLogging := config.FileLogging

		if fileLogging.MaxSizeMB < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_size_mb must be >= 0, got %d", fileLogging.MaxSizeMB))
		}

		if fileLogging.MaxBackups < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_backups must be >= 0, got %d", fileLogging.MaxBackups))
		}

		if fileLogging.MaxAgeDays < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_age_days must be >= 0, got %d", fileLogging.MaxAgeDays))
		}
	}

	if len(errors) > 0 {
		errMsg := strings.Join(errors, "; ")
		slog.Error("config validation failed", "errors", errMsg)
		return fmt.Errorf("config validation failed: %s", errMsg)
	}

	slog.Debug("config validation passed")
	return nil
}

// Resolve overlays the configured colors on the default theme. A nil
// ThemeConfig resolves to the default theme.
func (t *ThemeConfig) Resolve() (render.Theme, error) {
	theme := render.DefaultTheme()
	if t == nil {
		return theme, nil
	}
	for _, c := range []struct {
		name  string
		value string
		dst   *color.NRGBA
	}{
		{"background", t.Background, &theme.Background},
		{"grid", t.Grid, &theme.Grid},
		{"plot", t.Plot, &theme.Plot},
		{"axis", t.Axis, &theme.Axis},
		{"marker", t.Marker, &theme.Marker},
		{"position", t.Position, &theme.Position},
	} {
		if c.value == "" {
			continue
		}
		parsed, err := render.ParseHexColor(c.value)
		if err != nil {
			return theme, fmt.Errorf("invalid theme color %s: %w", c.name, err)
		}
		*c.dst = parsed
	}
	return theme, nil
}

// MergeConfigs merges two configurations, with override taking precedence
// for every non-zero field.
func (cm *ConfigManager) MergeConfigs(base, override *Config) *Config {
	slog.Debug("merging configurations")

	merged := *base

	if override.Volume != 0.0 {
		merged.Volume = override.Volume
		slog.Debug("merged volume override", "value", override.Volume)
	}

	if override.LogLevel != "" {
		merged.LogLevel = override.LogLevel
		slog.Debug("merged log level override", "value", override.LogLevel)
	}

	if override.AudioBackend != "" {
		merged.AudioBackend = override.AudioBackend
		slog.Debug("merged audio backend override", "value", override.AudioBackend)
	}

	if override.BlockSize != 0 {
		merged.BlockSize = override.BlockSize
	}

	if override.FrameIntervalMs != 0 {
		merged.FrameIntervalMs = override.FrameIntervalMs
	}

	if override.Width != 0 {
		merged.Width = override.Width
	}

	if override.Height != 0 {
		merged.Height = override.Height
	}

	if override.Theme != nil {
		theme := ThemeConfig{}
		if base.Theme != nil {
			theme = *base.Theme
		}
		mergeString(&theme.Background, override.Theme.Background)
		mergeString(&theme.Grid, override.Theme.Grid)
		mergeString(&theme.Plot, override.Theme.Plot)
		mergeString(&theme.Axis, override.Theme.Axis)
		mergeString(&theme.Marker, override.Theme.Marker)
		mergeString(&theme.Position, override.Theme.Position)
		merged.Theme = &theme
	}

	if override.FileLogging != nil {
		fileLogging := *override.FileLogging
		merged.FileLogging = &fileLogging
	}

	if override.Tracking != nil {
		tracking := *override.Tracking
		merged.Tracking = &tracking
	}

	// ShowCursor and ShowReadout are plain bools; an explicit false in JSON
	// is indistinguishable from unset, so only true overrides.
	merged.ShowCursor = base.ShowCursor || override.ShowCursor
	merged.ShowReadout = base.ShowReadout || override.ShowReadout

	slog.Debug("configurations merged successfully")
	return &merged
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// ApplyEnvironmentOverrides applies AUDIOPLOT_* environment variables.
// Invalid values are logged and ignored.
func (cm *ConfigManager) ApplyEnvironmentOverrides(config *Config) *Config {
	slog.Debug("applying environment variable overrides")

	result := *config

	if volStr := os.Getenv("AUDIOPLOT_VOLUME"); volStr != "" {
		if vol, err := strconv.ParseFloat(volStr, 64); err == nil {
			result.Volume = vol
			slog.Debug("applied volume override from environment", "value", vol)
		} else {
			slog.Warn("invalid AUDIOPLOT_VOLUME environment variable", "value", volStr, "error", err)
		}
	}

	if logLevel := os.Getenv("AUDIOPLOT_LOG_LEVEL"); logLevel != "" {
		result.LogLevel = logLevel
		slog.Debug("applied log level override from environment", "value", logLevel)
	}

	if audioBackend := os.Getenv("AUDIOPLOT_AUDIO_BACKEND"); audioBackend != "" {
		if cm.IsValidAudioBackend(audioBackend) {
			result.AudioBackend = audioBackend
			slog.Debug("applied audio backend override from environment", "value", audioBackend)
		} else {
			slog.Warn("invalid AUDIOPLOT_AUDIO_BACKEND environment variable", "value", audioBackend)
		}
	}

	if s := os.Getenv("AUDIOPLOT_BLOCK_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= minBlockSize && n <= maxBlockSize {
			result.BlockSize = n
			slog.Debug("applied block size override from environment", "value", n)
		} else {
			slog.Warn("invalid AUDIOPLOT_BLOCK_SIZE environment variable", "value", s)
		}
	}

	if s := os.Getenv("AUDIOPLOT_FRAME_INTERVAL_MS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= maxInterval {
			result.FrameIntervalMs = n
			slog.Debug("applied frame interval override from environment", "value", n)
		} else {
			slog.Warn("invalid AUDIOPLOT_FRAME_INTERVAL_MS environment variable", "value", s)
		}
	}

	if result.Tracking != nil {
		result.Tracking = ApplyTrackingEnvironmentOverrides(result.Tracking)
	}

	slog.Debug("environment overrides applied")
	return &result
}

// ParseLogLevel maps a config log level onto slog.
func ParseLogLevel(logLevel string) (slog.Level, error) {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", logLevel)
}

// ApplyLogLevel configures slog with the specified log level
func (cm *ConfigManager) ApplyLogLevel(logLevel string) error {
	return cm.ApplyLogLevelWithWriter(logLevel, os.Stderr)
}

// ApplyLogLevelWithWriter configures slog with the specified log level and writer
func (cm *ConfigManager) ApplyLogLevelWithWriter(logLevel string, writer io.Writer) error {
	if logLevel == "" {
		slog.Debug("no log level specified, keeping current slog configuration")
		return nil
	}

	level, err := ParseLogLevel(logLevel)
	if err != nil {
		slog.Error("invalid log level for slog configuration", "log_level", logLevel, "error", err)
		return err
	}

	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))

	slog.Debug("slog configured successfully", "log_level", logLevel, "slog_level", level)
	return nil
}

// ResolveLogFilePath resolves the log file path using XDG cache directory when filename is empty
func (cm *ConfigManager) ResolveLogFilePath(filename string) string {
	if filename != "" {
		return filename
	}
	return filepath.Join(cm.xdg.GetCachePath("logs"), "audioplot.log")
}

// ResolveDatabasePath resolves the tracking database path using the XDG
// cache directory when path is empty.
func (cm *ConfigManager) ResolveDatabasePath(path string) string {
	if path != "" {
		return path
	}
	return filepath.Join(cm.xdg.GetCachePath(""), "sessions.db")
}

// GetSupportedAudioBackends returns a list of all supported audio backend types
func (cm *ConfigManager) GetSupportedAudioBackends() []string {
	return audio.NewDeviceFactory().GetSupportedDevices()
}

// IsValidAudioBackend checks if an audio backend type is supported
func (cm *ConfigManager) IsValidAudioBackend(backend string) bool {
	return audio.NewDeviceFactory().IsValidDeviceType(backend)
}
