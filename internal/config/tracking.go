package config

import (
	"log/slog"
	"os"
	"strconv"
)

// TrackingConfig represents session tracking configuration
type TrackingConfig struct {
	Enabled      bool   `json:"enabled"`       // Whether sessions are recorded
	DatabasePath string `json:"database_path"` // Custom database path (empty = XDG cache path)
}

// GetDefaultTrackingConfig returns the default tracking configuration
func GetDefaultTrackingConfig() *TrackingConfig {
	return &TrackingConfig{
		Enabled:      true,
		DatabasePath: "", // Empty = XDG cache path
	}
}

// ApplyTrackingEnvironmentOverrides applies AUDIOPLOT_TRACKING to config
func ApplyTrackingEnvironmentOverrides(config *TrackingConfig) *TrackingConfig {
	slog.Debug("applying tracking environment variable overrides")

	result := *config

	if trackingStr := os.Getenv("AUDIOPLOT_TRACKING"); trackingStr != "" {
		if enabled, err := strconv.ParseBool(trackingStr); err == nil {
			result.Enabled = enabled
			slog.Debug("applied tracking override from environment", "value", enabled)
		} else {
			slog.Warn("invalid AUDIOPLOT_TRACKING environment variable", "value", trackingStr, "error", err)
		}
	}

	return &result
}
