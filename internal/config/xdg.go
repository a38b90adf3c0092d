package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/adrg/xdg"
)

// appDir is audioplot's directory under every XDG base directory.
const appDir = "audioplot"

// XDGDirs resolves audioplot paths under the XDG base directories captured
// when it was created.
type XDGDirs struct {
	configHome string
	configDirs []string
	cacheHome  string
}

// NewXDGDirs uses the base directories of the current environment.
func NewXDGDirs() *XDGDirs {
	return newXDGDirsAt(xdg.ConfigHome, xdg.ConfigDirs, xdg.CacheHome)
}

func newXDGDirsAt(configHome string, configDirs []string, cacheHome string) *XDGDirs {
	slog.Debug("resolved XDG base directories",
		"config_home", configHome,
		"config_dirs", len(configDirs),
		"cache_home", cacheHome)
	return &XDGDirs{
		configHome: configHome,
		configDirs: slices.Clone(configDirs),
		cacheHome:  cacheHome,
	}
}

// GetCachePath returns the audioplot cache directory, or a subdirectory of
// it when purpose is set.
func (x *XDGDirs) GetCachePath(purpose string) string {
	return filepath.Join(x.cacheHome, appDir, purpose)
}

// GetConfigPaths lists where filename may live, user directory first. A
// system directory equal to the user one is listed once.
func (x *XDGDirs) GetConfigPaths(filename string) []string {
	bases := append([]string{x.configHome}, x.configDirs...)
	paths := make([]string, 0, len(bases))
	for _, base := range bases {
		path := filepath.Join(base, appDir, filename)
		if !slices.Contains(paths, path) {
			paths = append(paths, path)
		}
	}
	return paths
}

// CreateCacheDir creates the cache directory for purpose.
func (x *XDGDirs) CreateCacheDir(purpose string) error {
	path := x.GetCachePath(purpose)
	if err := os.MkdirAll(path, 0755); err != nil {
		slog.Error("failed to create cache directory", "path", path, "error", err)
		return fmt.Errorf("failed to create cache directory %s: %w", path, err)
	}
	slog.Debug("cache directory ready", "path", path)
	return nil
}
