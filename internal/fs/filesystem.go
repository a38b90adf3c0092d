package fs

import (
	"fmt"

	"github.com/spf13/afero"
)

// Factory provides filesystem instances for production and testing
type Factory interface {
	// Production returns a filesystem that operates on the real OS filesystem
	Production() afero.Fs
	// Memory returns an in-memory filesystem for testing
	Memory() afero.Fs
	// ReadOnly returns the OS filesystem with every write rejected
	ReadOnly() afero.Fs
	// Under returns the OS filesystem rooted at dir, creating dir if needed
	Under(dir string) (afero.Fs, error)
}

// DefaultFactory provides the standard filesystem factory implementation
type DefaultFactory struct{}

// NewDefaultFactory creates a new filesystem factory
func NewDefaultFactory() Factory {
	return &DefaultFactory{}
}

// Production returns a filesystem that operates on the real OS filesystem
func (f *DefaultFactory) Production() afero.Fs {
	return afero.NewOsFs()
}

// Memory returns an in-memory filesystem for testing
func (f *DefaultFactory) Memory() afero.Fs {
	return afero.NewMemMapFs()
}

// ReadOnly is used where audio files are only decoded.
func (f *DefaultFactory) ReadOnly() afero.Fs {
	return afero.NewReadOnlyFs(afero.NewOsFs())
}

// Under confines writes such as frame snapshots to dir. An empty dir means
// the production filesystem.
func (f *DefaultFactory) Under(dir string) (afero.Fs, error) {
	if dir == "" {
		return f.Production(), nil
	}
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return afero.NewBasePathFs(osFs, dir), nil
}
