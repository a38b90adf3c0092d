//go:build !cgo

package audio

import "errors"

const cgoEnabled = false

var errCGORequired = errors.New(`audioplot requires CGO support for audio output.

This error occurs when selecting a hardware output device in a build without
CGO. The "null" device still works for rendering and headless playback.

To fix this issue:
1. Ensure CGO_ENABLED=1 (this is the default for native builds)
2. Install a C compiler:
   - Linux: sudo apt-get install build-essential
   - macOS: xcode-select --install
   - Windows: Install MinGW or Visual Studio Build Tools
3. Then run: go install audioplot.dev@latest`)

func newMalgoDevice() (Device, error) { return nil, errCGORequired }

func newOtoDevice() (Device, error) { return nil, errCGORequired }

func newBeepDevice() (Device, error) { return nil, errCGORequired }
