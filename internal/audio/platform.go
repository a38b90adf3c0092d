package audio

import (
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Platform holds the host facts that decide what "auto" resolves to.
type Platform struct {
	CGO         bool
	WSL         bool
	PulseServer string
	HasCommand  func(name string) bool
}

// CurrentPlatform inspects the running host.
func CurrentPlatform() Platform {
	procVersion, err := os.ReadFile("/proc/version")
	if err != nil {
		slog.Debug("no /proc/version", "error", err)
	}
	return Platform{
		CGO:         cgoEnabled,
		WSL:         isWSL(string(procVersion), os.Getenv("WSL_DISTRO_NAME")),
		PulseServer: os.Getenv("PULSE_SERVER"),
		HasCommand: func(name string) bool {
			_, err := exec.LookPath(name)
			return name != "" && err == nil
		},
	}
}

func isWSL(procVersion, distro string) bool {
	if distro != "" {
		return true
	}
	v := strings.ToLower(procVersion)
	return strings.Contains(v, "microsoft") || strings.Contains(v, "wsl")
}

// PreferredDevice returns miniaudio wherever a sound server is reachable and
// the null device otherwise. Under WSL a server only exists when WSLg
// exports PULSE_SERVER or a PulseAudio client is installed.
func (p Platform) PreferredDevice() string {
	switch {
	case !p.CGO:
		slog.Warn("built without cgo, audio output disabled")
		return DeviceNull
	case p.WSL && p.PulseServer == "" && (p.HasCommand == nil || !p.HasCommand("pactl")):
		slog.Warn("WSL without a PulseAudio server, audio output disabled")
		return DeviceNull
	}
	slog.Debug("preferred output device", "device", DeviceMalgo, "wsl", p.WSL)
	return DeviceMalgo
}
