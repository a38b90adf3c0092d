package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// Device type names accepted by the factory and the config file.
const (
	DeviceAuto  = "auto"
	DeviceMalgo = "malgo"
	DeviceOto   = "oto"
	DeviceBeep  = "beep"
	DeviceNull  = "null"
)

// Factory errors
var (
	ErrInvalidDeviceType    = errors.New("invalid device type")
	ErrDeviceCreationFailed = errors.New("device creation failed")
)

// DeviceFactory creates Device instances based on configuration
type DeviceFactory interface {
	CreateDevice(deviceType string) (Device, error)
	GetSupportedDevices() []string
	IsValidDeviceType(deviceType string) bool
}

// DefaultDeviceFactory implements DeviceFactory with platform detection
type DefaultDeviceFactory struct {
	detect func() string
}

// NewDeviceFactory creates a factory with real platform detection
func NewDeviceFactory() *DefaultDeviceFactory {
	return &DefaultDeviceFactory{detect: func() string { return CurrentPlatform().PreferredDevice() }}
}

// NewDeviceFactoryWithDependencies creates a factory with injected detection for testing
func NewDeviceFactoryWithDependencies(detect func() string) *DefaultDeviceFactory {
	return &DefaultDeviceFactory{detect: detect}
}

// CreateDevice creates a Device of the given type. An empty type means auto.
func (f *DefaultDeviceFactory) CreateDevice(deviceType string) (Device, error) {
	if deviceType == "" {
		deviceType = DeviceAuto
	}

	slog.Debug("creating output device", "type", deviceType)

	if deviceType == DeviceAuto {
		deviceType = f.detect()
		slog.Debug("auto-detection result", "selected_type", deviceType)
	}

	var (
		device Device
		err    error
	)
	switch deviceType {
	case DeviceMalgo:
		device, err = newMalgoDevice()
	case DeviceOto:
		device, err = newOtoDevice()
	case DeviceBeep:
		device, err = newBeepDevice()
	case DeviceNull:
		device = NewNullDevice()
	default:
		slog.Error("invalid device type requested", "type", deviceType)
		return nil, fmt.Errorf("%w: %s", ErrInvalidDeviceType, deviceType)
	}
	if err != nil {
		slog.Error("failed to create output device", "type", deviceType, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrDeviceCreationFailed, deviceType, err)
	}

	slog.Info("output device created", "type", device.Name())
	return device, nil
}

// GetSupportedDevices returns a list of all supported device types
func (f *DefaultDeviceFactory) GetSupportedDevices() []string {
	return []string{DeviceAuto, DeviceMalgo, DeviceOto, DeviceBeep, DeviceNull}
}

// IsValidDeviceType checks if a device type is supported
func (f *DefaultDeviceFactory) IsValidDeviceType(deviceType string) bool {
	return deviceType == "" || slices.Contains(f.GetSupportedDevices(), deviceType)
}
