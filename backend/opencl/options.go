package opencl

import (
	"errors"
	"log/slog"
)

// ErrUnavailable is returned when no OpenCL device can be opened.
var ErrUnavailable = errors.New("opencl: not available")

// DeviceInfo describes an OpenCL device.
type DeviceInfo struct {
	Platform int
	Index    int
	Name     string
	Vendor   string
	GPU      bool
}

// Option configures a Device.
type Option func(*config)

type config struct {
	platform int
	device   int
	cpu      bool
	logger   *slog.Logger
}

func defaultConfig() config {
	return config{platform: -1, device: -1}
}

// WithDevice selects a device by platform and device index, as listed by
// Devices.
func WithDevice(platform, device int) Option {
	return func(c *config) {
		c.platform = platform
		c.device = device
	}
}

// WithCPU prefers CPU devices over GPU devices.
func WithCPU() Option {
	return func(c *config) { c.cpu = true }
}

// WithLogger sets the device logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}
