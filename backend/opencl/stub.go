//go:build !opencl

package opencl

import (
	"github.com/gogpu/blur/backend"
	"github.com/gogpu/blur/gpucore"
)

// init registers a failing factory when the opencl tag is not set, so
// backend.Open(backend.OpenCL) reports why the backend is missing.
func init() {
	backend.Register(backend.OpenCL, func() (gpucore.Backend, error) {
		_, err := New()
		return nil, err
	})
}

// Device is an OpenCL device (stub).
type Device struct{}

// New returns ErrUnavailable without the opencl build tag.
func New(...Option) (*Device, error) {
	return nil, ErrUnavailable
}

// Devices returns ErrUnavailable without the opencl build tag.
func Devices() ([]DeviceInfo, error) {
	return nil, ErrUnavailable
}
