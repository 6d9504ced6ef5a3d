package backend

import (
	"errors"

	"github.com/gogpu/blur/gpucore"
)

// Backend names.
const (
	// CPU is the software device. It is always available.
	CPU = "cpu"

	// WGPU is the WGSL compute device on gogpu/wgpu.
	WGPU = "wgpu"

	// OpenCL is the OpenCL device. It requires the opencl build tag.
	OpenCL = "opencl"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered or cannot open a device.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Factory opens a device. A factory that cannot find a device returns an
// error and Default moves on to the next backend.
type Factory func() (gpucore.Backend, error)
