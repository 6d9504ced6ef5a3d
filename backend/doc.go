// Package backend selects a compute device for the blur pipeline.
//
// # Backend Registration
//
// Backends are registered via init() functions and selected at runtime.
// Import the backend packages to make them available:
//
//	import (
//		_ "github.com/gogpu/blur/backend/cpu"
//		_ "github.com/gogpu/blur/backend/opencl"
//		_ "github.com/gogpu/blur/backend/wgpu"
//	)
//
// # Backend Selection
//
// Use Default() to open the best available device, or Open() to request
// a specific backend by name:
//
//	dev, err := backend.Default()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
//	out, err := blur.Blur(dev, img, 0, 2)
//
// # Available Backends
//
//   - "opencl": OpenCL device, all four memory strategies (opencl build tag)
//   - "wgpu": WGSL compute via gogpu/wgpu, buffer strategies only
//   - "cpu": software device emulating work-groups (always available)
package backend
