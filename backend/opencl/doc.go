// Package opencl runs the blur programs on an OpenCL 1.2 device through
// github.com/jgillich/go-opencl.
//
// All four programs are provided. Image programs need device image
// support; image_buffer additionally needs cl_khr_image2d_from_buffer.
// The command queue is in-order with profiling enabled, so profiled
// dispatches report device timestamps.
//
// The device is compiled only with the opencl build tag, which requires
// the OpenCL headers and an ICD loader:
//
//	go build -tags opencl ./...
//
// Without the tag the package registers a backend that always fails with
// ErrUnavailable.
package opencl
