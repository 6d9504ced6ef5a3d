// Package gpucore defines the compute device contract used by the blur
// pipeline.
//
// A [Backend] is a device with a single in-order command queue. The blur
// package never talks to a concrete API; it builds programs, creates memory
// objects and enqueues dispatches through this interface, and each backend
// translates those calls to its own API:
//
//	               +-----------------+
//	               |      blur       |
//	               |   (Pipeline)    |
//	               +--------+--------+
//	                        |
//	        +---------------+---------------+
//	        |               |               |
//	+-------v------+ +------v-------+ +-----v--------+
//	| backend/cpu  | | backend/wgpu | |backend/opencl|
//	| (goroutines) | | (wgpu/hal)   | | (go-opencl)  |
//	+--------------+ +--------------+ +--------------+
//
// # Resources
//
// Programs and memory objects are referred to by opaque IDs. Memory objects
// carry an [Access] mode fixed at creation. Images always hold four float32
// channels per pixel. A buffer may be reinterpreted as an image through
// [Backend.CreateImageFromBuffer] when the device reports
// [CapImageFromBuffer]; the image then aliases the buffer's storage and its
// row pitch must be a multiple of [Capabilities.ImagePitchAlignment].
//
// # Errors
//
// Device failures are reported as [*StatusError] carrying an OpenCL style
// status code, and failed program builds as [*BuildError] carrying the
// compiler log.
package gpucore
