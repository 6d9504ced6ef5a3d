// Package blur applies a separable Gaussian blur to float images on a
// compute device.
//
// # Overview
//
// A blur is two one dimensional convolutions with the same kernel: a row
// pass from the source image into an intermediate image, then a column pass
// from the intermediate into the output. Taps that fall outside the image
// replicate the nearest edge pixel.
//
//	k := blur.GenerateKernel(radius, sigma)
//	p, err := blur.New(cpu.New(), blur.WithStrategy(blur.TiledLocalCache))
//	if err != nil { ... }
//	res, err := p.Run(img, k)
//
// # Kernels
//
// [GenerateKernel] builds a normalized Gaussian kernel. A radius of at
// least 1 fixes the width at 2*floor(radius)+1; otherwise [OptimalWidth]
// picks the smallest width whose edge tap is still perceptible at 16-bit
// precision. The Gaussian of deviation 3*sigma is sampled three times per
// tap and folded.
//
// # Memory strategies
//
// A [Strategy] decides how images live on the device:
//   - [LinearBuffer]: plain buffers, taps read from device memory
//   - [Image2D]: 2D images, taps read through edge-clamped sampling
//   - [TiledLocalCache]: buffers, taps read from a work-group local cache
//   - [BufferBackedImage]: buffers with an aligned row pitch read as images
//
// All strategies produce the same result within float rounding. Strategies
// that need optional device features fail with [ErrCapabilityMissing]
// before anything is allocated.
//
// # Backends
//
// The device is any [gpucore.Backend]. The repository provides a goroutine
// based software device (backend/cpu), a WebGPU device through gogpu/wgpu
// (backend/wgpu) and an OpenCL device (backend/opencl, built with the
// opencl tag).
package blur
