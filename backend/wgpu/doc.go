// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

// Package wgpu runs the blur programs as WGSL compute shaders using the
// gogpu/wgpu Pure Go WebGPU implementation.
//
// # Programs
//
// Two programs are available:
//
//   - linear: every tap is read from the source storage buffer
//   - tiled: each workgroup stages its span plus the kernel halo in
//     workgroup memory before summing
//
// WGSL fixes workgroup sizes and workgroup array lengths at compile time,
// so ROW_LOCAL_SIZE, COLUMN_LOCAL_SIZE and (for tiled) KERNEL_LENGTH are
// substituted into the template before naga compiles it to SPIR-V. A
// dispatch must use exactly the local size its program was built with.
//
// The image programs are not provided: the device reports neither
// images nor image-from-buffer, and pipelines using them fail their
// capability check before any allocation.
//
// # Synchronization
//
// Each Enqueue records one compute pass into its own command buffer and
// submits it with a fence. ReadBuffer and Finish wait on every pending
// fence in submission order. Event timestamps are host-side times from
// submit to fence signal.
//
// # Build Tags
//
// The package is excluded with the nogpu build tag.
package wgpu
