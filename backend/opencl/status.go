// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build opencl

package opencl

import (
	"errors"

	"github.com/jgillich/go-opencl/cl"

	"github.com/gogpu/blur/gpucore"
)

var statusByError = []struct {
	err    error
	status gpucore.Status
}{
	{cl.ErrDeviceNotFound, gpucore.StatusDeviceNotFound},
	{cl.ErrDeviceNotAvailable, gpucore.StatusDeviceNotAvailable},
	{cl.ErrMemObjectAllocationFailure, gpucore.StatusMemObjectAllocationFailure},
	{cl.ErrOutOfResources, gpucore.StatusOutOfResources},
	{cl.ErrOutOfHostMemory, gpucore.StatusOutOfHostMemory},
	{cl.ErrImageFormatNotSupported, gpucore.StatusImageFormatNotSupported},
	{cl.ErrBuildProgramFailure, gpucore.StatusBuildProgramFailure},
	{cl.ErrInvalidValue, gpucore.StatusInvalidValue},
	{cl.ErrInvalidMemObject, gpucore.StatusInvalidMemObject},
	{cl.ErrInvalidImageSize, gpucore.StatusInvalidImageSize},
	{cl.ErrInvalidKernelName, gpucore.StatusInvalidKernelName},
	{cl.ErrInvalidArgValue, gpucore.StatusInvalidArgValue},
	{cl.ErrInvalidArgSize, gpucore.StatusInvalidArgSize},
	{cl.ErrInvalidKernelArgs, gpucore.StatusInvalidKernelArgs},
	{cl.ErrInvalidWorkGroupSize, gpucore.StatusInvalidWorkGroupSize},
	{cl.ErrInvalidOperation, gpucore.StatusInvalidOperation},
	{cl.ErrInvalidBufferSize, gpucore.StatusInvalidBufferSize},
	{cl.ErrInvalidGlobalWorkSize, gpucore.StatusInvalidGlobalWorkSize},
}

// wrap converts a binding error into a *gpucore.StatusError.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, e := range statusByError {
		if errors.Is(err, e.err) {
			return gpucore.Errorf(e.status, op, "%v", err)
		}
	}
	var other cl.ErrOther
	if errors.As(err, &other) {
		return gpucore.Errorf(gpucore.Status(other), op, "%v", err) //nolint:gosec // OpenCL status code
	}
	return gpucore.Errorf(gpucore.StatusOutOfResources, op, "%v", err)
}
