package gpucore

import (
	"errors"
	"fmt"
)

// Status is a device status code. Values follow the OpenCL numbering so
// that codes reported by different backends compare equal.
type Status int32

// Status codes.
const (
	StatusSuccess                    Status = 0
	StatusDeviceNotFound             Status = -1
	StatusDeviceNotAvailable         Status = -2
	StatusMemObjectAllocationFailure Status = -4
	StatusOutOfResources             Status = -5
	StatusOutOfHostMemory            Status = -6
	StatusProfilingInfoNotAvailable  Status = -7
	StatusImageFormatNotSupported    Status = -10
	StatusBuildProgramFailure        Status = -11
	StatusInvalidValue               Status = -30
	StatusInvalidMemObject           Status = -38
	StatusInvalidImageSize           Status = -40
	StatusInvalidProgram             Status = -44
	StatusInvalidProgramExecutable   Status = -45
	StatusInvalidKernelName          Status = -46
	StatusInvalidArgIndex            Status = -49
	StatusInvalidArgValue            Status = -50
	StatusInvalidArgSize             Status = -51
	StatusInvalidKernelArgs          Status = -52
	StatusInvalidWorkDimension       Status = -53
	StatusInvalidWorkGroupSize       Status = -54
	StatusInvalidOperation           Status = -59
	StatusInvalidBufferSize          Status = -61
	StatusInvalidGlobalWorkSize      Status = -63
)

var statusNames = map[Status]string{
	StatusSuccess:                    "SUCCESS",
	StatusDeviceNotFound:             "DEVICE_NOT_FOUND",
	StatusDeviceNotAvailable:         "DEVICE_NOT_AVAILABLE",
	StatusMemObjectAllocationFailure: "MEM_OBJECT_ALLOCATION_FAILURE",
	StatusOutOfResources:             "OUT_OF_RESOURCES",
	StatusOutOfHostMemory:            "OUT_OF_HOST_MEMORY",
	StatusProfilingInfoNotAvailable:  "PROFILING_INFO_NOT_AVAILABLE",
	StatusImageFormatNotSupported:    "IMAGE_FORMAT_NOT_SUPPORTED",
	StatusBuildProgramFailure:        "BUILD_PROGRAM_FAILURE",
	StatusInvalidValue:               "INVALID_VALUE",
	StatusInvalidMemObject:           "INVALID_MEM_OBJECT",
	StatusInvalidImageSize:           "INVALID_IMAGE_SIZE",
	StatusInvalidProgram:             "INVALID_PROGRAM",
	StatusInvalidProgramExecutable:   "INVALID_PROGRAM_EXECUTABLE",
	StatusInvalidKernelName:          "INVALID_KERNEL_NAME",
	StatusInvalidArgIndex:            "INVALID_ARG_INDEX",
	StatusInvalidArgValue:            "INVALID_ARG_VALUE",
	StatusInvalidArgSize:             "INVALID_ARG_SIZE",
	StatusInvalidKernelArgs:          "INVALID_KERNEL_ARGS",
	StatusInvalidWorkDimension:       "INVALID_WORK_DIMENSION",
	StatusInvalidWorkGroupSize:       "INVALID_WORK_GROUP_SIZE",
	StatusInvalidOperation:           "INVALID_OPERATION",
	StatusInvalidBufferSize:          "INVALID_BUFFER_SIZE",
	StatusInvalidGlobalWorkSize:      "INVALID_GLOBAL_WORK_SIZE",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS(%d)", int32(s))
}

// IsAllocation reports whether the status denotes a failed allocation.
func (s Status) IsAllocation() bool {
	switch s {
	case StatusMemObjectAllocationFailure, StatusOutOfHostMemory, StatusInvalidBufferSize:
		return true
	}
	return false
}

// StatusError is a device call that returned a non-success status.
type StatusError struct {
	Status Status
	Op     string
	Detail string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("gpucore: %s: %s (%d)", e.Op, e.Status, int32(e.Status))
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Errorf returns a *StatusError with a formatted detail message.
func Errorf(status Status, op, format string, args ...any) error {
	return &StatusError{Status: status, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// StatusOf extracts the status code of err, if any.
func StatusOf(err error) (Status, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status, true
	}
	var be *BuildError
	if errors.As(err, &be) {
		return StatusBuildProgramFailure, true
	}
	return StatusSuccess, false
}

// BuildError is a program that failed to compile.
type BuildError struct {
	Program string
	Log     string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("gpucore: build %q failed:\n%s", e.Program, e.Log)
}
