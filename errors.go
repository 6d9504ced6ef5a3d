package blur

import (
	"errors"
	"fmt"

	"github.com/gogpu/blur/gpucore"
)

// Pipeline errors. Typed errors below match these with errors.Is.
var (
	// ErrCapabilityMissing is returned when the device lacks a feature the
	// selected strategy requires. Nothing is allocated or built.
	ErrCapabilityMissing = errors.New("blur: device capability missing")

	// ErrBuildFailed is returned when the device program fails to compile.
	ErrBuildFailed = errors.New("blur: program build failed")

	// ErrAllocationFailed is returned when the device cannot allocate a
	// memory object.
	ErrAllocationFailed = errors.New("blur: allocation failed")

	// ErrDispatchFailed is returned when a convolution pass is rejected or
	// fails on the device.
	ErrDispatchFailed = errors.New("blur: dispatch failed")

	// ErrInvalidImage is returned for images with bad dimensions or layout.
	ErrInvalidImage = errors.New("blur: invalid image")

	// ErrInvalidConfig is returned for invalid pipeline options.
	ErrInvalidConfig = errors.New("blur: invalid configuration")
)

// CapabilityError reports a device feature required by a strategy.
type CapabilityError struct {
	Strategy   Strategy
	Capability gpucore.Capability
	Device     string

	// Detail is set when the capability is advertised but unusable.
	Detail string
}

func (e *CapabilityError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("blur: strategy %s requires %q, unusable on %s: %s", e.Strategy, e.Capability, e.Device, e.Detail)
	}
	return fmt.Sprintf("blur: strategy %s requires %q, not supported by %s", e.Strategy, e.Capability, e.Device)
}

// Is reports whether target is ErrCapabilityMissing.
func (e *CapabilityError) Is(target error) bool { return target == ErrCapabilityMissing }

// BuildError carries the compiler log of a failed program build.
type BuildError struct {
	Program string
	Log     string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("blur: build of program %q failed:\n%s", e.Program, e.Log)
}

// Is reports whether target is ErrBuildFailed.
func (e *BuildError) Is(target error) bool { return target == ErrBuildFailed }

// AllocationError reports a memory object the device could not allocate.
type AllocationError struct {
	Resource string
	Bytes    int
	Err      error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("blur: allocate %s (%d bytes): %v", e.Resource, e.Bytes, e.Err)
}

// Is reports whether target is ErrAllocationFailed.
func (e *AllocationError) Is(target error) bool { return target == ErrAllocationFailed }

func (e *AllocationError) Unwrap() error { return e.Err }

// DispatchError reports a failed convolution pass.
type DispatchError struct {
	Pass Pass
	Code gpucore.Status
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("blur: %s pass failed (status %d): %v", e.Pass, int32(e.Code), e.Err)
}

// Is reports whether target is ErrDispatchFailed.
func (e *DispatchError) Is(target error) bool { return target == ErrDispatchFailed }

func (e *DispatchError) Unwrap() error { return e.Err }

// buildError converts a backend build failure.
func buildError(program string, err error) error {
	var be *gpucore.BuildError
	if errors.As(err, &be) {
		return &BuildError{Program: program, Log: be.Log}
	}
	return &BuildError{Program: program, Log: err.Error()}
}

// dispatchError converts a backend enqueue or finish failure.
func dispatchError(pass Pass, err error) error {
	code, _ := gpucore.StatusOf(err)
	return &DispatchError{Pass: pass, Code: code, Err: err}
}
