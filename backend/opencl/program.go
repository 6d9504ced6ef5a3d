// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build opencl

package opencl

import (
	"errors"

	"github.com/jgillich/go-opencl/cl"

	"github.com/gogpu/blur/gpucore"
)

// BuildProgram compiles a named program with defines and creates its
// kernels.
func (d *Device) BuildProgram(desc gpucore.ProgramDesc) (gpucore.ProgramID, error) {
	const op = "build program"
	src, err := programSource(desc.Name, d.caps)
	if err != nil {
		return gpucore.InvalidID, &gpucore.BuildError{Program: desc.Name, Log: err.Error()}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusDeviceNotAvailable, op, "device closed")
	}

	prog, err := d.context.CreateProgramWithSource([]string{src})
	if err != nil {
		return gpucore.InvalidID, wrap(op, err)
	}
	p := &program{name: desc.Name, prog: prog, kernels: make(map[string]*cl.Kernel)}

	options := buildOptions(desc.Defines)
	if err := prog.BuildProgram([]*cl.Device{d.device}, options); err != nil {
		releaseProgram(p)
		var buildErr cl.BuildError
		if errors.As(err, &buildErr) {
			return gpucore.InvalidID, &gpucore.BuildError{Program: desc.Name, Log: string(buildErr)}
		}
		return gpucore.InvalidID, &gpucore.BuildError{Program: desc.Name, Log: err.Error()}
	}

	for _, entry := range entryPoints {
		k, err := prog.CreateKernel(entry)
		if err != nil {
			releaseProgram(p)
			return gpucore.InvalidID, wrap(op, err)
		}
		p.kernels[entry] = k
	}

	id := gpucore.ProgramID(d.newID())
	d.programs[id] = p
	d.log().Debug("opencl: program built", "id", id, "program", desc.Name, "options", options)
	return id, nil
}

func releaseProgram(p *program) {
	for _, k := range p.kernels {
		k.Release()
	}
	p.prog.Release()
}

// ReleaseProgram releases a built program.
func (d *Device) ReleaseProgram(id gpucore.ProgramID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.programs[id]; ok {
		delete(d.programs, id)
		releaseProgram(p)
	}
}
