// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package wgpu

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/blur/gpucore"
)

// programSource is a WGSL template. Upper-case define names in the text are
// replaced with their values before compilation.
type programSource struct {
	wgsl string

	// tiled programs size their workgroup caches from KERNEL_LENGTH.
	tiled bool
}

var sources = map[string]programSource{
	"linear": {wgsl: linearWGSL},
	"tiled":  {wgsl: tiledWGSL, tiled: true},
}

// unsupported names programs this device rejects, with the reason.
var unsupported = map[string]gpucore.Capability{
	"image2d":      gpucore.CapImages,
	"image_buffer": gpucore.CapImageFromBuffer,
}

// layout holds the build-time constants a dispatch is checked against.
type layout struct {
	rowLocal    int
	columnLocal int
	kernelLen   int // zero for untiled programs
}

// program is a built program: one shader module, one bind group layout
// and a compute pipeline per entry point.
type program struct {
	name       string
	layout     layout
	module     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipelines  map[string]hal.ComputePipeline
}

func positiveDefine(defines map[string]string, key string) (int, error) {
	v, ok := defines[key]
	if !ok {
		return 0, fmt.Errorf("error: %s is not defined", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("error: %s=%s is not a positive integer", key, v)
	}
	return n, nil
}

// expand resolves the template of a named program. Errors are returned as
// a build log.
func expand(name string, defines map[string]string) (string, layout, error) {
	src, ok := sources[name]
	if !ok {
		if c, known := unsupported[name]; known {
			return "", layout{}, fmt.Errorf("error: program %q requires %s", name, c)
		}
		return "", layout{}, fmt.Errorf("error: no program named %q", name)
	}

	var l layout
	var errs []string
	var err error
	if l.rowLocal, err = positiveDefine(defines, "ROW_LOCAL_SIZE"); err != nil {
		errs = append(errs, err.Error())
	}
	if l.columnLocal, err = positiveDefine(defines, "COLUMN_LOCAL_SIZE"); err != nil {
		errs = append(errs, err.Error())
	}
	if src.tiled {
		if l.kernelLen, err = positiveDefine(defines, "KERNEL_LENGTH"); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if v, ok := defines["CLPixelType"]; ok && v != "float4" {
		errs = append(errs, fmt.Sprintf("error: CLPixelType=%s is not supported, expected float4", v))
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return "", layout{}, fmt.Errorf("%s", strings.Join(errs, "\n"))
	}

	r := strings.NewReplacer(
		"ROW_CACHE_SIZE", strconv.Itoa(l.rowLocal+l.kernelLen),
		"COLUMN_CACHE_SIZE", strconv.Itoa(l.columnLocal+l.kernelLen),
		"ROW_LOCAL_SIZE", strconv.Itoa(l.rowLocal),
		"COLUMN_LOCAL_SIZE", strconv.Itoa(l.columnLocal),
	)
	return r.Replace(src.wgsl), l, nil
}

// compileSPIRV compiles WGSL to SPIR-V words.
func compileSPIRV(wgsl string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, err
	}
	// SPIR-V is little-endian 32-bit words
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// BuildProgram expands, compiles and links a named program.
func (d *Device) BuildProgram(desc gpucore.ProgramDesc) (gpucore.ProgramID, error) {
	wgsl, l, err := expand(desc.Name, desc.Defines)
	if err != nil {
		return gpucore.InvalidID, &gpucore.BuildError{Program: desc.Name, Log: err.Error()}
	}
	if l.kernelLen > 0 {
		need := (max(l.rowLocal, l.columnLocal) + l.kernelLen) * gpucore.PixelSize
		if need > d.caps.LocalMemorySize {
			return gpucore.InvalidID, &gpucore.BuildError{
				Program: desc.Name,
				Log:     fmt.Sprintf("error: workgroup cache of %d bytes exceeds %d", need, d.caps.LocalMemorySize),
			}
		}
	}
	words, err := compileSPIRV(wgsl)
	if err != nil {
		return gpucore.InvalidID, &gpucore.BuildError{Program: desc.Name, Log: err.Error()}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusDeviceNotAvailable, "build program", "device closed")
	}

	p := &program{name: desc.Name, layout: l, pipelines: make(map[string]hal.ComputePipeline)}
	if err := d.createPipelines(p, words); err != nil {
		d.destroyProgram(p)
		return gpucore.InvalidID, &gpucore.BuildError{Program: desc.Name, Log: err.Error()}
	}

	id := gpucore.ProgramID(d.newID())
	d.programs[id] = p
	d.log().Debug("wgpu: program built", "id", id, "program", desc.Name,
		"row_local", l.rowLocal, "column_local", l.columnLocal, "kernel_length", l.kernelLen)
	return id, nil
}

func (d *Device) createPipelines(p *program, words []uint32) error {
	var err error
	p.module, err = d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  p.name,
		Source: hal.ShaderSource{SPIRV: words},
	})
	if err != nil {
		return fmt.Errorf("create shader module: %w", err)
	}

	p.bindLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: p.name + "_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 3, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}

	p.pipeLayout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            p.name + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}

	for _, entry := range []string{"BlurRow", "BlurColumn"} {
		pipe, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:   p.name + "_" + entry,
			Layout:  p.pipeLayout,
			Compute: hal.ComputeState{Module: p.module, EntryPoint: entry},
		})
		if err != nil {
			return fmt.Errorf("create %s pipeline: %w", entry, err)
		}
		p.pipelines[entry] = pipe
	}
	return nil
}

// destroyProgram releases GPU objects of p. Callers hold d.mu.
func (d *Device) destroyProgram(p *program) {
	for _, pipe := range p.pipelines {
		d.device.DestroyComputePipeline(pipe)
	}
	if p.pipeLayout != nil {
		d.device.DestroyPipelineLayout(p.pipeLayout)
	}
	if p.bindLayout != nil {
		d.device.DestroyBindGroupLayout(p.bindLayout)
	}
	if p.module != nil {
		d.device.DestroyShaderModule(p.module)
	}
}

// ReleaseProgram releases a built program.
func (d *Device) ReleaseProgram(id gpucore.ProgramID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.programs[id]; ok {
		delete(d.programs, id)
		d.destroyProgram(p)
	}
}
