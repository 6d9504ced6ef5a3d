// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package wgpu

import (
	"encoding/binary"
	"strconv"
	"strings"
	"testing"

	"github.com/gogpu/naga"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/blur"
	"github.com/gogpu/blur/backend/cpu"
	"github.com/gogpu/blur/gpucore"
)

func testDefines(klen int) map[string]string {
	return map[string]string{
		"CLPixelType":       "float4",
		"KERNEL_LENGTH":     strconv.Itoa(klen),
		"ROW_LOCAL_SIZE":    "32",
		"COLUMN_LOCAL_SIZE": "16",
	}
}

func TestExpandSubstitutesSizes(t *testing.T) {
	wgsl, l, err := expand("tiled", testDefines(5))
	require.NoError(t, err)
	assert.Equal(t, layout{rowLocal: 32, columnLocal: 16, kernelLen: 5}, l)
	assert.Contains(t, wgsl, "@workgroup_size(32, 1, 1)")
	assert.Contains(t, wgsl, "@workgroup_size(1, 16, 1)")
	assert.Contains(t, wgsl, "array<vec4<f32>, 37>")
	assert.Contains(t, wgsl, "array<vec4<f32>, 21>")
	assert.Contains(t, wgsl, "let span = 32u;")
	assert.NotContains(t, wgsl, "LOCAL_SIZE")
	assert.NotContains(t, wgsl, "CACHE_SIZE")
}

func TestExpandLinearIgnoresKernelLength(t *testing.T) {
	defines := testDefines(5)
	delete(defines, "KERNEL_LENGTH")
	wgsl, l, err := expand("linear", defines)
	require.NoError(t, err)
	assert.Zero(t, l.kernelLen)
	assert.NotContains(t, wgsl, "var<workgroup>")
}

func TestExpandErrors(t *testing.T) {
	tests := []struct {
		name    string
		program string
		edit    func(map[string]string)
		want    []string
	}{
		{"unknown program", "box", nil, []string{`no program named "box"`}},
		{"image program", "image2d", nil, []string{"requires images"}},
		{"image buffer program", "image_buffer", nil, []string{"requires cl_khr_image2d_from_buffer"}},
		{"missing sizes", "linear", func(m map[string]string) {
			delete(m, "ROW_LOCAL_SIZE")
			delete(m, "COLUMN_LOCAL_SIZE")
		}, []string{"ROW_LOCAL_SIZE is not defined", "COLUMN_LOCAL_SIZE is not defined"}},
		{"bad kernel length", "tiled", func(m map[string]string) { m["KERNEL_LENGTH"] = "0" },
			[]string{"KERNEL_LENGTH=0 is not a positive integer"}},
		{"pixel type", "linear", func(m map[string]string) { m["CLPixelType"] = "float3" },
			[]string{"CLPixelType=float3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defines := testDefines(5)
			if tt.edit != nil {
				tt.edit(defines)
			}
			_, _, err := expand(tt.program, defines)
			require.Error(t, err)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestPackParams(t *testing.T) {
	args := []gpucore.Arg{
		gpucore.Mem(1), gpucore.Uint(3), gpucore.Uint(0x7), gpucore.Mem(2),
		gpucore.Uint(9), gpucore.Uint(640), gpucore.Uint(480), gpucore.Uint(2560), gpucore.Mem(3),
	}
	out := packParams(args)
	require.Len(t, out, paramsSize)
	got := make([]uint32, paramsSize/4)
	for i := range got {
		got[i] = binary.LittleEndian.Uint32(out[i*4:])
	}
	assert.Equal(t, []uint32{3, 0x7, 9, 640, 480, 2560, 0, 0}, got)
}

func TestFloatPacking(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 65535}
	data := packFloats(in, 20)
	require.Len(t, data, 20)
	out := make([]float32, len(in))
	unpackFloats(data, out)
	assert.Equal(t, in, out)
}

// TestShaderCompilation compiles both templates with naga.
func TestShaderCompilation(t *testing.T) {
	for _, name := range []string{"linear", "tiled"} {
		t.Run(name, func(t *testing.T) {
			wgsl, _, err := expand(name, testDefines(5))
			require.NoError(t, err)
			spirv, err := naga.Compile(wgsl)
			if err != nil && strings.Contains(err.Error(), "not yet implemented") {
				t.Skipf("naga feature not yet implemented: %v", err)
			}
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(spirv), 4)
			assert.Equal(t, uint32(0x07230203), binary.LittleEndian.Uint32(spirv))
		})
	}
}

// newTestDevice opens a GPU device or skips the test.
func newTestDevice(t *testing.T) *Device {
	t.Helper()
	d, err := New()
	if err != nil {
		t.Skipf("GPU not available: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDeviceRejectsImages(t *testing.T) {
	d := newTestDevice(t)
	caps := d.Capabilities()
	assert.True(t, caps.Has(gpucore.CapLocalMemory))
	assert.False(t, caps.Has(gpucore.CapImages))

	_, err := d.CreateImage(gpucore.ImageDesc{Width: 4, Height: 4})
	code, _ := gpucore.StatusOf(err)
	assert.Equal(t, gpucore.StatusImageFormatNotSupported, code)

	_, err = d.BuildProgram(gpucore.ProgramDesc{Name: "image2d", Defines: testDefines(5)})
	var be *gpucore.BuildError
	require.ErrorAs(t, err, &be)
}

func TestDeviceBufferRoundTrip(t *testing.T) {
	d := newTestDevice(t)
	data := []float32{1, 2, 3, 4, 5, 6, 7}
	id, err := d.CreateBuffer(gpucore.BufferDesc{Label: "test", Size: 28, Access: gpucore.ReadWrite, Data: data})
	require.NoError(t, err)
	defer d.Release(id)

	got := make([]float32, len(data))
	require.NoError(t, d.ReadBuffer(id, got))
	assert.Equal(t, data, got)

	_, err = d.CreateBuffer(gpucore.BufferDesc{Label: "empty"})
	code, _ := gpucore.StatusOf(err)
	assert.Equal(t, gpucore.StatusInvalidBufferSize, code)
}

func TestDeviceMatchesSoftware(t *testing.T) {
	d := newTestDevice(t)
	src := blur.NewImage(37, 21)
	for y := range src.Height {
		for x := range src.Width {
			src.Set(x, y, blur.Pixel{float32(x * 7 % 256), float32(y * 13 % 256), float32((x + y) % 256), 255})
		}
	}
	k := blur.GenerateKernel(3, 1.5)

	ref := cpu.New()
	t.Cleanup(func() { _ = ref.Close() })
	want, err := blur.New(ref, blur.WithWorkGroupSize(16, 16))
	require.NoError(t, err)
	wantRes, err := want.Run(src, k)
	require.NoError(t, err)

	for _, s := range []blur.Strategy{blur.LinearBuffer, blur.TiledLocalCache} {
		t.Run(s.String(), func(t *testing.T) {
			p, err := blur.New(d, blur.WithStrategy(s), blur.WithWorkGroupSize(16, 16))
			require.NoError(t, err)
			res, err := p.Run(src, k)
			require.NoError(t, err)
			for i, v := range res.Image.Pix {
				require.InDelta(t, wantRes.Image.Pix[i], v, 1e-2, "index %d", i)
			}
		})
	}
}

func TestDeviceWorkGroupMismatch(t *testing.T) {
	d := newTestDevice(t)
	prog, err := d.BuildProgram(gpucore.ProgramDesc{Name: "linear", Defines: testDefines(5)})
	require.NoError(t, err)
	defer d.ReleaseProgram(prog)

	_, err = d.Enqueue(gpucore.DispatchDesc{
		Program: prog,
		Entry:   "BlurRow",
		Global:  gpucore.NDRange{64, 4},
		Local:   gpucore.NDRange{16, 1},
	})
	code, _ := gpucore.StatusOf(err)
	assert.Equal(t, gpucore.StatusInvalidWorkGroupSize, code)

	_, err = d.Enqueue(gpucore.DispatchDesc{Program: prog, Entry: "Blur", Global: gpucore.NDRange{32, 1}, Local: gpucore.NDRange{32, 1}})
	code, _ = gpucore.StatusOf(err)
	assert.Equal(t, gpucore.StatusInvalidKernelName, code)
}
