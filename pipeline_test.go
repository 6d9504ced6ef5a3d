package blur

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/blur/backend/cpu"
	"github.com/gogpu/blur/gpucore"
)

func newDevice(t *testing.T, opts ...cpu.Option) *cpu.Device {
	t.Helper()
	d := cpu.New(append([]cpu.Option{cpu.WithWorkers(4)}, opts...)...)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// fakeBackend wraps a software device and can fail selected operations.
type fakeBackend struct {
	*cpu.Device

	buildLog string
	logger   *slog.Logger
	builds   int
}

func (f *fakeBackend) BuildProgram(desc gpucore.ProgramDesc) (gpucore.ProgramID, error) {
	f.builds++
	if f.buildLog != "" {
		return gpucore.InvalidID, &gpucore.BuildError{Program: desc.Name, Log: f.buildLog}
	}
	return f.Device.BuildProgram(desc)
}

func (f *fakeBackend) SetLogger(l *slog.Logger) {
	f.logger = l
	f.Device.SetLogger(l)
}

// patternImage returns an image with smoothly varying, distinct channels.
func patternImage(w, h int) *Image {
	img := NewImage(w, h)
	for y := range h {
		for x := range w {
			img.Set(x, y, Pixel{
				float32((x*37 + y*11) % 256),
				float32((x*x + 3*y) % 256),
				float32((y*y*5 + x) % 256),
				float32(128 + (x*y)%128),
			})
		}
	}
	return img
}

// referenceBlur is a direct two-pass convolution with edge replication.
func referenceBlur(src *Image, k Kernel, mask uint32) *Image {
	pass := func(in *Image, horizontal bool) *Image {
		out := NewImage(in.Width, in.Height)
		c := k.Center()
		for y := range in.Height {
			for x := range in.Width {
				var sum [4]float64
				for i := range k.Len() {
					sx, sy := x, y
					if horizontal {
						sx = min(max(x+i-c, 0), in.Width-1)
					} else {
						sy = min(max(y+i-c, 0), in.Height-1)
					}
					p := in.At(sx, sy)
					for ch := range 4 {
						sum[ch] += float64(p[ch]) * float64(k.At(i))
					}
				}
				center := in.At(x, y)
				var px Pixel
				for ch := range 4 {
					if mask&(1<<ch) != 0 {
						px[ch] = float32(sum[ch])
					} else {
						px[ch] = center[ch]
					}
				}
				out.Set(x, y, px)
			}
		}
		return out
	}
	return pass(pass(src, true), false)
}

func requireImagesNear(t *testing.T, want, got *Image, delta float64) {
	t.Helper()
	require.Equal(t, want.Width, got.Width)
	require.Equal(t, want.Height, got.Height)
	for y := range want.Height {
		for x := range want.Width {
			w, g := want.At(x, y), got.At(x, y)
			for c := range 4 {
				if math.Abs(float64(w[c]-g[c])) > delta {
					require.Failf(t, "pixel mismatch", "(%d,%d) channel %d: want %v, got %v", x, y, c, w[c], g[c])
				}
			}
		}
	}
}

func requireNoLeaks(t *testing.T, d *cpu.Device) {
	t.Helper()
	mems, progs := d.LiveObjects()
	assert.Zero(t, mems, "live memory objects")
	assert.Zero(t, progs, "live programs")
	assert.Zero(t, d.Allocated(), "allocated bytes")
}

// =============================================================================
// Convolution results
// =============================================================================

func TestFlatImageUnchanged(t *testing.T) {
	for _, sigma := range []float64{1, 2} {
		k := GenerateKernel(0, sigma)
		for _, s := range Strategies() {
			t.Run(fmt.Sprintf("sigma%g/%s", sigma, s), func(t *testing.T) {
				d := newDevice(t)
				src := NewImage(4, 4)
				src.Fill(Pixel{255, 255, 255, 255})

				p, err := New(d, WithStrategy(s), WithWorkGroupSize(4, 4))
				require.NoError(t, err)
				res, err := p.Run(src, k)
				require.NoError(t, err)
				require.NotNil(t, res.Image)

				for y := range 4 {
					for x := range 4 {
						for c, v := range res.Image.At(x, y) {
							assert.InDelta(t, 255, v, 0.01, "(%d,%d) channel %d", x, y, c)
						}
					}
				}
				requireNoLeaks(t, d)
			})
		}
	}
}

func TestMatchesReference(t *testing.T) {
	src := patternImage(23, 17)
	k := GenerateKernel(3, 1.5)
	want := referenceBlur(src, k, 0xF)

	for _, s := range Strategies() {
		t.Run(s.String(), func(t *testing.T) {
			d := newDevice(t)
			p, err := New(d, WithStrategy(s), WithWorkGroupSize(8, 8))
			require.NoError(t, err)

			res, err := p.Run(src, k)
			require.NoError(t, err)
			requireImagesNear(t, want, res.Image, 1e-3)
			requireNoLeaks(t, d)
		})
	}
}

func TestStrategiesAgree(t *testing.T) {
	src := patternImage(31, 9)
	k := GenerateKernel(0, 2)

	var base *Image
	for _, s := range Strategies() {
		d := newDevice(t)
		res, err := func() (*Result, error) {
			p, err := New(d, WithStrategy(s), WithWorkGroupSize(16, 4))
			if err != nil {
				return nil, err
			}
			return p.Run(src, k)
		}()
		require.NoError(t, err, s.String())
		if base == nil {
			base = res.Image
			continue
		}
		requireImagesNear(t, base, res.Image, 1e-3)
	}
}

func TestPaddedSourcePitch(t *testing.T) {
	tight := patternImage(10, 6)
	padded, err := tight.Repack(10*PixelSize + 48)
	require.NoError(t, err)
	k := GenerateKernel(2, 1)
	want := referenceBlur(tight, k, 0xF)

	for _, s := range Strategies() {
		t.Run(s.String(), func(t *testing.T) {
			d := newDevice(t)
			p, err := New(d, WithStrategy(s), WithWorkGroupSize(4, 4))
			require.NoError(t, err)

			res, err := p.Run(padded, k)
			require.NoError(t, err)
			assert.Equal(t, padded.RowPitch, res.Image.RowPitch)
			requireImagesNear(t, want, res.Image, 1e-3)
		})
	}
}

func TestBrightSpotSymmetric(t *testing.T) {
	const n = 9
	src := NewImage(n, n)
	src.Set(4, 4, Pixel{1, 1, 1, 1})
	k := GenerateKernel(0, 1) // 9 taps on a 9x9 image

	p, err := New(newDevice(t), WithStrategy(TiledLocalCache), WithWorkGroupSize(4, 4))
	require.NoError(t, err)
	res, err := p.Run(src, k)
	require.NoError(t, err)
	out := res.Image

	var sum float64
	for y := range n {
		for x := range n {
			sum += float64(out.At(x, y)[0])
		}
	}
	assert.InDelta(t, 1.0, sum, 1e-4)

	for d := 1; d <= 4; d++ {
		assert.InDelta(t, out.At(4+d, 4)[0], out.At(4-d, 4)[0], 1e-6)
		assert.InDelta(t, out.At(4, 4+d)[0], out.At(4, 4-d)[0], 1e-6)
		assert.InDelta(t, out.At(4+d, 4)[0], out.At(4, 4+d)[0], 1e-6)
		assert.Less(t, out.At(4+d, 4)[0], out.At(4+d-1, 4)[0])
	}
}

func TestBrightSpotNearEdge(t *testing.T) {
	const n = 8
	src := NewImage(n, n)
	src.Set(4, 4, Pixel{255, 255, 255, 255})
	k := GenerateKernel(0, 1)
	require.Equal(t, 9, k.Len())
	c := k.Center()

	// The row and column passes are separable: out(x,y) = 255*k[x-4+c]*k[y-4+c].
	expected := func(x, y int) float64 {
		return 255 * float64(k.At(x-4+c)) * float64(k.At(y-4+c))
	}

	for _, s := range Strategies() {
		t.Run(s.String(), func(t *testing.T) {
			d := newDevice(t)
			p, err := New(d, WithStrategy(s), WithWorkGroupSize(4, 4))
			require.NoError(t, err)
			res, err := p.Run(src, k)
			require.NoError(t, err)
			out := res.Image

			for y := range n {
				for x := range n {
					for ch, v := range out.At(x, y) {
						assert.InDelta(t, expected(x, y), v, 1e-3, "(%d,%d) channel %d", x, y, ch)
					}
				}
			}

			// Taps past the last row and column replicate the zero edge pixels.
			assert.InDelta(t, 255*float64(k.At(c+3))*float64(k.At(c)), out.At(7, 4)[0], 1e-3)
			assert.InDelta(t, 255*float64(k.At(c))*float64(k.At(c+3)), out.At(4, 7)[0], 1e-3)

			// Each row's profile follows the 1D kernel.
			var rowSum float64
			for x := range n {
				rowSum += float64(out.At(x, 4)[0])
			}
			var kSum float64
			for x := range n {
				kSum += float64(k.At(x - 4 + c))
			}
			assert.InDelta(t, 255*float64(k.At(c))*kSum, rowSum, 1e-2)
			requireNoLeaks(t, d)
		})
	}
}

func TestSourceNotModified(t *testing.T) {
	src := patternImage(8, 8)
	orig := src.Clone()

	_, err := Blur(newDevice(t), src, 2, 1, WithStrategy(BufferBackedImage), WithWorkGroupSize(4, 4))
	require.NoError(t, err)
	assert.Equal(t, orig.Pix, src.Pix)
}

func TestRGBPreservesAlpha(t *testing.T) {
	src := patternImage(12, 7)
	k := GenerateKernel(2, 1)

	for _, s := range Strategies() {
		t.Run(s.String(), func(t *testing.T) {
			d := newDevice(t)
			rgb, err := New(d, WithStrategy(s), WithPixelFormat(RGB), WithWorkGroupSize(4, 4))
			require.NoError(t, err)
			res, err := rgb.Run(src, k)
			require.NoError(t, err)

			requireImagesNear(t, referenceBlur(src, k, RGB.ChannelMask()), res.Image, 1e-3)
			for y := range src.Height {
				for x := range src.Width {
					assert.Equal(t, src.At(x, y)[3], res.Image.At(x, y)[3])
				}
			}
		})
	}
}

// =============================================================================
// Dispatch geometry and reporting
// =============================================================================

func TestDispatchExtents(t *testing.T) {
	d := newDevice(t)
	p, err := New(d, WithWorkGroupSize(8, 16))
	require.NoError(t, err)

	res, err := p.Run(NewImage(23, 17), GenerateKernel(1, 0.5))
	require.NoError(t, err)

	row, col := res.Dispatches[0], res.Dispatches[1]
	assert.Equal(t, RowPass, row.Pass)
	assert.Equal(t, "BlurRow", row.Entry)
	assert.Zero(t, row.LocalBytes)
	assert.Equal(t, gpucore.NDRange{24, 17}, row.Global)
	assert.Equal(t, gpucore.NDRange{8, 1}, row.Local)
	assert.Equal(t, ColumnPass, col.Pass)
	assert.Equal(t, "BlurColumn", col.Entry)
	assert.Equal(t, gpucore.NDRange{23, 32}, col.Global)
	assert.Equal(t, gpucore.NDRange{1, 16}, col.Local)
}

func TestTiledDispatchCarriesCache(t *testing.T) {
	d := newDevice(t)
	p, err := New(d, WithStrategy(TiledLocalCache), WithWorkGroupSize(8, 8))
	require.NoError(t, err)
	k := GenerateKernel(2, 1)

	res, err := p.Run(NewImage(9, 9), k)
	require.NoError(t, err)

	var local []gpucore.Arg
	for _, a := range res.Dispatches[0].Args {
		if a.Kind == gpucore.ArgLocal {
			local = append(local, a)
		}
	}
	require.Len(t, local, 1)
	assert.Equal(t, LocalCacheBytes(k.Len(), 8), local[0].Size)
	assert.Equal(t, LocalCacheBytes(k.Len(), 8), res.Dispatches[0].LocalBytes)
	assert.Equal(t, LocalCacheBytes(k.Len(), 8), res.Dispatches[1].LocalBytes)
}

func TestProfilingTimings(t *testing.T) {
	d := newDevice(t)

	p, err := New(d, WithProfiling(true))
	require.NoError(t, err)
	res, err := p.Run(patternImage(16, 16), GenerateKernel(1, 1))
	require.NoError(t, err)
	assert.True(t, res.Timings.Captured)
	assert.Equal(t, res.Timings.Row+res.Timings.Column, res.Timings.Total())

	p, err = New(d)
	require.NoError(t, err)
	res, err = p.Run(patternImage(16, 16), GenerateKernel(1, 1))
	require.NoError(t, err)
	assert.False(t, res.Timings.Captured)
}

func TestWriteOutputDisabled(t *testing.T) {
	d := newDevice(t)
	p, err := New(d, WithWriteOutput(false))
	require.NoError(t, err)

	res, err := p.Run(patternImage(8, 8), GenerateKernel(1, 1))
	require.NoError(t, err)
	assert.Nil(t, res.Image)
	assert.Equal(t, 3, res.Kernel.Len())
	requireNoLeaks(t, d)

	img, err := Blur(d, patternImage(8, 8), 1, 1, WithWriteOutput(false))
	require.NoError(t, err)
	assert.Nil(t, img)
}

// =============================================================================
// Errors
// =============================================================================

func TestCapabilityMissing(t *testing.T) {
	tests := []struct {
		strategy Strategy
		disable  gpucore.Capability
	}{
		{Image2D, gpucore.CapImages},
		{TiledLocalCache, gpucore.CapLocalMemory},
		{BufferBackedImage, gpucore.CapImageFromBuffer},
		{BufferBackedImage, gpucore.CapImages},
	}
	for _, tt := range tests {
		t.Run(tt.strategy.String()+"/"+string(tt.disable), func(t *testing.T) {
			fb := &fakeBackend{Device: newDevice(t, cpu.WithName("limited"), cpu.WithoutCapability(tt.disable))}
			p, err := New(fb, WithStrategy(tt.strategy))
			require.NoError(t, err)
			assert.False(t, p.Supported())

			_, err = p.Run(patternImage(4, 4), GenerateKernel(1, 1))
			require.ErrorIs(t, err, ErrCapabilityMissing)

			var ce *CapabilityError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.disable, ce.Capability)
			assert.Equal(t, "limited", ce.Device)
			assert.Zero(t, fb.builds, "no program may be built")
			requireNoLeaks(t, fb.Device)
		})
	}
}

func TestBufferBackedImageNeedsPitchAlignment(t *testing.T) {
	fb := &fakeBackend{Device: newDevice(t, cpu.WithName("unaligned"), cpu.WithPitchAlignment(0))}
	p, err := New(fb, WithStrategy(BufferBackedImage))
	require.NoError(t, err)
	assert.False(t, p.Supported())

	_, err = p.Run(patternImage(4, 4), GenerateKernel(1, 1))
	require.ErrorIs(t, err, ErrCapabilityMissing)

	var ce *CapabilityError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, gpucore.CapImageFromBuffer, ce.Capability)
	assert.Contains(t, ce.Error(), "pitch alignment 0")
	assert.Zero(t, fb.builds, "no program may be built")
	requireNoLeaks(t, fb.Device)
}

func TestLinearRunsWithoutOptionalCapabilities(t *testing.T) {
	d := newDevice(t,
		cpu.WithoutCapability(gpucore.CapImages),
		cpu.WithoutCapability(gpucore.CapLocalMemory),
		cpu.WithoutCapability(gpucore.CapImageFromBuffer))
	_, err := Blur(d, patternImage(5, 5), 1, 1)
	require.NoError(t, err)
}

func TestBuildFailure(t *testing.T) {
	fb := &fakeBackend{Device: newDevice(t), buildLog: "kernel.cl:12: error: use of undeclared identifier 'CLPixelType'"}
	p, err := New(fb)
	require.NoError(t, err)

	_, err = p.Run(patternImage(4, 4), GenerateKernel(1, 1))
	require.ErrorIs(t, err, ErrBuildFailed)

	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "linear", be.Program)
	assert.Contains(t, be.Log, "undeclared identifier")
	requireNoLeaks(t, fb.Device)
}

func TestBuildFailureFromDevice(t *testing.T) {
	// The device rejects the tiled program without local memory support.
	d := newDevice(t, cpu.WithoutCapability(gpucore.CapLocalMemory))

	_, err := d.BuildProgram(gpucore.ProgramDesc{Name: TiledLocalCache.String()})
	wrapped := buildError(TiledLocalCache.String(), err)
	require.ErrorIs(t, wrapped, ErrBuildFailed)
	assert.Contains(t, wrapped.Error(), "requires local_memory")
}

func TestAllocationFailure(t *testing.T) {
	for _, s := range Strategies() {
		t.Run(s.String(), func(t *testing.T) {
			// Room for the weights and the source only.
			d := newDevice(t, cpu.WithMemoryLimit(8*8*PixelSize+64))
			p, err := New(d, WithStrategy(s), WithWorkGroupSize(4, 4))
			require.NoError(t, err)

			_, err = p.Run(patternImage(8, 8), GenerateKernel(1, 1))
			require.ErrorIs(t, err, ErrAllocationFailed)

			var ae *AllocationError
			require.ErrorAs(t, err, &ae)
			assert.NotEmpty(t, ae.Resource)
			code, ok := gpucore.StatusOf(err)
			require.True(t, ok)
			assert.Equal(t, gpucore.StatusMemObjectAllocationFailure, code)
			requireNoLeaks(t, d)
		})
	}
}

func TestLocalMemoryExhausted(t *testing.T) {
	d := newDevice(t, cpu.WithLocalMemorySize(512))
	p, err := New(d, WithStrategy(TiledLocalCache), WithWorkGroupSize(64, 64))
	require.NoError(t, err)

	_, err = p.Run(patternImage(70, 4), GenerateKernel(4, 2))
	require.ErrorIs(t, err, ErrDispatchFailed)

	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, RowPass, de.Pass)
	assert.Equal(t, gpucore.StatusOutOfResources, de.Code)
	requireNoLeaks(t, d)
}

func TestWorkGroupTooLarge(t *testing.T) {
	d := newDevice(t, cpu.WithMaxWorkGroupSize(32))
	p, err := New(d, WithWorkGroupSize(16, 64))
	require.NoError(t, err)

	_, err = p.Run(patternImage(20, 20), GenerateKernel(1, 1))
	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ColumnPass, de.Pass)
	assert.Equal(t, gpucore.StatusInvalidWorkGroupSize, de.Code)
	requireNoLeaks(t, d)
}

func TestRunRejectsInvalidInput(t *testing.T) {
	d := newDevice(t)
	p, err := New(d)
	require.NoError(t, err)

	_, err = p.Run(nil, GenerateKernel(1, 1))
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = p.Run(&Image{Width: 4, Height: 4, RowPitch: 64, Pix: make([]float32, 8)}, GenerateKernel(1, 1))
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = p.Run(NewImage(4, 4), Kernel{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	even := Kernel{weights: []float32{0.5, 0.5}}
	_, err = p.Run(NewImage(4, 4), even)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	requireNoLeaks(t, d)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	d := newDevice(t)
	_, err = New(d, WithWorkGroupSize(0, 8))
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = New(d, WithStrategy(Strategy(42)))
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = New(d, WithPixelFormat(PixelFormat(9)))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDispatchErrorUnwrap(t *testing.T) {
	cause := gpucore.Errorf(gpucore.StatusInvalidKernelArgs, "enqueue", "bad")
	err := dispatchError(ColumnPass, cause)

	assert.ErrorIs(t, err, ErrDispatchFailed)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "column pass failed")
	assert.Contains(t, err.Error(), "-52")
}
