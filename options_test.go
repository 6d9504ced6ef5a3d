package blur

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/blur/gpucore"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, LinearBuffer, c.Strategy)
	assert.Equal(t, DefaultWorkGroupSize, c.RowWorkGroupSize)
	assert.Equal(t, DefaultWorkGroupSize, c.ColumnWorkGroupSize)
	assert.Equal(t, RGBA, c.Format)
	assert.True(t, c.WriteOutput)
	assert.False(t, c.Profiling)
	require.NoError(t, c.Validate())
}

func TestOptions(t *testing.T) {
	c := DefaultConfig()
	for _, opt := range []Option{
		WithStrategy(TiledLocalCache),
		WithWorkGroupSize(32, 16),
		WithProfiling(true),
		WithPixelFormat(RGB),
		WithWriteOutput(false),
	} {
		opt(&c)
	}
	assert.Equal(t, TiledLocalCache, c.Strategy)
	assert.Equal(t, 32, c.RowWorkGroupSize)
	assert.Equal(t, 16, c.ColumnWorkGroupSize)
	assert.True(t, c.Profiling)
	assert.Equal(t, RGB, c.Format)
	assert.False(t, c.WriteOutput)

	WithRowWorkGroupSize(8)(&c)
	WithColumnWorkGroupSize(128)(&c)
	assert.Equal(t, 8, c.RowWorkGroupSize)
	assert.Equal(t, 128, c.ColumnWorkGroupSize)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"zero row", WithRowWorkGroupSize(0)},
		{"negative column", WithColumnWorkGroupSize(-4)},
		{"unknown strategy", WithStrategy(Strategy(9))},
		{"unknown format", WithPixelFormat(PixelFormat(3))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.opt(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}
}

// =============================================================================
// Strategies
// =============================================================================

func TestStrategyNames(t *testing.T) {
	want := []string{"linear", "image2d", "tiled", "image_buffer"}
	for i, s := range Strategies() {
		assert.Equal(t, want[i], s.String())
		parsed, err := ParseStrategy(want[i])
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	s, err := ParseStrategy("TILED")
	require.NoError(t, err)
	assert.Equal(t, TiledLocalCache, s)

	_, err = ParseStrategy("fft")
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, "Strategy(7)", Strategy(7).String())
}

func TestStrategySupported(t *testing.T) {
	none := gpucore.Capabilities{}
	all := gpucore.Capabilities{
		Features: []gpucore.Capability{
			gpucore.CapLocalMemory, gpucore.CapImages, gpucore.CapImageFromBuffer,
		},
		ImagePitchAlignment: 256,
	}
	imagesOnly := gpucore.Capabilities{Features: []gpucore.Capability{gpucore.CapImages}}

	tests := []struct {
		strategy              Strategy
		none, images, allCaps bool
	}{
		{LinearBuffer, true, true, true},
		{Image2D, false, true, true},
		{TiledLocalCache, false, false, true},
		{BufferBackedImage, false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.strategy.String(), func(t *testing.T) {
			assert.Equal(t, tt.none, tt.strategy.Supported(none))
			assert.Equal(t, tt.images, tt.strategy.Supported(imagesOnly))
			assert.Equal(t, tt.allCaps, tt.strategy.Supported(all))
		})
	}

	unaligned := all
	unaligned.ImagePitchAlignment = 0
	assert.False(t, BufferBackedImage.Supported(unaligned))
	assert.True(t, Image2D.Supported(unaligned))
}

// =============================================================================
// Dispatch geometry
// =============================================================================

func TestPassExtents(t *testing.T) {
	tests := []struct {
		name          string
		pass          Pass
		w, h, wg      int
		global, local gpucore.NDRange
	}{
		{"row exact", RowPass, 64, 10, 64, gpucore.NDRange{64, 10}, gpucore.NDRange{64, 1}},
		{"row padded", RowPass, 65, 10, 64, gpucore.NDRange{128, 10}, gpucore.NDRange{64, 1}},
		{"column padded", ColumnPass, 10, 3, 8, gpucore.NDRange{10, 8}, gpucore.NDRange{1, 8}},
		{"single pixel", ColumnPass, 1, 1, 4, gpucore.NDRange{1, 4}, gpucore.NDRange{1, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			global, local := passExtents(tt.pass, tt.w, tt.h, tt.wg)
			assert.Equal(t, tt.global, global)
			assert.Equal(t, tt.local, local)
		})
	}
}

func TestPassNames(t *testing.T) {
	assert.Equal(t, "row", RowPass.String())
	assert.Equal(t, "BlurRow", RowPass.Entry())
	assert.Equal(t, "column", ColumnPass.String())
	assert.Equal(t, "BlurColumn", ColumnPass.Entry())
}

func TestLocalCacheBytes(t *testing.T) {
	assert.Equal(t, (9+64)*16, LocalCacheBytes(9, 64))
	assert.Equal(t, (1+1)*16, LocalCacheBytes(1, 1))
}

func TestDefines(t *testing.T) {
	p := &Pipeline{cfg: DefaultConfig()}
	p.cfg.RowWorkGroupSize = 32
	got := gpucore.FormatDefines(p.defines(5))
	assert.Equal(t, "-DCLPixelType=float4 -DCLQuantum=float -DCLSignedQuantum=float "+
		"-DCOLUMN_LOCAL_SIZE=64 -DKERNEL_LENGTH=5 -DQuantumRange=65535.000000f -DROW_LOCAL_SIZE=32", got)
}
