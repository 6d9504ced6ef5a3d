package opencl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/blur/gpucore"
)

var allCaps = gpucore.Capabilities{
	Features: []gpucore.Capability{gpucore.CapLocalMemory, gpucore.CapImages, gpucore.CapImageFromBuffer},
}

func TestProgramSourceDefinesEntries(t *testing.T) {
	for name := range programs {
		t.Run(name, func(t *testing.T) {
			src, err := programSource(name, allCaps)
			require.NoError(t, err)
			assert.Contains(t, src, "inline float4 blend(")
			for _, entry := range entryPoints {
				assert.Contains(t, src, "__kernel void "+entry+"(")
			}
		})
	}
}

func TestProgramSourceLayouts(t *testing.T) {
	tiled, err := programSource("tiled", allCaps)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(tiled, "__local CLPixelType *cache"))
	assert.Contains(t, tiled, "barrier(CLK_LOCAL_MEM_FENCE)")

	img, err := programSource("image_buffer", allCaps)
	require.NoError(t, err)
	assert.Contains(t, img, "CLK_ADDRESS_CLAMP_TO_EDGE")
}

func TestProgramSourceErrors(t *testing.T) {
	tests := []struct {
		name string
		caps gpucore.Capabilities
		want string
	}{
		{"box", allCaps, `no program named "box"`},
		{"tiled", gpucore.Capabilities{}, "requires local_memory"},
		{"image2d", gpucore.Capabilities{}, "requires images"},
		{"image_buffer", gpucore.Capabilities{Features: []gpucore.Capability{gpucore.CapImages}}, "requires cl_khr_image2d_from_buffer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := programSource(tt.name, tt.caps)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuildOptions(t *testing.T) {
	got := buildOptions(map[string]string{"KERNEL_LENGTH": "9", "CLQuantum": "float"})
	assert.Equal(t, "-cl-std=CL1.2 -cl-mad-enable -DCLQuantum=float -DKERNEL_LENGTH=9", got)
	assert.Equal(t, "-cl-std=CL1.2 -cl-mad-enable", buildOptions(nil))
}

func TestOptions(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, -1, cfg.platform)
	for _, opt := range []Option{WithDevice(1, 2), WithCPU(), WithLogger(nil)} {
		opt(&cfg)
	}
	assert.Equal(t, 1, cfg.platform)
	assert.Equal(t, 2, cfg.device)
	assert.True(t, cfg.cpu)
}
