package opencl

import (
	"embed"
	"fmt"
	"strings"

	"github.com/gogpu/blur/gpucore"
)

//go:embed kernels/*.cl
var kernelFS embed.FS

// programSpec names the kernel file of a program and the device features
// it needs.
type programSpec struct {
	file     string
	requires []gpucore.Capability
}

var programs = map[string]programSpec{
	"linear":       {file: "linear.cl"},
	"tiled":        {file: "tiled.cl", requires: []gpucore.Capability{gpucore.CapLocalMemory}},
	"image2d":      {file: "image2d.cl", requires: []gpucore.Capability{gpucore.CapImages}},
	"image_buffer": {file: "image2d.cl", requires: []gpucore.Capability{gpucore.CapImages, gpucore.CapImageFromBuffer}},
}

// entryPoints are the kernels every program defines.
var entryPoints = []string{"BlurRow", "BlurColumn"}

// programSource returns the OpenCL C source of a named program, prefixed
// with the shared helpers. Failures are returned as a build log.
func programSource(name string, caps gpucore.Capabilities) (string, error) {
	spec, ok := programs[name]
	if !ok {
		return "", fmt.Errorf("error: no program named %q", name)
	}
	for _, c := range spec.requires {
		if !caps.Has(c) {
			return "", fmt.Errorf("error: program %q requires %s", name, c)
		}
	}
	common, err := kernelFS.ReadFile("kernels/common.cl")
	if err != nil {
		return "", err
	}
	body, err := kernelFS.ReadFile("kernels/" + spec.file)
	if err != nil {
		return "", err
	}
	return string(common) + "\n" + string(body), nil
}

// buildOptions formats defines as compiler options.
func buildOptions(defines map[string]string) string {
	opts := []string{"-cl-std=CL1.2", "-cl-mad-enable"}
	if d := gpucore.FormatDefines(defines); d != "" {
		opts = append(opts, d)
	}
	return strings.Join(opts, " ")
}
