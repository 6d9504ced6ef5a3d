package blur

import "github.com/gogpu/blur/gpucore"

// Pass identifies one of the two convolution passes.
type Pass uint8

// Convolution passes.
const (
	// RowPass convolves along x, from source into intermediate.
	RowPass Pass = iota

	// ColumnPass convolves along y, from intermediate into output.
	ColumnPass
)

func (p Pass) String() string {
	if p == ColumnPass {
		return "column"
	}
	return "row"
}

// Entry returns the device entry point name of the pass.
func (p Pass) Entry() string {
	if p == ColumnPass {
		return "BlurColumn"
	}
	return "BlurRow"
}

// Dispatch describes one pass submission. It is built fresh for every pass.
type Dispatch struct {
	Pass   Pass
	Entry  string
	Global gpucore.NDRange
	Local  gpucore.NDRange
	Args   []gpucore.Arg

	// LocalBytes is the work-group local memory requested by Args.
	LocalBytes int
}

// newDispatch builds the dispatch of pass over a width x height image.
func newDispatch(pass Pass, width, height, workGroup int, args []gpucore.Arg) Dispatch {
	global, local := passExtents(pass, width, height, workGroup)
	d := Dispatch{Pass: pass, Entry: pass.Entry(), Global: global, Local: local, Args: args}
	for _, a := range args {
		if a.Kind == gpucore.ArgLocal {
			d.LocalBytes += a.Size
		}
	}
	return d
}

// roundUp rounds n up to a multiple of m.
func roundUp(n, m int) int {
	return (n + m - 1) / m * m
}

// passExtents returns the global and local extents of a pass over a
// width x height image. The convolved axis is padded to a multiple of the
// work-group extent; the other axis has a work-group extent of 1.
func passExtents(pass Pass, width, height, workGroup int) (global, local gpucore.NDRange) {
	if pass == ColumnPass {
		return gpucore.NDRange{width, roundUp(height, workGroup)}, gpucore.NDRange{1, workGroup}
	}
	return gpucore.NDRange{roundUp(width, workGroup), height}, gpucore.NDRange{workGroup, 1}
}

// LocalCacheBytes returns the work-group local memory the tiled strategy
// needs for a kernel of kernelLen taps and a work-group extent of workGroup.
func LocalCacheBytes(kernelLen, workGroup int) int {
	return (kernelLen + workGroup) * PixelSize
}

func (d Dispatch) desc(program gpucore.ProgramID, profile bool) gpucore.DispatchDesc {
	return gpucore.DispatchDesc{
		Program: program,
		Entry:   d.Entry,
		Global:  d.Global,
		Local:   d.Local,
		Args:    d.Args,
		Profile: profile,
	}
}
