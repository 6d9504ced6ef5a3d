package blur

import (
	"log/slog"

	"github.com/gogpu/blur/gpucore"
)

// memoryStrategy places source, intermediate and output on the device and
// binds them to the two passes. A value serves a single run.
type memoryStrategy interface {
	// uploadSource creates the device source object from the host image.
	uploadSource(r *runState) error

	// allocateIntermediate creates the object written by the row pass.
	allocateIntermediate(r *runState) error

	// allocateOutput creates the object written by the column pass.
	allocateOutput(r *runState) error

	// rowArgs returns the row pass arguments in entry point order.
	rowArgs(r *runState) []gpucore.Arg

	// columnArgs returns the column pass arguments in entry point order.
	columnArgs(r *runState) []gpucore.Arg

	// downloadOutput reads the output back with the source's row pitch.
	downloadOutput(r *runState) (*Image, error)
}

func newMemoryStrategy(s Strategy) memoryStrategy {
	switch s {
	case Image2D:
		return &imageMemory{}
	case TiledLocalCache:
		return &tiledMemory{}
	case BufferBackedImage:
		return &bufferImageMemory{}
	default:
		return &linearMemory{}
	}
}

// runState holds the per-run resources. Every memory object created through
// it is released by releaseAll, in reverse creation order.
type runState struct {
	backend gpucore.Backend
	caps    gpucore.Capabilities
	cfg     Config
	log     *slog.Logger

	src     *Image
	kernel  Kernel
	weights gpucore.MemoryID

	owned []gpucore.MemoryID
}

func (r *runState) track(id gpucore.MemoryID) gpucore.MemoryID {
	r.owned = append(r.owned, id)
	return id
}

func (r *runState) createBuffer(desc gpucore.BufferDesc) (gpucore.MemoryID, error) {
	id, err := r.backend.CreateBuffer(desc)
	if err != nil {
		return gpucore.InvalidID, &AllocationError{Resource: desc.Label, Bytes: desc.Size, Err: err}
	}
	r.log.Debug("blur: buffer allocated", "label", desc.Label, "bytes", desc.Size, "access", desc.Access)
	return r.track(id), nil
}

func (r *runState) createImage(desc gpucore.ImageDesc) (gpucore.MemoryID, error) {
	id, err := r.backend.CreateImage(desc)
	if err != nil {
		return gpucore.InvalidID, &AllocationError{Resource: desc.Label, Bytes: desc.Pitch() * desc.Height, Err: err}
	}
	r.log.Debug("blur: image allocated", "label", desc.Label, "width", desc.Width, "height", desc.Height,
		"pitch", desc.Pitch(), "access", desc.Access)
	return r.track(id), nil
}

func (r *runState) createImageFromBuffer(buf gpucore.MemoryID, desc gpucore.ImageDesc) (gpucore.MemoryID, error) {
	id, err := r.backend.CreateImageFromBuffer(buf, desc)
	if err != nil {
		return gpucore.InvalidID, &AllocationError{Resource: desc.Label, Bytes: desc.Pitch() * desc.Height, Err: err}
	}
	r.log.Debug("blur: buffer image created", "label", desc.Label, "pitch", desc.Pitch())
	return r.track(id), nil
}

func (r *runState) releaseAll() {
	for i := len(r.owned) - 1; i >= 0; i-- {
		r.backend.Release(r.owned[i])
	}
	r.owned = nil
}

// workGroup returns the configured work-group extent of a pass.
func (r *runState) workGroup(pass Pass) int {
	if pass == ColumnPass {
		return r.cfg.ColumnWorkGroupSize
	}
	return r.cfg.RowWorkGroupSize
}

// bufferArgs is the argument list shared by the buffer strategies:
// source, channels, mask, weights, kernel length, width, height, pitch in
// floats, then tail (destination and, for the tiled strategy, the cache).
func (r *runState) bufferArgs(src gpucore.MemoryID, tail ...gpucore.Arg) []gpucore.Arg {
	args := []gpucore.Arg{
		gpucore.Mem(src),
		gpucore.Uint(r.cfg.Format.Channels()),
		gpucore.Uint(r.cfg.Format.ChannelMask()),
		gpucore.Mem(r.weights),
		gpucore.Uint(uint32(r.kernel.Len())), //nolint:gosec // kernel length fits uint32
		gpucore.Uint(uint32(r.src.Width)),    //nolint:gosec // validated dimensions
		gpucore.Uint(uint32(r.src.Height)),   //nolint:gosec // validated dimensions
		gpucore.Uint(uint32(r.src.Stride())), //nolint:gosec // validated pitch
	}
	return append(args, tail...)
}

// imageArgs is the argument list shared by the image strategies:
// source, destination, kernel length, weights, length of the convolved
// axis, channel mask.
func (r *runState) imageArgs(pass Pass, src, dst gpucore.MemoryID) []gpucore.Arg {
	axis := r.src.Width
	if pass == ColumnPass {
		axis = r.src.Height
	}
	return []gpucore.Arg{
		gpucore.Mem(src),
		gpucore.Mem(dst),
		gpucore.Uint(uint32(r.kernel.Len())), //nolint:gosec // kernel length fits uint32
		gpucore.Mem(r.weights),
		gpucore.Uint(uint32(axis)), //nolint:gosec // validated dimensions
		gpucore.Uint(r.cfg.Format.ChannelMask()),
	}
}
