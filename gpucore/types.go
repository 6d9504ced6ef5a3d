package gpucore

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// Resource IDs
//
// These opaque IDs represent device resources. Each backend maintains a
// mapping between IDs and its own handles.

// MemoryID is an opaque handle to a buffer or an image.
type MemoryID uint64

// ProgramID is an opaque handle to a built program.
type ProgramID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// PixelSize is the size in bytes of one image pixel (four float32 channels).
const PixelSize = 16

// Access is the device-side access mode of a memory object.
type Access uint8

// Access modes.
const (
	// ReadOnly objects may only be read by kernels.
	ReadOnly Access = iota

	// WriteOnly objects may only be written by kernels.
	WriteOnly

	// ReadWrite objects may be read and written by kernels.
	ReadWrite
)

// String returns the access mode name.
func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "read_only"
	case WriteOnly:
		return "write_only"
	case ReadWrite:
		return "read_write"
	default:
		return fmt.Sprintf("Access(%d)", a)
	}
}

// CanRead reports whether kernels may read an object with this mode.
func (a Access) CanRead() bool { return a != WriteOnly }

// CanWrite reports whether kernels may write an object with this mode.
func (a Access) CanWrite() bool { return a != ReadOnly }

// Capability names an optional device feature.
type Capability string

// Optional device features.
const (
	// CapLocalMemory is work-group shared memory with a barrier.
	CapLocalMemory Capability = "local_memory"

	// CapImages is 2D image objects with edge-clamped sampling.
	CapImages Capability = "images"

	// CapImageFromBuffer is creating a 2D image over an existing buffer.
	CapImageFromBuffer Capability = "cl_khr_image2d_from_buffer"
)

// Capabilities describes a device.
type Capabilities struct {
	// Features lists the optional features the device supports.
	Features []Capability

	// ImagePitchAlignment is the row pitch alignment in bytes required for
	// images created over buffers.
	ImagePitchAlignment int

	// MaxWorkGroupSize is the maximum number of work-items in a work-group.
	MaxWorkGroupSize int

	// LocalMemorySize is the work-group shared memory size in bytes.
	LocalMemorySize int

	// MaxAllocation is the largest single allocation in bytes.
	// Zero means unlimited.
	MaxAllocation int64
}

// Has reports whether the device supports the feature.
func (c Capabilities) Has(feature Capability) bool {
	return slices.Contains(c.Features, feature)
}

// NDRange is a two dimensional work size.
type NDRange [2]int

// Size returns the number of work-items in the range.
func (r NDRange) Size() int { return r[0] * r[1] }

func (r NDRange) String() string { return fmt.Sprintf("(%d, %d)", r[0], r[1]) }

// ProgramDesc describes a program build.
type ProgramDesc struct {
	// Name selects the program source the backend compiles.
	Name string

	// Defines are preprocessor definitions passed to the compiler.
	Defines map[string]string
}

// BufferDesc describes a linear buffer.
type BufferDesc struct {
	Label  string
	Size   int // bytes
	Access Access

	// Data, when non-nil, is copied into the buffer at creation.
	Data []float32
}

// ImageDesc describes a 2D image of four float32 channels per pixel.
type ImageDesc struct {
	Label  string
	Width  int
	Height int

	// RowPitch is the row stride in bytes. Zero means Width*PixelSize.
	RowPitch int

	Access Access

	// Data, when non-nil, is copied into the image at creation using RowPitch.
	Data []float32
}

// Pitch returns the effective row pitch in bytes.
func (d ImageDesc) Pitch() int {
	if d.RowPitch == 0 {
		return d.Width * PixelSize
	}
	return d.RowPitch
}

// DispatchDesc describes one kernel enqueue.
type DispatchDesc struct {
	Program ProgramID
	Entry   string
	Global  NDRange
	Local   NDRange
	Args    []Arg

	// Profile requests start and end timestamps on the returned event.
	Profile bool
}

// ArgKind identifies the payload of an Arg.
type ArgKind uint8

// Argument kinds.
const (
	ArgMemory ArgKind = iota
	ArgUint
	ArgInt
	ArgLocal
)

// Arg is a kernel argument.
type Arg struct {
	Kind ArgKind

	// Memory is set for ArgMemory.
	Memory MemoryID

	// Value holds the bits of ArgUint and ArgInt arguments.
	Value uint32

	// Size is the byte size of an ArgLocal allocation.
	Size int
}

// Mem returns a memory object argument.
func Mem(id MemoryID) Arg { return Arg{Kind: ArgMemory, Memory: id} }

// Uint returns an unsigned scalar argument.
func Uint(v uint32) Arg { return Arg{Kind: ArgUint, Value: v} }

// Int returns a signed scalar argument.
func Int(v int32) Arg { return Arg{Kind: ArgInt, Value: uint32(v)} } //nolint:gosec // bit reinterpretation

// Local returns a work-group local memory argument of the given byte size.
func Local(size int) Arg { return Arg{Kind: ArgLocal, Size: size} }

// Int32 returns the value of an ArgInt argument.
func (a Arg) Int32() int32 { return int32(a.Value) } //nolint:gosec // bit reinterpretation

func (a Arg) String() string {
	switch a.Kind {
	case ArgMemory:
		return fmt.Sprintf("mem#%d", a.Memory)
	case ArgUint:
		return fmt.Sprintf("%du", a.Value)
	case ArgInt:
		return fmt.Sprintf("%d", a.Int32())
	case ArgLocal:
		return fmt.Sprintf("local[%d]", a.Size)
	default:
		return "invalid"
	}
}

// Event records the execution interval of an enqueued command.
// Timestamps become available once the command completes.
type Event struct {
	mu         sync.Mutex
	start, end time.Time
	done       bool
}

// Complete records the execution interval. Backends call it once.
func (e *Event) Complete(start, end time.Time) {
	e.mu.Lock()
	e.start, e.end, e.done = start, end, true
	e.mu.Unlock()
}

// Times returns the recorded interval and whether it is available.
func (e *Event) Times() (start, end time.Time, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.start, e.end, e.done
}

// Duration returns end minus start, or false when not yet complete.
func (e *Event) Duration() (time.Duration, bool) {
	start, end, ok := e.Times()
	if !ok {
		return 0, false
	}
	return end.Sub(start), true
}

// FormatDefines renders defines as compiler options ("-DKEY=VALUE"),
// sorted by key.
func FormatDefines(defines map[string]string) string {
	keys := make([]string, 0, len(defines))
	for k := range defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString("-D")
		sb.WriteString(k)
		if v := defines[k]; v != "" {
			sb.WriteByte('=')
			sb.WriteString(v)
		}
	}
	return sb.String()
}
