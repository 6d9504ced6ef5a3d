package gpucore

// Backend abstracts over compute device implementations.
//
// A backend owns one device and one in-order command queue: enqueued
// dispatches execute in submission order and each one observes every write
// made by the ones before it. Implementations must be safe for use by one
// pipeline run at a time; concurrent runs need separate backends.
//
// Resource lifecycle:
//   - Resources are created via Build*/Create* methods
//   - Resources must be explicitly released via Release*/Release
//   - Releasing a resource used by a pending dispatch is undefined behavior
//   - IDs become invalid after release and are never reused
type Backend interface {
	// === Identity and Capabilities ===

	// Name returns a human readable device name.
	Name() string

	// Capabilities describes the optional features and limits of the device.
	Capabilities() Capabilities

	// === Programs ===

	// BuildProgram compiles the named program with the given defines.
	// A compiler failure is reported as *BuildError carrying the log.
	BuildProgram(desc ProgramDesc) (ProgramID, error)

	// ReleaseProgram releases a built program.
	ReleaseProgram(id ProgramID)

	// === Memory ===

	// CreateBuffer allocates a linear buffer, optionally initialized from
	// host data.
	CreateBuffer(desc BufferDesc) (MemoryID, error)

	// CreateImage allocates a 2D image, optionally initialized from host
	// data laid out with desc.RowPitch.
	CreateImage(desc ImageDesc) (MemoryID, error)

	// CreateImageFromBuffer creates an image that aliases an existing
	// buffer. Requires CapImageFromBuffer; desc.Data must be nil.
	CreateImageFromBuffer(buffer MemoryID, desc ImageDesc) (MemoryID, error)

	// ReadBuffer copies the first len(dst) floats of a buffer to dst.
	// It blocks until every previously enqueued command has completed.
	ReadBuffer(id MemoryID, dst []float32) error

	// ReadImage copies a whole image to dst using rowPitch bytes per row.
	// It blocks until every previously enqueued command has completed.
	ReadImage(id MemoryID, dst []float32, rowPitch int) error

	// Release frees a memory object.
	Release(id MemoryID)

	// === Execution ===

	// Enqueue submits a dispatch of desc.Entry over desc.Global work-items
	// grouped by desc.Local. Argument and work-size errors are reported
	// immediately. The returned event is nil unless desc.Profile is set.
	Enqueue(desc DispatchDesc) (*Event, error)

	// Finish blocks until every enqueued command has completed and returns
	// the first execution error since the previous Finish.
	Finish() error

	// Close releases the device. The backend must not be used afterwards.
	Close() error
}
