package blur

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gogpu/blur/gpucore"
)

// Pipeline runs the two-pass separable convolution on a backend.
//
// A Pipeline holds no device resources between runs: every Run builds the
// program, allocates its memory objects and releases them before returning,
// on success and on every error path. Runs on one Pipeline must not overlap.
type Pipeline struct {
	backend gpucore.Backend
	cfg     Config
}

// Timings holds per-pass device execution times.
type Timings struct {
	Row      time.Duration
	Column   time.Duration
	Captured bool
}

// Total returns the sum of both passes.
func (t Timings) Total() time.Duration { return t.Row + t.Column }

// Result is the outcome of a successful run.
type Result struct {
	// Image is the blurred image, laid out with the source row pitch.
	// Nil when output writing is disabled.
	Image *Image

	Kernel   Kernel
	Strategy Strategy

	// Dispatches describes the row and column submissions, in order.
	Dispatches [2]Dispatch

	// Timings is captured only when profiling is enabled.
	Timings Timings
}

// New creates a pipeline on backend.
func New(backend gpucore.Backend, opts ...Option) (*Pipeline, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: nil backend", ErrInvalidConfig)
	}
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	propagateLogger(backend)
	return &Pipeline{backend: backend, cfg: cfg}, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Backend returns the backend the pipeline runs on.
func (p *Pipeline) Backend() gpucore.Backend { return p.backend }

// Supported reports whether the backend can run the configured strategy.
func (p *Pipeline) Supported() bool {
	return p.cfg.Strategy.Supported(p.backend.Capabilities())
}

// defines returns the build definitions for a kernel of klen taps.
func (p *Pipeline) defines(klen int) map[string]string {
	return map[string]string{
		"CLQuantum":         "float",
		"CLSignedQuantum":   "float",
		"CLPixelType":       "float4",
		"QuantumRange":      "65535.000000f",
		"KERNEL_LENGTH":     strconv.Itoa(klen),
		"ROW_LOCAL_SIZE":    strconv.Itoa(p.cfg.RowWorkGroupSize),
		"COLUMN_LOCAL_SIZE": strconv.Itoa(p.cfg.ColumnWorkGroupSize),
	}
}

// checkCapabilities fails before any allocation when the device lacks a
// feature the strategy needs.
func (p *Pipeline) checkCapabilities(caps gpucore.Capabilities) error {
	for _, c := range p.cfg.Strategy.Requirements() {
		if !caps.Has(c) {
			return &CapabilityError{Strategy: p.cfg.Strategy, Capability: c, Device: p.backend.Name()}
		}
	}
	if p.cfg.Strategy == BufferBackedImage && caps.ImagePitchAlignment <= 0 {
		return &CapabilityError{
			Strategy:   p.cfg.Strategy,
			Capability: gpucore.CapImageFromBuffer,
			Device:     p.backend.Name(),
			Detail:     fmt.Sprintf("image pitch alignment %d", caps.ImagePitchAlignment),
		}
	}
	return nil
}

// Run convolves src with k along rows, then along columns, replicating edge
// pixels for taps outside the image. The source is not modified.
//
// Errors are never retried. Typed errors report which stage failed:
// *CapabilityError, *BuildError, *AllocationError or *DispatchError.
func (p *Pipeline) Run(src *Image, k Kernel) (*Result, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if k.Len() == 0 || k.Len()%2 == 0 {
		return nil, fmt.Errorf("%w: kernel length %d", ErrInvalidConfig, k.Len())
	}

	log := Logger().With("strategy", p.cfg.Strategy.String(), "device", p.backend.Name())

	caps := p.backend.Capabilities()
	if err := p.checkCapabilities(caps); err != nil {
		return nil, err
	}

	program := p.cfg.Strategy.String()
	defines := p.defines(k.Len())
	log.Debug("blur: building program", "program", program, "options", gpucore.FormatDefines(defines))
	prog, err := p.backend.BuildProgram(gpucore.ProgramDesc{Name: program, Defines: defines})
	if err != nil {
		return nil, buildError(program, err)
	}
	defer p.backend.ReleaseProgram(prog)

	r := &runState{
		backend: p.backend,
		caps:    caps,
		cfg:     p.cfg,
		log:     log,
		src:     src,
		kernel:  k,
	}
	defer r.releaseAll()

	r.weights, err = r.createBuffer(gpucore.BufferDesc{
		Label:  "weights",
		Size:   k.Len() * 4,
		Access: gpucore.ReadOnly,
		Data:   k.weights,
	})
	if err != nil {
		return nil, err
	}

	mem := newMemoryStrategy(p.cfg.Strategy)
	if err := mem.uploadSource(r); err != nil {
		return nil, err
	}
	if err := mem.allocateIntermediate(r); err != nil {
		return nil, err
	}
	if err := mem.allocateOutput(r); err != nil {
		return nil, err
	}

	res := &Result{Kernel: k, Strategy: p.cfg.Strategy}

	rowEvt, err := p.runPass(r, prog, RowPass, mem.rowArgs(r), &res.Dispatches[0])
	if err != nil {
		return nil, err
	}
	colEvt, err := p.runPass(r, prog, ColumnPass, mem.columnArgs(r), &res.Dispatches[1])
	if err != nil {
		return nil, err
	}

	if p.cfg.Profiling {
		res.Timings = collectTimings(rowEvt, colEvt)
	}

	if p.cfg.WriteOutput {
		res.Image, err = mem.downloadOutput(r)
		if err != nil {
			return nil, err
		}
	}

	log.Info("blur: run complete",
		"width", src.Width, "height", src.Height, "taps", k.Len(),
		"row", res.Timings.Row, "column", res.Timings.Column)
	return res, nil
}

// runPass enqueues one pass and waits for the queue to drain.
func (p *Pipeline) runPass(r *runState, prog gpucore.ProgramID, pass Pass, args []gpucore.Arg, out *Dispatch) (*gpucore.Event, error) {
	*out = newDispatch(pass, r.src.Width, r.src.Height, r.workGroup(pass), args)

	r.log.Debug("blur: enqueue", "pass", pass.String(), "global", out.Global.String(), "local", out.Local.String(),
		"args", len(args), "local_bytes", out.LocalBytes)

	evt, err := p.backend.Enqueue(out.desc(prog, p.cfg.Profiling))
	if err != nil {
		return nil, dispatchError(pass, err)
	}
	if err := p.backend.Finish(); err != nil {
		return nil, dispatchError(pass, err)
	}
	return evt, nil
}

func collectTimings(row, column *gpucore.Event) Timings {
	if row == nil || column == nil {
		return Timings{}
	}
	rd, rok := row.Duration()
	cd, cok := column.Duration()
	return Timings{Row: rd, Column: cd, Captured: rok && cok}
}

// Blur generates a kernel for radius and sigma and runs it on backend.
// It returns nil and no error when output writing is disabled.
func Blur(backend gpucore.Backend, src *Image, radius, sigma float64, opts ...Option) (*Image, error) {
	p, err := New(backend, opts...)
	if err != nil {
		return nil, err
	}
	res, err := p.Run(src, CachedKernel(radius, sigma))
	if err != nil {
		return nil, err
	}
	return res.Image, nil
}
