// Package cpu provides a software compute device.
//
// The device implements gpucore.Backend on the host: an in-order queue
// goroutine executes dispatches, work-groups are scheduled on a work-stealing
// goroutine pool, and work-items of entry points that use local memory run
// concurrently with a shared group barrier. Programs are Go functions
// registered by name; the device ships the four blur programs ("linear",
// "tiled", "image2d" and "image_buffer").
//
// Every optional capability is supported by default and can be switched off
// with WithoutCapability, which makes the device useful for exercising
// capability fallbacks.
package cpu

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/blur/gpucore"
	"github.com/gogpu/blur/internal/parallel"
)

// Device defaults.
const (
	DefaultPitchAlignment   = 256
	DefaultMaxWorkGroupSize = 1024
	DefaultLocalMemorySize  = 32 * 1024
)

// Device is a software compute device. It is safe for concurrent use, but
// its single queue serializes dispatches.
type Device struct {
	name     string
	caps     gpucore.Capabilities
	memLimit int64

	logger atomic.Pointer[slog.Logger]
	pool   *parallel.WorkerPool

	mu        sync.Mutex
	nextID    uint64
	mems      map[gpucore.MemoryID]*memObject
	programs  map[gpucore.ProgramID]*program
	allocated int64

	queue    chan command
	pending  sync.WaitGroup
	loopDone chan struct{}
	closed   atomic.Bool

	errMu    sync.Mutex
	firstErr error
}

// Option configures a Device.
type Option func(*config)

type config struct {
	name     string
	workers  int
	disabled map[gpucore.Capability]bool
	caps     gpucore.Capabilities
	memLimit int64
	logger   *slog.Logger
}

// WithName sets the device name.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithWorkers sets the number of pool goroutines. Zero uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// WithoutCapability removes an optional capability from the device.
func WithoutCapability(feature gpucore.Capability) Option {
	return func(c *config) { c.disabled[feature] = true }
}

// WithPitchAlignment sets the row pitch alignment in bytes required for
// images created over buffers.
func WithPitchAlignment(bytes int) Option {
	return func(c *config) { c.caps.ImagePitchAlignment = bytes }
}

// WithMaxWorkGroupSize sets the maximum number of work-items per group.
func WithMaxWorkGroupSize(n int) Option {
	return func(c *config) { c.caps.MaxWorkGroupSize = n }
}

// WithLocalMemorySize sets the work-group local memory size in bytes.
func WithLocalMemorySize(bytes int) Option {
	return func(c *config) { c.caps.LocalMemorySize = bytes }
}

// WithMaxAllocation limits the size of a single memory object in bytes.
func WithMaxAllocation(bytes int64) Option {
	return func(c *config) { c.caps.MaxAllocation = bytes }
}

// WithMemoryLimit limits the total bytes of live memory objects.
func WithMemoryLimit(bytes int64) Option {
	return func(c *config) { c.memLimit = bytes }
}

// WithLogger sets the device logger. The blur pipeline replaces it with
// the package logger when the device is attached.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// New creates a software device and starts its queue.
func New(opts ...Option) *Device {
	cfg := config{
		name:     "cpu",
		disabled: make(map[gpucore.Capability]bool),
		caps: gpucore.Capabilities{
			ImagePitchAlignment: DefaultPitchAlignment,
			MaxWorkGroupSize:    DefaultMaxWorkGroupSize,
			LocalMemorySize:     DefaultLocalMemorySize,
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	for _, f := range []gpucore.Capability{gpucore.CapLocalMemory, gpucore.CapImages, gpucore.CapImageFromBuffer} {
		if !cfg.disabled[f] {
			cfg.caps.Features = append(cfg.caps.Features, f)
		}
	}

	d := &Device{
		name:     cfg.name,
		caps:     cfg.caps,
		memLimit: cfg.memLimit,
		pool:     parallel.NewWorkerPool(cfg.workers),
		mems:     make(map[gpucore.MemoryID]*memObject),
		programs: make(map[gpucore.ProgramID]*program),
		queue:    make(chan command, 64),
		loopDone: make(chan struct{}),
	}
	d.SetLogger(cfg.logger)
	go d.loop()
	return d
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// Capabilities returns the device capabilities.
func (d *Device) Capabilities() gpucore.Capabilities {
	caps := d.caps
	caps.Features = append([]gpucore.Capability(nil), d.caps.Features...)
	return caps
}

// SetLogger sets the device logger. Nil disables logging.
func (d *Device) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(discardHandler{})
	}
	d.logger.Store(l)
}

func (d *Device) log() *slog.Logger { return d.logger.Load() }

// Allocated returns the bytes held by live memory objects.
func (d *Device) Allocated() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocated
}

// LiveObjects returns the number of live memory objects and programs.
func (d *Device) LiveObjects() (memory, programs int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.mems), len(d.programs)
}

// Close drains the queue and stops the device.
func (d *Device) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.pending.Wait()
	close(d.queue)
	<-d.loopDone
	d.pool.Close()

	d.mu.Lock()
	d.mems = make(map[gpucore.MemoryID]*memObject)
	d.programs = make(map[gpucore.ProgramID]*program)
	d.allocated = 0
	d.mu.Unlock()
	return nil
}

func (d *Device) newID() uint64 {
	d.nextID++
	return d.nextID
}

// discardHandler drops every record.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }

var _ gpucore.Backend = (*Device)(nil)
