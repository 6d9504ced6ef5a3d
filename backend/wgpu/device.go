// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package wgpu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/blur/gpucore"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// Errors returned by New.
var (
	// ErrNoBackend is returned when the Vulkan HAL backend is not compiled in.
	ErrNoBackend = errors.New("wgpu: vulkan backend not available")

	// ErrNoAdapter is returned when no GPU adapter is found.
	ErrNoAdapter = errors.New("wgpu: no GPU adapters found")
)

// DefaultTimeout bounds every fence wait.
const DefaultTimeout = 5 * time.Second

// Device runs the buffer blur programs as WGSL compute shaders on a
// gogpu/wgpu HAL device.
type Device struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	name     string
	caps     gpucore.Capabilities
	timeout  time.Duration
	logger   atomic.Pointer[slog.Logger]

	nextID   uint64
	buffers  map[gpucore.MemoryID]*buffer
	programs map[gpucore.ProgramID]*program
	pending  []*submission
	closed   bool
}

// Option configures a Device.
type Option func(*config)

type config struct {
	preferIntegrated bool
	timeout          time.Duration
	logger           *slog.Logger
}

// WithIntegratedGPU prefers an integrated adapter over a discrete one.
func WithIntegratedGPU() Option {
	return func(c *config) { c.preferIntegrated = true }
}

// WithTimeout sets the fence wait timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithLogger sets the device logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// New opens the first suitable GPU adapter.
func New(opts ...Option) (*Device, error) {
	cfg := config{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, ErrNoBackend
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}

	first, second := gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU
	if cfg.preferIntegrated {
		first, second = second, first
	}
	// Later matches win: the preferred type overrides the fallback type.
	selected := &adapters[0]
	for _, want := range []gputypes.DeviceType{second, first} {
		for i := range adapters {
			if adapters[i].Info.DeviceType == want {
				selected = &adapters[i]
				break
			}
		}
	}

	limits := gputypes.DefaultLimits()
	openDev, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open device: %w", err)
	}

	d := &Device{
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
		name:     selected.Info.Name,
		timeout:  cfg.timeout,
		caps: gpucore.Capabilities{
			Features:         []gpucore.Capability{gpucore.CapLocalMemory},
			MaxWorkGroupSize: int(limits.MaxComputeInvocationsPerWorkgroup),
			LocalMemorySize:  int(limits.MaxComputeWorkgroupStorageSize),
			MaxAllocation:    int64(limits.MaxBufferSize), //nolint:gosec // device limit
		},
		buffers:  make(map[gpucore.MemoryID]*buffer),
		programs: make(map[gpucore.ProgramID]*program),
	}
	d.SetLogger(cfg.logger)
	d.log().Info("wgpu: device opened", "adapter", d.name, "type", selected.Info.DeviceType)
	return d, nil
}

// Name returns the adapter name.
func (d *Device) Name() string { return d.name }

// Capabilities returns the device capabilities. Images are not supported.
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

// newID returns the next object ID. Callers hold d.mu.
func (d *Device) newID() uint64 {
	d.nextID++
	return d.nextID
}

// Close waits for pending work and destroys every GPU object.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	err := d.drain()
	for id, p := range d.programs {
		d.destroyProgram(p)
		delete(d.programs, id)
	}
	for id, b := range d.buffers {
		d.device.DestroyBuffer(b.buf)
		delete(d.buffers, id)
	}
	d.device.Destroy()
	d.instance.Destroy()
	d.closed = true
	return err
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }

var _ gpucore.Backend = (*Device)(nil)
