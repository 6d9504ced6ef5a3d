// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build opencl

package opencl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jgillich/go-opencl/cl"

	"github.com/gogpu/blur/backend"
	"github.com/gogpu/blur/gpucore"
)

// imagePitchAlignment is the row pitch alignment used for images over
// buffers. The bindings do not expose CL_DEVICE_IMAGE_PITCH_ALIGNMENT.
const imagePitchAlignment = 256

// memObject is a buffer or an image.
type memObject struct {
	mem    *cl.MemObject
	label  string
	access gpucore.Access
	size   int // bytes, buffers only

	image         bool
	width, height int
}

// program is a built program and its kernels.
type program struct {
	name    string
	prog    *cl.Program
	kernels map[string]*cl.Kernel
}

// profiled pairs a device event with the event handed to the caller.
type profiled struct {
	cl  *cl.Event
	evt *gpucore.Event
}

// Device runs the blur programs on an OpenCL device.
type Device struct {
	mu sync.Mutex

	device  *cl.Device
	context *cl.Context
	queue   *cl.CommandQueue
	name    string
	caps    gpucore.Capabilities
	logger  atomic.Pointer[slog.Logger]

	nextID   uint64
	mems     map[gpucore.MemoryID]*memObject
	programs map[gpucore.ProgramID]*program
	pending  []profiled
	closed   bool
}

func init() {
	backend.Register(backend.OpenCL, func() (gpucore.Backend, error) {
		d, err := New()
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}

// Devices lists the devices of every platform.
func Devices() ([]DeviceInfo, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		return nil, fmt.Errorf("%w: query platforms: %w", ErrUnavailable, err)
	}
	var out []DeviceInfo
	for pi, p := range platforms {
		devices, err := p.GetDevices(cl.DeviceTypeAll)
		if err != nil {
			continue
		}
		for di, d := range devices {
			out = append(out, DeviceInfo{
				Platform: pi,
				Index:    di,
				Name:     d.Name(),
				Vendor:   d.Vendor(),
				GPU:      d.Type() == cl.DeviceTypeGPU,
			})
		}
	}
	return out, nil
}

// selectDevice picks the configured device, or the first GPU (CPU when
// preferred) of any platform, or the first device at all.
func selectDevice(cfg config) (*cl.Device, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		return nil, fmt.Errorf("%w: query platforms: %w", ErrUnavailable, err)
	}
	if len(platforms) == 0 {
		return nil, fmt.Errorf("%w: no platforms", ErrUnavailable)
	}

	if cfg.platform >= 0 {
		if cfg.platform >= len(platforms) {
			return nil, fmt.Errorf("%w: platform %d of %d", ErrUnavailable, cfg.platform, len(platforms))
		}
		devices, err := platforms[cfg.platform].GetDevices(cl.DeviceTypeAll)
		if err != nil || cfg.device < 0 || cfg.device >= len(devices) {
			return nil, fmt.Errorf("%w: device %d on platform %d", ErrUnavailable, cfg.device, cfg.platform)
		}
		return devices[cfg.device], nil
	}

	order := []cl.DeviceType{cl.DeviceTypeGPU, cl.DeviceTypeCPU, cl.DeviceTypeAll}
	if cfg.cpu {
		order[0], order[1] = order[1], order[0]
	}
	for _, typ := range order {
		for _, p := range platforms {
			devices, err := p.GetDevices(typ)
			if err != nil && !errors.Is(err, cl.ErrDeviceNotFound) {
				continue
			}
			if len(devices) > 0 {
				return devices[0], nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no devices", ErrUnavailable)
}

// New opens an OpenCL device with an in-order, profiling-enabled queue.
func New(opts ...Option) (*Device, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	device, err := selectDevice(cfg)
	if err != nil {
		return nil, err
	}

	ctx, err := cl.CreateContext([]*cl.Device{device})
	if err != nil {
		return nil, fmt.Errorf("opencl: create context: %w", err)
	}
	queue, err := ctx.CreateCommandQueue(device, cl.CommandQueueProfilingEnable)
	if err != nil {
		ctx.Release()
		return nil, fmt.Errorf("opencl: create command queue: %w", err)
	}

	features := []gpucore.Capability{gpucore.CapLocalMemory}
	if device.ImageSupport() {
		features = append(features, gpucore.CapImages)
		if strings.Contains(device.Extensions(), string(gpucore.CapImageFromBuffer)) {
			features = append(features, gpucore.CapImageFromBuffer)
		}
	}

	d := &Device{
		device:  device,
		context: ctx,
		queue:   queue,
		name:    strings.TrimSpace(device.Name()),
		caps: gpucore.Capabilities{
			Features:            features,
			ImagePitchAlignment: imagePitchAlignment,
			MaxWorkGroupSize:    device.MaxWorkGroupSize(),
			LocalMemorySize:     int(device.LocalMemSize()),
			MaxAllocation:       device.MaxMemAllocSize(),
		},
		mems:     make(map[gpucore.MemoryID]*memObject),
		programs: make(map[gpucore.ProgramID]*program),
	}
	d.SetLogger(cfg.logger)
	d.log().Info("opencl: device opened", "device", d.name, "features", fmt.Sprint(features))
	return d, nil
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

// newID returns the next object ID. Callers hold d.mu.
func (d *Device) newID() uint64 {
	d.nextID++
	return d.nextID
}

// Close waits for the queue and releases every object.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	err := d.finish()
	for id, p := range d.programs {
		releaseProgram(p)
		delete(d.programs, id)
	}
	for id, m := range d.mems {
		m.mem.Release()
		delete(d.mems, id)
	}
	d.queue.Release()
	d.context.Release()
	d.closed = true
	return err
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }

var _ gpucore.Backend = (*Device)(nil)
