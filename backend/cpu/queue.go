package cpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/blur/gpucore"
	"github.com/gogpu/blur/internal/parallel"
)

// command is one queued operation.
type command struct {
	name string
	run  func() error
}

// loop executes queued commands in submission order.
func (d *Device) loop() {
	defer close(d.loopDone)
	for cmd := range d.queue {
		if err := cmd.run(); err != nil {
			d.log().Debug("cpu: command failed", "command", cmd.name, "err", err)
			d.errMu.Lock()
			if d.firstErr == nil {
				d.firstErr = err
			}
			d.errMu.Unlock()
		}
		d.pending.Done()
	}
}

func (d *Device) submit(cmd command) {
	d.pending.Add(1)
	d.queue <- cmd
}

// Finish waits for the queue to drain and returns the first command error
// since the previous Finish.
func (d *Device) Finish() error {
	d.pending.Wait()
	d.errMu.Lock()
	defer d.errMu.Unlock()
	err := d.firstErr
	d.firstErr = nil
	return err
}

// argValue is a resolved kernel argument.
type argValue struct {
	buf   []float32
	img   *surface
	u     uint32
	local int // floats
}

// workItem is the execution context of one work-item.
type workItem struct {
	global     [2]int
	local      [2]int
	group      [2]int
	globalSize gpucore.NDRange
	localSize  gpucore.NDRange

	args    []argValue
	locals  [][]float32
	barrier *parallel.Barrier
}

// sync blocks until every work-item of the group reaches the same point.
func (it *workItem) sync() {
	if it.barrier != nil {
		it.barrier.Wait()
	}
}

// Enqueue validates a dispatch and queues it.
func (d *Device) Enqueue(desc gpucore.DispatchDesc) (*gpucore.Event, error) {
	const op = "enqueue"
	if d.closed.Load() {
		return nil, gpucore.Errorf(gpucore.StatusDeviceNotAvailable, op, "device closed")
	}

	d.mu.Lock()
	prog, ok := d.programs[desc.Program]
	d.mu.Unlock()
	if !ok {
		return nil, gpucore.Errorf(gpucore.StatusInvalidProgram, op, "program#%d", desc.Program)
	}
	entry, ok := prog.source.entries[desc.Entry]
	if !ok {
		return nil, gpucore.Errorf(gpucore.StatusInvalidKernelName, op, "%s has no entry %q", prog.name, desc.Entry)
	}
	if err := d.checkWorkSize(desc.Global, desc.Local); err != nil {
		return nil, err
	}
	args, localBytes, err := d.resolveArgs(entry, desc.Args)
	if err != nil {
		return nil, err
	}
	if localBytes > d.caps.LocalMemorySize {
		return nil, gpucore.Errorf(gpucore.StatusOutOfResources, op,
			"%d bytes of local memory requested, device has %d", localBytes, d.caps.LocalMemorySize)
	}
	if entry.check != nil {
		if err := entry.check(args, desc.Global, desc.Local); err != nil {
			return nil, err
		}
	}

	var evt *gpucore.Event
	if desc.Profile {
		evt = &gpucore.Event{}
	}
	name := fmt.Sprintf("%s.%s", prog.name, desc.Entry)
	d.log().Debug("cpu: dispatch queued", "entry", name, "global", desc.Global.String(), "local", desc.Local.String())

	global, local := desc.Global, desc.Local
	d.submit(command{name: name, run: func() error {
		start := time.Now()
		d.execute(entry, args, global, local)
		if evt != nil {
			evt.Complete(start, time.Now())
		}
		return nil
	}})
	return evt, nil
}

func (d *Device) checkWorkSize(global, local gpucore.NDRange) error {
	const op = "enqueue"
	for i := range 2 {
		if global[i] <= 0 {
			return gpucore.Errorf(gpucore.StatusInvalidGlobalWorkSize, op, "global %s", global)
		}
		if local[i] <= 0 || global[i]%local[i] != 0 {
			return gpucore.Errorf(gpucore.StatusInvalidWorkGroupSize, op,
				"global %s is not a multiple of local %s", global, local)
		}
	}
	if local.Size() > d.caps.MaxWorkGroupSize {
		return gpucore.Errorf(gpucore.StatusInvalidWorkGroupSize, op,
			"local %s exceeds %d work-items", local, d.caps.MaxWorkGroupSize)
	}
	return nil
}

func (d *Device) resolveArgs(entry *entryPoint, args []gpucore.Arg) ([]argValue, int, error) {
	const op = "enqueue"
	if len(args) != len(entry.params) {
		return nil, 0, gpucore.Errorf(gpucore.StatusInvalidKernelArgs, op,
			"%d arguments, entry takes %d", len(args), len(entry.params))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]argValue, len(args))
	localBytes := 0
	for i, p := range entry.params {
		a := args[i]
		switch p.kind {
		case paramUint:
			if a.Kind != gpucore.ArgUint && a.Kind != gpucore.ArgInt {
				return nil, 0, gpucore.Errorf(gpucore.StatusInvalidArgValue, op, "arg %d: %s is not a scalar", i, a)
			}
			out[i].u = a.Value
		case paramLocal:
			if a.Kind != gpucore.ArgLocal || a.Size <= 0 {
				return nil, 0, gpucore.Errorf(gpucore.StatusInvalidArgSize, op, "arg %d: %s is not a local allocation", i, a)
			}
			out[i].local = (a.Size + 3) / 4
			localBytes += a.Size
		default:
			if a.Kind != gpucore.ArgMemory {
				return nil, 0, gpucore.Errorf(gpucore.StatusInvalidArgValue, op, "arg %d: %s is not a memory object", i, a)
			}
			m, ok := d.mems[a.Memory]
			if !ok {
				return nil, 0, gpucore.Errorf(gpucore.StatusInvalidMemObject, op, "arg %d: mem#%d released", i, a.Memory)
			}
			wantKind := kindBuffer
			if p.kind == paramImage {
				wantKind = kindImage
			}
			if m.kind != wantKind {
				return nil, 0, gpucore.Errorf(gpucore.StatusInvalidMemObject, op, "arg %d: %s is not a %s", i, m.label, p.kind)
			}
			if p.read && !m.access.CanRead() {
				return nil, 0, gpucore.Errorf(gpucore.StatusInvalidMemObject, op, "arg %d: %s is %s", i, m.label, m.access)
			}
			if p.write && !m.access.CanWrite() {
				return nil, 0, gpucore.Errorf(gpucore.StatusInvalidMemObject, op, "arg %d: %s is %s", i, m.label, m.access)
			}
			if m.kind == kindImage {
				out[i].img = m.surface()
			} else {
				out[i].buf = m.data
			}
		}
	}
	return out, localBytes, nil
}

// execute runs every work-group of a dispatch on the pool.
func (d *Device) execute(entry *entryPoint, args []argValue, global, local gpucore.NDRange) {
	groupsX := global[0] / local[0]
	groupsY := global[1] / local[1]
	d.pool.ExecuteRange(groupsX*groupsY, 0, func(g int) {
		runGroup(entry, args, global, local, [2]int{g % groupsX, g / groupsX})
	})
}

func runGroup(entry *entryPoint, args []argValue, global, local gpucore.NDRange, group [2]int) {
	var locals [][]float32
	for i, a := range args {
		if a.local > 0 {
			if locals == nil {
				locals = make([][]float32, len(args))
			}
			locals[i] = make([]float32, a.local)
		}
	}

	item := func(lx, ly int) workItem {
		return workItem{
			global:     [2]int{group[0]*local[0] + lx, group[1]*local[1] + ly},
			local:      [2]int{lx, ly},
			group:      group,
			globalSize: global,
			localSize:  local,
			args:       args,
			locals:     locals,
		}
	}

	if !entry.barrier || local.Size() == 1 {
		for ly := range local[1] {
			for lx := range local[0] {
				it := item(lx, ly)
				entry.run(&it)
			}
		}
		return
	}

	bar := parallel.NewBarrier(local.Size())
	var wg sync.WaitGroup
	wg.Add(local.Size())
	for ly := range local[1] {
		for lx := range local[0] {
			it := item(lx, ly)
			it.barrier = bar
			go func() {
				defer wg.Done()
				entry.run(&it)
			}()
		}
	}
	wg.Wait()
}
