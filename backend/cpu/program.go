package cpu

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gogpu/blur/gpucore"
)

type paramKind uint8

const (
	paramBuffer paramKind = iota
	paramImage
	paramUint
	paramLocal
)

func (k paramKind) String() string {
	switch k {
	case paramBuffer:
		return "buffer"
	case paramImage:
		return "image"
	case paramUint:
		return "uint"
	default:
		return "local"
	}
}

// param describes one entry point parameter. Memory parameters state
// whether the entry reads or writes them.
type param struct {
	kind  paramKind
	read  bool
	write bool
}

var (
	pBufferIn  = param{kind: paramBuffer, read: true}
	pBufferOut = param{kind: paramBuffer, write: true}
	pImageIn   = param{kind: paramImage, read: true}
	pImageOut  = param{kind: paramImage, write: true}
	pUint      = param{kind: paramUint}
	pLocal     = param{kind: paramLocal}
)

// entryPoint is a kernel function of a program.
type entryPoint struct {
	params []param

	// barrier runs the work-items of a group concurrently so that they can
	// synchronize with workItem.barrier.
	barrier bool

	// check validates resolved arguments against the work sizes.
	check func(args []argValue, global, local gpucore.NDRange) error

	run func(it *workItem)
}

// programSource is a named set of entry points.
type programSource struct {
	entries  map[string]*entryPoint
	requires []gpucore.Capability
}

// program is a built program.
type program struct {
	name    string
	source  *programSource
	options string
}

// requiredDefines are checked when present in a build.
var requiredDefines = map[string]string{
	"CLPixelType":     "float4",
	"CLQuantum":       "float",
	"CLSignedQuantum": "float",
}

// BuildProgram resolves a named program and validates the defines.
func (d *Device) BuildProgram(desc gpucore.ProgramDesc) (gpucore.ProgramID, error) {
	options := gpucore.FormatDefines(desc.Defines)
	src, ok := sources[desc.Name]
	if !ok {
		return gpucore.InvalidID, &gpucore.BuildError{
			Program: desc.Name,
			Log:     fmt.Sprintf("error: no program named %q (available: %s)", desc.Name, strings.Join(sourceNames(), ", ")),
		}
	}

	var log []string
	for _, c := range src.requires {
		if !d.caps.Has(c) {
			log = append(log, fmt.Sprintf("error: program %q requires %s", desc.Name, c))
		}
	}
	for key, want := range requiredDefines {
		if got, set := desc.Defines[key]; set && got != want {
			log = append(log, fmt.Sprintf("error: %s=%s is not supported, expected %s", key, got, want))
		}
	}
	if len(log) > 0 {
		sort.Strings(log)
		return gpucore.InvalidID, &gpucore.BuildError{Program: desc.Name, Log: strings.Join(log, "\n")}
	}

	d.mu.Lock()
	id := gpucore.ProgramID(d.newID())
	d.programs[id] = &program{name: desc.Name, source: src, options: options}
	d.mu.Unlock()

	d.log().Debug("cpu: program built", "id", id, "program", desc.Name, "options", options)
	return id, nil
}

// ReleaseProgram releases a built program.
func (d *Device) ReleaseProgram(id gpucore.ProgramID) {
	d.mu.Lock()
	delete(d.programs, id)
	d.mu.Unlock()
}

func sourceNames() []string {
	names := make([]string, 0, len(sources))
	for n := range sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
