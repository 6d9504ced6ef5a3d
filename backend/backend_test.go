package backend_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/blur/backend"
	_ "github.com/gogpu/blur/backend/cpu"
	"github.com/gogpu/blur/gpucore"
)

func TestRegistryOpenCPU(t *testing.T) {
	// CPU backend is auto-registered via init()
	if !backend.IsRegistered(backend.CPU) {
		t.Fatal("cpu backend should be auto-registered")
	}

	b, err := backend.Open(backend.CPU)
	if err != nil {
		t.Fatalf("Open(cpu) error = %v", err)
	}
	defer b.Close()
	if !b.Capabilities().Has(gpucore.CapImages) {
		t.Error("cpu backend should support images")
	}
}

func TestRegistryOpenUnregistered(t *testing.T) {
	_, err := backend.Open("nonexistent")
	if !errors.Is(err, backend.ErrBackendNotAvailable) {
		t.Errorf("Open(nonexistent) error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestRegistryOpenFailingFactory(t *testing.T) {
	cause := errors.New("no platform")
	backend.Register("broken", func() (gpucore.Backend, error) { return nil, cause })
	defer backend.Unregister("broken")

	_, err := backend.Open("broken")
	if !errors.Is(err, backend.ErrBackendNotAvailable) || !errors.Is(err, cause) {
		t.Errorf("Open(broken) error = %v, want both sentinel and cause", err)
	}

	backend.Register("nil", func() (gpucore.Backend, error) { return nil, nil })
	defer backend.Unregister("nil")
	if _, err := backend.Open("nil"); !errors.Is(err, backend.ErrBackendNotAvailable) {
		t.Errorf("Open(nil) error = %v", err)
	}
}

func TestRegistryAvailableSorted(t *testing.T) {
	backend.Register("zzz", func() (gpucore.Backend, error) { return nil, errors.New("x") })
	backend.Register("aaa", func() (gpucore.Backend, error) { return nil, errors.New("x") })
	defer backend.Unregister("zzz")
	defer backend.Unregister("aaa")

	available := backend.Available()
	if !slices.IsSorted(available) {
		t.Errorf("Available() = %v, want sorted", available)
	}
	if !slices.Contains(available, backend.CPU) {
		t.Error("Available() should include 'cpu'")
	}
}

func TestRegistryDefault(t *testing.T) {
	b, err := backend.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	defer b.Close()
	// CPU is the default when no device backend can open
	t.Logf("Default() returned %q", b.Name())
}

func TestRegistryDefaultSkipsFailures(t *testing.T) {
	saved := backend.Available()
	for _, name := range saved {
		if name != backend.CPU {
			t.Skipf("backend %q registered; priority order would hide the failure", name)
		}
	}
	backend.Register(backend.OpenCL, func() (gpucore.Backend, error) { return nil, errors.New("no platform") })
	defer backend.Unregister(backend.OpenCL)

	b, err := backend.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	defer b.Close()
}

func TestRegistryUnregister(t *testing.T) {
	backend.Register("test-backend", func() (gpucore.Backend, error) { return nil, nil })

	if !backend.IsRegistered("test-backend") {
		t.Error("test-backend should be registered")
	}

	backend.Unregister("test-backend")

	if backend.IsRegistered("test-backend") {
		t.Error("test-backend should be unregistered")
	}
}
