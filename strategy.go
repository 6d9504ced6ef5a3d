package blur

import (
	"fmt"
	"strings"

	"github.com/gogpu/blur/gpucore"
)

// Strategy selects where source, intermediate and output live on the device
// and how the convolution reads them.
type Strategy uint8

// Memory strategies.
const (
	// LinearBuffer keeps all three objects in plain buffers and reads taps
	// directly from device memory.
	LinearBuffer Strategy = iota

	// Image2D keeps all three objects in 2D images and reads taps through
	// edge-clamped image sampling.
	Image2D

	// TiledLocalCache uses buffers and stages each work-group's input span,
	// plus the kernel halo, in work-group local memory.
	TiledLocalCache

	// BufferBackedImage uploads into a buffer with an aligned row pitch and
	// reads it as an image aliasing that buffer; the output buffer is
	// written through an aliasing image the same way.
	BufferBackedImage
)

// Strategies returns every strategy in declaration order.
func Strategies() []Strategy {
	return []Strategy{LinearBuffer, Image2D, TiledLocalCache, BufferBackedImage}
}

var strategyNames = [...]string{
	LinearBuffer:      "linear",
	Image2D:           "image2d",
	TiledLocalCache:   "tiled",
	BufferBackedImage: "image_buffer",
}

// String returns the strategy name. It is also the device program name.
func (s Strategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("Strategy(%d)", s)
}

// ParseStrategy parses a strategy name as returned by String.
func ParseStrategy(name string) (Strategy, error) {
	for i, n := range strategyNames {
		if strings.EqualFold(n, name) {
			return Strategy(i), nil
		}
	}
	return LinearBuffer, fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, name)
}

// Requirements lists the device features the strategy needs.
func (s Strategy) Requirements() []gpucore.Capability {
	switch s {
	case Image2D:
		return []gpucore.Capability{gpucore.CapImages}
	case TiledLocalCache:
		return []gpucore.Capability{gpucore.CapLocalMemory}
	case BufferBackedImage:
		return []gpucore.Capability{gpucore.CapImages, gpucore.CapImageFromBuffer}
	default:
		return nil
	}
}

// Supported reports whether a device with caps can run the strategy.
// BufferBackedImage also needs a positive image pitch alignment.
func (s Strategy) Supported(caps gpucore.Capabilities) bool {
	for _, c := range s.Requirements() {
		if !caps.Has(c) {
			return false
		}
	}
	return s != BufferBackedImage || caps.ImagePitchAlignment > 0
}
