package cpu

import (
	"github.com/gogpu/blur/backend"
	"github.com/gogpu/blur/gpucore"
)

func init() {
	backend.Register(backend.CPU, func() (gpucore.Backend, error) {
		return New(), nil
	})
}
