// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package wgpu

import (
	"github.com/gogpu/blur/backend"
	"github.com/gogpu/blur/gpucore"
)

func init() {
	backend.Register(backend.WGPU, func() (gpucore.Backend, error) {
		d, err := New()
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}
