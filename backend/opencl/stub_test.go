//go:build !opencl

package opencl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/blur/backend"
)

func TestStubUnavailable(t *testing.T) {
	_, err := New()
	require.ErrorIs(t, err, ErrUnavailable)

	_, err = Devices()
	require.ErrorIs(t, err, ErrUnavailable)

	require.True(t, backend.IsRegistered(backend.OpenCL))
	_, err = backend.Open(backend.OpenCL)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, backend.ErrBackendNotAvailable)
}
