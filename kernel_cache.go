package blur

import (
	"math"
	"sync"
)

// kernelKey identifies a generated kernel by its exact parameters.
type kernelKey struct {
	radius, sigma uint64
}

func newKernelKey(radius, sigma float64) kernelKey {
	return kernelKey{radius: math.Float64bits(radius), sigma: math.Float64bits(sigma)}
}

// kernelCache caches generated kernels to avoid recomputation.
type kernelCache struct {
	mu     sync.RWMutex
	cache  map[kernelKey]Kernel
	maxLen int
}

var defaultKernelCache = newKernelCache(64)

// newKernelCache creates a kernel cache with the given maximum entries.
func newKernelCache(maxLen int) *kernelCache {
	return &kernelCache{
		cache:  make(map[kernelKey]Kernel),
		maxLen: maxLen,
	}
}

// get retrieves a kernel from cache or generates and caches it.
func (c *kernelCache) get(radius, sigma float64) Kernel {
	key := newKernelKey(radius, sigma)

	c.mu.RLock()
	if k, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return k
	}
	c.mu.RUnlock()

	k := GenerateKernel(radius, sigma)

	c.mu.Lock()
	if len(c.cache) >= c.maxLen {
		// Full: drop half the entries.
		count := 0
		for key := range c.cache {
			delete(c.cache, key)
			count++
			if count >= c.maxLen/2 {
				break
			}
		}
	}
	c.cache[key] = k
	c.mu.Unlock()

	return k
}

// len returns the number of cached kernels.
func (c *kernelCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// CachedKernel returns GenerateKernel(radius, sigma), reusing a previously
// generated kernel for the same parameters. Kernels are immutable, so the
// cached value is shared safely.
func CachedKernel(radius, sigma float64) Kernel {
	return defaultKernelCache.get(radius, sigma)
}
