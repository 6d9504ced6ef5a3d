package cpu

import "github.com/gogpu/blur/gpucore"

// Blur entry points. Each program exposes BlurRow and BlurColumn; the axis
// argument selects the convolved direction (0 = x, 1 = y).
//
// Buffer programs take:
//
//	src, channels, mask, weights, kernelLength, width, height, pitch, [cache,] dst
//
// Image programs take:
//
//	src, dst, kernelLength, weights, axisLength, mask
//
// Taps outside the image replicate the edge pixel. Channels whose mask bit
// is clear copy the source pixel at the output position.
var sources = map[string]*programSource{
	"linear": {
		entries: map[string]*entryPoint{
			"BlurRow":    linearEntry(0),
			"BlurColumn": linearEntry(1),
		},
	},
	"tiled": {
		entries: map[string]*entryPoint{
			"BlurRow":    tiledEntry(0),
			"BlurColumn": tiledEntry(1),
		},
		requires: []gpucore.Capability{gpucore.CapLocalMemory},
	},
	"image2d": {
		entries: map[string]*entryPoint{
			"BlurRow":    imageEntry(0),
			"BlurColumn": imageEntry(1),
		},
		requires: []gpucore.Capability{gpucore.CapImages},
	},
	"image_buffer": {
		entries: map[string]*entryPoint{
			"BlurRow":    imageEntry(0),
			"BlurColumn": imageEntry(1),
		},
		requires: []gpucore.Capability{gpucore.CapImages, gpucore.CapImageFromBuffer},
	},
}

// Buffer program argument indices.
const (
	bufSrc = iota
	bufChannels
	bufMask
	bufWeights
	bufKernelLen
	bufWidth
	bufHeight
	bufPitch
	bufDst // tiled: cache
)

// Image program argument indices.
const (
	imgSrc = iota
	imgDst
	imgKernelLen
	imgWeights
	imgAxisLen
	imgMask
)

// bufferLayout is the decoded scalar arguments of a buffer program.
type bufferLayout struct {
	src, weights, dst []float32
	mask              uint32
	klen              int
	width, height     int
	stride            int
}

func decodeBuffer(args []argValue, dst int) bufferLayout {
	channels := args[bufChannels].u
	mask := args[bufMask].u
	if channels < 4 {
		mask &= (1 << channels) - 1
	}
	return bufferLayout{
		src:     args[bufSrc].buf,
		weights: args[bufWeights].buf,
		dst:     args[dst].buf,
		mask:    mask,
		klen:    int(args[bufKernelLen].u),
		width:   int(args[bufWidth].u),
		height:  int(args[bufHeight].u),
		stride:  int(args[bufPitch].u),
	}
}

func (l *bufferLayout) pixel(x, y int) [4]float32 {
	i := y*l.stride + x*4
	return [4]float32{l.src[i], l.src[i+1], l.src[i+2], l.src[i+3]}
}

func (l *bufferLayout) store(x, y int, p [4]float32) {
	i := y*l.stride + x*4
	copy(l.dst[i:i+4], p[:])
}

// axisLen returns the image length along axis.
func (l *bufferLayout) axisLen(axis int) int {
	if axis == 1 {
		return l.height
	}
	return l.width
}

// blend keeps the convolved channels selected by mask and the source
// channels otherwise.
func blend(sum, center [4]float32, mask uint32) [4]float32 {
	for c := range 4 {
		if mask&(1<<c) == 0 {
			sum[c] = center[c]
		}
	}
	return sum
}

func accumulate(sum *[4]float32, p [4]float32, w float32) {
	sum[0] += p[0] * w
	sum[1] += p[1] * w
	sum[2] += p[2] * w
	sum[3] += p[3] * w
}

func checkBufferArgs(args []argValue, dst int) error {
	l := decodeBuffer(args, dst)
	if l.klen <= 0 || l.klen > len(l.weights) {
		return gpucore.Errorf(gpucore.StatusInvalidArgValue, "enqueue", "kernel length %d with %d weights", l.klen, len(l.weights))
	}
	need := (l.height-1)*l.stride + l.width*4
	if l.width <= 0 || l.height <= 0 || l.stride < l.width*4 || len(l.src) < need || len(l.dst) < need {
		return gpucore.Errorf(gpucore.StatusInvalidArgValue, "enqueue",
			"%dx%d image with pitch %d does not fit the buffers", l.width, l.height, l.stride)
	}
	return nil
}

// linearEntry reads every tap from the source buffer.
func linearEntry(axis int) *entryPoint {
	return &entryPoint{
		params: []param{pBufferIn, pUint, pUint, pBufferIn, pUint, pUint, pUint, pUint, pBufferOut},
		check: func(args []argValue, _, _ gpucore.NDRange) error {
			return checkBufferArgs(args, bufDst)
		},
		run: func(it *workItem) {
			l := decodeBuffer(it.args, bufDst)
			x, y := it.global[0], it.global[1]
			if x >= l.width || y >= l.height {
				return
			}
			center := (l.klen - 1) / 2
			last := l.axisLen(axis) - 1
			var sum [4]float32
			for k := range l.klen {
				sx, sy := x, y
				if axis == 0 {
					sx = clamp(x+k-center, 0, last)
				} else {
					sy = clamp(y+k-center, 0, last)
				}
				accumulate(&sum, l.pixel(sx, sy), l.weights[k])
			}
			l.store(x, y, blend(sum, l.pixel(x, y), l.mask))
		},
	}
}

// tiledEntry stages the group's span plus the kernel halo in local memory,
// synchronizes, then reads every tap from the cache.
func tiledEntry(axis int) *entryPoint {
	const cacheArg, dstArg = bufDst, bufDst + 1
	return &entryPoint{
		params:  []param{pBufferIn, pUint, pUint, pBufferIn, pUint, pUint, pUint, pUint, pLocal, pBufferOut},
		barrier: true,
		check: func(args []argValue, _, local gpucore.NDRange) error {
			if err := checkBufferArgs(args, dstArg); err != nil {
				return err
			}
			if local[1-axis] != 1 {
				return gpucore.Errorf(gpucore.StatusInvalidWorkGroupSize, "enqueue",
					"local %s must be 1 across the convolved axis", local)
			}
			klen := int(args[bufKernelLen].u)
			if need := (local[axis] + klen - 1) * 4; args[cacheArg].local < need {
				return gpucore.Errorf(gpucore.StatusInvalidArgSize, "enqueue",
					"cache holds %d floats, group needs %d", args[cacheArg].local, need)
			}
			return nil
		},
		run: func(it *workItem) {
			l := decodeBuffer(it.args, dstArg)
			cache := it.locals[cacheArg]
			center := (l.klen - 1) / 2
			length := l.axisLen(axis)

			lid := it.local[axis]
			span := it.localSize[axis]
			start := it.group[axis] * span
			other := it.global[1-axis]
			otherLen := l.axisLen(1 - axis)
			inRange := other < otherLen

			if inRange {
				for i := lid; i < span+l.klen-1; i += span {
					pos := clamp(start-center+i, 0, length-1)
					var p [4]float32
					if axis == 0 {
						p = l.pixel(pos, other)
					} else {
						p = l.pixel(other, pos)
					}
					copy(cache[i*4:i*4+4], p[:])
				}
			}
			it.sync()

			pos := start + lid
			if !inRange || pos >= length {
				return
			}
			var sum [4]float32
			for k := range l.klen {
				i := (lid + k) * 4
				accumulate(&sum, [4]float32{cache[i], cache[i+1], cache[i+2], cache[i+3]}, l.weights[k])
			}
			c := (lid + center) * 4
			src := [4]float32{cache[c], cache[c+1], cache[c+2], cache[c+3]}
			x, y := pos, other
			if axis == 1 {
				x, y = other, pos
			}
			l.store(x, y, blend(sum, src, l.mask))
		},
	}
}

// imageEntry samples taps through edge-clamped image reads.
func imageEntry(axis int) *entryPoint {
	return &entryPoint{
		params: []param{pImageIn, pImageOut, pUint, pBufferIn, pUint, pUint},
		check: func(args []argValue, _, _ gpucore.NDRange) error {
			klen := int(args[imgKernelLen].u)
			if klen <= 0 || klen > len(args[imgWeights].buf) {
				return gpucore.Errorf(gpucore.StatusInvalidArgValue, "enqueue",
					"kernel length %d with %d weights", klen, len(args[imgWeights].buf))
			}
			src, dst := args[imgSrc].img, args[imgDst].img
			if src.width != dst.width || src.height != dst.height {
				return gpucore.Errorf(gpucore.StatusInvalidImageSize, "enqueue",
					"source %dx%d, destination %dx%d", src.width, src.height, dst.width, dst.height)
			}
			return nil
		},
		run: func(it *workItem) {
			src, dst := it.args[imgSrc].img, it.args[imgDst].img
			weights := it.args[imgWeights].buf
			klen := int(it.args[imgKernelLen].u)
			axisLen := int(it.args[imgAxisLen].u)
			mask := it.args[imgMask].u

			x, y := it.global[0], it.global[1]
			if x >= dst.width || y >= dst.height || it.global[axis] >= axisLen {
				return
			}
			center := (klen - 1) / 2
			var sum [4]float32
			for k := range klen {
				if axis == 0 {
					accumulate(&sum, src.read(x+k-center, y), weights[k])
				} else {
					accumulate(&sum, src.read(x, y+k-center), weights[k])
				}
			}
			dst.write(x, y, blend(sum, src.read(x, y), mask))
		},
	}
}
