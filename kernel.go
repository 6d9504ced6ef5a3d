package blur

import (
	"fmt"
	"math"
	"strings"

	"github.com/chewxy/math32"
)

// Kernel generation constants.
const (
	// Epsilon is the smallest magnitude treated as non-zero.
	Epsilon = 1.0e-15

	// QuantumScale is one 16-bit quantum step, 1/65535.
	QuantumScale = 1.0 / 65535.0

	// sqrt2Pi is √(2π).
	sqrt2Pi = 2.50662827463100024161235523934010416269302368164062

	// oversample is the number of sub-samples folded into each tap.
	oversample = 3
)

// Kernel is an immutable one dimensional convolution kernel of odd length.
// The tap at Center is aligned with the output pixel.
type Kernel struct {
	weights []float32
	radius  float64
	sigma   float64
	pos     float64
	neg     float64
}

// Len returns the number of taps.
func (k Kernel) Len() int { return len(k.weights) }

// Center returns the index of the center tap.
func (k Kernel) Center() int { return (len(k.weights) - 1) / 2 }

// At returns the weight of tap i.
func (k Kernel) At(i int) float32 { return k.weights[i] }

// Weights returns a copy of the taps.
func (k Kernel) Weights() []float32 {
	w := make([]float32, len(k.weights))
	copy(w, k.weights)
	return w
}

// Radius returns the radius the kernel was generated for.
func (k Kernel) Radius() float64 { return k.radius }

// Sigma returns the standard deviation the kernel was generated for.
func (k Kernel) Sigma() float64 { return k.sigma }

// PositiveSum returns the sum of the non-negative taps before normalization.
func (k Kernel) PositiveSum() float64 { return k.pos }

// NegativeSum returns the sum of the negative taps before normalization.
func (k Kernel) NegativeSum() float64 { return k.neg }

// String formats the kernel as "kernel(N):w0;w1;...;".
func (k Kernel) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "kernel(%d):", len(k.weights))
	for _, w := range k.weights {
		fmt.Fprintf(&sb, "%g;", w)
	}
	return sb.String()
}

// NewKernel wraps explicit weights. The length must be odd and positive.
func NewKernel(weights []float32) (Kernel, error) {
	if len(weights) == 0 || len(weights)%2 == 0 {
		return Kernel{}, fmt.Errorf("%w: kernel length %d is not odd", ErrInvalidConfig, len(weights))
	}
	w := make([]float32, len(weights))
	copy(w, weights)
	return Kernel{weights: w}, nil
}

// perceptibleReciprocal returns 1/x, or sign(x)/Epsilon when |x| is below
// Epsilon.
func perceptibleReciprocal(x float64) float64 {
	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	if sign*x >= Epsilon {
		return 1.0 / x
	}
	return sign / Epsilon
}

// finite reports whether x is neither NaN nor an infinity.
func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

// OptimalWidth returns the odd kernel width for radius and sigma.
//
// A positive radius gives 2*ceil(radius)+1; a non-finite radius is ignored.
// A zero or non-finite sigma gives 3. Otherwise the window grows from 5 in
// steps of 2 while the normalized density at its edge is still perceptible,
// and the last perceptible width is returned.
func OptimalWidth(radius, sigma float64) int {
	if finite(radius) && radius > Epsilon {
		return 2*int(math.Ceil(radius)) + 1
	}
	gamma := math.Abs(sigma)
	if gamma <= Epsilon || !finite(gamma) {
		return 3
	}

	alpha := perceptibleReciprocal(2.0 * gamma * gamma)
	beta := perceptibleReciprocal(sqrt2Pi * gamma)

	width := 5
	for {
		j := (width - 1) / 2
		normalize := 0.0
		for i := -j; i <= j; i++ {
			normalize += math.Exp(-float64(i*i)*alpha) * beta
		}
		value := math.Exp(-float64(j*j)*alpha) * beta / normalize
		if value < QuantumScale || value < Epsilon {
			break
		}
		width += 2
	}
	return width - 2
}

// GenerateKernel builds a normalized one dimensional Gaussian kernel.
//
// A radius of at least 1 fixes the width at 2*floor(radius)+1; smaller radii
// use OptimalWidth. For a finite sigma > Epsilon the Gaussian of deviation
// 3*sigma is sampled three times per tap and folded into the taps; otherwise
// the result is a unit impulse. Near-zero taps are zeroed and the positive and
// negative lobes are normalized independently to sum to 1 and -1.
func GenerateKernel(radius, sigma float64) Kernel {
	width := 0
	if finite(radius) && radius >= 1 {
		width = 2*int(math.Floor(radius)) + 1
	} else {
		width = OptimalWidth(radius, sigma)
	}

	acc := make([]float64, width)
	center := (width - 1) / 2

	if sigma > Epsilon && finite(sigma) {
		s := sigma * oversample
		alpha := 1.0 / (2.0 * s * s)
		beta := 1.0 / (sqrt2Pi * s)
		length := (width*oversample - 1) / 2
		for u := -length; u <= length; u++ {
			acc[(u+length)/oversample] += math.Exp(-float64(u*u)*alpha) * beta
		}
	} else {
		acc[center] = 1.0
	}

	var pos, neg float64
	for i, v := range acc {
		if math.Abs(v) < Epsilon {
			acc[i] = 0
			continue
		}
		if v < 0 {
			neg += v
		} else {
			pos += v
		}
	}

	posScale := 1.0
	if math.Abs(pos) >= Epsilon {
		posScale = pos
	}
	negScale := 1.0
	if math.Abs(neg) >= Epsilon {
		negScale = -neg
	}

	weights := make([]float32, width)
	for i, v := range acc {
		w := float32(v)
		if math32.IsNaN(w) || math32.IsInf(w, 0) {
			weights[i] = w
			continue
		}
		if w >= 0 {
			weights[i] = float32(v / posScale)
		} else {
			weights[i] = float32(v / negScale)
		}
	}

	return Kernel{weights: weights, radius: radius, sigma: sigma, pos: pos, neg: neg}
}
