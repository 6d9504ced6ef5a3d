package blur

import (
	"fmt"
	"testing"

	"github.com/gogpu/blur/backend/cpu"
)

// BenchmarkGenerateKernel benchmarks kernel generation for common sigmas.
func BenchmarkGenerateKernel(b *testing.B) {
	for _, sigma := range []float64{0.5, 2, 8, 32} {
		b.Run(fmt.Sprintf("sigma%g", sigma), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = GenerateKernel(0, sigma)
			}
		})
	}
}

// BenchmarkRun benchmarks a full two-pass blur per strategy on the software
// device.
func BenchmarkRun(b *testing.B) {
	sizes := []struct {
		name   string
		width  int
		height int
	}{
		{"64x64", 64, 64},
		{"256x256", 256, 256},
	}
	d := cpu.New()
	defer d.Close()
	k := GenerateKernel(0, 2)

	for _, size := range sizes {
		src := NewImage(size.width, size.height)
		src.Fill(Pixel{128, 64, 32, 255})
		for _, s := range Strategies() {
			b.Run(size.name+"/"+s.String(), func(b *testing.B) {
				p, err := New(d, WithStrategy(s), WithWorkGroupSize(64, 64))
				if err != nil {
					b.Fatal(err)
				}
				b.ReportAllocs()
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if _, err := p.Run(src, k); err != nil {
						b.Fatal(err)
					}
				}
				b.SetBytes(int64(src.Bytes()))
			})
		}
	}
}
