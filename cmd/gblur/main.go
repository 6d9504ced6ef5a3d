// Command gblur applies a separable Gaussian blur to an image on a compute
// backend.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/gogpu/blur"
	"github.com/gogpu/blur/backend"
	_ "github.com/gogpu/blur/backend/cpu"
	"github.com/gogpu/blur/backend/opencl"
	_ "github.com/gogpu/blur/backend/wgpu"
	"github.com/gogpu/blur/gpucore"
	"github.com/gogpu/blur/imageio"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

// run parses args, blurs the input and writes the result. The device is
// closed on every return path.
func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("gblur", flag.ContinueOnError)
	var (
		input       = fs.String("in", "", "input image (png, jpg, tif, bmp, rgbaf.zst)")
		output      = fs.String("out", "blurred.png", "output image")
		radius      = fs.Float64("radius", 0, "kernel radius; 0 derives it from sigma")
		sigma       = fs.Float64("sigma", 1, "Gaussian standard deviation")
		local       = fs.Int("local", blur.DefaultWorkGroupSize, "work-group size of the row pass")
		localColumn = fs.Int("local-column", 0, "work-group size of the column pass; 0 uses -local")
		strategy    = fs.String("strategy", blur.LinearBuffer.String(), "memory strategy: "+strategyNames())
		backendName = fs.String("backend", "", "compute backend: cpu, wgpu, opencl; empty picks the best available")
		format      = fs.String("format", "rgba", "convolved channels: rgb or rgba")
		profile     = fs.Bool("profile", false, "print per-pass device times")
		noWrite     = fs.Bool("no-write", false, "skip readback and output encoding")
		maxDim      = fs.Int("max-dim", 0, "downscale the input to at most this many pixels per side")
		verbose     = fs.Bool("v", false, "verbose logging")
		list        = fs.Bool("list", false, "list strategies, backends and devices, then exit")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *verbose {
		blur.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	if *list {
		listBackends(stdout)
		return nil
	}
	if *input == "" {
		fs.Usage()
		return flag.ErrHelp
	}

	s, err := blur.ParseStrategy(*strategy)
	if err != nil {
		return err
	}
	pf, err := blur.ParsePixelFormat(*format)
	if err != nil {
		return err
	}
	column := *localColumn
	if column == 0 {
		column = *local
	}

	dev, err := openBackend(*backendName)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := dev.Close(); cerr != nil {
			log.Printf("close %s: %v", dev.Name(), cerr)
		}
	}()
	log.Printf("Using device: %s", dev.Name())

	var decodeOpts []imageio.Option
	if *maxDim > 0 {
		decodeOpts = append(decodeOpts, imageio.WithMaxDimension(*maxDim))
	}
	if s == blur.BufferBackedImage {
		decodeOpts = append(decodeOpts, imageio.WithRowAlignment(dev.Capabilities().ImagePitchAlignment))
	}
	src, err := imageio.Decode(*input, decodeOpts...)
	if err != nil {
		return fmt.Errorf("read %s: %w", *input, err)
	}

	p, err := blur.New(dev,
		blur.WithStrategy(s),
		blur.WithWorkGroupSize(*local, column),
		blur.WithPixelFormat(pf),
		blur.WithProfiling(*profile),
		blur.WithWriteOutput(!*noWrite),
	)
	if err != nil {
		return err
	}

	k := blur.GenerateKernel(*radius, *sigma)
	fmt.Fprintln(stdout, k)

	res, err := p.Run(src, k)
	if err != nil {
		return err
	}
	if *profile && res.Timings.Captured {
		fmt.Fprintf(stdout, "[row]time us: %.3f\n", float64(res.Timings.Row.Nanoseconds())/1e3)
		fmt.Fprintf(stdout, "[column]time us: %.3f\n", float64(res.Timings.Column.Nanoseconds())/1e3)
	}
	if res.Image == nil {
		return nil
	}

	if err := imageio.Encode(*output, res.Image, pf); err != nil {
		return fmt.Errorf("save %s: %w", *output, err)
	}
	log.Printf("Blurred image saved to %s (%dx%d, %s)", *output, res.Image.Width, res.Image.Height, s)
	return nil
}

func strategyNames() string {
	var names []string
	for _, s := range blur.Strategies() {
		names = append(names, s.String())
	}
	return strings.Join(names, ", ")
}

func openBackend(name string) (gpucore.Backend, error) {
	if name == "" {
		return backend.Default()
	}
	return backend.Open(name)
}

func listBackends(w io.Writer) {
	fmt.Fprintln(w, "Strategies:", strategyNames())
	for _, name := range backend.Available() {
		dev, err := backend.Open(name)
		if err != nil {
			fmt.Fprintf(w, "%-8s unavailable: %v\n", name, err)
			continue
		}
		caps := dev.Capabilities()
		fmt.Fprintf(w, "%-8s %s\n", name, dev.Name())
		fmt.Fprintf(w, "         max work-group %d, local memory %d B, pitch alignment %d B\n",
			caps.MaxWorkGroupSize, caps.LocalMemorySize, caps.ImagePitchAlignment)
		for _, s := range blur.Strategies() {
			fmt.Fprintf(w, "         %-20s supported=%v\n", s, s.Supported(caps))
		}
		_ = dev.Close()
	}

	devices, err := opencl.Devices()
	if err != nil {
		return
	}
	for _, d := range devices {
		fmt.Fprintf(w, "opencl   platform %d device %d: %s (%s)\n", d.Platform, d.Index, d.Name, d.Vendor)
	}
}
