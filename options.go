package blur

import "fmt"

// DefaultWorkGroupSize is the work-group extent along the convolved axis
// when none is configured.
const DefaultWorkGroupSize = 64

// Option configures a Pipeline during creation.
//
// Example:
//
//	p, err := blur.New(dev,
//	    blur.WithStrategy(blur.TiledLocalCache),
//	    blur.WithWorkGroupSize(128, 64),
//	    blur.WithProfiling(true),
//	)
type Option func(*Config)

// Config holds the pipeline configuration.
type Config struct {
	Strategy Strategy

	// RowWorkGroupSize is the work-group width of the row pass.
	RowWorkGroupSize int

	// ColumnWorkGroupSize is the work-group height of the column pass.
	ColumnWorkGroupSize int

	// Profiling records per-pass device timestamps.
	Profiling bool

	// Format selects the convolved channels.
	Format PixelFormat

	// WriteOutput reads the result back to the host. When false, Run
	// returns a Result without an image.
	WriteOutput bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Strategy:            LinearBuffer,
		RowWorkGroupSize:    DefaultWorkGroupSize,
		ColumnWorkGroupSize: DefaultWorkGroupSize,
		Format:              RGBA,
		WriteOutput:         true,
	}
}

// Validate reports configuration errors that do not depend on the device.
func (c Config) Validate() error {
	if int(c.Strategy) >= len(strategyNames) {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, c.Strategy)
	}
	if c.RowWorkGroupSize <= 0 || c.ColumnWorkGroupSize <= 0 {
		return fmt.Errorf("%w: work-group sizes must be positive (row %d, column %d)",
			ErrInvalidConfig, c.RowWorkGroupSize, c.ColumnWorkGroupSize)
	}
	if c.Format != RGB && c.Format != RGBA {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, c.Format)
	}
	return nil
}

// WithStrategy selects the memory strategy.
func WithStrategy(s Strategy) Option {
	return func(c *Config) {
		c.Strategy = s
	}
}

// WithWorkGroupSize sets the row and column work-group extents.
func WithWorkGroupSize(row, column int) Option {
	return func(c *Config) {
		c.RowWorkGroupSize = row
		c.ColumnWorkGroupSize = column
	}
}

// WithRowWorkGroupSize sets the row pass work-group width.
func WithRowWorkGroupSize(n int) Option {
	return func(c *Config) {
		c.RowWorkGroupSize = n
	}
}

// WithColumnWorkGroupSize sets the column pass work-group height.
func WithColumnWorkGroupSize(n int) Option {
	return func(c *Config) {
		c.ColumnWorkGroupSize = n
	}
}

// WithProfiling enables per-pass timestamps in Result.Timings.
func WithProfiling(enabled bool) Option {
	return func(c *Config) {
		c.Profiling = enabled
	}
}

// WithPixelFormat selects RGB or RGBA convolution.
func WithPixelFormat(f PixelFormat) Option {
	return func(c *Config) {
		c.Format = f
	}
}

// WithWriteOutput enables or disables reading the result back.
func WithWriteOutput(enabled bool) Option {
	return func(c *Config) {
		c.WriteOutput = enabled
	}
}
