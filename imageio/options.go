package imageio

// Option configures decoding and encoding.
type Option func(*options)

type options struct {
	rowAlignment int
	maxDimension int
	jpegQuality  int
	sixteenBit   bool
}

func newOptions(opts []Option) options {
	o := options{jpegQuality: 95}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithRowAlignment pads decoded rows to a multiple of bytes. The pitch is
// always a multiple of the pixel size.
func WithRowAlignment(bytes int) Option {
	return func(o *options) { o.rowAlignment = bytes }
}

// WithMaxDimension downscales decoded images whose width or height exceeds
// px, keeping the aspect ratio. Raw float images are never resized.
func WithMaxDimension(px int) Option {
	return func(o *options) { o.maxDimension = px }
}

// WithJPEGQuality sets the JPEG quality (1-100). The default is 95.
func WithJPEGQuality(q int) Option {
	return func(o *options) { o.jpegQuality = min(max(q, 1), 100) }
}

// WithSixteenBit writes 16 bits per channel where the codec supports it
// (PNG and TIFF).
func WithSixteenBit(enabled bool) Option {
	return func(o *options) { o.sixteenBit = enabled }
}
