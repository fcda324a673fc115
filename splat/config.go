package splat

// SHMode selects which spherical-harmonic bands the rasterizer's vertex
// stage evaluates on top of the DC term.
type SHMode int

const (
	// SHModeDCOnly evaluates only colorDC; bands 1-3 are read from the
	// record but never added.
	SHModeDCOnly SHMode = iota
	// SHModeL1 adds SH band 1 on top of the DC term. Default.
	SHModeL1
	// SHModeL2 adds SH bands 1-2.
	SHModeL2
	// SHModeL3 adds SH bands 1-3.
	SHModeL3
)

// NumBuckets is the fixed depth-bucket count B. It sets bind-group layouts
// at compile time (the WGSL shaders hardcode it as a module const), so it is
// not a runtime-configurable field on Config.
const NumBuckets = 128

// WorkgroupSize is the fixed compute dispatch tile. Like NumBuckets, it is
// baked into the WGSL source as a literal @workgroup_size and is not a
// runtime-configurable field on Config.
const WorkgroupSize = 256

// Config is the culling/rendering configuration surface of the splat
// pipeline. Construct with NewConfig; all fields have the defaults named in
// the external-interfaces configuration table.
type Config struct {
	nearPlane          float32
	farPlane           float32
	pixelThreshold     float32
	lowPassFilter      float32
	alphaCullThreshold float32
	shMode             SHMode
}

// ConfigOption is a functional option used to configure a Config during
// construction.
type ConfigOption func(*Config)

// NewConfig builds a Config with the specification's default values, then
// applies the supplied options.
//
// Parameters:
//   - opts: a variadic list of ConfigOption functions to configure the result
//
// Returns:
//   - *Config: a new Config instance
func NewConfig(opts ...ConfigOption) *Config {
	c := &Config{
		nearPlane:          0.1,
		farPlane:           1000,
		pixelThreshold:     1.0,
		lowPassFilter:      0.3,
		alphaCullThreshold: 1.0 / 255.0,
		shMode:             SHModeL1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithNearPlane sets the near culling plane.
func WithNearPlane(near float32) ConfigOption {
	return func(c *Config) { c.nearPlane = near }
}

// WithFarPlane sets the far culling plane.
func WithFarPlane(far float32) ConfigOption {
	return func(c *Config) { c.farPlane = far }
}

// WithPixelThreshold sets the screen-space radius, in pixels, below which a
// Gaussian is culled.
func WithPixelThreshold(px float32) ConfigOption {
	return func(c *Config) { c.pixelThreshold = px }
}

// WithLowPassFilter sets the diagonal variance added in screen space for
// Mip-Splatting anti-aliasing.
func WithLowPassFilter(v float32) ConfigOption {
	return func(c *Config) { c.lowPassFilter = v }
}

// WithAlphaCullThreshold sets the alpha below which the fragment stage
// discards.
func WithAlphaCullThreshold(a float32) ConfigOption {
	return func(c *Config) { c.alphaCullThreshold = a }
}

// WithSHMode sets which spherical-harmonic bands the vertex stage evaluates.
func WithSHMode(mode SHMode) ConfigOption {
	return func(c *Config) { c.shMode = mode }
}

// NearPlane returns the configured near culling plane.
func (c *Config) NearPlane() float32 { return c.nearPlane }

// FarPlane returns the configured far culling plane.
func (c *Config) FarPlane() float32 { return c.farPlane }

// PixelThreshold returns the configured screen-space culling radius.
func (c *Config) PixelThreshold() float32 { return c.pixelThreshold }

// LowPassFilter returns the configured AA diagonal variance term.
func (c *Config) LowPassFilter() float32 { return c.lowPassFilter }

// AlphaCullThreshold returns the configured fragment discard threshold.
func (c *Config) AlphaCullThreshold() float32 { return c.alphaCullThreshold }

// SHMode returns the configured spherical-harmonic evaluation mode.
func (c *Config) SHMode() SHMode { return c.shMode }
