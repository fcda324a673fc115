package splat

import "github.com/pkg/errors"

// ErrDeviceLost marks GPU device loss (driver reset) distinctly from an
// ordinary allocation failure. Device loss makes the whole scene unusable;
// it is surfaced to the caller rather than retried or partially recovered
// here. Nothing in this backend constructs it yet since the underlying
// renderer has no device-lost callback to source it from, mirroring the
// engine's existing err == nil gate around BeginComputeFrame/BeginFrame.
var ErrDeviceLost = errors.New("splat: gpu device lost")

// ErrEmptyStore is returned by Renderer.RegisterPipelines when no Gaussian
// records have been loaded into the bound Store yet.
var ErrEmptyStore = errors.New("splat: store has no loaded records")

// wrapLoad wraps an error encountered during Store.Load or GPU buffer
// allocation with a consistent prefix, per the ambient error-wrapping
// convention used at allocation/load boundaries.
func wrapLoad(err error, context string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, context)
}
