package splat

import (
	"math"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// AABB is an axis-aligned bounding box in model space.
type AABB struct {
	Min [3]float32
	Max [3]float32
}

// Center returns the AABB's center point.
func (b AABB) Center() [3]float32 {
	return [3]float32{
		(b.Min[0] + b.Max[0]) / 2,
		(b.Min[1] + b.Max[1]) / 2,
		(b.Min[2] + b.Max[2]) / 2,
	}
}

// Radius returns half the AABB's space diagonal length, matching the
// bounding-sphere radius the Splat Store derives at load.
func (b AABB) Radius() float32 {
	dx := b.Max[0] - b.Min[0]
	dy := b.Max[1] - b.Min[1]
	dz := b.Max[2] - b.Min[2]
	return float32(math.Sqrt(float64(dx*dx+dy*dy+dz*dz))) / 2
}

// Store owns the immutable per-Gaussian record buffer and the derived local
// bounding volume, plus the CPU-side transform state that composes the
// model matrix consumed by the camera uniform. All operations are total:
// per §4.1, the store has no failure mode of its own beyond the allocation
// error Load can surface.
type Store interface {
	// ID returns this store's generated identity, used by the surrounding
	// scene to distinguish multiple splat sets without relying on caller
	// string keys colliding.
	ID() uuid.UUID

	// Load replaces the record buffer, deriving the local AABB and bounding
	// sphere from the unmodified mean positions. Returns an error only if
	// records is empty or GPU allocation of the backing buffer fails; the
	// latter is reported by the Renderer that owns the buffer, not here —
	// Store itself holds only the CPU-side copy and derived geometry.
	Load(records []GaussianRecord) error

	// Records returns the loaded records in load order. The returned slice
	// must not be mutated; the record buffer is immutable after load.
	Records() []GaussianRecord

	// SplatCount returns the immutable total Gaussian count N.
	SplatCount() uint32

	// BoundingBox returns the local-space AABB derived at load.
	BoundingBox() AABB

	// BoundingSphere returns the local-space bounding sphere derived at
	// load: center and radius (half the space diagonal).
	BoundingSphere() (center [3]float32, radius float32)

	// SetPosition sets the world-space translation applied by the model
	// matrix.
	SetPosition(x, y, z float32)

	// SetRotationEuler sets the rotation, in radians, applied X then Y then
	// Z around the pivot.
	SetRotationEuler(x, y, z float32)

	// SetScale sets the per-axis scale applied around the pivot.
	SetScale(x, y, z float32)

	// SetPivot sets the point, in model space, that rotation and scale
	// pivot around. Defaults to the bounding-box center after Load.
	SetPivot(x, y, z float32)

	// ModelMatrix returns the current composed model matrix: T · (I − RS) ·
	// pivot + RS, RS = Rz·Ry·Rx·diag(scale).
	ModelMatrix() [16]float32

	// ModelMaxScale returns the largest column norm of the current R*S
	// submatrix, consumed by the Cull & Bin pass's world-radius estimate.
	ModelMaxScale() float32
}

// storeImpl is the implementation of the Store interface.
type storeImpl struct {
	id uuid.UUID

	records []GaussianRecord
	bounds  AABB

	position [3]float32
	rotation [3]float32
	scale    [3]float32
	pivot    [3]float32
}

var _ Store = &storeImpl{}

// NewStore creates a new, empty Store. Call Load before using it.
//
// Returns:
//   - Store: a new Store instance
func NewStore() Store {
	return &storeImpl{
		id:    uuid.New(),
		scale: [3]float32{1, 1, 1},
	}
}

func (s *storeImpl) ID() uuid.UUID {
	return s.id
}

func (s *storeImpl) Load(records []GaussianRecord) error {
	if len(records) == 0 {
		return wrapLoad(errors.New("no records provided"), "splat store load")
	}

	min := records[0].Mean
	max := records[0].Mean
	for _, r := range records[1:] {
		for i := 0; i < 3; i++ {
			if r.Mean[i] < min[i] {
				min[i] = r.Mean[i]
			}
			if r.Mean[i] > max[i] {
				max[i] = r.Mean[i]
			}
		}
	}

	s.records = records
	s.bounds = AABB{Min: min, Max: max}
	s.pivot = s.bounds.Center()

	return nil
}

func (s *storeImpl) Records() []GaussianRecord {
	return s.records
}

func (s *storeImpl) SplatCount() uint32 {
	return uint32(len(s.records))
}

func (s *storeImpl) BoundingBox() AABB {
	return s.bounds
}

func (s *storeImpl) BoundingSphere() ([3]float32, float32) {
	return s.bounds.Center(), s.bounds.Radius()
}

func (s *storeImpl) SetPosition(x, y, z float32) {
	s.position = [3]float32{x, y, z}
}

func (s *storeImpl) SetRotationEuler(x, y, z float32) {
	s.rotation = [3]float32{x, y, z}
}

func (s *storeImpl) SetScale(x, y, z float32) {
	s.scale = [3]float32{x, y, z}
}

func (s *storeImpl) SetPivot(x, y, z float32) {
	s.pivot = [3]float32{x, y, z}
}

func (s *storeImpl) ModelMatrix() [16]float32 {
	return BuildPivotedModelMatrix(s.position, s.rotation, s.scale, s.pivot)
}

func (s *storeImpl) ModelMaxScale() float32 {
	return ModelMaxScale(s.rotation, s.scale)
}
