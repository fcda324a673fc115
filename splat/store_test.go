package splat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_LoadDerivesAABBAndBoundingSphere(t *testing.T) {
	s := NewStore()
	records := []GaussianRecord{
		{Mean: [3]float32{-1, -2, -3}, Opacity: 1},
		{Mean: [3]float32{1, 2, 3}, Opacity: 1},
		{Mean: [3]float32{0, 0, 0}, Opacity: 1},
	}
	require.NoError(t, s.Load(records))

	box := s.BoundingBox()
	assert.Equal(t, [3]float32{-1, -2, -3}, box.Min)
	assert.Equal(t, [3]float32{1, 2, 3}, box.Max)

	center, radius := s.BoundingSphere()
	assert.Equal(t, [3]float32{0, 0, 0}, center)
	assert.InDelta(t, 3.74165, radius, 1e-4)

	assert.Equal(t, uint32(3), s.SplatCount())
	assert.Equal(t, records, s.Records())
}

func TestStore_LoadEmptyFails(t *testing.T) {
	s := NewStore()
	err := s.Load(nil)
	assert.Error(t, err)
}

func TestStore_PivotDefaultsToBoundingBoxCenter(t *testing.T) {
	s := NewStore()
	records := []GaussianRecord{
		{Mean: [3]float32{0, 0, 0}},
		{Mean: [3]float32{2, 0, 0}},
	}
	require.NoError(t, s.Load(records))

	// With no explicit transform, identity scale/rotation/position, the
	// model matrix must be the identity regardless of pivot.
	m := s.ModelMatrix()
	assert.InDelta(t, float32(1), m[0], 1e-5)
	assert.InDelta(t, float32(1), m[5], 1e-5)
	assert.InDelta(t, float32(1), m[10], 1e-5)
	assert.InDelta(t, float32(0), m[12], 1e-5)
}

func TestStore_ModelMatrix_RotateAroundPivotThenTranslate(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Load([]GaussianRecord{{Mean: [3]float32{1, 0, 0}}}))
	s.SetPivot(0, 0, 0)
	s.SetRotationEuler(0, float32(3.14159265/2), 0) // +90deg around Y

	m := s.ModelMatrix()
	// mean (1,0,0) rotated 90 deg around Y through origin -> (0,0,-1)
	x := m[0]*1 + m[4]*0 + m[8]*0 + m[12]
	y := m[1]*1 + m[5]*0 + m[9]*0 + m[13]
	z := m[2]*1 + m[6]*0 + m[10]*0 + m[14]
	assert.InDelta(t, 0, x, 1e-4)
	assert.InDelta(t, 0, y, 1e-4)
	assert.InDelta(t, -1, z, 1e-4)
}

func TestStore_SetPositionTranslatesAfterPivotedRotation(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Load([]GaussianRecord{{Mean: [3]float32{0, 0, 0}}}))
	s.SetPivot(0, 0, 0)
	s.SetPosition(5, 0, 0)

	m := s.ModelMatrix()
	assert.InDelta(t, float32(5), m[12], 1e-5)
}

func TestStore_ModelMaxScale(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Load([]GaussianRecord{{Mean: [3]float32{0, 0, 0}}}))
	s.SetScale(2, 1, 1)
	assert.InDelta(t, float32(2), s.ModelMaxScale(), 1e-4)
}

func TestAABB_CenterAndRadius(t *testing.T) {
	b := AABB{Min: [3]float32{-1, -1, -1}, Max: [3]float32{1, 1, 1}}
	assert.Equal(t, [3]float32{0, 0, 0}, b.Center())
	assert.InDelta(t, 1.7320508, b.Radius(), 1e-5)
}
