package splat

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPivotedModelMatrix_IdentityWhenNoTransform(t *testing.T) {
	m := BuildPivotedModelMatrix([3]float32{0, 0, 0}, [3]float32{0, 0, 0}, [3]float32{1, 1, 1}, [3]float32{0, 0, 0})
	want := [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
	for i := range want {
		assert.InDelta(t, want[i], m[i], 1e-5)
	}
}

func TestBuildPivotedModelMatrix_ScaleAroundNonOriginPivot(t *testing.T) {
	// Scaling by 2 around pivot (1,0,0) must leave the pivot fixed.
	m := BuildPivotedModelMatrix([3]float32{0, 0, 0}, [3]float32{0, 0, 0}, [3]float32{2, 2, 2}, [3]float32{1, 0, 0})
	x := m[0]*1 + m[4]*0 + m[8]*0 + m[12]
	y := m[1]*1 + m[5]*0 + m[9]*0 + m[13]
	z := m[2]*1 + m[6]*0 + m[10]*0 + m[14]
	assert.InDelta(t, float32(1), x, 1e-5)
	assert.InDelta(t, float32(0), y, 1e-5)
	assert.InDelta(t, float32(0), z, 1e-5)
}

func TestModelMaxScale_UniformScale(t *testing.T) {
	v := ModelMaxScale([3]float32{0, 0, 0}, [3]float32{3, 3, 3})
	assert.InDelta(t, float32(3), v, 1e-4)
}

func TestModelMaxScale_PicksLargestAxis(t *testing.T) {
	v := ModelMaxScale([3]float32{0, 0, 0}, [3]float32{1, 5, 2})
	assert.InDelta(t, float32(5), v, 1e-4)
}

func TestPerspectiveProjection_DiagonalTerms(t *testing.T) {
	fov := float32(math.Pi / 2)
	aspect := float32(1.5)
	p := PerspectiveProjection(fov, aspect, 0.1, 1000)
	wantYY := float32(1.0 / math.Tan(float64(fov)/2))
	wantXX := wantYY / aspect
	assert.InDelta(t, wantXX, p[0], 1e-4)
	assert.InDelta(t, wantYY, p[5], 1e-4)
}
