package splat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackQuantizedDepth_OrderingDescendingByDepth(t *testing.T) {
	near := PackQuantizedDepth(0.1, 0)
	far := PackQuantizedDepth(0.9, 0)
	assert.Greater(t, far, near, "a farther normalized depth must pack to a larger key")
}

func TestPackQuantizedDepth_StableTieBreak(t *testing.T) {
	// Equal depths, indices a < b: spec requires a to sort before b, which
	// for a descending-key sort means key(a) > key(b).
	a := PackQuantizedDepth(0.5, 3)
	b := PackQuantizedDepth(0.5, 9)
	assert.Greater(t, a, b)
}

func TestPackQuantizedDepth_TieBreakWrapsModulo256(t *testing.T) {
	a := PackQuantizedDepth(0.5, 0)
	b := PackQuantizedDepth(0.5, 256)
	assert.Equal(t, a, b, "indices 256 apart share the same 8-bit tail")
}

func TestPackQuantizedDepth_ClampsOutOfRangeDepth(t *testing.T) {
	below := PackQuantizedDepth(-1, 5)
	zero := PackQuantizedDepth(0, 5)
	assert.Equal(t, zero, below)

	above := PackQuantizedDepth(2, 5)
	one := PackQuantizedDepth(1, 5)
	assert.Equal(t, one, above)
}

func TestBucketID_MonotonicNearerIsLarger(t *testing.T) {
	near := BucketID(1, 0.1, 1000, NumBuckets)
	far := BucketID(999, 0.1, 1000, NumBuckets)
	assert.Greater(t, near, far, "nearer Gaussians must receive larger bucket ids")
}

func TestBucketID_ClampsToRange(t *testing.T) {
	assert.Equal(t, uint32(NumBuckets-1), BucketID(-100, 0.1, 1000, NumBuckets))
	assert.Equal(t, uint32(0), BucketID(100000, 0.1, 1000, NumBuckets))
}

func TestGPUCameraUniform_MarshalSize(t *testing.T) {
	var c GPUCameraUniform
	assert.Equal(t, 224, c.Size())
	assert.Len(t, c.Marshal(), 224)
}

func TestGPUCullParams_MarshalSize(t *testing.T) {
	c := GPUCullParams{NearPlane: 0.1, FarPlane: 1000, TotalCount: 42}
	assert.Equal(t, 32, c.Size())
	buf := c.Marshal()
	assert.Len(t, buf, 32)
}

func TestGPUSortStepParams_MarshalSize(t *testing.T) {
	s := GPUSortStepParams{K: 4, J: 2, Capacity: 128}
	assert.Len(t, s.Marshal(), 16)
}

func TestGPUIndirectDrawArgs_Marshal(t *testing.T) {
	a := GPUIndirectDrawArgs{VertexCount: 4, InstanceCount: 10}
	buf := a.Marshal()
	assert.Len(t, buf, IndirectDrawArgsSize)
	assert.Equal(t, byte(4), buf[0])
	assert.Equal(t, byte(10), buf[4])
}

func TestGPURasterParams_MarshalSize(t *testing.T) {
	r := GPURasterParams{LowPassFilter: 0.3, AlphaCullThreshold: 1.0 / 255.0, SHMode: uint32(SHModeL1)}
	assert.Len(t, r.Marshal(), 16)
}
