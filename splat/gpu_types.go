package splat

import (
	_ "embed"
	"encoding/binary"
	"math"
)

// GPUCameraUniformSource is the canonical WGSL definition of the
// CameraUniform struct. Matches GPUCameraUniform layout exactly (224 bytes,
// std140-style alignment).
//
//go:embed assets/camera_uniform.wgsl
var GPUCameraUniformSource string

// GPUCameraUniform packs the view/projection/model matrices and camera
// origin consumed by every compute and render stage of the splat pipeline.
// Matches the WGSL CameraUniform struct layout exactly (see
// GPUCameraUniformSource). Size: 224 bytes.
type GPUCameraUniform struct {
	View       [16]float32 // offset   0: column-major view matrix
	Proj       [16]float32 // offset  64: column-major projection matrix
	Model      [16]float32 // offset 128: column-major model matrix (see BuildPivotedModelMatrix)
	CameraPos  [3]float32  // offset 192: world-space camera origin
	_pad0      float32     // offset 204: padding
	ScreenSize [2]float32  // offset 208: viewport size in pixels
	_pad1      [2]float32  // offset 216: padding to 224
}

// Size returns the size of GPUCameraUniform in bytes (224).
func (c *GPUCameraUniform) Size() int {
	return 224
}

// Marshal serializes the GPUCameraUniform into a byte buffer ready for GPU
// upload.
func (c *GPUCameraUniform) Marshal() []byte {
	buf := make([]byte, c.Size())
	off := 0
	putF := func(f float32) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(f))
		off += 4
	}
	for _, f := range c.View {
		putF(f)
	}
	for _, f := range c.Proj {
		putF(f)
	}
	for _, f := range c.Model {
		putF(f)
	}
	for _, f := range c.CameraPos {
		putF(f)
	}
	putF(0) // _pad0
	for _, f := range c.ScreenSize {
		putF(f)
	}
	putF(0)
	putF(0) // _pad1
	return buf
}

// GPUCullParamsSource is the canonical WGSL definition of the CullParams
// struct. Matches GPUCullParams layout exactly (32 bytes).
//
//go:embed assets/cull_params.wgsl
var GPUCullParamsSource string

// GPUCullParams carries the per-frame culling configuration that the survival
// predicate of the Cull & Bin pass reads alongside the camera uniform.
// Size: 32 bytes.
type GPUCullParams struct {
	NearPlane          float32 // offset  0
	FarPlane           float32 // offset  4
	PixelThreshold     float32 // offset  8
	AlphaCullThreshold float32 // offset 12
	ModelMaxScale      float32 // offset 16: largest column norm of R*S, for the 3-sigma world radius
	TotalCount         uint32  // offset 20: N, the immutable Gaussian count
	_pad               [2]float32 // offset 24: padding to 32
}

// Size returns the size of GPUCullParams in bytes (32).
func (c *GPUCullParams) Size() int {
	return 32
}

// Marshal serializes the GPUCullParams into a byte buffer ready for GPU
// upload.
func (c *GPUCullParams) Marshal() []byte {
	buf := make([]byte, c.Size())
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(c.NearPlane))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(c.FarPlane))
	binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(c.PixelThreshold))
	binary.LittleEndian.PutUint32(buf[12:], math.Float32bits(c.AlphaCullThreshold))
	binary.LittleEndian.PutUint32(buf[16:], math.Float32bits(c.ModelMaxScale))
	binary.LittleEndian.PutUint32(buf[20:], c.TotalCount)
	binary.LittleEndian.PutUint32(buf[24:], 0)
	binary.LittleEndian.PutUint32(buf[28:], 0)
	return buf
}

// GPUSortStepParamsSource is the canonical WGSL definition of the
// SortStepParams struct. Matches GPUSortStepParams layout exactly (16 bytes).
//
//go:embed assets/sort_step_params.wgsl
var GPUSortStepParamsSource string

// GPUSortStepParams carries one bitonic-sort step's (k, j) pair plus the
// padded capacity P the CPU dispatches over; the shader reads VisibleCount
// itself from the storage buffer to decide which slots its first step pads, so
// the CPU never needs a GPU→CPU readback to size a dispatch. Size: 16 bytes.
type GPUSortStepParams struct {
	K        uint32 // offset  0: current bitonic sequence length
	J        uint32 // offset  4: current comparison distance
	Capacity uint32 // offset  8: padded size P, next power of two >= N
	_pad     uint32 // offset 12
}

// Size returns the size of GPUSortStepParams in bytes (16).
func (s *GPUSortStepParams) Size() int {
	return 16
}

// Marshal serializes the GPUSortStepParams into a byte buffer ready for GPU
// upload.
func (s *GPUSortStepParams) Marshal() []byte {
	buf := make([]byte, s.Size())
	binary.LittleEndian.PutUint32(buf[0:], s.K)
	binary.LittleEndian.PutUint32(buf[4:], s.J)
	binary.LittleEndian.PutUint32(buf[8:], s.Capacity)
	binary.LittleEndian.PutUint32(buf[12:], 0)
	return buf
}

// IndirectDrawArgsSize is the byte size of a non-indexed WebGPU indirect
// draw-args record: (vertex_count, instance_count, first_vertex,
// first_instance), four consecutive u32.
const IndirectDrawArgsSize = 16

// GPUIndirectDrawArgs mirrors the four-word non-indexed indirect draw record
// the Indirect-Draw Writer pass produces. It exists on the Go side only for
// tests that want to assert on the bytes a readback would contain; in normal
// operation the buffer is written entirely on the GPU.
type GPUIndirectDrawArgs struct {
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

// Marshal serializes the GPUIndirectDrawArgs into the 16-byte wire format.
func (a *GPUIndirectDrawArgs) Marshal() []byte {
	buf := make([]byte, IndirectDrawArgsSize)
	binary.LittleEndian.PutUint32(buf[0:], a.VertexCount)
	binary.LittleEndian.PutUint32(buf[4:], a.InstanceCount)
	binary.LittleEndian.PutUint32(buf[8:], a.FirstVertex)
	binary.LittleEndian.PutUint32(buf[12:], a.FirstInstance)
	return buf
}

// PackQuantizedDepth packs a normalized depth in [0,1] and an original index
// into the single u32 sort key described in the data model: the upper 24
// bits hold the quantized depth, the lower 8 bits hold a stable tie-breaker
// derived from the original index so that a single unsigned compare yields
// stable, descending (farther-first) order among equal depths.
//
// Parameters:
//   - normalizedDepth: depth normalized to [0,1], where 1 is farthest
//   - originalIndex: the Gaussian's position in the load-order record buffer
//
// Returns:
//   - uint32: the packed key
func PackQuantizedDepth(normalizedDepth float32, originalIndex uint32) uint32 {
	if normalizedDepth < 0 {
		normalizedDepth = 0
	}
	if normalizedDepth > 1 {
		normalizedDepth = 1
	}
	quant := uint32(normalizedDepth * float32((1<<24)-1))
	tail := 255 - (originalIndex & 0xFF)
	return (quant << 8) | tail
}

// BucketID computes the depth bucket a Gaussian falls into, per the Cull &
// Bin survival predicate: higher bucket ids are nearer the camera, so
// descending key order across the whole array produces a far-to-near
// traversal.
//
// Parameters:
//   - z: view-space depth (positive, looking down -Z)
//   - near, far: the culling configuration's near/far planes
//   - numBuckets: B, the fixed bucket count
//
// Returns:
//   - uint32: the bucket id in [0, numBuckets)
func BucketID(z, near, far float32, numBuckets uint32) uint32 {
	normalized := (z - near) / (far - near)
	id := int64((1 - normalized) * float32(numBuckets-1))
	if id < 0 {
		id = 0
	}
	if id > int64(numBuckets-1) {
		id = int64(numBuckets - 1)
	}
	return uint32(id)
}

// GPURasterParamsSource is the canonical WGSL definition of the RasterParams
// struct. Matches GPURasterParams layout exactly (16 bytes).
//
//go:embed assets/raster_params.wgsl
var GPURasterParamsSource string

// GPURasterParams carries the per-frame rasterizer configuration the
// Rasterize stage reads alongside the camera uniform: the Mip-Splatting
// low-pass variance floor, the alpha discard threshold, and which spherical
// harmonics band to evaluate. Size: 16 bytes.
type GPURasterParams struct {
	LowPassFilter      float32 // offset  0: minimum screen-space covariance variance (anti-aliasing floor)
	AlphaCullThreshold float32 // offset  4: fragment discard threshold
	SHMode             uint32  // offset  8: SHMode value (DCOnly/L1/L2/L3)
	_pad               uint32  // offset 12
}

// Size returns the size of GPURasterParams in bytes (16).
func (r *GPURasterParams) Size() int {
	return 16
}

// Marshal serializes the GPURasterParams into a byte buffer ready for GPU
// upload.
func (r *GPURasterParams) Marshal() []byte {
	buf := make([]byte, r.Size())
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(r.LowPassFilter))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(r.AlphaCullThreshold))
	binary.LittleEndian.PutUint32(buf[8:], r.SHMode)
	binary.LittleEndian.PutUint32(buf[12:], 0)
	return buf
}
