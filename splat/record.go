package splat

import (
	_ "embed"
	"encoding/binary"
	"math"
)

// RecordSize is the fixed byte size of a single Gaussian record on the GPU.
const RecordSize = 256

// GaussianRecordSource is the canonical WGSL definition of the GaussianRecord
// struct. Matches GaussianRecord layout exactly (256 bytes, 16-byte aligned).
//
//go:embed assets/gaussian_record.wgsl
var GaussianRecordSource string

// GaussianRecord is the GPU-resident, immutable-after-load representation of
// a single anisotropic Gaussian. Field order and offsets match
// GaussianRecordSource exactly. Values have already been converted from
// on-disk storage form by the asset pipeline: scales are exponentiated,
// quaternions are normalized with the real part first, opacity has the
// sigmoid already applied, and colorDC has the DC spherical-harmonic term
// already evaluated into [0,1]. WGSL aligns vec3<f32> members to 16 bytes,
// so 4 bytes of padding follow Mean and Scale.
type GaussianRecord struct {
	Mean     [3]float32 // offset   0: model-space position
	Scale    [3]float32 // offset  16: per-axis standard deviation, model space
	Rotation [4]float32 // offset  32: unit quaternion (w, x, y, z)
	ColorDC  [3]float32 // offset  48: base RGB in [0,1]
	Opacity  float32    // offset  60: in [0,1]
	SH1      [9]float32 // offset  64: SH band 1, channel-major
	SH2      [15]float32 // offset 100: SH band 2, channel-major
	SH3      [21]float32 // offset 160: SH band 3, channel-major
	// offset 244..256: padding, not represented as a field
}

// Size returns the size of a GaussianRecord in bytes (256).
//
// Returns:
//   - int: the struct size in bytes
func (g *GaussianRecord) Size() int {
	return RecordSize
}

// Marshal serializes the GaussianRecord into a 256-byte buffer ready for GPU
// upload, matching GaussianRecordSource's field layout exactly.
//
// Returns:
//   - []byte: 256-byte buffer
func (g *GaussianRecord) Marshal() []byte {
	buf := make([]byte, RecordSize)
	off := 0
	putVec := func(v []float32) {
		for _, f := range v {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(f))
			off += 4
		}
	}
	putVec(g.Mean[:])
	off += 4 // vec3 alignment padding
	putVec(g.Scale[:])
	off += 4 // vec3 alignment padding
	putVec(g.Rotation[:])
	putVec(g.ColorDC[:])
	putVec([]float32{g.Opacity})
	putVec(g.SH1[:])
	putVec(g.SH2[:])
	putVec(g.SH3[:])
	// remaining bytes are already zero from make([]byte, ...)
	return buf
}

// UnmarshalGaussianRecord parses a 256-byte GPU-layout buffer into a
// GaussianRecord. The inverse of Marshal.
//
// Parameters:
//   - buf: a buffer of at least RecordSize bytes
//
// Returns:
//   - GaussianRecord: the parsed record
func UnmarshalGaussianRecord(buf []byte) GaussianRecord {
	var g GaussianRecord
	off := 0
	getVec := func(v []float32) {
		for i := range v {
			v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
			off += 4
		}
	}
	getVec(g.Mean[:])
	off += 4 // vec3 alignment padding
	getVec(g.Scale[:])
	off += 4 // vec3 alignment padding
	getVec(g.Rotation[:])
	getVec(g.ColorDC[:])
	o := make([]float32, 1)
	getVec(o)
	g.Opacity = o[0]
	getVec(g.SH1[:])
	getVec(g.SH2[:])
	getVec(g.SH3[:])
	return g
}

// MarshalGaussianRecords serializes a slice of records into a single
// contiguous buffer suitable for one GPU buffer upload.
//
// Parameters:
//   - records: the records to serialize, in load order
//
// Returns:
//   - []byte: len(records)*RecordSize bytes
func MarshalGaussianRecords(records []GaussianRecord) []byte {
	buf := make([]byte, len(records)*RecordSize)
	for i := range records {
		copy(buf[i*RecordSize:], records[i].Marshal())
	}
	return buf
}
