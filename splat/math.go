package splat

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vellum-gfx/splatcore/common"
)

// BuildPivotedModelMatrix composes the model matrix described by the splat
// store's transform setters: T · (I − RS) · pivot + RS, with
// RS = Rz·Ry·Rx·diag(scale). Unlike the conventional mesh renderer's model
// matrix (common.BuildModelMatrix, which rotates and scales around the
// origin in Ry·Rx·Rz order), this composition applies rotation and scale
// around an arbitrary pivot point before translating to the final position.
//
// Parameters:
//   - position: world-space translation
//   - eulerXYZ: rotation in radians, applied X then Y then Z
//   - scale: per-axis scale
//   - pivot: the point, in model space, that rotation and scale pivot around
//
// Returns:
//   - [16]float32: column-major 4x4 model matrix
func BuildPivotedModelMatrix(position, eulerXYZ, scale, pivot [3]float32) [16]float32 {
	rx := mgl32.HomogRotate3DX(eulerXYZ[0])
	ry := mgl32.HomogRotate3DY(eulerXYZ[1])
	rz := mgl32.HomogRotate3DZ(eulerXYZ[2])
	rot := rz.Mul4(ry).Mul4(rx)
	s := mgl32.Scale3D(scale[0], scale[1], scale[2])
	rs := rot.Mul4(s)

	pivotVec := mgl32.Vec3{pivot[0], pivot[1], pivot[2]}
	rsPivot := rs.Mul4x1(pivotVec.Vec4(1)).Vec3()
	posVec := mgl32.Vec3{position[0], position[1], position[2]}
	translation := posVec.Add(pivotVec.Sub(rsPivot))

	model := rs
	model[12] = translation[0]
	model[13] = translation[1]
	model[14] = translation[2]
	model[15] = 1

	return [16]float32(model)
}

// ModelMaxScale returns the largest column norm of the rotation·scale
// submatrix, used by the Cull & Bin pass's conservative world-radius
// estimate (r_w = max(scale) · model_max_scale · 3) to account for
// non-uniform model-level scaling.
//
// Parameters:
//   - eulerXYZ: rotation in radians, applied X then Y then Z
//   - scale: per-axis scale
//
// Returns:
//   - float32: the largest column norm of R*S
func ModelMaxScale(eulerXYZ, scale [3]float32) float32 {
	rx := mgl32.HomogRotate3DX(eulerXYZ[0])
	ry := mgl32.HomogRotate3DY(eulerXYZ[1])
	rz := mgl32.HomogRotate3DZ(eulerXYZ[2])
	rot := rz.Mul4(ry).Mul4(rx).Mat3()
	s := mgl32.Scale3D(scale[0], scale[1], scale[2]).Mat3()
	rs := rot.Mul3(s)

	max := float32(0)
	for col := 0; col < 3; col++ {
		c := rs.Col(col)
		n := c.Len()
		if n > max {
			max = n
		}
	}
	return max
}

// PerspectiveProjection returns the WebGPU-convention (Z in [0,1]) column-
// major perspective projection matrix with proj[0][0] = 1/(aspect·tan(fov/2))
// and proj[1][1] = 1/tan(fov/2), per the camera uniform's documented layout.
// This is numerically identical to the conventional mesh renderer's
// projection (common.Perspective); reused directly rather than reimplemented.
//
// Parameters:
//   - fovY: vertical field of view, radians
//   - aspect: viewport aspect ratio (width/height)
//   - near, far: the culling near/far planes
//
// Returns:
//   - [16]float32: column-major 4x4 projection matrix
func PerspectiveProjection(fovY, aspect, near, far float32) [16]float32 {
	var out [16]float32
	common.Perspective(out[:], fovY, aspect, near, far)
	return out
}
