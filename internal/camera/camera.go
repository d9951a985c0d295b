package camera

import (
	"encoding/binary"
	"math"

	"golang.org/x/image/math/f32"
)

// UniformSize is the size in bytes of the camera uniform block:
// mat4x4<f32> followed by vec3<f32> padded to 16 bytes.
const UniformSize = 80

// Camera is the per-frame view shared by the map and text pipelines.
// It is written by the host between draws and read-only during a draw.
type Camera struct {
	// ViewProj is row-major: ViewProj[4*r+c].
	ViewProj f32.Mat4
	Eye      f32.Vec3
}

// Identity returns a camera that passes positions through unchanged.
func Identity() Camera {
	return Camera{ViewProj: f32.Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}}
}

// Ortho returns a camera with an orthographic projection of the world
// rectangle [left,right]x[bottom,top]. World z in [near,far] maps to
// depth 1..0, so larger z is closer to the viewer.
func Ortho(left, right, bottom, top, near, far float32) Camera {
	return Camera{
		ViewProj: f32.Mat4{
			2 / (right - left), 0, 0, -(right + left) / (right - left),
			0, 2 / (top - bottom), 0, -(top + bottom) / (top - bottom),
			0, 0, 1 / (near - far), -far / (near - far),
			0, 0, 0, 1,
		},
		Eye: f32.Vec3{(left + right) / 2, (bottom + top) / 2, far},
	}
}

// Screen returns an orthographic camera for a viewport of width x height
// pixels with the origin at the top-left corner and y pointing down.
func Screen(width, height int, near, far float32) Camera {
	return Ortho(0, float32(width), float32(height), 0, near, far)
}

// Project transforms a world-space point to clip space.
func (c Camera) Project(p f32.Vec3) f32.Vec4 {
	m := &c.ViewProj
	var out f32.Vec4
	for r := 0; r < 4; r++ {
		out[r] = m[4*r]*p[0] + m[4*r+1]*p[1] + m[4*r+2]*p[2] + m[4*r+3]
	}
	return out
}

// Bytes returns the uniform buffer encoding of c. The matrix is written
// column-major as WGSL expects.
func (c Camera) Bytes() []byte {
	buf := make([]byte, UniformSize)
	off := 0
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(c.ViewProj[4*row+col]))
			off += 4
		}
	}
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(c.Eye[i]))
		off += 4
	}
	return buf
}
