package renderer

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// FrameUniforms is the shared per-frame uniform block. The layout mirrors
// the std140 block in the shaders, so every vec3 quantity is padded out to
// a vec4 and matrices are column-major.
type FrameUniforms struct {
	Model     mgl32.Mat4
	View      mgl32.Mat4
	Proj      mgl32.Mat4
	InverseVP mgl32.Mat4

	CubemapCaptureViews [6]mgl32.Mat4
	CubemapCaptureProj  mgl32.Mat4

	LightDirection mgl32.Vec4
	LightColor     mgl32.Vec4
	CameraPosition mgl32.Vec4

	NearPlane float32
	FarPlane  float32
	UseSsao   uint32
	UseIbl    uint32
}

const FrameUniformsSize = uint64(unsafe.Sizeof(FrameUniforms{}))

// Bytes exposes the uniform block as raw bytes for the persistent mapping.
func (u *FrameUniforms) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(u)), int(unsafe.Sizeof(*u)))
}

// CubemapFaceViews returns the six look-at matrices used when a multiview
// draw emits all cube faces at once, ordered +X -X +Y -Y +Z -Z.
func CubemapFaceViews() [6]mgl32.Mat4 {
	origin := mgl32.Vec3{0, 0, 0}
	return [6]mgl32.Mat4{
		mgl32.LookAtV(origin, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, -1, 0}),
		mgl32.LookAtV(origin, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, -1, 0}),
		mgl32.LookAtV(origin, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 0, 1}),
		mgl32.LookAtV(origin, mgl32.Vec3{0, -1, 0}, mgl32.Vec3{0, 0, -1}),
		mgl32.LookAtV(origin, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, -1, 0}),
		mgl32.LookAtV(origin, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, -1, 0}),
	}
}

// CubemapCaptureProjection is the 90 degree square projection every cube
// face capture renders through.
func CubemapCaptureProjection() mgl32.Mat4 {
	return mgl32.Perspective(mgl32.DegToRad(90), 1, 0.1, 10)
}
