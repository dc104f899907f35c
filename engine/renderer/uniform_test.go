package renderer

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameUniformsSize(t *testing.T) {
	// std140 requires 16-byte alignment of the whole block.
	assert.Zero(t, FrameUniformsSize%16)

	// 4 matrices + 6 capture views + capture proj + 3 vec4s + 4 scalars.
	expected := uint64(11*64 + 3*16 + 4*4)
	assert.Equal(t, expected, FrameUniformsSize)
}

func TestFrameUniformsBytes(t *testing.T) {
	u := FrameUniforms{NearPlane: 0.1, FarPlane: 500, UseSsao: 1}
	data := u.Bytes()
	require.Len(t, data, int(FrameUniformsSize))

	// UseSsao sits right after the two plane floats at the tail of the block.
	tail := len(data) - 16
	near := math.Float32frombits(binary.LittleEndian.Uint32(data[tail:]))
	assert.InDelta(t, 0.1, near, 1e-6)
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[tail+8:]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(data[tail+12:]))
}

func TestCubemapFaceViews(t *testing.T) {
	views := CubemapFaceViews()

	targets := [6]mgl32.Vec3{
		{1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}, {0, 0, -1},
	}
	for i, view := range views {
		// The face target must land on the view-space -Z axis.
		transformed := view.Mul4x1(targets[i].Vec4(1))
		assert.InDelta(t, 0, transformed.X(), 1e-5, "face %d", i)
		assert.InDelta(t, 0, transformed.Y(), 1e-5, "face %d", i)
		assert.InDelta(t, -1, transformed.Z(), 1e-5, "face %d", i)
	}
}

func TestCubemapCaptureProjection(t *testing.T) {
	proj := CubemapCaptureProjection()

	// A 90 degree square frustum maps the corner direction (1,1,-1) onto the
	// clip-space boundary.
	corner := proj.Mul4x1(mgl32.Vec4{1, 1, -1, 1})
	assert.InDelta(t, 1.0, corner.X()/corner.W(), 1e-5)
}
