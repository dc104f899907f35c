package model

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quazuo/pbr-model-viewer/engine/core"
)

func TestVertexLayout(t *testing.T) {
	binding := VertexBindingDescription()
	assert.Equal(t, uint32(0), binding.Binding)
	assert.Equal(t, uint32(56), binding.Stride)
	assert.Equal(t, vk.VertexInputRateVertex, binding.InputRate)

	attrs := VertexAttributeDescriptions()
	require.Len(t, attrs, 5)
	assert.Equal(t, uint32(0), attrs[0].Offset)
	assert.Equal(t, uint32(12), attrs[1].Offset)
	assert.Equal(t, uint32(20), attrs[2].Offset)
	assert.Equal(t, uint32(32), attrs[3].Offset)
	assert.Equal(t, uint32(44), attrs[4].Offset)
	assert.Equal(t, vk.FormatR32g32Sfloat, attrs[1].Format)
	for i, attr := range attrs {
		assert.Equal(t, uint32(i), attr.Location)
		assert.Equal(t, uint32(0), attr.Binding)
	}
}

func TestInstanceLayout(t *testing.T) {
	binding := InstanceBindingDescription()
	assert.Equal(t, uint32(1), binding.Binding)
	assert.Equal(t, uint32(64), binding.Stride)
	assert.Equal(t, vk.VertexInputRateInstance, binding.InputRate)

	attrs := InstanceAttributeDescriptions(5)
	require.Len(t, attrs, 4)
	for i, attr := range attrs {
		assert.Equal(t, uint32(5+i), attr.Location)
		assert.Equal(t, uint32(1), attr.Binding)
		assert.Equal(t, vk.FormatR32g32b32a32Sfloat, attr.Format)
		assert.Equal(t, uint32(i*16), attr.Offset)
	}
}

func TestSkyboxLayout(t *testing.T) {
	binding := SkyboxBindingDescription()
	assert.Equal(t, uint32(12), binding.Stride)

	attrs := SkyboxAttributeDescriptions()
	require.Len(t, attrs, 1)
	assert.Equal(t, vk.FormatR32g32b32Sfloat, attrs[0].Format)
}

func TestMaterialHasOrmMaps(t *testing.T) {
	assert.False(t, (&Material{}).HasOrmMaps())
	assert.True(t, (&Material{AOPath: "ao.png"}).HasOrmMaps())
	assert.True(t, (&Material{RoughnessPath: "r.png"}).HasOrmMaps())
	assert.True(t, (&Material{MetallicPath: "m.png"}).HasOrmMaps())
}

func TestModelValidate(t *testing.T) {
	m := &Model{Materials: make([]Material, MaterialTexArraySize/MaterialSlots)}
	assert.NoError(t, m.Validate())

	m = &Model{Materials: make([]Material, MaterialTexArraySize/MaterialSlots+1)}
	err := m.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTooManyMaterialTextures)
}

func TestBoundingRadius(t *testing.T) {
	m := &Model{Vertices: []Vertex{
		{Position: mgl32.Vec3{1, 0, 0}},
		{Position: mgl32.Vec3{0, 3, 4}},
		{Position: mgl32.Vec3{-2, 0, 0}},
	}}
	assert.InDelta(t, 5.0, m.BoundingRadius(), 1e-6)

	empty := &Model{}
	assert.Zero(t, empty.BoundingRadius())
}

func TestNormalizationScale(t *testing.T) {
	m := &Model{Vertices: []Vertex{{Position: mgl32.Vec3{0, 0, 2}}}}
	assert.InDelta(t, NormalizedRadius/2.0, m.NormalizationScale(), 1e-6)

	degenerate := &Model{Vertices: []Vertex{{Position: mgl32.Vec3{0, 0, 0}}}}
	assert.Equal(t, float32(1), degenerate.NormalizationScale())
}

func TestCubeVertices(t *testing.T) {
	require.Len(t, CubeVertices, 36)
	for _, v := range CubeVertices {
		for _, c := range v.Position {
			assert.True(t, c == 1 || c == -1, "cube corner component %v", c)
		}
	}
}

func TestQuadVertices(t *testing.T) {
	require.Len(t, QuadVertices, 6)
	for _, v := range QuadVertices {
		assert.Zero(t, v.Position.Z())
		assert.LessOrEqual(t, v.Position.X(), float32(1))
		assert.GreaterOrEqual(t, v.Position.X(), float32(-1))
	}
}
