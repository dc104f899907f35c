package model

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"

	"github.com/quazuo/pbr-model-viewer/engine/core"
)

// MaterialTexArraySize is the capacity of the arrayed material texture
// binding in the scene shader.
const MaterialTexArraySize = 32

// NormalizedRadius is the bounding radius every loaded model is scaled to.
const NormalizedRadius = 10.0

// Vertex is the packed per-vertex layout shared by every mesh.
type Vertex struct {
	Position  mgl32.Vec3
	UV        mgl32.Vec2
	Normal    mgl32.Vec3
	Tangent   mgl32.Vec3
	Bitangent mgl32.Vec3
}

const VertexSize = uint32(unsafe.Sizeof(Vertex{}))

func VertexBindingDescription() vk.VertexInputBindingDescription {
	return vk.VertexInputBindingDescription{
		Binding:   0,
		Stride:    VertexSize,
		InputRate: vk.VertexInputRateVertex,
	}
}

func VertexAttributeDescriptions() []vk.VertexInputAttributeDescription {
	return []vk.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: uint32(unsafe.Offsetof(Vertex{}.Position))},
		{Location: 1, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: uint32(unsafe.Offsetof(Vertex{}.UV))},
		{Location: 2, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: uint32(unsafe.Offsetof(Vertex{}.Normal))},
		{Location: 3, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: uint32(unsafe.Offsetof(Vertex{}.Tangent))},
		{Location: 4, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: uint32(unsafe.Offsetof(Vertex{}.Bitangent))},
	}
}

// InstanceBindingDescription feeds per-instance model matrices through four
// vec4 attributes on binding 1.
func InstanceBindingDescription() vk.VertexInputBindingDescription {
	return vk.VertexInputBindingDescription{
		Binding:   1,
		Stride:    uint32(unsafe.Sizeof(mgl32.Mat4{})),
		InputRate: vk.VertexInputRateInstance,
	}
}

func InstanceAttributeDescriptions(firstLocation uint32) []vk.VertexInputAttributeDescription {
	attrs := make([]vk.VertexInputAttributeDescription, 4)
	for i := uint32(0); i < 4; i++ {
		attrs[i] = vk.VertexInputAttributeDescription{
			Location: firstLocation + i,
			Binding:  1,
			Format:   vk.FormatR32g32b32a32Sfloat,
			Offset:   i * 16,
		}
	}
	return attrs
}

// SkyboxVertex carries only a position.
type SkyboxVertex struct {
	Position mgl32.Vec3
}

const SkyboxVertexSize = uint32(unsafe.Sizeof(SkyboxVertex{}))

func SkyboxBindingDescription() vk.VertexInputBindingDescription {
	return vk.VertexInputBindingDescription{
		Binding:   0,
		Stride:    SkyboxVertexSize,
		InputRate: vk.VertexInputRateVertex,
	}
}

func SkyboxAttributeDescriptions() []vk.VertexInputAttributeDescription {
	return []vk.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 0},
	}
}

// Material references the texture files of one PBR material. Empty paths
// mean the map is absent.
type Material struct {
	Name          string
	BaseColorPath string
	NormalPath    string
	AOPath        string
	RoughnessPath string
	MetallicPath  string
}

// HasOrmMaps reports whether any of the occlusion, roughness or metallic
// maps is present.
func (m *Material) HasOrmMaps() bool {
	return m.AOPath != "" || m.RoughnessPath != "" || m.MetallicPath != ""
}

// Mesh is a range of the model's packed vertex and index data plus the
// instance transforms it is drawn with.
type Mesh struct {
	IndexCount    uint32
	FirstIndex    uint32
	VertexOffset  int32
	MaterialID    int32
	InstanceCount uint32
	FirstInstance uint32
}

// Model is the packed geometry of a loaded scene: every mesh's vertices and
// indices concatenated into single arrays, instance transforms likewise.
type Model struct {
	Meshes    []Mesh
	Materials []Material

	Vertices  []Vertex
	Indices   []uint32
	Instances []mgl32.Mat4
}

// Importer loads a scene file into the packed model representation.
type Importer interface {
	Load(path string) (*Model, error)
}

// MaterialSlots is the number of texture slots one material occupies in the
// arrayed binding: base color, normal, merged occlusion/roughness/metallic.
// Absent maps still hold their slot so shaders can index by material ID.
const MaterialSlots = 3

// Validate checks the material set fits the arrayed texture binding.
func (m *Model) Validate() error {
	slots := len(m.Materials) * MaterialSlots
	if slots > MaterialTexArraySize {
		return fmt.Errorf("%w: %d slots for %d materials, limit %d",
			core.ErrTooManyMaterialTextures, slots, len(m.Materials), MaterialTexArraySize)
	}
	return nil
}

// BoundingRadius returns the largest instance-agnostic vertex distance from
// the origin.
func (m *Model) BoundingRadius() float32 {
	maxSq := float32(0)
	for i := range m.Vertices {
		if d := m.Vertices[i].Position.LenSqr(); d > maxSq {
			maxSq = d
		}
	}
	return float32(math.Sqrt(float64(maxSq)))
}

// NormalizationScale returns the uniform scale that brings the model's
// bounding radius to NormalizedRadius. A degenerate model scales by 1.
func (m *Model) NormalizationScale() float32 {
	radius := m.BoundingRadius()
	if radius == 0 {
		return 1
	}
	return NormalizedRadius / radius
}
