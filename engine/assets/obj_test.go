package assets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeObj(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestObjImporterTriangle(t *testing.T) {
	path := writeObj(t, t.TempDir(), "tri.obj", `
v 0 0 0
v 1 0 0
v 0 1 0
vt 0 0
vt 1 0
vt 0 1
vn 0 0 1
f 1/1/1 2/2/1 3/3/1
`)

	m, err := ObjImporter{}.Load(path)
	require.NoError(t, err)

	require.Len(t, m.Meshes, 1)
	assert.Equal(t, uint32(3), m.Meshes[0].IndexCount)
	assert.Equal(t, uint32(0), m.Meshes[0].FirstIndex)
	assert.Equal(t, int32(-1), m.Meshes[0].MaterialID)
	assert.Equal(t, uint32(1), m.Meshes[0].InstanceCount)

	require.Len(t, m.Vertices, 3)
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, m.Vertices[1].Position)
	assert.Equal(t, mgl32.Vec3{0, 0, 1}, m.Vertices[0].Normal)

	// OBJ UV origin is bottom-left, so v is flipped.
	assert.Equal(t, mgl32.Vec2{0, 1}, m.Vertices[0].UV)
	assert.Equal(t, mgl32.Vec2{0, 0}, m.Vertices[2].UV)

	require.Len(t, m.Instances, 1)
	assert.Equal(t, mgl32.Ident4(), m.Instances[0])
}

func TestObjImporterQuadTriangulation(t *testing.T) {
	path := writeObj(t, t.TempDir(), "quad.obj", `
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
f 1 2 3 4
`)

	m, err := ObjImporter{}.Load(path)
	require.NoError(t, err)

	require.Len(t, m.Meshes, 1)
	assert.Equal(t, uint32(6), m.Meshes[0].IndexCount)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, m.Indices)

	// Shared corners deduplicate.
	assert.Len(t, m.Vertices, 4)
}

func TestObjImporterNegativeIndices(t *testing.T) {
	path := writeObj(t, t.TempDir(), "neg.obj", `
v 0 0 0
v 1 0 0
v 0 1 0
f -3 -2 -1
`)

	m, err := ObjImporter{}.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 2}, m.Indices)
}

func TestObjImporterOutOfRangeIndex(t *testing.T) {
	path := writeObj(t, t.TempDir(), "bad.obj", `
v 0 0 0
f 1 2 3
`)

	_, err := ObjImporter{}.Load(path)
	assert.Error(t, err)
}

func TestObjImporterGroupsSplitMeshes(t *testing.T) {
	path := writeObj(t, t.TempDir(), "groups.obj", `
v 0 0 0
v 1 0 0
v 0 1 0
o first
f 1 2 3
o second
f 3 2 1
`)

	m, err := ObjImporter{}.Load(path)
	require.NoError(t, err)

	require.Len(t, m.Meshes, 2)
	assert.Equal(t, uint32(0), m.Meshes[0].FirstIndex)
	assert.Equal(t, uint32(3), m.Meshes[1].FirstIndex)
}

func TestObjImporterMaterials(t *testing.T) {
	dir := t.TempDir()
	writeObj(t, dir, "scene.mtl", `
newmtl painted
map_Kd base.png
map_Bump normal.png
map_Ka ao.png
map_Pr rough.png
map_Pm metal.png
newmtl bare
map_Kd bare.png
`)
	path := writeObj(t, dir, "scene.obj", `
mtllib scene.mtl
v 0 0 0
v 1 0 0
v 0 1 0
usemtl painted
f 1 2 3
usemtl bare
f 3 2 1
`)

	m, err := ObjImporter{}.Load(path)
	require.NoError(t, err)

	require.Len(t, m.Materials, 2)
	painted := m.Materials[0]
	assert.Equal(t, "painted", painted.Name)
	assert.Equal(t, filepath.Join(dir, "base.png"), painted.BaseColorPath)
	assert.Equal(t, filepath.Join(dir, "normal.png"), painted.NormalPath)
	assert.Equal(t, filepath.Join(dir, "ao.png"), painted.AOPath)
	assert.Equal(t, filepath.Join(dir, "rough.png"), painted.RoughnessPath)
	assert.Equal(t, filepath.Join(dir, "metal.png"), painted.MetallicPath)

	require.Len(t, m.Meshes, 2)
	assert.Equal(t, int32(0), m.Meshes[0].MaterialID)
	assert.Equal(t, int32(1), m.Meshes[1].MaterialID)
}

func TestObjImporterTangents(t *testing.T) {
	path := writeObj(t, t.TempDir(), "tangent.obj", `
v 0 0 0
v 1 0 0
v 0 1 0
vt 0 0
vt 1 0
vt 0 1
vn 0 0 1
f 1/1/1 2/2/1 3/3/1
`)

	m, err := ObjImporter{}.Load(path)
	require.NoError(t, err)

	// With UV aligned to the triangle edges the tangent follows +X and the
	// bitangent -Y in this layout.
	for _, v := range m.Vertices {
		assert.InDelta(t, 1, v.Tangent.Len(), 1e-5)
		assert.InDelta(t, 1, v.Bitangent.Len(), 1e-5)
		assert.InDelta(t, 1, v.Tangent.X(), 1e-5)
	}
}

func TestObjImporterMissingFile(t *testing.T) {
	_, err := ObjImporter{}.Load(filepath.Join(t.TempDir(), "nope.obj"))
	assert.Error(t, err)
}
