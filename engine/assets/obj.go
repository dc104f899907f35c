package assets

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/quazuo/pbr-model-viewer/engine/core"
	"github.com/quazuo/pbr-model-viewer/engine/model"
)

// ObjImporter decodes Wavefront OBJ files, together with the material
// library they reference, into the packed model representation. Only the
// subset the viewer needs is supported: positions, texture coordinates,
// normals, triangulated faces, and the PBR texture map statements of the
// accompanying .mtl file.
type ObjImporter struct{}

type objIndex struct {
	v, vt, vn int
}

type objParser struct {
	dir string

	positions []mgl32.Vec3
	uvs       []mgl32.Vec2
	normals   []mgl32.Vec3

	materials     []model.Material
	materialIndex map[string]int32

	out      *model.Model
	dedup    map[objIndex]uint32
	mesh     *model.Mesh
	material int32
	line     int
}

func (ObjImporter) Load(path string) (*model.Model, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	p := &objParser{
		dir:           filepath.Dir(path),
		materialIndex: map[string]int32{},
		out:           &model.Model{},
		dedup:         map[objIndex]uint32{},
		material:      -1,
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		p.line++
		if err := p.parseLine(scanner.Text()); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, p.line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	p.finishMesh()

	p.out.Materials = p.materials
	p.out.Instances = []mgl32.Mat4{mgl32.Ident4()}
	for i := range p.out.Meshes {
		p.out.Meshes[i].InstanceCount = 1
	}
	p.computeTangents()

	core.LogInfo("imported %s: %d vertices, %d meshes", path, len(p.out.Vertices), len(p.out.Meshes))
	return p.out, nil
}

func (p *objParser) parseLine(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}

	switch fields[0] {
	case "v":
		vec, err := parseVec3(fields[1:])
		if err != nil {
			return err
		}
		p.positions = append(p.positions, vec)
	case "vt":
		if len(fields) < 3 {
			return fmt.Errorf("texture coordinate needs 2 components")
		}
		u, err := parseFloat(fields[1])
		if err != nil {
			return err
		}
		v, err := parseFloat(fields[2])
		if err != nil {
			return err
		}
		// OBJ uses a bottom-left UV origin.
		p.uvs = append(p.uvs, mgl32.Vec2{u, 1 - v})
	case "vn":
		vec, err := parseVec3(fields[1:])
		if err != nil {
			return err
		}
		p.normals = append(p.normals, vec)
	case "f":
		return p.parseFace(fields[1:])
	case "o", "g":
		p.finishMesh()
	case "usemtl":
		if len(fields) > 1 {
			p.setMaterial(fields[1])
		}
	case "mtllib":
		if len(fields) > 1 {
			if err := p.parseMaterialLib(filepath.Join(p.dir, fields[1])); err != nil {
				core.LogWarn("material library %s skipped: %v", fields[1], err)
			}
		}
	}
	return nil
}

// parseFace triangulates the polygon as a fan around its first corner.
func (p *objParser) parseFace(fields []string) error {
	if len(fields) < 3 {
		return fmt.Errorf("face needs at least 3 corners")
	}
	if p.mesh == nil {
		p.startMesh()
	}

	corners := make([]uint32, len(fields))
	for i, field := range fields {
		index, err := p.resolveVertex(field)
		if err != nil {
			return err
		}
		corners[i] = index
	}

	for i := 2; i < len(corners); i++ {
		p.out.Indices = append(p.out.Indices, corners[0], corners[i-1], corners[i])
		p.mesh.IndexCount += 3
	}
	return nil
}

// resolveVertex turns a "v/vt/vn" corner reference into a deduplicated
// packed vertex index. Negative references count from the end, per the
// format.
func (p *objParser) resolveVertex(field string) (uint32, error) {
	parts := strings.Split(field, "/")
	var key objIndex
	var err error

	key.v, err = p.resolveIndex(parts[0], len(p.positions))
	if err != nil {
		return 0, err
	}
	if len(parts) > 1 && parts[1] != "" {
		if key.vt, err = p.resolveIndex(parts[1], len(p.uvs)); err != nil {
			return 0, err
		}
	} else {
		key.vt = -1
	}
	if len(parts) > 2 && parts[2] != "" {
		if key.vn, err = p.resolveIndex(parts[2], len(p.normals)); err != nil {
			return 0, err
		}
	} else {
		key.vn = -1
	}

	if index, ok := p.dedup[key]; ok {
		return index, nil
	}

	vertex := model.Vertex{Position: p.positions[key.v]}
	if key.vt >= 0 {
		vertex.UV = p.uvs[key.vt]
	}
	if key.vn >= 0 {
		vertex.Normal = p.normals[key.vn]
	}

	index := uint32(len(p.out.Vertices))
	p.out.Vertices = append(p.out.Vertices, vertex)
	p.dedup[key] = index
	return index, nil
}

func (p *objParser) resolveIndex(field string, count int) (int, error) {
	raw, err := strconv.Atoi(field)
	if err != nil {
		return 0, fmt.Errorf("bad index %q: %w", field, err)
	}
	if raw < 0 {
		raw += count
	} else {
		raw--
	}
	if raw < 0 || raw >= count {
		return 0, fmt.Errorf("index %q out of range", field)
	}
	return raw, nil
}

func (p *objParser) startMesh() {
	p.out.Meshes = append(p.out.Meshes, model.Mesh{
		FirstIndex: uint32(len(p.out.Indices)),
		MaterialID: p.material,
	})
	p.mesh = &p.out.Meshes[len(p.out.Meshes)-1]
}

func (p *objParser) finishMesh() {
	if p.mesh != nil && p.mesh.IndexCount == 0 {
		p.out.Meshes = p.out.Meshes[:len(p.out.Meshes)-1]
	}
	p.mesh = nil
}

func (p *objParser) setMaterial(name string) {
	index, ok := p.materialIndex[name]
	if !ok {
		// Unknown names still get a slot so meshes keep distinct IDs.
		index = int32(len(p.materials))
		p.materials = append(p.materials, model.Material{Name: name})
		p.materialIndex[name] = index
	}
	p.material = index
	if p.mesh != nil && p.mesh.IndexCount == 0 {
		p.mesh.MaterialID = index
	} else {
		p.finishMesh()
	}
}

// parseMaterialLib reads the texture map statements of an .mtl file. Shading
// coefficients are ignored; the renderer is texture driven.
func (p *objParser) parseMaterialLib(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var current *model.Material

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		switch fields[0] {
		case "newmtl":
			name := fields[1]
			index := int32(len(p.materials))
			p.materials = append(p.materials, model.Material{Name: name})
			p.materialIndex[name] = index
			current = &p.materials[index]
		case "map_Kd":
			if current != nil {
				current.BaseColorPath = filepath.Join(p.dir, fields[len(fields)-1])
			}
		case "map_Bump", "bump", "norm":
			if current != nil {
				current.NormalPath = filepath.Join(p.dir, fields[len(fields)-1])
			}
		case "map_Ka", "map_ao":
			if current != nil {
				current.AOPath = filepath.Join(p.dir, fields[len(fields)-1])
			}
		case "map_Pr":
			if current != nil {
				current.RoughnessPath = filepath.Join(p.dir, fields[len(fields)-1])
			}
		case "map_Pm":
			if current != nil {
				current.MetallicPath = filepath.Join(p.dir, fields[len(fields)-1])
			}
		}
	}
	return scanner.Err()
}

// computeTangents accumulates per-triangle tangent frames into the shared
// vertices and normalizes the result.
func (p *objParser) computeTangents() {
	vertices := p.out.Vertices
	indices := p.out.Indices

	for i := 0; i+2 < len(indices); i += 3 {
		v0 := &vertices[indices[i]]
		v1 := &vertices[indices[i+1]]
		v2 := &vertices[indices[i+2]]

		edge1 := v1.Position.Sub(v0.Position)
		edge2 := v2.Position.Sub(v0.Position)
		duv1 := v1.UV.Sub(v0.UV)
		duv2 := v2.UV.Sub(v0.UV)

		det := duv1.X()*duv2.Y() - duv2.X()*duv1.Y()
		if det == 0 {
			continue
		}
		f := 1 / det

		tangent := edge1.Mul(duv2.Y()).Sub(edge2.Mul(duv1.Y())).Mul(f)
		bitangent := edge2.Mul(duv1.X()).Sub(edge1.Mul(duv2.X())).Mul(f)

		for _, v := range []*model.Vertex{v0, v1, v2} {
			v.Tangent = v.Tangent.Add(tangent)
			v.Bitangent = v.Bitangent.Add(bitangent)
		}
	}

	for i := range vertices {
		if vertices[i].Tangent.Len() > 0 {
			vertices[i].Tangent = vertices[i].Tangent.Normalize()
		}
		if vertices[i].Bitangent.Len() > 0 {
			vertices[i].Bitangent = vertices[i].Bitangent.Normalize()
		}
	}
}

func parseVec3(fields []string) (mgl32.Vec3, error) {
	if len(fields) < 3 {
		return mgl32.Vec3{}, fmt.Errorf("vector needs 3 components")
	}
	var vec mgl32.Vec3
	for i := 0; i < 3; i++ {
		f, err := parseFloat(fields[i])
		if err != nil {
			return mgl32.Vec3{}, err
		}
		vec[i] = f
	}
	return vec, nil
}

func parseFloat(field string) (float32, error) {
	f, err := strconv.ParseFloat(field, 32)
	if err != nil {
		return 0, fmt.Errorf("bad number %q: %w", field, err)
	}
	return float32(f), nil
}
