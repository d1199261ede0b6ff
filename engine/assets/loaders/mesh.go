package loaders

import (
	"fmt"

	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

type meshPart struct {
	Positions [][3]float32 `yaml:"positions"`
	Normals   [][3]float32 `yaml:"normals"`
	UVs       [][2]float32 `yaml:"uvs"`
	Indices   []uint32     `yaml:"indices"`
}

type meshFile struct {
	Name   string     `yaml:"name"`
	Meshes []meshPart `yaml:"meshes"`
	// Obj points at a Wavefront file; each of its groups becomes one part.
	Obj string `yaml:"obj"`
}

func (l *YAMLLoader) LoadMesh(path string) (*metadata.MeshDecl, error) {
	var f meshFile
	if err := readDecl(path, &f); err != nil {
		return nil, err
	}

	decl := &metadata.MeshDecl{Name: nameOr(f.Name, path)}
	for i, p := range f.Meshes {
		data, err := p.build()
		if err != nil {
			return nil, fmt.Errorf("mesh '%s' part %d: %w", path, i, err)
		}
		decl.Meshes = append(decl.Meshes, data)
	}
	if f.Obj != "" {
		parts, err := loadOBJ(resolve(path, f.Obj))
		if err != nil {
			return nil, err
		}
		decl.Meshes = append(decl.Meshes, parts...)
	}
	if len(decl.Meshes) == 0 {
		return nil, fmt.Errorf("mesh '%s' has no geometry", path)
	}
	return decl, nil
}

func (p meshPart) build() (metadata.MeshData, error) {
	n := len(p.Positions)
	if n == 0 {
		return metadata.MeshData{}, fmt.Errorf("no positions")
	}
	if len(p.Normals) != 0 && len(p.Normals) != n {
		return metadata.MeshData{}, fmt.Errorf("%d normals for %d positions", len(p.Normals), n)
	}
	if len(p.UVs) != 0 && len(p.UVs) != n {
		return metadata.MeshData{}, fmt.Errorf("%d uvs for %d positions", len(p.UVs), n)
	}

	indices := p.Indices
	if len(indices) == 0 {
		indices = make([]uint32, n)
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	if len(indices)%3 != 0 {
		return metadata.MeshData{}, fmt.Errorf("index count %d is not a multiple of 3", len(indices))
	}
	for _, idx := range indices {
		if int(idx) >= n {
			return metadata.MeshData{}, fmt.Errorf("index %d out of range for %d vertices", idx, n)
		}
	}

	vertices := make([]math.Vertex3D, n)
	for i, pos := range p.Positions {
		vertices[i].Position = math.NewVec3(pos[0], pos[1], pos[2])
		if len(p.Normals) > 0 {
			nm := p.Normals[i]
			vertices[i].Normal = math.NewVec3(nm[0], nm[1], nm[2])
		}
		if len(p.UVs) > 0 {
			vertices[i].Texcoord = math.NewVec2(p.UVs[i][0], p.UVs[i][1])
		}
	}
	if len(p.Normals) == 0 {
		math.GenerateNormals(vertices, indices)
	}

	return metadata.MeshData{Vertices: vertices, Indices: indices}, nil
}
