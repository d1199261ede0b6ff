package loaders

import (
	"fmt"
	"os"

	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

type shaderFile struct {
	Name     string `yaml:"name"`
	Vertex   string `yaml:"vertex"`
	Fragment string `yaml:"fragment"`
}

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

func (l *YAMLLoader) LoadShader(path string) (*metadata.ShaderDecl, error) {
	var f shaderFile
	if err := readDecl(path, &f); err != nil {
		return nil, err
	}
	if f.Vertex == "" || f.Fragment == "" {
		return nil, fmt.Errorf("shader '%s' needs both a vertex and a fragment program", path)
	}

	vert, err := readSPIRV(resolve(path, f.Vertex))
	if err != nil {
		return nil, err
	}
	frag, err := readSPIRV(resolve(path, f.Fragment))
	if err != nil {
		return nil, err
	}

	return &metadata.ShaderDecl{
		Name:         nameOr(f.Name, path),
		VertexCode:   vert,
		FragmentCode: frag,
	}, nil
}

func readSPIRV(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 || len(data)%4 != 0 {
		return nil, fmt.Errorf("'%s' is not a SPIR-V module: size %d is not a multiple of 4", path, len(data))
	}
	magic := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
	if magic != spirvMagic {
		return nil, fmt.Errorf("'%s' is not a SPIR-V module: bad magic 0x%08x", path, magic)
	}
	return data, nil
}
