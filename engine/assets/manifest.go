package assets

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
	"gopkg.in/yaml.v3"
)

type ManifestEntry struct {
	Name string `yaml:"name"`
	Decl string `yaml:"decl"`
}

type ManifestPipeline struct {
	Name   string `yaml:"name"`
	Decl   string `yaml:"decl,omitempty"`
	Shader string `yaml:"shader"`
}

// Manifest lists the assets a game registers at startup.
type Manifest struct {
	Shaders   []ManifestEntry    `yaml:"shaders"`
	Pipelines []ManifestPipeline `yaml:"pipelines"`
	Textures  []ManifestEntry    `yaml:"textures"`
	Samplers  []ManifestEntry    `yaml:"samplers"`
	Meshes    []ManifestEntry    `yaml:"meshes"`

	// Directory the decl paths are relative to.
	baseDir string
}

func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest '%s': %w", path, err)
	}
	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest '%s': %w", path, err)
	}
	m.baseDir = filepath.Dir(path)
	return m, nil
}

func (m *Manifest) resolve(decl string) string {
	if decl == "" || filepath.IsAbs(decl) {
		return decl
	}
	return filepath.Join(m.baseDir, decl)
}

// RegisterManifest registers every entry. Pipelines must name a shader
// declared in the manifest or registered before.
func (s *Store) RegisterManifest(m *Manifest) error {
	for _, e := range m.Shaders {
		s.RegisterGraphicsShader(e.Name, m.resolve(e.Decl))
	}
	for _, p := range m.Pipelines {
		shaderID := s.IDByName(p.Shader, true)
		if s.GetGraphicsShader(shaderID, true) == nil {
			err := fmt.Errorf("pipeline '%s' references unknown shader '%s': %w", p.Name, p.Shader, core.ErrNotFound)
			core.LogError(err.Error())
			return err
		}
		s.RegisterGraphicsPipeline(p.Name, m.resolve(p.Decl), shaderID)
	}
	for _, e := range m.Textures {
		s.RegisterTexture(e.Name, m.resolve(e.Decl))
	}
	for _, e := range m.Samplers {
		s.RegisterSampler(e.Name, m.resolve(e.Decl))
	}
	for _, e := range m.Meshes {
		s.RegisterStaticMesh(e.Name, m.resolve(e.Decl))
	}
	core.LogInfo("manifest registered: %d shaders, %d pipelines, %d textures, %d samplers, %d meshes",
		len(m.Shaders), len(m.Pipelines), len(m.Textures), len(m.Samplers), len(m.Meshes))
	return nil
}

// DeclRef is one resolved declaration path of a manifest.
type DeclRef struct {
	Kind metadata.AssetKind
	Path string
}

// Decls lists every declaration the manifest points at, resolved against the
// manifest's directory. Pipelines without a decl are skipped.
func (m *Manifest) Decls() []DeclRef {
	var out []DeclRef
	add := func(kind metadata.AssetKind, decl string) {
		if decl != "" {
			out = append(out, DeclRef{Kind: kind, Path: m.resolve(decl)})
		}
	}
	for _, e := range m.Shaders {
		add(metadata.AssetKindShader, e.Decl)
	}
	for _, p := range m.Pipelines {
		add(metadata.AssetKindPipeline, p.Decl)
	}
	for _, e := range m.Textures {
		add(metadata.AssetKindTexture, e.Decl)
	}
	for _, e := range m.Samplers {
		add(metadata.AssetKindSampler, e.Decl)
	}
	for _, e := range m.Meshes {
		add(metadata.AssetKindStaticMesh, e.Decl)
	}
	return out
}
