package assets

import (
	"fmt"
	"testing"

	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/headless"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
	"github.com/stretchr/testify/require"
)

// fakeLoader serves declarations from memory and counts loads per path.
type fakeLoader struct {
	shaders   map[string]*metadata.ShaderDecl
	pipelines map[string]*metadata.PipelineDecl
	textures  map[string]*metadata.TextureDecl
	samplers  map[string]*metadata.SamplerDecl
	meshes    map[string]*metadata.MeshDecl
	loads     map[string]int
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		shaders:   map[string]*metadata.ShaderDecl{},
		pipelines: map[string]*metadata.PipelineDecl{},
		textures:  map[string]*metadata.TextureDecl{},
		samplers:  map[string]*metadata.SamplerDecl{},
		meshes:    map[string]*metadata.MeshDecl{},
		loads:     map[string]int{},
	}
}

func find[T any](l *fakeLoader, m map[string]*T, path string) (*T, error) {
	l.loads[path]++
	d, ok := m[path]
	if !ok {
		return nil, fmt.Errorf("no declaration at '%s'", path)
	}
	return d, nil
}

func (l *fakeLoader) LoadShader(path string) (*metadata.ShaderDecl, error) {
	return find(l, l.shaders, path)
}

func (l *fakeLoader) LoadPipeline(path string) (*metadata.PipelineDecl, error) {
	return find(l, l.pipelines, path)
}

func (l *fakeLoader) LoadTexture(path string) (*metadata.TextureDecl, error) {
	return find(l, l.textures, path)
}

func (l *fakeLoader) LoadSampler(path string) (*metadata.SamplerDecl, error) {
	return find(l, l.samplers, path)
}

func (l *fakeLoader) LoadMesh(path string) (*metadata.MeshDecl, error) {
	return find(l, l.meshes, path)
}

func triangle(offset float32) metadata.MeshData {
	return metadata.MeshData{
		Vertices: []math.Vertex3D{
			{Position: math.NewVec3(offset, 0, 0)},
			{Position: math.NewVec3(offset+1, 0, 0)},
			{Position: math.NewVec3(offset, 1, 0)},
		},
		Indices: []uint32{0, 1, 2},
	}
}

func withDefaults(l *fakeLoader) *fakeLoader {
	l.shaders["unlit.yaml"] = &metadata.ShaderDecl{Name: "Unlit", VertexCode: []byte{1}, FragmentCode: []byte{2}}
	l.pipelines["unlit_pipeline.yaml"] = metadata.DefaultPipelineDecl("UnlitPipeline")
	l.textures["brick.yaml"] = &metadata.TextureDecl{Name: "Brick", Width: 1, Height: 1, Pixels: []byte{255, 0, 0, 255}}
	l.samplers["linear.yaml"] = &metadata.SamplerDecl{Name: "Linear"}
	l.meshes["cube.yaml"] = &metadata.MeshDecl{Name: "Cube", Meshes: []metadata.MeshData{triangle(0), triangle(5)}}
	return l
}

type fixture struct {
	backend *headless.Backend
	loader  *fakeLoader
	store   *Store
	layout  metadata.PipelineLayout
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := headless.New(headless.DefaultConfig())
	l := withDefaults(newFakeLoader())
	setLayout, err := b.CreateSetLayout(metadata.DescriptorBinding{Type: metadata.DescriptorTypeUniformBuffer, Count: 1})
	require.NoError(t, err)
	layout, err := b.CreatePipelineLayout([]metadata.DescriptorSetLayout{setLayout})
	require.NoError(t, err)
	return &fixture{
		backend: b,
		loader:  l,
		store:   NewStore(StoreConfig{MaxTextures: 4}, b, l),
		layout:  layout,
	}
}
