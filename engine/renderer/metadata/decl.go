package metadata

// ShaderDecl names the SPIR-V programs of a graphics shader.
type ShaderDecl struct {
	Name         string
	VertexCode   []byte
	FragmentCode []byte
}

type PipelineDecl struct {
	Name       string
	CullMode   CullMode
	Wireframe  bool
	DepthTest  bool
	DepthWrite bool
}

// DefaultPipelineDecl is used by pipelines registered without a declaration.
func DefaultPipelineDecl(name string) *PipelineDecl {
	return &PipelineDecl{
		Name:       name,
		CullMode:   CullModeBack,
		DepthTest:  true,
		DepthWrite: true,
	}
}

// TextureDecl carries decoded RGBA8 pixels.
type TextureDecl struct {
	Name   string
	Width  uint32
	Height uint32
	Pixels []byte
}

type SamplerDecl struct {
	Name        string
	MinFilter   Filter
	MagFilter   Filter
	AddressMode AddressMode
	Anisotropy  float32
}

type MeshDecl struct {
	Name   string
	Meshes []MeshData
}
