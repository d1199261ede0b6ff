package assets

import "github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"

// DeclLoader reads asset declarations. Every method may fail, in which case
// the asset stays unmaterialized.
type DeclLoader interface {
	LoadShader(path string) (*metadata.ShaderDecl, error)
	LoadPipeline(path string) (*metadata.PipelineDecl, error)
	LoadTexture(path string) (*metadata.TextureDecl, error)
	LoadSampler(path string) (*metadata.SamplerDecl, error)
	LoadMesh(path string) (*metadata.MeshDecl, error)
}
