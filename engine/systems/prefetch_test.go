package systems

import (
	"errors"
	"sync"
	"testing"

	"github.com/spaghettifunk/anima-mesh/engine/assets"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingLoader serves fixed declarations and counts disk reads per path.
type countingLoader struct {
	mutex sync.Mutex
	reads map[string]int
}

func (l *countingLoader) read(path string) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.reads[path]++
	if path == "broken.yaml" {
		return errors.New("bad declaration")
	}
	return nil
}

func (l *countingLoader) LoadShader(path string) (*metadata.ShaderDecl, error) {
	if err := l.read(path); err != nil {
		return nil, err
	}
	return &metadata.ShaderDecl{Name: path}, nil
}

func (l *countingLoader) LoadPipeline(path string) (*metadata.PipelineDecl, error) {
	if err := l.read(path); err != nil {
		return nil, err
	}
	return metadata.DefaultPipelineDecl(path), nil
}

func (l *countingLoader) LoadTexture(path string) (*metadata.TextureDecl, error) {
	if err := l.read(path); err != nil {
		return nil, err
	}
	return &metadata.TextureDecl{Name: path, Width: 1, Height: 1, Pixels: []byte{0, 0, 0, 255}}, nil
}

func (l *countingLoader) LoadSampler(path string) (*metadata.SamplerDecl, error) {
	if err := l.read(path); err != nil {
		return nil, err
	}
	return &metadata.SamplerDecl{Name: path}, nil
}

func (l *countingLoader) LoadMesh(path string) (*metadata.MeshDecl, error) {
	if err := l.read(path); err != nil {
		return nil, err
	}
	return &metadata.MeshDecl{Name: path}, nil
}

func TestPrefetchLoader(t *testing.T) {
	inner := &countingLoader{reads: map[string]int{}}
	l := NewPrefetchLoader(inner)
	js, err := NewJobSystem(3, 1)
	require.NoError(t, err)
	defer js.Shutdown()

	refs := []assets.DeclRef{
		{Kind: metadata.AssetKindShader, Path: "unlit.yaml"},
		{Kind: metadata.AssetKindPipeline, Path: "opaque.yaml"},
		{Kind: metadata.AssetKindTexture, Path: "brick.yaml"},
		{Kind: metadata.AssetKindSampler, Path: "linear.yaml"},
		{Kind: metadata.AssetKindStaticMesh, Path: "cube.yaml"},
		{Kind: metadata.AssetKindTexture, Path: "broken.yaml"},
	}
	assert.Equal(t, 5, l.Prefetch(js, refs))
	assert.Equal(t, 5, l.Pending())

	shader, err := l.LoadShader("unlit.yaml")
	require.NoError(t, err)
	assert.Equal(t, "unlit.yaml", shader.Name)
	mesh, err := l.LoadMesh("cube.yaml")
	require.NoError(t, err)
	assert.Equal(t, "cube.yaml", mesh.Name)
	assert.Equal(t, 3, l.Pending())

	// Served from the cache, no second read.
	assert.Equal(t, 1, inner.reads["unlit.yaml"])
	// A second load goes back to disk.
	_, err = l.LoadShader("unlit.yaml")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.reads["unlit.yaml"])

	// Failures are not cached.
	_, err = l.LoadTexture("broken.yaml")
	assert.Error(t, err)
	assert.Equal(t, 2, inner.reads["broken.yaml"])

	// A path prefetched as one kind is not served as another.
	_, err = l.LoadSampler("brick.yaml")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.reads["brick.yaml"])
}

func TestPrefetchLoaderAfterShutdown(t *testing.T) {
	l := NewPrefetchLoader(&countingLoader{reads: map[string]int{}})
	js, err := NewJobSystem(1, 0)
	require.NoError(t, err)
	require.NoError(t, js.Shutdown())

	assert.Equal(t, 0, l.Prefetch(js, []assets.DeclRef{{Kind: metadata.AssetKindShader, Path: "a.yaml"}}))
}
