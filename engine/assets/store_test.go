package assets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	f := newFixture(t)

	first := f.store.RegisterStaticMesh("Cube", "cube.yaml")
	require.NotNil(t, first)
	second := f.store.RegisterStaticMesh("Cube", "other.yaml")

	assert.Same(t, first, second)
	assert.Equal(t, "cube.yaml", second.DeclPath)
	assert.Equal(t, first.ID, f.store.IDByName("Cube", false))
	assert.Equal(t, metadata.AssetRegistered, first.State)
}

func TestRegisterRejectsNameOfAnotherKind(t *testing.T) {
	f := newFixture(t)
	require.NotNil(t, f.store.RegisterTexture("Brick", "brick.yaml"))
	assert.Nil(t, f.store.RegisterSampler("Brick", "linear.yaml"))
}

func TestRegisterWithoutNameGeneratesOne(t *testing.T) {
	f := newFixture(t)
	a := f.store.RegisterSampler("", "linear.yaml")
	b := f.store.RegisterSampler("", "linear.yaml")
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Contains(t, a.Name, "sampler-")
}

func TestUnregisteredNameIsInvalid(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterStaticMesh("Cube", "cube.yaml")

	assert.Equal(t, metadata.InvalidAssetID, f.store.IDByName("Sphere", true))
	assert.Nil(t, f.store.GetStaticMeshByName("Sphere", true))
	assert.Nil(t, f.store.GetTexture(f.store.IDByName("Cube", true), true), "ids are per kind")
}

func TestCreateStaticMeshCube(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterStaticMesh("Cube", "cube.yaml")

	mesh, err := f.store.CreateStaticMeshByName("Cube")
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1}, mesh.ArenaIndexes)
	assert.True(t, mesh.Materialized())

	again, err := f.store.CreateStaticMeshByName("Cube")
	require.NoError(t, err)
	assert.Same(t, mesh, again)
	assert.Equal(t, []uint32{0, 1}, again.ArenaIndexes)
	assert.Equal(t, 1, f.loader.loads["cube.yaml"])
	assert.Equal(t, 2, f.store.Arena().Len())
	assert.Equal(t, 6, f.store.Arena().VertexCount())
}

func TestCreateByNameUnknownIsNotFound(t *testing.T) {
	f := newFixture(t)
	pass := f.backend.Swapchain().RenderPass()

	_, err := f.store.CreateGraphicsShaderByName("Missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = f.store.CreateGraphicsPipelineByName("Missing", f.layout, pass)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = f.store.CreateTextureByName("Missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = f.store.CreateSamplerByName("Missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	mesh, err := f.store.CreateStaticMeshByName("Missing")
	assert.Nil(t, mesh)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCreateByNameMaterializesEachKind(t *testing.T) {
	f := newFixture(t)
	sh := f.store.RegisterGraphicsShader("Unlit", "unlit.yaml")
	f.store.RegisterGraphicsPipeline("UnlitPipeline", "unlit_pipeline.yaml", sh.ID)
	f.store.RegisterTexture("Brick", "brick.yaml")
	f.store.RegisterSampler("Linear", "linear.yaml")

	p, err := f.store.CreateGraphicsPipelineByName("UnlitPipeline", f.layout, f.backend.Swapchain().RenderPass())
	require.NoError(t, err)
	assert.True(t, p.Materialized())
	shader, err := f.store.CreateGraphicsShaderByName("Unlit")
	require.NoError(t, err)
	assert.Same(t, sh, shader)
	assert.Equal(t, 1, f.backend.Stats.ShadersCreated)

	tex, err := f.store.CreateTextureByName("Brick")
	require.NoError(t, err)
	assert.True(t, tex.Materialized())
	smp, err := f.store.CreateSamplerByName("Linear")
	require.NoError(t, err)
	assert.True(t, smp.Materialized())
}

func TestCreateShaderIsIdempotent(t *testing.T) {
	f := newFixture(t)
	sh := f.store.RegisterGraphicsShader("Unlit", "unlit.yaml")

	first, err := f.store.CreateGraphicsShader(sh.ID)
	require.NoError(t, err)
	second, err := f.store.CreateGraphicsShader(sh.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Handle, second.Handle)
	assert.NotEqual(t, metadata.Shader(0), first.Handle)
	assert.Equal(t, 1, f.backend.Stats.ShadersCreated)
}

func TestCreatePipelineCreatesItsShader(t *testing.T) {
	f := newFixture(t)
	sh := f.store.RegisterGraphicsShader("Unlit", "unlit.yaml")
	p := f.store.RegisterGraphicsPipeline("UnlitPipeline", "unlit_pipeline.yaml", sh.ID)
	pass := f.backend.Swapchain().RenderPass()

	got, err := f.store.CreateGraphicsPipeline(p.ID, f.layout, pass)
	require.NoError(t, err)
	assert.True(t, got.Materialized())
	assert.True(t, sh.Materialized())

	cfg, ok := f.backend.PipelineConfig(got.Handle)
	require.True(t, ok)
	assert.Equal(t, sh.Handle, cfg.Shader)
	assert.Equal(t, metadata.CullModeBack, cfg.CullMode)

	_, err = f.store.CreateGraphicsPipeline(p.ID, f.layout, pass)
	require.NoError(t, err)
	assert.Equal(t, 1, f.backend.Stats.PipelinesCreated)
}

func TestPipelineWithoutDeclUsesDefaults(t *testing.T) {
	f := newFixture(t)
	sh := f.store.RegisterGraphicsShader("Unlit", "unlit.yaml")
	p := f.store.RegisterGraphicsPipeline("Plain", "", sh.ID)

	_, err := f.store.CreateGraphicsPipeline(p.ID, f.layout, f.backend.Swapchain().RenderPass())
	require.NoError(t, err)
	cfg, _ := f.backend.PipelineConfig(p.Handle)
	assert.True(t, cfg.DepthTest)
}

func TestCreateFailureLeavesRecordRegistered(t *testing.T) {
	f := newFixture(t)
	tex := f.store.RegisterTexture("Missing", "missing.yaml")

	got, err := f.store.CreateTexture(tex.ID)
	assert.ErrorIs(t, err, core.ErrLoadFailure)
	assert.Same(t, tex, got)
	assert.Equal(t, metadata.AssetRegistered, got.State)
	assert.Equal(t, metadata.ImageView(0), got.View)

	f.loader.textures["missing.yaml"] = &metadata.TextureDecl{Width: 1, Height: 1, Pixels: make([]byte, 4)}
	got, err = f.store.CreateTexture(tex.ID)
	require.NoError(t, err)
	assert.True(t, got.Materialized())
}

func TestBuildFailureLeavesRecordRegistered(t *testing.T) {
	f := newFixture(t)
	sh := f.store.RegisterGraphicsShader("Unlit", "unlit.yaml")
	p := f.store.RegisterGraphicsPipeline("UnlitPipeline", "unlit_pipeline.yaml", sh.ID)
	f.backend.FailNext("CreateShader", 1)

	got, err := f.store.CreateGraphicsPipeline(p.ID, f.layout, f.backend.Swapchain().RenderPass())
	assert.ErrorIs(t, err, core.ErrLoadFailure)
	assert.False(t, got.Materialized())
	assert.False(t, sh.Materialized())
}

func TestCreateUnregisteredIsNotFound(t *testing.T) {
	f := newFixture(t)
	got, err := f.store.CreateSampler(42)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRemakeGraphicsPipelines(t *testing.T) {
	f := newFixture(t)
	sh := f.store.RegisterGraphicsShader("Unlit", "unlit.yaml")
	p := f.store.RegisterGraphicsPipeline("UnlitPipeline", "unlit_pipeline.yaml", sh.ID)
	idle := f.store.RegisterGraphicsPipeline("NeverUsed", "", sh.ID)
	_, err := f.store.CreateGraphicsPipeline(p.ID, f.layout, f.backend.Swapchain().RenderPass())
	require.NoError(t, err)
	old := p.Handle

	newPass := metadata.RenderPass(9999)
	require.NoError(t, f.store.RemakeGraphicsPipelines(newPass))

	assert.NotEqual(t, old, p.Handle)
	assert.Equal(t, newPass, p.RenderPass)
	assert.False(t, idle.Materialized())
	_, alive := f.backend.PipelineConfig(old)
	assert.False(t, alive)
}

func TestReloadRevertsShaderAndPipelines(t *testing.T) {
	f := newFixture(t)
	sh := f.store.RegisterGraphicsShader("Unlit", "unlit.yaml")
	p := f.store.RegisterGraphicsPipeline("UnlitPipeline", "unlit_pipeline.yaml", sh.ID)
	pass := f.backend.Swapchain().RenderPass()
	_, err := f.store.CreateGraphicsPipeline(p.ID, f.layout, pass)
	require.NoError(t, err)

	assert.Equal(t, 0, f.store.Reload("unrelated.yaml"))
	assert.Equal(t, 2, f.store.Reload("./unlit.yaml"))
	assert.False(t, sh.Materialized())
	assert.False(t, p.Materialized())

	_, err = f.store.CreateGraphicsPipeline(p.ID, f.layout, pass)
	require.NoError(t, err)
	assert.Equal(t, 2, f.loader.loads["unlit.yaml"])
}

func TestPreloadReportsProgress(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterGraphicsShader("Unlit", "unlit.yaml")
	f.store.RegisterTexture("Brick", "brick.yaml")
	f.store.RegisterSampler("Linear", "linear.yaml")
	f.store.RegisterStaticMesh("Cube", "cube.yaml")

	var calls []int
	require.NoError(t, f.store.Preload(func(done, total int) {
		assert.Equal(t, 4, total)
		calls = append(calls, done)
	}))
	assert.Equal(t, []int{1, 2, 3, 4}, calls)
	assert.True(t, f.store.Arena().IsBuilt())
}

func TestDestroyReleasesEverything(t *testing.T) {
	f := newFixture(t)
	sh := f.store.RegisterGraphicsShader("Unlit", "unlit.yaml")
	p := f.store.RegisterGraphicsPipeline("UnlitPipeline", "unlit_pipeline.yaml", sh.ID)
	tex := f.store.RegisterTexture("Brick", "brick.yaml")
	smp := f.store.RegisterSampler("Linear", "linear.yaml")
	f.store.RegisterStaticMesh("Cube", "cube.yaml")
	require.NoError(t, f.store.Preload(nil))
	_, err := f.store.CreateGraphicsPipeline(p.ID, f.layout, f.backend.Swapchain().RenderPass())
	require.NoError(t, err)
	f.store.Textures().AddTexture(tex.View, smp.Handle)

	waits := f.backend.Stats.WaitIdles
	require.NoError(t, f.store.Destroy())

	assert.Equal(t, waits+1, f.backend.Stats.WaitIdles)
	assert.Equal(t, 0, f.backend.LiveBuffers())
	assert.Equal(t, 0, f.store.Textures().Len())
	assert.NoError(t, f.backend.Shutdown())
	assert.Equal(t, metadata.InvalidAssetID, f.store.IDByName("Cube", true))

	assert.ErrorIs(t, f.store.Destroy(), core.ErrStoreDestroyed)
	assert.Nil(t, f.store.RegisterStaticMesh("Cube", "cube.yaml"))
}

func TestRegisterManifest(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	manifest := `
shaders:
  - name: Unlit
    decl: shaders/unlit.yaml
pipelines:
  - name: UnlitPipeline
    shader: Unlit
textures:
  - name: Brick
    decl: textures/brick.yaml
samplers:
  - name: Linear
    decl: samplers/linear.yaml
meshes:
  - name: Cube
    decl: meshes/cube.yaml
`
	path := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	require.NoError(t, f.store.RegisterManifest(m))

	mesh := f.store.GetStaticMeshByName("Cube", false)
	require.NotNil(t, mesh)
	assert.Equal(t, filepath.Join(dir, "meshes", "cube.yaml"), mesh.DeclPath)

	p := f.store.GetGraphicsPipelineByName("UnlitPipeline", false)
	require.NotNil(t, p)
	assert.Equal(t, f.store.IDByName("Unlit", false), p.ShaderID)
	assert.Equal(t, "", p.DeclPath)

	decls := m.Decls()
	// The pipeline has no decl of its own.
	require.Len(t, decls, 4)
	assert.Equal(t, DeclRef{Kind: metadata.AssetKindShader, Path: filepath.Join(dir, "shaders", "unlit.yaml")}, decls[0])
	assert.Equal(t, metadata.AssetKindStaticMesh, decls[3].Kind)
}

func TestRegisterManifestUnknownShader(t *testing.T) {
	f := newFixture(t)
	m := &Manifest{Pipelines: []ManifestPipeline{{Name: "P", Shader: "Nope"}}}
	assert.ErrorIs(t, f.store.RegisterManifest(m), core.ErrNotFound)
}
