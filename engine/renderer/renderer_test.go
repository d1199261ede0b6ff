package renderer

import (
	"testing"

	"github.com/spaghettifunk/anima-mesh/engine/assets"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/headless"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frontendFixture struct {
	backend  *headless.Backend
	store    *assets.Store
	renderer *Renderer

	cube, shader, opaque, brick, linear metadata.AssetID
}

func newFrontendFixture(t *testing.T) *frontendFixture {
	t.Helper()
	b := headless.New(headless.DefaultConfig())
	loader := memLoader{
		"unlit.yaml":  &metadata.ShaderDecl{Name: "Unlit", VertexCode: []byte{1}, FragmentCode: []byte{2}},
		"opaque.yaml": metadata.DefaultPipelineDecl("Opaque"),
		"brick.yaml":  &metadata.TextureDecl{Name: "Brick", Width: 1, Height: 1, Pixels: []byte{200, 0, 0, 255}},
		"linear.yaml": &metadata.SamplerDecl{Name: "Linear"},
		"cube.yaml":   &metadata.MeshDecl{Name: "Cube", Meshes: []metadata.MeshData{tri(0), tri(5)}},
	}
	store := assets.NewStore(assets.StoreConfig{MaxTextures: 4}, b, loader)

	f := &frontendFixture{backend: b, store: store}
	f.cube = store.RegisterStaticMesh("Cube", "cube.yaml").ID
	f.shader = store.RegisterGraphicsShader("Unlit", "unlit.yaml").ID
	f.opaque = store.RegisterGraphicsPipeline("Opaque", "opaque.yaml", f.shader).ID
	f.brick = store.RegisterTexture("Brick", "brick.yaml").ID
	f.linear = store.RegisterSampler("Linear", "linear.yaml").ID

	config := core.DefaultConfig().Renderer
	r, err := New(b, store, &config)
	require.NoError(t, err)
	f.renderer = r
	return f
}

func (f *frontendFixture) drawCubes(n int) {
	for i := 0; i < n; i++ {
		tr := math.TransformFromPosition(math.NewVec3(float32(i), 0, 0))
		f.renderer.AddObject(tr, f.cube, f.shader, f.opaque, f.brick, f.linear)
	}
}

func TestRendererFrameLoop(t *testing.T) {
	f := newFrontendFixture(t)

	for i := 0; i < 10; i++ {
		frame, err := f.renderer.BeginFrame()
		require.NoError(t, err)
		f.drawCubes(3)
		assert.Equal(t, 3, f.renderer.QueuedObjects())
		require.NoError(t, f.renderer.EndFrame(frame))

		rec := f.backend.Recording(f.renderer.commandBuffers[frame.FrameIndex])
		// Two sub-meshes per cube.
		assert.Len(t, rec.Draws(), 6)
		ops := rec.Ops()
		assert.Equal(t, "BeginRenderPass", ops[0])
		assert.Equal(t, "EndRenderPass", ops[len(ops)-1])
	}
	assert.Equal(t, 10, f.backend.Stats.Submits)
	assert.Equal(t, 10, f.backend.Stats.Presents)
	assert.Equal(t, uint64(10), f.renderer.Synchronizer().FrameCount())
}

func TestRendererEmptyFrameStillPresents(t *testing.T) {
	f := newFrontendFixture(t)

	frame, err := f.renderer.BeginFrame()
	require.NoError(t, err)
	require.NoError(t, f.renderer.EndFrame(frame))

	rec := f.backend.Recording(f.renderer.commandBuffers[frame.FrameIndex])
	assert.Empty(t, rec.Draws())
	assert.Equal(t, 1, f.backend.Stats.Presents)
}

func TestRendererResizeRebuildsOnNextFrame(t *testing.T) {
	f := newFrontendFixture(t)
	f.renderer.Resize(640, 480)
	assert.Equal(t, 0, f.backend.HeadlessSwapchain().Recreated)

	frame, err := f.renderer.BeginFrame()
	require.NoError(t, err)
	assert.Equal(t, 1, f.backend.HeadlessSwapchain().Recreated)
	assert.Equal(t, metadata.Extent{Width: 640, Height: 480}, frame.FrameSize)
	assert.InDelta(t, 640.0/480.0, f.renderer.AspectRatio(), 1e-6)

	f.drawCubes(1)
	require.NoError(t, f.renderer.EndFrame(frame))
}

func TestRendererMinimizedSkipsFrames(t *testing.T) {
	f := newFrontendFixture(t)
	f.renderer.Resize(0, 0)

	_, err := f.renderer.BeginFrame()
	assert.ErrorIs(t, err, core.ErrSwapchainStale)
	assert.Equal(t, 0, f.backend.HeadlessSwapchain().Recreated)

	f.renderer.Resize(800, 600)
	frame, err := f.renderer.BeginFrame()
	require.NoError(t, err)
	require.NoError(t, f.renderer.EndFrame(frame))
}

func TestRendererStaleAcquireRebuilds(t *testing.T) {
	f := newFrontendFixture(t)
	f.backend.HeadlessSwapchain().InjectStaleAcquire(1)

	_, err := f.renderer.BeginFrame()
	assert.ErrorIs(t, err, core.ErrSwapchainStale)
	assert.Equal(t, 1, f.backend.HeadlessSwapchain().Recreated)

	frame, err := f.renderer.BeginFrame()
	require.NoError(t, err)
	f.drawCubes(2)
	require.NoError(t, f.renderer.EndFrame(frame))
}

func TestRendererStalePresentRebuilds(t *testing.T) {
	f := newFrontendFixture(t)
	f.backend.HeadlessSwapchain().InjectStalePresent(1)

	frame, err := f.renderer.BeginFrame()
	require.NoError(t, err)
	f.drawCubes(1)
	assert.ErrorIs(t, f.renderer.EndFrame(frame), core.ErrSwapchainStale)
	assert.Equal(t, 1, f.backend.HeadlessSwapchain().Recreated)
	assert.Equal(t, uint32(1), f.renderer.Synchronizer().CurrentSlot())

	// Pipelines were remade against the rebuilt pass and keep drawing.
	frame, err = f.renderer.BeginFrame()
	require.NoError(t, err)
	f.drawCubes(1)
	require.NoError(t, f.renderer.EndFrame(frame))
	assert.Len(t, f.backend.Recording(f.renderer.commandBuffers[frame.FrameIndex]).Draws(), 2)
}

func TestRendererEndFrameRejectsForeignFrame(t *testing.T) {
	f := newFrontendFixture(t)

	frame, err := f.renderer.BeginFrame()
	require.NoError(t, err)

	foreign := frame
	foreign.ImageIndex++
	assert.ErrorIs(t, f.renderer.EndFrame(foreign), core.ErrInvalidFrame)
	assert.ErrorIs(t, f.renderer.EndFrame(metadata.Frame{}), core.ErrInvalidFrame)
	require.NoError(t, f.renderer.EndFrame(frame))
}

func TestRendererShutdownFreesFrontend(t *testing.T) {
	f := newFrontendFixture(t)
	for i := 0; i < 3; i++ {
		frame, err := f.renderer.BeginFrame()
		require.NoError(t, err)
		f.drawCubes(4)
		require.NoError(t, f.renderer.EndFrame(frame))
	}

	require.NoError(t, f.renderer.Shutdown())
	require.NoError(t, f.store.Destroy())
	assert.NoError(t, f.backend.Shutdown())
}
