package engine

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/anima-mesh/engine/assets"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/renderer"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/headless"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = `shaders:
  - name: Unlit
    decl: shaders/unlit.yaml
pipelines:
  - name: Opaque
    decl: pipelines/opaque.yaml
    shader: Unlit
textures:
  - name: Checker
    decl: textures/checker.yaml
samplers:
  - name: Linear
    decl: samplers/linear.yaml
meshes:
  - name: Quad
    decl: meshes/quad.yaml
`

const testQuad = `name: Quad
meshes:
  - positions: [[-1, -1, 0], [1, -1, 0], [1, 1, 0], [-1, 1, 0]]
    uvs: [[0, 0], [1, 0], [1, 1], [0, 1]]
    indices: [0, 1, 2, 2, 3, 0]
`

func writeAsset(t *testing.T, root, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func checkerPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	img.Set(1, 1, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// writeTestAssets lays out a manifest with one asset of every kind and
// returns the manifest path.
func writeTestAssets(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	spirv := []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 0, 0}
	writeAsset(t, root, "shaders/unlit.vert.spv", spirv)
	writeAsset(t, root, "shaders/unlit.frag.spv", spirv)
	writeAsset(t, root, "shaders/unlit.yaml", []byte("name: Unlit\nvertex: unlit.vert.spv\nfragment: unlit.frag.spv\n"))
	writeAsset(t, root, "pipelines/opaque.yaml", []byte("name: Opaque\ncullMode: back\n"))
	writeAsset(t, root, "textures/checker.png", checkerPNG(t))
	writeAsset(t, root, "textures/checker.yaml", []byte("name: Checker\nbinaryPath: checker.png\n"))
	writeAsset(t, root, "samplers/linear.yaml", []byte("name: Linear\nminFilter: linear\nmagFilter: nearest\n"))
	writeAsset(t, root, "meshes/quad.yaml", []byte(testQuad))
	return writeAsset(t, root, "manifest.yaml", []byte(testManifest))
}

type quadGame struct {
	quad, shader, pipeline, texture, sampler metadata.AssetID

	quads   int
	resizes [][2]uint32
	keys    []uint16
	frames  int
	stopAt  int
	engine  *Engine
	stopped bool
}

func newTestEngine(t *testing.T, g *quadGame) *Engine {
	t.Helper()
	config := core.DefaultConfig()
	config.Log.Level = "error"
	config.Renderer.Backend = core.BackendHeadless
	config.Assets.Manifest = writeTestAssets(t)
	config.Assets.Root = filepath.Dir(config.Assets.Manifest)

	game := &Game{
		Config: config,
		State:  g,
		FnInitialize: func(store *assets.Store) error {
			g.quad = store.IDByName("Quad", false)
			g.shader = store.IDByName("Unlit", false)
			g.pipeline = store.IDByName("Opaque", false)
			g.texture = store.IDByName("Checker", false)
			g.sampler = store.IDByName("Linear", false)
			return nil
		},
		FnUpdate: func(deltaTime float64) error {
			g.frames++
			if g.stopAt > 0 && g.frames >= g.stopAt {
				g.engine.Stop()
				g.stopped = true
			}
			return nil
		},
		FnRender: func(r *renderer.Renderer, deltaTime float64) error {
			for i := 0; i < g.quads; i++ {
				tr := math.TransformFromPosition(math.NewVec3(float32(i), 0, 0))
				r.AddObject(tr, g.quad, g.shader, g.pipeline, g.texture, g.sampler)
			}
			return nil
		},
		FnOnResize: func(width, height uint32) error {
			g.resizes = append(g.resizes, [2]uint32{width, height})
			return nil
		},
		FnOnKey: func(keyCode uint16) {
			g.keys = append(g.keys, keyCode)
		},
	}

	e, err := New(game)
	require.NoError(t, err)
	g.engine = e
	require.NoError(t, e.Initialize())
	return e
}

func headlessOf(e *Engine) *headless.Backend {
	return e.backend.(*headless.Backend)
}

func TestNewRequiresRenderHook(t *testing.T) {
	_, err := New(&Game{})
	assert.Error(t, err)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	config := core.DefaultConfig()
	config.Renderer.Backend = "opengl"
	_, err := New(&Game{Config: config, FnRender: func(*renderer.Renderer, float64) error { return nil }})
	assert.Error(t, err)
}

func TestEngineInitializePreloadsManifest(t *testing.T) {
	g := &quadGame{}
	e := newTestEngine(t, g)

	assert.Equal(t, EngineStageInitialized, e.Stage())
	require.NotNil(t, e.gameInstance.SystemManager)
	assert.Equal(t, 1, e.gameInstance.SystemManager.CameraSystem.Active())
	assert.NotZero(t, g.quad)
	assert.NotNil(t, e.Store().GetStaticMesh(g.quad, false))
	assert.True(t, e.Store().GetTexture(g.texture, false).Materialized())
	assert.True(t, e.Store().GetGraphicsShader(g.shader, false).Materialized())
	// The initial size is reported once the renderer exists.
	assert.Equal(t, [][2]uint32{{1280, 720}}, g.resizes)

	require.NoError(t, e.Shutdown())
	assert.Equal(t, EngineStageShutdown, e.Stage())
}

func TestEngineRunUntilStopped(t *testing.T) {
	g := &quadGame{quads: 4, stopAt: 5}
	e := newTestEngine(t, g)

	require.NoError(t, e.Run())
	assert.True(t, g.stopped)
	assert.Equal(t, 5, g.frames)
	assert.Equal(t, 5, headlessOf(e).Stats.Presents)
	assert.Equal(t, uint64(5), e.Renderer().Synchronizer().FrameCount())

	require.NoError(t, e.Shutdown())
}

func TestEngineResizeEvent(t *testing.T) {
	g := &quadGame{quads: 1}
	e := newTestEngine(t, g)
	defer e.Shutdown()

	ctx := core.EventContext{}
	ctx.Data.U32[0] = 800
	ctx.Data.U32[1] = 600
	core.EventFire(core.EVENT_CODE_RESIZED, nil, ctx)

	w, h := e.GetFramebufferSize()
	assert.Equal(t, uint32(800), w)
	assert.Equal(t, uint32(600), h)
	assert.Equal(t, [2]uint32{800, 600}, g.resizes[len(g.resizes)-1])

	require.NoError(t, e.Frame(0.016))
	assert.Equal(t, 1, headlessOf(e).HeadlessSwapchain().Recreated)
	assert.Equal(t, 1, headlessOf(e).Stats.Presents)
}

func TestEngineMinimizeSkipsFrames(t *testing.T) {
	g := &quadGame{quads: 1}
	e := newTestEngine(t, g)
	defer e.Shutdown()

	core.EventFire(core.EVENT_CODE_RESIZED, nil, core.EventContext{})
	assert.True(t, e.isSuspended)

	require.NoError(t, e.Frame(0.016))
	assert.Equal(t, 0, headlessOf(e).Stats.Presents)

	ctx := core.EventContext{}
	ctx.Data.U32[0] = 1024
	ctx.Data.U32[1] = 768
	core.EventFire(core.EVENT_CODE_RESIZED, nil, ctx)
	assert.False(t, e.isSuspended)

	require.NoError(t, e.Frame(0.016))
	assert.Equal(t, 1, headlessOf(e).Stats.Presents)
}

func TestEngineQuitAndKeyEvents(t *testing.T) {
	g := &quadGame{}
	e := newTestEngine(t, g)
	defer e.Shutdown()

	ctx := core.EventContext{}
	ctx.Data.U16[0] = 'W'
	core.EventFire(core.EVENT_CODE_KEY_PRESSED, nil, ctx)
	assert.Equal(t, []uint16{'W'}, g.keys)

	e.isRunning.Store(true)
	core.EventFire(core.EVENT_CODE_APPLICATION_QUIT, nil, core.EventContext{})
	assert.False(t, e.isRunning.Load())
}

func TestEngineAssetChangedReloadsShader(t *testing.T) {
	g := &quadGame{quads: 2}
	e := newTestEngine(t, g)
	defer e.Shutdown()

	require.NoError(t, e.Frame(0.016))
	shader := e.Store().GetGraphicsShader(g.shader, false)
	created := headlessOf(e).Stats.ShadersCreated

	ctx := core.EventContext{}
	ctx.Data.C[0] = shader.DeclPath
	core.EventFire(core.EVENT_CODE_ASSET_CHANGED, nil, ctx)
	assert.False(t, shader.Materialized())

	// Drawing with the pipeline rebuilds the shader from its declaration.
	require.NoError(t, e.Frame(0.016))
	assert.True(t, shader.Materialized())
	assert.Equal(t, created+1, headlessOf(e).Stats.ShadersCreated)
}

func TestEngineLifecycleOrder(t *testing.T) {
	g := &quadGame{}
	game := &Game{
		Config:   core.DefaultConfig(),
		FnRender: func(*renderer.Renderer, float64) error { return nil },
	}
	e, err := New(game)
	require.NoError(t, err)
	assert.Error(t, e.Run())

	e = newTestEngine(t, g)
	assert.Error(t, e.Initialize())
	require.NoError(t, e.Shutdown())
	require.NoError(t, e.Shutdown())
}
