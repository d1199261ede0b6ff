package renderer

import (
	"fmt"
	"testing"

	"github.com/spaghettifunk/anima-mesh/engine/assets"
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/headless"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memLoader serves declarations keyed by path.
type memLoader map[string]interface{}

func get[T any](l memLoader, path string) (*T, error) {
	if d, ok := l[path].(*T); ok {
		return d, nil
	}
	return nil, fmt.Errorf("no declaration at '%s'", path)
}

func (l memLoader) LoadShader(path string) (*metadata.ShaderDecl, error) {
	return get[metadata.ShaderDecl](l, path)
}

func (l memLoader) LoadPipeline(path string) (*metadata.PipelineDecl, error) {
	return get[metadata.PipelineDecl](l, path)
}

func (l memLoader) LoadTexture(path string) (*metadata.TextureDecl, error) {
	return get[metadata.TextureDecl](l, path)
}

func (l memLoader) LoadSampler(path string) (*metadata.SamplerDecl, error) {
	return get[metadata.SamplerDecl](l, path)
}

func (l memLoader) LoadMesh(path string) (*metadata.MeshDecl, error) {
	return get[metadata.MeshDecl](l, path)
}

func tri(offset float32) metadata.MeshData {
	return metadata.MeshData{
		Vertices: []math.Vertex3D{
			{Position: math.NewVec3(offset, 0, 0)},
			{Position: math.NewVec3(offset+1, 0, 0)},
			{Position: math.NewVec3(offset, 1, 0)},
		},
		Indices: []uint32{0, 1, 2},
	}
}

type rendererFixture struct {
	backend  *headless.Backend
	store    *assets.Store
	renderer *MeshRenderer
	cb       metadata.CommandBuffer

	cube, shader, opaque, wire, brick, linear, nearest, missing metadata.AssetID
}

func newRendererFixture(t *testing.T) *rendererFixture {
	t.Helper()
	b := headless.New(headless.DefaultConfig())
	loader := memLoader{
		"unlit.yaml":  &metadata.ShaderDecl{Name: "Unlit", VertexCode: []byte{1}, FragmentCode: []byte{2}},
		"opaque.yaml": metadata.DefaultPipelineDecl("Opaque"),
		"wire.yaml":   &metadata.PipelineDecl{Name: "Wire", Wireframe: true},
		"brick.yaml":  &metadata.TextureDecl{Name: "Brick", Width: 1, Height: 1, Pixels: []byte{200, 0, 0, 255}},
		"linear.yaml": &metadata.SamplerDecl{Name: "Linear"},
		"near.yaml":   &metadata.SamplerDecl{Name: "Nearest", MinFilter: metadata.FilterNearest, MagFilter: metadata.FilterNearest},
		"cube.yaml":   &metadata.MeshDecl{Name: "Cube", Meshes: []metadata.MeshData{tri(0), tri(5)}},
	}
	store := assets.NewStore(assets.StoreConfig{MaxTextures: 4}, b, loader)

	f := &rendererFixture{backend: b, store: store}
	f.cube = store.RegisterStaticMesh("Cube", "cube.yaml").ID
	f.shader = store.RegisterGraphicsShader("Unlit", "unlit.yaml").ID
	f.opaque = store.RegisterGraphicsPipeline("Opaque", "opaque.yaml", f.shader).ID
	f.wire = store.RegisterGraphicsPipeline("Wire", "wire.yaml", f.shader).ID
	f.brick = store.RegisterTexture("Brick", "brick.yaml").ID
	f.linear = store.RegisterSampler("Linear", "linear.yaml").ID
	f.nearest = store.RegisterSampler("Nearest", "near.yaml").ID
	f.missing = store.RegisterTexture("Missing", "missing.yaml").ID

	f.renderer = NewMeshRenderer(b, store)
	require.NoError(t, f.renderer.Init(b.Swapchain().RenderPass()))

	var err error
	f.cb, err = b.AllocateCommandBuffer()
	require.NoError(t, err)
	return f
}

func (f *rendererFixture) frame(slot uint32) metadata.Frame {
	return metadata.Frame{
		IsValid:     true,
		ImageIndex:  slot,
		FrameIndex:  slot,
		FrameSize:   metadata.Extent{Width: 320, Height: 200},
		Framebuffer: f.backend.Swapchain().Framebuffer(slot),
	}
}

func (f *rendererFixture) addCubes(t *testing.T, n int, pipeline metadata.AssetID) []metadata.ObjectBatchObject {
	t.Helper()
	var objects []metadata.ObjectBatchObject
	for i := 0; i < n; i++ {
		tr := math.TransformFromPosition(math.NewVec3(float32(i), 0, 0))
		objects = f.renderer.AddObject(objects, tr, f.cube, f.shader, pipeline, f.brick, f.linear)
	}
	require.Len(t, objects, n)
	return objects
}

// renderFrame runs one CalculateCommandData + Render into a fresh recording.
func (f *rendererFixture) renderFrame(t *testing.T, slot uint32, objects []metadata.ObjectBatchObject) ([]metadata.RenderBatch, []metadata.ObjectBufferObject) {
	t.Helper()
	batches, buffer, err := f.renderer.CalculateCommandData(objects)
	require.NoError(t, err)
	require.NoError(t, f.backend.BeginCommandBuffer(f.cb))
	require.NoError(t, f.renderer.Render(f.cb, f.frame(slot), batches, buffer))
	require.NoError(t, f.backend.EndCommandBuffer(f.cb))
	return batches, buffer
}

func TestAddObjectUnregisteredMesh(t *testing.T) {
	f := newRendererFixture(t)
	objects := f.renderer.AddObject(nil, nil, metadata.AssetID(999), f.shader, f.opaque, f.brick, f.linear)
	assert.Empty(t, objects)
}

func TestAddObjectMaterializesLazily(t *testing.T) {
	f := newRendererFixture(t)
	assert.Equal(t, 0, f.backend.Stats.PipelinesCreated)

	objects := f.addCubes(t, 3, f.opaque)
	assert.Equal(t, 1, f.backend.Stats.PipelinesCreated)
	assert.Equal(t, 1, f.backend.Stats.ShadersCreated)
	// blank texture plus brick
	assert.Equal(t, 2, f.backend.Stats.TexturesCreated)
	assert.Equal(t, 2, f.store.Textures().Len())

	obj := objects[2]
	assert.Equal(t, f.opaque, obj.PipelineID)
	assert.Equal(t, []uint32{0, 1}, obj.ArenaIndexes)
	assert.Equal(t, float32(1), obj.Object.Metadata.Y)
	assert.Equal(t, float32(2), obj.Object.Model.Translation().X)
}

func TestAddObjectSubMeshFilter(t *testing.T) {
	f := newRendererFixture(t)
	objects := f.renderer.AddObject(nil, nil, f.cube, f.shader, f.opaque, f.brick, f.linear, 1)
	require.Len(t, objects, 1)
	assert.Equal(t, []uint32{1}, objects[0].ArenaIndexes)

	objects = f.renderer.AddObject(nil, nil, f.cube, f.shader, f.opaque, f.brick, f.linear, 7)
	assert.Empty(t, objects)
}

func TestAddObjectTextureFallback(t *testing.T) {
	f := newRendererFixture(t)
	objects := f.renderer.AddObject(nil, nil, f.cube, f.shader, f.opaque, f.missing, f.linear)
	require.Len(t, objects, 1)
	assert.Equal(t, float32(0), objects[0].Object.Metadata.Y)

	objects = f.renderer.AddObject(nil, nil, f.cube, f.shader, f.opaque, metadata.InvalidAssetID, metadata.InvalidAssetID)
	require.Len(t, objects, 1)
	assert.Equal(t, float32(0), objects[0].Object.Metadata.Y)
}

func TestAddObjectActiveCamera(t *testing.T) {
	f := newRendererFixture(t)
	f.renderer.SetActiveCamera(2)
	objects := f.renderer.AddObject(nil, nil, f.cube, f.shader, f.opaque, f.brick, f.linear)
	require.Len(t, objects, 1)
	assert.Equal(t, float32(2), objects[0].Object.Metadata.X)

	f.renderer.SetActiveCamera(40)
	objects = f.renderer.AddObject(nil, nil, f.cube, f.shader, f.opaque, f.brick, f.linear)
	assert.Equal(t, float32(metadata.MaxCameras-1), objects[0].Object.Metadata.X)
}

func TestRenderNothingIsNoop(t *testing.T) {
	f := newRendererFixture(t)
	require.NoError(t, f.backend.BeginCommandBuffer(f.cb))
	calls := len(f.backend.Calls)
	writes := f.backend.Stats.TextureSetWrites

	batches, buffer, err := f.renderer.CalculateCommandData(nil)
	require.NoError(t, err)
	require.NoError(t, f.renderer.Render(f.cb, f.frame(0), batches, buffer))

	assert.Len(t, f.backend.Calls, calls)
	assert.Equal(t, writes, f.backend.Stats.TextureSetWrites)
	assert.Empty(t, f.backend.Recording(f.cb).Commands)
	assert.Equal(t, uint32(1), f.renderer.Capacity(0))
}

func TestRenderHighWaterMark(t *testing.T) {
	f := newRendererFixture(t)

	// each cube has two sub-meshes, so n cubes fill 2n object entries
	for _, n := range []int{5, 10, 3} {
		f.renderFrame(t, 0, f.addCubes(t, n, f.opaque))
	}
	assert.Equal(t, uint32(20), f.renderer.Capacity(0))
	assert.Equal(t, uint32(1), f.renderer.Capacity(1))

	buf := f.backend.SetBuffer(f.renderer.frames[0].objectSet)
	assert.Equal(t, uint64(20*metadata.ObjectBufferObjectSize), f.backend.BufferSize(buf))

	require.NoError(t, f.renderer.PurgeAllObjects(0))
	assert.Equal(t, uint32(1), f.renderer.Capacity(0))
}

func TestRenderBatchesByPipeline(t *testing.T) {
	f := newRendererFixture(t)
	var objects []metadata.ObjectBatchObject
	// wire was registered after opaque so it has the larger id
	objects = f.renderer.AddObject(objects, nil, f.cube, f.shader, f.wire, f.brick, f.linear)
	objects = f.renderer.AddObject(objects, nil, f.cube, f.shader, f.opaque, f.brick, f.linear, 0)
	objects = f.renderer.AddObject(objects, nil, f.cube, f.shader, f.wire, f.brick, f.linear, 1)
	require.Len(t, objects, 3)

	batches, buffer := f.renderFrame(t, 0, objects)
	require.Len(t, batches, 2)
	assert.Equal(t, f.opaque, batches[0].PipelineID)
	assert.Equal(t, f.wire, batches[1].PipelineID)
	assert.Len(t, batches[0].Objects, 1)
	assert.Len(t, batches[1].Objects, 2)

	assert.Equal(t, []metadata.RenderCommand{{MeshIndex: 0, ObjIndex: 0}}, batches[0].Commands)
	assert.Equal(t, []metadata.RenderCommand{
		{MeshIndex: 0, ObjIndex: 1},
		{MeshIndex: 1, ObjIndex: 2},
		{MeshIndex: 1, ObjIndex: 3},
	}, batches[1].Commands)
	require.Len(t, buffer, 4)
	for i, cmd := range append(batches[0].Commands, batches[1].Commands...) {
		assert.Equal(t, float32(cmd.MeshIndex), buffer[i].Metadata.Z)
	}

	rec := f.backend.Recording(f.cb)
	draws := rec.Draws()
	require.Len(t, draws, 4)
	for i, d := range draws {
		assert.Equal(t, uint32(i), d.FirstInstance)
		assert.Equal(t, uint32(3), d.IndexCount)
		assert.Equal(t, uint32(1), d.InstanceCount)
	}
	// second sub-mesh starts after the first one's three vertices
	assert.Equal(t, int32(3), draws[2].VertexOffset)

	var bound []metadata.Handle
	for _, c := range rec.Commands {
		if c.Op == "BindPipeline" {
			bound = append(bound, c.Handle)
		}
	}
	opaque := f.store.GetGraphicsPipeline(f.opaque, false)
	wire := f.store.GetGraphicsPipeline(f.wire, false)
	assert.Equal(t, []metadata.Handle{metadata.Handle(opaque.Handle), metadata.Handle(wire.Handle)}, bound)

	cfg, ok := f.backend.PipelineConfig(wire.Handle)
	require.True(t, ok)
	assert.True(t, cfg.Wireframe)
	assert.Equal(t, f.renderer.PipelineLayout(), cfg.Layout)
}

func TestRenderUploadsTexturesOnlyOnChange(t *testing.T) {
	f := newRendererFixture(t)
	objects := f.addCubes(t, 2, f.opaque)

	f.renderFrame(t, 0, objects)
	assert.Equal(t, 1, f.backend.Stats.TextureSetWrites)
	f.renderFrame(t, 0, objects)
	assert.Equal(t, 1, f.backend.Stats.TextureSetWrites)

	// the other slot has its own set
	f.renderFrame(t, 1, objects)
	assert.Equal(t, 2, f.backend.Stats.TextureSetWrites)

	// same texture with another sampler is a new pair
	objects = f.renderer.AddObject(objects, nil, f.cube, f.shader, f.opaque, f.brick, f.nearest)
	assert.Equal(t, float32(2), objects[2].Object.Metadata.Y)
	f.renderFrame(t, 0, objects)
	assert.Equal(t, 3, f.backend.Stats.TextureSetWrites)

	table := f.backend.SetTextures(f.renderer.frames[0].textureSet)
	require.Len(t, table, 4)
	assert.Equal(t, table[0], table[3])
}

func TestRenderRejectsInvalidFrame(t *testing.T) {
	f := newRendererFixture(t)
	batches, buffer, err := f.renderer.CalculateCommandData(f.addCubes(t, 1, f.opaque))
	require.NoError(t, err)
	assert.Error(t, f.renderer.Render(f.cb, metadata.Frame{}, batches, buffer))
}

func TestUpdateCamera(t *testing.T) {
	f := newRendererFixture(t)
	var camera metadata.CameraBuffer
	camera.View[0] = math.NewMat4Translation(math.NewVec3(0, 0, -5))
	require.NoError(t, f.renderer.UpdateCamera(f.frame(1), &camera))

	data := f.backend.BufferData(f.renderer.frames[1].cameraBuffer)
	assert.Equal(t, camera.Bytes(), data)
}

func TestRendererShutdownReleasesEverything(t *testing.T) {
	f := newRendererFixture(t)
	f.renderFrame(t, 0, f.addCubes(t, 4, f.opaque))

	require.NoError(t, f.renderer.Shutdown())
	require.NoError(t, f.store.Destroy())
	f.backend.FreeCommandBuffer(f.cb)
	assert.NoError(t, f.backend.Shutdown())
}
