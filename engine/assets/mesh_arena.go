package assets

import (
	"fmt"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

/** @brief The place of one mesh inside the arena buffers. */
type MeshRange struct {
	FirstVertex uint32
	VertexCount uint32
	FirstIndex  uint32
	IndexCount  uint32
}

/**
 * @brief An append-only vertex and index store shared by every mesh. Each
 * AddMesh call returns an arena index that keeps addressing the same range
 * until Destroy.
 */
type MeshArena struct {
	device    metadata.Device
	allocator metadata.Allocator
	recorder  metadata.Recorder

	vertices []math.Vertex3D
	indices  []uint32
	ranges   []MeshRange

	vertexBuffer metadata.Buffer
	indexBuffer  metadata.Buffer
	// Number of ranges contained in the uploaded buffers.
	builtMeshes int
}

func NewMeshArena(device metadata.Device, allocator metadata.Allocator, recorder metadata.Recorder) *MeshArena {
	return &MeshArena{
		device:    device,
		allocator: allocator,
		recorder:  recorder,
	}
}

// AddMesh appends the mesh and returns its arena index. Indices in data are
// relative to its own vertices.
func (a *MeshArena) AddMesh(data metadata.MeshData) uint32 {
	r := MeshRange{
		FirstVertex: uint32(len(a.vertices)),
		VertexCount: uint32(len(data.Vertices)),
		FirstIndex:  uint32(len(a.indices)),
		IndexCount:  uint32(len(data.Indices)),
	}
	a.vertices = append(a.vertices, data.Vertices...)
	a.indices = append(a.indices, data.Indices...)
	a.ranges = append(a.ranges, r)
	return uint32(len(a.ranges) - 1)
}

func (a *MeshArena) Range(arenaIndex uint32) (MeshRange, bool) {
	if int(arenaIndex) >= len(a.ranges) {
		return MeshRange{}, false
	}
	return a.ranges[arenaIndex], true
}

func (a *MeshArena) Len() int {
	return len(a.ranges)
}

func (a *MeshArena) VertexCount() int {
	return len(a.vertices)
}

func (a *MeshArena) IsBuilt() bool {
	return a.vertexBuffer != 0 && a.indexBuffer != 0
}

// NeedsBuild reports whether meshes were added since the last upload.
func (a *MeshArena) NeedsBuild() bool {
	return a.builtMeshes != len(a.ranges)
}

// BuildGPUBuffer uploads the whole arena into fresh vertex and index buffers.
// It does nothing when no mesh was added since the previous upload. Old
// buffers are released only after the device is idle.
func (a *MeshArena) BuildGPUBuffer() error {
	if !a.NeedsBuild() {
		return nil
	}
	if len(a.vertices) == 0 || len(a.indices) == 0 {
		a.builtMeshes = len(a.ranges)
		core.LogDebug("mesh arena is empty, nothing to upload")
		return nil
	}

	if a.IsBuilt() {
		if err := a.device.WaitIdle(); err != nil {
			err = fmt.Errorf("mesh arena rebuild: failed to wait for device idle: %w", err)
			core.LogError(err.Error())
			return err
		}
		a.releaseBuffers()
	}

	vertexData := metadata.PackVertices(a.vertices)
	indexData := metadata.PackIndices(a.indices)

	vb, err := a.allocator.CreateBuffer(metadata.BufferUsageVertex, uint64(len(vertexData)))
	if err != nil {
		err = fmt.Errorf("mesh arena: failed to create vertex buffer: %w", err)
		core.LogError(err.Error())
		return err
	}
	ib, err := a.allocator.CreateBuffer(metadata.BufferUsageIndex, uint64(len(indexData)))
	if err != nil {
		a.allocator.DestroyBuffer(vb)
		err = fmt.Errorf("mesh arena: failed to create index buffer: %w", err)
		core.LogError(err.Error())
		return err
	}
	if err := a.allocator.WriteBuffer(vb, 0, vertexData); err != nil {
		a.allocator.DestroyBuffer(vb)
		a.allocator.DestroyBuffer(ib)
		return fmt.Errorf("mesh arena: vertex upload failed: %w", err)
	}
	if err := a.allocator.WriteBuffer(ib, 0, indexData); err != nil {
		a.allocator.DestroyBuffer(vb)
		a.allocator.DestroyBuffer(ib)
		return fmt.Errorf("mesh arena: index upload failed: %w", err)
	}

	a.vertexBuffer = vb
	a.indexBuffer = ib
	a.builtMeshes = len(a.ranges)
	core.LogDebug("mesh arena uploaded: %d meshes, %d vertices, %d indices", len(a.ranges), len(a.vertices), len(a.indices))
	return nil
}

// Bind binds the arena buffers. Called once per batch.
func (a *MeshArena) Bind(cb metadata.CommandBuffer) error {
	if !a.IsBuilt() {
		return core.ErrNotBuilt
	}
	a.recorder.BindVertexBuffer(cb, a.vertexBuffer)
	a.recorder.BindIndexBuffer(cb, a.indexBuffer)
	return nil
}

// DrawOne draws the mesh at arenaIndex for the object buffer entry
// objectIndex, which the shader reads through the instance index.
func (a *MeshArena) DrawOne(cb metadata.CommandBuffer, arenaIndex, objectIndex, objectCount uint32) error {
	if !a.IsBuilt() {
		return core.ErrNotBuilt
	}
	if int(arenaIndex) >= a.builtMeshes {
		return fmt.Errorf("mesh arena index %d not uploaded (%d meshes on the gpu): %w", arenaIndex, a.builtMeshes, core.ErrNotFound)
	}
	if objectIndex >= objectCount {
		return fmt.Errorf("object index %d out of range (%d objects)", objectIndex, objectCount)
	}
	r := a.ranges[arenaIndex]
	a.recorder.DrawIndexed(cb, r.IndexCount, 1, r.FirstIndex, int32(r.FirstVertex), objectIndex)
	return nil
}

func (a *MeshArena) releaseBuffers() {
	if a.vertexBuffer != 0 {
		a.allocator.DestroyBuffer(a.vertexBuffer)
		a.vertexBuffer = 0
	}
	if a.indexBuffer != 0 {
		a.allocator.DestroyBuffer(a.indexBuffer)
		a.indexBuffer = 0
	}
}

// Destroy frees the GPU buffers and forgets every mesh. Indices issued
// before are invalid afterwards.
func (a *MeshArena) Destroy() {
	a.releaseBuffers()
	a.vertices = nil
	a.indices = nil
	a.ranges = nil
	a.builtMeshes = 0
}
