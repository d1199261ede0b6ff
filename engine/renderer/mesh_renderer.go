package renderer

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-mesh/engine/assets"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
	"golang.org/x/exp/slices"
)

// MeshRendererGPU is the part of the backend the mesh renderer records with.
type MeshRendererGPU interface {
	assets.GPU
	metadata.Descriptors
}

/**
 * @brief Per in-flight slot GPU state. Only touched while the slot's fence
 * is known to be signaled.
 */
type frameResources struct {
	cameraBuffer metadata.Buffer
	objectBuffer metadata.Buffer
	/** @brief Object entries the object buffer can hold. Never shrinks on its own. */
	capacity uint32

	cameraSet  metadata.DescriptorSet
	objectSet  metadata.DescriptorSet
	textureSet metadata.DescriptorSet

	/** @brief TextureArray version last written into textureSet. */
	textureVersion  uint64
	textureUploaded bool
}

/**
 * @brief Turns per frame draw requests into batched, instanced draws over the
 * mesh arena. Objects read their transform from a storage buffer and their
 * texture from a bindless sampler array.
 */
type MeshRenderer struct {
	gpu   MeshRendererGPU
	store *assets.Store

	cameraLayout   metadata.DescriptorSetLayout
	objectLayout   metadata.DescriptorSetLayout
	textureLayout  metadata.DescriptorSetLayout
	pipelineLayout metadata.PipelineLayout
	renderPass     metadata.RenderPass

	frames [metadata.MaxFramesInFlight]frameResources

	blankImage   metadata.Image
	blankView    metadata.ImageView
	blankSampler metadata.Sampler

	activeCamera uint32
	initialized  bool
}

func NewMeshRenderer(gpu MeshRendererGPU, store *assets.Store) *MeshRenderer {
	return &MeshRenderer{gpu: gpu, store: store}
}

func (r *MeshRenderer) PipelineLayout() metadata.PipelineLayout {
	return r.pipelineLayout
}

// SetRenderPass changes the pass new pipelines are built against, after a
// swapchain rebuild.
func (r *MeshRenderer) SetRenderPass(pass metadata.RenderPass) {
	r.renderPass = pass
}

// SetActiveCamera selects which of the MaxCameras cameras new objects use.
func (r *MeshRenderer) SetActiveCamera(index uint32) {
	r.activeCamera = math.Clamp(index, 0, metadata.MaxCameras-1)
}

/**
 * @brief Creates the descriptor layouts, the pipeline layout and the per slot
 * buffers, then puts the blank texture in slot 0 of the texture array.
 */
func (r *MeshRenderer) Init(renderPass metadata.RenderPass) error {
	if r.initialized {
		return nil
	}
	r.renderPass = renderPass
	maxTextures := r.store.Textures().Capacity()
	if maxTextures == 0 {
		return fmt.Errorf("mesh renderer needs at least one texture slot")
	}

	var err error
	// Camera uniform, set 0
	if r.cameraLayout, err = r.gpu.CreateSetLayout(metadata.DescriptorBinding{
		Type:   metadata.DescriptorTypeUniformBuffer,
		Count:  1,
		Stages: metadata.ShaderStageVertex | metadata.ShaderStageFragment,
	}); err != nil {
		return err
	}
	// Object storage buffer, set 1
	if r.objectLayout, err = r.gpu.CreateSetLayout(metadata.DescriptorBinding{
		Type:   metadata.DescriptorTypeStorageBuffer,
		Count:  1,
		Stages: metadata.ShaderStageVertex | metadata.ShaderStageFragment,
	}); err != nil {
		return err
	}
	// Bindless sampler array, set 2
	if r.textureLayout, err = r.gpu.CreateSetLayout(metadata.DescriptorBinding{
		Type:   metadata.DescriptorTypeCombinedImageSampler,
		Count:  maxTextures,
		Stages: metadata.ShaderStageFragment,
	}); err != nil {
		return err
	}
	if r.pipelineLayout, err = r.gpu.CreatePipelineLayout([]metadata.DescriptorSetLayout{
		r.cameraLayout, r.objectLayout, r.textureLayout,
	}); err != nil {
		return err
	}

	for i := range r.frames {
		if err := r.initFrame(&r.frames[i]); err != nil {
			return fmt.Errorf("mesh renderer slot %d: %w", i, err)
		}
	}

	if err := r.createBlankTexture(); err != nil {
		return err
	}

	r.initialized = true
	core.LogDebug("Mesh renderer initialized with %d texture slots", maxTextures)
	return nil
}

func (r *MeshRenderer) initFrame(fr *frameResources) error {
	var err error
	if fr.cameraBuffer, err = r.gpu.CreateBuffer(metadata.BufferUsageUniform, metadata.CameraBufferSize); err != nil {
		return err
	}
	if fr.objectBuffer, err = r.gpu.CreateBuffer(metadata.BufferUsageStorage, metadata.ObjectBufferObjectSize); err != nil {
		return err
	}
	fr.capacity = 1

	if fr.cameraSet, err = r.gpu.AllocateSet(r.cameraLayout); err != nil {
		return err
	}
	if fr.objectSet, err = r.gpu.AllocateSet(r.objectLayout); err != nil {
		return err
	}
	if fr.textureSet, err = r.gpu.AllocateSet(r.textureLayout); err != nil {
		return err
	}
	if err := r.gpu.WriteBufferSet(fr.cameraSet, metadata.DescriptorTypeUniformBuffer, fr.cameraBuffer, metadata.CameraBufferSize); err != nil {
		return err
	}
	return r.gpu.WriteBufferSet(fr.objectSet, metadata.DescriptorTypeStorageBuffer, fr.objectBuffer, metadata.ObjectBufferObjectSize)
}

func (r *MeshRenderer) createBlankTexture() error {
	textures := r.store.Textures()
	if textures.Len() > 0 {
		core.LogWarn("texture array already holds %d textures, slot 0 will not be the blank texture", textures.Len())
	}

	var err error
	white := []byte{255, 255, 255, 255}
	if r.blankImage, r.blankView, err = r.gpu.CreateTexture("blank", 1, 1, white); err != nil {
		return fmt.Errorf("failed to create blank texture: %w", err)
	}
	if r.blankSampler, err = r.gpu.CreateSampler(metadata.SamplerConfig{
		Name:        "blank",
		MinFilter:   metadata.FilterNearest,
		MagFilter:   metadata.FilterNearest,
		AddressMode: metadata.AddressModeRepeat,
	}); err != nil {
		return fmt.Errorf("failed to create blank sampler: %w", err)
	}
	textures.AddTexture(r.blankView, r.blankSampler)
	return nil
}

/**
 * @brief Queues an object for drawing this frame. Referenced assets are
 * created on first use. Nothing is appended when the mesh or the pipeline
 * cannot be created. A missing texture or sampler falls back to slot 0.
 * meshIndexes selects sub-meshes of the static mesh; none means all of them.
 */
func (r *MeshRenderer) AddObject(
	objects []metadata.ObjectBatchObject,
	transform *math.Transform,
	meshID, shaderID, pipelineID, textureID, samplerID metadata.AssetID,
	meshIndexes ...uint32,
) []metadata.ObjectBatchObject {
	mesh, err := r.store.CreateStaticMesh(meshID)
	if err != nil || !mesh.Materialized() {
		core.LogWarn("object skipped, mesh %d unavailable: %v", meshID, err)
		return objects
	}

	if shaderID != metadata.InvalidAssetID {
		if _, err := r.store.CreateGraphicsShader(shaderID); err != nil {
			core.LogWarn("object skipped, shader %d unavailable: %v", shaderID, err)
			return objects
		}
	}
	pipeline, err := r.store.CreateGraphicsPipeline(pipelineID, r.pipelineLayout, r.renderPass)
	if err != nil || !pipeline.Materialized() {
		core.LogWarn("object skipped, pipeline %d unavailable: %v", pipelineID, err)
		return objects
	}

	var arenaIndexes []uint32
	if len(meshIndexes) == 0 {
		arenaIndexes = append(arenaIndexes, mesh.ArenaIndexes...)
	} else {
		for _, i := range meshIndexes {
			if int(i) >= len(mesh.ArenaIndexes) {
				core.LogWarn("mesh '%s' has no sub-mesh %d", mesh.Name, i)
				continue
			}
			arenaIndexes = append(arenaIndexes, mesh.ArenaIndexes[i])
		}
	}
	if len(arenaIndexes) == 0 {
		return objects
	}

	return append(objects, metadata.ObjectBatchObject{
		PipelineID:   pipeline.ID,
		ArenaIndexes: arenaIndexes,
		Object: metadata.ObjectBufferObject{
			Model:    transform.GetWorld(),
			Metadata: math.NewVec4(float32(r.activeCamera), float32(r.textureSlot(textureID, samplerID)), 0, 0),
		},
	})
}

func (r *MeshRenderer) textureSlot(textureID, samplerID metadata.AssetID) uint32 {
	if textureID == metadata.InvalidAssetID || samplerID == metadata.InvalidAssetID {
		return 0
	}
	texture, err := r.store.CreateTexture(textureID)
	if err != nil || !texture.Materialized() {
		return 0
	}
	sampler, err := r.store.CreateSampler(samplerID)
	if err != nil || !sampler.Materialized() {
		return 0
	}
	return r.store.Textures().AddTexture(texture.View, sampler.Handle)
}

/**
 * @brief Groups the queued objects into one batch per pipeline, in ascending
 * pipeline order, and flattens them into the object buffer: one entry per
 * (object, sub-mesh) pair, addressed by the command's ObjIndex. Uploads the
 * mesh arena when meshes were added since the last upload.
 */
func (r *MeshRenderer) CalculateCommandData(objects []metadata.ObjectBatchObject) ([]metadata.RenderBatch, []metadata.ObjectBufferObject, error) {
	if len(objects) == 0 {
		return nil, nil, nil
	}

	byPipeline := make(map[metadata.AssetID]*metadata.RenderBatch)
	var order []metadata.AssetID
	for _, obj := range objects {
		batch, ok := byPipeline[obj.PipelineID]
		if !ok {
			batch = &metadata.RenderBatch{PipelineID: obj.PipelineID}
			byPipeline[obj.PipelineID] = batch
			order = append(order, obj.PipelineID)
		}
		batch.Objects = append(batch.Objects, obj)
	}
	slices.Sort(order)

	batches := make([]metadata.RenderBatch, 0, len(order))
	var objectBuffer []metadata.ObjectBufferObject
	for _, id := range order {
		batch := byPipeline[id]
		for _, obj := range batch.Objects {
			for _, arenaIndex := range obj.ArenaIndexes {
				entry := obj.Object
				entry.Metadata.Z = float32(arenaIndex)
				batch.Commands = append(batch.Commands, metadata.RenderCommand{
					MeshIndex: arenaIndex,
					ObjIndex:  uint32(len(objectBuffer)),
				})
				objectBuffer = append(objectBuffer, entry)
			}
		}
		batches = append(batches, *batch)
	}

	if err := r.store.Arena().BuildGPUBuffer(); err != nil {
		return batches, objectBuffer, err
	}
	return batches, objectBuffer, nil
}

// UpdateCamera uploads the camera block of the frame's slot.
func (r *MeshRenderer) UpdateCamera(frame metadata.Frame, camera *metadata.CameraBuffer) error {
	if !frame.IsValid || frame.FrameIndex >= metadata.MaxFramesInFlight {
		return core.ErrInvalidFrame
	}
	return r.gpu.WriteBuffer(r.frames[frame.FrameIndex].cameraBuffer, 0, camera.Bytes())
}

/**
 * @brief Records the draws of every batch into cb. Does nothing when the
 * object buffer is empty. The slot's object buffer grows to the object count
 * when it is exceeded and is never shrunk here.
 */
func (r *MeshRenderer) Render(cb metadata.CommandBuffer, frame metadata.Frame, batches []metadata.RenderBatch, objectBuffer []metadata.ObjectBufferObject) error {
	if len(objectBuffer) == 0 {
		return nil
	}
	if !r.initialized {
		return fmt.Errorf("mesh renderer used before Init")
	}
	if !frame.IsValid || frame.FrameIndex >= metadata.MaxFramesInFlight {
		return core.ErrInvalidFrame
	}
	fr := &r.frames[frame.FrameIndex]
	count := uint32(len(objectBuffer))

	if count > fr.capacity {
		if err := r.resizeObjectBuffer(fr, count); err != nil {
			return err
		}
	}
	if err := r.gpu.WriteBuffer(fr.objectBuffer, 0, metadata.PackObjects(objectBuffer)); err != nil {
		return err
	}

	textures := r.store.Textures()
	if !fr.textureUploaded || fr.textureVersion != textures.Version() {
		if err := r.gpu.WriteTextureSet(fr.textureSet, textures.Pairs()); err != nil {
			return err
		}
		fr.textureVersion = textures.Version()
		fr.textureUploaded = true
	}

	arena := r.store.Arena()
	sets := []metadata.DescriptorSet{fr.cameraSet, fr.objectSet, fr.textureSet}
	var errs []error
	for _, batch := range batches {
		pipeline := r.store.GetGraphicsPipeline(batch.PipelineID, true)
		if pipeline == nil || !pipeline.Materialized() {
			core.LogWarn("batch skipped, pipeline %d is not built", batch.PipelineID)
			continue
		}
		r.gpu.BindPipeline(cb, pipeline.Handle)
		r.gpu.SetViewport(cb, frame.FrameSize)
		r.gpu.SetScissor(cb, frame.FrameSize)
		r.gpu.BindDescriptorSets(cb, r.pipelineLayout, sets)
		if err := arena.Bind(cb); err != nil {
			return err
		}
		for _, cmd := range batch.Commands {
			if err := arena.DrawOne(cb, cmd.MeshIndex, cmd.ObjIndex, count); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (r *MeshRenderer) resizeObjectBuffer(fr *frameResources, capacity uint32) error {
	buf, err := r.gpu.CreateBuffer(metadata.BufferUsageStorage, uint64(capacity)*metadata.ObjectBufferObjectSize)
	if err != nil {
		core.LogError("failed to grow object buffer to %d objects: %s", capacity, err)
		return err
	}
	if err := r.gpu.WriteBufferSet(fr.objectSet, metadata.DescriptorTypeStorageBuffer, buf, uint64(capacity)*metadata.ObjectBufferObjectSize); err != nil {
		r.gpu.DestroyBuffer(buf)
		return err
	}
	r.gpu.DestroyBuffer(fr.objectBuffer)
	fr.objectBuffer = buf
	core.LogDebug("object buffer grown from %d to %d objects", fr.capacity, capacity)
	fr.capacity = capacity
	return nil
}

// Capacity returns how many objects the slot's object buffer holds.
func (r *MeshRenderer) Capacity(slot uint32) uint32 {
	if slot >= metadata.MaxFramesInFlight {
		return 0
	}
	return r.frames[slot].capacity
}

// PurgeAllObjects shrinks a slot's object buffer back to a single object.
func (r *MeshRenderer) PurgeAllObjects(slot uint32) error {
	if slot >= metadata.MaxFramesInFlight || !r.initialized {
		return core.ErrInvalidFrame
	}
	if err := r.gpu.WaitIdle(); err != nil {
		return err
	}
	fr := &r.frames[slot]
	fr.capacity = 0
	return r.resizeObjectBuffer(fr, 1)
}

// Shutdown releases everything Init created. The asset store is left alone.
func (r *MeshRenderer) Shutdown() error {
	if !r.initialized {
		return nil
	}
	err := r.gpu.WaitIdle()

	for i := range r.frames {
		fr := &r.frames[i]
		r.gpu.DestroyBuffer(fr.cameraBuffer)
		r.gpu.DestroyBuffer(fr.objectBuffer)
		*fr = frameResources{}
	}
	r.gpu.DestroySampler(r.blankSampler)
	r.gpu.DestroyTexture(r.blankImage, r.blankView)
	r.gpu.DestroyPipelineLayout(r.pipelineLayout)
	r.gpu.DestroySetLayout(r.textureLayout)
	r.gpu.DestroySetLayout(r.objectLayout)
	r.gpu.DestroySetLayout(r.cameraLayout)

	r.initialized = false
	core.LogDebug("Mesh renderer shut down")
	return err
}
