package renderer

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-mesh/engine/assets"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

/**
 * @brief The frontend the engine loop drives. It owns the mesh renderer, the
 * frame synchronizer and one command buffer per in-flight slot, and keeps
 * them consistent across swapchain rebuilds.
 */
type Renderer struct {
	backend metadata.Backend
	store   *assets.Store

	meshes *MeshRenderer
	sync   *FrameSynchronizer

	commandBuffers [metadata.MaxFramesInFlight]metadata.CommandBuffer
	clearColor     [4]float32

	camera  metadata.CameraBuffer
	objects []metadata.ObjectBatchObject

	// Set by Resize, consumed by the next BeginFrame.
	resizePending bool
	width, height uint32

	frame metadata.Frame
}

// New builds the renderer on top of an already initialized backend and
// asset store.
func New(backend metadata.Backend, store *assets.Store, config *core.RendererConfig) (*Renderer, error) {
	r := &Renderer{
		backend:    backend,
		store:      store,
		clearColor: config.ClearColor,
	}
	swapchain := backend.Swapchain()
	extent := swapchain.Extent()
	r.width, r.height = extent.Width, extent.Height

	r.meshes = NewMeshRenderer(backend, store)
	if err := r.meshes.Init(swapchain.RenderPass()); err != nil {
		return nil, fmt.Errorf("mesh renderer init: %w", err)
	}

	sync, err := NewFrameSynchronizer(backend, swapchain, config.FenceTimeout())
	if err != nil {
		r.meshes.Shutdown()
		return nil, err
	}
	r.sync = sync

	for i := range r.commandBuffers {
		cb, err := backend.AllocateCommandBuffer()
		if err != nil {
			r.Shutdown()
			return nil, err
		}
		r.commandBuffers[i] = cb
	}

	core.LogInfo("Renderer ready (%dx%d, %d swapchain images)", extent.Width, extent.Height, swapchain.ImageCount())
	return r, nil
}

func (r *Renderer) Meshes() *MeshRenderer {
	return r.meshes
}

func (r *Renderer) Synchronizer() *FrameSynchronizer {
	return r.sync
}

// Camera is the block uploaded for the frame at EndFrame.
func (r *Renderer) Camera() *metadata.CameraBuffer {
	return &r.camera
}

func (r *Renderer) AspectRatio() float32 {
	extent := r.backend.Swapchain().Extent()
	if extent.Height == 0 {
		return 1
	}
	return float32(extent.Width) / float32(extent.Height)
}

// Resize records the new framebuffer size. The swapchain is rebuilt at the
// start of the next frame.
func (r *Renderer) Resize(width, height uint32) {
	r.width, r.height = width, height
	r.resizePending = true
}

/**
 * @brief Rebuilds the swapchain for the last known size, then the pipelines
 * built against its render pass and the synchronizer's image table.
 */
func (r *Renderer) Rebuild() error {
	if err := r.backend.WaitIdle(); err != nil {
		return err
	}
	swapchain := r.backend.Swapchain()
	if err := swapchain.Recreate(r.width, r.height); err != nil {
		return err
	}
	pass := swapchain.RenderPass()
	r.meshes.SetRenderPass(pass)
	if err := r.store.RemakeGraphicsPipelines(pass); err != nil {
		return err
	}
	if err := r.sync.Recreate(); err != nil {
		return err
	}
	r.resizePending = false
	core.LogDebug("Renderer rebuilt for %dx%d", r.width, r.height)
	return nil
}

/**
 * @brief Acquires the next frame and opens its command buffer and render
 * pass. Returns core.ErrSwapchainStale after rebuilding when the frame has
 * to be skipped. Objects added after this call are drawn at EndFrame.
 */
func (r *Renderer) BeginFrame() (metadata.Frame, error) {
	if r.resizePending {
		if r.width == 0 || r.height == 0 {
			// Minimized, nothing to draw into.
			return metadata.Frame{}, core.ErrSwapchainStale
		}
		if err := r.Rebuild(); err != nil {
			return metadata.Frame{}, err
		}
	}

	frame, err := r.sync.AcquireFrame()
	if err != nil {
		if errors.Is(err, core.ErrSwapchainStale) {
			if rebuildErr := r.Rebuild(); rebuildErr != nil {
				return metadata.Frame{}, rebuildErr
			}
		}
		return metadata.Frame{}, err
	}

	cb := r.commandBuffers[frame.FrameIndex]
	if err := r.backend.BeginCommandBuffer(cb); err != nil {
		return metadata.Frame{}, err
	}
	r.backend.BeginRenderPass(cb, r.backend.Swapchain().RenderPass(), frame.Framebuffer, frame.FrameSize, r.clearColor)

	r.objects = r.objects[:0]
	r.frame = frame
	return frame, nil
}

// AddObject queues an object for the current frame. See MeshRenderer.AddObject.
func (r *Renderer) AddObject(transform *math.Transform, meshID, shaderID, pipelineID, textureID, samplerID metadata.AssetID, meshIndexes ...uint32) {
	r.objects = r.meshes.AddObject(r.objects, transform, meshID, shaderID, pipelineID, textureID, samplerID, meshIndexes...)
}

// QueuedObjects is the number of objects added since BeginFrame.
func (r *Renderer) QueuedObjects() int {
	return len(r.objects)
}

/**
 * @brief Batches and records the queued objects, closes the command buffer
 * and submits it. A stale present rebuilds the swapchain and returns
 * core.ErrSwapchainStale, the frame itself was still submitted.
 */
func (r *Renderer) EndFrame(frame metadata.Frame) error {
	if !frame.IsValid || frame != r.frame {
		return core.ErrInvalidFrame
	}
	cb := r.commandBuffers[frame.FrameIndex]

	var drawErr error
	batches, objectBuffer, err := r.meshes.CalculateCommandData(r.objects)
	if err != nil {
		drawErr = err
	} else {
		if err := r.meshes.UpdateCamera(frame, &r.camera); err != nil {
			drawErr = err
		} else if err := r.meshes.Render(cb, frame, batches, objectBuffer); err != nil {
			drawErr = err
		}
	}
	if drawErr != nil {
		// The pass is still closed and submitted so the slot's semaphores stay balanced.
		core.LogError("frame %d recorded with errors: %s", frame.CurrentFrame, drawErr)
	}

	r.backend.EndRenderPass(cb)
	if err := r.backend.EndCommandBuffer(cb); err != nil {
		return err
	}

	r.frame = metadata.Frame{}
	if err := r.sync.SubmitFrame(frame, []metadata.CommandBuffer{cb}); err != nil {
		if errors.Is(err, core.ErrSwapchainStale) {
			if rebuildErr := r.Rebuild(); rebuildErr != nil {
				return rebuildErr
			}
		}
		return err
	}
	return drawErr
}

// Reload hot reloads the assets declared at the given paths and returns how
// many were reverted. They rematerialize when next drawn.
func (r *Renderer) Reload(paths []string) int {
	reloaded := 0
	for _, p := range paths {
		reloaded += r.store.Reload(p)
	}
	if reloaded > 0 {
		core.LogInfo("Hot reloaded %d assets", reloaded)
	}
	return reloaded
}

// Shutdown releases the frontend's GPU objects. The backend and the store
// are shut down by their owner.
func (r *Renderer) Shutdown() error {
	var errs []error
	if r.sync != nil {
		errs = append(errs, r.sync.Destroy())
		r.sync = nil
	}
	for i, cb := range r.commandBuffers {
		if cb != metadata.CommandBuffer(metadata.NullHandle) {
			r.backend.FreeCommandBuffer(cb)
			r.commandBuffers[i] = metadata.CommandBuffer(metadata.NullHandle)
		}
	}
	if r.meshes != nil {
		errs = append(errs, r.meshes.Shutdown())
	}
	return errors.Join(errs...)
}
