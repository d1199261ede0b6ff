package vulkan

import (
	"fmt"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

func unknownHandle(kind string, h uint64) error {
	return fmt.Errorf("unknown %s handle %d: %w", kind, h, core.ErrNotFound)
}

// Device

func (b *Backend) WaitIdle() error {
	device := b.context.Device
	var res vk.Result
	b.locks.SafeQueueCall(uint32(device.GraphicsQueueIndex), func() error {
		res = vk.DeviceWaitIdle(device.LogicalDevice)
		return nil
	})
	if res != vk.Success {
		return resultError("vkDeviceWaitIdle", res)
	}
	return nil
}

func (b *Backend) CreateFence(signaled bool) (metadata.Fence, error) {
	f, err := NewFence(b.context, signaled)
	if err != nil {
		return 0, err
	}
	return b.fences.insert(f), nil
}

func (b *Backend) DestroyFence(fence metadata.Fence) {
	if f, ok := b.fences.remove(fence); ok {
		f.Destroy(b.context)
	}
}

func (b *Backend) WaitForFence(fence metadata.Fence, timeout time.Duration) error {
	f, ok := b.fences.get(fence)
	if !ok {
		return unknownHandle("fence", uint64(fence))
	}
	return f.Wait(b.context, timeout)
}

func (b *Backend) ResetFence(fence metadata.Fence) error {
	f, ok := b.fences.get(fence)
	if !ok {
		return unknownHandle("fence", uint64(fence))
	}
	return f.Reset(b.context)
}

func (b *Backend) CreateSemaphore() (metadata.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var s vk.Semaphore
	if res := vk.CreateSemaphore(b.context.Device.LogicalDevice, &info, b.context.Allocator, &s); res != vk.Success {
		return 0, resultError("vkCreateSemaphore", res)
	}
	return b.semaphores.insert(s), nil
}

func (b *Backend) DestroySemaphore(semaphore metadata.Semaphore) {
	if s, ok := b.semaphores.remove(semaphore); ok {
		vk.DestroySemaphore(b.context.Device.LogicalDevice, s, b.context.Allocator)
	}
}

func (b *Backend) Submit(commandBuffers []metadata.CommandBuffer, wait, signal metadata.Semaphore, fence metadata.Fence) error {
	handles := make([]vk.CommandBuffer, 0, len(commandBuffers))
	recorded := make([]*VulkanCommandBuffer, 0, len(commandBuffers))
	for _, h := range commandBuffers {
		cb, ok := b.commandBuffers.get(h)
		if !ok {
			return unknownHandle("command buffer", uint64(h))
		}
		handles = append(handles, cb.Handle)
		recorded = append(recorded, cb)
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(handles)),
		PCommandBuffers:    handles,
	}
	if wait != 0 {
		s, ok := b.semaphores.get(wait)
		if !ok {
			return unknownHandle("semaphore", uint64(wait))
		}
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{s}
		// Each semaphore waits on the corresponding pipeline stage to complete.
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)}
	}
	if signal != 0 {
		s, ok := b.semaphores.get(signal)
		if !ok {
			return unknownHandle("semaphore", uint64(signal))
		}
		submitInfo.SignalSemaphoreCount = 1
		submitInfo.PSignalSemaphores = []vk.Semaphore{s}
	}
	vkFence := vk.NullFence
	var tracked *VulkanFence
	if fence != 0 {
		f, ok := b.fences.get(fence)
		if !ok {
			return unknownHandle("fence", uint64(fence))
		}
		vkFence = f.Handle
		tracked = f
	}

	device := b.context.Device
	var res vk.Result
	b.locks.SafeQueueCall(uint32(device.GraphicsQueueIndex), func() error {
		res = vk.QueueSubmit(device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, vkFence)
		return nil
	})
	if res != vk.Success {
		return resultError("vkQueueSubmit", res)
	}
	if tracked != nil {
		tracked.IsSignaled = false
	}
	for _, cb := range recorded {
		cb.State = COMMAND_BUFFER_STATE_SUBMITTED
	}
	return nil
}

// Allocator

func (b *Backend) CreateBuffer(usage metadata.BufferUsage, size uint64) (metadata.Buffer, error) {
	buf, err := BufferCreate(b.context, bufferUsageFlags(usage), size)
	if err != nil {
		return 0, err
	}
	buf.Usage = usage
	core.LogDebug("Created %s buffer of %d bytes", usage, buf.Size)
	return b.buffers.insert(buf), nil
}

func (b *Backend) WriteBuffer(buffer metadata.Buffer, offset uint64, data []byte) error {
	buf, ok := b.buffers.get(buffer)
	if !ok {
		return unknownHandle("buffer", uint64(buffer))
	}
	return buf.LoadData(b.context, offset, data)
}

func (b *Backend) DestroyBuffer(buffer metadata.Buffer) {
	if buf, ok := b.buffers.remove(buffer); ok {
		buf.Destroy(b.context)
	}
}

// CreateTexture copies the pixels through a staging buffer into a device
// local image left in shader read layout.
func (b *Backend) CreateTexture(name string, width, height uint32, pixels []byte) (metadata.Image, metadata.ImageView, error) {
	size := uint64(width) * uint64(height) * 4
	if uint64(len(pixels)) != size {
		err := fmt.Errorf("texture '%s': expected %d bytes of RGBA8, got %d: %w", name, size, len(pixels), core.ErrLoadFailure)
		core.LogError(err.Error())
		return 0, 0, err
	}

	staging, err := BufferCreate(b.context, vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), size)
	if err != nil {
		return 0, 0, err
	}
	defer staging.Destroy(b.context)
	if err := staging.LoadData(b.context, 0, pixels); err != nil {
		return 0, 0, err
	}

	image, err := ImageCreate(
		b.context,
		width, height,
		vk.FormatR8g8b8a8Unorm,
		vk.ImageTilingOptimal,
		vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)|vk.ImageUsageFlags(vk.ImageUsageSampledBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		true,
		vk.ImageAspectFlags(vk.ImageAspectColorBit))
	if err != nil {
		return 0, 0, err
	}

	if err := b.uploadImage(image, staging); err != nil {
		image.Destroy(b.context)
		return 0, 0, fmt.Errorf("texture '%s': %w", name, err)
	}

	core.LogDebug("Texture '%s' uploaded (%dx%d)", name, width, height)
	return b.images.insert(image), b.views.insert(image), nil
}

func (b *Backend) uploadImage(image *VulkanImage, staging *VulkanBuffer) error {
	device := b.context.Device
	return b.locks.SafeCall(CommandPoolManagement, func() error {
		cb, err := AllocateAndBeginSingleUse(b.context, device.GraphicsCommandPool)
		if err != nil {
			return err
		}
		if err := image.TransitionLayout(b.context, cb, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal); err != nil {
			cb.Free(b.context, device.GraphicsCommandPool)
			return err
		}
		image.CopyFromBuffer(cb, staging.Handle)
		if err := image.TransitionLayout(b.context, cb, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal); err != nil {
			cb.Free(b.context, device.GraphicsCommandPool)
			return err
		}
		return b.locks.SafeQueueCall(uint32(device.GraphicsQueueIndex), func() error {
			return cb.EndSingleUse(b.context, device.GraphicsCommandPool, device.GraphicsQueue)
		})
	})
}

func (b *Backend) DestroyTexture(image metadata.Image, view metadata.ImageView) {
	b.views.remove(view)
	if img, ok := b.images.remove(image); ok {
		img.Destroy(b.context)
	}
}

// Builder

func (b *Backend) CreateShader(name string, vertexCode, fragmentCode []byte) (metadata.Shader, error) {
	shader, err := ShaderCreate(b.context, name, vertexCode, fragmentCode)
	if err != nil {
		return 0, err
	}
	return b.shaders.insert(shader), nil
}

func (b *Backend) DestroyShader(shader metadata.Shader) {
	if s, ok := b.shaders.remove(shader); ok {
		s.Destroy(b.context)
	}
}

func (b *Backend) CreatePipeline(config metadata.PipelineConfig) (metadata.Pipeline, error) {
	shader, ok := b.shaders.get(config.Shader)
	if !ok {
		return 0, unknownHandle("shader", uint64(config.Shader))
	}
	layout, ok := b.pipelineLayouts.get(config.Layout)
	if !ok {
		return 0, unknownHandle("pipeline layout", uint64(config.Layout))
	}
	pass, ok := b.renderPasses.get(config.RenderPass)
	if !ok {
		return 0, unknownHandle("render pass", uint64(config.RenderPass))
	}

	var pipeline *VulkanPipeline
	err := b.locks.SafeCall(PipelineManagement, func() error {
		var err error
		pipeline, err = NewGraphicsPipeline(b.context, newPipelineConfig(config, shader, layout, pass))
		return err
	})
	if err != nil {
		return 0, err
	}
	return b.pipelines.insert(pipeline), nil
}

func (b *Backend) DestroyPipeline(pipeline metadata.Pipeline) {
	if p, ok := b.pipelines.remove(pipeline); ok {
		p.Destroy(b.context)
	}
}

func (b *Backend) CreateSampler(config metadata.SamplerConfig) (metadata.Sampler, error) {
	s, err := SamplerCreate(b.context, config)
	if err != nil {
		return 0, err
	}
	return b.samplers.insert(s), nil
}

func (b *Backend) DestroySampler(sampler metadata.Sampler) {
	if s, ok := b.samplers.remove(sampler); ok {
		vk.DestroySampler(b.context.Device.LogicalDevice, s, b.context.Allocator)
	}
}

// Descriptors

func (b *Backend) CreateSetLayout(binding metadata.DescriptorBinding) (metadata.DescriptorSetLayout, error) {
	l, err := SetLayoutCreate(b.context, binding)
	if err != nil {
		return 0, err
	}
	return b.setLayouts.insert(l), nil
}

func (b *Backend) DestroySetLayout(layout metadata.DescriptorSetLayout) {
	if l, ok := b.setLayouts.remove(layout); ok {
		l.Destroy(b.context)
	}
}

func (b *Backend) CreatePipelineLayout(setLayouts []metadata.DescriptorSetLayout) (metadata.PipelineLayout, error) {
	handles := make([]vk.DescriptorSetLayout, len(setLayouts))
	for i, h := range setLayouts {
		l, ok := b.setLayouts.get(h)
		if !ok {
			return 0, unknownHandle("set layout", uint64(h))
		}
		handles[i] = l.Handle
	}
	layout, err := PipelineLayoutCreate(b.context, handles)
	if err != nil {
		return 0, err
	}
	return b.pipelineLayouts.insert(layout), nil
}

func (b *Backend) DestroyPipelineLayout(layout metadata.PipelineLayout) {
	if l, ok := b.pipelineLayouts.remove(layout); ok {
		vk.DestroyPipelineLayout(b.context.Device.LogicalDevice, l, b.context.Allocator)
	}
}

func (b *Backend) AllocateSet(layout metadata.DescriptorSetLayout) (metadata.DescriptorSet, error) {
	l, ok := b.setLayouts.get(layout)
	if !ok {
		return 0, unknownHandle("set layout", uint64(layout))
	}
	var set *VulkanDescriptorSet
	err := b.locks.SafeCall(DescriptorManagement, func() error {
		var err error
		set, err = DescriptorSetAllocate(b.context, b.descriptorPool, l)
		return err
	})
	if err != nil {
		return 0, err
	}
	return b.sets.insert(set), nil
}

func (b *Backend) WriteBufferSet(set metadata.DescriptorSet, kind metadata.DescriptorType, buffer metadata.Buffer, size uint64) error {
	s, ok := b.sets.get(set)
	if !ok {
		return unknownHandle("descriptor set", uint64(set))
	}
	buf, ok := b.buffers.get(buffer)
	if !ok {
		return unknownHandle("buffer", uint64(buffer))
	}
	return b.locks.SafeCall(DescriptorManagement, func() error {
		return s.WriteBuffer(b.context, kind, buf, size)
	})
}

func (b *Backend) WriteTextureSet(set metadata.DescriptorSet, textures []metadata.TexturePair) error {
	s, ok := b.sets.get(set)
	if !ok {
		return unknownHandle("descriptor set", uint64(set))
	}
	views := make([]vk.ImageView, len(textures))
	samplers := make([]vk.Sampler, len(textures))
	for i, t := range textures {
		img, ok := b.views.get(t.View)
		if !ok {
			return unknownHandle("image view", uint64(t.View))
		}
		sampler, ok := b.samplers.get(t.Sampler)
		if !ok {
			return unknownHandle("sampler", uint64(t.Sampler))
		}
		views[i] = img.View
		samplers[i] = sampler
	}
	return b.locks.SafeCall(DescriptorManagement, func() error {
		return s.WriteTextures(b.context, views, samplers)
	})
}
