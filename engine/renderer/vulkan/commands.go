package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

// Recording calls are fire and forget. An unknown handle is a programming
// error, so it is logged and the command skipped.

func (b *Backend) commandBuffer(h metadata.CommandBuffer) *VulkanCommandBuffer {
	cb, ok := b.commandBuffers.get(h)
	if !ok {
		core.LogError("unknown command buffer %d", h)
		return nil
	}
	return cb
}

// Commands

func (b *Backend) AllocateCommandBuffer() (metadata.CommandBuffer, error) {
	var cb *VulkanCommandBuffer
	err := b.locks.SafeCall(CommandPoolManagement, func() error {
		var err error
		cb, err = NewVulkanCommandBuffer(b.context, b.context.Device.GraphicsCommandPool)
		return err
	})
	if err != nil {
		return 0, err
	}
	return b.commandBuffers.insert(cb), nil
}

func (b *Backend) FreeCommandBuffer(h metadata.CommandBuffer) {
	cb, ok := b.commandBuffers.remove(h)
	if !ok {
		return
	}
	b.locks.SafeCall(CommandPoolManagement, func() error {
		cb.Free(b.context, b.context.Device.GraphicsCommandPool)
		return nil
	})
}

// BeginCommandBuffer resets the buffer and starts recording it again.
func (b *Backend) BeginCommandBuffer(h metadata.CommandBuffer) error {
	cb, ok := b.commandBuffers.get(h)
	if !ok {
		return unknownHandle("command buffer", uint64(h))
	}
	if err := cb.Reset(); err != nil {
		return err
	}
	return cb.Begin(false)
}

func (b *Backend) EndCommandBuffer(h metadata.CommandBuffer) error {
	cb, ok := b.commandBuffers.get(h)
	if !ok {
		return unknownHandle("command buffer", uint64(h))
	}
	return cb.End()
}

func (b *Backend) BeginRenderPass(h metadata.CommandBuffer, pass metadata.RenderPass, framebuffer metadata.Framebuffer, extent metadata.Extent, clearColor [4]float32) {
	cb := b.commandBuffer(h)
	rp, ok := b.renderPasses.get(pass)
	fb, fbOK := b.framebuffers.get(framebuffer)
	if cb == nil || !ok || !fbOK {
		core.LogError("BeginRenderPass with unknown pass %d or framebuffer %d", pass, framebuffer)
		return
	}
	rp.Begin(cb, fb.Handle, extent.Width, extent.Height, clearColor)
}

func (b *Backend) EndRenderPass(h metadata.CommandBuffer) {
	cb := b.commandBuffer(h)
	if cb == nil || b.swapchain == nil {
		return
	}
	b.swapchain.Renderpass.End(cb)
}

// Recorder

func (b *Backend) BindPipeline(h metadata.CommandBuffer, pipeline metadata.Pipeline) {
	cb := b.commandBuffer(h)
	p, ok := b.pipelines.get(pipeline)
	if cb == nil || !ok {
		return
	}
	p.Bind(cb, vk.PipelineBindPointGraphics)
}

// SetViewport flips Y so the engine's right handed projection renders upright.
func (b *Backend) SetViewport(h metadata.CommandBuffer, extent metadata.Extent) {
	cb := b.commandBuffer(h)
	if cb == nil {
		return
	}
	viewport := vk.Viewport{
		X:        0,
		Y:        float32(extent.Height),
		Width:    float32(extent.Width),
		Height:   -float32(extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	vk.CmdSetViewport(cb.Handle, 0, 1, []vk.Viewport{viewport})
}

func (b *Backend) SetScissor(h metadata.CommandBuffer, extent metadata.Extent) {
	cb := b.commandBuffer(h)
	if cb == nil {
		return
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
	}
	vk.CmdSetScissor(cb.Handle, 0, 1, []vk.Rect2D{scissor})
}

func (b *Backend) BindDescriptorSets(h metadata.CommandBuffer, layout metadata.PipelineLayout, sets []metadata.DescriptorSet) {
	cb := b.commandBuffer(h)
	l, ok := b.pipelineLayouts.get(layout)
	if cb == nil || !ok {
		return
	}
	handles := make([]vk.DescriptorSet, 0, len(sets))
	for _, s := range sets {
		set, ok := b.sets.get(s)
		if !ok {
			core.LogError("unknown descriptor set %d", s)
			return
		}
		handles = append(handles, set.Handle)
	}
	vk.CmdBindDescriptorSets(cb.Handle, vk.PipelineBindPointGraphics, l, 0, uint32(len(handles)), handles, 0, nil)
}

func (b *Backend) BindVertexBuffer(h metadata.CommandBuffer, buffer metadata.Buffer) {
	cb := b.commandBuffer(h)
	buf, ok := b.buffers.get(buffer)
	if cb == nil || !ok {
		return
	}
	vk.CmdBindVertexBuffers(cb.Handle, 0, 1, []vk.Buffer{buf.Handle}, []vk.DeviceSize{0})
}

func (b *Backend) BindIndexBuffer(h metadata.CommandBuffer, buffer metadata.Buffer) {
	cb := b.commandBuffer(h)
	buf, ok := b.buffers.get(buffer)
	if cb == nil || !ok {
		return
	}
	vk.CmdBindIndexBuffer(cb.Handle, buf.Handle, 0, vk.IndexTypeUint32)
}

func (b *Backend) DrawIndexed(h metadata.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	cb := b.commandBuffer(h)
	if cb == nil {
		return
	}
	vk.CmdDrawIndexed(cb.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}
