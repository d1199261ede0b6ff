package vulkan

import (
	"fmt"
	gomath "math"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

/**
 * @brief The presentable images of the window surface together with the
 * depth attachment, render pass and framebuffers drawn into them.
 */
type VulkanSwapchain struct {
	backend *Backend

	ImageFormat vk.SurfaceFormat
	Handle      vk.Swapchain
	Images      []vk.Image
	Views       []vk.ImageView
	ImageExtent vk.Extent2D
	VSync       bool

	DepthAttachment *VulkanImage

	// The render pass survives recreation, so pipelines built against it stay valid.
	Renderpass *VulkanRenderpass
	renderpass metadata.RenderPass

	// framebuffers used for on-screen rendering.
	Framebuffers []*VulkanFramebuffer
	framebuffers []metadata.Framebuffer
}

var _ metadata.Swapchain = (*VulkanSwapchain)(nil)

func SwapchainCreate(backend *Backend, width, height uint32, vsync bool) (*VulkanSwapchain, error) {
	sc := &VulkanSwapchain{backend: backend, VSync: vsync}
	if err := sc.create(width, height, vk.NullSwapchain); err != nil {
		return nil, err
	}

	rp, err := RenderpassCreate(backend.context, sc.ImageFormat.Format, 1.0)
	if err != nil {
		sc.destroyImages()
		vk.DestroySwapchain(backend.context.Device.LogicalDevice, sc.Handle, backend.context.Allocator)
		return nil, err
	}
	sc.Renderpass = rp
	sc.renderpass = backend.renderPasses.insert(rp)

	if err := sc.regenerateFramebuffers(); err != nil {
		sc.Destroy()
		return nil, err
	}
	core.LogInfo("Swapchain created successfully.")
	return sc, nil
}

func (vs *VulkanSwapchain) create(width, height uint32, old vk.Swapchain) error {
	context := vs.backend.context
	support, err := DeviceQuerySwapchainSupport(context.Device.PhysicalDevice, context.Surface)
	if err != nil {
		return err
	}
	context.Device.SwapchainSupport = support
	if len(support.Formats) == 0 {
		return fmt.Errorf("surface reports no formats")
	}

	// Choose a swap surface format.
	vs.ImageFormat = support.Formats[0]
	for _, format := range support.Formats {
		// Preferred formats
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			vs.ImageFormat = format
			break
		}
	}

	// FIFO is always available and is the vsync mode.
	presentMode := vk.PresentModeFifo
	if !vs.VSync {
		for _, mode := range support.PresentModes {
			if mode == vk.PresentModeMailbox {
				presentMode = mode
				break
			}
			if mode == vk.PresentModeImmediate {
				presentMode = mode
			}
		}
	}

	capabilities := support.Capabilities
	extent := vk.Extent2D{Width: width, Height: height}
	capabilities.CurrentExtent.Deref()
	if capabilities.CurrentExtent.Width != gomath.MaxUint32 {
		extent = capabilities.CurrentExtent
	}

	// Clamp to the value allowed by the GPU.
	minExtent := capabilities.MinImageExtent
	maxExtent := capabilities.MaxImageExtent
	minExtent.Deref()
	maxExtent.Deref()
	extent.Width = math.Clamp(extent.Width, minExtent.Width, maxExtent.Width)
	extent.Height = math.Clamp(extent.Height, minExtent.Height, maxExtent.Height)

	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && imageCount > capabilities.MaxImageCount {
		imageCount = capabilities.MaxImageCount
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      vs.ImageFormat.Format,
		ImageColorSpace:  vs.ImageFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}

	// Setup the queue family indices
	if context.Device.GraphicsQueueIndex != context.Device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(context.Device.GraphicsQueueIndex),
			uint32(context.Device.PresentQueueIndex),
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var handle vk.Swapchain
	if res := vk.CreateSwapchain(context.Device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &handle); res != vk.Success {
		return resultError("vkCreateSwapchainKHR", res)
	}
	vs.Handle = handle
	vs.ImageExtent = extent

	// Images
	var count uint32
	if res := vk.GetSwapchainImages(context.Device.LogicalDevice, handle, &count, nil); res != vk.Success {
		return resultError("vkGetSwapchainImagesKHR", res)
	}
	vs.Images = make([]vk.Image, count)
	if res := vk.GetSwapchainImages(context.Device.LogicalDevice, handle, &count, vs.Images); res != vk.Success {
		return resultError("vkGetSwapchainImagesKHR", res)
	}

	// Views
	vs.Views = make([]vk.ImageView, count)
	for i := range vs.Images {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    vs.Images[i],
			ViewType: vk.ImageViewType2d,
			Format:   vs.ImageFormat.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		if res := vk.CreateImageView(context.Device.LogicalDevice, &viewInfo, context.Allocator, &vs.Views[i]); res != vk.Success {
			return resultError("vkCreateImageView", res)
		}
	}

	// Create depth image and its view.
	depth, err := ImageCreate(
		context,
		extent.Width,
		extent.Height,
		context.Device.DepthFormat,
		vk.ImageTilingOptimal,
		vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		true,
		vk.ImageAspectFlags(vk.ImageAspectDepthBit))
	if err != nil {
		return fmt.Errorf("unable to create depth attachment: %w", err)
	}
	vs.DepthAttachment = depth

	context.FramebufferWidth = extent.Width
	context.FramebufferHeight = extent.Height
	core.LogDebug("Swapchain is %dx%d with %d images", extent.Width, extent.Height, count)
	return nil
}

func (vs *VulkanSwapchain) regenerateFramebuffers() error {
	for _, h := range vs.framebuffers {
		if fb, ok := vs.backend.framebuffers.remove(h); ok {
			fb.Destroy(vs.backend.context)
		}
	}
	vs.Framebuffers = make([]*VulkanFramebuffer, len(vs.Views))
	vs.framebuffers = make([]metadata.Framebuffer, len(vs.Views))
	for i, view := range vs.Views {
		// TODO: make this dynamic based on the currently configured attachments
		attachments := []vk.ImageView{view, vs.DepthAttachment.View}
		fb, err := FramebufferCreate(vs.backend.context, vs.Renderpass, vs.ImageExtent.Width, vs.ImageExtent.Height, attachments)
		if err != nil {
			return err
		}
		vs.Framebuffers[i] = fb
		vs.framebuffers[i] = vs.backend.framebuffers.insert(fb)
	}
	return nil
}

// destroyImages releases the views and depth attachment. The images
// themselves belong to the swapchain handle.
func (vs *VulkanSwapchain) destroyImages() {
	context := vs.backend.context
	if vs.DepthAttachment != nil {
		vs.DepthAttachment.Destroy(context)
		vs.DepthAttachment = nil
	}
	for _, view := range vs.Views {
		if view != vk.NullImageView {
			vk.DestroyImageView(context.Device.LogicalDevice, view, context.Allocator)
		}
	}
	vs.Views = nil
	vs.Images = nil
}

func (vs *VulkanSwapchain) AcquireNextImage(signal metadata.Semaphore, timeout time.Duration) (uint32, error) {
	semaphore, ok := vs.backend.semaphores.get(signal)
	if !ok {
		return 0, fmt.Errorf("unknown semaphore %d: %w", signal, core.ErrNotFound)
	}
	var index uint32
	result := vk.AcquireNextImage(vs.backend.context.Device.LogicalDevice, vs.Handle, timeoutNS(timeout), semaphore, vk.NullFence, &index)
	switch result {
	case vk.Success:
		return index, nil
	case vk.Suboptimal:
		// The semaphore is still signaled, so hand the image back to be
		// drawn. The next present reports the staleness.
		return index, nil
	case vk.ErrorOutOfDate:
		return 0, fmt.Errorf("acquire: %w", core.ErrSwapchainStale)
	}
	return 0, resultError("vkAcquireNextImageKHR", result)
}

func (vs *VulkanSwapchain) Present(imageIndex uint32, wait metadata.Semaphore) error {
	semaphore, ok := vs.backend.semaphores.get(wait)
	if !ok {
		return fmt.Errorf("unknown semaphore %d: %w", wait, core.ErrNotFound)
	}
	// Return the image to the swapchain for presentation.
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{semaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vs.Handle},
		PImageIndices:      []uint32{imageIndex},
	}

	device := vs.backend.context.Device
	var result vk.Result
	vs.backend.locks.SafeQueueCall(uint32(device.PresentQueueIndex), func() error {
		result = vk.QueuePresent(device.PresentQueue, &presentInfo)
		return nil
	})
	switch result {
	case vk.Success:
		return nil
	case vk.ErrorOutOfDate, vk.Suboptimal:
		// Swapchain is out of date, suboptimal or a framebuffer resize has occurred.
		return fmt.Errorf("present: %w", core.ErrSwapchainStale)
	}
	return resultError("vkQueuePresentKHR", result)
}

func (vs *VulkanSwapchain) ImageCount() uint32 {
	return uint32(len(vs.Images))
}

func (vs *VulkanSwapchain) Extent() metadata.Extent {
	return metadata.Extent{Width: vs.ImageExtent.Width, Height: vs.ImageExtent.Height}
}

func (vs *VulkanSwapchain) Framebuffer(imageIndex uint32) metadata.Framebuffer {
	if int(imageIndex) >= len(vs.framebuffers) {
		return metadata.Framebuffer(metadata.NullHandle)
	}
	return vs.framebuffers[imageIndex]
}

func (vs *VulkanSwapchain) RenderPass() metadata.RenderPass {
	return vs.renderpass
}

// Recreate builds a new swapchain from the old one and regenerates the
// framebuffers. A zero sized window leaves the swapchain untouched.
func (vs *VulkanSwapchain) Recreate(width, height uint32) error {
	if width == 0 || height == 0 {
		core.LogDebug("Skipping swapchain recreation for a %dx%d surface", width, height)
		return nil
	}
	if err := vs.backend.WaitIdle(); err != nil {
		return err
	}
	context := vs.backend.context

	old := vs.Handle
	vs.destroyImages()
	err := vs.create(width, height, old)
	vk.DestroySwapchain(context.Device.LogicalDevice, old, context.Allocator)
	if err != nil {
		vs.Handle = vk.NullSwapchain
		return err
	}
	return vs.regenerateFramebuffers()
}

func (vs *VulkanSwapchain) Destroy() {
	context := vs.backend.context
	for _, h := range vs.framebuffers {
		if fb, ok := vs.backend.framebuffers.remove(h); ok {
			fb.Destroy(context)
		}
	}
	vs.Framebuffers = nil
	vs.framebuffers = nil
	if vs.Renderpass != nil {
		vs.backend.renderPasses.remove(vs.renderpass)
		vs.Renderpass.Destroy(context)
		vs.Renderpass = nil
	}
	vs.destroyImages()
	if vs.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(context.Device.LogicalDevice, vs.Handle, context.Allocator)
		vs.Handle = vk.NullSwapchain
	}
}
