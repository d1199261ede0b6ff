package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/platform"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

/**
 * @brief The Vulkan implementation of metadata.Backend. Every object handed
 * to the engine is an opaque handle looked up in one of the tables below.
 */
type Backend struct {
	platform *platform.Platform
	config   *core.EngineConfig
	context  *VulkanContext
	locks    *VulkanLockPool

	swapchain      *VulkanSwapchain
	descriptorPool vk.DescriptorPool

	debug bool

	counter         handleCounter
	fences          *handleTable[metadata.Fence, *VulkanFence]
	semaphores      *handleTable[metadata.Semaphore, vk.Semaphore]
	buffers         *handleTable[metadata.Buffer, *VulkanBuffer]
	images          *handleTable[metadata.Image, *VulkanImage]
	views           *handleTable[metadata.ImageView, *VulkanImage]
	samplers        *handleTable[metadata.Sampler, vk.Sampler]
	shaders         *handleTable[metadata.Shader, *VulkanShader]
	pipelines       *handleTable[metadata.Pipeline, *VulkanPipeline]
	pipelineLayouts *handleTable[metadata.PipelineLayout, vk.PipelineLayout]
	setLayouts      *handleTable[metadata.DescriptorSetLayout, *VulkanSetLayout]
	sets            *handleTable[metadata.DescriptorSet, *VulkanDescriptorSet]
	renderPasses    *handleTable[metadata.RenderPass, *VulkanRenderpass]
	framebuffers    *handleTable[metadata.Framebuffer, *VulkanFramebuffer]
	commandBuffers  *handleTable[metadata.CommandBuffer, *VulkanCommandBuffer]
}

var _ metadata.Backend = (*Backend)(nil)

// New creates the instance, surface, device and swapchain for the window
// owned by p.
func New(p *platform.Platform, config *core.EngineConfig) (*Backend, error) {
	b := &Backend{
		platform: p,
		config:   config,
		context:  &VulkanContext{},
		locks:    NewVulkanLockPool(),
		debug:    config.Log.Level == "debug",
	}
	b.fences = newHandleTable[metadata.Fence, *VulkanFence](&b.counter)
	b.semaphores = newHandleTable[metadata.Semaphore, vk.Semaphore](&b.counter)
	b.buffers = newHandleTable[metadata.Buffer, *VulkanBuffer](&b.counter)
	b.images = newHandleTable[metadata.Image, *VulkanImage](&b.counter)
	b.views = newHandleTable[metadata.ImageView, *VulkanImage](&b.counter)
	b.samplers = newHandleTable[metadata.Sampler, vk.Sampler](&b.counter)
	b.shaders = newHandleTable[metadata.Shader, *VulkanShader](&b.counter)
	b.pipelines = newHandleTable[metadata.Pipeline, *VulkanPipeline](&b.counter)
	b.pipelineLayouts = newHandleTable[metadata.PipelineLayout, vk.PipelineLayout](&b.counter)
	b.setLayouts = newHandleTable[metadata.DescriptorSetLayout, *VulkanSetLayout](&b.counter)
	b.sets = newHandleTable[metadata.DescriptorSet, *VulkanDescriptorSet](&b.counter)
	b.renderPasses = newHandleTable[metadata.RenderPass, *VulkanRenderpass](&b.counter)
	b.framebuffers = newHandleTable[metadata.Framebuffer, *VulkanFramebuffer](&b.counter)
	b.commandBuffers = newHandleTable[metadata.CommandBuffer, *VulkanCommandBuffer](&b.counter)

	if err := b.initialize(); err != nil {
		b.Shutdown()
		return nil, err
	}
	return b, nil
}

func (b *Backend) initialize() error {
	procAddr := b.platform.GetInstanceProcAddress()
	if procAddr == nil {
		return fmt.Errorf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr.(unsafe.Pointer))

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	width, height := b.platform.FramebufferSize()
	if width == 0 || height == 0 {
		width, height = b.config.Application.Width, b.config.Application.Height
	}
	b.context.FramebufferWidth = width
	b.context.FramebufferHeight = height

	if err := b.createInstance(); err != nil {
		return err
	}

	// Debugger
	if b.debug {
		if err := b.createDebugCallback(); err != nil {
			// Validation output is a convenience, rendering works without it.
			core.LogWarn("Vulkan debugger unavailable: %s", err)
		}
	}

	// Surface
	core.LogDebug("Creating Vulkan surface...")
	surface, err := b.platform.CreateSurface(b.context.Instance)
	if err != nil {
		core.LogError("Failed to create platform surface!")
		return err
	}
	b.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	// Device creation
	if err := DeviceCreate(b.context); err != nil {
		core.LogError("Failed to create device!")
		return err
	}
	b.locks.SetQueueFamily(uint32(b.context.Device.GraphicsQueueIndex))
	b.locks.SetQueueFamily(uint32(b.context.Device.PresentQueueIndex))

	pool, err := DescriptorPoolCreate(b.context, b.config.Renderer.MaxTextures)
	if err != nil {
		return err
	}
	b.descriptorPool = pool

	sc, err := SwapchainCreate(b, width, height, b.config.Renderer.VSync)
	if err != nil {
		return err
	}
	b.swapchain = sc

	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (b *Backend) createInstance() error {
	// Setup Vulkan instance.
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(b.config.Application.Name),
		PEngineName:        VulkanSafeString("Anima Mesh"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	requiredExtensions := b.platform.GetRequiredExtensionNames()
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1 // VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
	}

	// Validation layers should only be enabled on debug runs.
	var requiredLayers []string
	if b.debug {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		if b.layerAvailable("VK_LAYER_KHRONOS_validation") {
			requiredLayers = append(requiredLayers, "VK_LAYER_KHRONOS_validation")
		} else {
			core.LogWarn("Validation layer VK_LAYER_KHRONOS_validation is missing, continuing without it.")
		}
	}
	core.LogDebug("Required extensions: %v", requiredExtensions)

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(requiredLayers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredLayers)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, b.context.Allocator, &instance); res != vk.Success {
		return resultError("vkCreateInstance", res)
	}
	b.context.Instance = instance
	if err := vk.InitInstance(instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Vulkan Instance created.")
	return nil
}

func (b *Backend) layerAvailable(name string) bool {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false
	}
	layers := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, layers); res != vk.Success {
		return false
	}
	for i := range layers {
		layers[i].Deref()
		if vk.ToString(layers[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

func (b *Backend) createDebugCallback() error {
	core.LogDebug("Creating Vulkan debugger...")
	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: dbgCallbackFunc,
	}
	var dbg vk.DebugReportCallback
	if err := vk.Error(vk.CreateDebugReportCallback(b.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
		return err
	}
	b.context.debugCallback = dbg
	core.LogDebug("Vulkan debugger created.")
	return nil
}

func (b *Backend) Swapchain() metadata.Swapchain {
	return b.swapchain
}

// Shutdown waits for the device and releases everything still registered,
// dependents first.
func (b *Backend) Shutdown() error {
	ctx := b.context
	if ctx.Device != nil && ctx.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(ctx.Device.LogicalDevice)

		for _, cb := range b.commandBuffers.drain() {
			cb.Free(ctx, ctx.Device.GraphicsCommandPool)
		}
		for _, p := range b.pipelines.drain() {
			p.Destroy(ctx)
		}
		for _, l := range b.pipelineLayouts.drain() {
			vk.DestroyPipelineLayout(ctx.Device.LogicalDevice, l, ctx.Allocator)
		}
		b.sets.drain()
		if b.descriptorPool != vk.NullDescriptorPool {
			vk.DestroyDescriptorPool(ctx.Device.LogicalDevice, b.descriptorPool, ctx.Allocator)
			b.descriptorPool = vk.NullDescriptorPool
		}
		for _, l := range b.setLayouts.drain() {
			l.Destroy(ctx)
		}
		for _, s := range b.shaders.drain() {
			s.Destroy(ctx)
		}
		for _, s := range b.samplers.drain() {
			vk.DestroySampler(ctx.Device.LogicalDevice, s, ctx.Allocator)
		}
		b.views.drain()
		for _, img := range b.images.drain() {
			img.Destroy(ctx)
		}
		for _, buf := range b.buffers.drain() {
			buf.Destroy(ctx)
		}
		for _, f := range b.fences.drain() {
			f.Destroy(ctx)
		}
		for _, s := range b.semaphores.drain() {
			vk.DestroySemaphore(ctx.Device.LogicalDevice, s, ctx.Allocator)
		}
		if b.swapchain != nil {
			b.swapchain.Destroy()
			b.swapchain = nil
		}
		DeviceDestroy(ctx)
	}

	if ctx.Surface != vk.NullSurface {
		vk.DestroySurface(ctx.Instance, ctx.Surface, ctx.Allocator)
		ctx.Surface = vk.NullSurface
	}
	if ctx.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(ctx.Instance, ctx.debugCallback, ctx.Allocator)
		ctx.debugCallback = vk.NullDebugReportCallback
	}
	if ctx.Instance != nil {
		vk.DestroyInstance(ctx.Instance, ctx.Allocator)
		ctx.Instance = nil
	}
	core.LogInfo("Vulkan renderer shut down.")
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
