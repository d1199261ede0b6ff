package metadata

import "time"

// Handle is an opaque backend object reference. Zero is the null handle.
type Handle uint64

const NullHandle Handle = 0

type (
	Fence               Handle
	Semaphore           Handle
	Buffer              Handle
	Image               Handle
	ImageView           Handle
	Sampler             Handle
	Shader              Handle
	Pipeline            Handle
	PipelineLayout      Handle
	DescriptorSetLayout Handle
	DescriptorSet       Handle
	RenderPass          Handle
	Framebuffer         Handle
	CommandBuffer       Handle
)

// MaxFramesInFlight is the number of frame slots the GPU may work on at once.
const MaxFramesInFlight = 2

type Extent struct {
	Width  uint32
	Height uint32
}

type BufferUsage uint8

const (
	BufferUsageVertex BufferUsage = iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStorage
)

func (u BufferUsage) String() string {
	switch u {
	case BufferUsageVertex:
		return "vertex"
	case BufferUsageIndex:
		return "index"
	case BufferUsageUniform:
		return "uniform"
	case BufferUsageStorage:
		return "storage"
	}
	return "unknown"
}

type DescriptorType uint8

const (
	DescriptorTypeUniformBuffer DescriptorType = iota
	DescriptorTypeStorageBuffer
	DescriptorTypeCombinedImageSampler
)

type ShaderStage uint8

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
)

/** @brief A single binding (always binding 0) of a descriptor set layout. */
type DescriptorBinding struct {
	Type   DescriptorType
	Count  uint32
	Stages ShaderStage
}

/** @brief A texture view paired with the sampler used to read it. */
type TexturePair struct {
	View    ImageView
	Sampler Sampler
}

type CullMode uint8

const (
	CullModeNone CullMode = iota
	CullModeFront
	CullModeBack
)

type Filter uint8

const (
	FilterLinear Filter = iota
	FilterNearest
)

type AddressMode uint8

const (
	AddressModeRepeat AddressMode = iota
	AddressModeMirroredRepeat
	AddressModeClampToEdge
)

/** @brief Everything the backend needs to build a graphics pipeline. */
type PipelineConfig struct {
	Name       string
	Shader     Shader
	Layout     PipelineLayout
	RenderPass RenderPass
	CullMode   CullMode
	Wireframe  bool
	DepthTest  bool
	DepthWrite bool
}

type SamplerConfig struct {
	Name        string
	MinFilter   Filter
	MagFilter   Filter
	AddressMode AddressMode
	Anisotropy  float32
}

// Device is the device and queue provider.
type Device interface {
	WaitIdle() error
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(fence Fence)
	// WaitForFence blocks until the fence is signaled or timeout elapses, in
	// which case it returns core.ErrSyncTimeout.
	WaitForFence(fence Fence, timeout time.Duration) error
	ResetFence(fence Fence) error
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(semaphore Semaphore)
	// Submit queues the command buffers on the graphics queue. The submission
	// waits on wait, signals signal and then fence.
	Submit(commandBuffers []CommandBuffer, wait, signal Semaphore, fence Fence) error
}

// Swapchain is the presentable image provider.
type Swapchain interface {
	// AcquireNextImage signals the semaphore once the returned image is ready.
	// It returns core.ErrSwapchainStale when the swapchain is out of date or
	// suboptimal.
	AcquireNextImage(signal Semaphore, timeout time.Duration) (uint32, error)
	Present(imageIndex uint32, wait Semaphore) error
	ImageCount() uint32
	Extent() Extent
	Framebuffer(imageIndex uint32) Framebuffer
	RenderPass() RenderPass
	// Recreate rebuilds the swapchain and its framebuffers for a new size.
	Recreate(width, height uint32) error
}

// Allocator owns GPU memory for buffers and images.
type Allocator interface {
	// CreateBuffer returns a host visible buffer of at least size bytes.
	CreateBuffer(usage BufferUsage, size uint64) (Buffer, error)
	WriteBuffer(buffer Buffer, offset uint64, data []byte) error
	DestroyBuffer(buffer Buffer)
	// CreateTexture uploads tightly packed RGBA8 pixels into a sampled image.
	CreateTexture(name string, width, height uint32, pixels []byte) (Image, ImageView, error)
	DestroyTexture(image Image, view ImageView)
}

// Builder creates the non-memory GPU objects referenced by assets.
type Builder interface {
	CreateShader(name string, vertexCode, fragmentCode []byte) (Shader, error)
	DestroyShader(shader Shader)
	CreatePipeline(config PipelineConfig) (Pipeline, error)
	DestroyPipeline(pipeline Pipeline)
	CreateSampler(config SamplerConfig) (Sampler, error)
	DestroySampler(sampler Sampler)
}

// Descriptors manages set layouts, pipeline layouts and descriptor sets.
// Sets are owned by the backend pool and released with it.
type Descriptors interface {
	CreateSetLayout(binding DescriptorBinding) (DescriptorSetLayout, error)
	DestroySetLayout(layout DescriptorSetLayout)
	CreatePipelineLayout(setLayouts []DescriptorSetLayout) (PipelineLayout, error)
	DestroyPipelineLayout(layout PipelineLayout)
	AllocateSet(layout DescriptorSetLayout) (DescriptorSet, error)
	WriteBufferSet(set DescriptorSet, kind DescriptorType, buffer Buffer, size uint64) error
	WriteTextureSet(set DescriptorSet, textures []TexturePair) error
}

// Recorder writes commands into a command buffer.
type Recorder interface {
	BindPipeline(cb CommandBuffer, pipeline Pipeline)
	SetViewport(cb CommandBuffer, extent Extent)
	SetScissor(cb CommandBuffer, extent Extent)
	BindDescriptorSets(cb CommandBuffer, layout PipelineLayout, sets []DescriptorSet)
	BindVertexBuffer(cb CommandBuffer, buffer Buffer)
	BindIndexBuffer(cb CommandBuffer, buffer Buffer)
	DrawIndexed(cb CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
}

// Commands manages command buffer lifetimes and render pass scopes.
type Commands interface {
	AllocateCommandBuffer() (CommandBuffer, error)
	FreeCommandBuffer(cb CommandBuffer)
	BeginCommandBuffer(cb CommandBuffer) error
	EndCommandBuffer(cb CommandBuffer) error
	BeginRenderPass(cb CommandBuffer, pass RenderPass, framebuffer Framebuffer, extent Extent, clearColor [4]float32)
	EndRenderPass(cb CommandBuffer)
}

// Backend is a complete graphics implementation.
type Backend interface {
	Device
	Allocator
	Builder
	Descriptors
	Recorder
	Commands
	Swapchain() Swapchain
	Shutdown() error
}
