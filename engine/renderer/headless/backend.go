// Package headless is a CPU simulation of the GPU backend. Submitted work
// completes as soon as something waits on its fence, which keeps frame loops
// deterministic. It is used for tests and for running the engine without a
// window.
package headless

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

type Config struct {
	ImageCount uint32
	Extent     metadata.Extent
}

func DefaultConfig() Config {
	return Config{
		ImageCount: 3,
		Extent:     metadata.Extent{Width: 1280, Height: 720},
	}
}

type fenceState uint8

const (
	fenceUnsignaled fenceState = iota
	fencePending
	fenceSignaled
)

type fence struct {
	state   fenceState
	stalled bool
}

type buffer struct {
	usage metadata.BufferUsage
	data  []byte
}

type texture struct {
	name          string
	width, height uint32
	view          metadata.ImageView
}

type descriptorSet struct {
	layout   metadata.DescriptorSetLayout
	writes   int
	buffer   metadata.Buffer
	textures []metadata.TexturePair
}

// Stats counts resource creations and GPU work.
type Stats struct {
	BuffersCreated   int
	BuffersDestroyed int
	TexturesCreated  int
	ShadersCreated   int
	PipelinesCreated int
	SamplersCreated  int
	Submits          int
	Presents         int
	WaitIdles        int
	TextureSetWrites int
}

type Backend struct {
	config     Config
	nextHandle uint64

	fences          map[metadata.Fence]*fence
	semaphores      map[metadata.Semaphore]bool
	buffers         map[metadata.Buffer]*buffer
	textures        map[metadata.Image]*texture
	shaders         map[metadata.Shader]string
	pipelines       map[metadata.Pipeline]metadata.PipelineConfig
	samplers        map[metadata.Sampler]metadata.SamplerConfig
	setLayouts      map[metadata.DescriptorSetLayout]metadata.DescriptorBinding
	pipelineLayouts map[metadata.PipelineLayout][]metadata.DescriptorSetLayout
	sets            map[metadata.DescriptorSet]*descriptorSet
	commandBuffers  map[metadata.CommandBuffer]*CommandRecording

	swapchain *Swapchain
	failures  map[string]int

	// Calls lists every GPU call in order.
	Calls []string
	Stats Stats
}

func New(config Config) *Backend {
	b := &Backend{
		config:          config,
		fences:          make(map[metadata.Fence]*fence),
		semaphores:      make(map[metadata.Semaphore]bool),
		buffers:         make(map[metadata.Buffer]*buffer),
		textures:        make(map[metadata.Image]*texture),
		shaders:         make(map[metadata.Shader]string),
		pipelines:       make(map[metadata.Pipeline]metadata.PipelineConfig),
		samplers:        make(map[metadata.Sampler]metadata.SamplerConfig),
		setLayouts:      make(map[metadata.DescriptorSetLayout]metadata.DescriptorBinding),
		pipelineLayouts: make(map[metadata.PipelineLayout][]metadata.DescriptorSetLayout),
		sets:            make(map[metadata.DescriptorSet]*descriptorSet),
		commandBuffers:  make(map[metadata.CommandBuffer]*CommandRecording),
		failures:        make(map[string]int),
	}
	b.swapchain = newSwapchain(b, config)
	core.LogInfo("Headless backend created with %d swapchain images (%dx%d)", config.ImageCount, config.Extent.Width, config.Extent.Height)
	return b
}

func (b *Backend) handle() uint64 {
	b.nextHandle++
	return b.nextHandle
}

func (b *Backend) call(name string) {
	b.Calls = append(b.Calls, name)
}

// FailNext makes the next n calls of the named operation fail, e.g.
// "CreateShader" or "CreateTexture".
func (b *Backend) FailNext(op string, n int) {
	b.failures[op] += n
}

func (b *Backend) injected(op string) error {
	if b.failures[op] > 0 {
		b.failures[op]--
		return fmt.Errorf("headless: injected failure in %s", op)
	}
	return nil
}

func (b *Backend) Swapchain() metadata.Swapchain {
	return b.swapchain
}

// HeadlessSwapchain exposes the concrete swapchain for fault injection.
func (b *Backend) HeadlessSwapchain() *Swapchain {
	return b.swapchain
}

func (b *Backend) Shutdown() error {
	b.call("Shutdown")
	var leaks []string
	if n := len(b.buffers); n > 0 {
		leaks = append(leaks, fmt.Sprintf("%d buffers", n))
	}
	if n := len(b.textures); n > 0 {
		leaks = append(leaks, fmt.Sprintf("%d textures", n))
	}
	if n := len(b.pipelines); n > 0 {
		leaks = append(leaks, fmt.Sprintf("%d pipelines", n))
	}
	if len(leaks) > 0 {
		err := fmt.Errorf("headless: resources still alive at shutdown: %v", leaks)
		core.LogError(err.Error())
		return err
	}
	return nil
}

// Device

func (b *Backend) WaitIdle() error {
	b.call("WaitIdle")
	b.Stats.WaitIdles++
	for _, f := range b.fences {
		if f.state == fencePending && !f.stalled {
			f.state = fenceSignaled
		}
	}
	return nil
}

func (b *Backend) CreateFence(signaled bool) (metadata.Fence, error) {
	b.call("CreateFence")
	h := metadata.Fence(b.handle())
	f := &fence{state: fenceUnsignaled}
	if signaled {
		f.state = fenceSignaled
	}
	b.fences[h] = f
	return h, nil
}

func (b *Backend) DestroyFence(f metadata.Fence) {
	b.call("DestroyFence")
	delete(b.fences, f)
}

// IsFenceAlive reports whether the fence exists and was not destroyed.
func (b *Backend) IsFenceAlive(f metadata.Fence) bool {
	_, ok := b.fences[f]
	return ok
}

// Stall keeps submitted work on the fence from ever completing.
func (b *Backend) Stall(f metadata.Fence) {
	if st, ok := b.fences[f]; ok {
		st.stalled = true
	}
}

func (b *Backend) WaitForFence(f metadata.Fence, timeout time.Duration) error {
	b.call("WaitForFence")
	st, ok := b.fences[f]
	if !ok {
		return fmt.Errorf("headless: wait on unknown fence %d", f)
	}
	switch st.state {
	case fenceSignaled:
		return nil
	case fencePending:
		if !st.stalled {
			st.state = fenceSignaled
			return nil
		}
	}
	if timeout == core.WaitForever {
		return fmt.Errorf("headless: fence %d can never signal, wait would block forever", f)
	}
	return core.ErrSyncTimeout
}

func (b *Backend) ResetFence(f metadata.Fence) error {
	b.call("ResetFence")
	st, ok := b.fences[f]
	if !ok {
		return fmt.Errorf("headless: reset of unknown fence %d", f)
	}
	if st.state == fencePending {
		return fmt.Errorf("headless: reset of fence %d still in use by the gpu", f)
	}
	st.state = fenceUnsignaled
	return nil
}

func (b *Backend) CreateSemaphore() (metadata.Semaphore, error) {
	b.call("CreateSemaphore")
	h := metadata.Semaphore(b.handle())
	b.semaphores[h] = false
	return h, nil
}

func (b *Backend) DestroySemaphore(s metadata.Semaphore) {
	b.call("DestroySemaphore")
	delete(b.semaphores, s)
}

func (b *Backend) signal(s metadata.Semaphore) error {
	signaled, ok := b.semaphores[s]
	if !ok {
		return fmt.Errorf("headless: unknown semaphore %d", s)
	}
	if signaled {
		return fmt.Errorf("headless: semaphore %d signaled twice", s)
	}
	b.semaphores[s] = true
	return nil
}

func (b *Backend) consume(s metadata.Semaphore) error {
	signaled, ok := b.semaphores[s]
	if !ok {
		return fmt.Errorf("headless: unknown semaphore %d", s)
	}
	if !signaled {
		return fmt.Errorf("headless: wait on semaphore %d that nothing signals", s)
	}
	b.semaphores[s] = false
	return nil
}

func (b *Backend) Submit(commandBuffers []metadata.CommandBuffer, wait, signal metadata.Semaphore, f metadata.Fence) error {
	b.call("Submit")
	for _, cb := range commandBuffers {
		rec, ok := b.commandBuffers[cb]
		if !ok {
			return fmt.Errorf("headless: submit of unknown command buffer %d", cb)
		}
		if rec.recording {
			return fmt.Errorf("headless: submit of command buffer %d still recording", cb)
		}
	}
	st, ok := b.fences[f]
	if !ok {
		return fmt.Errorf("headless: submit with unknown fence %d", f)
	}
	if st.state != fenceUnsignaled {
		return fmt.Errorf("headless: submit with fence %d that was not reset", f)
	}
	if err := b.consume(wait); err != nil {
		return err
	}
	if err := b.signal(signal); err != nil {
		return err
	}
	st.state = fencePending
	b.Stats.Submits++
	return nil
}
