package headless

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

// Swapchain hands out images round robin.
type Swapchain struct {
	backend      *Backend
	extent       metadata.Extent
	framebuffers []metadata.Framebuffer
	renderPass   metadata.RenderPass
	next         uint32

	staleAcquires int
	stalePresents int

	// Presented counts presents per image.
	Presented []int
	Recreated int
}

func newSwapchain(b *Backend, config Config) *Swapchain {
	sc := &Swapchain{
		backend:    b,
		renderPass: metadata.RenderPass(b.handle()),
	}
	sc.build(config.ImageCount, config.Extent)
	return sc
}

func (sc *Swapchain) build(imageCount uint32, extent metadata.Extent) {
	sc.extent = extent
	sc.framebuffers = make([]metadata.Framebuffer, imageCount)
	for i := range sc.framebuffers {
		sc.framebuffers[i] = metadata.Framebuffer(sc.backend.handle())
	}
	sc.Presented = make([]int, imageCount)
	sc.next = 0
}

// InjectStaleAcquire makes the next n acquires report an out of date swapchain.
func (sc *Swapchain) InjectStaleAcquire(n int) {
	sc.staleAcquires += n
}

// InjectStalePresent makes the next n presents report a suboptimal swapchain.
func (sc *Swapchain) InjectStalePresent(n int) {
	sc.stalePresents += n
}

func (sc *Swapchain) AcquireNextImage(signal metadata.Semaphore, timeout time.Duration) (uint32, error) {
	sc.backend.call("AcquireNextImage")
	if sc.staleAcquires > 0 {
		sc.staleAcquires--
		return 0, core.ErrSwapchainStale
	}
	if err := sc.backend.signal(signal); err != nil {
		return 0, err
	}
	index := sc.next
	sc.next = (sc.next + 1) % uint32(len(sc.framebuffers))
	return index, nil
}

func (sc *Swapchain) Present(imageIndex uint32, wait metadata.Semaphore) error {
	sc.backend.call("Present")
	if int(imageIndex) >= len(sc.framebuffers) {
		return fmt.Errorf("headless: present of unknown image %d", imageIndex)
	}
	if err := sc.backend.consume(wait); err != nil {
		return err
	}
	sc.Presented[imageIndex]++
	sc.backend.Stats.Presents++
	if sc.stalePresents > 0 {
		sc.stalePresents--
		return core.ErrSwapchainStale
	}
	return nil
}

func (sc *Swapchain) ImageCount() uint32 {
	return uint32(len(sc.framebuffers))
}

func (sc *Swapchain) Extent() metadata.Extent {
	return sc.extent
}

func (sc *Swapchain) Framebuffer(imageIndex uint32) metadata.Framebuffer {
	if int(imageIndex) >= len(sc.framebuffers) {
		return metadata.Framebuffer(metadata.NullHandle)
	}
	return sc.framebuffers[imageIndex]
}

func (sc *Swapchain) RenderPass() metadata.RenderPass {
	return sc.renderPass
}

func (sc *Swapchain) Recreate(width, height uint32) error {
	sc.backend.call("RecreateSwapchain")
	sc.build(uint32(len(sc.framebuffers)), metadata.Extent{Width: width, Height: height})
	sc.Recreated++
	return nil
}
