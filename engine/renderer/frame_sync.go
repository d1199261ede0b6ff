package renderer

import (
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

type slotState uint8

const (
	slotIdle slotState = iota
	slotAcquiring
	slotSubmitted
)

func (s slotState) String() string {
	switch s {
	case slotIdle:
		return "idle"
	case slotAcquiring:
		return "acquiring"
	case slotSubmitted:
		return "submitted"
	}
	return "unknown"
}

/**
 * @brief The synchronization objects of one in-flight frame.
 */
type frameSlot struct {
	/** @brief Signaled by the swapchain once the acquired image can be written. */
	imageAvailable metadata.Semaphore
	/** @brief Signaled by the queue once rendering finished, waited on by present. */
	renderComplete metadata.Semaphore
	/** @brief Signaled once the GPU is done with everything submitted from this slot. */
	inFlight metadata.Fence

	state      slotState
	imageIndex uint32
}

/**
 * @brief Brackets every frame with acquire -> submit -> present while keeping at
 * most MaxFramesInFlight frames on the GPU.
 */
type FrameSynchronizer struct {
	device    metadata.Device
	swapchain metadata.Swapchain
	timeout   time.Duration

	slots [metadata.MaxFramesInFlight]frameSlot
	// imagesInFlight maps each swapchain image to the fence of the slot that
	// last rendered into it, or the null fence.
	imagesInFlight []metadata.Fence

	current    uint32
	frameCount uint64
}

// NewFrameSynchronizer creates the per slot semaphores and fences. Fences start
// signaled so the first acquire of each slot does not block. A timeout of
// core.WaitForever waits without bound.
func NewFrameSynchronizer(device metadata.Device, swapchain metadata.Swapchain, timeout time.Duration) (*FrameSynchronizer, error) {
	fs := &FrameSynchronizer{
		device:         device,
		swapchain:      swapchain,
		timeout:        timeout,
		imagesInFlight: make([]metadata.Fence, swapchain.ImageCount()),
	}

	for i := range fs.slots {
		slot := &fs.slots[i]
		var err error
		if slot.imageAvailable, err = device.CreateSemaphore(); err != nil {
			fs.Destroy()
			return nil, err
		}
		if slot.renderComplete, err = device.CreateSemaphore(); err != nil {
			fs.Destroy()
			return nil, err
		}
		if slot.inFlight, err = device.CreateFence(true); err != nil {
			fs.Destroy()
			return nil, err
		}
	}

	core.LogDebug("Frame synchronizer created: %d slots, %d swapchain images", metadata.MaxFramesInFlight, len(fs.imagesInFlight))
	return fs, nil
}

// CurrentSlot is the slot the next AcquireFrame uses.
func (fs *FrameSynchronizer) CurrentSlot() uint32 {
	return fs.current
}

// FrameCount counts submitted frames.
func (fs *FrameSynchronizer) FrameCount() uint64 {
	return fs.frameCount
}

// ImagesInFlight returns a copy of the image to fence table.
func (fs *FrameSynchronizer) ImagesInFlight() []metadata.Fence {
	out := make([]metadata.Fence, len(fs.imagesInFlight))
	copy(out, fs.imagesInFlight)
	return out
}

// SlotFence returns the completion fence of a slot.
func (fs *FrameSynchronizer) SlotFence(slot uint32) metadata.Fence {
	return fs.slots[slot%metadata.MaxFramesInFlight].inFlight
}

/**
 * @brief Waits until the current slot's previous submission completed, then
 * acquires the next swapchain image. A stale swapchain returns an invalid
 * frame with core.ErrSwapchainStale and leaves the slot untouched.
 */
func (fs *FrameSynchronizer) AcquireFrame() (metadata.Frame, error) {
	slot := &fs.slots[fs.current]
	if slot.state == slotAcquiring {
		return metadata.Frame{}, fmt.Errorf("%w: slot %d", core.ErrFrameInProgress, fs.current)
	}

	if err := fs.device.WaitForFence(slot.inFlight, fs.timeout); err != nil {
		core.LogWarn("in-flight fence wait failure on slot %d: %s", fs.current, err)
		return metadata.Frame{}, err
	}
	slot.state = slotIdle

	imageIndex, err := fs.swapchain.AcquireNextImage(slot.imageAvailable, fs.timeout)
	if err != nil {
		if !errors.Is(err, core.ErrSwapchainStale) {
			core.LogError("failed to acquire swapchain image: %s", err)
		}
		return metadata.Frame{}, err
	}

	slot.state = slotAcquiring
	slot.imageIndex = imageIndex

	return metadata.Frame{
		IsValid:      true,
		ImageIndex:   imageIndex,
		FrameIndex:   fs.current,
		CurrentFrame: fs.frameCount,
		FrameSize:    fs.swapchain.Extent(),
		Framebuffer:  fs.swapchain.Framebuffer(imageIndex),
	}, nil
}

/**
 * @brief Submits the recorded command buffers for an acquired frame and presents
 * its image. Waits first when the image is still in use by the other slot.
 * The slot advances even when present reports a stale swapchain, in which
 * case core.ErrSwapchainStale is returned so the caller can rebuild.
 */
func (fs *FrameSynchronizer) SubmitFrame(frame metadata.Frame, commandBuffers []metadata.CommandBuffer) error {
	slot := &fs.slots[fs.current]
	switch {
	case !frame.IsValid:
		return fmt.Errorf("%w: frame is not valid", core.ErrInvalidFrame)
	case frame.FrameIndex != fs.current:
		return fmt.Errorf("%w: frame belongs to slot %d, current slot is %d", core.ErrInvalidFrame, frame.FrameIndex, fs.current)
	case slot.state != slotAcquiring:
		return fmt.Errorf("%w: slot %d is %s", core.ErrInvalidFrame, fs.current, slot.state)
	case frame.ImageIndex != slot.imageIndex:
		return fmt.Errorf("%w: image %d was not acquired by slot %d", core.ErrInvalidFrame, frame.ImageIndex, fs.current)
	case frame.Framebuffer == metadata.Framebuffer(metadata.NullHandle):
		return fmt.Errorf("%w: frame has no framebuffer", core.ErrInvalidFrame)
	}

	// Make sure the previous frame is not using this image.
	if int(frame.ImageIndex) < len(fs.imagesInFlight) {
		previous := fs.imagesInFlight[frame.ImageIndex]
		if previous != metadata.Fence(metadata.NullHandle) && previous != slot.inFlight {
			if err := fs.device.WaitForFence(previous, fs.timeout); err != nil {
				core.LogWarn("image %d fence wait failure: %s", frame.ImageIndex, err)
				return err
			}
		}
		fs.imagesInFlight[frame.ImageIndex] = slot.inFlight
	}

	if err := fs.device.ResetFence(slot.inFlight); err != nil {
		return err
	}
	if err := fs.device.Submit(commandBuffers, slot.imageAvailable, slot.renderComplete, slot.inFlight); err != nil {
		core.LogError("queue submit failed on slot %d: %s", fs.current, err)
		return err
	}

	presentErr := fs.swapchain.Present(frame.ImageIndex, slot.renderComplete)

	slot.state = slotSubmitted
	fs.current = (fs.current + 1) % metadata.MaxFramesInFlight
	fs.frameCount++

	if presentErr != nil && !errors.Is(presentErr, core.ErrSwapchainStale) {
		core.LogError("present failed: %s", presentErr)
	}
	return presentErr
}

/**
 * @brief Resets the image table after the swapchain was rebuilt. The caller
 * must have waited for the device to be idle. A slot that acquired an image
 * without submitting gets a fresh acquire semaphore, since the old one may
 * still be signaled.
 */
func (fs *FrameSynchronizer) Recreate() error {
	fs.imagesInFlight = make([]metadata.Fence, fs.swapchain.ImageCount())

	for i := range fs.slots {
		slot := &fs.slots[i]
		if slot.state != slotAcquiring {
			continue
		}
		fs.device.DestroySemaphore(slot.imageAvailable)
		sem, err := fs.device.CreateSemaphore()
		if err != nil {
			slot.imageAvailable = metadata.Semaphore(metadata.NullHandle)
			return err
		}
		slot.imageAvailable = sem
		slot.state = slotIdle
	}

	core.LogDebug("Frame synchronizer recreated for %d swapchain images", len(fs.imagesInFlight))
	return nil
}

// Destroy waits for the device and releases every semaphore and fence.
func (fs *FrameSynchronizer) Destroy() error {
	err := fs.device.WaitIdle()

	for i := range fs.slots {
		slot := &fs.slots[i]
		if slot.imageAvailable != metadata.Semaphore(metadata.NullHandle) {
			fs.device.DestroySemaphore(slot.imageAvailable)
			slot.imageAvailable = metadata.Semaphore(metadata.NullHandle)
		}
		if slot.renderComplete != metadata.Semaphore(metadata.NullHandle) {
			fs.device.DestroySemaphore(slot.renderComplete)
			slot.renderComplete = metadata.Semaphore(metadata.NullHandle)
		}
		if slot.inFlight != metadata.Fence(metadata.NullHandle) {
			fs.device.DestroyFence(slot.inFlight)
			slot.inFlight = metadata.Fence(metadata.NullHandle)
		}
		slot.state = slotIdle
	}
	fs.imagesInFlight = nil
	return err
}
