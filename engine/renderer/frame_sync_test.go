package renderer

import (
	"testing"
	"time"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/headless"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncFixture struct {
	backend *headless.Backend
	sync    *FrameSynchronizer
	cbs     [metadata.MaxFramesInFlight]metadata.CommandBuffer
}

func newSyncFixture(t *testing.T, timeout time.Duration) *syncFixture {
	t.Helper()
	b := headless.New(headless.DefaultConfig())
	fs, err := NewFrameSynchronizer(b, b.Swapchain(), timeout)
	require.NoError(t, err)

	f := &syncFixture{backend: b, sync: fs}
	for i := range f.cbs {
		f.cbs[i], err = b.AllocateCommandBuffer()
		require.NoError(t, err)
	}
	return f
}

// record fills the slot's command buffer with an empty pass.
func (f *syncFixture) record(t *testing.T, frame metadata.Frame) []metadata.CommandBuffer {
	t.Helper()
	cb := f.cbs[frame.FrameIndex]
	require.NoError(t, f.backend.BeginCommandBuffer(cb))
	require.NoError(t, f.backend.EndCommandBuffer(cb))
	return []metadata.CommandBuffer{cb}
}

func (f *syncFixture) cycle(t *testing.T) metadata.Frame {
	t.Helper()
	frame, err := f.sync.AcquireFrame()
	require.NoError(t, err)
	require.True(t, frame.IsValid)
	require.NoError(t, f.sync.SubmitFrame(frame, f.record(t, frame)))
	return frame
}

func TestFrameSyncThousandCycles(t *testing.T) {
	f := newSyncFixture(t, core.WaitForever)

	for i := 0; i < 1000; i++ {
		slot := f.sync.CurrentSlot()
		frame, err := f.sync.AcquireFrame()
		require.NoError(t, err)
		require.Equal(t, slot, frame.FrameIndex)
		require.Less(t, frame.FrameIndex, uint32(metadata.MaxFramesInFlight))
		require.Equal(t, uint64(i), frame.CurrentFrame)
		require.NotEqual(t, metadata.Framebuffer(metadata.NullHandle), frame.Framebuffer)

		cbs := f.record(t, frame)
		require.NoError(t, f.sync.SubmitFrame(frame, cbs))

		// the same frame can never be submitted twice
		assert.ErrorIs(t, f.sync.SubmitFrame(frame, cbs), core.ErrInvalidFrame)

		for _, fence := range f.sync.ImagesInFlight() {
			if fence != metadata.Fence(metadata.NullHandle) {
				require.True(t, f.backend.IsFenceAlive(fence))
			}
		}
		require.Equal(t, (slot+1)%metadata.MaxFramesInFlight, f.sync.CurrentSlot())
	}

	assert.Equal(t, 1000, f.backend.Stats.Submits)
	assert.Equal(t, 1000, f.backend.Stats.Presents)
	for _, n := range f.backend.HeadlessSwapchain().Presented {
		assert.Greater(t, n, 0)
	}
	assert.Equal(t, uint64(1000), f.sync.FrameCount())
	require.NoError(t, f.sync.Destroy())
}

func TestFrameSyncImageOutlivesSlot(t *testing.T) {
	// three images and two slots: the fourth frame renders into image 0
	// again from slot 1, so image 0 still points at slot 0's fence
	f := newSyncFixture(t, core.WaitForever)
	for i := 0; i < 3; i++ {
		f.cycle(t)
	}
	table := f.sync.ImagesInFlight()
	require.Len(t, table, 3)
	assert.Equal(t, f.sync.SlotFence(0), table[0])
	assert.Equal(t, f.sync.SlotFence(1), table[1])
	assert.Equal(t, f.sync.SlotFence(0), table[2])

	frame := f.cycle(t)
	assert.Equal(t, uint32(0), frame.ImageIndex)
	assert.Equal(t, uint32(1), frame.FrameIndex)
	assert.Equal(t, f.sync.SlotFence(1), f.sync.ImagesInFlight()[0])
}

func TestFrameSyncDoubleAcquire(t *testing.T) {
	f := newSyncFixture(t, core.WaitForever)
	_, err := f.sync.AcquireFrame()
	require.NoError(t, err)

	_, err = f.sync.AcquireFrame()
	assert.ErrorIs(t, err, core.ErrFrameInProgress)
}

func TestFrameSyncRejectsBadFrames(t *testing.T) {
	f := newSyncFixture(t, core.WaitForever)

	assert.ErrorIs(t, f.sync.SubmitFrame(metadata.Frame{}, nil), core.ErrInvalidFrame)

	frame, err := f.sync.AcquireFrame()
	require.NoError(t, err)

	foreign := frame
	foreign.FrameIndex = 1
	assert.ErrorIs(t, f.sync.SubmitFrame(foreign, nil), core.ErrInvalidFrame)

	noTarget := frame
	noTarget.Framebuffer = metadata.Framebuffer(metadata.NullHandle)
	assert.ErrorIs(t, f.sync.SubmitFrame(noTarget, nil), core.ErrInvalidFrame)

	wrongImage := frame
	wrongImage.ImageIndex = frame.ImageIndex + 1
	assert.ErrorIs(t, f.sync.SubmitFrame(wrongImage, nil), core.ErrInvalidFrame)

	// the real frame still goes through
	require.NoError(t, f.sync.SubmitFrame(frame, f.record(t, frame)))
}

func TestFrameSyncStaleAcquire(t *testing.T) {
	f := newSyncFixture(t, core.WaitForever)
	f.backend.HeadlessSwapchain().InjectStaleAcquire(1)

	frame, err := f.sync.AcquireFrame()
	assert.ErrorIs(t, err, core.ErrSwapchainStale)
	assert.False(t, frame.IsValid)
	assert.Equal(t, uint32(0), f.sync.CurrentSlot())
	assert.Equal(t, 0, f.backend.Stats.Submits)

	// nothing changed, so the next acquire succeeds on the same slot
	frame = f.cycle(t)
	assert.Equal(t, uint32(0), frame.FrameIndex)
}

func TestFrameSyncStalePresentAdvances(t *testing.T) {
	f := newSyncFixture(t, core.WaitForever)
	f.backend.HeadlessSwapchain().InjectStalePresent(1)

	frame, err := f.sync.AcquireFrame()
	require.NoError(t, err)
	err = f.sync.SubmitFrame(frame, f.record(t, frame))
	assert.ErrorIs(t, err, core.ErrSwapchainStale)
	assert.Equal(t, uint32(1), f.sync.CurrentSlot())
	assert.Equal(t, 1, f.backend.Stats.Presents)

	sc := f.backend.HeadlessSwapchain()
	require.NoError(t, f.backend.WaitIdle())
	require.NoError(t, sc.Recreate(800, 600))
	require.NoError(t, f.sync.Recreate())
	for _, fence := range f.sync.ImagesInFlight() {
		assert.Equal(t, metadata.Fence(metadata.NullHandle), fence)
	}

	frame = f.cycle(t)
	assert.Equal(t, metadata.Extent{Width: 800, Height: 600}, frame.FrameSize)
}

func TestFrameSyncRecreateDropsAbandonedAcquire(t *testing.T) {
	f := newSyncFixture(t, core.WaitForever)
	abandoned, err := f.sync.AcquireFrame()
	require.NoError(t, err)

	require.NoError(t, f.backend.WaitIdle())
	require.NoError(t, f.backend.HeadlessSwapchain().Recreate(640, 480))
	require.NoError(t, f.sync.Recreate())

	assert.ErrorIs(t, f.sync.SubmitFrame(abandoned, nil), core.ErrInvalidFrame)

	// the acquire semaphore was replaced, so acquiring again does not signal it twice
	frame := f.cycle(t)
	assert.Equal(t, uint32(0), frame.FrameIndex)
}

func TestFrameSyncTimeout(t *testing.T) {
	f := newSyncFixture(t, 5*time.Millisecond)
	f.cycle(t)
	f.backend.Stall(f.sync.SlotFence(0))
	f.cycle(t)

	_, err := f.sync.AcquireFrame()
	assert.ErrorIs(t, err, core.ErrSyncTimeout)
	assert.Equal(t, uint32(0), f.sync.CurrentSlot())
}

func TestFrameSyncStalledForever(t *testing.T) {
	f := newSyncFixture(t, core.WaitForever)
	f.cycle(t)
	f.backend.Stall(f.sync.SlotFence(0))
	f.cycle(t)

	_, err := f.sync.AcquireFrame()
	assert.Error(t, err)
}

func TestFrameSyncDestroy(t *testing.T) {
	f := newSyncFixture(t, core.WaitForever)
	f.cycle(t)
	fences := []metadata.Fence{f.sync.SlotFence(0), f.sync.SlotFence(1)}

	require.NoError(t, f.sync.Destroy())
	for _, fence := range fences {
		assert.False(t, f.backend.IsFenceAlive(fence))
	}
	assert.Empty(t, f.sync.ImagesInFlight())
}
