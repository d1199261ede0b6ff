package metadata

/** @brief The result of acquiring a frame from the frame synchronizer. */
type Frame struct {
	/** @brief False when the acquire failed, nothing may be recorded for it. */
	IsValid bool
	/** @brief The swapchain image rendered into. */
	ImageIndex uint32
	/** @brief The in-flight slot, always below MaxFramesInFlight. */
	FrameIndex uint32
	/** @brief Count of frames acquired so far. */
	CurrentFrame uint64
	FrameSize    Extent
	Framebuffer  Framebuffer
}
