package core

import (
	"errors"
)

var (
	ErrNotFound        = errors.New("asset not found")
	ErrLoadFailure     = errors.New("asset load failure")
	ErrStoreDestroyed  = errors.New("asset store already destroyed")
	ErrSwapchainStale  = errors.New("swapchain out of date or suboptimal")
	ErrSyncTimeout     = errors.New("synchronization wait timed out")
	ErrDeviceLost      = errors.New("device lost")
	ErrFrameInProgress = errors.New("frame slot already acquired")
	ErrInvalidFrame    = errors.New("invalid frame")
	ErrNotBuilt        = errors.New("gpu buffer not built")
	ErrUnknown         = errors.New("unknown")
)
