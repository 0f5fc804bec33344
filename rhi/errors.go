package rhi

import "errors"

// Initialisation errors — all fatal at startup (spec §7).
var (
	ErrMissingRequiredExtension = errors.New("rhi: missing required extension")
	ErrNoSuitableDevice         = errors.New("rhi: no suitable physical device")
	ErrSurfaceCreationFailed    = errors.New("rhi: surface creation failed")
	ErrSwapchainCreationFailed  = errors.New("rhi: swapchain creation failed")
)

// Resource allocation errors — surfaced to the caller, device remains
// usable.
var (
	ErrOutOfDeviceMemory   = errors.New("rhi: out of device memory")
	ErrNoSuitableMemoryType = errors.New("rhi: no suitable memory type")
	ErrPoolExhausted       = errors.New("rhi: pool exhausted")
)

// Command recording errors.
var (
	ErrNotRecording          = errors.New("rhi: operation invoked outside begin()/end()")
	ErrRenderPassActive      = errors.New("rhi: operation invalid while a render pass is active")
	ErrNoActiveRenderPass    = errors.New("rhi: operation requires an active render pass")
	ErrInvalidResourceBinding = errors.New("rhi: invalid resource binding")
)

// Presentation errors.
var (
	ErrSwapchainOutOfDate = errors.New("rhi: swapchain out of date")
	ErrSurfaceLost        = errors.New("rhi: surface lost")
)
