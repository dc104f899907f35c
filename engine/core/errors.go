package core

import (
	"errors"
)

var (
	// Initialization errors. All of these are fatal at startup.
	ErrNoSuitableGPU          = errors.New("no physical device meets the renderer requirements")
	ErrValidationLayerMissing = errors.New("required validation layer is not available")
	ErrSurfaceCreation        = errors.New("vulkan surface creation failed")
	ErrMissingFeature         = errors.New("required device feature is not supported")

	// Runtime device errors.
	ErrUnsupportedTransition = errors.New("unsupported image layout transition")
	ErrNoLinearBlitSupport   = errors.New("image format does not support linear blitting")

	// Asset errors.
	ErrTooManyMaterialTextures = errors.New("model exceeds the material texture array size")
	ErrDecodeFailed            = errors.New("image decode failed")

	// Surface errors recovered by swapchain recreation.
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")
)
