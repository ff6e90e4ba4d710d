package dieselrt

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselrt/hal"
)

// PreferredSurfaceFormat is 8-bit BGRA in the standard non-linear space.
var PreferredSurfaceFormat = hal.SurfaceFormat{
	Format:     vk.FormatB8g8r8a8Unorm,
	ColorSpace: vk.ColorSpaceSrgbNonlinear,
}

// ChooseImageCount resolves the requested swapchain length against the
// surface bounds. Zero asks for one more than the minimum; max of zero is
// unbounded.
func ChooseImageCount(requested, min, max uint32) uint32 {
	count := requested
	if requested == 0 {
		count = min + 1
	} else if requested < min {
		count = min
	}
	if max > 0 && count > max {
		count = max
	}
	return count
}

// ChooseSurfaceFormat prefers PreferredSurfaceFormat. A lone UNDEFINED
// entry means the surface takes any format, so the preferred one is
// forced. Otherwise the first reported format is used.
func ChooseSurfaceFormat(formats []hal.SurfaceFormat) (hal.SurfaceFormat, bool) {
	if len(formats) == 0 {
		return hal.SurfaceFormat{}, false
	}
	if len(formats) == 1 && formats[0].Format == vk.FormatUndefined {
		return PreferredSurfaceFormat, true
	}
	for _, f := range formats {
		if f == PreferredSurfaceFormat {
			return f, true
		}
	}
	return formats[0], true
}

// ChoosePresentMode scans every mode and keeps the last mailbox or
// immediate entry. FIFO is the guaranteed fallback.
func ChoosePresentMode(modes []vk.PresentMode) vk.PresentMode {
	best := vk.PresentModeFifo
	for _, m := range modes {
		if m == vk.PresentModeMailbox || m == vk.PresentModeImmediate {
			best = m
		}
	}
	return best
}

// ChooseExtent uses the surface's current extent unless the surface leaves
// the size to the swapchain, in which case the framebuffer size is clamped
// into the surface limits.
func ChooseExtent(caps hal.SurfaceCapabilities, framebuffer hal.Extent2D) hal.Extent2D {
	if caps.CurrentExtent.Width != vk.MaxUint32 {
		return caps.CurrentExtent
	}
	return hal.Extent2D{
		Width:  clamp(framebuffer.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(framebuffer.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// chooseTransform keeps the identity transform when supported.
func chooseTransform(caps hal.SurfaceCapabilities) vk.SurfaceTransformFlagBits {
	if caps.SupportedTransforms&vk.SurfaceTransformFlags(vk.SurfaceTransformIdentityBit) != 0 {
		return vk.SurfaceTransformIdentityBit
	}
	return caps.CurrentTransform
}

// chooseCompositeAlpha returns the first supported mode, opaque first.
func chooseCompositeAlpha(caps hal.SurfaceCapabilities) vk.CompositeAlphaFlagBits {
	for _, bit := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if caps.SupportedCompositeAlpha&vk.CompositeAlphaFlags(bit) != 0 {
			return bit
		}
	}
	return vk.CompositeAlphaOpaqueBit
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
