package dieselrt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselrt/hal"
)

func TestChooseImageCount(t *testing.T) {
	cases := []struct {
		requested, min, max, want uint32
	}{
		{0, 2, 3, 3},
		{5, 2, 4, 4},
		{2, 3, 0, 3},
		{0, 2, 0, 3},
		{3, 2, 8, 3},
		{0, 3, 3, 3},
	}
	for _, c := range cases {
		got := ChooseImageCount(c.requested, c.min, c.max)
		assert.Equal(t, c.want, got, "requested %d in [%d, %d]", c.requested, c.min, c.max)
	}
}

func TestChooseImageCountBounds(t *testing.T) {
	for min := uint32(1); min < 5; min++ {
		for max := uint32(0); max < 8; max++ {
			if max != 0 && max < min {
				continue
			}
			for req := uint32(0); req < 10; req++ {
				got := ChooseImageCount(req, min, max)
				assert.GreaterOrEqual(t, got, min)
				if max > 0 {
					assert.LessOrEqual(t, got, max)
				}
			}
		}
	}
}

func TestChooseSurfaceFormat(t *testing.T) {
	_, ok := ChooseSurfaceFormat(nil)
	assert.False(t, ok)

	f, ok := ChooseSurfaceFormat([]hal.SurfaceFormat{{Format: vk.FormatUndefined}})
	assert.True(t, ok)
	assert.Equal(t, PreferredSurfaceFormat, f)

	rgba := hal.SurfaceFormat{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	f, _ = ChooseSurfaceFormat([]hal.SurfaceFormat{rgba, PreferredSurfaceFormat})
	assert.Equal(t, PreferredSurfaceFormat, f)

	f, _ = ChooseSurfaceFormat([]hal.SurfaceFormat{rgba})
	assert.Equal(t, rgba, f)
}

func TestChoosePresentMode(t *testing.T) {
	assert.Equal(t, vk.PresentModeFifo, ChoosePresentMode(nil))
	assert.Equal(t, vk.PresentModeFifo, ChoosePresentMode([]vk.PresentMode{vk.PresentModeFifo, vk.PresentModeFifoRelaxed}))
	assert.Equal(t, vk.PresentModeMailbox, ChoosePresentMode([]vk.PresentMode{vk.PresentModeFifo, vk.PresentModeMailbox}))
	assert.Equal(t, vk.PresentModeImmediate,
		ChoosePresentMode([]vk.PresentMode{vk.PresentModeMailbox, vk.PresentModeImmediate, vk.PresentModeFifo}))
}

func TestChooseExtent(t *testing.T) {
	caps := hal.SurfaceCapabilities{
		CurrentExtent:  hal.Extent2D{Width: 640, Height: 480},
		MinImageExtent: hal.Extent2D{Width: 16, Height: 16},
		MaxImageExtent: hal.Extent2D{Width: 2048, Height: 2048},
	}
	assert.Equal(t, hal.Extent2D{Width: 640, Height: 480}, ChooseExtent(caps, hal.Extent2D{Width: 10, Height: 10}))

	caps.CurrentExtent = hal.Extent2D{Width: vk.MaxUint32, Height: vk.MaxUint32}
	assert.Equal(t, hal.Extent2D{Width: 1024, Height: 768}, ChooseExtent(caps, hal.Extent2D{Width: 1024, Height: 768}))
	assert.Equal(t, hal.Extent2D{Width: 16, Height: 2048}, ChooseExtent(caps, hal.Extent2D{Width: 1, Height: 9000}))
}

func TestChooseTransformAndAlpha(t *testing.T) {
	caps := hal.SurfaceCapabilities{
		SupportedTransforms:     vk.SurfaceTransformFlags(vk.SurfaceTransformRotate90Bit),
		CurrentTransform:        vk.SurfaceTransformRotate90Bit,
		SupportedCompositeAlpha: vk.CompositeAlphaFlags(vk.CompositeAlphaInheritBit),
	}
	assert.Equal(t, vk.SurfaceTransformRotate90Bit, chooseTransform(caps))
	assert.Equal(t, vk.CompositeAlphaInheritBit, chooseCompositeAlpha(caps))

	caps.SupportedTransforms |= vk.SurfaceTransformFlags(vk.SurfaceTransformIdentityBit)
	caps.SupportedCompositeAlpha |= vk.CompositeAlphaFlags(vk.CompositeAlphaOpaqueBit)
	assert.Equal(t, vk.SurfaceTransformIdentityBit, chooseTransform(caps))
	assert.Equal(t, vk.CompositeAlphaOpaqueBit, chooseCompositeAlpha(caps))
}
