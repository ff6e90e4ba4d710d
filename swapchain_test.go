package dieselrt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselrt/hal"
	"github.com/andewx/dieselrt/hal/mock"
)

func TestSwapchainBuild(t *testing.T) {
	drv, win, ctx := newTestContext(t)
	sc, err := NewSwapchain(ctx, win, SwapchainOptions{FramesInFlight: 2})
	require.NoError(t, err)

	assert.Len(t, sc.Images, 3)
	assert.Len(t, sc.Views, 3)
	assert.Len(t, sc.Slots, 2)
	assert.Equal(t, 2, sc.FramesInFlight())
	assert.Equal(t, hal.Extent2D{Width: 800, Height: 600}, sc.Extent)
	assert.Equal(t, PreferredSurfaceFormat, sc.Format)
	assert.Equal(t, vk.PresentModeMailbox, sc.PresentMode)
	for _, slot := range sc.Slots {
		assert.True(t, drv.Signaled(slot.InFlight), "slot %d fence starts signaled", slot.Index)
	}

	require.Len(t, drv.Swapchains, 1)
	desc := drv.Swapchains[0]
	assert.Equal(t, uint32(3), desc.MinImageCount)
	assert.Empty(t, desc.QueueFamilies, "shared queue family uses exclusive sharing")

	sc.Destroy()
	require.NoError(t, ctx.Destroy())
	assert.Zero(t, drv.Live(), "leaked %v", drv.Leaks())
}

func TestSwapchainRejectsZeroFrames(t *testing.T) {
	drv, win, ctx := newTestContext(t)
	defer ctx.Destroy()
	_, err := NewSwapchain(ctx, win, SwapchainOptions{})
	require.Error(t, err)
	assert.Zero(t, drv.LiveOf(mock.KindSwapchain))
}

func TestSwapchainFailureLeaksNothing(t *testing.T) {
	for _, op := range []string{"CreateSwapchain", "SwapchainImages", "CreateImageView", "CreateFence", "AllocateCommandBuffers"} {
		t.Run(op, func(t *testing.T) {
			drv, win, ctx := newTestContext(t)
			drv.Fail(op, nil)
			_, err := NewSwapchain(ctx, win, SwapchainOptions{FramesInFlight: 2})
			require.Error(t, err)
			require.NoError(t, ctx.Destroy())
			assert.Zero(t, drv.Live(), "leaked %v", drv.Leaks())
		})
	}
}

func TestSwapchainNoFormats(t *testing.T) {
	drv, win, ctx := newTestContext(t)
	defer ctx.Destroy()
	drv.Formats = nil
	_, err := NewSwapchain(ctx, win, SwapchainOptions{FramesInFlight: 1})
	assert.Equal(t, NoSuitableSurface, CodeOf(err))
}

type dependent struct {
	log   *[]string
	name  string
	built []hal.Extent2D
}

func (d *dependent) ReleaseSwapchainResources() {
	*d.log = append(*d.log, "release "+d.name)
}

func (d *dependent) BuildSwapchainResources(sc *Swapchain) error {
	*d.log = append(*d.log, "build "+d.name)
	d.built = append(d.built, sc.Extent)
	return nil
}

func TestSwapchainRecreate(t *testing.T) {
	drv, win, ctx := newTestContext(t)
	sc, err := NewSwapchain(ctx, win, SwapchainOptions{FramesInFlight: 2})
	require.NoError(t, err)

	var log []string
	a := &dependent{log: &log, name: "a"}
	b := &dependent{log: &log, name: "b"}
	sc.Register(a)
	sc.Register(b)

	old := sc.Handle
	drv.Capabilities.CurrentExtent = hal.Extent2D{Width: 1280, Height: 720}
	require.NoError(t, sc.Recreate())

	assert.Equal(t, 1, sc.Recreations())
	assert.NotEqual(t, old, sc.Handle)
	assert.Equal(t, hal.Extent2D{Width: 1280, Height: 720}, sc.Extent)
	assert.Equal(t, []string{"release b", "release a", "build a", "build b"}, log)
	assert.Equal(t, []hal.Extent2D{{Width: 1280, Height: 720}}, b.built)
	assert.Equal(t, 1, drv.LiveOf(mock.KindSwapchain))
	assert.Equal(t, 2, drv.LiveOf(mock.KindFence))

	sc.Destroy()
	require.NoError(t, ctx.Destroy())
	assert.Zero(t, drv.Live(), "leaked %v", drv.Leaks())
}

func TestSwapchainRecreateWaitsWhileMinimized(t *testing.T) {
	drv, win, ctx := newTestContext(t)
	sc, err := NewSwapchain(ctx, win, SwapchainOptions{FramesInFlight: 1})
	require.NoError(t, err)

	win.Sizes = [][2]int{{0, 0}, {0, 0}, {640, 480}}
	require.NoError(t, sc.Recreate())
	assert.Equal(t, 2, win.WaitCount)

	win.Sizes = [][2]int{{0, 0}}
	win.Close = true
	assert.ErrorIs(t, sc.Recreate(), ErrWindowClosed)

	sc.Destroy()
	require.NoError(t, ctx.Destroy())
	assert.Zero(t, drv.Live(), "leaked %v", drv.Leaks())
}
