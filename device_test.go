package dieselrt

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselrt/hal"
	"github.com/andewx/dieselrt/hal/mock"
)

func TestDeviceContextRoundTrip(t *testing.T) {
	drv, _, ctx := newTestContext(t)

	assert.Equal(t, "mock-gpu", ctx.Info.Name)
	assert.True(t, ctx.SharedPresent())
	assert.Equal(t, ctx.GraphicsQueue, ctx.PresentQueue)
	assert.Len(t, ctx.MemoryTypes, 2)
	assert.Equal(t, 1, drv.LiveOf(mock.KindDevice))

	require.NoError(t, ctx.Destroy())
	assert.Zero(t, drv.Live(), "leaked %v", drv.Leaks())
	assert.NoError(t, ctx.Destroy())
	assert.Equal(t, 1, drv.Count("DestroyDevice"))
}

func TestDeviceContextRequestsWindowExtensions(t *testing.T) {
	drv := mock.New()
	win := mock.NewWindow(800, 600)
	ctx, err := NewDeviceContext(drv, win, DeviceOptions{Debug: true})
	require.NoError(t, err)
	defer ctx.Destroy()

	calls := drv.Find("CreateInstance")
	require.Len(t, calls, 1)
	desc := calls[0].Args[0].(hal.InstanceDescriptor)
	assert.Equal(t, "dieselrt", desc.AppName)
	assert.Contains(t, desc.Extensions, hal.ExtSurface)
	assert.Contains(t, desc.Extensions, hal.ExtDebug)
	assert.Equal(t, []string{hal.LayerValidation}, desc.Layers)

	dev := drv.Find("CreateDevice")[0].Args[1].(hal.DeviceDescriptor)
	assert.Equal(t, []uint32{0}, dev.QueueFamilies)
	assert.Contains(t, dev.Extensions, hal.ExtSwapchain)
}

func TestDeviceContextNoSuitableGPU(t *testing.T) {
	drv := mock.New()
	noSwapchain := mock.DefaultAdapter("headless")
	noSwapchain.Extensions = nil
	noPresent := mock.DefaultAdapter("compute-only")
	noPresent.QueueFamilies[0].Present = false
	drv.Adapters = []mock.AdapterConfig{noSwapchain, noPresent}

	_, err := NewDeviceContext(drv, mock.NewWindow(800, 600), DeviceOptions{})
	require.Error(t, err)
	assert.Equal(t, NoSuitableGPU, CodeOf(err))
	assert.True(t, errors.Is(err, ErrNoSuitableGPU))
	assert.Zero(t, drv.Live(), "leaked %v", drv.Leaks())
}

func TestDeviceContextSkipsUnsuitableAdapter(t *testing.T) {
	drv := mock.New()
	headless := mock.DefaultAdapter("headless")
	headless.Extensions = nil
	drv.Adapters = []mock.AdapterConfig{headless, mock.DefaultAdapter("second")}

	ctx, err := NewDeviceContext(drv, mock.NewWindow(800, 600), DeviceOptions{})
	require.NoError(t, err)
	assert.Equal(t, "second", ctx.Info.Name)
	require.NoError(t, ctx.Destroy())
	assert.Zero(t, drv.Live())
}

func TestDeviceContextSurfaceFailure(t *testing.T) {
	drv := mock.New()
	win := mock.NewWindow(800, 600)
	win.SurfaceErr = errors.New("no display")

	_, err := NewDeviceContext(drv, win, DeviceOptions{})
	require.Error(t, err)
	assert.Equal(t, NoSuitableSurface, CodeOf(err))
	assert.Equal(t, 1, win.SurfaceCall)
	assert.Zero(t, drv.Live(), "leaked %v", drv.Leaks())
}

func TestDeviceContextPartialCleanup(t *testing.T) {
	drv := mock.New()
	drv.Fail("CreateDevice", nil)

	_, err := NewDeviceContext(drv, mock.NewWindow(800, 600), DeviceOptions{})
	require.Error(t, err)
	assert.Equal(t, Unknown, CodeOf(err))
	assert.True(t, errors.Is(err, mock.ErrInjected))
	assert.Zero(t, drv.Live(), "leaked %v", drv.Leaks())
	assert.Equal(t, []string{"DestroySurface", "DestroyInstance"}, destroyOps(drv))
}

func TestDeviceContextInstanceFailure(t *testing.T) {
	drv := mock.New()
	drv.Fail("CreateInstance", nil)
	_, err := NewDeviceContext(drv, mock.NewWindow(800, 600), DeviceOptions{})
	assert.Equal(t, Unknown, CodeOf(err))
	assert.Zero(t, drv.Live())
}

func TestResolveQueueFamilies(t *testing.T) {
	gfx := vk.QueueFlags(vk.QueueGraphicsBit)
	cases := []struct {
		name     string
		families []hal.QueueFamily
		gfx      uint32
		present  uint32
		ok       bool
	}{
		{"shared", []hal.QueueFamily{{Index: 0, Flags: gfx, Count: 1, Present: true}}, 0, 0, true},
		{"split", []hal.QueueFamily{
			{Index: 0, Flags: gfx, Count: 1},
			{Index: 1, Count: 1, Present: true},
		}, 0, 1, true},
		{"prefers shared", []hal.QueueFamily{
			{Index: 0, Flags: gfx, Count: 1},
			{Index: 1, Count: 1, Present: true},
			{Index: 2, Flags: gfx, Count: 1, Present: true},
		}, 2, 2, true},
		{"no present", []hal.QueueFamily{{Index: 0, Flags: gfx, Count: 1}}, 0, 0, false},
		{"no graphics", []hal.QueueFamily{{Index: 0, Count: 1, Present: true}}, 0, 0, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			g, p, ok := resolveQueueFamilies(c.families)
			assert.Equal(t, c.ok, ok)
			if c.ok {
				assert.Equal(t, c.gfx, g)
				assert.Equal(t, c.present, p)
			}
		})
	}
}

// destroyOps lists the Destroy* calls in order.
func destroyOps(drv *mock.Driver) []string {
	var out []string
	for _, op := range drv.Ops() {
		if len(op) > 7 && op[:7] == "Destroy" {
			out = append(out, op)
		}
	}
	return out
}
