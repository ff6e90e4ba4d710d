package dieselrt

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselrt/hal"
)

// FrameSlot is the synchronization and command state of one frame in
// flight. Its fence is created signaled so the first wait passes.
type FrameSlot struct {
	Index          int
	ImageAvailable hal.Semaphore
	RenderFinished hal.Semaphore
	InFlight       hal.Fence
	Pool           hal.CommandPool
	Commands       hal.CommandBuffer
}

func newFrameSlot(ctx *DeviceContext, index int) (slot *FrameSlot, err error) {
	drv, dev := ctx.Driver, ctx.Device
	s := &FrameSlot{Index: index}

	var rel releaser
	defer func() {
		if err != nil {
			rel.release()
		}
	}()

	if s.ImageAvailable, err = drv.CreateSemaphore(dev); err != nil {
		return nil, err
	}
	rel.push(func() { drv.DestroySemaphore(dev, s.ImageAvailable) })

	if s.RenderFinished, err = drv.CreateSemaphore(dev); err != nil {
		return nil, err
	}
	rel.push(func() { drv.DestroySemaphore(dev, s.RenderFinished) })

	if s.InFlight, err = drv.CreateFence(dev, true); err != nil {
		return nil, err
	}
	rel.push(func() { drv.DestroyFence(dev, s.InFlight) })

	s.Pool, err = drv.CreateCommandPool(dev, ctx.GraphicsFamily, vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit))
	if err != nil {
		return nil, err
	}
	rel.push(func() { drv.DestroyCommandPool(dev, s.Pool) })

	cbs, err := drv.AllocateCommandBuffers(dev, s.Pool, 1)
	if err != nil {
		return nil, err
	}
	s.Commands = cbs[0]
	return s, nil
}

func (s *FrameSlot) destroy(ctx *DeviceContext) {
	drv, dev := ctx.Driver, ctx.Device
	drv.FreeCommandBuffers(dev, s.Pool, []hal.CommandBuffer{s.Commands})
	drv.DestroyCommandPool(dev, s.Pool)
	drv.DestroyFence(dev, s.InFlight)
	drv.DestroySemaphore(dev, s.RenderFinished)
	drv.DestroySemaphore(dev, s.ImageAvailable)
}
