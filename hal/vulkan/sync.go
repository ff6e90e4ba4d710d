package vulkan

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselrt/hal"
)

func (d *Driver) CreateSemaphore(h hal.Device) (hal.Semaphore, error) {
	var sem vk.Semaphore
	ret := vk.CreateSemaphore(d.device(h), &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &sem)
	if ret != vk.Success {
		return hal.Null, newError("CreateSemaphore", ret)
	}
	return hal.Semaphore(d.semaphores.put(sem)), nil
}

func (d *Driver) DestroySemaphore(h hal.Device, s hal.Semaphore) {
	if sem, ok := d.semaphores.take(uint64(s)); ok {
		vk.DestroySemaphore(d.device(h), sem, nil)
	}
}

func (d *Driver) CreateFence(h hal.Device, signaled bool) (hal.Fence, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if ret := vk.CreateFence(d.device(h), &info, nil, &fence); ret != vk.Success {
		return hal.Null, newError("CreateFence", ret)
	}
	return hal.Fence(d.fences.put(fence)), nil
}

func (d *Driver) DestroyFence(h hal.Device, f hal.Fence) {
	if fence, ok := d.fences.take(uint64(f)); ok {
		vk.DestroyFence(d.device(h), fence, nil)
	}
}

func (d *Driver) fenceList(list []hal.Fence) []vk.Fence {
	out := make([]vk.Fence, len(list))
	for i, f := range list {
		out[i] = d.fences.get(uint64(f))
	}
	return out
}

func (d *Driver) WaitForFences(h hal.Device, fences []hal.Fence, timeout uint64) error {
	list := d.fenceList(fences)
	ret := vk.WaitForFences(d.device(h), uint32(len(list)), list, vk.True, timeout)
	return newError("WaitForFences", ret)
}

func (d *Driver) ResetFences(h hal.Device, fences []hal.Fence) error {
	list := d.fenceList(fences)
	return newError("ResetFences", vk.ResetFences(d.device(h), uint32(len(list)), list))
}

func (d *Driver) CreateCommandPool(h hal.Device, family uint32, flags vk.CommandPoolCreateFlags) (hal.CommandPool, error) {
	var pool vk.CommandPool
	ret := vk.CreateCommandPool(d.device(h), &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            flags,
		QueueFamilyIndex: family,
	}, nil, &pool)
	if ret != vk.Success {
		return hal.Null, newError("CreateCommandPool", ret)
	}
	return hal.CommandPool(d.cmdPools.put(pool)), nil
}

// DestroyCommandPool frees the pool's command buffers with it. Their
// handles stay in the table until FreeCommandBuffers is called.
func (d *Driver) DestroyCommandPool(h hal.Device, p hal.CommandPool) {
	if pool, ok := d.cmdPools.take(uint64(p)); ok {
		vk.DestroyCommandPool(d.device(h), pool, nil)
	}
}

func (d *Driver) ResetCommandPool(h hal.Device, p hal.CommandPool) error {
	ret := vk.ResetCommandPool(d.device(h), d.cmdPools.get(uint64(p)), 0)
	return newError("ResetCommandPool", ret)
}

func (d *Driver) AllocateCommandBuffers(h hal.Device, p hal.CommandPool, count uint32) ([]hal.CommandBuffer, error) {
	cbs := make([]vk.CommandBuffer, count)
	ret := vk.AllocateCommandBuffers(d.device(h), &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.cmdPools.get(uint64(p)),
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	}, cbs)
	if ret != vk.Success {
		return nil, newError("AllocateCommandBuffers", ret)
	}
	out := make([]hal.CommandBuffer, count)
	for i, cb := range cbs {
		out[i] = hal.CommandBuffer(d.cmdBuffers.put(cb))
	}
	return out, nil
}

func (d *Driver) FreeCommandBuffers(h hal.Device, p hal.CommandPool, cbs []hal.CommandBuffer) {
	list := make([]vk.CommandBuffer, 0, len(cbs))
	for _, cb := range cbs {
		if c, ok := d.cmdBuffers.take(uint64(cb)); ok {
			list = append(list, c)
		}
	}
	pool := d.cmdPools.get(uint64(p))
	if len(list) == 0 || pool == vk.CommandPool(vk.NullHandle) {
		return
	}
	vk.FreeCommandBuffers(d.device(h), pool, uint32(len(list)), list)
}
