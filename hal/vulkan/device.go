package vulkan

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselrt/hal"
)

func (d *Driver) CreateDevice(a hal.Adapter, desc hal.DeviceDescriptor) (hal.Device, error) {
	gpu := d.gpu(a)
	if gpu == nil {
		return hal.Null, errors.New("vulkan: CreateDevice on unknown adapter")
	}
	available, err := DeviceExtensions(gpu)
	if err != nil {
		return hal.Null, err
	}
	extensions, missing := checkExisting(available, desc.Extensions)
	if len(missing) > 0 {
		return hal.Null, errors.Errorf("vulkan: missing device extensions %v", missing)
	}

	queueInfos := make([]vk.DeviceQueueCreateInfo, 0, len(desc.QueueFamilies))
	for _, family := range desc.QueueFamilies {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}
	layers := safeStrings(desc.Layers)

	var device vk.Device
	ret := vk.CreateDevice(gpu, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}, nil, &device)
	if ret != vk.Success {
		return hal.Null, newError("CreateDevice", ret)
	}
	return hal.Device(d.devices.put(device)), nil
}

func (d *Driver) DestroyDevice(h hal.Device) {
	if device, ok := d.devices.take(uint64(h)); ok {
		vk.DestroyDevice(device, nil)
	}
}

func (d *Driver) DeviceQueue(h hal.Device, family uint32) hal.Queue {
	var queue vk.Queue
	vk.GetDeviceQueue(d.device(h), family, 0, &queue)
	return hal.Queue(d.queues.put(queue))
}

func (d *Driver) DeviceWaitIdle(h hal.Device) error {
	return newError("DeviceWaitIdle", vk.DeviceWaitIdle(d.device(h)))
}

func (d *Driver) CreateSwapchain(h hal.Device, desc hal.SwapchainDescriptor) (hal.Swapchain, error) {
	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surfaces.get(uint64(desc.Surface)),
		MinImageCount:    desc.MinImageCount,
		ImageFormat:      desc.Format.Format,
		ImageColorSpace:  desc.Format.ColorSpace,
		ImageExtent:      extent(desc.Extent),
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     desc.Transform,
		CompositeAlpha:   desc.CompositeAlpha,
		PresentMode:      desc.PresentMode,
		Clipped:          vk.True,
		OldSwapchain:     d.swapchains.get(uint64(desc.Old)),
	}
	if len(desc.QueueFamilies) > 1 {
		info.ImageSharingMode = vk.SharingModeConcurrent
		info.QueueFamilyIndexCount = uint32(len(desc.QueueFamilies))
		info.PQueueFamilyIndices = desc.QueueFamilies
	}

	var swapchain vk.Swapchain
	if ret := vk.CreateSwapchain(d.device(h), &info, nil, &swapchain); ret != vk.Success {
		return hal.Null, newError("CreateSwapchain", ret)
	}
	return hal.Swapchain(d.swapchains.put(swapchain)), nil
}

func (d *Driver) DestroySwapchain(h hal.Device, sc hal.Swapchain) {
	swapchain, ok := d.swapchains.take(uint64(sc))
	if !ok {
		return
	}
	d.mu.Lock()
	for _, img := range d.chainImages[sc] {
		d.images.take(uint64(img))
	}
	delete(d.chainImages, sc)
	d.mu.Unlock()
	vk.DestroySwapchain(d.device(h), swapchain, nil)
}

// SwapchainImages returns the presentable images. They belong to the
// swapchain and go away with it; DestroyImage must not be called on them.
func (d *Driver) SwapchainImages(h hal.Device, sc hal.Swapchain) ([]hal.Image, error) {
	d.mu.Lock()
	cached, ok := d.chainImages[sc]
	d.mu.Unlock()
	if ok {
		return cached, nil
	}

	device, swapchain := d.device(h), d.swapchains.get(uint64(sc))
	var count uint32
	if ret := vk.GetSwapchainImages(device, swapchain, &count, nil); ret != vk.Success {
		return nil, newError("GetSwapchainImages", ret)
	}
	images := make([]vk.Image, count)
	if ret := vk.GetSwapchainImages(device, swapchain, &count, images); ret != vk.Success {
		return nil, newError("GetSwapchainImages", ret)
	}
	out := make([]hal.Image, 0, count)
	for _, img := range images[:count] {
		out = append(out, hal.Image(d.images.put(img)))
	}

	d.mu.Lock()
	d.chainImages[sc] = out
	d.mu.Unlock()
	return out, nil
}

func (d *Driver) AcquireNextImage(h hal.Device, sc hal.Swapchain, signal hal.Semaphore, timeout uint64) (uint32, hal.Status, error) {
	var index uint32
	ret := vk.AcquireNextImage(d.device(h), d.swapchains.get(uint64(sc)), timeout,
		d.semaphores.get(uint64(signal)), vk.Fence(vk.NullHandle), &index)
	st, err := status("AcquireNextImage", ret)
	return index, st, err
}

func (d *Driver) semaphoreList(list []hal.Semaphore) []vk.Semaphore {
	out := make([]vk.Semaphore, len(list))
	for i, s := range list {
		out[i] = d.semaphores.get(uint64(s))
	}
	return out
}

func (d *Driver) QueueSubmit(q hal.Queue, desc hal.SubmitDescriptor, fence hal.Fence) error {
	cbs := make([]vk.CommandBuffer, len(desc.CommandBuffers))
	for i, cb := range desc.CommandBuffers {
		cbs[i] = d.cmdBuffers.get(uint64(cb))
	}
	wait := d.semaphoreList(desc.WaitSemaphores)
	signal := d.semaphoreList(desc.SignalSemaphores)

	submit := []vk.SubmitInfo{{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(wait)),
		PWaitSemaphores:      wait,
		PWaitDstStageMask:    desc.WaitStages,
		CommandBufferCount:   uint32(len(cbs)),
		PCommandBuffers:      cbs,
		SignalSemaphoreCount: uint32(len(signal)),
		PSignalSemaphores:    signal,
	}}
	ret := vk.QueueSubmit(d.queues.get(uint64(q)), 1, submit, d.fences.get(uint64(fence)))
	return newError("QueueSubmit", ret)
}

func (d *Driver) QueuePresent(q hal.Queue, desc hal.PresentDescriptor) (hal.Status, error) {
	wait := d.semaphoreList(desc.WaitSemaphores)
	ret := vk.QueuePresent(d.queues.get(uint64(q)), &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(wait)),
		PWaitSemaphores:    wait,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{d.swapchains.get(uint64(desc.Swapchain))},
		PImageIndices:      []uint32{desc.ImageIndex},
	})
	return status("QueuePresent", ret)
}

func (d *Driver) QueueWaitIdle(q hal.Queue) error {
	return newError("QueueWaitIdle", vk.QueueWaitIdle(d.queues.get(uint64(q))))
}
