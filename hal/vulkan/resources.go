package vulkan

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselrt/hal"
)

func requirements(r vk.MemoryRequirements) hal.MemoryRequirements {
	r.Deref()
	return hal.MemoryRequirements{
		Size:      uint64(r.Size),
		Alignment: uint64(r.Alignment),
		TypeBits:  r.MemoryTypeBits,
	}
}

func (d *Driver) CreateBuffer(h hal.Device, desc hal.BufferDescriptor) (hal.Buffer, error) {
	var buffer vk.Buffer
	ret := vk.CreateBuffer(d.device(h), &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       desc.Usage,
		SharingMode: vk.SharingModeExclusive,
	}, nil, &buffer)
	if ret != vk.Success {
		return hal.Null, newError("CreateBuffer", ret)
	}
	return hal.Buffer(d.buffers.put(buffer)), nil
}

func (d *Driver) DestroyBuffer(h hal.Device, b hal.Buffer) {
	if buffer, ok := d.buffers.take(uint64(b)); ok {
		vk.DestroyBuffer(d.device(h), buffer, nil)
	}
}

func (d *Driver) BufferMemoryRequirements(h hal.Device, b hal.Buffer) hal.MemoryRequirements {
	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device(h), d.buffers.get(uint64(b)), &reqs)
	return requirements(reqs)
}

func (d *Driver) CreateImage(h hal.Device, desc hal.ImageDescriptor) (hal.Image, error) {
	var image vk.Image
	ret := vk.CreateImage(d.device(h), &vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    desc.Format,
		Extent: vk.Extent3D{
			Width:  desc.Extent.Width,
			Height: desc.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        desc.Tiling,
		Usage:         desc.Usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &image)
	if ret != vk.Success {
		return hal.Null, newError("CreateImage", ret)
	}
	return hal.Image(d.images.put(image)), nil
}

func (d *Driver) DestroyImage(h hal.Device, img hal.Image) {
	if image, ok := d.images.take(uint64(img)); ok {
		vk.DestroyImage(d.device(h), image, nil)
	}
}

func (d *Driver) ImageMemoryRequirements(h hal.Device, img hal.Image) hal.MemoryRequirements {
	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device(h), d.images.get(uint64(img)), &reqs)
	return requirements(reqs)
}

func (d *Driver) AllocateMemory(h hal.Device, size uint64, typeIndex uint32) (hal.Memory, error) {
	var memory vk.DeviceMemory
	ret := vk.AllocateMemory(d.device(h), &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: typeIndex,
	}, nil, &memory)
	if ret != vk.Success {
		return hal.Null, newError("AllocateMemory", ret)
	}
	return hal.Memory(d.memories.put(memory)), nil
}

func (d *Driver) FreeMemory(h hal.Device, m hal.Memory) {
	if memory, ok := d.memories.take(uint64(m)); ok {
		vk.FreeMemory(d.device(h), memory, nil)
	}
}

func (d *Driver) BindBufferMemory(h hal.Device, b hal.Buffer, m hal.Memory, offset uint64) error {
	ret := vk.BindBufferMemory(d.device(h), d.buffers.get(uint64(b)), d.memories.get(uint64(m)), vk.DeviceSize(offset))
	return newError("BindBufferMemory", ret)
}

func (d *Driver) BindImageMemory(h hal.Device, img hal.Image, m hal.Memory, offset uint64) error {
	ret := vk.BindImageMemory(d.device(h), d.images.get(uint64(img)), d.memories.get(uint64(m)), vk.DeviceSize(offset))
	return newError("BindImageMemory", ret)
}

func (d *Driver) WriteMemory(h hal.Device, m hal.Memory, offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	device, memory := d.device(h), d.memories.get(uint64(m))
	var ptr unsafe.Pointer
	ret := vk.MapMemory(device, memory, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &ptr)
	if ret != vk.Success {
		return newError("MapMemory", ret)
	}
	defer vk.UnmapMemory(device, memory)
	if n := vk.Memcopy(ptr, data); n != len(data) {
		return errors.Errorf("vulkan: copied %d of %d bytes", n, len(data))
	}
	return nil
}

func (d *Driver) CreateImageView(h hal.Device, desc hal.ImageViewDescriptor) (hal.ImageView, error) {
	sub := colorRange()
	if desc.Aspect != 0 {
		sub.AspectMask = desc.Aspect
	}
	var view vk.ImageView
	ret := vk.CreateImageView(d.device(h), &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    d.images.get(uint64(desc.Image)),
		ViewType: vk.ImageViewType2d,
		Format:   desc.Format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: sub,
	}, nil, &view)
	if ret != vk.Success {
		return hal.Null, newError("CreateImageView", ret)
	}
	return hal.ImageView(d.views.put(view)), nil
}

func (d *Driver) DestroyImageView(h hal.Device, v hal.ImageView) {
	if view, ok := d.views.take(uint64(v)); ok {
		vk.DestroyImageView(d.device(h), view, nil)
	}
}

func (d *Driver) CreateSampler(h hal.Device, desc hal.SamplerDescriptor) (hal.Sampler, error) {
	var sampler vk.Sampler
	ret := vk.CreateSampler(d.device(h), &vk.SamplerCreateInfo{
		SType:         vk.StructureTypeSamplerCreateInfo,
		MagFilter:     desc.MagFilter,
		MinFilter:     desc.MinFilter,
		MipmapMode:    vk.SamplerMipmapModeLinear,
		AddressModeU:  desc.AddressMode,
		AddressModeV:  desc.AddressMode,
		AddressModeW:  desc.AddressMode,
		MaxAnisotropy: 1,
		CompareOp:     vk.CompareOpAlways,
		BorderColor:   desc.BorderColor,
	}, nil, &sampler)
	if ret != vk.Success {
		return hal.Null, newError("CreateSampler", ret)
	}
	return hal.Sampler(d.samplers.put(sampler)), nil
}

func (d *Driver) DestroySampler(h hal.Device, s hal.Sampler) {
	if sampler, ok := d.samplers.take(uint64(s)); ok {
		vk.DestroySampler(d.device(h), sampler, nil)
	}
}

func (d *Driver) CreateDescriptorSetLayout(h hal.Device, bindings []hal.DescriptorBinding) (hal.DescriptorSetLayout, error) {
	list := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		count := b.Count
		if count == 0 {
			count = 1
		}
		list[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  b.Type,
			DescriptorCount: count,
			StageFlags:      b.Stages,
		}
	}
	var layout vk.DescriptorSetLayout
	ret := vk.CreateDescriptorSetLayout(d.device(h), &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(list)),
		PBindings:    list,
	}, nil, &layout)
	if ret != vk.Success {
		return hal.Null, newError("CreateDescriptorSetLayout", ret)
	}
	return hal.DescriptorSetLayout(d.setLayouts.put(layout)), nil
}

func (d *Driver) DestroyDescriptorSetLayout(h hal.Device, l hal.DescriptorSetLayout) {
	if layout, ok := d.setLayouts.take(uint64(l)); ok {
		vk.DestroyDescriptorSetLayout(d.device(h), layout, nil)
	}
}

func (d *Driver) CreateDescriptorPool(h hal.Device, maxSets uint32, sizes []hal.DescriptorPoolSize) (hal.DescriptorPool, error) {
	list := make([]vk.DescriptorPoolSize, len(sizes))
	for i, s := range sizes {
		list[i] = vk.DescriptorPoolSize{Type: s.Type, DescriptorCount: s.Count}
	}
	var pool vk.DescriptorPool
	ret := vk.CreateDescriptorPool(d.device(h), &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(list)),
		PPoolSizes:    list,
	}, nil, &pool)
	if ret != vk.Success {
		return hal.Null, newError("CreateDescriptorPool", ret)
	}
	return hal.DescriptorPool(d.descPools.put(&descriptorPoolState{handle: pool})), nil
}

func (d *Driver) DestroyDescriptorPool(h hal.Device, p hal.DescriptorPool) {
	state, ok := d.descPools.take(uint64(p))
	if !ok {
		return
	}
	for _, set := range state.sets {
		d.descSets.take(set)
	}
	vk.DestroyDescriptorPool(d.device(h), state.handle, nil)
}

func (d *Driver) AllocateDescriptorSet(h hal.Device, p hal.DescriptorPool, l hal.DescriptorSetLayout) (hal.DescriptorSet, error) {
	state := d.descPools.get(uint64(p))
	if state == nil {
		return hal.Null, errors.New("vulkan: AllocateDescriptorSet on unknown pool")
	}
	var set vk.DescriptorSet
	ret := vk.AllocateDescriptorSets(d.device(h), &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     state.handle,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{d.setLayouts.get(uint64(l))},
	}, &set)
	if ret != vk.Success {
		return hal.Null, newError("AllocateDescriptorSets", ret)
	}
	id := d.descSets.put(set)
	state.sets = append(state.sets, id)
	return hal.DescriptorSet(id), nil
}

func (d *Driver) UpdateDescriptorSets(h hal.Device, writes []hal.DescriptorWrite) {
	list := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          d.descSets.get(uint64(w.Set)),
			DstBinding:      w.Binding,
			DescriptorCount: 1,
			DescriptorType:  w.Type,
		}
		if w.Buffer != hal.Null {
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: d.buffers.get(uint64(w.Buffer)),
				Range:  vk.DeviceSize(w.Range),
			}}
		} else {
			write.PImageInfo = []vk.DescriptorImageInfo{{
				Sampler:     d.samplers.get(uint64(w.Sampler)),
				ImageView:   d.views.get(uint64(w.View)),
				ImageLayout: w.Layout,
			}}
		}
		list = append(list, write)
	}
	if len(list) == 0 {
		return
	}
	vk.UpdateDescriptorSets(d.device(h), uint32(len(list)), list, 0, nil)
}
