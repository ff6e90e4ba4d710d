package dieselrt

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselrt/hal"
)

// FindMemoryType returns the first memory type whose bit is set in filter
// and whose flags include every requested property.
func FindMemoryType(types []hal.MemoryType, filter uint32, props vk.MemoryPropertyFlags) (uint32, error) {
	for i, t := range types {
		if i >= 32 {
			break
		}
		if filter&(1<<uint(i)) != 0 && t.Flags&props == props {
			return uint32(i), nil
		}
	}
	return 0, errors.Wrapf(ErrNoMemoryType, "filter %#x, properties %#x", filter, uint32(props))
}

// ResourceFactory creates buffers, images, samplers and descriptor sets on
// one device. Every object it returns has a single owner that calls
// Destroy.
type ResourceFactory struct {
	ctx    *DeviceContext
	upload hal.CommandPool
}

func NewResourceFactory(ctx *DeviceContext) (*ResourceFactory, error) {
	pool, err := ctx.Driver.CreateCommandPool(ctx.Device, ctx.GraphicsFamily,
		vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit))
	if err != nil {
		return nil, newError(Unknown, "create upload command pool", err)
	}
	return &ResourceFactory{ctx: ctx, upload: pool}, nil
}

func (f *ResourceFactory) Destroy() {
	if f == nil || f.upload == hal.Null {
		return
	}
	f.ctx.Driver.DestroyCommandPool(f.ctx.Device, f.upload)
	f.upload = hal.Null
}

// Buffer is a buffer with its own memory allocation.
type Buffer struct {
	ctx    *DeviceContext
	Handle hal.Buffer
	Memory hal.Memory
	Size   uint64
}

func (b *Buffer) Destroy() {
	if b == nil || b.Handle == hal.Null {
		return
	}
	b.ctx.Driver.DestroyBuffer(b.ctx.Device, b.Handle)
	b.ctx.Driver.FreeMemory(b.ctx.Device, b.Memory)
	b.Handle, b.Memory = hal.Null, hal.Null
}

func (f *ResourceFactory) CreateBuffer(size uint64, usage vk.BufferUsageFlags, props vk.MemoryPropertyFlags) (buf *Buffer, err error) {
	drv, dev := f.ctx.Driver, f.ctx.Device
	var rel releaser
	defer func() {
		if err != nil {
			rel.release()
		}
	}()

	handle, err := drv.CreateBuffer(dev, hal.BufferDescriptor{Size: size, Usage: usage})
	if err != nil {
		return nil, errors.Wrap(err, "create buffer")
	}
	rel.push(func() { drv.DestroyBuffer(dev, handle) })

	mem, err := f.allocate(drv.BufferMemoryRequirements(dev, handle), props)
	if err != nil {
		return nil, err
	}
	rel.push(func() { drv.FreeMemory(dev, mem) })

	if err = drv.BindBufferMemory(dev, handle, mem, 0); err != nil {
		return nil, errors.Wrap(err, "bind buffer memory")
	}
	return &Buffer{ctx: f.ctx, Handle: handle, Memory: mem, Size: size}, nil
}

func (f *ResourceFactory) allocate(req hal.MemoryRequirements, props vk.MemoryPropertyFlags) (hal.Memory, error) {
	index, err := FindMemoryType(f.ctx.MemoryTypes, req.TypeBits, props)
	if err != nil {
		return hal.Null, err
	}
	mem, err := f.ctx.Driver.AllocateMemory(f.ctx.Device, req.Size, index)
	if err != nil {
		return hal.Null, errors.Wrap(err, "allocate memory")
	}
	return mem, nil
}

// WriteBuffer copies data into a host-visible buffer.
func (f *ResourceFactory) WriteBuffer(buf *Buffer, data []byte) error {
	if uint64(len(data)) > buf.Size {
		return errors.Errorf("write of %d bytes overflows %d byte buffer", len(data), buf.Size)
	}
	return errors.Wrap(f.ctx.Driver.WriteMemory(f.ctx.Device, buf.Memory, 0, data), "write buffer")
}

// UploadBuffer places data in a new device-local buffer through a staging
// copy. It waits for the queue to drain, so it is for setup-time uploads
// only.
func (f *ResourceFactory) UploadBuffer(data []byte, usage vk.BufferUsageFlags) (*Buffer, error) {
	if len(data) == 0 {
		return nil, errors.New("upload of an empty buffer")
	}
	size := uint64(len(data))
	staging, err := f.CreateBuffer(size,
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return nil, errors.Wrap(err, "create staging buffer")
	}
	defer staging.Destroy()

	if err := f.WriteBuffer(staging, data); err != nil {
		return nil, err
	}

	dst, err := f.CreateBuffer(size,
		usage|vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return nil, err
	}
	err = f.OneShot(func(cb hal.CommandBuffer) {
		f.ctx.Driver.CmdCopyBuffer(cb, staging.Handle, dst.Handle, size)
	})
	if err != nil {
		dst.Destroy()
		return nil, err
	}
	return dst, nil
}

// OneShot records fn into a temporary command buffer, submits it on the
// graphics queue and waits for the queue to go idle.
func (f *ResourceFactory) OneShot(fn func(cb hal.CommandBuffer)) error {
	drv, dev := f.ctx.Driver, f.ctx.Device
	cbs, err := drv.AllocateCommandBuffers(dev, f.upload, 1)
	if err != nil {
		return errors.Wrap(err, "allocate one-shot command buffer")
	}
	defer drv.FreeCommandBuffers(dev, f.upload, cbs)

	cb := cbs[0]
	if err := drv.BeginCommandBuffer(cb, true); err != nil {
		return errors.Wrap(err, "begin one-shot command buffer")
	}
	fn(cb)
	if err := drv.EndCommandBuffer(cb); err != nil {
		return errors.Wrap(err, "end one-shot command buffer")
	}
	if err := drv.QueueSubmit(f.ctx.GraphicsQueue, hal.SubmitDescriptor{CommandBuffers: cbs}, hal.Null); err != nil {
		return errors.Wrap(err, "submit one-shot command buffer")
	}
	return errors.Wrap(drv.QueueWaitIdle(f.ctx.GraphicsQueue), "wait for one-shot command buffer")
}

type ImageOptions struct {
	Format vk.Format
	Extent hal.Extent2D
	Usage  vk.ImageUsageFlags
}

// Image is a 2D color image with its memory and a full view.
type Image struct {
	ctx    *DeviceContext
	Handle hal.Image
	Memory hal.Memory
	View   hal.ImageView
	Format vk.Format
	Extent hal.Extent2D
}

func (img *Image) Destroy() {
	if img == nil || img.Handle == hal.Null {
		return
	}
	drv, dev := img.ctx.Driver, img.ctx.Device
	drv.DestroyImageView(dev, img.View)
	drv.DestroyImage(dev, img.Handle)
	drv.FreeMemory(dev, img.Memory)
	img.Handle, img.Memory, img.View = hal.Null, hal.Null, hal.Null
}

func (f *ResourceFactory) CreateImage(opts ImageOptions, props vk.MemoryPropertyFlags) (out *Image, err error) {
	drv, dev := f.ctx.Driver, f.ctx.Device
	var rel releaser
	defer func() {
		if err != nil {
			rel.release()
		}
	}()

	handle, err := drv.CreateImage(dev, hal.ImageDescriptor{
		Format: opts.Format,
		Extent: opts.Extent,
		Usage:  opts.Usage,
		Tiling: vk.ImageTilingOptimal,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create image")
	}
	rel.push(func() { drv.DestroyImage(dev, handle) })

	mem, err := f.allocate(drv.ImageMemoryRequirements(dev, handle), props)
	if err != nil {
		return nil, err
	}
	rel.push(func() { drv.FreeMemory(dev, mem) })

	if err = drv.BindImageMemory(dev, handle, mem, 0); err != nil {
		return nil, errors.Wrap(err, "bind image memory")
	}

	view, err := drv.CreateImageView(dev, hal.ImageViewDescriptor{
		Image:  handle,
		Format: opts.Format,
		Aspect: vk.ImageAspectFlags(vk.ImageAspectColorBit),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create image view")
	}
	return &Image{
		ctx:    f.ctx,
		Handle: handle,
		Memory: mem,
		View:   view,
		Format: opts.Format,
		Extent: opts.Extent,
	}, nil
}

// Transition records a full-image layout barrier.
func (img *Image) Transition(cb hal.CommandBuffer, src, dst vk.PipelineStageFlags, barrier hal.ImageBarrier) {
	barrier.Image = img.Handle
	img.ctx.Driver.CmdPipelineBarrier(cb, src, dst, []hal.ImageBarrier{barrier})
}

type SamplerOptions struct {
	Filter      vk.Filter
	AddressMode vk.SamplerAddressMode
	BorderColor vk.BorderColor
}

type Sampler struct {
	ctx    *DeviceContext
	Handle hal.Sampler
}

func (s *Sampler) Destroy() {
	if s == nil || s.Handle == hal.Null {
		return
	}
	s.ctx.Driver.DestroySampler(s.ctx.Device, s.Handle)
	s.Handle = hal.Null
}

func (f *ResourceFactory) CreateSampler(opts SamplerOptions) (*Sampler, error) {
	handle, err := f.ctx.Driver.CreateSampler(f.ctx.Device, hal.SamplerDescriptor{
		MagFilter:   opts.Filter,
		MinFilter:   opts.Filter,
		AddressMode: opts.AddressMode,
		BorderColor: opts.BorderColor,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create sampler")
	}
	return &Sampler{ctx: f.ctx, Handle: handle}, nil
}

// DescriptorSet is one set with its layout and a pool sized for it alone.
type DescriptorSet struct {
	ctx    *DeviceContext
	Layout hal.DescriptorSetLayout
	Pool   hal.DescriptorPool
	Handle hal.DescriptorSet
}

func (s *DescriptorSet) Destroy() {
	if s == nil || s.Pool == hal.Null {
		return
	}
	drv, dev := s.ctx.Driver, s.ctx.Device
	drv.DestroyDescriptorPool(dev, s.Pool)
	drv.DestroyDescriptorSetLayout(dev, s.Layout)
	s.Pool, s.Layout, s.Handle = hal.Null, hal.Null, hal.Null
}

func (f *ResourceFactory) CreateDescriptorSet(bindings []hal.DescriptorBinding) (set *DescriptorSet, err error) {
	drv, dev := f.ctx.Driver, f.ctx.Device
	var rel releaser
	defer func() {
		if err != nil {
			rel.release()
		}
	}()

	layout, err := drv.CreateDescriptorSetLayout(dev, bindings)
	if err != nil {
		return nil, errors.Wrap(err, "create descriptor set layout")
	}
	rel.push(func() { drv.DestroyDescriptorSetLayout(dev, layout) })

	counts := map[vk.DescriptorType]uint32{}
	var order []vk.DescriptorType
	for _, b := range bindings {
		if _, seen := counts[b.Type]; !seen {
			order = append(order, b.Type)
		}
		n := b.Count
		if n == 0 {
			n = 1
		}
		counts[b.Type] += n
	}
	sizes := make([]hal.DescriptorPoolSize, 0, len(order))
	for _, t := range order {
		sizes = append(sizes, hal.DescriptorPoolSize{Type: t, Count: counts[t]})
	}

	pool, err := drv.CreateDescriptorPool(dev, 1, sizes)
	if err != nil {
		return nil, errors.Wrap(err, "create descriptor pool")
	}
	rel.push(func() { drv.DestroyDescriptorPool(dev, pool) })

	handle, err := drv.AllocateDescriptorSet(dev, pool, layout)
	if err != nil {
		return nil, errors.Wrap(err, "allocate descriptor set")
	}
	return &DescriptorSet{ctx: f.ctx, Layout: layout, Pool: pool, Handle: handle}, nil
}

// WriteImage points binding at an image view, with an optional sampler.
func (s *DescriptorSet) WriteImage(binding uint32, typ vk.DescriptorType, sampler hal.Sampler, view hal.ImageView, layout vk.ImageLayout) {
	s.ctx.Driver.UpdateDescriptorSets(s.ctx.Device, []hal.DescriptorWrite{{
		Set:     s.Handle,
		Binding: binding,
		Type:    typ,
		Sampler: sampler,
		View:    view,
		Layout:  layout,
	}})
}

// WriteBuffer points binding at a whole buffer.
func (s *DescriptorSet) WriteBuffer(binding uint32, typ vk.DescriptorType, buf *Buffer) {
	s.ctx.Driver.UpdateDescriptorSets(s.ctx.Device, []hal.DescriptorWrite{{
		Set:     s.Handle,
		Binding: binding,
		Type:    typ,
		Buffer:  buf.Handle,
		Range:   buf.Size,
	}})
}
