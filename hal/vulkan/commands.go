package vulkan

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselrt/hal"
)

func (d *Driver) cmd(cb hal.CommandBuffer) vk.CommandBuffer { return d.cmdBuffers.get(uint64(cb)) }

func (d *Driver) BeginCommandBuffer(cb hal.CommandBuffer, oneTime bool) error {
	info := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	if oneTime {
		info.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	return newError("BeginCommandBuffer", vk.BeginCommandBuffer(d.cmd(cb), &info))
}

func (d *Driver) EndCommandBuffer(cb hal.CommandBuffer) error {
	return newError("EndCommandBuffer", vk.EndCommandBuffer(d.cmd(cb)))
}

func (d *Driver) CmdPipelineBarrier(cb hal.CommandBuffer, src, dst vk.PipelineStageFlags, barriers []hal.ImageBarrier) {
	list := make([]vk.ImageMemoryBarrier, len(barriers))
	for i, b := range barriers {
		list[i] = vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       b.SrcAccess,
			DstAccessMask:       b.DstAccess,
			OldLayout:           b.OldLayout,
			NewLayout:           b.NewLayout,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               d.images.get(uint64(b.Image)),
			SubresourceRange:    colorRange(),
		}
	}
	vk.CmdPipelineBarrier(d.cmd(cb), src, dst, 0, 0, nil, 0, nil, uint32(len(list)), list)
}

func (d *Driver) CmdBindPipeline(cb hal.CommandBuffer, point vk.PipelineBindPoint, p hal.Pipeline) {
	vk.CmdBindPipeline(d.cmd(cb), point, d.pipelines.get(uint64(p)))
}

func (d *Driver) CmdBindDescriptorSets(cb hal.CommandBuffer, point vk.PipelineBindPoint, layout hal.PipelineLayout, first uint32, sets []hal.DescriptorSet) {
	if len(sets) == 0 {
		return
	}
	list := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		list[i] = d.descSets.get(uint64(s))
	}
	vk.CmdBindDescriptorSets(d.cmd(cb), point, d.layouts.get(uint64(layout)), first,
		uint32(len(list)), list, 0, nil)
}

func (d *Driver) CmdPushConstants(cb hal.CommandBuffer, layout hal.PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(d.cmd(cb), d.layouts.get(uint64(layout)), stages, offset,
		uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (d *Driver) CmdDispatch(cb hal.CommandBuffer, x, y, z uint32) {
	vk.CmdDispatch(d.cmd(cb), x, y, z)
}

func (d *Driver) CmdBeginRenderPass(cb hal.CommandBuffer, begin hal.RenderPassBegin) {
	clears := make([]vk.ClearValue, len(begin.ClearColors))
	for i, c := range begin.ClearColors {
		clears[i] = vk.NewClearValue(c[:])
	}
	vk.CmdBeginRenderPass(d.cmd(cb), &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  d.renderPass.get(uint64(begin.RenderPass)),
		Framebuffer: d.framebuffer.get(uint64(begin.Framebuffer)),
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{},
			Extent: extent(begin.Area),
		},
		ClearValueCount: uint32(len(clears)),
		PClearValues:    clears,
	}, vk.SubpassContentsInline)
}

func (d *Driver) CmdDraw(cb hal.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(d.cmd(cb), vertexCount, instanceCount, firstVertex, firstInstance)
}

func (d *Driver) CmdNextSubpass(cb hal.CommandBuffer) {
	vk.CmdNextSubpass(d.cmd(cb), vk.SubpassContentsInline)
}

func (d *Driver) CmdEndRenderPass(cb hal.CommandBuffer) {
	vk.CmdEndRenderPass(d.cmd(cb))
}

func (d *Driver) CmdCopyBuffer(cb hal.CommandBuffer, src, dst hal.Buffer, size uint64) {
	vk.CmdCopyBuffer(d.cmd(cb), d.buffers.get(uint64(src)), d.buffers.get(uint64(dst)),
		1, []vk.BufferCopy{{Size: vk.DeviceSize(size)}})
}
