package vulkan

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselrt/hal"
)

func (d *Driver) CreateShaderModule(h hal.Device, code []byte) (hal.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return hal.Null, errors.Errorf("vulkan: shader code size %d is not a multiple of 4", len(code))
	}
	var module vk.ShaderModule
	ret := vk.CreateShaderModule(d.device(h), &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    sliceUint32(code),
	}, nil, &module)
	if ret != vk.Success {
		return hal.Null, newError("CreateShaderModule", ret)
	}
	return hal.ShaderModule(d.modules.put(module)), nil
}

func (d *Driver) DestroyShaderModule(h hal.Device, m hal.ShaderModule) {
	if module, ok := d.modules.take(uint64(m)); ok {
		vk.DestroyShaderModule(d.device(h), module, nil)
	}
}

func (d *Driver) CreatePipelineLayout(h hal.Device, sets []hal.DescriptorSetLayout, ranges []hal.PushConstantRange) (hal.PipelineLayout, error) {
	setLayouts := make([]vk.DescriptorSetLayout, len(sets))
	for i, s := range sets {
		setLayouts[i] = d.setLayouts.get(uint64(s))
	}
	pushRanges := make([]vk.PushConstantRange, len(ranges))
	for i, r := range ranges {
		pushRanges[i] = vk.PushConstantRange{StageFlags: r.Stages, Offset: r.Offset, Size: r.Size}
	}
	var layout vk.PipelineLayout
	ret := vk.CreatePipelineLayout(d.device(h), &vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(pushRanges)),
		PPushConstantRanges:    pushRanges,
	}, nil, &layout)
	if ret != vk.Success {
		return hal.Null, newError("CreatePipelineLayout", ret)
	}
	return hal.PipelineLayout(d.layouts.put(layout)), nil
}

func (d *Driver) DestroyPipelineLayout(h hal.Device, l hal.PipelineLayout) {
	if layout, ok := d.layouts.take(uint64(l)); ok {
		vk.DestroyPipelineLayout(d.device(h), layout, nil)
	}
}

func references(refs []hal.AttachmentReference) []vk.AttachmentReference {
	if len(refs) == 0 {
		return nil
	}
	out := make([]vk.AttachmentReference, len(refs))
	for i, r := range refs {
		out[i] = vk.AttachmentReference{Attachment: r.Attachment, Layout: r.Layout}
	}
	return out
}

func (d *Driver) CreateRenderPass(h hal.Device, desc hal.RenderPassDescriptor) (hal.RenderPass, error) {
	attachments := make([]vk.AttachmentDescription, len(desc.Attachments))
	for i, a := range desc.Attachments {
		samples := a.Samples
		if samples == 0 {
			samples = vk.SampleCount1Bit
		}
		attachments[i] = vk.AttachmentDescription{
			Format:         a.Format,
			Samples:        samples,
			LoadOp:         a.LoadOp,
			StoreOp:        a.StoreOp,
			StencilLoadOp:  a.StencilLoadOp,
			StencilStoreOp: a.StencilStoreOp,
			InitialLayout:  a.InitialLayout,
			FinalLayout:    a.FinalLayout,
		}
	}

	subpasses := make([]vk.SubpassDescription, len(desc.Subpasses))
	for i, s := range desc.Subpasses {
		colors := references(s.Colors)
		inputs := references(s.Inputs)
		subpasses[i] = vk.SubpassDescription{
			PipelineBindPoint:       vk.PipelineBindPointGraphics,
			InputAttachmentCount:    uint32(len(inputs)),
			PInputAttachments:       inputs,
			ColorAttachmentCount:    uint32(len(colors)),
			PColorAttachments:       colors,
			PreserveAttachmentCount: uint32(len(s.Preserve)),
			PPreserveAttachments:    s.Preserve,
		}
	}

	deps := make([]vk.SubpassDependency, len(desc.Dependencies))
	for i, dep := range desc.Dependencies {
		deps[i] = vk.SubpassDependency{
			SrcSubpass:      dep.SrcSubpass,
			DstSubpass:      dep.DstSubpass,
			SrcStageMask:    dep.SrcStages,
			DstStageMask:    dep.DstStages,
			SrcAccessMask:   dep.SrcAccess,
			DstAccessMask:   dep.DstAccess,
			DependencyFlags: dep.Flags,
		}
	}

	var rp vk.RenderPass
	ret := vk.CreateRenderPass(d.device(h), &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(deps)),
		PDependencies:   deps,
	}, nil, &rp)
	if ret != vk.Success {
		return hal.Null, newError("CreateRenderPass", ret)
	}
	return hal.RenderPass(d.renderPass.put(rp)), nil
}

func (d *Driver) DestroyRenderPass(h hal.Device, rp hal.RenderPass) {
	if pass, ok := d.renderPass.take(uint64(rp)); ok {
		vk.DestroyRenderPass(d.device(h), pass, nil)
	}
}

func (d *Driver) shaderStage(s hal.ShaderStageDescriptor) vk.PipelineShaderStageCreateInfo {
	entry := s.Entry
	if entry == "" {
		entry = "main"
	}
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  s.Stage,
		Module: d.modules.get(uint64(s.Module)),
		PName:  safeString(entry),
	}
}

// pipelineBuilder holds the fixed-function state of a graphics pipeline
// without vertex input: the renderer draws generated full-screen
// triangles, so only the viewport and the attachment count vary.
type pipelineBuilder struct {
	stages        []vk.PipelineShaderStageCreateInfo
	vertexInput   vk.PipelineVertexInputStateCreateInfo
	inputAssembly vk.PipelineInputAssemblyStateCreateInfo
	viewport      vk.Viewport
	scissor       vk.Rect2D
	rasterizer    vk.PipelineRasterizationStateCreateInfo
	blend         []vk.PipelineColorBlendAttachmentState
	multisampling vk.PipelineMultisampleStateCreateInfo
}

func (d *Driver) newPipelineBuilder(desc hal.GraphicsPipelineDescriptor) *pipelineBuilder {
	pb := &pipelineBuilder{}
	for _, s := range desc.Stages {
		pb.stages = append(pb.stages, d.shaderStage(s))
	}
	pb.vertexInput = vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}

	topology := desc.Topology
	if topology == 0 {
		topology = vk.PrimitiveTopologyTriangleList
	}
	pb.inputAssembly = vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               topology,
		PrimitiveRestartEnable: vk.False,
	}

	pb.viewport = vk.Viewport{
		Width:    float32(desc.Extent.Width),
		Height:   float32(desc.Extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
	pb.scissor = vk.Rect2D{Offset: vk.Offset2D{}, Extent: extent(desc.Extent)}

	pb.rasterizer = vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		CullMode:                desc.CullMode,
		FrontFace:               desc.FrontFace,
		DepthBiasEnable:         vk.False,
		LineWidth:               1.0,
	}

	pb.multisampling = vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		SampleShadingEnable:  vk.False,
		MinSampleShading:     1.0,
	}

	count := desc.ColorAttachments
	if count == 0 {
		count = 1
	}
	for i := uint32(0); i < count; i++ {
		pb.blend = append(pb.blend, vk.PipelineColorBlendAttachmentState{
			BlendEnable: vk.False,
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
				vk.ColorComponentBBit | vk.ColorComponentABit),
		})
	}
	return pb
}

func (pb *pipelineBuilder) createInfo(desc hal.GraphicsPipelineDescriptor, layout vk.PipelineLayout, rp vk.RenderPass) vk.GraphicsPipelineCreateInfo {
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports:    []vk.Viewport{pb.viewport},
		ScissorCount:  1,
		PScissors:     []vk.Rect2D{pb.scissor},
	}
	blendState := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(pb.blend)),
		PAttachments:    pb.blend,
	}
	return vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(pb.stages)),
		PStages:             pb.stages,
		PVertexInputState:   &pb.vertexInput,
		PInputAssemblyState: &pb.inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &pb.rasterizer,
		PMultisampleState:   &pb.multisampling,
		PColorBlendState:    &blendState,
		Layout:              layout,
		RenderPass:          rp,
		Subpass:             desc.Subpass,
	}
}

func (d *Driver) CreateGraphicsPipeline(h hal.Device, desc hal.GraphicsPipelineDescriptor) (hal.Pipeline, error) {
	pb := d.newPipelineBuilder(desc)
	info := pb.createInfo(desc, d.layouts.get(uint64(desc.Layout)), d.renderPass.get(uint64(desc.RenderPass)))

	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateGraphicsPipelines(d.device(h), vk.PipelineCache(vk.NullHandle), 1,
		[]vk.GraphicsPipelineCreateInfo{info}, nil, pipelines)
	if ret != vk.Success {
		return hal.Null, newError("CreateGraphicsPipelines", ret)
	}
	return hal.Pipeline(d.pipelines.put(pipelines[0])), nil
}

func (d *Driver) CreateComputePipeline(h hal.Device, desc hal.ComputePipelineDescriptor) (hal.Pipeline, error) {
	info := vk.ComputePipelineCreateInfo{
		SType:  vk.StructureTypeComputePipelineCreateInfo,
		Stage:  d.shaderStage(desc.Stage),
		Layout: d.layouts.get(uint64(desc.Layout)),
	}
	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateComputePipelines(d.device(h), vk.PipelineCache(vk.NullHandle), 1,
		[]vk.ComputePipelineCreateInfo{info}, nil, pipelines)
	if ret != vk.Success {
		return hal.Null, newError("CreateComputePipelines", ret)
	}
	return hal.Pipeline(d.pipelines.put(pipelines[0])), nil
}

func (d *Driver) DestroyPipeline(h hal.Device, p hal.Pipeline) {
	if pipeline, ok := d.pipelines.take(uint64(p)); ok {
		vk.DestroyPipeline(d.device(h), pipeline, nil)
	}
}

func (d *Driver) CreateFramebuffer(h hal.Device, desc hal.FramebufferDescriptor) (hal.Framebuffer, error) {
	views := make([]vk.ImageView, len(desc.Attachments))
	for i, v := range desc.Attachments {
		views[i] = d.views.get(uint64(v))
	}
	layers := desc.Layers
	if layers == 0 {
		layers = 1
	}
	var fb vk.Framebuffer
	ret := vk.CreateFramebuffer(d.device(h), &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      d.renderPass.get(uint64(desc.RenderPass)),
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           desc.Extent.Width,
		Height:          desc.Extent.Height,
		Layers:          layers,
	}, nil, &fb)
	if ret != vk.Success {
		return hal.Null, newError("CreateFramebuffer", ret)
	}
	return hal.Framebuffer(d.framebuffer.put(fb)), nil
}

func (d *Driver) DestroyFramebuffer(h hal.Device, fb hal.Framebuffer) {
	if framebuffer, ok := d.framebuffer.take(uint64(fb)); ok {
		vk.DestroyFramebuffer(d.device(h), framebuffer, nil)
	}
}
