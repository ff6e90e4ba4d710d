package dieselrt

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselrt/hal"
)

// GraphicsPipelineDescriptor varies only the shaders, the layout and the
// pass. Fixed-function state is the fullscreen composition setup: no
// vertex input, triangle list, one viewport and scissor covering the
// extent, front-face culling with counter-clockwise winding, no blending.
type GraphicsPipelineDescriptor struct {
	Shaders          []ShaderCode
	SetLayouts       []hal.DescriptorSetLayout
	PushConstants    []hal.PushConstantRange
	RenderPass       *RenderPass
	Subpass          uint32
	// ColorAttachments is the subpass's color output count, 1 when zero.
	ColorAttachments uint32
}

type ComputePipelineDescriptor struct {
	Shader        ShaderCode
	SetLayouts    []hal.DescriptorSetLayout
	PushConstants []hal.PushConstantRange
}

type Pipeline struct {
	ctx       *DeviceContext
	Handle    hal.Pipeline
	Layout    hal.PipelineLayout
	BindPoint vk.PipelineBindPoint
}

func (p *Pipeline) Destroy() {
	if p == nil || p.Handle == hal.Null {
		return
	}
	p.ctx.Driver.DestroyPipeline(p.ctx.Device, p.Handle)
	p.ctx.Driver.DestroyPipelineLayout(p.ctx.Device, p.Layout)
	p.Handle, p.Layout = hal.Null, hal.Null
}

// Bind binds the pipeline and, when given, descriptor sets from set 0.
func (p *Pipeline) Bind(cb hal.CommandBuffer, sets ...hal.DescriptorSet) {
	p.ctx.Driver.CmdBindPipeline(cb, p.BindPoint, p.Handle)
	if len(sets) > 0 {
		p.ctx.Driver.CmdBindDescriptorSets(cb, p.BindPoint, p.Layout, 0, sets)
	}
}

func validateGraphicsStages(shaders []ShaderCode) error {
	if len(shaders) == 0 || len(shaders) > 2 {
		return errors.Wrapf(ErrShaderStages, "graphics pipeline with %d stages", len(shaders))
	}
	seen := map[ShaderStage]bool{}
	for _, s := range shaders {
		if s.Stage == StageCompute || seen[s.Stage] {
			return errors.Wrapf(ErrShaderStages, "graphics pipeline stage %s", s.Stage)
		}
		seen[s.Stage] = true
	}
	if !seen[StageVertex] {
		return errors.Wrap(ErrShaderStages, "graphics pipeline without a vertex stage")
	}
	return nil
}

func (b *PassBuilder) CreateGraphicsPipeline(desc GraphicsPipelineDescriptor, extent hal.Extent2D) (p *Pipeline, err error) {
	defer func() {
		if err != nil {
			Logger().Error("graphics pipeline creation failed", "err", err)
		}
	}()
	if err := validateGraphicsStages(desc.Shaders); err != nil {
		return nil, err
	}
	if desc.RenderPass == nil || desc.RenderPass.Handle == hal.Null {
		return nil, errors.New("graphics pipeline needs a render pass")
	}
	drv, dev := b.ctx.Driver, b.ctx.Device
	colors := desc.ColorAttachments
	if colors == 0 {
		colors = 1
	}

	// modules are only needed while the pipeline is compiled
	var modules releaser
	defer modules.release()
	stages := make([]hal.ShaderStageDescriptor, 0, len(desc.Shaders))
	for _, s := range desc.Shaders {
		m, err := drv.CreateShaderModule(dev, s.Code)
		if err != nil {
			return nil, errors.Wrapf(err, "create %s shader module", s.Stage)
		}
		modules.push(func() { drv.DestroyShaderModule(dev, m) })
		stages = append(stages, hal.ShaderStageDescriptor{Stage: s.Stage.flagBits(), Module: m, Entry: s.entry()})
	}

	layout, err := drv.CreatePipelineLayout(dev, desc.SetLayouts, desc.PushConstants)
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline layout")
	}

	handle, err := drv.CreateGraphicsPipeline(dev, hal.GraphicsPipelineDescriptor{
		Stages:           stages,
		Layout:           layout,
		RenderPass:       desc.RenderPass.Handle,
		Subpass:          desc.Subpass,
		Extent:           extent,
		Topology:         vk.PrimitiveTopologyTriangleList,
		CullMode:         vk.CullModeFlags(vk.CullModeFrontBit),
		FrontFace:        vk.FrontFaceCounterClockwise,
		ColorAttachments: colors,
	})
	if err != nil {
		drv.DestroyPipelineLayout(dev, layout)
		return nil, errors.Wrap(err, "create graphics pipeline")
	}
	return &Pipeline{ctx: b.ctx, Handle: handle, Layout: layout, BindPoint: vk.PipelineBindPointGraphics}, nil
}

func (b *PassBuilder) CreateComputePipeline(desc ComputePipelineDescriptor) (p *Pipeline, err error) {
	defer func() {
		if err != nil {
			Logger().Error("compute pipeline creation failed", "err", err)
		}
	}()
	if desc.Shader.Stage != StageCompute {
		return nil, errors.Wrapf(ErrShaderStages, "compute pipeline stage %s", desc.Shader.Stage)
	}
	drv, dev := b.ctx.Driver, b.ctx.Device

	module, err := drv.CreateShaderModule(dev, desc.Shader.Code)
	if err != nil {
		return nil, errors.Wrap(err, "create compute shader module")
	}
	defer drv.DestroyShaderModule(dev, module)

	layout, err := drv.CreatePipelineLayout(dev, desc.SetLayouts, desc.PushConstants)
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline layout")
	}
	handle, err := drv.CreateComputePipeline(dev, hal.ComputePipelineDescriptor{
		Stage:  hal.ShaderStageDescriptor{Stage: vk.ShaderStageComputeBit, Module: module, Entry: desc.Shader.entry()},
		Layout: layout,
	})
	if err != nil {
		drv.DestroyPipelineLayout(dev, layout)
		return nil, errors.Wrap(err, "create compute pipeline")
	}
	return &Pipeline{ctx: b.ctx, Handle: handle, Layout: layout, BindPoint: vk.PipelineBindPointCompute}, nil
}
