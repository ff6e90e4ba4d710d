package dieselrt

import (
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
	"gopkg.in/yaml.v3"

	"github.com/andewx/dieselrt/hal"
)

// MaxPassAttachments bounds the color outputs and the inputs of one pass.
const MaxPassAttachments = 8

type AttachmentSource string

const (
	// SourceTransient attachments live only inside the render pass.
	SourceTransient AttachmentSource = "transient"
	// SourceBackbuffer is the swapchain image being presented.
	SourceBackbuffer AttachmentSource = "backbuffer"
)

type GraphAttachment struct {
	Name   string           `yaml:"name"`
	Source AttachmentSource `yaml:"source"`
	// Format names a transient attachment's format: rgba8, bgra8, rgba16f
	// or rgba32f. Backbuffers take the swapchain format.
	Format string `yaml:"format,omitempty"`
}

type GraphShader struct {
	Path  string `yaml:"path"`
	Entry string `yaml:"entry,omitempty"`
	Stage string `yaml:"stage"`
}

// GraphPipeline is a fullscreen draw of up to a vertex and a fragment
// shader.
type GraphPipeline struct {
	Shaders []GraphShader `yaml:"shaders"`
}

type GraphPass struct {
	Name         string          `yaml:"name"`
	ColorOutputs []int           `yaml:"color_outputs"`
	ColorInputs  []int           `yaml:"color_inputs,omitempty"`
	Pipelines    []GraphPipeline `yaml:"pipelines"`
}

// GraphDescriptor describes a static frame graph: attachments and the
// passes that write and read them, in execution order.
type GraphDescriptor struct {
	Attachments []GraphAttachment `yaml:"attachments"`
	Passes      []GraphPass       `yaml:"passes"`
}

// DefaultGraph is the single composition pass drawing into the backbuffer.
func DefaultGraph(vertex, fragment string) GraphDescriptor {
	return GraphDescriptor{
		Attachments: []GraphAttachment{{Name: "backbuffer", Source: SourceBackbuffer}},
		Passes: []GraphPass{{
			Name:         "composite",
			ColorOutputs: []int{0},
			Pipelines: []GraphPipeline{{Shaders: []GraphShader{
				{Path: vertex, Stage: StageVertex.String()},
				{Path: fragment, Stage: StageFragment.String()},
			}}},
		}},
	}
}

// LoadGraph reads a YAML graph file. Shader paths may start with ~.
func LoadGraph(path string) (GraphDescriptor, error) {
	var desc GraphDescriptor
	path, err := homedir.Expand(path)
	if err != nil {
		return desc, errors.Wrap(err, "expand graph path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return desc, errors.Wrap(err, "read graph")
	}
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return desc, errors.Wrapf(err, "decode graph %s", path)
	}
	for pi := range desc.Passes {
		for qi := range desc.Passes[pi].Pipelines {
			shaders := desc.Passes[pi].Pipelines[qi].Shaders
			for si := range shaders {
				if shaders[si].Path, err = homedir.Expand(shaders[si].Path); err != nil {
					return desc, errors.Wrap(err, "expand shader path")
				}
			}
		}
	}
	return desc, desc.Validate()
}

func parseAttachmentFormat(name string) (vk.Format, error) {
	switch strings.ToLower(name) {
	case "", "rgba8":
		return vk.FormatR8g8b8a8Unorm, nil
	case "bgra8":
		return vk.FormatB8g8r8a8Unorm, nil
	case "rgba16f":
		return vk.FormatR16g16b16a16Sfloat, nil
	case "rgba32f":
		return vk.FormatR32g32b32a32Sfloat, nil
	}
	return vk.FormatUndefined, errors.Errorf("unknown attachment format %q", name)
}

// Validate checks indices, per-pass limits and that every input was
// written by an earlier pass.
func (g GraphDescriptor) Validate() error {
	if len(g.Passes) == 0 {
		return errors.New("graph has no passes")
	}
	backbuffers := 0
	for i, a := range g.Attachments {
		switch a.Source {
		case SourceBackbuffer:
			backbuffers++
		case SourceTransient:
			if _, err := parseAttachmentFormat(a.Format); err != nil {
				return errors.Wrapf(err, "attachment %d %q", i, a.Name)
			}
		default:
			return errors.Errorf("attachment %d %q has unknown source %q", i, a.Name, a.Source)
		}
	}
	if backbuffers != 1 {
		return errors.Errorf("graph needs exactly one backbuffer attachment, has %d", backbuffers)
	}

	n := len(g.Attachments)
	written := make([]bool, n)
	for pi, p := range g.Passes {
		if len(p.ColorOutputs) == 0 {
			return errors.Errorf("pass %q writes no attachment", p.Name)
		}
		if len(p.ColorOutputs) > MaxPassAttachments || len(p.ColorInputs) > MaxPassAttachments {
			return errors.Errorf("pass %q exceeds %d inputs or outputs", p.Name, MaxPassAttachments)
		}
		outputs := map[int]bool{}
		for _, idx := range p.ColorOutputs {
			if idx < 0 || idx >= n {
				return errors.Wrapf(ErrAttachmentIndex, "pass %d output %d, %d attachments", pi, idx, n)
			}
			outputs[idx] = true
		}
		for _, idx := range p.ColorInputs {
			if idx < 0 || idx >= n {
				return errors.Wrapf(ErrAttachmentIndex, "pass %d input %d, %d attachments", pi, idx, n)
			}
			if g.Attachments[idx].Source != SourceTransient {
				return errors.Errorf("pass %q reads the backbuffer", p.Name)
			}
			if outputs[idx] {
				return errors.Errorf("pass %q reads and writes attachment %d", p.Name, idx)
			}
			if !written[idx] {
				return errors.Errorf("pass %q reads attachment %d before any pass writes it", p.Name, idx)
			}
		}
		if len(p.Pipelines) == 0 {
			return errors.Errorf("pass %q has no pipelines", p.Name)
		}
		for _, pl := range p.Pipelines {
			if len(pl.Shaders) == 0 || len(pl.Shaders) > 2 {
				return errors.Wrapf(ErrShaderStages, "pass %q pipeline with %d shaders", p.Name, len(pl.Shaders))
			}
			for _, s := range pl.Shaders {
				if _, err := ParseShaderStage(s.Stage); err != nil {
					return errors.Wrapf(err, "pass %q", p.Name)
				}
			}
		}
		for idx := range outputs {
			written[idx] = true
		}
	}
	return nil
}

// CompileGraph turns the graph into one render pass with a subpass per
// pass, in order. Each input depends on the last pass that wrote it, and
// the subpasses in between preserve it. Consecutive writers of one
// attachment are ordered too. The external dependency targets the first
// pass that writes the backbuffer.
func CompileGraph(g GraphDescriptor, backbufferFormat vk.Format) (RenderPassDescriptor, error) {
	var desc RenderPassDescriptor
	if err := g.Validate(); err != nil {
		return desc, err
	}

	backbuffer := -1
	for i, a := range g.Attachments {
		att := AttachmentDescriptor{
			LoadOp:        vk.AttachmentLoadOpClear,
			InitialLayout: vk.ImageLayoutUndefined,
		}
		if a.Source == SourceBackbuffer {
			backbuffer = i
			att.Format = backbufferFormat
			att.StoreOp = vk.AttachmentStoreOpStore
			att.FinalLayout = vk.ImageLayoutPresentSrc
		} else {
			att.Format, _ = parseAttachmentFormat(a.Format)
			att.StoreOp = vk.AttachmentStoreOpDontCare
			att.FinalLayout = vk.ImageLayoutColorAttachmentOptimal
		}
		desc.Attachments = append(desc.Attachments, att)
	}

	lastWriter := make([]int, len(g.Attachments))
	for i := range lastWriter {
		lastWriter[i] = -1
	}
	type edge struct{ src, dst int }
	deps := map[edge]int{}
	depend := func(e edge, src, dst vk.PipelineStageFlagBits, srcAccess, dstAccess vk.AccessFlagBits) {
		i, ok := deps[e]
		if !ok {
			i = len(desc.Dependencies)
			deps[e] = i
			desc.Dependencies = append(desc.Dependencies, hal.SubpassDependency{
				SrcSubpass: uint32(e.src),
				DstSubpass: uint32(e.dst),
				Flags:      vk.DependencyFlags(vk.DependencyByRegionBit),
			})
		}
		d := &desc.Dependencies[i]
		d.SrcStages |= vk.PipelineStageFlags(src)
		d.DstStages |= vk.PipelineStageFlags(dst)
		d.SrcAccess |= vk.AccessFlags(srcAccess)
		d.DstAccess |= vk.AccessFlags(dstAccess)
	}

	type read struct{ writer, reader, attachment int }
	var reads []read
	presentSet := false

	for pi, p := range g.Passes {
		var sp SubpassDescriptor
		for _, idx := range p.ColorOutputs {
			sp.Colors = append(sp.Colors, hal.AttachmentReference{
				Attachment: uint32(idx),
				Layout:     vk.ImageLayoutColorAttachmentOptimal,
			})
			if idx == backbuffer && !presentSet {
				desc.PresentSubpass = uint32(pi)
				presentSet = true
			}
			if w := lastWriter[idx]; w >= 0 && w != pi {
				depend(edge{w, pi},
					vk.PipelineStageColorAttachmentOutputBit, vk.PipelineStageColorAttachmentOutputBit,
					vk.AccessColorAttachmentWriteBit, vk.AccessColorAttachmentReadBit|vk.AccessColorAttachmentWriteBit)
			}
		}
		for _, idx := range p.ColorInputs {
			sp.Inputs = append(sp.Inputs, hal.AttachmentReference{
				Attachment: uint32(idx),
				Layout:     vk.ImageLayoutShaderReadOnlyOptimal,
			})
			w := lastWriter[idx]
			depend(edge{w, pi},
				vk.PipelineStageColorAttachmentOutputBit, vk.PipelineStageFragmentShaderBit,
				vk.AccessColorAttachmentWriteBit, vk.AccessInputAttachmentReadBit)
			reads = append(reads, read{w, pi, idx})
		}
		desc.Subpasses = append(desc.Subpasses, sp)
		for _, idx := range p.ColorOutputs {
			lastWriter[idx] = pi
		}
	}

	for _, r := range reads {
		for s := r.writer + 1; s < r.reader; s++ {
			if !g.Passes[s].references(r.attachment) && !desc.Subpasses[s].preserves(r.attachment) {
				desc.Subpasses[s].Preserve = append(desc.Subpasses[s].Preserve, uint32(r.attachment))
			}
		}
	}
	return desc, nil
}

func (p GraphPass) references(attachment int) bool {
	for _, idx := range p.ColorOutputs {
		if idx == attachment {
			return true
		}
	}
	for _, idx := range p.ColorInputs {
		if idx == attachment {
			return true
		}
	}
	return false
}

func (sp SubpassDescriptor) preserves(attachment int) bool {
	for _, idx := range sp.Preserve {
		if int(idx) == attachment {
			return true
		}
	}
	return false
}

// ShaderLoader resolves a shader path to byte code.
type ShaderLoader interface {
	Load(path string, stage ShaderStage, entry string) (ShaderCode, error)
}

// GraphTargets are the swapchain-dependent inputs of BuildGraph.
type GraphTargets struct {
	Views  []hal.ImageView
	Format vk.Format
	Extent hal.Extent2D
	// SetLayouts are bound before a pass's input-attachment set, in every
	// pipeline of the graph.
	SetLayouts []hal.DescriptorSetLayout
}

type graphPass struct {
	pipelines []*Pipeline
	inputs    *DescriptorSet
}

// Graph is a compiled render graph with its GPU objects.
type Graph struct {
	builder      *PassBuilder
	RenderPass   *RenderPass
	Framebuffers []hal.Framebuffer
	passes       []graphPass
	transient    []*Image
	clears       [][4]float32
	extent       hal.Extent2D
}

// BuildGraph compiles g and creates its render pass, the transient
// attachments, one framebuffer per backbuffer view and the pipelines.
func (b *PassBuilder) BuildGraph(g GraphDescriptor, res *ResourceFactory, loader ShaderLoader, targets GraphTargets) (_ *Graph, err error) {
	rpDesc, err := CompileGraph(g, targets.Format)
	if err != nil {
		Logger().Error("invalid render graph", "err", err)
		return nil, err
	}
	graph := &Graph{builder: b, extent: targets.Extent}
	defer func() {
		if err != nil {
			graph.Destroy()
		}
	}()

	if graph.RenderPass, err = b.CreateRenderPass(rpDesc); err != nil {
		return nil, err
	}

	// attachment views in render pass order, with the backbuffer slot
	// filled per framebuffer
	views := make([]hal.ImageView, len(g.Attachments))
	backbuffer := -1
	transientViews := map[int]hal.ImageView{}
	for i, a := range g.Attachments {
		graph.clears = append(graph.clears, [4]float32{1, 0, 0, 1})
		if a.Source == SourceBackbuffer {
			backbuffer = i
			continue
		}
		img, err := res.CreateImage(ImageOptions{
			Format: rpDesc.Attachments[i].Format,
			Extent: targets.Extent,
			Usage:  vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageInputAttachmentBit | vk.ImageUsageTransientAttachmentBit),
		}, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
		if err != nil {
			return nil, errors.Wrapf(err, "create transient attachment %q", a.Name)
		}
		graph.transient = append(graph.transient, img)
		views[i] = img.View
		transientViews[i] = img.View
	}

	for _, view := range targets.Views {
		views[backbuffer] = view
		fb, err := b.CreateFramebuffer(graph.RenderPass, append([]hal.ImageView(nil), views...), targets.Extent)
		if err != nil {
			return nil, err
		}
		graph.Framebuffers = append(graph.Framebuffers, fb)
	}

	for pi, p := range g.Passes {
		var gp graphPass
		layouts := append([]hal.DescriptorSetLayout(nil), targets.SetLayouts...)
		if len(p.ColorInputs) > 0 {
			bindings := make([]hal.DescriptorBinding, len(p.ColorInputs))
			for i := range p.ColorInputs {
				bindings[i] = hal.DescriptorBinding{
					Binding: uint32(i),
					Type:    vk.DescriptorTypeInputAttachment,
					Count:   1,
					Stages:  vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
				}
			}
			if gp.inputs, err = res.CreateDescriptorSet(bindings); err != nil {
				return nil, errors.Wrapf(err, "pass %q input set", p.Name)
			}
			for i, idx := range p.ColorInputs {
				gp.inputs.WriteImage(uint32(i), vk.DescriptorTypeInputAttachment, hal.Null, transientViews[idx], vk.ImageLayoutShaderReadOnlyOptimal)
			}
			layouts = append(layouts, gp.inputs.Layout)
		}
		graph.passes = append(graph.passes, gp)

		for _, pl := range p.Pipelines {
			shaders := make([]ShaderCode, 0, len(pl.Shaders))
			for _, s := range pl.Shaders {
				stage, _ := ParseShaderStage(s.Stage)
				code, err := loader.Load(s.Path, stage, s.Entry)
				if err != nil {
					return nil, errors.Wrapf(err, "pass %q", p.Name)
				}
				shaders = append(shaders, code)
			}
			pipe, err := b.CreateGraphicsPipeline(GraphicsPipelineDescriptor{
				Shaders:          shaders,
				SetLayouts:       layouts,
				RenderPass:       graph.RenderPass,
				Subpass:          uint32(pi),
				ColorAttachments: uint32(len(p.ColorOutputs)),
			}, targets.Extent)
			if err != nil {
				return nil, errors.Wrapf(err, "pass %q", p.Name)
			}
			graph.passes[pi].pipelines = append(graph.passes[pi].pipelines, pipe)
		}
	}
	Logger().Debug("render graph built", "passes", len(g.Passes), "attachments", len(g.Attachments))
	return graph, nil
}

// Record draws every pass into the framebuffer of imageIndex. Pipelines
// get sets bound first, followed by the pass's input-attachment set.
func (g *Graph) Record(cb hal.CommandBuffer, imageIndex uint32, sets ...hal.DescriptorSet) {
	drv := g.builder.ctx.Driver
	drv.CmdBeginRenderPass(cb, hal.RenderPassBegin{
		RenderPass:  g.RenderPass.Handle,
		Framebuffer: g.Framebuffers[imageIndex],
		Area:        g.extent,
		ClearColors: g.clears,
	})
	for i, p := range g.passes {
		if i > 0 {
			drv.CmdNextSubpass(cb)
		}
		bound := sets
		if p.inputs != nil {
			bound = append(append([]hal.DescriptorSet(nil), sets...), p.inputs.Handle)
		}
		for _, pipe := range p.pipelines {
			pipe.Bind(cb, bound...)
			drv.CmdDraw(cb, 3, 1, 0, 0)
		}
	}
	drv.CmdEndRenderPass(cb)
}

// Destroy releases pipelines, input sets, framebuffers, transient images
// and the render pass, in that order.
func (g *Graph) Destroy() {
	if g == nil {
		return
	}
	for i := len(g.passes) - 1; i >= 0; i-- {
		p := g.passes[i]
		for j := len(p.pipelines) - 1; j >= 0; j-- {
			p.pipelines[j].Destroy()
		}
		p.inputs.Destroy()
	}
	g.passes = nil
	g.builder.DestroyFramebuffers(g.Framebuffers)
	g.Framebuffers = nil
	for i := len(g.transient) - 1; i >= 0; i-- {
		g.transient[i].Destroy()
	}
	g.transient = nil
	g.RenderPass.Destroy()
	g.RenderPass = nil
}
