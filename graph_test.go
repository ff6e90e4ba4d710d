package dieselrt

import (
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselrt/hal"
	"github.com/andewx/dieselrt/hal/mock"
)

func TestLoadGraph(t *testing.T) {
	g, err := LoadGraph(filepath.Join("testdata", "graph_deferred.yaml"))
	require.NoError(t, err)

	require.Len(t, g.Attachments, 2)
	assert.Equal(t, SourceTransient, g.Attachments[0].Source)
	assert.Equal(t, "rgba16f", g.Attachments[0].Format)
	require.Len(t, g.Passes, 2)
	assert.Equal(t, []int{0}, g.Passes[1].ColorInputs)

	home, err := homedir.Expand("~/shaders/fullscreen.vert.spv")
	require.NoError(t, err)
	assert.Equal(t, home, g.Passes[0].Pipelines[0].Shaders[0].Path)
	assert.Equal(t, "main", g.Passes[1].Pipelines[0].Shaders[1].Entry)
}

func TestLoadGraphRejectsReadBeforeWrite(t *testing.T) {
	_, err := LoadGraph(filepath.Join("testdata", "graph_read_before_write.yaml"))
	assert.ErrorContains(t, err, "before any pass writes it")

	_, err = LoadGraph(filepath.Join("testdata", "missing.yaml"))
	assert.Error(t, err)
}

func TestGraphValidate(t *testing.T) {
	valid := func() GraphDescriptor { return DefaultGraph("a.vert.spv", "a.frag.spv") }
	require.NoError(t, valid().Validate())

	cases := map[string]func(g *GraphDescriptor){
		"no passes":        func(g *GraphDescriptor) { g.Passes = nil },
		"no backbuffer":    func(g *GraphDescriptor) { g.Attachments[0].Source = SourceTransient },
		"two backbuffers":  func(g *GraphDescriptor) { g.Attachments = append(g.Attachments, g.Attachments[0]) },
		"unknown source":   func(g *GraphDescriptor) { g.Attachments[0].Source = "texture" },
		"no outputs":       func(g *GraphDescriptor) { g.Passes[0].ColorOutputs = nil },
		"output range":     func(g *GraphDescriptor) { g.Passes[0].ColorOutputs = []int{3} },
		"negative output":  func(g *GraphDescriptor) { g.Passes[0].ColorOutputs = []int{-1} },
		"reads backbuffer": func(g *GraphDescriptor) { g.Passes[0].ColorInputs = []int{0} },
		"no pipelines":     func(g *GraphDescriptor) { g.Passes[0].Pipelines = nil },
		"bad stage":        func(g *GraphDescriptor) { g.Passes[0].Pipelines[0].Shaders[1].Stage = "geometry" },
		"too many outputs": func(g *GraphDescriptor) {
			g.Passes[0].ColorOutputs = make([]int, MaxPassAttachments+1)
		},
		"bad format": func(g *GraphDescriptor) {
			g.Attachments = append(g.Attachments, GraphAttachment{Name: "x", Source: SourceTransient, Format: "r11g11b10"})
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			g := valid()
			mutate(&g)
			assert.Error(t, g.Validate())
		})
	}

	g := valid()
	g.Passes[0].ColorOutputs = []int{4}
	assert.True(t, errors.Is(g.Validate(), ErrAttachmentIndex))
}

func TestCompileGraph(t *testing.T) {
	g, err := LoadGraph(filepath.Join("testdata", "graph_deferred.yaml"))
	require.NoError(t, err)

	desc, err := CompileGraph(g, vk.FormatB8g8r8a8Unorm)
	require.NoError(t, err)
	require.Len(t, desc.Attachments, 2)
	assert.Equal(t, vk.FormatR16g16b16a16Sfloat, desc.Attachments[0].Format)
	assert.Equal(t, vk.AttachmentStoreOpDontCare, desc.Attachments[0].StoreOp)
	assert.Equal(t, vk.FormatB8g8r8a8Unorm, desc.Attachments[1].Format)
	assert.Equal(t, vk.ImageLayoutPresentSrc, desc.Attachments[1].FinalLayout)

	require.Len(t, desc.Subpasses, 2)
	assert.Equal(t, uint32(0), desc.Subpasses[0].Colors[0].Attachment)
	require.Len(t, desc.Subpasses[1].Inputs, 1)
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, desc.Subpasses[1].Inputs[0].Layout)

	require.Len(t, desc.Dependencies, 1)
	dep := desc.Dependencies[0]
	assert.Equal(t, uint32(0), dep.SrcSubpass)
	assert.Equal(t, uint32(1), dep.DstSubpass)
	assert.Equal(t, vk.AccessFlags(vk.AccessInputAttachmentReadBit), dep.DstAccess)
	assert.Equal(t, uint32(1), desc.PresentSubpass, "backbuffer first written by the second pass")
	require.NoError(t, desc.validate())
}

func TestCompileGraphPreservesAndOrdersWriters(t *testing.T) {
	shader := []GraphPipeline{{Shaders: []GraphShader{{Path: "p.vert", Stage: "vertex"}}}}
	g := GraphDescriptor{
		Attachments: []GraphAttachment{
			{Name: "scene", Source: SourceTransient},
			{Name: "backbuffer", Source: SourceBackbuffer},
		},
		Passes: []GraphPass{
			{Name: "scene", ColorOutputs: []int{0}, Pipelines: shader},
			{Name: "background", ColorOutputs: []int{1}, Pipelines: shader},
			{Name: "composite", ColorOutputs: []int{1}, ColorInputs: []int{0}, Pipelines: shader},
		},
	}
	desc, err := CompileGraph(g, vk.FormatB8g8r8a8Unorm)
	require.NoError(t, err)
	require.NoError(t, desc.validate())

	assert.Empty(t, desc.Subpasses[0].Preserve)
	assert.Equal(t, []uint32{0}, desc.Subpasses[1].Preserve, "scene survives the background pass")
	assert.Empty(t, desc.Subpasses[2].Preserve)
	assert.Equal(t, uint32(1), desc.PresentSubpass)

	byEdge := map[[2]uint32]hal.SubpassDependency{}
	for _, d := range desc.Dependencies {
		byEdge[[2]uint32{d.SrcSubpass, d.DstSubpass}] = d
	}
	require.Len(t, byEdge, 2)

	read, ok := byEdge[[2]uint32{0, 2}]
	require.True(t, ok, "input read waits on its writer")
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), read.DstStages)
	assert.Equal(t, vk.AccessFlags(vk.AccessInputAttachmentReadBit), read.DstAccess)

	write, ok := byEdge[[2]uint32{1, 2}]
	require.True(t, ok, "second backbuffer write waits on the first")
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit), write.SrcStages)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit), write.DstStages)
	assert.Equal(t, vk.AccessFlags(vk.AccessColorAttachmentWriteBit), write.SrcAccess)
	assert.Equal(t, vk.AccessFlags(vk.AccessColorAttachmentReadBit|vk.AccessColorAttachmentWriteBit), write.DstAccess)
	assert.Equal(t, vk.DependencyFlags(vk.DependencyByRegionBit), write.Flags)

	external := desc.translate().Dependencies[0]
	assert.Equal(t, uint32(hal.SubpassExternal), external.SrcSubpass)
	assert.Equal(t, uint32(1), external.DstSubpass)
}

func TestCompileGraphDeduplicatesEdges(t *testing.T) {
	g := GraphDescriptor{
		Attachments: []GraphAttachment{
			{Name: "albedo", Source: SourceTransient},
			{Name: "normal", Source: SourceTransient, Format: "rgba32f"},
			{Name: "backbuffer", Source: SourceBackbuffer},
		},
		Passes: []GraphPass{
			{Name: "gbuffer", ColorOutputs: []int{0, 1}, Pipelines: []GraphPipeline{{Shaders: []GraphShader{{Path: "g.vert", Stage: "vertex"}}}}},
			{Name: "light", ColorOutputs: []int{2}, ColorInputs: []int{0, 1}, Pipelines: []GraphPipeline{{Shaders: []GraphShader{{Path: "l.vert", Stage: "vertex"}}}}},
		},
	}
	desc, err := CompileGraph(g, vk.FormatB8g8r8a8Unorm)
	require.NoError(t, err)
	assert.Len(t, desc.Dependencies, 1)
	assert.Len(t, desc.Subpasses[0].Colors, 2)
}

func TestBuildGraphDefault(t *testing.T) {
	drv, win, ctx := newTestContext(t)
	sc, err := NewSwapchain(ctx, win, SwapchainOptions{FramesInFlight: 2})
	require.NoError(t, err)
	res, err := NewResourceFactory(ctx)
	require.NoError(t, err)
	b := NewPassBuilder(ctx)

	loader := newMapLoader("v.spv", "f.spv")
	g, err := b.BuildGraph(DefaultGraph("v.spv", "f.spv"), res, loader, GraphTargets{
		Views:  sc.Views,
		Format: sc.Format.Format,
		Extent: sc.Extent,
	})
	require.NoError(t, err)
	assert.Len(t, g.Framebuffers, len(sc.Views))
	assert.Equal(t, 1, drv.LiveOf(mock.KindPipeline))
	assert.Equal(t, []string{"v.spv", "f.spv"}, loader.loads)

	drv.ResetCalls()
	g.Record(hal.CommandBuffer(1), 2)
	assert.Equal(t, []string{"CmdBeginRenderPass", "CmdBindPipeline", "CmdDraw", "CmdEndRenderPass"}, drv.Ops())
	begin := drv.Find("CmdBeginRenderPass")[0].Args[0].(hal.RenderPassBegin)
	assert.Equal(t, g.Framebuffers[2], begin.Framebuffer)
	assert.Equal(t, sc.Extent, begin.Area)
	assert.Equal(t, []uint32{3, 1, 0, 0}, []uint32{
		drv.Find("CmdDraw")[0].Args[0].(uint32),
		drv.Find("CmdDraw")[0].Args[1].(uint32),
		drv.Find("CmdDraw")[0].Args[2].(uint32),
		drv.Find("CmdDraw")[0].Args[3].(uint32),
	})

	g.Destroy()
	res.Destroy()
	sc.Destroy()
	require.NoError(t, ctx.Destroy())
	assert.Zero(t, drv.Live(), "leaked %v", drv.Leaks())
}

func TestBuildGraphDeferred(t *testing.T) {
	drv, win, ctx := newTestContext(t)
	defer func() {
		require.NoError(t, ctx.Destroy())
		assert.Zero(t, drv.Live(), "leaked %v", drv.Leaks())
	}()
	sc, err := NewSwapchain(ctx, win, SwapchainOptions{FramesInFlight: 1})
	require.NoError(t, err)
	defer sc.Destroy()
	res, err := NewResourceFactory(ctx)
	require.NoError(t, err)
	defer res.Destroy()

	desc, err := LoadGraph(filepath.Join("testdata", "graph_deferred.yaml"))
	require.NoError(t, err)
	var paths []string
	for _, p := range desc.Passes {
		for _, s := range p.Pipelines[0].Shaders {
			paths = append(paths, s.Path)
		}
	}

	g, err := NewPassBuilder(ctx).BuildGraph(desc, res, newMapLoader(paths...), GraphTargets{
		Views:      sc.Views,
		Format:     sc.Format.Format,
		Extent:     sc.Extent,
		SetLayouts: []hal.DescriptorSetLayout{77},
	})
	require.NoError(t, err)
	defer g.Destroy()

	assert.Equal(t, 2, drv.LiveOf(mock.KindPipeline))
	assert.Equal(t, 1, drv.LiveOf(mock.KindImage), "one transient attachment")
	fb := drv.Find("CreateFramebuffer")[0].Args[0].(hal.FramebufferDescriptor)
	assert.Len(t, fb.Attachments, 2)
	assert.Equal(t, sc.Views[0], fb.Attachments[1])

	rp := drv.Find("CreateRenderPass")[0].Args[0].(hal.RenderPassDescriptor)
	require.NotEmpty(t, rp.Dependencies)
	assert.Equal(t, uint32(hal.SubpassExternal), rp.Dependencies[0].SrcSubpass)
	assert.Equal(t, uint32(1), rp.Dependencies[0].DstSubpass, "external dependency guards the backbuffer's first use")
	for _, d := range rp.Dependencies[1:] {
		assert.NotEqual(t, uint32(hal.SubpassExternal), d.SrcSubpass)
	}

	layouts := drv.Find("CreatePipelineLayout")[1].Args[0].([]hal.DescriptorSetLayout)
	require.Len(t, layouts, 2, "shared set then the input-attachment set")
	assert.Equal(t, hal.DescriptorSetLayout(77), layouts[0])

	drv.ResetCalls()
	g.Record(hal.CommandBuffer(1), 0, hal.DescriptorSet(5))
	assert.Equal(t, 1, drv.Count("CmdNextSubpass"))
	assert.Equal(t, 2, drv.Count("CmdDraw"))
	binds := drv.Find("CmdBindDescriptorSets")
	require.Len(t, binds, 2)
	assert.Len(t, binds[0].Args[3], 1)
	assert.Len(t, binds[1].Args[3], 2)
}

func TestBuildGraphFailureLeaksNothing(t *testing.T) {
	drv, win, ctx := newTestContext(t)
	sc, err := NewSwapchain(ctx, win, SwapchainOptions{FramesInFlight: 1})
	require.NoError(t, err)
	res, err := NewResourceFactory(ctx)
	require.NoError(t, err)

	desc, err := LoadGraph(filepath.Join("testdata", "graph_deferred.yaml"))
	require.NoError(t, err)
	before := drv.Live()

	// the second pass's shaders are missing
	_, err = NewPassBuilder(ctx).BuildGraph(desc, res, newMapLoader(desc.Passes[0].Pipelines[0].Shaders[0].Path,
		desc.Passes[0].Pipelines[0].Shaders[1].Path), GraphTargets{
		Views:  sc.Views,
		Format: sc.Format.Format,
		Extent: sc.Extent,
	})
	require.Error(t, err)
	assert.Equal(t, before, drv.Live(), "leaked %v", drv.Leaks())

	res.Destroy()
	sc.Destroy()
	require.NoError(t, ctx.Destroy())
	assert.Zero(t, drv.Live())
}
