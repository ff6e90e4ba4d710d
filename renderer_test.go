package dieselrt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
	lin "github.com/xlab/linmath"

	"github.com/andewx/dieselrt/hal"
	"github.com/andewx/dieselrt/hal/mock"
)

type fixedCamera CameraData

func (c fixedCamera) CameraData() CameraData { return CameraData(c) }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Shaders = ShaderConfig{Vertex: "v.spv", Fragment: "f.spv", Compute: "c.spv"}
	cfg.Raytrace.Resolution = 64
	return cfg
}

func newTestRenderer(t *testing.T, cfg Config, loader ShaderLoader) (*mock.Driver, *mock.Window, *Renderer) {
	t.Helper()
	drv := mock.New()
	win := mock.NewWindow(800, 600)
	r, err := NewRenderer(drv, win, cfg, loader)
	require.NoError(t, err)
	return drv, win, r
}

func TestRendererRoundTrip(t *testing.T) {
	drv, _, r := newTestRenderer(t, testConfig(), newMapLoader("v.spv", "f.spv", "c.spv"))

	assert.Equal(t, 2, drv.LiveOf(mock.KindPipeline), "compute and composite")
	assert.Equal(t, 1, drv.LiveOf(mock.KindImage), "storage image")
	assert.Equal(t, 1, drv.LiveOf(mock.KindSampler))
	assert.Zero(t, drv.LiveOf(mock.KindShaderModule))
	assert.Equal(t, 3, drv.LiveOf(mock.KindFramebuffer))

	img := drv.Find("CreateImage")[0].Args[0].(hal.ImageDescriptor)
	assert.Equal(t, hal.Extent2D{Width: 64, Height: 64}, img.Extent)
	assert.Equal(t, vk.FormatR8g8b8a8Unorm, img.Format)

	require.NoError(t, r.Destroy())
	assert.Zero(t, drv.Live(), "leaked %v", drv.Leaks())
	require.NoError(t, r.Destroy())
}

func TestRendererConstructionFailures(t *testing.T) {
	for _, op := range []string{
		"CreateSwapchain", "CreateCommandPool", "CreateImage", "QueueSubmit", "CreateSampler",
		"CreateDescriptorPool", "CreateComputePipeline", "CreateRenderPass", "CreateFramebuffer",
		"CreateGraphicsPipeline",
	} {
		t.Run(op, func(t *testing.T) {
			drv := mock.New()
			drv.Fail(op, nil)
			_, err := NewRenderer(drv, mock.NewWindow(800, 600), testConfig(), newMapLoader("v.spv", "f.spv", "c.spv"))
			require.Error(t, err)
			assert.NotEqual(t, Success, CodeOf(err))
			assert.Zero(t, drv.Live(), "leaked %v", drv.Leaks())
		})
	}
}

func TestRendererMissingShader(t *testing.T) {
	drv := mock.New()
	_, err := NewRenderer(drv, mock.NewWindow(800, 600), testConfig(), newMapLoader("v.spv", "f.spv"))
	require.Error(t, err)
	assert.Equal(t, Unknown, CodeOf(err))
	assert.Zero(t, drv.Live(), "leaked %v", drv.Leaks())
}

func TestRendererInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Raytrace.Resolution = 10
	drv := mock.New()
	_, err := NewRenderer(drv, mock.NewWindow(800, 600), cfg, newMapLoader())
	require.Error(t, err)
	assert.Empty(t, drv.Calls)
}

func TestRendererRecordsFrame(t *testing.T) {
	drv, _, r := newTestRenderer(t, testConfig(), newMapLoader("v.spv", "f.spv", "c.spv"))
	defer func() {
		require.NoError(t, r.Destroy())
		assert.Zero(t, drv.Live(), "leaked %v", drv.Leaks())
	}()

	cam := fixedCamera{Pos: lin.Vec3{0, 0, 4}, Dir: lin.Vec3{0, 0, -1}}
	drv.ResetCalls()
	res, err := r.DrawFrame(cam)
	require.NoError(t, err)
	assert.False(t, res.Dropped)

	var cmds []string
	for _, op := range drv.Ops() {
		if len(op) > 3 && op[:3] == "Cmd" {
			cmds = append(cmds, op)
		}
	}
	assert.Equal(t, []string{
		"CmdPipelineBarrier",
		"CmdBindPipeline", "CmdBindDescriptorSets", "CmdPushConstants", "CmdDispatch",
		"CmdPipelineBarrier",
		"CmdBeginRenderPass", "CmdBindPipeline", "CmdBindDescriptorSets", "CmdDraw", "CmdEndRenderPass",
	}, cmds)

	dispatch := drv.Find("CmdDispatch")[0]
	assert.Equal(t, []interface{}{uint32(4), uint32(4), uint32(1)}, dispatch.Args)

	barriers := drv.Find("CmdPipelineBarrier")
	first := barriers[0].Args[2].([]hal.ImageBarrier)[0]
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, first.OldLayout)
	assert.Equal(t, vk.ImageLayoutGeneral, first.NewLayout)
	assert.Equal(t, vk.AccessFlags(vk.AccessShaderReadBit), first.SrcAccess)
	assert.Equal(t, vk.AccessFlags(vk.AccessShaderWriteBit), first.DstAccess)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), barriers[0].Args[0], "previous frame's sampling")
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit), barriers[0].Args[1])
	second := barriers[1].Args[2].([]hal.ImageBarrier)[0]
	assert.Equal(t, vk.ImageLayoutGeneral, second.OldLayout)
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, second.NewLayout)
	assert.Equal(t, vk.AccessFlags(vk.AccessShaderWriteBit), second.SrcAccess)
	assert.Equal(t, vk.AccessFlags(vk.AccessShaderReadBit), second.DstAccess)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit), barriers[1].Args[0])
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), barriers[1].Args[1])

	push := drv.Find("CmdPushConstants")[0].Args[3].([]byte)
	require.Len(t, push, FrameDataSize)
	assert.Equal(t, float32(800.0/600.0), floatAt(push, 0))
	assert.Equal(t, float32(10), floatAt(push, 20), "configured light")
	assert.Equal(t, float32(4), floatAt(push, 40), "camera position")
	assert.Equal(t, float32(-1), floatAt(push, 56), "camera direction")
}

func TestRendererFrameData(t *testing.T) {
	_, _, r := newTestRenderer(t, testConfig(), newMapLoader("v.spv", "f.spv", "c.spv"))
	defer r.Destroy()

	start := time.Unix(1000, 0)
	r.start = start
	r.now = func() time.Time { return start.Add(1500 * time.Millisecond) }

	fd := r.FrameData(nil)
	assert.Equal(t, float32(1.5), fd.Seed)
	assert.Equal(t, float32(800.0/600.0), fd.Aspect)
	assert.Equal(t, CameraData{}, fd.Camera)

	fd = r.FrameData(fixedCamera{Up: lin.Vec3{0, 1, 0}})
	assert.Equal(t, lin.Vec3{0, 1, 0}, fd.Camera.Up)
}

func TestRendererRecreatesGraphOnResize(t *testing.T) {
	drv, win, r := newTestRenderer(t, testConfig(), newMapLoader("v.spv", "f.spv", "c.spv"))
	defer func() {
		require.NoError(t, r.Destroy())
		assert.Zero(t, drv.Live(), "leaked %v", drv.Leaks())
	}()

	oldFramebuffers := drv.Count("CreateFramebuffer")
	win.Resize()
	drv.Capabilities.CurrentExtent = hal.Extent2D{Width: 1280, Height: 720}
	res, err := r.DrawFrame(nil)
	require.NoError(t, err)
	assert.True(t, res.Recreated)
	assert.Equal(t, 2*oldFramebuffers, drv.Count("CreateFramebuffer"))
	assert.Equal(t, 3, drv.LiveOf(mock.KindFramebuffer))
	assert.Equal(t, 2, drv.LiveOf(mock.KindPipeline))
	assert.Equal(t, float32(1280.0/720.0), r.FrameData(nil).Aspect)
}

func TestRendererRun(t *testing.T) {
	drv, win, r := newTestRenderer(t, testConfig(), newMapLoader("v.spv", "f.spv", "c.spv"))
	defer r.Destroy()

	frames := 0
	err := r.Run(context.Background(), RunOptions{
		Camera: fixedCamera{},
		Update: func() {
			frames++
			if frames == 5 {
				win.Close = true
			}
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, win.PollCount)
	assert.Equal(t, uint64(5), r.Scheduler.Frames())
	assert.Len(t, drv.Presentations, 5)
}

func TestRendererRunCancelled(t *testing.T) {
	drv, _, r := newTestRenderer(t, testConfig(), newMapLoader("v.spv", "f.spv", "c.spv"))
	defer r.Destroy()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx, RunOptions{}))
	assert.Empty(t, drv.Presentations)
}

func TestRendererRunFatal(t *testing.T) {
	drv, _, r := newTestRenderer(t, testConfig(), newMapLoader("v.spv", "f.spv", "c.spv"))
	defer func() {
		require.NoError(t, r.Destroy())
		assert.Zero(t, drv.Live(), "leaked %v", drv.Leaks())
	}()

	drv.Fail("QueueSubmit", nil)
	err := r.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.Equal(t, Unknown, CodeOf(err))
}

func TestRendererReload(t *testing.T) {
	loader := newMapLoader("v.spv", "f.spv", "c.spv")
	drv, win, r := newTestRenderer(t, testConfig(), loader)
	defer func() {
		require.NoError(t, r.Destroy())
		assert.Zero(t, drv.Live(), "leaked %v", drv.Leaks())
	}()

	loads := len(loader.loads)
	reload := make(chan string, 1)
	reload <- "c.spv"
	iterations := 0
	err := r.Run(context.Background(), RunOptions{
		Reload: reload,
		Update: func() {
			iterations++
			win.Close = iterations == 2
		},
	})
	require.NoError(t, err)
	assert.Equal(t, loads+3, len(loader.loads), "compute and both graph shaders reloaded")
	assert.Equal(t, 2, drv.LiveOf(mock.KindPipeline))
}

func TestRendererReloadFailureKeepsPipelines(t *testing.T) {
	loader := newMapLoader("v.spv", "f.spv", "c.spv")
	drv, _, r := newTestRenderer(t, testConfig(), loader)
	defer func() {
		require.NoError(t, r.Destroy())
		assert.Zero(t, drv.Live(), "leaked %v", drv.Leaks())
	}()

	compute, graph := r.compute, r.graph
	delete(loader.files, "f.spv")
	require.Error(t, r.ReloadShaders())
	assert.Same(t, compute, r.compute)
	assert.Same(t, graph, r.graph)
	assert.Equal(t, 2, drv.LiveOf(mock.KindPipeline))

	loader.files["f.spv"] = true
	require.NoError(t, r.ReloadShaders())
	assert.NotSame(t, compute, r.compute)
}

func TestRendererCustomGraph(t *testing.T) {
	desc, err := LoadGraph(filepath.Join("testdata", "graph_deferred.yaml"))
	require.NoError(t, err)
	paths := []string{"c.spv"}
	for _, p := range desc.Passes {
		for _, s := range p.Pipelines[0].Shaders {
			paths = append(paths, s.Path)
		}
	}

	cfg := testConfig()
	cfg.Graph = filepath.Join("testdata", "graph_deferred.yaml")
	drv, _, r := newTestRenderer(t, cfg, newMapLoader(paths...))
	assert.Equal(t, 3, drv.LiveOf(mock.KindPipeline))

	_, err = r.DrawFrame(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, drv.Count("CmdNextSubpass"))

	require.NoError(t, r.Destroy())
	assert.Zero(t, drv.Live(), "leaked %v", drv.Leaks())
}
