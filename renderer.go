package dieselrt

import (
	"context"
	"time"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselrt/hal"
)

// RaytraceGroupSize is the compute workgroup edge the tracer is built with.
const RaytraceGroupSize = 16

// CameraSource supplies the camera pose for the next frame.
type CameraSource interface {
	CameraData() CameraData
}

// Renderer owns every GPU object of the raytracing frame: the device, the
// swapchain, the storage image the compute tracer writes, the sampler and
// descriptor sets that expose it, the compute pipeline and the render
// graph that composites the image into the backbuffer.
type Renderer struct {
	cfg    Config
	win    Window
	loader ShaderLoader

	Context   *DeviceContext
	Swapchain *Swapchain
	Resources *ResourceFactory
	Passes    *PassBuilder
	Scheduler *Scheduler

	graphDesc   GraphDescriptor
	storage     *Image
	sampler     *Sampler
	graphicsSet *DescriptorSet
	computeSet  *DescriptorSet
	compute     *Pipeline
	graph       *Graph

	start     time.Time
	now       func() time.Time
	push      []byte
	rel       releaser
	destroyed bool
}

// NewRenderer brings up the whole frame on drv. Shader paths in cfg are
// resolved through loader. On failure everything created so far is
// released and the error carries its Code.
func NewRenderer(drv hal.Driver, win Window, cfg Config, loader ShaderLoader) (_ *Renderer, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, newError(Unknown, "validate config", err)
	}
	graphDesc := DefaultGraph(cfg.Shaders.Vertex, cfg.Shaders.Fragment)
	if cfg.Graph != "" {
		if graphDesc, err = LoadGraph(cfg.Graph); err != nil {
			return nil, newError(Unknown, "load render graph", err)
		}
	}

	r := &Renderer{
		cfg:       cfg,
		win:       win,
		loader:    loader,
		graphDesc: graphDesc,
		now:       time.Now,
		push:      make([]byte, FrameDataSize),
	}
	defer func() {
		if err != nil {
			r.rel.release()
		}
	}()

	ctx, err := NewDeviceContext(drv, win, DeviceOptions{AppName: cfg.Window.Title, Debug: cfg.Debug})
	if err != nil {
		return nil, err
	}
	r.Context = ctx
	r.rel.push(func() {
		if err := ctx.Destroy(); err != nil {
			Logger().Error("device teardown", "err", err)
		}
	})

	sc, err := NewSwapchain(ctx, win, SwapchainOptions{
		ImageCount:     cfg.Swapchain.ImageCount,
		FramesInFlight: cfg.Swapchain.FramesInFlight,
	})
	if err != nil {
		return nil, err
	}
	r.Swapchain = sc
	r.rel.push(sc.Destroy)

	if r.Resources, err = NewResourceFactory(ctx); err != nil {
		return nil, newError(Unknown, "create resource factory", err)
	}
	r.rel.push(r.Resources.Destroy)
	r.Passes = NewPassBuilder(ctx)

	if err := r.createRaytraceTarget(); err != nil {
		return nil, newError(Unknown, "create raytrace target", err)
	}

	if r.compute, err = r.buildCompute(); err != nil {
		return nil, newError(Unknown, "create compute pipeline", err)
	}
	r.rel.push(func() { r.compute.Destroy() })

	if err := r.BuildSwapchainResources(sc); err != nil {
		return nil, newError(Unknown, "build render graph", err)
	}
	r.rel.push(r.ReleaseSwapchainResources)
	sc.Register(r)

	r.Scheduler = NewScheduler(ctx, sc, win, r)
	r.start = r.now()
	Logger().Info("renderer ready",
		"adapter", ctx.Info.Name,
		"raytrace_resolution", cfg.Raytrace.Resolution,
		"passes", len(graphDesc.Passes))
	return r, nil
}

// createRaytraceTarget makes the storage image, leaves it in the layout
// the composition pass samples it in, and writes both descriptor sets.
func (r *Renderer) createRaytraceTarget() error {
	side := r.cfg.Raytrace.Resolution
	img, err := r.Resources.CreateImage(ImageOptions{
		Format: vk.FormatR8g8b8a8Unorm,
		Extent: hal.Extent2D{Width: side, Height: side},
		Usage:  vk.ImageUsageFlags(vk.ImageUsageSampledBit | vk.ImageUsageStorageBit),
	}, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return err
	}
	r.storage = img
	r.rel.push(img.Destroy)

	err = r.Resources.OneShot(func(cb hal.CommandBuffer) {
		img.Transition(cb,
			vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
			vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
			hal.ImageBarrier{
				OldLayout: vk.ImageLayoutUndefined,
				NewLayout: vk.ImageLayoutShaderReadOnlyOptimal,
				DstAccess: vk.AccessFlags(vk.AccessShaderReadBit),
			})
	})
	if err != nil {
		return errors.Wrap(err, "transition storage image")
	}

	if r.sampler, err = r.Resources.CreateSampler(SamplerOptions{
		Filter:      vk.FilterLinear,
		AddressMode: vk.SamplerAddressModeClampToBorder,
		BorderColor: vk.BorderColorIntOpaqueBlack,
	}); err != nil {
		return err
	}
	r.rel.push(r.sampler.Destroy)

	if r.graphicsSet, err = r.Resources.CreateDescriptorSet([]hal.DescriptorBinding{{
		Binding: 0,
		Type:    vk.DescriptorTypeCombinedImageSampler,
		Count:   1,
		Stages:  vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
	}}); err != nil {
		return err
	}
	r.rel.push(r.graphicsSet.Destroy)
	r.graphicsSet.WriteImage(0, vk.DescriptorTypeCombinedImageSampler, r.sampler.Handle, img.View, vk.ImageLayoutShaderReadOnlyOptimal)

	if r.computeSet, err = r.Resources.CreateDescriptorSet([]hal.DescriptorBinding{{
		Binding: 0,
		Type:    vk.DescriptorTypeStorageImage,
		Count:   1,
		Stages:  vk.ShaderStageFlags(vk.ShaderStageComputeBit),
	}}); err != nil {
		return err
	}
	r.rel.push(r.computeSet.Destroy)
	r.computeSet.WriteImage(0, vk.DescriptorTypeStorageImage, hal.Null, img.View, vk.ImageLayoutGeneral)
	return nil
}

func (r *Renderer) buildCompute() (*Pipeline, error) {
	code, err := r.loader.Load(r.cfg.Shaders.Compute, StageCompute, "")
	if err != nil {
		return nil, err
	}
	return r.Passes.CreateComputePipeline(ComputePipelineDescriptor{
		Shader:     code,
		SetLayouts: []hal.DescriptorSetLayout{r.computeSet.Layout},
		PushConstants: []hal.PushConstantRange{{
			Stages: vk.ShaderStageFlags(vk.ShaderStageComputeBit),
			Offset: 0,
			Size:   FrameDataSize,
		}},
	})
}

func (r *Renderer) buildGraph(sc *Swapchain) (*Graph, error) {
	return r.Passes.BuildGraph(r.graphDesc, r.Resources, r.loader, GraphTargets{
		Views:      sc.Views,
		Format:     sc.Format.Format,
		Extent:     sc.Extent,
		SetLayouts: []hal.DescriptorSetLayout{r.graphicsSet.Layout},
	})
}

// BuildSwapchainResources builds the render graph against the current
// swapchain images.
func (r *Renderer) BuildSwapchainResources(sc *Swapchain) error {
	g, err := r.buildGraph(sc)
	if err != nil {
		return err
	}
	r.graph = g
	return nil
}

func (r *Renderer) ReleaseSwapchainResources() {
	r.graph.Destroy()
	r.graph = nil
}

// RecordFrame runs the tracer into the storage image and composites it
// into the backbuffer.
func (r *Renderer) RecordFrame(cb hal.CommandBuffer, imageIndex uint32, fd *FrameData) error {
	if int(imageIndex) >= len(r.graph.Framebuffers) {
		return errors.Errorf("image index %d, %d framebuffers", imageIndex, len(r.graph.Framebuffers))
	}
	drv := r.Context.Driver
	// the previous frame's sampling finishes before the tracer writes
	r.storage.Transition(cb,
		vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
		vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		hal.ImageBarrier{
			OldLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			NewLayout: vk.ImageLayoutGeneral,
			SrcAccess: vk.AccessFlags(vk.AccessShaderReadBit),
			DstAccess: vk.AccessFlags(vk.AccessShaderWriteBit),
		})
	r.compute.Bind(cb, r.computeSet.Handle)
	fd.Encode(r.push)
	drv.CmdPushConstants(cb, r.compute.Layout, vk.ShaderStageFlags(vk.ShaderStageComputeBit), 0, r.push)
	groups := r.cfg.Raytrace.Resolution / RaytraceGroupSize
	drv.CmdDispatch(cb, groups, groups, 1)
	r.storage.Transition(cb,
		vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
		hal.ImageBarrier{
			OldLayout: vk.ImageLayoutGeneral,
			NewLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			SrcAccess: vk.AccessFlags(vk.AccessShaderWriteBit),
			DstAccess: vk.AccessFlags(vk.AccessShaderReadBit),
		})

	r.graph.Record(cb, imageIndex, r.graphicsSet.Handle)
	return nil
}

// FrameData assembles the push constants for the next frame: the aspect
// of the current extent, seconds since start as the seed, the configured
// light and the camera pose.
func (r *Renderer) FrameData(cam CameraSource) FrameData {
	ext := r.Swapchain.Extent
	fd := FrameData{
		Seed:  float32(r.now().Sub(r.start).Seconds()),
		Light: r.cfg.LightPosition(),
	}
	if ext.Height > 0 {
		fd.Aspect = float32(ext.Width) / float32(ext.Height)
	}
	if cam != nil {
		fd.Camera = cam.CameraData()
	}
	return fd
}

func (r *Renderer) DrawFrame(cam CameraSource) (FrameResult, error) {
	return r.Scheduler.DrawFrame(r.FrameData(cam))
}

// ReloadShaders recompiles the compute pipeline and rebuilds the render
// graph, re-reading the graph file when one is configured. On failure the
// previous pipelines stay in use.
func (r *Renderer) ReloadShaders() error {
	if err := r.Context.WaitIdle(); err != nil {
		return err
	}
	desc := r.graphDesc
	if r.cfg.Graph != "" {
		d, err := LoadGraph(r.cfg.Graph)
		if err != nil {
			return err
		}
		desc = d
	}

	compute, err := r.buildCompute()
	if err != nil {
		return err
	}
	prev := r.graphDesc
	r.graphDesc = desc
	g, err := r.buildGraph(r.Swapchain)
	if err != nil {
		r.graphDesc = prev
		compute.Destroy()
		return err
	}

	r.compute.Destroy()
	r.compute = compute
	r.graph.Destroy()
	r.graph = g
	Logger().Info("shaders reloaded")
	return nil
}

// RunOptions feed the frame loop.
type RunOptions struct {
	Camera CameraSource
	// Reload receives a value whenever shaders changed on disk.
	Reload <-chan string
	// Update runs once per iteration after events are polled.
	Update func()
}

// Run draws frames until the window closes or ctx is cancelled. A fatal
// frame error is returned as is; the caller still calls Destroy.
func (r *Renderer) Run(ctx context.Context, opts RunOptions) error {
	log := Logger()
	for !r.win.ShouldClose() {
		select {
		case <-ctx.Done():
			log.Info("frame loop cancelled")
			return r.Context.WaitIdle()
		case path := <-opts.Reload:
			log.Info("reloading shaders", "changed", path)
			if err := r.ReloadShaders(); err != nil {
				log.Warn("shader reload failed, keeping previous pipelines", "err", err)
			}
		default:
		}

		r.win.PollEvents()
		if opts.Update != nil {
			opts.Update()
		}
		if _, err := r.DrawFrame(opts.Camera); err != nil {
			if errors.Is(err, ErrWindowClosed) {
				break
			}
			return err
		}
	}
	return r.Context.WaitIdle()
}

// Destroy waits for the device and releases everything in reverse
// creation order. It is safe to call more than once.
func (r *Renderer) Destroy() error {
	if r == nil || r.destroyed {
		return nil
	}
	r.destroyed = true
	err := r.Context.WaitIdle()
	r.rel.release()
	return err
}
