package dieselrt

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselrt/hal"
)

type SwapchainOptions struct {
	// ImageCount is the requested chain length, 0 for min+1.
	ImageCount uint32
	// FramesInFlight is the number of FrameSlots. It does not need to
	// match the image count.
	FramesInFlight int
}

// SwapchainDependent owns objects built against the swapchain's images or
// extent. Recreate releases dependents before tearing the chain down and
// rebuilds them, in registration order, afterwards.
type SwapchainDependent interface {
	ReleaseSwapchainResources()
	BuildSwapchainResources(sc *Swapchain) error
}

// Swapchain owns the presentable chain, one view per image and the frame
// slots. The images themselves belong to the presentation engine.
type Swapchain struct {
	ctx  *DeviceContext
	win  Window
	opts SwapchainOptions

	Handle      hal.Swapchain
	Format      hal.SurfaceFormat
	PresentMode vk.PresentMode
	Extent      hal.Extent2D
	Images      []hal.Image
	Views       []hal.ImageView
	Slots       []*FrameSlot

	dependents  []SwapchainDependent
	recreations int
}

func NewSwapchain(ctx *DeviceContext, win Window, opts SwapchainOptions) (*Swapchain, error) {
	if opts.FramesInFlight < 1 {
		return nil, newError(Unknown, "create swapchain",
			errors.Errorf("frames in flight must be at least 1, got %d", opts.FramesInFlight))
	}
	sc := &Swapchain{ctx: ctx, win: win, opts: opts}
	if err := sc.build(); err != nil {
		return nil, err
	}
	return sc, nil
}

func (sc *Swapchain) build() (err error) {
	drv, dev := sc.ctx.Driver, sc.ctx.Device
	log := Logger()

	var rel releaser
	defer func() {
		if err != nil {
			rel.release()
			sc.clear()
		}
	}()

	caps, err := drv.SurfaceCapabilities(sc.ctx.Adapter, sc.ctx.Surface)
	if err != nil {
		return newError(NoSuitableSurface, "query surface capabilities", err)
	}
	formats, err := drv.SurfaceFormats(sc.ctx.Adapter, sc.ctx.Surface)
	if err != nil {
		return newError(NoSuitableSurface, "query surface formats", err)
	}
	format, ok := ChooseSurfaceFormat(formats)
	if !ok {
		return newError(NoSuitableSurface, "choose surface format", errors.New("surface reports no formats"))
	}
	modes, err := drv.PresentModes(sc.ctx.Adapter, sc.ctx.Surface)
	if err != nil {
		return newError(NoSuitableSurface, "query present modes", err)
	}
	if len(modes) == 0 {
		return newError(NoSuitableSurface, "choose present mode", errors.New("surface reports no present modes"))
	}

	w, h := sc.win.FramebufferSize()
	extent := ChooseExtent(caps, hal.Extent2D{Width: uint32(w), Height: uint32(h)})
	count := ChooseImageCount(sc.opts.ImageCount, caps.MinImageCount, caps.MaxImageCount)

	var families []uint32
	if !sc.ctx.SharedPresent() {
		families = []uint32{sc.ctx.GraphicsFamily, sc.ctx.PresentFamily}
	}
	handle, err := drv.CreateSwapchain(dev, hal.SwapchainDescriptor{
		Surface:        sc.ctx.Surface,
		MinImageCount:  count,
		Format:         format,
		Extent:         extent,
		PresentMode:    ChoosePresentMode(modes),
		Transform:      chooseTransform(caps),
		CompositeAlpha: chooseCompositeAlpha(caps),
		QueueFamilies:  families,
	})
	if err != nil {
		return newError(NoSuitableSurface, "create swapchain", err)
	}
	rel.push(func() { drv.DestroySwapchain(dev, handle) })

	images, err := drv.SwapchainImages(dev, handle)
	if err != nil {
		return newError(NoSuitableSurface, "get swapchain images", err)
	}

	views := make([]hal.ImageView, 0, len(images))
	for _, img := range images {
		view, err := drv.CreateImageView(dev, hal.ImageViewDescriptor{
			Image:  img,
			Format: format.Format,
			Aspect: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		})
		if err != nil {
			return newError(NoSuitableSurface, "create swapchain image view", err)
		}
		rel.push(func() { drv.DestroyImageView(dev, view) })
		views = append(views, view)
	}

	slots := make([]*FrameSlot, 0, sc.opts.FramesInFlight)
	for i := 0; i < sc.opts.FramesInFlight; i++ {
		slot, err := newFrameSlot(sc.ctx, i)
		if err != nil {
			return newError(Unknown, "create frame slot", err)
		}
		rel.push(func() { slot.destroy(sc.ctx) })
		slots = append(slots, slot)
	}

	sc.Handle = handle
	sc.Format = format
	sc.PresentMode = ChoosePresentMode(modes)
	sc.Extent = extent
	sc.Images = images
	sc.Views = views
	sc.Slots = slots

	log.Info("swapchain built",
		"images", len(images),
		"frames_in_flight", len(slots),
		"width", extent.Width,
		"height", extent.Height,
		"format", int(format.Format),
		"present_mode", int(sc.PresentMode))
	return nil
}

func (sc *Swapchain) clear() {
	sc.Handle = hal.Null
	sc.Images = nil
	sc.Views = nil
	sc.Slots = nil
}

// Register adds a dependent that is rebuilt on every Recreate.
func (sc *Swapchain) Register(dep SwapchainDependent) {
	sc.dependents = append(sc.dependents, dep)
}

// Recreate rebuilds the chain after a resize or a stale acquire/present.
// It blocks while the window has no drawable area.
func (sc *Swapchain) Recreate() error {
	if _, err := waitForDrawableSize(sc.win); err != nil {
		return err
	}
	if err := sc.ctx.WaitIdle(); err != nil {
		return err
	}
	for i := len(sc.dependents) - 1; i >= 0; i-- {
		sc.dependents[i].ReleaseSwapchainResources()
	}
	sc.destroyOwned()
	if err := sc.build(); err != nil {
		return err
	}
	for _, dep := range sc.dependents {
		if err := dep.BuildSwapchainResources(sc); err != nil {
			return err
		}
	}
	sc.recreations++
	Logger().Info("swapchain recreated", "count", sc.recreations)
	return nil
}

// Recreations returns how many times the chain was rebuilt.
func (sc *Swapchain) Recreations() int { return sc.recreations }

// FramesInFlight is the number of frame slots.
func (sc *Swapchain) FramesInFlight() int { return sc.opts.FramesInFlight }

func (sc *Swapchain) destroyOwned() {
	drv, dev := sc.ctx.Driver, sc.ctx.Device
	for i := len(sc.Slots) - 1; i >= 0; i-- {
		sc.Slots[i].destroy(sc.ctx)
	}
	for i := len(sc.Views) - 1; i >= 0; i-- {
		drv.DestroyImageView(dev, sc.Views[i])
	}
	if sc.Handle != hal.Null {
		drv.DestroySwapchain(dev, sc.Handle)
	}
	sc.clear()
}

// Destroy releases slots, views and the chain. The caller waits for the
// device to go idle first.
func (sc *Swapchain) Destroy() {
	if sc == nil {
		return
	}
	sc.destroyOwned()
}
