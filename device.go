package dieselrt

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselrt/hal"
)

type DeviceOptions struct {
	AppName string
	// Debug enables the validation layer and the debug report callback.
	Debug bool
	// Extensions are device extensions requested on top of the swapchain.
	Extensions []string
}

// DeviceContext owns the instance, surface, selected adapter, logical
// device and its queues. It is created first and destroyed last.
type DeviceContext struct {
	Driver   hal.Driver
	Instance hal.Instance
	Surface  hal.Surface
	Adapter  hal.Adapter
	Info     hal.AdapterInfo
	Device   hal.Device

	GraphicsQueue  hal.Queue
	PresentQueue   hal.Queue
	GraphicsFamily uint32
	PresentFamily  uint32
	MemoryTypes    []hal.MemoryType

	destroyed bool
}

// NewDeviceContext creates the instance and surface for win and binds the
// first adapter that can present to it.
func NewDeviceContext(drv hal.Driver, win Window, opts DeviceOptions) (ctx *DeviceContext, err error) {
	log := Logger()
	dc := &DeviceContext{Driver: drv}

	var rel releaser
	defer func() {
		if err != nil {
			rel.release()
		}
	}()

	instanceExtensions := append([]string(nil), win.RequiredInstanceExtensions()...)
	var layers []string
	if opts.Debug {
		instanceExtensions = append(instanceExtensions, hal.ExtDebug)
		layers = []string{hal.LayerValidation}
	}
	if opts.AppName == "" {
		opts.AppName = "dieselrt"
	}

	dc.Instance, err = drv.CreateInstance(hal.InstanceDescriptor{
		AppName:    opts.AppName,
		EngineName: "dieselrt",
		APIVersion: vk.MakeVersion(1, 1, 0),
		Extensions: instanceExtensions,
		Layers:     layers,
		Debug:      opts.Debug,
	})
	if err != nil {
		return nil, newError(Unknown, "create instance", err)
	}
	rel.push(func() { drv.DestroyInstance(dc.Instance) })

	dc.Surface, err = drv.CreateSurface(dc.Instance, win)
	if err != nil {
		return nil, newError(NoSuitableSurface, "create surface", err)
	}
	rel.push(func() { drv.DestroySurface(dc.Instance, dc.Surface) })

	if err = dc.selectAdapter(); err != nil {
		return nil, err
	}

	families := []uint32{dc.GraphicsFamily}
	if dc.PresentFamily != dc.GraphicsFamily {
		families = append(families, dc.PresentFamily)
	}
	dc.Device, err = drv.CreateDevice(dc.Adapter, hal.DeviceDescriptor{
		QueueFamilies: families,
		Extensions:    append([]string{hal.ExtSwapchain}, opts.Extensions...),
		Layers:        layers,
	})
	if err != nil {
		return nil, newError(Unknown, "create device", err)
	}
	rel.push(func() { drv.DestroyDevice(dc.Device) })

	dc.GraphicsQueue = drv.DeviceQueue(dc.Device, dc.GraphicsFamily)
	dc.PresentQueue = drv.DeviceQueue(dc.Device, dc.PresentFamily)

	log.Info("device ready",
		"adapter", dc.Info.Name,
		"graphics_family", dc.GraphicsFamily,
		"present_family", dc.PresentFamily,
		"debug", opts.Debug)
	return dc, nil
}

// selectAdapter takes the first adapter exposing the swapchain extension
// and both required queue families. There is no scoring.
func (dc *DeviceContext) selectAdapter() error {
	adapters, err := dc.Driver.EnumerateAdapters(dc.Instance)
	if err != nil {
		return newError(Unknown, "enumerate adapters", err)
	}
	for _, a := range adapters {
		info, err := dc.Driver.AdapterInfo(a)
		if err != nil {
			return newError(Unknown, "query adapter", err)
		}
		if !info.HasExtension(hal.ExtSwapchain) {
			Logger().Debug("adapter lacks swapchain extension", "adapter", info.Name)
			continue
		}
		families, err := dc.Driver.QueueFamilies(a, dc.Surface)
		if err != nil {
			return newError(Unknown, "query queue families", err)
		}
		gfx, present, ok := resolveQueueFamilies(families)
		if !ok {
			Logger().Debug("adapter lacks graphics or present queue", "adapter", info.Name)
			continue
		}
		dc.Adapter = a
		dc.Info = info
		dc.GraphicsFamily = gfx
		dc.PresentFamily = present
		dc.MemoryTypes = dc.Driver.MemoryTypes(a)
		return nil
	}
	return newError(NoSuitableGPU, "select adapter",
		errors.Errorf("none of %d adapters can present with %s", len(adapters), hal.ExtSwapchain))
}

// resolveQueueFamilies prefers one family that both renders and presents,
// otherwise the first graphics family and the first present family.
func resolveQueueFamilies(families []hal.QueueFamily) (gfx, present uint32, ok bool) {
	for _, f := range families {
		if f.Graphics() && f.Present {
			return f.Index, f.Index, true
		}
	}
	gfxFound, presentFound := false, false
	for _, f := range families {
		if !gfxFound && f.Graphics() {
			gfx, gfxFound = f.Index, true
		}
		if !presentFound && f.Present && f.Count > 0 {
			present, presentFound = f.Index, true
		}
	}
	return gfx, present, gfxFound && presentFound
}

// SharedPresent reports whether one queue both renders and presents.
func (dc *DeviceContext) SharedPresent() bool {
	return dc.GraphicsFamily == dc.PresentFamily
}

func (dc *DeviceContext) WaitIdle() error {
	if err := dc.Driver.DeviceWaitIdle(dc.Device); err != nil {
		return newError(Unknown, "wait idle", err)
	}
	return nil
}

// Destroy waits for the device to go idle and releases device, surface and
// instance in that order. Calls after the first do nothing.
func (dc *DeviceContext) Destroy() error {
	if dc == nil || dc.destroyed {
		return nil
	}
	dc.destroyed = true
	err := dc.WaitIdle()
	dc.Driver.DestroyDevice(dc.Device)
	dc.Driver.DestroySurface(dc.Instance, dc.Surface)
	dc.Driver.DestroyInstance(dc.Instance)
	Logger().Info("device released", "adapter", dc.Info.Name)
	return err
}
