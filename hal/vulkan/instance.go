package vulkan

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselrt"
	"github.com/andewx/dieselrt/hal"
)

// InstanceExtensions lists the instance extensions available on the platform.
func InstanceExtensions() ([]string, error) {
	var count uint32
	if ret := vk.EnumerateInstanceExtensionProperties("", &count, nil); ret != vk.Success {
		return nil, newError("EnumerateInstanceExtensionProperties", ret)
	}
	list := make([]vk.ExtensionProperties, count)
	if ret := vk.EnumerateInstanceExtensionProperties("", &count, list); ret != vk.Success {
		return nil, newError("EnumerateInstanceExtensionProperties", ret)
	}
	names := make([]string, 0, count)
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

// DeviceExtensions lists the extensions of a physical device.
func DeviceExtensions(gpu vk.PhysicalDevice) ([]string, error) {
	var count uint32
	if ret := vk.EnumerateDeviceExtensionProperties(gpu, "", &count, nil); ret != vk.Success {
		return nil, newError("EnumerateDeviceExtensionProperties", ret)
	}
	list := make([]vk.ExtensionProperties, count)
	if ret := vk.EnumerateDeviceExtensionProperties(gpu, "", &count, list); ret != vk.Success {
		return nil, newError("EnumerateDeviceExtensionProperties", ret)
	}
	names := make([]string, 0, count)
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

// ValidationLayers lists the instance layers available on the platform.
func ValidationLayers() ([]string, error) {
	var count uint32
	if ret := vk.EnumerateInstanceLayerProperties(&count, nil); ret != vk.Success {
		return nil, newError("EnumerateInstanceLayerProperties", ret)
	}
	list := make([]vk.LayerProperties, count)
	if ret := vk.EnumerateInstanceLayerProperties(&count, list); ret != vk.Success {
		return nil, newError("EnumerateInstanceLayerProperties", ret)
	}
	names := make([]string, 0, count)
	for _, layer := range list {
		layer.Deref()
		names = append(names, vk.ToString(layer.LayerName[:]))
	}
	return names, nil
}

func (d *Driver) CreateInstance(desc hal.InstanceDescriptor) (hal.Instance, error) {
	log := dieselrt.Logger()

	available, err := InstanceExtensions()
	if err != nil {
		return hal.Null, err
	}
	extensions, missing := checkExisting(available, desc.Extensions)
	if len(missing) > 0 {
		return hal.Null, errors.Errorf("vulkan: missing instance extensions %v", missing)
	}

	var layers []string
	if len(desc.Layers) > 0 {
		availableLayers, err := ValidationLayers()
		if err != nil {
			return hal.Null, err
		}
		layers, missing = checkExisting(availableLayers, desc.Layers)
		if len(missing) > 0 {
			log.Warn("validation layers unavailable", "layers", missing)
		}
	}
	log.Debug("creating instance", "extensions", len(extensions), "layers", len(layers))

	apiVersion := desc.APIVersion
	if apiVersion == 0 {
		apiVersion = vk.MakeVersion(1, 0, 0)
	}
	var instance vk.Instance
	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			ApiVersion:         apiVersion,
			ApplicationVersion: vk.MakeVersion(1, 0, 0),
			PApplicationName:   safeString(desc.AppName),
			PEngineName:        safeString(desc.EngineName),
		},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}, nil, &instance)
	if ret != vk.Success {
		return hal.Null, newError("CreateInstance", ret)
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return hal.Null, errors.Wrap(err, "vulkan: init instance")
	}

	state := &instanceState{handle: instance}
	if desc.Debug && contains(extensions, hal.ExtDebug) {
		ret := vk.CreateDebugReportCallback(instance, &vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}, nil, &state.debug)
		if ret != vk.Success {
			log.Warn("debug report callback unavailable", "err", newError("CreateDebugReportCallback", ret))
		} else {
			log.Debug("debug report callback enabled")
		}
	}
	return hal.Instance(d.instances.put(state)), nil
}

func contains(list []string, name string) bool {
	name = safeString(name)
	for _, s := range list {
		if safeString(s) == name {
			return true
		}
	}
	return false
}

func (d *Driver) DestroyInstance(inst hal.Instance) {
	state, ok := d.instances.take(uint64(inst))
	if !ok {
		return
	}
	if state.debug != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(state.handle, state.debug, nil)
	}
	vk.DestroyInstance(state.handle, nil)
}

// dbgCallbackFunc forwards validation messages to the renderer logger.
func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	log := dieselrt.Logger().With("layer", pLayerPrefix, "code", messageCode)
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		log.Error(pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		log.Warn(pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		log.Warn(pMessage, "performance", true)
	default:
		log.Debug(pMessage)
	}
	return vk.Bool32(vk.False)
}

func (d *Driver) CreateSurface(inst hal.Instance, src hal.SurfaceSource) (hal.Surface, error) {
	state := d.instances.get(uint64(inst))
	if state == nil {
		return hal.Null, errors.New("vulkan: CreateSurface on unknown instance")
	}
	ptr, err := src.CreateWindowSurface(state.handle, nil)
	if err != nil {
		return hal.Null, errors.Wrap(err, "vulkan: create window surface")
	}
	surface := vk.SurfaceFromPointer(ptr)
	if surface == vk.NullSurface {
		return hal.Null, errors.New("vulkan: window returned a null surface")
	}
	return hal.Surface(d.surfaces.put(surface)), nil
}

func (d *Driver) DestroySurface(inst hal.Instance, s hal.Surface) {
	surface, ok := d.surfaces.take(uint64(s))
	state := d.instances.get(uint64(inst))
	if !ok || state == nil {
		return
	}
	vk.DestroySurface(state.handle, surface, nil)
}

func (d *Driver) EnumerateAdapters(inst hal.Instance) ([]hal.Adapter, error) {
	state := d.instances.get(uint64(inst))
	if state == nil {
		return nil, errors.New("vulkan: EnumerateAdapters on unknown instance")
	}
	var count uint32
	if ret := vk.EnumeratePhysicalDevices(state.handle, &count, nil); ret != vk.Success {
		return nil, newError("EnumeratePhysicalDevices", ret)
	}
	gpus := make([]vk.PhysicalDevice, count)
	if ret := vk.EnumeratePhysicalDevices(state.handle, &count, gpus); ret != vk.Success {
		return nil, newError("EnumeratePhysicalDevices", ret)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]hal.Adapter, 0, count)
	for _, gpu := range gpus[:count] {
		id, ok := d.adapterIDs[gpu]
		if !ok {
			id = hal.Adapter(d.adapters.put(gpu))
			d.adapterIDs[gpu] = id
		}
		out = append(out, id)
	}
	return out, nil
}

func (d *Driver) gpu(a hal.Adapter) vk.PhysicalDevice { return d.adapters.get(uint64(a)) }

func (d *Driver) AdapterInfo(a hal.Adapter) (hal.AdapterInfo, error) {
	gpu := d.gpu(a)
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(gpu, &props)
	props.Deref()

	exts, err := DeviceExtensions(gpu)
	if err != nil {
		return hal.AdapterInfo{}, err
	}
	return hal.AdapterInfo{
		Name:       vk.ToString(props.DeviceName[:]),
		Type:       props.DeviceType,
		APIVersion: props.ApiVersion,
		Extensions: exts,
	}, nil
}

func (d *Driver) QueueFamilies(a hal.Adapter, s hal.Surface) ([]hal.QueueFamily, error) {
	gpu := d.gpu(a)
	surface := d.surfaces.get(uint64(s))

	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, props)

	out := make([]hal.QueueFamily, 0, count)
	for i := uint32(0); i < count; i++ {
		props[i].Deref()
		family := hal.QueueFamily{
			Index: i,
			Flags: props[i].QueueFlags,
			Count: props[i].QueueCount,
		}
		if surface != vk.NullSurface {
			var supported vk.Bool32
			if ret := vk.GetPhysicalDeviceSurfaceSupport(gpu, i, surface, &supported); ret != vk.Success {
				return nil, newError("GetPhysicalDeviceSurfaceSupport", ret)
			}
			family.Present = supported.B()
		}
		out = append(out, family)
	}
	return out, nil
}

func (d *Driver) MemoryTypes(a hal.Adapter) []hal.MemoryType {
	var props vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(d.gpu(a), &props)
	props.Deref()

	out := make([]hal.MemoryType, 0, props.MemoryTypeCount)
	for i := uint32(0); i < props.MemoryTypeCount; i++ {
		props.MemoryTypes[i].Deref()
		out = append(out, hal.MemoryType{
			Flags: props.MemoryTypes[i].PropertyFlags,
			Heap:  props.MemoryTypes[i].HeapIndex,
		})
	}
	return out
}

func (d *Driver) SurfaceCapabilities(a hal.Adapter, s hal.Surface) (hal.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	ret := vk.GetPhysicalDeviceSurfaceCapabilities(d.gpu(a), d.surfaces.get(uint64(s)), &caps)
	if ret != vk.Success {
		return hal.SurfaceCapabilities{}, newError("GetPhysicalDeviceSurfaceCapabilities", ret)
	}
	caps.Deref()
	return hal.SurfaceCapabilities{
		MinImageCount:           caps.MinImageCount,
		MaxImageCount:           caps.MaxImageCount,
		CurrentExtent:           halExtent(caps.CurrentExtent),
		MinImageExtent:          halExtent(caps.MinImageExtent),
		MaxImageExtent:          halExtent(caps.MaxImageExtent),
		SupportedTransforms:     caps.SupportedTransforms,
		CurrentTransform:        caps.CurrentTransform,
		SupportedCompositeAlpha: caps.SupportedCompositeAlpha,
	}, nil
}

func (d *Driver) SurfaceFormats(a hal.Adapter, s hal.Surface) ([]hal.SurfaceFormat, error) {
	gpu, surface := d.gpu(a), d.surfaces.get(uint64(s))
	var count uint32
	if ret := vk.GetPhysicalDeviceSurfaceFormats(gpu, surface, &count, nil); ret != vk.Success {
		return nil, newError("GetPhysicalDeviceSurfaceFormats", ret)
	}
	formats := make([]vk.SurfaceFormat, count)
	if ret := vk.GetPhysicalDeviceSurfaceFormats(gpu, surface, &count, formats); ret != vk.Success {
		return nil, newError("GetPhysicalDeviceSurfaceFormats", ret)
	}
	out := make([]hal.SurfaceFormat, 0, count)
	for _, f := range formats[:count] {
		f.Deref()
		out = append(out, hal.SurfaceFormat{Format: f.Format, ColorSpace: f.ColorSpace})
	}
	return out, nil
}

func (d *Driver) PresentModes(a hal.Adapter, s hal.Surface) ([]vk.PresentMode, error) {
	gpu, surface := d.gpu(a), d.surfaces.get(uint64(s))
	var count uint32
	if ret := vk.GetPhysicalDeviceSurfacePresentModes(gpu, surface, &count, nil); ret != vk.Success {
		return nil, newError("GetPhysicalDeviceSurfacePresentModes", ret)
	}
	modes := make([]vk.PresentMode, count)
	if ret := vk.GetPhysicalDeviceSurfacePresentModes(gpu, surface, &count, modes); ret != vk.Success {
		return nil, newError("GetPhysicalDeviceSurfacePresentModes", ret)
	}
	return modes[:count], nil
}
