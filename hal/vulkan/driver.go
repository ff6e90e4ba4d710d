// Package vulkan implements hal.Driver on top of github.com/vulkan-go/vulkan.
//
// vk.SetGetInstanceProcAddr and vk.Init must have been called, typically
// with the loader returned by glfw, before the first CreateInstance.
package vulkan

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselrt/hal"
)

// table maps the opaque hal handles handed out by the driver to the vulkan
// objects behind them. A missing handle yields the zero value, which is the
// Vulkan null handle for every object type.
type table[T any] struct {
	mu    sync.Mutex
	next  *atomic.Uint64
	items map[uint64]T
}

func newTable[T any](next *atomic.Uint64) *table[T] {
	return &table[T]{next: next, items: map[uint64]T{}}
}

func (t *table[T]) put(v T) uint64 {
	h := t.next.Add(1)
	t.mu.Lock()
	t.items[h] = v
	t.mu.Unlock()
	return h
}

func (t *table[T]) get(h uint64) T {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.items[h]
}

func (t *table[T]) take(h uint64) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.items[h]
	delete(t.items, h)
	return v, ok
}

type instanceState struct {
	handle vk.Instance
	debug  vk.DebugReportCallback
}

type descriptorPoolState struct {
	handle vk.DescriptorPool
	sets   []uint64
}

// Driver owns every object it creates through its handle tables.
type Driver struct {
	next atomic.Uint64

	instances   *table[*instanceState]
	surfaces    *table[vk.Surface]
	adapters    *table[vk.PhysicalDevice]
	devices     *table[vk.Device]
	queues      *table[vk.Queue]
	swapchains  *table[vk.Swapchain]
	images      *table[vk.Image]
	views       *table[vk.ImageView]
	memories    *table[vk.DeviceMemory]
	buffers     *table[vk.Buffer]
	samplers    *table[vk.Sampler]
	semaphores  *table[vk.Semaphore]
	fences      *table[vk.Fence]
	cmdPools    *table[vk.CommandPool]
	cmdBuffers  *table[vk.CommandBuffer]
	renderPass  *table[vk.RenderPass]
	framebuffer *table[vk.Framebuffer]
	modules     *table[vk.ShaderModule]
	layouts     *table[vk.PipelineLayout]
	pipelines   *table[vk.Pipeline]
	setLayouts  *table[vk.DescriptorSetLayout]
	descPools   *table[*descriptorPoolState]
	descSets    *table[vk.DescriptorSet]

	mu sync.Mutex
	// adapter handles are stable per physical device
	adapterIDs  map[vk.PhysicalDevice]hal.Adapter
	chainImages map[hal.Swapchain][]hal.Image
}

var _ hal.Driver = (*Driver)(nil)

func New() *Driver {
	d := &Driver{
		adapterIDs:  map[vk.PhysicalDevice]hal.Adapter{},
		chainImages: map[hal.Swapchain][]hal.Image{},
	}
	d.instances = newTable[*instanceState](&d.next)
	d.surfaces = newTable[vk.Surface](&d.next)
	d.adapters = newTable[vk.PhysicalDevice](&d.next)
	d.devices = newTable[vk.Device](&d.next)
	d.queues = newTable[vk.Queue](&d.next)
	d.swapchains = newTable[vk.Swapchain](&d.next)
	d.images = newTable[vk.Image](&d.next)
	d.views = newTable[vk.ImageView](&d.next)
	d.memories = newTable[vk.DeviceMemory](&d.next)
	d.buffers = newTable[vk.Buffer](&d.next)
	d.samplers = newTable[vk.Sampler](&d.next)
	d.semaphores = newTable[vk.Semaphore](&d.next)
	d.fences = newTable[vk.Fence](&d.next)
	d.cmdPools = newTable[vk.CommandPool](&d.next)
	d.cmdBuffers = newTable[vk.CommandBuffer](&d.next)
	d.renderPass = newTable[vk.RenderPass](&d.next)
	d.framebuffer = newTable[vk.Framebuffer](&d.next)
	d.modules = newTable[vk.ShaderModule](&d.next)
	d.layouts = newTable[vk.PipelineLayout](&d.next)
	d.pipelines = newTable[vk.Pipeline](&d.next)
	d.setLayouts = newTable[vk.DescriptorSetLayout](&d.next)
	d.descPools = newTable[*descriptorPoolState](&d.next)
	d.descSets = newTable[vk.DescriptorSet](&d.next)
	return d
}

func (d *Driver) device(h hal.Device) vk.Device { return d.devices.get(uint64(h)) }

// newError converts a failed vk.Result into an error carrying a stack.
// Device loss and timeouts wrap the hal sentinels.
func newError(op string, ret vk.Result) error {
	switch ret {
	case vk.Success:
		return nil
	case vk.ErrorDeviceLost:
		return errors.Wrap(hal.ErrDeviceLost, op)
	case vk.Timeout:
		return errors.Wrap(hal.ErrTimeout, op)
	}
	return errors.Errorf("vulkan: %s: %s (%d)", op, describe(ret), ret)
}

func describe(ret vk.Result) string {
	if err := vk.Error(ret); err != nil {
		return err.Error()
	}
	return fmt.Sprintf("result %d", ret)
}

// status maps the swapchain results that are not errors.
func status(op string, ret vk.Result) (hal.Status, error) {
	switch ret {
	case vk.Success:
		return hal.StatusOK, nil
	case vk.Suboptimal:
		return hal.StatusSuboptimal, nil
	case vk.ErrorOutOfDate:
		return hal.StatusOutOfDate, nil
	}
	return hal.StatusOK, newError(op, ret)
}

func safeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != '\x00' {
		return s + "\x00"
	}
	return s
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = safeString(s)
	}
	return out
}

// sliceUint32 reinterprets SPIR-V bytes as words without copying.
func sliceUint32(data []byte) []uint32 {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}

// checkExisting splits the wanted names into those available, terminated
// for the C API, and those missing.
func checkExisting(actual, wanted []string) (existing []string, missing []string) {
	have := make(map[string]bool, len(actual))
	for _, name := range actual {
		have[safeString(name)] = true
	}
	for _, name := range wanted {
		if have[safeString(name)] {
			existing = append(existing, safeString(name))
		} else {
			missing = append(missing, name)
		}
	}
	return existing, missing
}

func extent(e hal.Extent2D) vk.Extent2D {
	return vk.Extent2D{Width: e.Width, Height: e.Height}
}

func halExtent(e vk.Extent2D) hal.Extent2D {
	e.Deref()
	return hal.Extent2D{Width: e.Width, Height: e.Height}
}

func colorRange() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LevelCount: 1,
		LayerCount: 1,
	}
}
