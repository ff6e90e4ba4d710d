// Package mock is an in-memory hal.Driver. It tracks every live object so
// tests can assert that construction followed by destruction leaks nothing,
// signals fences on submit as a GPU making instant progress would, and can
// be scripted to report stale swapchains or fail specific calls.
package mock

import (
	"fmt"
	"sort"
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselrt/hal"
)

// Object kinds reported by Live and LiveOf.
const (
	KindInstance            = "instance"
	KindSurface             = "surface"
	KindDevice              = "device"
	KindSwapchain           = "swapchain"
	KindImage               = "image"
	KindImageView           = "image-view"
	KindMemory              = "memory"
	KindBuffer              = "buffer"
	KindSampler             = "sampler"
	KindSemaphore           = "semaphore"
	KindFence               = "fence"
	KindCommandPool         = "command-pool"
	KindCommandBuffer       = "command-buffer"
	KindRenderPass          = "render-pass"
	KindFramebuffer         = "framebuffer"
	KindShaderModule        = "shader-module"
	KindPipelineLayout      = "pipeline-layout"
	KindPipeline            = "pipeline"
	KindDescriptorSetLayout = "descriptor-set-layout"
	KindDescriptorPool      = "descriptor-pool"
)

// ErrInjected is the default error returned by a call armed with Fail.
var ErrInjected = errors.New("mock: injected failure")

// AdapterConfig describes one fake physical device.
type AdapterConfig struct {
	Name          string
	Extensions    []string
	QueueFamilies []hal.QueueFamily
	MemoryTypes   []hal.MemoryType
}

// Call is one recorded driver invocation.
type Call struct {
	Op   string
	Args []interface{}
}

func (c Call) String() string {
	return fmt.Sprintf("%s%v", c.Op, c.Args)
}

// Submission is one recorded QueueSubmit.
type Submission struct {
	Queue hal.Queue
	Desc  hal.SubmitDescriptor
	Fence hal.Fence
}

// Presentation is one recorded QueuePresent.
type Presentation struct {
	Queue hal.Queue
	Desc  hal.PresentDescriptor
}

type swapchainState struct {
	desc   hal.SwapchainDescriptor
	images []hal.Image
	next   uint32
}

type Driver struct {
	Adapters     []AdapterConfig
	Capabilities hal.SurfaceCapabilities
	Formats      []hal.SurfaceFormat
	Modes        []vk.PresentMode

	// AcquireScript and PresentScript are consumed one status per call;
	// once empty every call reports hal.StatusOK.
	AcquireScript []hal.Status
	PresentScript []hal.Status

	Calls         []Call
	Submissions   []Submission
	Presentations []Presentation
	Swapchains    []hal.SwapchainDescriptor
	Writes        map[hal.Memory][]byte

	next      uint64
	live      map[uint64]string
	adapters  map[hal.Adapter]int
	fences    map[hal.Fence]bool
	swaps     map[hal.Swapchain]*swapchainState
	poolSets  map[hal.DescriptorPool][]uint64
	cmdPools  map[hal.CommandBuffer]hal.CommandPool
	failures  map[string][]error
	recording map[hal.CommandBuffer]bool
}

// New returns a driver with one adapter that supports the swapchain
// extension, a single graphics+present queue family, a device-local and a
// host-visible coherent memory type, and a surface reporting
// BGRA8/SRGB, FIFO+MAILBOX and a 2..3 image range at 800x600.
func New() *Driver {
	return &Driver{
		Adapters: []AdapterConfig{DefaultAdapter("mock-gpu")},
		Capabilities: hal.SurfaceCapabilities{
			MinImageCount:           2,
			MaxImageCount:           3,
			CurrentExtent:           hal.Extent2D{Width: 800, Height: 600},
			MinImageExtent:          hal.Extent2D{Width: 1, Height: 1},
			MaxImageExtent:          hal.Extent2D{Width: 4096, Height: 4096},
			SupportedTransforms:     vk.SurfaceTransformFlags(vk.SurfaceTransformIdentityBit),
			CurrentTransform:        vk.SurfaceTransformIdentityBit,
			SupportedCompositeAlpha: vk.CompositeAlphaFlags(vk.CompositeAlphaOpaqueBit),
		},
		Formats: []hal.SurfaceFormat{
			{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
		},
		Modes:     []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeMailbox},
		Writes:    map[hal.Memory][]byte{},
		live:      map[uint64]string{},
		adapters:  map[hal.Adapter]int{},
		fences:    map[hal.Fence]bool{},
		swaps:     map[hal.Swapchain]*swapchainState{},
		poolSets:  map[hal.DescriptorPool][]uint64{},
		cmdPools:  map[hal.CommandBuffer]hal.CommandPool{},
		failures:  map[string][]error{},
		recording: map[hal.CommandBuffer]bool{},
	}
}

// DefaultAdapter is a fully capable adapter configuration.
func DefaultAdapter(name string) AdapterConfig {
	return AdapterConfig{
		Name:       name,
		Extensions: []string{hal.ExtSwapchain},
		QueueFamilies: []hal.QueueFamily{
			{Index: 0, Flags: vk.QueueFlags(vk.QueueGraphicsBit | vk.QueueComputeBit | vk.QueueTransferBit), Count: 1, Present: true},
		},
		MemoryTypes: []hal.MemoryType{
			{Flags: vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)},
			{Flags: vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit), Heap: 1},
		},
	}
}

// Fail arms op so that its next call returns err (ErrInjected when nil).
// Arming the same op repeatedly queues failures in order.
func (d *Driver) Fail(op string, err error) {
	if err == nil {
		err = ErrInjected
	}
	d.failures[op] = append(d.failures[op], err)
}

// Live returns the number of objects created and not yet destroyed.
func (d *Driver) Live() int { return len(d.live) }

// LiveOf returns the number of live objects of one kind.
func (d *Driver) LiveOf(kind string) int {
	n := 0
	for _, k := range d.live {
		if k == kind {
			n++
		}
	}
	return n
}

// Leaks lists the kinds of the objects still alive, sorted.
func (d *Driver) Leaks() []string {
	var out []string
	for _, k := range d.live {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Ops returns the recorded operation names in call order.
func (d *Driver) Ops() []string {
	out := make([]string, len(d.Calls))
	for i, c := range d.Calls {
		out[i] = c.Op
	}
	return out
}

// Count returns how many times op was called.
func (d *Driver) Count(op string) int {
	n := 0
	for _, c := range d.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Find returns the recorded calls of op.
func (d *Driver) Find(op string) []Call {
	var out []Call
	for _, c := range d.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls clears the call log and the submit/present records.
func (d *Driver) ResetCalls() {
	d.Calls = nil
	d.Submissions = nil
	d.Presentations = nil
}

// Signaled reports whether f is in the signaled state.
func (d *Driver) Signaled(f hal.Fence) bool { return d.fences[f] }

func (d *Driver) record(op string, args ...interface{}) {
	d.Calls = append(d.Calls, Call{Op: op, Args: args})
}

func (d *Driver) fail(op string) error {
	queued := d.failures[op]
	if len(queued) == 0 {
		return nil
	}
	d.failures[op] = queued[1:]
	return errors.Wrapf(queued[0], "mock %s", op)
}

func (d *Driver) alloc(kind string) uint64 {
	d.next++
	d.live[d.next] = kind
	return d.next
}

func (d *Driver) release(op string, h uint64, kind string) {
	d.record(op, h)
	if h == hal.Null {
		return
	}
	if got, ok := d.live[h]; !ok || got != kind {
		panic(fmt.Sprintf("mock: %s on handle %d which is not a live %s", op, h, kind))
	}
	delete(d.live, h)
}

func (d *Driver) create(op, kind string, args ...interface{}) (uint64, error) {
	d.record(op, args...)
	if err := d.fail(op); err != nil {
		return hal.Null, err
	}
	return d.alloc(kind), nil
}

func (d *Driver) CreateInstance(desc hal.InstanceDescriptor) (hal.Instance, error) {
	h, err := d.create("CreateInstance", KindInstance, desc)
	if err != nil {
		return hal.Null, err
	}
	for i := range d.Adapters {
		// adapters are not tracked allocations, they live as long as the instance
		d.next++
		d.adapters[hal.Adapter(d.next)] = i
	}
	return hal.Instance(h), nil
}

func (d *Driver) DestroyInstance(inst hal.Instance) {
	d.release("DestroyInstance", uint64(inst), KindInstance)
}

// CreateSurface asks src for a surface first, so a window can refuse.
func (d *Driver) CreateSurface(inst hal.Instance, src hal.SurfaceSource) (hal.Surface, error) {
	if _, err := src.CreateWindowSurface(inst, nil); err != nil {
		d.record("CreateSurface", inst)
		return hal.Null, errors.Wrap(err, "mock CreateSurface")
	}
	h, err := d.create("CreateSurface", KindSurface, inst)
	return hal.Surface(h), err
}

func (d *Driver) DestroySurface(_ hal.Instance, s hal.Surface) {
	d.release("DestroySurface", uint64(s), KindSurface)
}

func (d *Driver) EnumerateAdapters(inst hal.Instance) ([]hal.Adapter, error) {
	d.record("EnumerateAdapters", inst)
	if err := d.fail("EnumerateAdapters"); err != nil {
		return nil, err
	}
	out := make([]hal.Adapter, 0, len(d.adapters))
	for a := range d.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (d *Driver) adapter(a hal.Adapter) AdapterConfig {
	return d.Adapters[d.adapters[a]]
}

func (d *Driver) AdapterInfo(a hal.Adapter) (hal.AdapterInfo, error) {
	cfg := d.adapter(a)
	return hal.AdapterInfo{
		Name:       cfg.Name,
		Type:       vk.PhysicalDeviceTypeDiscreteGpu,
		APIVersion: vk.MakeVersion(1, 2, 0),
		Extensions: cfg.Extensions,
	}, nil
}

func (d *Driver) QueueFamilies(a hal.Adapter, _ hal.Surface) ([]hal.QueueFamily, error) {
	return d.adapter(a).QueueFamilies, nil
}

func (d *Driver) MemoryTypes(a hal.Adapter) []hal.MemoryType {
	return d.adapter(a).MemoryTypes
}

func (d *Driver) SurfaceCapabilities(_ hal.Adapter, _ hal.Surface) (hal.SurfaceCapabilities, error) {
	d.record("SurfaceCapabilities")
	if err := d.fail("SurfaceCapabilities"); err != nil {
		return hal.SurfaceCapabilities{}, err
	}
	return d.Capabilities, nil
}

func (d *Driver) SurfaceFormats(_ hal.Adapter, _ hal.Surface) ([]hal.SurfaceFormat, error) {
	return d.Formats, nil
}

func (d *Driver) PresentModes(_ hal.Adapter, _ hal.Surface) ([]vk.PresentMode, error) {
	return d.Modes, nil
}

func (d *Driver) CreateDevice(a hal.Adapter, desc hal.DeviceDescriptor) (hal.Device, error) {
	h, err := d.create("CreateDevice", KindDevice, a, desc)
	return hal.Device(h), err
}

func (d *Driver) DestroyDevice(dev hal.Device) {
	d.release("DestroyDevice", uint64(dev), KindDevice)
}

// DeviceQueue returns a stable fake queue handle per family.
func (d *Driver) DeviceQueue(_ hal.Device, family uint32) hal.Queue {
	return hal.Queue(1000 + family)
}

func (d *Driver) DeviceWaitIdle(dev hal.Device) error {
	d.record("DeviceWaitIdle", dev)
	return d.fail("DeviceWaitIdle")
}

func (d *Driver) CreateSwapchain(dev hal.Device, desc hal.SwapchainDescriptor) (hal.Swapchain, error) {
	h, err := d.create("CreateSwapchain", KindSwapchain, desc)
	if err != nil {
		return hal.Null, err
	}
	d.Swapchains = append(d.Swapchains, desc)
	st := &swapchainState{desc: desc}
	for i := uint32(0); i < desc.MinImageCount; i++ {
		// presentation-engine images, not application allocations
		d.next++
		st.images = append(st.images, hal.Image(d.next))
	}
	d.swaps[hal.Swapchain(h)] = st
	return hal.Swapchain(h), nil
}

func (d *Driver) DestroySwapchain(_ hal.Device, sc hal.Swapchain) {
	d.release("DestroySwapchain", uint64(sc), KindSwapchain)
	delete(d.swaps, sc)
}

func (d *Driver) SwapchainImages(_ hal.Device, sc hal.Swapchain) ([]hal.Image, error) {
	d.record("SwapchainImages", sc)
	if err := d.fail("SwapchainImages"); err != nil {
		return nil, err
	}
	st, ok := d.swaps[sc]
	if !ok {
		return nil, errors.Errorf("mock: unknown swapchain %d", sc)
	}
	return append([]hal.Image(nil), st.images...), nil
}

func (d *Driver) AcquireNextImage(_ hal.Device, sc hal.Swapchain, signal hal.Semaphore, _ uint64) (uint32, hal.Status, error) {
	d.record("AcquireNextImage", sc, signal)
	if err := d.fail("AcquireNextImage"); err != nil {
		return 0, hal.StatusOK, err
	}
	status := hal.StatusOK
	if len(d.AcquireScript) > 0 {
		status = d.AcquireScript[0]
		d.AcquireScript = d.AcquireScript[1:]
	}
	if status == hal.StatusOutOfDate {
		return 0, status, nil
	}
	st := d.swaps[sc]
	idx := st.next
	st.next = (st.next + 1) % uint32(len(st.images))
	return idx, status, nil
}

func (d *Driver) QueueSubmit(q hal.Queue, desc hal.SubmitDescriptor, fence hal.Fence) error {
	d.record("QueueSubmit", q, fence)
	if err := d.fail("QueueSubmit"); err != nil {
		return err
	}
	for _, cb := range desc.CommandBuffers {
		if d.recording[cb] {
			return errors.Errorf("mock: submitted command buffer %d is still recording", cb)
		}
	}
	d.Submissions = append(d.Submissions, Submission{Queue: q, Desc: desc, Fence: fence})
	if fence != hal.Null {
		d.fences[fence] = true
	}
	return nil
}

func (d *Driver) QueuePresent(q hal.Queue, desc hal.PresentDescriptor) (hal.Status, error) {
	d.record("QueuePresent", q, desc.ImageIndex)
	if err := d.fail("QueuePresent"); err != nil {
		return hal.StatusOK, err
	}
	d.Presentations = append(d.Presentations, Presentation{Queue: q, Desc: desc})
	if len(d.PresentScript) > 0 {
		status := d.PresentScript[0]
		d.PresentScript = d.PresentScript[1:]
		return status, nil
	}
	return hal.StatusOK, nil
}

func (d *Driver) QueueWaitIdle(q hal.Queue) error {
	d.record("QueueWaitIdle", q)
	return d.fail("QueueWaitIdle")
}

func (d *Driver) CreateSemaphore(dev hal.Device) (hal.Semaphore, error) {
	h, err := d.create("CreateSemaphore", KindSemaphore)
	return hal.Semaphore(h), err
}

func (d *Driver) DestroySemaphore(_ hal.Device, s hal.Semaphore) {
	d.release("DestroySemaphore", uint64(s), KindSemaphore)
}

func (d *Driver) CreateFence(_ hal.Device, signaled bool) (hal.Fence, error) {
	h, err := d.create("CreateFence", KindFence, signaled)
	if err != nil {
		return hal.Null, err
	}
	d.fences[hal.Fence(h)] = signaled
	return hal.Fence(h), nil
}

func (d *Driver) DestroyFence(_ hal.Device, f hal.Fence) {
	d.release("DestroyFence", uint64(f), KindFence)
	delete(d.fences, f)
}

// WaitForFences never blocks: there is no GPU to signal an unsignaled
// fence later, so such a wait reports hal.ErrTimeout immediately.
func (d *Driver) WaitForFences(_ hal.Device, fences []hal.Fence, _ uint64) error {
	d.record("WaitForFences", fences)
	if err := d.fail("WaitForFences"); err != nil {
		return err
	}
	for _, f := range fences {
		if !d.fences[f] {
			return errors.Wrapf(hal.ErrTimeout, "mock: fence %d never signaled", f)
		}
	}
	return nil
}

func (d *Driver) ResetFences(_ hal.Device, fences []hal.Fence) error {
	d.record("ResetFences", fences)
	if err := d.fail("ResetFences"); err != nil {
		return err
	}
	for _, f := range fences {
		d.fences[f] = false
	}
	return nil
}

func (d *Driver) CreateCommandPool(_ hal.Device, family uint32, flags vk.CommandPoolCreateFlags) (hal.CommandPool, error) {
	h, err := d.create("CreateCommandPool", KindCommandPool, family, flags)
	return hal.CommandPool(h), err
}

// DestroyCommandPool frees the buffers still allocated from the pool.
func (d *Driver) DestroyCommandPool(_ hal.Device, p hal.CommandPool) {
	for cb, pool := range d.cmdPools {
		if pool == p {
			delete(d.live, uint64(cb))
			delete(d.cmdPools, cb)
		}
	}
	d.release("DestroyCommandPool", uint64(p), KindCommandPool)
}

func (d *Driver) ResetCommandPool(_ hal.Device, p hal.CommandPool) error {
	d.record("ResetCommandPool", p)
	return d.fail("ResetCommandPool")
}

func (d *Driver) AllocateCommandBuffers(_ hal.Device, p hal.CommandPool, count uint32) ([]hal.CommandBuffer, error) {
	d.record("AllocateCommandBuffers", p, count)
	if err := d.fail("AllocateCommandBuffers"); err != nil {
		return nil, err
	}
	out := make([]hal.CommandBuffer, count)
	for i := range out {
		out[i] = hal.CommandBuffer(d.alloc(KindCommandBuffer))
		d.cmdPools[out[i]] = p
	}
	return out, nil
}

func (d *Driver) FreeCommandBuffers(_ hal.Device, _ hal.CommandPool, cbs []hal.CommandBuffer) {
	for _, cb := range cbs {
		d.release("FreeCommandBuffers", uint64(cb), KindCommandBuffer)
		delete(d.cmdPools, cb)
	}
}

func (d *Driver) CreateBuffer(_ hal.Device, desc hal.BufferDescriptor) (hal.Buffer, error) {
	h, err := d.create("CreateBuffer", KindBuffer, desc.Size, desc.Usage)
	return hal.Buffer(h), err
}

func (d *Driver) DestroyBuffer(_ hal.Device, b hal.Buffer) {
	d.release("DestroyBuffer", uint64(b), KindBuffer)
}

func (d *Driver) BufferMemoryRequirements(_ hal.Device, _ hal.Buffer) hal.MemoryRequirements {
	return hal.MemoryRequirements{Size: 256, Alignment: 16, TypeBits: 0xFFFFFFFF}
}

func (d *Driver) CreateImage(_ hal.Device, desc hal.ImageDescriptor) (hal.Image, error) {
	h, err := d.create("CreateImage", KindImage, desc)
	return hal.Image(h), err
}

func (d *Driver) DestroyImage(_ hal.Device, img hal.Image) {
	d.release("DestroyImage", uint64(img), KindImage)
}

func (d *Driver) ImageMemoryRequirements(_ hal.Device, _ hal.Image) hal.MemoryRequirements {
	return hal.MemoryRequirements{Size: 4096, Alignment: 256, TypeBits: 0xFFFFFFFF}
}

func (d *Driver) AllocateMemory(_ hal.Device, size uint64, typeIndex uint32) (hal.Memory, error) {
	h, err := d.create("AllocateMemory", KindMemory, size, typeIndex)
	return hal.Memory(h), err
}

func (d *Driver) FreeMemory(_ hal.Device, m hal.Memory) {
	d.release("FreeMemory", uint64(m), KindMemory)
	delete(d.Writes, m)
}

func (d *Driver) BindBufferMemory(_ hal.Device, b hal.Buffer, m hal.Memory, offset uint64) error {
	d.record("BindBufferMemory", b, m, offset)
	return d.fail("BindBufferMemory")
}

func (d *Driver) BindImageMemory(_ hal.Device, img hal.Image, m hal.Memory, offset uint64) error {
	d.record("BindImageMemory", img, m, offset)
	return d.fail("BindImageMemory")
}

func (d *Driver) WriteMemory(_ hal.Device, m hal.Memory, offset uint64, data []byte) error {
	d.record("WriteMemory", m, offset, len(data))
	if err := d.fail("WriteMemory"); err != nil {
		return err
	}
	buf := d.Writes[m]
	if need := int(offset) + len(data); len(buf) < need {
		buf = append(buf, make([]byte, need-len(buf))...)
	}
	copy(buf[offset:], data)
	d.Writes[m] = buf
	return nil
}

func (d *Driver) CreateImageView(_ hal.Device, desc hal.ImageViewDescriptor) (hal.ImageView, error) {
	h, err := d.create("CreateImageView", KindImageView, desc.Image)
	return hal.ImageView(h), err
}

func (d *Driver) DestroyImageView(_ hal.Device, v hal.ImageView) {
	d.release("DestroyImageView", uint64(v), KindImageView)
}

func (d *Driver) CreateSampler(_ hal.Device, desc hal.SamplerDescriptor) (hal.Sampler, error) {
	h, err := d.create("CreateSampler", KindSampler, desc)
	return hal.Sampler(h), err
}

func (d *Driver) DestroySampler(_ hal.Device, s hal.Sampler) {
	d.release("DestroySampler", uint64(s), KindSampler)
}

func (d *Driver) CreateDescriptorSetLayout(_ hal.Device, bindings []hal.DescriptorBinding) (hal.DescriptorSetLayout, error) {
	h, err := d.create("CreateDescriptorSetLayout", KindDescriptorSetLayout, bindings)
	return hal.DescriptorSetLayout(h), err
}

func (d *Driver) DestroyDescriptorSetLayout(_ hal.Device, l hal.DescriptorSetLayout) {
	d.release("DestroyDescriptorSetLayout", uint64(l), KindDescriptorSetLayout)
}

func (d *Driver) CreateDescriptorPool(_ hal.Device, maxSets uint32, sizes []hal.DescriptorPoolSize) (hal.DescriptorPool, error) {
	h, err := d.create("CreateDescriptorPool", KindDescriptorPool, maxSets, sizes)
	return hal.DescriptorPool(h), err
}

func (d *Driver) DestroyDescriptorPool(_ hal.Device, p hal.DescriptorPool) {
	delete(d.poolSets, p)
	d.release("DestroyDescriptorPool", uint64(p), KindDescriptorPool)
}

// AllocateDescriptorSet hands out set handles owned by the pool; they are
// not counted as separate allocations.
func (d *Driver) AllocateDescriptorSet(_ hal.Device, p hal.DescriptorPool, l hal.DescriptorSetLayout) (hal.DescriptorSet, error) {
	d.record("AllocateDescriptorSet", p, l)
	if err := d.fail("AllocateDescriptorSet"); err != nil {
		return hal.Null, err
	}
	d.next++
	d.poolSets[p] = append(d.poolSets[p], d.next)
	return hal.DescriptorSet(d.next), nil
}

func (d *Driver) UpdateDescriptorSets(_ hal.Device, writes []hal.DescriptorWrite) {
	d.record("UpdateDescriptorSets", writes)
}

func (d *Driver) CreateShaderModule(_ hal.Device, code []byte) (hal.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		d.record("CreateShaderModule", len(code))
		return hal.Null, errors.Errorf("mock: shader code size %d is not a multiple of 4", len(code))
	}
	h, err := d.create("CreateShaderModule", KindShaderModule, len(code))
	return hal.ShaderModule(h), err
}

func (d *Driver) DestroyShaderModule(_ hal.Device, m hal.ShaderModule) {
	d.release("DestroyShaderModule", uint64(m), KindShaderModule)
}

func (d *Driver) CreatePipelineLayout(_ hal.Device, sets []hal.DescriptorSetLayout, ranges []hal.PushConstantRange) (hal.PipelineLayout, error) {
	h, err := d.create("CreatePipelineLayout", KindPipelineLayout, sets, ranges)
	return hal.PipelineLayout(h), err
}

func (d *Driver) DestroyPipelineLayout(_ hal.Device, l hal.PipelineLayout) {
	d.release("DestroyPipelineLayout", uint64(l), KindPipelineLayout)
}

func (d *Driver) CreateRenderPass(_ hal.Device, desc hal.RenderPassDescriptor) (hal.RenderPass, error) {
	h, err := d.create("CreateRenderPass", KindRenderPass, desc)
	return hal.RenderPass(h), err
}

func (d *Driver) DestroyRenderPass(_ hal.Device, rp hal.RenderPass) {
	d.release("DestroyRenderPass", uint64(rp), KindRenderPass)
}

func (d *Driver) CreateGraphicsPipeline(_ hal.Device, desc hal.GraphicsPipelineDescriptor) (hal.Pipeline, error) {
	for _, st := range desc.Stages {
		if _, ok := d.live[uint64(st.Module)]; !ok {
			d.record("CreateGraphicsPipeline", desc)
			return hal.Null, errors.Errorf("mock: shader module %d is not live", st.Module)
		}
	}
	h, err := d.create("CreateGraphicsPipeline", KindPipeline, desc)
	return hal.Pipeline(h), err
}

func (d *Driver) CreateComputePipeline(_ hal.Device, desc hal.ComputePipelineDescriptor) (hal.Pipeline, error) {
	h, err := d.create("CreateComputePipeline", KindPipeline, desc)
	return hal.Pipeline(h), err
}

func (d *Driver) DestroyPipeline(_ hal.Device, p hal.Pipeline) {
	d.release("DestroyPipeline", uint64(p), KindPipeline)
}

func (d *Driver) CreateFramebuffer(_ hal.Device, desc hal.FramebufferDescriptor) (hal.Framebuffer, error) {
	h, err := d.create("CreateFramebuffer", KindFramebuffer, desc)
	return hal.Framebuffer(h), err
}

func (d *Driver) DestroyFramebuffer(_ hal.Device, fb hal.Framebuffer) {
	d.release("DestroyFramebuffer", uint64(fb), KindFramebuffer)
}

func (d *Driver) BeginCommandBuffer(cb hal.CommandBuffer, oneTime bool) error {
	d.record("BeginCommandBuffer", cb, oneTime)
	if err := d.fail("BeginCommandBuffer"); err != nil {
		return err
	}
	d.recording[cb] = true
	return nil
}

func (d *Driver) EndCommandBuffer(cb hal.CommandBuffer) error {
	d.record("EndCommandBuffer", cb)
	if err := d.fail("EndCommandBuffer"); err != nil {
		return err
	}
	delete(d.recording, cb)
	return nil
}

func (d *Driver) CmdPipelineBarrier(cb hal.CommandBuffer, src, dst vk.PipelineStageFlags, barriers []hal.ImageBarrier) {
	d.record("CmdPipelineBarrier", src, dst, barriers)
}

func (d *Driver) CmdBindPipeline(cb hal.CommandBuffer, point vk.PipelineBindPoint, p hal.Pipeline) {
	d.record("CmdBindPipeline", point, p)
}

func (d *Driver) CmdBindDescriptorSets(cb hal.CommandBuffer, point vk.PipelineBindPoint, layout hal.PipelineLayout, first uint32, sets []hal.DescriptorSet) {
	d.record("CmdBindDescriptorSets", point, layout, first, sets)
}

func (d *Driver) CmdPushConstants(cb hal.CommandBuffer, layout hal.PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte) {
	d.record("CmdPushConstants", layout, stages, offset, append([]byte(nil), data...))
}

func (d *Driver) CmdDispatch(cb hal.CommandBuffer, x, y, z uint32) {
	d.record("CmdDispatch", x, y, z)
}

func (d *Driver) CmdBeginRenderPass(cb hal.CommandBuffer, begin hal.RenderPassBegin) {
	d.record("CmdBeginRenderPass", begin)
}

func (d *Driver) CmdDraw(cb hal.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	d.record("CmdDraw", vertexCount, instanceCount, firstVertex, firstInstance)
}

func (d *Driver) CmdNextSubpass(cb hal.CommandBuffer) {
	d.record("CmdNextSubpass")
}

func (d *Driver) CmdEndRenderPass(cb hal.CommandBuffer) {
	d.record("CmdEndRenderPass")
}

func (d *Driver) CmdCopyBuffer(cb hal.CommandBuffer, src, dst hal.Buffer, size uint64) {
	d.record("CmdCopyBuffer", src, dst, size)
}

// Window is a windowing collaborator for tests. Sizes are consumed one per
// FramebufferSize call until a single entry remains, which then repeats.
type Window struct {
	Sizes       [][2]int
	Close       bool
	Extensions  []string
	PollCount   int
	WaitCount   int
	resized     bool
	SurfaceErr  error
	SurfaceCall int
}

// NewWindow returns a window that reports w×h forever.
func NewWindow(w, h int) *Window {
	return &Window{Sizes: [][2]int{{w, h}}, Extensions: []string{hal.ExtSurface, "VK_KHR_xcb_surface"}}
}

func (w *Window) CreateWindowSurface(instance interface{}, _ unsafe.Pointer) (uintptr, error) {
	w.SurfaceCall++
	return 0, w.SurfaceErr
}

func (w *Window) FramebufferSize() (int, int) {
	s := w.Sizes[0]
	if len(w.Sizes) > 1 {
		w.Sizes = w.Sizes[1:]
	}
	return s[0], s[1]
}

func (w *Window) ShouldClose() bool { return w.Close }

func (w *Window) PollEvents() { w.PollCount++ }

func (w *Window) WaitEvents() { w.WaitCount++ }

// Resize arms the edge-triggered resize flag.
func (w *Window) Resize() { w.resized = true }

func (w *Window) Resized() bool {
	r := w.resized
	w.resized = false
	return r
}

func (w *Window) RequiredInstanceExtensions() []string { return w.Extensions }
