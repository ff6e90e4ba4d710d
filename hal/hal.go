// Package hal is the narrow driver contract the renderer is written against.
//
// Handles are opaque integers owned by the driver that produced them, so the
// same frame-orchestration code runs on the Vulkan driver (package
// hal/vulkan) and on the allocation-tracking mock (package hal/mock).
// Enumerations and flag types are the Vulkan ones from vulkan-go; they are
// plain Go integers and carry no driver state.
package hal

import (
	"errors"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

type (
	Instance            uint64
	Surface             uint64
	Adapter             uint64
	Device              uint64
	Queue               uint64
	Swapchain           uint64
	Image               uint64
	ImageView           uint64
	Memory              uint64
	Buffer              uint64
	Sampler             uint64
	Semaphore           uint64
	Fence               uint64
	CommandPool         uint64
	CommandBuffer       uint64
	RenderPass          uint64
	Framebuffer         uint64
	ShaderModule        uint64
	PipelineLayout      uint64
	Pipeline            uint64
	DescriptorSetLayout uint64
	DescriptorPool      uint64
	DescriptorSet       uint64
)

// Null is the zero handle of every kind.
const Null = 0

// Infinite is the timeout passed to blocking waits that must not time out.
const Infinite = ^uint64(0)

// SubpassExternal addresses the implicit subpass outside a render pass.
const SubpassExternal = ^uint32(0)

const (
	ExtSurface   = "VK_KHR_surface"
	ExtSwapchain = "VK_KHR_swapchain"
	ExtDebug     = "VK_EXT_debug_report"

	LayerValidation = "VK_LAYER_KHRONOS_validation"
)

var (
	// ErrTimeout is returned by a fence wait that did not complete in time.
	ErrTimeout = errors.New("hal: wait timed out")
	// ErrDeviceLost is returned once the device can no longer execute work.
	ErrDeviceLost = errors.New("hal: device lost")
)

// Status reports whether a swapchain is still a good match for its surface.
type Status int

const (
	StatusOK Status = iota
	StatusSuboptimal
	StatusOutOfDate
)

// Stale reports whether the swapchain must be rebuilt.
func (s Status) Stale() bool { return s != StatusOK }

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusSuboptimal:
		return "suboptimal"
	case StatusOutOfDate:
		return "out-of-date"
	}
	return "unknown"
}

// SurfaceSource is anything that can create a presentation surface for an
// instance. *glfw.Window satisfies it.
type SurfaceSource interface {
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
}

// Driver is the full set of operations the renderer needs from a GPU API.
type Driver interface {
	InstanceAPI
	DeviceAPI
	SyncAPI
	ResourceAPI
	PipelineAPI
	CommandEncoder
}

type InstanceAPI interface {
	CreateInstance(desc InstanceDescriptor) (Instance, error)
	DestroyInstance(inst Instance)
	CreateSurface(inst Instance, src SurfaceSource) (Surface, error)
	DestroySurface(inst Instance, s Surface)
	EnumerateAdapters(inst Instance) ([]Adapter, error)
	AdapterInfo(a Adapter) (AdapterInfo, error)
	QueueFamilies(a Adapter, s Surface) ([]QueueFamily, error)
	MemoryTypes(a Adapter) []MemoryType
	SurfaceCapabilities(a Adapter, s Surface) (SurfaceCapabilities, error)
	SurfaceFormats(a Adapter, s Surface) ([]SurfaceFormat, error)
	PresentModes(a Adapter, s Surface) ([]vk.PresentMode, error)
}

type DeviceAPI interface {
	CreateDevice(a Adapter, desc DeviceDescriptor) (Device, error)
	DestroyDevice(d Device)
	DeviceQueue(d Device, family uint32) Queue
	DeviceWaitIdle(d Device) error

	CreateSwapchain(d Device, desc SwapchainDescriptor) (Swapchain, error)
	DestroySwapchain(d Device, sc Swapchain)
	SwapchainImages(d Device, sc Swapchain) ([]Image, error)
	AcquireNextImage(d Device, sc Swapchain, signal Semaphore, timeout uint64) (uint32, Status, error)

	QueueSubmit(q Queue, desc SubmitDescriptor, fence Fence) error
	QueuePresent(q Queue, desc PresentDescriptor) (Status, error)
	QueueWaitIdle(q Queue) error
}

type SyncAPI interface {
	CreateSemaphore(d Device) (Semaphore, error)
	DestroySemaphore(d Device, s Semaphore)
	CreateFence(d Device, signaled bool) (Fence, error)
	DestroyFence(d Device, f Fence)
	WaitForFences(d Device, fences []Fence, timeout uint64) error
	ResetFences(d Device, fences []Fence) error

	CreateCommandPool(d Device, family uint32, flags vk.CommandPoolCreateFlags) (CommandPool, error)
	DestroyCommandPool(d Device, p CommandPool)
	ResetCommandPool(d Device, p CommandPool) error
	AllocateCommandBuffers(d Device, p CommandPool, count uint32) ([]CommandBuffer, error)
	FreeCommandBuffers(d Device, p CommandPool, cbs []CommandBuffer)
}

type ResourceAPI interface {
	CreateBuffer(d Device, desc BufferDescriptor) (Buffer, error)
	DestroyBuffer(d Device, b Buffer)
	BufferMemoryRequirements(d Device, b Buffer) MemoryRequirements
	CreateImage(d Device, desc ImageDescriptor) (Image, error)
	DestroyImage(d Device, img Image)
	ImageMemoryRequirements(d Device, img Image) MemoryRequirements
	AllocateMemory(d Device, size uint64, typeIndex uint32) (Memory, error)
	FreeMemory(d Device, m Memory)
	BindBufferMemory(d Device, b Buffer, m Memory, offset uint64) error
	BindImageMemory(d Device, img Image, m Memory, offset uint64) error
	// WriteMemory maps host-visible memory, copies data at offset and unmaps.
	WriteMemory(d Device, m Memory, offset uint64, data []byte) error

	CreateImageView(d Device, desc ImageViewDescriptor) (ImageView, error)
	DestroyImageView(d Device, v ImageView)
	CreateSampler(d Device, desc SamplerDescriptor) (Sampler, error)
	DestroySampler(d Device, s Sampler)

	CreateDescriptorSetLayout(d Device, bindings []DescriptorBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(d Device, l DescriptorSetLayout)
	CreateDescriptorPool(d Device, maxSets uint32, sizes []DescriptorPoolSize) (DescriptorPool, error)
	// DestroyDescriptorPool also frees every set allocated from the pool.
	DestroyDescriptorPool(d Device, p DescriptorPool)
	AllocateDescriptorSet(d Device, p DescriptorPool, l DescriptorSetLayout) (DescriptorSet, error)
	UpdateDescriptorSets(d Device, writes []DescriptorWrite)
}

type PipelineAPI interface {
	CreateShaderModule(d Device, code []byte) (ShaderModule, error)
	DestroyShaderModule(d Device, m ShaderModule)
	CreatePipelineLayout(d Device, sets []DescriptorSetLayout, ranges []PushConstantRange) (PipelineLayout, error)
	DestroyPipelineLayout(d Device, l PipelineLayout)
	CreateRenderPass(d Device, desc RenderPassDescriptor) (RenderPass, error)
	DestroyRenderPass(d Device, rp RenderPass)
	CreateGraphicsPipeline(d Device, desc GraphicsPipelineDescriptor) (Pipeline, error)
	CreateComputePipeline(d Device, desc ComputePipelineDescriptor) (Pipeline, error)
	DestroyPipeline(d Device, p Pipeline)
	CreateFramebuffer(d Device, desc FramebufferDescriptor) (Framebuffer, error)
	DestroyFramebuffer(d Device, fb Framebuffer)
}

// CommandEncoder records into a command buffer. Recording calls do not
// fail individually; errors surface from EndCommandBuffer or submission.
type CommandEncoder interface {
	BeginCommandBuffer(cb CommandBuffer, oneTime bool) error
	EndCommandBuffer(cb CommandBuffer) error
	CmdPipelineBarrier(cb CommandBuffer, src, dst vk.PipelineStageFlags, barriers []ImageBarrier)
	CmdBindPipeline(cb CommandBuffer, point vk.PipelineBindPoint, p Pipeline)
	CmdBindDescriptorSets(cb CommandBuffer, point vk.PipelineBindPoint, layout PipelineLayout, first uint32, sets []DescriptorSet)
	CmdPushConstants(cb CommandBuffer, layout PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte)
	CmdDispatch(cb CommandBuffer, x, y, z uint32)
	CmdBeginRenderPass(cb CommandBuffer, begin RenderPassBegin)
	CmdDraw(cb CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32)
	CmdNextSubpass(cb CommandBuffer)
	CmdEndRenderPass(cb CommandBuffer)
	CmdCopyBuffer(cb CommandBuffer, src, dst Buffer, size uint64)
}
