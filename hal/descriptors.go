package hal

import vk "github.com/vulkan-go/vulkan"

type Extent2D struct {
	Width  uint32
	Height uint32
}

// Zero reports whether either dimension is zero, as with a minimized window.
func (e Extent2D) Zero() bool { return e.Width == 0 || e.Height == 0 }

type InstanceDescriptor struct {
	AppName    string
	EngineName string
	APIVersion uint32
	Extensions []string
	Layers     []string
	// Debug installs a report callback that forwards validation messages
	// to the driver's logger.
	Debug bool
}

type AdapterInfo struct {
	Name       string
	Type       vk.PhysicalDeviceType
	APIVersion uint32
	Extensions []string
}

// HasExtension reports whether the adapter exposes the named device extension.
func (a AdapterInfo) HasExtension(name string) bool {
	for _, ext := range a.Extensions {
		if ext == name {
			return true
		}
	}
	return false
}

type QueueFamily struct {
	Index uint32
	Flags vk.QueueFlags
	Count uint32
	// Present is true when the family can present to the queried surface.
	Present bool
}

func (q QueueFamily) Graphics() bool {
	return q.Count > 0 && q.Flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0
}

type MemoryType struct {
	Flags vk.MemoryPropertyFlags
	Heap  uint32
}

type MemoryRequirements struct {
	Size      uint64
	Alignment uint64
	TypeBits  uint32
}

type DeviceDescriptor struct {
	// QueueFamilies lists each distinct family that needs one queue.
	QueueFamilies []uint32
	Extensions    []string
	Layers        []string
}

type SurfaceFormat struct {
	Format     vk.Format
	ColorSpace vk.ColorSpace
}

type SurfaceCapabilities struct {
	MinImageCount uint32
	// MaxImageCount of zero means no upper bound.
	MaxImageCount uint32
	// CurrentExtent is {MaxUint32, MaxUint32} when the surface size is
	// decided by the swapchain.
	CurrentExtent           Extent2D
	MinImageExtent          Extent2D
	MaxImageExtent          Extent2D
	SupportedTransforms     vk.SurfaceTransformFlags
	CurrentTransform        vk.SurfaceTransformFlagBits
	SupportedCompositeAlpha vk.CompositeAlphaFlags
}

type SwapchainDescriptor struct {
	Surface        Surface
	MinImageCount  uint32
	Format         SurfaceFormat
	Extent         Extent2D
	PresentMode    vk.PresentMode
	Transform      vk.SurfaceTransformFlagBits
	CompositeAlpha vk.CompositeAlphaFlagBits
	// QueueFamilies with more than one entry selects concurrent sharing.
	QueueFamilies []uint32
	Old           Swapchain
}

type SubmitDescriptor struct {
	CommandBuffers   []CommandBuffer
	WaitSemaphores   []Semaphore
	WaitStages       []vk.PipelineStageFlags
	SignalSemaphores []Semaphore
}

type PresentDescriptor struct {
	Swapchain      Swapchain
	ImageIndex     uint32
	WaitSemaphores []Semaphore
}

type BufferDescriptor struct {
	Size  uint64
	Usage vk.BufferUsageFlags
}

type ImageDescriptor struct {
	Format vk.Format
	Extent Extent2D
	Usage  vk.ImageUsageFlags
	Tiling vk.ImageTiling
}

type ImageViewDescriptor struct {
	Image  Image
	Format vk.Format
	Aspect vk.ImageAspectFlags
}

type SamplerDescriptor struct {
	MagFilter   vk.Filter
	MinFilter   vk.Filter
	AddressMode vk.SamplerAddressMode
	BorderColor vk.BorderColor
}

type DescriptorBinding struct {
	Binding uint32
	Type    vk.DescriptorType
	Count   uint32
	Stages  vk.ShaderStageFlags
}

type DescriptorPoolSize struct {
	Type  vk.DescriptorType
	Count uint32
}

// DescriptorWrite points one binding of a set at an image or a buffer.
type DescriptorWrite struct {
	Set     DescriptorSet
	Binding uint32
	Type    vk.DescriptorType

	Sampler Sampler
	View    ImageView
	Layout  vk.ImageLayout

	Buffer Buffer
	Range  uint64
}

type PushConstantRange struct {
	Stages vk.ShaderStageFlags
	Offset uint32
	Size   uint32
}

type AttachmentDescription struct {
	Format         vk.Format
	Samples        vk.SampleCountFlagBits
	LoadOp         vk.AttachmentLoadOp
	StoreOp        vk.AttachmentStoreOp
	StencilLoadOp  vk.AttachmentLoadOp
	StencilStoreOp vk.AttachmentStoreOp
	InitialLayout  vk.ImageLayout
	FinalLayout    vk.ImageLayout
}

type AttachmentReference struct {
	Attachment uint32
	Layout     vk.ImageLayout
}

type SubpassDescription struct {
	Colors []AttachmentReference
	Inputs []AttachmentReference
	// Preserve lists attachments the subpass does not touch but whose
	// contents a later subpass still reads.
	Preserve []uint32
}

type SubpassDependency struct {
	SrcSubpass uint32
	DstSubpass uint32
	SrcStages  vk.PipelineStageFlags
	DstStages  vk.PipelineStageFlags
	SrcAccess  vk.AccessFlags
	DstAccess  vk.AccessFlags
	Flags      vk.DependencyFlags
}

type RenderPassDescriptor struct {
	Attachments  []AttachmentDescription
	Subpasses    []SubpassDescription
	Dependencies []SubpassDependency
}

type ShaderStageDescriptor struct {
	Stage  vk.ShaderStageFlagBits
	Module ShaderModule
	Entry  string
}

type GraphicsPipelineDescriptor struct {
	Stages           []ShaderStageDescriptor
	Layout           PipelineLayout
	RenderPass       RenderPass
	Subpass          uint32
	Extent           Extent2D
	Topology         vk.PrimitiveTopology
	CullMode         vk.CullModeFlags
	FrontFace        vk.FrontFace
	ColorAttachments uint32
}

type ComputePipelineDescriptor struct {
	Stage  ShaderStageDescriptor
	Layout PipelineLayout
}

type FramebufferDescriptor struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      Extent2D
	Layers      uint32
}

// ImageBarrier is a single-mip, single-layer color image layout transition.
type ImageBarrier struct {
	Image     Image
	OldLayout vk.ImageLayout
	NewLayout vk.ImageLayout
	SrcAccess vk.AccessFlags
	DstAccess vk.AccessFlags
}

type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Area        Extent2D
	ClearColors [][4]float32
}
