package dieselrt

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselrt/hal"
)

type AttachmentDescriptor struct {
	Format        vk.Format
	LoadOp        vk.AttachmentLoadOp
	StoreOp       vk.AttachmentStoreOp
	InitialLayout vk.ImageLayout
	FinalLayout   vk.ImageLayout
}

type SubpassDescriptor struct {
	Colors   []hal.AttachmentReference
	Inputs   []hal.AttachmentReference
	Preserve []uint32
}

// RenderPassDescriptor is the data-only description of a render pass.
// Dependencies are added after the external dependency every pass gets,
// which targets PresentSubpass: the first subpass that writes the
// swapchain image.
type RenderPassDescriptor struct {
	Attachments    []AttachmentDescriptor
	Subpasses      []SubpassDescriptor
	Dependencies   []hal.SubpassDependency
	PresentSubpass uint32
}

// PresentPassDescriptor is the single-subpass pass that clears a swapchain
// image and leaves it ready to present.
func PresentPassDescriptor(format vk.Format) RenderPassDescriptor {
	return RenderPassDescriptor{
		Attachments: []AttachmentDescriptor{{
			Format:        format,
			LoadOp:        vk.AttachmentLoadOpClear,
			StoreOp:       vk.AttachmentStoreOpStore,
			InitialLayout: vk.ImageLayoutUndefined,
			FinalLayout:   vk.ImageLayoutPresentSrc,
		}},
		Subpasses: []SubpassDescriptor{{
			Colors: []hal.AttachmentReference{{Attachment: 0, Layout: vk.ImageLayoutColorAttachmentOptimal}},
		}},
	}
}

// externalDependency orders the color writes of subpass dst, and the
// layout transition in front of them, after the presentation engine has
// released the image.
func externalDependency(dst uint32) hal.SubpassDependency {
	return hal.SubpassDependency{
		SrcSubpass: hal.SubpassExternal,
		DstSubpass: dst,
		SrcStages:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstStages:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccess:  vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
	}
}

func (desc RenderPassDescriptor) validate() error {
	if len(desc.Subpasses) == 0 {
		return errors.New("render pass has no subpasses")
	}
	n := uint32(len(desc.Attachments))
	for i, sp := range desc.Subpasses {
		for _, ref := range sp.Colors {
			if ref.Attachment >= n {
				return errors.Wrapf(ErrAttachmentIndex, "subpass %d color reference %d, %d attachments", i, ref.Attachment, n)
			}
		}
		for _, ref := range sp.Inputs {
			if ref.Attachment >= n {
				return errors.Wrapf(ErrAttachmentIndex, "subpass %d input reference %d, %d attachments", i, ref.Attachment, n)
			}
		}
		for _, idx := range sp.Preserve {
			if idx >= n {
				return errors.Wrapf(ErrAttachmentIndex, "subpass %d preserves %d, %d attachments", i, idx, n)
			}
		}
	}
	count := uint32(len(desc.Subpasses))
	if desc.PresentSubpass >= count {
		return errors.Errorf("present subpass %d, %d subpasses", desc.PresentSubpass, count)
	}
	for _, dep := range desc.Dependencies {
		if (dep.SrcSubpass != hal.SubpassExternal && dep.SrcSubpass >= count) ||
			(dep.DstSubpass != hal.SubpassExternal && dep.DstSubpass >= count) {
			return errors.Errorf("dependency %d -> %d references a missing subpass", dep.SrcSubpass, dep.DstSubpass)
		}
	}
	return nil
}

func (desc RenderPassDescriptor) translate() hal.RenderPassDescriptor {
	out := hal.RenderPassDescriptor{
		Attachments:  make([]hal.AttachmentDescription, len(desc.Attachments)),
		Subpasses:    make([]hal.SubpassDescription, len(desc.Subpasses)),
		Dependencies: make([]hal.SubpassDependency, 0, len(desc.Dependencies)+1),
	}
	for i, a := range desc.Attachments {
		out.Attachments[i] = hal.AttachmentDescription{
			Format:         a.Format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         a.LoadOp,
			StoreOp:        a.StoreOp,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  a.InitialLayout,
			FinalLayout:    a.FinalLayout,
		}
	}
	for i, sp := range desc.Subpasses {
		out.Subpasses[i] = hal.SubpassDescription{
			Colors: append([]hal.AttachmentReference(nil), sp.Colors...),
			Inputs: append([]hal.AttachmentReference(nil), sp.Inputs...),
		}
		if len(sp.Preserve) > 0 {
			out.Subpasses[i].Preserve = append([]uint32(nil), sp.Preserve...)
		}
	}
	out.Dependencies = append(out.Dependencies, externalDependency(desc.PresentSubpass))
	out.Dependencies = append(out.Dependencies, desc.Dependencies...)
	return out
}

// PassBuilder turns render pass, pipeline and framebuffer descriptors into
// GPU objects on one device.
type PassBuilder struct {
	ctx *DeviceContext
}

func NewPassBuilder(ctx *DeviceContext) *PassBuilder {
	return &PassBuilder{ctx: ctx}
}

type RenderPass struct {
	ctx         *DeviceContext
	Handle      hal.RenderPass
	Attachments int
	Subpasses   int
}

func (rp *RenderPass) Destroy() {
	if rp == nil || rp.Handle == hal.Null {
		return
	}
	rp.ctx.Driver.DestroyRenderPass(rp.ctx.Device, rp.Handle)
	rp.Handle = hal.Null
}

func (b *PassBuilder) CreateRenderPass(desc RenderPassDescriptor) (*RenderPass, error) {
	if err := desc.validate(); err != nil {
		Logger().Error("invalid render pass", "err", err)
		return nil, err
	}
	handle, err := b.ctx.Driver.CreateRenderPass(b.ctx.Device, desc.translate())
	if err != nil {
		Logger().Error("render pass creation failed", "err", err)
		return nil, errors.Wrap(err, "create render pass")
	}
	return &RenderPass{
		ctx:         b.ctx,
		Handle:      handle,
		Attachments: len(desc.Attachments),
		Subpasses:   len(desc.Subpasses),
	}, nil
}
