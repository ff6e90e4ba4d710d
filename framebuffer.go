package dieselrt

import (
	"github.com/pkg/errors"

	"github.com/andewx/dieselrt/hal"
)

// CreateFramebuffer binds attachments, in render pass attachment order.
func (b *PassBuilder) CreateFramebuffer(rp *RenderPass, attachments []hal.ImageView, extent hal.Extent2D) (hal.Framebuffer, error) {
	if len(attachments) != rp.Attachments {
		err := errors.Errorf("framebuffer has %d attachments, render pass expects %d", len(attachments), rp.Attachments)
		Logger().Error("framebuffer creation failed", "err", err)
		return hal.Null, err
	}
	fb, err := b.ctx.Driver.CreateFramebuffer(b.ctx.Device, hal.FramebufferDescriptor{
		RenderPass:  rp.Handle,
		Attachments: attachments,
		Extent:      extent,
		Layers:      1,
	})
	if err != nil {
		Logger().Error("framebuffer creation failed", "err", err)
		return hal.Null, errors.Wrap(err, "create framebuffer")
	}
	return fb, nil
}

// CreateFramebuffers makes one single-attachment framebuffer per view. On
// failure the framebuffers already made are destroyed.
func (b *PassBuilder) CreateFramebuffers(rp *RenderPass, views []hal.ImageView, extent hal.Extent2D) ([]hal.Framebuffer, error) {
	fbs := make([]hal.Framebuffer, 0, len(views))
	for _, v := range views {
		fb, err := b.CreateFramebuffer(rp, []hal.ImageView{v}, extent)
		if err != nil {
			b.DestroyFramebuffers(fbs)
			return nil, err
		}
		fbs = append(fbs, fb)
	}
	return fbs, nil
}

func (b *PassBuilder) DestroyFramebuffers(fbs []hal.Framebuffer) {
	for i := len(fbs) - 1; i >= 0; i-- {
		b.ctx.Driver.DestroyFramebuffer(b.ctx.Device, fbs[i])
	}
}
