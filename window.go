package dieselrt

import "github.com/andewx/dieselrt/hal"

// Window is the windowing collaborator the renderer drives.
type Window interface {
	hal.SurfaceSource
	// FramebufferSize reports the drawable size in pixels.
	FramebufferSize() (width, height int)
	ShouldClose() bool
	PollEvents()
	// WaitEvents blocks until at least one event arrives.
	WaitEvents()
	// Resized reports, once, that the framebuffer changed size since the
	// previous call.
	Resized() bool
	// RequiredInstanceExtensions lists the instance extensions needed to
	// create a surface for this window.
	RequiredInstanceExtensions() []string
}

// waitForDrawableSize pumps events until the framebuffer is non-empty, as
// it is while the window is minimized.
func waitForDrawableSize(win Window) (hal.Extent2D, error) {
	w, h := win.FramebufferSize()
	for w == 0 || h == 0 {
		if win.ShouldClose() {
			return hal.Extent2D{}, ErrWindowClosed
		}
		win.WaitEvents()
		w, h = win.FramebufferSize()
	}
	return hal.Extent2D{Width: uint32(w), Height: uint32(h)}, nil
}
