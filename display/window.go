// Package display owns the GLFW window the renderer presents to and turns
// its input into camera motion.
package display

import (
	"sync/atomic"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pkg/errors"

	"github.com/andewx/dieselrt"
)

// Init starts GLFW for Vulkan use. It must run on the main thread.
func Init() error {
	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "glfw init")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return errors.New("glfw: vulkan is not supported")
	}
	return nil
}

// Terminate releases GLFW after every window is destroyed.
func Terminate() { glfw.Terminate() }

// Window adapts a *glfw.Window to dieselrt.Window.
type Window struct {
	*glfw.Window

	resized atomic.Bool

	lastX, lastY float64
	tracking     bool
}

var _ dieselrt.Window = (*Window)(nil)

// NewWindow opens a resizable window without a client API.
func NewWindow(cfg dieselrt.WindowConfig) (*Window, error) {
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	win, err := glfw.CreateWindow(cfg.Width, cfg.Height, cfg.Title, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create window")
	}
	w := &Window{Window: win}
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		dieselrt.Logger().Debug("framebuffer resized", "width", width, "height", height)
		w.resized.Store(true)
	})
	return w, nil
}

func (w *Window) FramebufferSize() (int, int) { return w.GetFramebufferSize() }

func (w *Window) PollEvents() { glfw.PollEvents() }

func (w *Window) WaitEvents() { glfw.WaitEvents() }

func (w *Window) Resized() bool { return w.resized.Swap(false) }

func (w *Window) RequiredInstanceExtensions() []string {
	return w.GetRequiredInstanceExtensions()
}

// Pressed reports whether key is held down.
func (w *Window) Pressed(key glfw.Key) bool {
	return w.GetKey(key) == glfw.Press
}

// CursorDelta returns the cursor motion since the previous call while the
// right mouse button is held, and zero otherwise.
func (w *Window) CursorDelta() (dx, dy float64) {
	if w.GetMouseButton(glfw.MouseButtonRight) != glfw.Press {
		if w.tracking {
			w.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
		}
		w.tracking = false
		return 0, 0
	}
	x, y := w.GetCursorPos()
	if !w.tracking {
		w.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
		w.tracking = true
		w.lastX, w.lastY = x, y
		return 0, 0
	}
	dx, dy = x-w.lastX, y-w.lastY
	w.lastX, w.lastY = x, y
	return dx, dy
}
