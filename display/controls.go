package display

import (
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/andewx/dieselrt/camera"
)

// Mover is the subset of *camera.Camera the key bindings drive.
type Mover interface {
	MoveForward()
	MoveBackward()
	MoveLeft()
	MoveRight()
	MoveUp()
	MoveDown()
	Look(dx, dy float32)
}

var _ Mover = (*camera.Camera)(nil)

// Bindings maps held keys to camera moves.
var Bindings = map[glfw.Key]func(Mover){
	glfw.KeyW:         Mover.MoveForward,
	glfw.KeyS:         Mover.MoveBackward,
	glfw.KeyA:         Mover.MoveLeft,
	glfw.KeyD:         Mover.MoveRight,
	glfw.KeySpace:     Mover.MoveUp,
	glfw.KeyLeftShift: Mover.MoveDown,
}

// Drive applies the held keys and the right-button mouse look to m. Escape
// asks the window to close.
func (w *Window) Drive(m Mover) {
	if w.Pressed(glfw.KeyEscape) {
		w.SetShouldClose(true)
		return
	}
	for key, move := range Bindings {
		if w.Pressed(key) {
			move(m)
		}
	}
	if dx, dy := w.CursorDelta(); dx != 0 || dy != 0 {
		m.Look(float32(dx), float32(dy))
	}
}
