// Package camera implements the free-flying yaw/pitch camera whose pose is
// pushed to the raytracer every frame.
package camera

import (
	"github.com/chewxy/math32"
	lin "github.com/xlab/linmath"

	"github.com/andewx/dieselrt"
)

const (
	// MaxPitch keeps the view direction away from the world up axis.
	MaxPitch float32 = 89

	DefaultMoveSpeed float32 = 0.1
	DefaultLookSpeed float32 = 0.1
)

var worldUp = lin.Vec3{0, 1, 0}

// Camera keeps yaw and pitch in degrees and derives its basis from them
// after every change.
type Camera struct {
	Position lin.Vec3
	Front    lin.Vec3
	Right    lin.Vec3
	Up       lin.Vec3

	Yaw   float32
	Pitch float32

	MoveSpeed float32
	LookSpeed float32
}

// New places the camera at (0, 0, 4) looking down -Z.
func New() *Camera {
	c := &Camera{
		Position:  lin.Vec3{0, 0, 4},
		Yaw:       -90,
		MoveSpeed: DefaultMoveSpeed,
		LookSpeed: DefaultLookSpeed,
	}
	c.update()
	return c
}

func finite(v float32) bool { return !math32.IsNaN(v) && !math32.IsInf(v, 0) }

func (c *Camera) update() {
	// Max and Min pass NaN through
	if math32.IsNaN(c.Pitch) {
		c.Pitch = 0
	}
	if !finite(c.Yaw) {
		c.Yaw = -90
	}
	c.Pitch = math32.Max(-MaxPitch, math32.Min(MaxPitch, c.Pitch))

	yaw := lin.DegreesToRadians(c.Yaw)
	pitch := lin.DegreesToRadians(c.Pitch)
	front := lin.Vec3{
		math32.Cos(pitch) * math32.Cos(yaw),
		math32.Sin(pitch),
		math32.Cos(pitch) * math32.Sin(yaw),
	}
	c.Front.Norm(&front)

	var right lin.Vec3
	right.MultCross(&worldUp, &c.Front)
	c.Right.Norm(&right)
	c.Up.MultCross(&c.Front, &c.Right)
}

func (c *Camera) move(dir *lin.Vec3, amount float32) {
	var step lin.Vec3
	step.Scale(dir, amount)
	c.Position.Add(&c.Position, &step)
	c.update()
}

func (c *Camera) MoveForward()  { c.move(&c.Front, c.MoveSpeed) }
func (c *Camera) MoveBackward() { c.move(&c.Front, -c.MoveSpeed) }
func (c *Camera) MoveLeft()     { c.move(&c.Right, -c.MoveSpeed) }
func (c *Camera) MoveRight()    { c.move(&c.Right, c.MoveSpeed) }
func (c *Camera) MoveUp()       { c.move(&c.Up, c.MoveSpeed) }
func (c *Camera) MoveDown()     { c.move(&c.Up, -c.MoveSpeed) }

// Look turns the camera by a cursor delta in pixels. Pitch is clamped to
// [-MaxPitch, MaxPitch]. Non-finite deltas are ignored.
func (c *Camera) Look(dx, dy float32) {
	if !finite(dx) || !finite(dy) {
		return
	}
	c.Yaw += dx * c.LookSpeed
	c.Pitch -= dy * c.LookSpeed
	c.update()
}

// CameraData returns the pose in the layout the tracer expects.
func (c *Camera) CameraData() dieselrt.CameraData {
	return dieselrt.CameraData{
		Pos:   c.Position,
		Dir:   c.Front,
		Right: c.Right,
		Up:    c.Up,
	}
}
