package camera

import lin "github.com/xlab/linmath"

// VulkanProjection converts a GL style projection to Vulkan clip space: Y
// points down and depth runs over [0, 1] instead of [-1, 1].
func VulkanProjection(m *lin.Mat4x4, proj *lin.Mat4x4) {
	clip := lin.Mat4x4{
		{1, 0, 0, 0},
		{0, -1, 0, 0},
		{0, 0, 0.5, 0},
		{0, 0, 0.5, 1},
	}
	m.Mult(&clip, proj)
}

// View returns the world-to-camera matrix for the current pose.
func (c *Camera) View() lin.Mat4x4 {
	var center lin.Vec3
	center.Add(&c.Position, &c.Front)
	var view lin.Mat4x4
	view.LookAt(&c.Position, &center, &c.Up)
	return view
}

// ViewProjection combines View with a Vulkan perspective projection for
// raster passes drawn over the traced image. fovY is in degrees.
func (c *Camera) ViewProjection(fovY, aspect, near, far float32) lin.Mat4x4 {
	var gl, proj lin.Mat4x4
	gl.Perspective(lin.DegreesToRadians(fovY), aspect, near, far)
	VulkanProjection(&proj, &gl)

	view := c.View()
	var out lin.Mat4x4
	out.Mult(&proj, &view)
	return out
}
