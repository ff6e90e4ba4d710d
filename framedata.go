package dieselrt

import (
	"encoding/binary"
	"math"

	lin "github.com/xlab/linmath"
)

// Push-constant layout of FrameData. Vectors are vec3 aligned to 16 bytes
// as the compute shader declares them.
const (
	offsetAspect      = 0
	offsetSeed        = 4
	offsetLight       = 16
	offsetCamera      = 32
	offsetCameraPos   = offsetCamera + 0
	offsetCameraDir   = offsetCamera + 16
	offsetCameraRight = offsetCamera + 32
	offsetCameraUp    = offsetCamera + 48

	// CameraDataSize is the camera block rounded up to its 16-byte alignment.
	CameraDataSize = 64
	// FrameDataSize is the byte size of an encoded FrameData.
	FrameDataSize = offsetCamera + CameraDataSize
)

// CameraData is the camera pose the raytracer shoots rays from.
type CameraData struct {
	Pos   lin.Vec3
	Dir   lin.Vec3
	Right lin.Vec3
	Up    lin.Vec3
}

// FrameData is recomputed every frame and pushed as constants to the
// compute stage.
type FrameData struct {
	Aspect float32
	Seed   float32
	Light  lin.Vec3
	Camera CameraData
}

// Bytes encodes the record little-endian with the shader's padding.
func (fd *FrameData) Bytes() []byte {
	buf := make([]byte, FrameDataSize)
	fd.Encode(buf)
	return buf
}

// Encode writes the record into buf, which must hold FrameDataSize bytes.
func (fd *FrameData) Encode(buf []byte) {
	_ = buf[FrameDataSize-1]
	for i := range buf[:FrameDataSize] {
		buf[i] = 0
	}
	putFloat(buf, offsetAspect, fd.Aspect)
	putFloat(buf, offsetSeed, fd.Seed)
	putVec3(buf, offsetLight, &fd.Light)
	putVec3(buf, offsetCameraPos, &fd.Camera.Pos)
	putVec3(buf, offsetCameraDir, &fd.Camera.Dir)
	putVec3(buf, offsetCameraRight, &fd.Camera.Right)
	putVec3(buf, offsetCameraUp, &fd.Camera.Up)
}

func putFloat(buf []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
}

func putVec3(buf []byte, off int, v *lin.Vec3) {
	for i, c := range v {
		putFloat(buf, off+4*i, c)
	}
}
