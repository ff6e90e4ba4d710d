package dieselrt

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/andewx/dieselrt/hal"
	"github.com/andewx/dieselrt/hal/mock"
)

func newTestContext(t *testing.T) (*mock.Driver, *mock.Window, *DeviceContext) {
	t.Helper()
	drv := mock.New()
	win := mock.NewWindow(800, 600)
	ctx, err := NewDeviceContext(drv, win, DeviceOptions{AppName: "test"})
	require.NoError(t, err)
	return drv, win, ctx
}

// mapLoader serves fixed-size fake SPIR-V for every path it knows.
type mapLoader struct {
	files map[string]bool
	loads []string
}

func newMapLoader(paths ...string) *mapLoader {
	l := &mapLoader{files: map[string]bool{}}
	for _, p := range paths {
		l.files[p] = true
	}
	return l
}

func (l *mapLoader) Load(path string, stage ShaderStage, entry string) (ShaderCode, error) {
	l.loads = append(l.loads, path)
	if !l.files[path] {
		return ShaderCode{}, errors.Errorf("no shader at %s", path)
	}
	return ShaderCode{Stage: stage, Entry: entry, Code: make([]byte, 16)}, nil
}

type recordFunc func(cb hal.CommandBuffer, imageIndex uint32, fd *FrameData) error

func (f recordFunc) RecordFrame(cb hal.CommandBuffer, imageIndex uint32, fd *FrameData) error {
	return f(cb, imageIndex, fd)
}

func nopRecorder() FrameRecorder {
	return recordFunc(func(hal.CommandBuffer, uint32, *FrameData) error { return nil })
}
