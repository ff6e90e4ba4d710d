package vulkan

import (
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselrt/hal"
)

func TestTableHandles(t *testing.T) {
	d := New()
	a := d.semaphores.put(vk.Semaphore(vk.NullHandle))
	b := d.fences.put(vk.Fence(vk.NullHandle))
	assert.NotEqual(t, a, b, "handles are unique across kinds")
	assert.NotZero(t, a)

	_, ok := d.semaphores.take(a)
	assert.True(t, ok)
	_, ok = d.semaphores.take(a)
	assert.False(t, ok)
	assert.Equal(t, vk.Fence(vk.NullHandle), d.fences.get(12345))
}

func TestSafeStrings(t *testing.T) {
	assert.Equal(t, "main\x00", safeString("main"))
	assert.Equal(t, "main\x00", safeString("main\x00"))
	assert.Equal(t, "\x00", safeString(""))
	assert.Equal(t, []string{"a\x00", "b\x00"}, safeStrings([]string{"a", "b\x00"}))
}

func TestCheckExisting(t *testing.T) {
	have, missing := checkExisting(
		[]string{hal.ExtSurface, hal.ExtSwapchain},
		[]string{hal.ExtSwapchain, hal.ExtDebug},
	)
	assert.Equal(t, []string{hal.ExtSwapchain + "\x00"}, have)
	assert.Equal(t, []string{hal.ExtDebug}, missing)
	assert.True(t, contains(have, hal.ExtSwapchain))
	assert.False(t, contains(have, hal.ExtDebug))
}

func TestSliceUint32(t *testing.T) {
	code := make([]byte, 8)
	binary.LittleEndian.PutUint32(code, 0x07230203)
	binary.LittleEndian.PutUint32(code[4:], 42)
	words := sliceUint32(code)
	require.Len(t, words, 2)
	assert.Equal(t, uint32(42), words[1])
	assert.Nil(t, sliceUint32(nil))
}

func TestResultMapping(t *testing.T) {
	assert.NoError(t, newError("op", vk.Success))
	assert.True(t, errors.Is(newError("op", vk.ErrorDeviceLost), hal.ErrDeviceLost))
	assert.True(t, errors.Is(newError("op", vk.Timeout), hal.ErrTimeout))
	assert.Error(t, newError("op", vk.ErrorOutOfHostMemory))

	st, err := status("present", vk.Suboptimal)
	assert.NoError(t, err)
	assert.Equal(t, hal.StatusSuboptimal, st)
	st, err = status("present", vk.ErrorOutOfDate)
	assert.NoError(t, err)
	assert.Equal(t, hal.StatusOutOfDate, st)
	_, err = status("present", vk.ErrorSurfaceLost)
	assert.Error(t, err)
}
