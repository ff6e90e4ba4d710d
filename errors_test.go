package dieselrt

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, Success, CodeOf(nil))
	assert.Equal(t, Unknown, CodeOf(errors.New("plain")))

	err := newError(NoSuitableSurface, "create swapchain", errors.New("lost"))
	assert.Equal(t, NoSuitableSurface, CodeOf(err))
	assert.Equal(t, NoSuitableSurface, CodeOf(errors.Wrap(err, "renderer")))
	assert.True(t, errors.Is(err, ErrNoSuitableSurface))
	assert.False(t, errors.Is(err, ErrNoSuitableGPU))
	assert.EqualError(t, err, "create swapchain: NO_SUITABLE_SURFACE: lost")
	assert.EqualError(t, &Error{Code: NoSuitableGPU, Op: "select"}, "select: NO_SUITABLE_GPU")
}

func TestCodeString(t *testing.T) {
	assert.Equal(t, "SUCCESS", Success.String())
	assert.Equal(t, "UNKNOWN", Unknown.String())
	assert.Equal(t, "Code(9)", Code(9).String())
}

func TestLogger(t *testing.T) {
	defer SetLogger(nil)
	assert.False(t, Logger().Enabled(context.Background(), slog.LevelError), "silent by default")

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	Logger().Info("swapchain built", "images", 3)
	assert.Contains(t, buf.String(), "swapchain built")
	assert.Contains(t, buf.String(), "images=3")

	SetLogger(nil)
	assert.False(t, Logger().Enabled(context.Background(), slog.LevelError))
}

func TestReleaserOrder(t *testing.T) {
	var order []int
	var rel releaser
	for i := 0; i < 3; i++ {
		i := i
		rel.push(func() { order = append(order, i) })
	}
	rel.release()
	rel.release()
	assert.Equal(t, []int{2, 1, 0}, order)
}
