package dieselrt

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselrt/hal"
)

type FrameState int

const (
	StateIdle FrameState = iota
	StateAcquiring
	StateRecording
	StateSubmitted
	StatePresenting
)

func (s FrameState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateRecording:
		return "recording"
	case StateSubmitted:
		return "submitted"
	case StatePresenting:
		return "presenting"
	}
	return "unknown"
}

// FrameRecorder records one frame's commands. The command buffer is
// already in the recording state and the scheduler ends it.
type FrameRecorder interface {
	RecordFrame(cb hal.CommandBuffer, imageIndex uint32, fd *FrameData) error
}

// FrameResult reports what DrawFrame did.
type FrameResult struct {
	Slot       int
	ImageIndex uint32
	// Dropped is set when acquisition found the swapchain stale; nothing
	// was submitted or presented and the slot was not consumed.
	Dropped bool
	// Recreated is set when the swapchain was rebuilt during the call.
	Recreated bool
}

// Scheduler drives the acquire, record, submit, present cycle over the
// swapchain's frame slots. It is not safe for concurrent use.
type Scheduler struct {
	ctx *DeviceContext
	sc  *Swapchain
	win Window
	rec FrameRecorder

	// Timeout bounds the wait on a slot's fence. A wait that runs out is
	// fatal like any other per-frame error.
	Timeout uint64
	// Observe, when set, sees every state transition of DrawFrame.
	Observe func(FrameState)

	current int
	state   FrameState
	frames  uint64
}

func NewScheduler(ctx *DeviceContext, sc *Swapchain, win Window, rec FrameRecorder) *Scheduler {
	return &Scheduler{ctx: ctx, sc: sc, win: win, rec: rec, Timeout: hal.Infinite}
}

func (s *Scheduler) State() FrameState { return s.state }

// Current is the index of the slot the next frame will use.
func (s *Scheduler) Current() int { return s.current }

// Frames counts presented frames.
func (s *Scheduler) Frames() uint64 { return s.frames }

func (s *Scheduler) setState(st FrameState) {
	s.state = st
	if s.Observe != nil {
		s.Observe(st)
	}
}

func (s *Scheduler) fatal(op string, err error) error {
	Logger().Error("frame failed", "op", op, "state", s.state.String(), "slot", s.current, "err", err)
	var coded *Error
	if errors.As(err, &coded) {
		return err
	}
	return newError(Unknown, op, err)
}

func (s *Scheduler) recreate(res *FrameResult) error {
	if err := s.sc.Recreate(); err != nil {
		if errors.Is(err, ErrWindowClosed) {
			return err
		}
		return s.fatal("recreate swapchain", err)
	}
	res.Recreated = true
	return nil
}

// DrawFrame renders and presents one frame with fd as the compute push
// constants. A stale swapchain is rebuilt and the frame dropped; every
// other failure is returned as fatal and the caller is expected to tear
// the renderer down.
func (s *Scheduler) DrawFrame(fd FrameData) (res FrameResult, err error) {
	defer s.setState(StateIdle)
	drv, dev := s.ctx.Driver, s.ctx.Device

	if s.win.Resized() {
		Logger().Debug("framebuffer resized")
		if err := s.recreate(&res); err != nil {
			return res, err
		}
	}

	slot := s.sc.Slots[s.current]
	res.Slot = s.current
	fences := []hal.Fence{slot.InFlight}

	if err := drv.WaitForFences(dev, fences, s.Timeout); err != nil {
		return res, s.fatal("wait for frame fence", err)
	}
	if err := drv.ResetFences(dev, fences); err != nil {
		return res, s.fatal("reset frame fence", err)
	}
	if err := drv.ResetCommandPool(dev, slot.Pool); err != nil {
		return res, s.fatal("reset command pool", err)
	}

	s.setState(StateAcquiring)
	index, status, err := drv.AcquireNextImage(dev, s.sc.Handle, slot.ImageAvailable, hal.Infinite)
	if err != nil {
		return res, s.fatal("acquire image", err)
	}
	if status.Stale() {
		// the slot is rebuilt with a signaled fence, so dropping here
		// cannot leave the next wait hanging
		Logger().Debug("swapchain stale on acquire", "status", status.String())
		res.Dropped = true
		return res, s.recreate(&res)
	}
	res.ImageIndex = index

	s.setState(StateRecording)
	cb := slot.Commands
	if err := drv.BeginCommandBuffer(cb, true); err != nil {
		return res, s.fatal("begin command buffer", err)
	}
	if err := s.rec.RecordFrame(cb, index, &fd); err != nil {
		return res, s.fatal("record frame", err)
	}
	if err := drv.EndCommandBuffer(cb); err != nil {
		return res, s.fatal("end command buffer", err)
	}

	err = drv.QueueSubmit(s.ctx.GraphicsQueue, hal.SubmitDescriptor{
		CommandBuffers:   []hal.CommandBuffer{cb},
		WaitSemaphores:   []hal.Semaphore{slot.ImageAvailable},
		WaitStages:       []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		SignalSemaphores: []hal.Semaphore{slot.RenderFinished},
	}, slot.InFlight)
	if err != nil {
		return res, s.fatal("submit frame", err)
	}
	s.setState(StateSubmitted)
	Logger().Debug("frame submitted", "slot", res.Slot, "image", index)

	s.setState(StatePresenting)
	status, err = drv.QueuePresent(s.ctx.PresentQueue, hal.PresentDescriptor{
		Swapchain:      s.sc.Handle,
		ImageIndex:     index,
		WaitSemaphores: []hal.Semaphore{slot.RenderFinished},
	})
	if err != nil {
		return res, s.fatal("present frame", err)
	}

	s.current = (s.current + 1) % len(s.sc.Slots)
	s.frames++

	if status.Stale() {
		Logger().Debug("swapchain stale on present", "status", status.String())
		return res, s.recreate(&res)
	}
	return res, nil
}
