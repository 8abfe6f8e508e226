package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camloop-pi/pkg/capture"
	"camloop-pi/pkg/capture/capturetest"
	"camloop-pi/pkg/eventloop"
	"camloop-pi/pkg/sink"
)

type recordSink struct {
	frames []sink.Frame
	err    error
}

func (r *recordSink) Write(f sink.Frame) error {
	if r.err != nil {
		return r.err
	}
	// keep a stable copy, frame memory is recycled after Write
	f.Data = append([]byte(nil), f.Data...)
	r.frames = append(r.frames, f)
	return nil
}

func newTestSession(t *testing.T, cam *capturetest.Camera, cfg Config) (*Session, *eventloop.Loop, *recordSink) {
	t.Helper()
	loop := eventloop.New()
	rec := &recordSink{}
	s := New(capturetest.NewManager(cam), loop, rec, cfg)
	return s, loop, rec
}

func setupAndStart(t *testing.T, s *Session, cam *capturetest.Camera) {
	t.Helper()
	require.NoError(t, s.Setup())
	require.Equal(t, StateReady, s.State())
	require.NoError(t, cam.Start())
	for _, req := range s.requests {
		require.NoError(t, cam.QueueRequest(req))
	}
}

func TestBridgeDefersProcessingToLoop(t *testing.T) {
	cam := capturetest.NewCamera("cam0")
	s, loop, rec := newTestSession(t, cam, Config{})
	defer s.Close()
	setupAndStart(t, s, cam)

	for i := 0; i < 4; i++ {
		require.NoError(t, cam.CompleteNext(-1))
	}

	// the bridge only schedules; nothing may be processed on the
	// completing goroutine
	assert.Empty(t, rec.frames)
	assert.Equal(t, 4, loop.Pending())

	loop.CallLater(func() { loop.Exit(0) })
	loop.Exec()

	require.Len(t, rec.frames, 4)
	for i, f := range rec.frames {
		assert.Equal(t, uint32(i+1), f.Sequence, "deferred in completion order")
	}
}

func TestCancelledRequestsAreDropped(t *testing.T) {
	cam := capturetest.NewCamera("cam0")
	s, loop, rec := newTestSession(t, cam, Config{})
	defer s.Close()
	setupAndStart(t, s, cam)

	order := cam.QueueOrder()
	require.NoError(t, cam.CompleteNextCancelled())

	assert.Zero(t, loop.Pending(), "no work scheduled for cancelled requests")
	loop.CallLater(func() { loop.Exit(0) })
	loop.Exec()

	assert.Empty(t, rec.frames)
	assert.Equal(t, 1, cam.QueueCount(order[0]), "cancelled request not re-queued")
	assert.EqualValues(t, 1, s.Stats().Cancelled)
}

func TestCompletedRequestRequeuedExactlyOnce(t *testing.T) {
	cam := capturetest.NewCamera("cam0")
	s, loop, _ := newTestSession(t, cam, Config{})
	defer s.Close()
	setupAndStart(t, s, cam)

	first := cam.QueueOrder()[0]
	require.NoError(t, cam.CompleteNext(-1))

	loop.CallLater(func() { loop.Exit(0) })
	loop.Exec()

	assert.Equal(t, 2, cam.QueueCount(first), "initial queue plus one re-queue")
	assert.EqualValues(t, 1, s.Stats().Requeued)

	// a recycled request is in pending state again and guarded against
	// double queueing
	assert.ErrorIs(t, first.MarkQueued(), capture.ErrRequestQueued)
}

func TestProcessorReadsExactSpan(t *testing.T) {
	cam := capturetest.NewCamera("cam0")
	// plane larger than one frame so the span must come from H x stride,
	// not from the buffer size
	cam.DefaultConfig = capture.StreamConfiguration{
		Size:        capture.Size{Width: 8, Height: 4},
		PixelFormat: capture.PixFmtGrey,
		Stride:      8,
		FrameSize:   64,
	}
	s, loop, rec := newTestSession(t, cam, Config{})
	defer s.Close()
	setupAndStart(t, s, cam)

	require.NoError(t, cam.CompleteNext(-1))
	loop.CallLater(func() { loop.Exit(0) })
	loop.Exec()

	require.Len(t, rec.frames, 1)
	f := rec.frames[0]
	assert.Equal(t, 8, f.Stride)
	assert.Len(t, f.Data, 4*8, "exactly height x stride bytes")
}

func TestSetupWithZeroCamerasIsFatal(t *testing.T) {
	loop := eventloop.New()
	s := New(capturetest.NewManager(), loop, &recordSink{}, Config{})
	defer s.Close()

	err := s.Setup()
	assert.ErrorIs(t, err, ErrNoCamera)
	assert.Less(t, s.State(), StateAcquired, "acquire never reached")
}

func TestSetupUsesAdjustedConfiguration(t *testing.T) {
	cam := capturetest.NewCamera("cam0")
	cam.Adjust = func(sc *capture.StreamConfiguration) capture.ValidationStatus {
		if sc.Size.Width > 1920 {
			sc.Size = capture.Size{Width: 1920, Height: 1080}
			return capture.ConfigAdjusted
		}
		return capture.ConfigValid
	}
	s, _, _ := newTestSession(t, cam, Config{
		Size: capture.Size{Width: 4096, Height: 2560},
	})
	defer s.Close()

	require.NoError(t, s.Setup())
	got := cam.Stream().Configuration()
	assert.Equal(t, capture.Size{Width: 1920, Height: 1080}, got.Size,
		"session proceeds with adjusted values")
}

func TestConfigurationRejectionIsFatal(t *testing.T) {
	cam := capturetest.NewCamera("cam0")
	cam.Adjust = func(sc *capture.StreamConfiguration) capture.ValidationStatus {
		return capture.ConfigInvalid
	}
	s, _, _ := newTestSession(t, cam, Config{})
	defer s.Close()

	assert.ErrorIs(t, s.Setup(), ErrConfigReject)
	assert.False(t, cam.Configured())
}

func TestZeroAllocatedBuffersIsFatal(t *testing.T) {
	cam := capturetest.NewCamera("cam0")
	cam.FailAllocate = true
	s, _, _ := newTestSession(t, cam, Config{})
	defer s.Close()

	assert.Error(t, s.Setup())
	assert.Equal(t, StateConfigured, s.State())
}

func TestEmptyBufferPoolIsFatal(t *testing.T) {
	cam := capturetest.NewCamera("cam0")
	// allocation succeeds but yields nothing to capture into
	cam.BufferCount = 0
	s, _, _ := newTestSession(t, cam, Config{})
	defer s.Close()

	assert.ErrorIs(t, s.Setup(), ErrNoBuffers)
	assert.Equal(t, StateConfigured, s.State(), "allocated state never reached")
}

func TestCloseUnwindsAfterSetupFailure(t *testing.T) {
	cam := capturetest.NewCamera("cam0")
	cam.FailNewRequest = true
	mgr := capturetest.NewManager(cam)
	s := New(mgr, eventloop.New(), &recordSink{}, Config{})

	require.Error(t, s.Setup())
	s.Close()
	s.Close() // idempotent

	assert.Equal(t, 1, cam.Releases(), "camera released exactly once")
	assert.True(t, cam.BuffersFreed())
	assert.True(t, mgr.Stopped())
	assert.Equal(t, StateReleased, s.State())
}

func TestMappingReleasedOnSinkFailure(t *testing.T) {
	cam := capturetest.NewCamera("cam0")
	s, loop, rec := newTestSession(t, cam, Config{})
	defer s.Close()
	rec.err = errors.New("disk full")
	setupAndStart(t, s, cam)

	first := cam.QueueOrder()[0]
	require.NoError(t, cam.CompleteNext(-1))
	loop.CallLater(func() { loop.Exit(0) })
	loop.Exec()

	for _, buf := range first.Buffers() {
		assert.False(t, buf.Mapped(), "mapping closed on the failure path")
	}
	assert.Equal(t, 2, cam.QueueCount(first), "request still recycled")
	assert.EqualValues(t, 1, s.Stats().Failed)
}

func TestCaptureScenarioWithTimeout(t *testing.T) {
	cam := capturetest.NewCamera("cam0")
	cam.AutoComplete(10 * time.Millisecond)
	s, _, rec := newTestSession(t, cam, Config{Timeout: 150 * time.Millisecond})

	require.NoError(t, s.Setup())
	require.NoError(t, s.Run())
	s.Close()

	stats := s.Stats()
	require.NotEmpty(t, rec.frames, "frames processed within the timeout")
	assert.EqualValues(t, len(rec.frames), stats.Processed)
	assert.EqualValues(t, stats.Processed, stats.Requeued,
		"every processed request re-queued before the next iteration")

	// no request leaked: every queue call is the initial one or one
	// re-queue per processed frame
	assert.Equal(t, 4+int(stats.Requeued), cam.TotalQueued())
	for _, req := range s.requests {
		assert.GreaterOrEqual(t, cam.QueueCount(req), 1)
	}

	assert.True(t, cam.StopCalled())
	assert.True(t, cam.BuffersFreed())
	assert.Equal(t, 1, cam.Releases())
}

func TestRunRequiresReadyState(t *testing.T) {
	cam := capturetest.NewCamera("cam0")
	s, _, _ := newTestSession(t, cam, Config{})
	defer s.Close()

	assert.Error(t, s.Run(), "run before setup")
}

func TestDefaultControlsAttachedToEveryRequest(t *testing.T) {
	cam := capturetest.NewCamera("cam0")
	controls := capture.ControlList{
		capture.ControlExposureTime: 100000,
		capture.ControlAnalogueGain: 100000,
	}
	s, _, _ := newTestSession(t, cam, Config{Controls: controls})
	defer s.Close()

	require.NoError(t, s.Setup())
	require.Len(t, s.requests, 4)
	for _, req := range s.requests {
		v, ok := req.Controls().Get(capture.ControlExposureTime)
		require.True(t, ok)
		assert.EqualValues(t, 100000, v)
	}
}
