package v4l2cam

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
	"go.uber.org/zap"

	"camloop-pi/pkg/capture"
)

const DefaultBufferCount = 4

// Camera adapts one V4L2 device to the capture contract. The driver owns
// the real mmap ring inside go4vl; frame buffers handed to the application
// are staging buffers the dispatch goroutine copies arriving frames into.
type Camera struct {
	path   string
	props  capture.Properties
	logger *zap.SugaredLogger

	bufferCount int

	mu         sync.Mutex
	acquired   bool
	dev        *device.Device
	stream     *capture.Stream
	callback   func(*capture.Request)
	pending    chan *capture.Request
	cancel     context.CancelFunc
	started    bool
	nextCookie uint64
	seq        uint32
	wg         sync.WaitGroup
}

func (c *Camera) ID() string {
	return c.path
}

func (c *Camera) Properties() capture.Properties {
	return c.props
}

func (c *Camera) Acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acquired {
		return fmt.Errorf("camera %s already acquired", c.path)
	}

	dev, err := device.Open(c.path)
	if err != nil {
		return fmt.Errorf("open %s err: %w", c.path, err)
	}
	c.dev = dev
	c.acquired = true
	return nil
}

func (c *Camera) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.acquired {
		return nil
	}
	c.acquired = false
	dev := c.dev
	c.dev = nil
	if dev == nil {
		return nil
	}
	return dev.Close()
}

// GenerateConfiguration seeds one stream configuration per role from the
// device's current format. Only a single stream is supported; V4L2 capture
// nodes expose one data path.
func (c *Camera) GenerateConfiguration(roles ...capture.StreamRole) (*capture.CameraConfiguration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return nil, errors.New("camera not acquired")
	}
	if len(roles) != 1 {
		return nil, fmt.Errorf("%d streams requested, single stream supported", len(roles))
	}

	format, err := v4l2.GetPixFormat(c.dev.Fd())
	if err != nil {
		return nil, fmt.Errorf("get pixel format err: %w", err)
	}

	return capture.NewCameraConfiguration(c.validate, capture.StreamConfiguration{
		Size:        capture.Size{Width: int(format.Width), Height: int(format.Height)},
		PixelFormat: capture.PixelFormat(format.PixelFormat),
		Stride:      int(format.BytesPerLine),
		FrameSize:   int(format.SizeImage),
	}), nil
}

// validate snaps each stream configuration to the nearest frame size the
// device reports for its pixel format.
func (c *Camera) validate(cfg *capture.CameraConfiguration) capture.ValidationStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return capture.ConfigInvalid
	}

	sizes, err := v4l2.GetAllFormatFrameSizes(c.dev.Fd())
	if err != nil {
		c.logger.Warnf("enumerate frame sizes err: %s", err)
		return capture.ConfigInvalid
	}

	status := capture.ConfigValid
	for i := 0; i < cfg.Len(); i++ {
		sc := cfg.At(i)
		nearest, found := nearestSize(sizes, uint32(sc.PixelFormat), sc.Size)
		if !found {
			return capture.ConfigInvalid
		}
		if nearest != sc.Size {
			sc.Size = nearest
			// stride and frame size are renegotiated on apply
			sc.Stride = 0
			sc.FrameSize = 0
			status = capture.ConfigAdjusted
		}
	}
	return status
}

func nearestSize(sizes []v4l2.FrameSizeEnum, pixFmt uint32, want capture.Size) (capture.Size, bool) {
	best := capture.Size{}
	bestDiff := -1
	for _, size := range sizes {
		if size.PixelFormat != pixFmt {
			continue
		}
		got := capture.Size{
			Width:  int(size.Size.MaxWidth),
			Height: int(size.Size.MaxHeight),
		}
		diff := abs(got.Width*got.Height - want.Width*want.Height)
		if bestDiff < 0 || diff < bestDiff {
			best, bestDiff = got, diff
		}
	}
	return best, bestDiff >= 0
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Configure applies the validated configuration and re-reads the format the
// driver actually selected, which fixes the final stride and frame size.
func (c *Camera) Configure(cfg *capture.CameraConfiguration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return errors.New("camera not acquired")
	}
	if cfg.Len() != 1 {
		return fmt.Errorf("%d streams configured, single stream supported", cfg.Len())
	}

	sc := cfg.At(0)
	err := c.dev.SetPixFormat(v4l2.PixFormat{
		PixelFormat: uint32(sc.PixelFormat),
		Width:       uint32(sc.Size.Width),
		Height:      uint32(sc.Size.Height),
		Field:       v4l2.FieldNone,
	})
	if err != nil {
		return fmt.Errorf("set pixel format err: %w", err)
	}

	format, err := v4l2.GetPixFormat(c.dev.Fd())
	if err != nil {
		return fmt.Errorf("get pixel format err: %w", err)
	}
	sc.Size = capture.Size{Width: int(format.Width), Height: int(format.Height)}
	sc.PixelFormat = capture.PixelFormat(format.PixelFormat)
	sc.Stride = int(format.BytesPerLine)
	sc.FrameSize = int(format.SizeImage)

	cfg.Commit()
	c.stream = cfg.At(0).Stream()
	return nil
}

func (c *Camera) AllocateBuffers(stream *capture.Stream) ([]*capture.FrameBuffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stream == nil || stream != c.stream {
		return nil, errors.New("stream not configured on this camera")
	}
	size := stream.Configuration().FrameSize
	if size <= 0 {
		return nil, errors.New("stream has no negotiated frame size")
	}

	bufs := make([]*capture.FrameBuffer, 0, c.bufferCount)
	for i := 0; i < c.bufferCount; i++ {
		bufs = append(bufs, capture.NewFrameBuffer(size))
	}
	c.pending = make(chan *capture.Request, c.bufferCount)
	return bufs, nil
}

func (c *Camera) FreeBuffers(stream *capture.Stream) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("free buffers while capturing")
	}
	c.pending = nil
	return nil
}

func (c *Camera) NewRequest() (*capture.Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextCookie++
	return capture.NewRequest(c.nextCookie), nil
}

func (c *Camera) QueueRequest(req *capture.Request) error {
	if err := req.MarkQueued(); err != nil {
		return err
	}

	c.mu.Lock()
	pending := c.pending
	dev := c.dev
	c.mu.Unlock()
	if pending == nil || dev == nil {
		return errors.New("camera has no buffer pool")
	}

	c.applyControls(dev, req.Controls())

	select {
	case pending <- req:
		return nil
	default:
		return errors.New("request pipeline full")
	}
}

func (c *Camera) OnRequestCompleted(fn func(*capture.Request)) {
	c.mu.Lock()
	c.callback = fn
	c.mu.Unlock()
}

func (c *Camera) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return errors.New("camera not acquired")
	}
	if c.started {
		return errors.New("camera already started")
	}
	if c.callback == nil {
		return errors.New("no completion callback registered")
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.dev.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("start stream err: %w", err)
	}
	c.cancel = cancel
	c.started = true

	c.wg.Add(1)
	go c.dispatch(ctx, c.dev.GetOutput())

	return nil
}

// dispatch is the backend dispatch thread: it pairs driver frames with
// queued requests and fires the completion callback. The callback must stay
// cheap, a stalled dispatch loop stalls buffer reclamation in the driver.
func (c *Camera) dispatch(ctx context.Context, frames <-chan []byte) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			c.cancelPending()
			return
		case frame, ok := <-frames:
			if !ok {
				c.cancelPending()
				return
			}
			c.completeNext(frame)
		}
	}
}

func (c *Camera) completeNext(frame []byte) {
	c.mu.Lock()
	pending := c.pending
	cb := c.callback
	c.mu.Unlock()

	var req *capture.Request
	select {
	case req = <-pending:
	default:
		// no request queued, frame dropped
		return
	}

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	for _, buf := range req.Buffers() {
		n := buf.WritePlane(0, frame)
		buf.SetMetadata(capture.FrameMetadata{
			Sequence:  seq,
			Timestamp: time.Now(),
			Planes:    []capture.PlaneMetadata{{BytesUsed: n}},
		})
	}
	req.Finish(capture.RequestComplete)
	cb(req)
}

func (c *Camera) cancelPending() {
	c.mu.Lock()
	pending := c.pending
	cb := c.callback
	c.mu.Unlock()
	if pending == nil {
		return
	}

	for {
		select {
		case req := <-pending:
			req.Finish(capture.RequestCancelled)
			if cb != nil {
				cb(req)
			}
		default:
			return
		}
	}
}

func (c *Camera) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
	// give the go4vl stream goroutine time to run its own Stop before the
	// device is closed by Release
	time.Sleep(100 * time.Millisecond)
	return nil
}
