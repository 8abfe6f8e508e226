// Package capturetest provides a scriptable in-memory capture backend for
// exercising session logic without camera hardware. Completions are driven
// either manually (CompleteNext) or by an auto-completion goroutine that
// plays the role of the backend's internal dispatch thread.
package capturetest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"camloop-pi/pkg/capture"
)

type Manager struct {
	mu      sync.Mutex
	cams    []capture.Camera
	started bool
	stopped bool
}

func NewManager(cams ...*Camera) *Manager {
	m := &Manager{}
	for _, c := range cams {
		m.cams = append(m.cams, c)
	}
	return m
}

func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New("manager already started")
	}
	m.started = true
	return nil
}

func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

func (m *Manager) Cameras() []capture.Camera {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]capture.Camera(nil), m.cams...)
}

func (m *Manager) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// Camera is a fake capture.Camera recording every lifecycle call.
type Camera struct {
	mu sync.Mutex

	id    string
	props capture.Properties

	// Adjust, when set, is applied to each stream configuration during
	// Validate and decides the validation status.
	Adjust func(*capture.StreamConfiguration) capture.ValidationStatus

	// DefaultConfig seeds GenerateConfiguration for the viewfinder role.
	DefaultConfig capture.StreamConfiguration

	BufferCount    int
	FailAllocate   bool
	FailNewRequest bool

	acquired     bool
	releases     int
	validated    bool
	configured   bool
	started      bool
	stopped      bool
	buffersFreed bool

	callback func(*capture.Request)
	stream   *capture.Stream
	buffers  []*capture.FrameBuffer

	pending    []*capture.Request
	queueOrder []*capture.Request
	queueCount map[*capture.Request]int
	nextCookie uint64
	seq        uint32

	autoInterval time.Duration
	autoStop     chan struct{}
	wg           sync.WaitGroup
}

func NewCamera(id string) *Camera {
	return &Camera{
		id: id,
		props: capture.Properties{
			Location: capture.LocationExternal,
			Model:    "Fake Sensor",
			Driver:   "capturetest",
		},
		DefaultConfig: capture.StreamConfiguration{
			Size:        capture.Size{Width: 1280, Height: 720},
			PixelFormat: capture.PixFmtYUYV,
		},
		BufferCount: 4,
		queueCount:  make(map[*capture.Request]int),
	}
}

func (c *Camera) ID() string { return c.id }

func (c *Camera) Properties() capture.Properties { return c.props }

func (c *Camera) Acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acquired {
		return errors.New("camera already acquired")
	}
	c.acquired = true
	return nil
}

func (c *Camera) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acquired = false
	c.releases++
	return nil
}

func (c *Camera) GenerateConfiguration(roles ...capture.StreamRole) (*capture.CameraConfiguration, error) {
	if len(roles) == 0 {
		return nil, errors.New("no stream roles requested")
	}
	configs := make([]capture.StreamConfiguration, len(roles))
	for i := range roles {
		configs[i] = c.DefaultConfig
	}
	return capture.NewCameraConfiguration(c.validateConfig, configs...), nil
}

func (c *Camera) validateConfig(cfg *capture.CameraConfiguration) capture.ValidationStatus {
	c.mu.Lock()
	c.validated = true
	c.mu.Unlock()

	status := capture.ConfigValid
	for i := 0; i < cfg.Len(); i++ {
		if c.Adjust == nil {
			continue
		}
		if s := c.Adjust(cfg.At(i)); s > status {
			status = s
		}
	}
	return status
}

func (c *Camera) Configure(cfg *capture.CameraConfiguration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.validated {
		return errors.New("configuration was not validated")
	}
	for i := 0; i < cfg.Len(); i++ {
		sc := cfg.At(i)
		if sc.Stride == 0 {
			sc.Stride = sc.Size.Width * bytesPerPixel(sc.PixelFormat)
		}
		if sc.FrameSize == 0 {
			sc.FrameSize = sc.Stride * sc.Size.Height
		}
	}
	cfg.Commit()
	c.stream = cfg.At(0).Stream()
	c.configured = true
	return nil
}

func bytesPerPixel(f capture.PixelFormat) int {
	switch f {
	case capture.PixFmtRGB24:
		return 3
	case capture.PixFmtGrey:
		return 1
	default:
		return 2
	}
}

func (c *Camera) AllocateBuffers(stream *capture.Stream) ([]*capture.FrameBuffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailAllocate {
		return nil, errors.New("buffer allocation failed")
	}
	if !c.configured {
		return nil, errors.New("camera not configured")
	}
	size := stream.Configuration().FrameSize
	c.buffers = c.buffers[:0]
	for i := 0; i < c.BufferCount; i++ {
		c.buffers = append(c.buffers, capture.NewFrameBuffer(size))
	}
	return append([]*capture.FrameBuffer(nil), c.buffers...), nil
}

func (c *Camera) FreeBuffers(stream *capture.Stream) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffers = nil
	c.buffersFreed = true
	return nil
}

func (c *Camera) NewRequest() (*capture.Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailNewRequest {
		return nil, errors.New("request construction failed")
	}
	c.nextCookie++
	return capture.NewRequest(c.nextCookie), nil
}

func (c *Camera) QueueRequest(req *capture.Request) error {
	if err := req.MarkQueued(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, req)
	c.queueOrder = append(c.queueOrder, req)
	c.queueCount[req]++
	return nil
}

func (c *Camera) OnRequestCompleted(fn func(*capture.Request)) {
	c.mu.Lock()
	c.callback = fn
	c.mu.Unlock()
}

func (c *Camera) Start() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("camera already started")
	}
	if c.callback == nil {
		c.mu.Unlock()
		return errors.New("no completion callback registered")
	}
	c.started = true
	c.stopped = false
	interval := c.autoInterval
	if interval > 0 {
		c.autoStop = make(chan struct{})
	}
	stop := c.autoStop
	c.mu.Unlock()

	if interval > 0 {
		c.wg.Add(1)
		go c.dispatch(interval, stop)
	}
	return nil
}

func (c *Camera) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	c.stopped = true
	stop := c.autoStop
	c.autoStop = nil
	pending := c.pending
	c.pending = nil
	cb := c.callback
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		c.wg.Wait()
	}
	for _, req := range pending {
		req.Finish(capture.RequestCancelled)
		if cb != nil {
			cb(req)
		}
	}
	return nil
}

// AutoComplete makes Start spawn a dispatch goroutine that completes one
// pending request per interval, mimicking a camera delivering frames.
func (c *Camera) AutoComplete(interval time.Duration) {
	c.mu.Lock()
	c.autoInterval = interval
	c.mu.Unlock()
}

func (c *Camera) dispatch(interval time.Duration, stop chan struct{}) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.completeOne(capture.RequestComplete, -1)
		}
	}
}

// CompleteNext finishes the oldest pending request, stamping sequence and
// bytes-used metadata, and invokes the completion callback on the calling
// goroutine. The caller stands in for the backend dispatch thread.
func (c *Camera) CompleteNext(bytesUsed int) error {
	if !c.completeOne(capture.RequestComplete, bytesUsed) {
		return fmt.Errorf("no pending request")
	}
	return nil
}

// CompleteNextCancelled finishes the oldest pending request with cancelled
// status, as happens during capture teardown.
func (c *Camera) CompleteNextCancelled() error {
	if !c.completeOne(capture.RequestCancelled, 0) {
		return fmt.Errorf("no pending request")
	}
	return nil
}

func (c *Camera) completeOne(status capture.RequestStatus, bytesUsed int) bool {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return false
	}
	req := c.pending[0]
	c.pending = c.pending[1:]
	cb := c.callback
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	if status == capture.RequestComplete {
		for _, buf := range req.Buffers() {
			used := bytesUsed
			if used < 0 {
				used = buf.PlaneSize(0)
			}
			buf.SetMetadata(capture.FrameMetadata{
				Sequence:  seq,
				Timestamp: time.Now(),
				Planes:    []capture.PlaneMetadata{{BytesUsed: used}},
			})
		}
	}
	req.Finish(status)
	if cb != nil {
		cb(req)
	}
	return true
}

func (c *Camera) Acquired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquired
}

func (c *Camera) Releases() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releases
}

func (c *Camera) Configured() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configured
}

func (c *Camera) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

func (c *Camera) StopCalled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *Camera) BuffersFreed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffersFreed
}

func (c *Camera) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Camera) QueueCount(req *capture.Request) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queueCount[req]
}

func (c *Camera) QueueOrder() []*capture.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*capture.Request(nil), c.queueOrder...)
}

func (c *Camera) TotalQueued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queueOrder)
}

func (c *Camera) Stream() *capture.Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream
}
