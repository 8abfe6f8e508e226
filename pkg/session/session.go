// Package session drives one capture run end to end: enumerate cameras,
// acquire one, negotiate a stream configuration, build the request pool,
// start capture and pump completed frames through an event loop into a sink.
package session

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"camloop-pi/pkg/capture"
	"camloop-pi/pkg/eventloop"
	"camloop-pi/pkg/sink"
	"camloop-pi/pkg/utils"
)

type State int

const (
	StateUninitialized State = iota
	StateEnumerated
	StateAcquired
	StateConfigured
	StateAllocated
	StateReady
	StateRunning
	StateStopped
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateEnumerated:
		return "enumerated"
	case StateAcquired:
		return "acquired"
	case StateConfigured:
		return "configured"
	case StateAllocated:
		return "allocated"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateReleased:
		return "released"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrNoCamera     = errors.New("no camera available")
	ErrNoBuffers    = errors.New("no buffers allocated for stream")
	ErrConfigReject = errors.New("camera configuration rejected")
)

type Config struct {
	// Size to request; the backend may adjust it during validation and the
	// session proceeds with the adjusted values.
	Size        capture.Size
	PixelFormat capture.PixelFormat
	Role        capture.StreamRole

	// Controls are attached to every request as default per-frame controls.
	Controls capture.ControlList

	// Timeout bounds the Run phase. Zero runs until the loop is stopped.
	Timeout time.Duration
}

// Session owns the capture lifecycle. All methods run on the application
// goroutine; the only cross-thread entry point is the completion bridge,
// which exclusively uses the event loop's deferred-call queue.
type Session struct {
	cfg    Config
	mgr    capture.Manager
	loop   *eventloop.Loop
	sink   sink.Sink
	logger *zap.SugaredLogger

	state      State
	mgrStarted bool
	cam        capture.Camera
	stream     *capture.Stream
	requests   []*capture.Request

	stats stats
}

func New(mgr capture.Manager, loop *eventloop.Loop, snk sink.Sink, cfg Config) *Session {
	return &Session{
		cfg:    cfg,
		mgr:    mgr,
		loop:   loop,
		sink:   snk,
		logger: utils.GetLogger().Named("session"),
	}
}

func (s *Session) State() State {
	return s.state
}

// StreamConfiguration returns the negotiated configuration, zero before the
// session reached the configured state.
func (s *Session) StreamConfiguration() capture.StreamConfiguration {
	if s.stream == nil {
		return capture.StreamConfiguration{}
	}
	return s.stream.Configuration()
}

// Setup walks the session from uninitialized to ready: manager start,
// enumerate, acquire, configure (validate first), allocate, build requests,
// register the completion bridge. Any failure is fatal to the session; the
// caller must still Close to unwind whatever was set up.
func (s *Session) Setup() error {
	if s.state != StateUninitialized {
		return fmt.Errorf("setup from %s state", s.state)
	}

	if err := s.mgr.Start(); err != nil {
		return fmt.Errorf("start camera manager err: %w", err)
	}
	s.mgrStarted = true

	cams := s.mgr.Cameras()
	for _, cam := range cams {
		s.logger.Infof(" - %s", capture.CameraName(cam))
	}
	if len(cams) == 0 {
		return ErrNoCamera
	}
	s.state = StateEnumerated

	cam := cams[0]
	if err := cam.Acquire(); err != nil {
		return fmt.Errorf("acquire camera %s err: %w", cam.ID(), err)
	}
	s.cam = cam
	s.state = StateAcquired

	if err := s.configure(); err != nil {
		return err
	}
	s.state = StateConfigured

	bufs, err := s.cam.AllocateBuffers(s.stream)
	if err != nil {
		return fmt.Errorf("allocate buffers err: %w", err)
	}
	if len(bufs) == 0 {
		return ErrNoBuffers
	}
	s.logger.Infof("allocated %d buffers for stream", len(bufs))
	s.state = StateAllocated

	if err := s.buildRequests(bufs); err != nil {
		return err
	}

	// The bridge must be registered before capture starts, or early
	// completions would be lost.
	s.cam.OnRequestCompleted(s.requestComplete)
	s.state = StateReady

	return nil
}

func (s *Session) configure() error {
	role := s.cfg.Role
	cfg, err := s.cam.GenerateConfiguration(role)
	if err != nil {
		return fmt.Errorf("generate %s configuration err: %w", role, err)
	}
	if cfg.Len() == 0 {
		return fmt.Errorf("no stream configuration for role %s", role)
	}

	streamCfg := cfg.At(0)
	s.logger.Infof("default %s configuration is: %s", role, streamCfg)

	if s.cfg.Size != (capture.Size{}) {
		streamCfg.Size = s.cfg.Size
	}
	if s.cfg.PixelFormat != 0 {
		streamCfg.PixelFormat = s.cfg.PixelFormat
	}

	// Validation adjusts the configuration to the nearest supported values
	// and must happen before the configuration is applied.
	switch status := cfg.Validate(); status {
	case capture.ConfigInvalid:
		return fmt.Errorf("%w: %s", ErrConfigReject, streamCfg)
	case capture.ConfigAdjusted:
		s.logger.Infof("validated configuration adjusted to: %s", streamCfg)
	default:
		s.logger.Infof("validated configuration is: %s", streamCfg)
	}

	if err := s.cam.Configure(cfg); err != nil {
		return fmt.Errorf("apply configuration err: %w", err)
	}

	s.stream = cfg.At(0).Stream()
	return nil
}

func (s *Session) buildRequests(bufs []*capture.FrameBuffer) error {
	for i, buf := range bufs {
		req, err := s.cam.NewRequest()
		if err != nil {
			return fmt.Errorf("create request %d err: %w", i, err)
		}
		if err := req.AddBuffer(s.stream, buf); err != nil {
			return fmt.Errorf("set buffer for request %d err: %w", i, err)
		}
		for id, value := range s.cfg.Controls {
			req.Controls().Set(id, value)
		}
		s.requests = append(s.requests, req)
	}

	return nil
}

// Run starts capture, queues every request and blocks in the event loop
// until the timeout elapses or the loop is stopped. The in-flight request
// count never exceeds the buffer pool because requests are only created one
// per buffer and recycled.
func (s *Session) Run() error {
	if s.state != StateReady {
		return fmt.Errorf("run from %s state", s.state)
	}

	if err := s.cam.Start(); err != nil {
		return fmt.Errorf("start camera err: %w", err)
	}
	s.state = StateRunning

	for _, req := range s.requests {
		if err := s.cam.QueueRequest(req); err != nil {
			return fmt.Errorf("queue request err: %w", err)
		}
	}

	s.loop.Timeout(s.cfg.Timeout)
	code := s.loop.Exec()
	s.logger.Infof("capture ran for %s and stopped with exit status: %d", s.cfg.Timeout, code)

	return nil
}

// Close tears the session down from whatever state it reached: stop capture,
// free buffers, release the camera, stop the manager, strictly in that
// order. Best-effort and idempotent.
func (s *Session) Close() {
	if s.state == StateReleased {
		return
	}

	if s.cam != nil {
		if s.state == StateRunning {
			if err := s.cam.Stop(); err != nil {
				s.logger.Errorf("stop camera err: %s", err)
			}
			s.state = StateStopped
		}
		if s.stream != nil {
			if err := s.cam.FreeBuffers(s.stream); err != nil {
				s.logger.Errorf("free buffers err: %s", err)
			}
		}
		if err := s.cam.Release(); err != nil {
			s.logger.Errorf("release camera err: %s", err)
		}
	}
	if s.mgrStarted {
		s.mgr.Stop()
	}
	s.state = StateReleased
}
