package capture

import (
	"errors"
	"fmt"
	"sync"
)

type RequestStatus int

const (
	RequestPending RequestStatus = iota
	RequestQueued
	RequestComplete
	RequestCancelled
)

func (s RequestStatus) String() string {
	switch s {
	case RequestPending:
		return "pending"
	case RequestQueued:
		return "queued"
	case RequestComplete:
		return "complete"
	case RequestCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

type ControlID int

const (
	ControlBrightness ControlID = iota
	ControlContrast
	ControlSaturation
	ControlExposureTime
	ControlAnalogueGain
)

// ControlList holds per-frame tunable parameters attached to a request.
type ControlList map[ControlID]int32

func (l ControlList) Set(id ControlID, value int32) {
	l[id] = value
}

func (l ControlList) Get(id ControlID) (int32, bool) {
	v, ok := l[id]
	return v, ok
}

type ReuseFlag int

const ReuseBuffers ReuseFlag = 1 << iota

var (
	ErrRequestQueued   = errors.New("request already queued")
	ErrRequestNotReady = errors.New("request not in a reusable state")
)

// Request pairs frame buffers with per-frame controls for one capture cycle.
// The same Request object is recycled with Reuse rather than reallocated, so
// its identity is stable across cycles.
type Request struct {
	mu       sync.Mutex
	status   RequestStatus
	buffers  map[*Stream]*FrameBuffer
	controls ControlList
	cookie   uint64
}

// NewRequest is called by Camera.NewRequest implementations.
func NewRequest(cookie uint64) *Request {
	return &Request{
		buffers:  make(map[*Stream]*FrameBuffer),
		controls: make(ControlList),
		cookie:   cookie,
	}
}

func (r *Request) Cookie() uint64 {
	return r.cookie
}

func (r *Request) Status() RequestStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Request) Controls() ControlList {
	return r.controls
}

// Buffers returns the stream to buffer map. Callers must treat it as
// read-only.
func (r *Request) Buffers() map[*Stream]*FrameBuffer {
	return r.buffers
}

// AddBuffer attaches a buffer for one stream. A request carries at most one
// buffer per stream and can only be assembled while pending.
func (r *Request) AddBuffer(stream *Stream, buf *FrameBuffer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != RequestPending {
		return fmt.Errorf("add buffer: request is %s", r.status)
	}
	if _, ok := r.buffers[stream]; ok {
		return fmt.Errorf("add buffer: stream already has a buffer")
	}
	r.buffers[stream] = buf
	return nil
}

// Reuse resets a finished request for another capture cycle. Buffers are
// kept when ReuseBuffers is set, detached otherwise.
func (r *Request) Reuse(flags ReuseFlag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != RequestComplete && r.status != RequestCancelled {
		return ErrRequestNotReady
	}
	r.status = RequestPending
	if flags&ReuseBuffers == 0 {
		r.buffers = make(map[*Stream]*FrameBuffer)
	}
	return nil
}

// MarkQueued transitions pending to queued, guarding against a request being
// queued twice concurrently. Backend use only.
func (r *Request) MarkQueued() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == RequestQueued {
		return ErrRequestQueued
	}
	if r.status != RequestPending {
		return fmt.Errorf("queue request: request is %s", r.status)
	}
	r.status = RequestQueued
	return nil
}

// Finish marks an in-flight request complete or cancelled. Backend use only.
func (r *Request) Finish(status RequestStatus) {
	r.mu.Lock()
	r.status = status
	r.mu.Unlock()
}
