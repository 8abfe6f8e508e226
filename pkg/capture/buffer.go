package capture

import (
	"errors"
	"sync/atomic"
	"time"
)

// PlaneMetadata reports how much of one plane the camera filled.
type PlaneMetadata struct {
	BytesUsed int
}

// FrameMetadata is attached to a buffer when its request completes. Produced
// by the backend, read-only for applications.
type FrameMetadata struct {
	Sequence  uint32
	Timestamp time.Time
	Planes    []PlaneMetadata
}

// FrameBuffer is a fixed-size memory region, possibly multi-plane, that the
// camera writes one frame of pixel data into. Buffers are allocated once per
// stream and cyclically reused across requests.
type FrameBuffer struct {
	planes [][]byte
	meta   FrameMetadata
	maps   atomic.Int32
}

func NewFrameBuffer(planeSizes ...int) *FrameBuffer {
	planes := make([][]byte, len(planeSizes))
	for i, size := range planeSizes {
		planes[i] = make([]byte, size)
	}
	return &FrameBuffer{planes: planes}
}

func (b *FrameBuffer) NumPlanes() int {
	return len(b.planes)
}

func (b *FrameBuffer) PlaneSize(i int) int {
	return len(b.planes[i])
}

func (b *FrameBuffer) Metadata() FrameMetadata {
	return b.meta
}

// SetMetadata stamps completion metadata on the buffer. Backend use only.
func (b *FrameBuffer) SetMetadata(meta FrameMetadata) {
	b.meta = meta
}

// WritePlane copies frame data into plane i, truncating to the plane size,
// and returns the number of bytes stored. Backend use only.
func (b *FrameBuffer) WritePlane(i int, data []byte) int {
	return copy(b.planes[i], data)
}

type MapFlag int

const (
	MapRead MapFlag = 1 << iota
	MapWrite
)

var ErrBufferUnmapped = errors.New("mapped buffer already closed")

// Map exposes the buffer memory to the application. The returned mapping is
// scoped: Close must run on every exit path, before the buffer is handed
// back to the camera through a requeued request.
func (b *FrameBuffer) Map(flags MapFlag) (*MappedBuffer, error) {
	if len(b.planes) == 0 {
		return nil, errors.New("frame buffer has no planes")
	}
	b.maps.Add(1)
	return &MappedBuffer{buf: b, flags: flags}, nil
}

// Mapped reports whether any mapping is still open.
func (b *FrameBuffer) Mapped() bool {
	return b.maps.Load() > 0
}

// MappedBuffer is a scoped view of a FrameBuffer's planes.
type MappedBuffer struct {
	buf    *FrameBuffer
	flags  MapFlag
	closed bool
}

func (m *MappedBuffer) Plane(i int) []byte {
	return m.buf.planes[i]
}

func (m *MappedBuffer) Planes() [][]byte {
	return m.buf.planes
}

func (m *MappedBuffer) Close() error {
	if m.closed {
		return ErrBufferUnmapped
	}
	m.closed = true
	m.buf.maps.Add(-1)
	return nil
}
