// Package sink consumes processed frames. Sinks run on the capture session's
// event-loop goroutine, so a Write call must not block for long; the Drop
// wrapper gives an explicit policy for sinks slower than the capture rate.
package sink

import (
	"sync/atomic"
	"time"

	"camloop-pi/pkg/capture"
)

// Frame is one completed frame together with its negotiated geometry. Data
// aliases camera buffer memory and is only valid during the Write call;
// sinks that keep it must copy.
type Frame struct {
	Width       int
	Height      int
	Stride      int
	PixelFormat capture.PixelFormat
	Sequence    uint32
	Data        []byte
}

type Sink interface {
	Write(f Frame) error
}

type multi []Sink

// Multi fans a frame out to every sink, stopping at the first error.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) Write(f Frame) error {
	for _, s := range m {
		if err := s.Write(f); err != nil {
			return err
		}
	}
	return nil
}

// Drop enforces a minimum interval between frames accepted by the wrapped
// sink and silently drops the rest. Writes happen on one goroutine; the
// counter is read from others.
type Drop struct {
	next        Sink
	minInterval time.Duration
	last        time.Time
	dropped     atomic.Int64
}

func NewDrop(next Sink, minInterval time.Duration) *Drop {
	return &Drop{next: next, minInterval: minInterval}
}

func (d *Drop) Write(f Frame) error {
	now := time.Now()
	if !d.last.IsZero() && now.Sub(d.last) < d.minInterval {
		d.dropped.Add(1)
		return nil
	}
	d.last = now
	return d.next.Write(f)
}

func (d *Drop) Dropped() int64 {
	return d.dropped.Load()
}
