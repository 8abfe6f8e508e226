package session

import (
	"fmt"
	"strings"
	"sync/atomic"

	"camloop-pi/pkg/capture"
	"camloop-pi/pkg/sink"
)

type stats struct {
	processed atomic.Int64
	failed    atomic.Int64
	requeued  atomic.Int64
	cancelled atomic.Int64
}

type Stats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Requeued  int64 `json:"requeued"`
	Cancelled int64 `json:"cancelled"`
}

func (s *Session) Stats() Stats {
	return Stats{
		Processed: s.stats.processed.Load(),
		Failed:    s.stats.failed.Load(),
		Requeued:  s.stats.requeued.Load(),
		Cancelled: s.stats.cancelled.Load(),
	}
}

// requestComplete is the completion bridge. It runs on the backend's
// dispatch goroutine, which it shares with the camera's own event handling,
// so it must not process, block or touch session state: cancelled requests
// are dropped, everything else is deferred to the event loop.
func (s *Session) requestComplete(req *capture.Request) {
	if req.Status() == capture.RequestCancelled {
		s.stats.cancelled.Add(1)
		return
	}

	s.loop.CallLater(func() { s.processRequest(req) })
}

// processRequest runs on the event-loop goroutine, once per completion.
// After processing, the request is recycled and handed back to the camera:
// losing a request would shrink the capture pool permanently, so it is
// requeued even when a buffer failed to process.
func (s *Session) processRequest(req *capture.Request) {
	for stream, buf := range req.Buffers() {
		if err := s.processBuffer(stream, buf); err != nil {
			s.stats.failed.Add(1)
			s.logger.Errorf("process buffer err: %s", err)
			continue
		}
		s.stats.processed.Add(1)
	}

	if err := req.Reuse(capture.ReuseBuffers); err != nil {
		s.logger.Errorf("reuse request err: %s", err)
		return
	}
	if err := s.cam.QueueRequest(req); err != nil {
		s.logger.Errorf("re-queue request err: %s", err)
		return
	}
	s.stats.requeued.Add(1)
}

func (s *Session) processBuffer(stream *capture.Stream, buf *capture.FrameBuffer) error {
	meta := buf.Metadata()
	cfg := stream.Configuration()

	used := make([]string, 0, len(meta.Planes))
	for _, plane := range meta.Planes {
		used = append(used, fmt.Sprintf("%d", plane.BytesUsed))
	}
	s.logger.Debugf("seq: %06d bytesused: %s size %s stride %d format %s",
		meta.Sequence, strings.Join(used, "/"), cfg.Size, cfg.Stride, cfg.PixelFormat)

	mapped, err := buf.Map(capture.MapRead)
	if err != nil {
		return fmt.Errorf("map buffer err: %w", err)
	}
	defer mapped.Close()

	data := mapped.Plane(0)
	n := cfg.Stride * cfg.Size.Height
	if n <= 0 || n > len(data) {
		// compressed or unknown layout, trust the driver's byte count
		n = len(data)
		if len(meta.Planes) > 0 && meta.Planes[0].BytesUsed <= len(data) {
			n = meta.Planes[0].BytesUsed
		}
	}

	return s.sink.Write(sink.Frame{
		Width:       cfg.Size.Width,
		Height:      cfg.Size.Height,
		Stride:      cfg.Stride,
		PixelFormat: cfg.PixelFormat,
		Sequence:    meta.Sequence,
		Data:        data[:n],
	})
}
