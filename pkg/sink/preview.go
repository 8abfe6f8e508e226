package sink

import (
	"bytes"
	"sync"

	"camloop-pi/pkg/capture"
	"camloop-pi/pkg/utils/image"
)

// Preview broadcasts JPEG frames to streaming HTTP clients. Sends never
// block: a client that is not keeping up misses frames instead of stalling
// the event loop.
type Preview struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
	quality int
}

func NewPreview(quality int) *Preview {
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}
	return &Preview{
		clients: make(map[chan []byte]struct{}),
		quality: quality,
	}
}

// Subscribe registers a client. The returned cancel func must be called when
// the client goes away.
func (p *Preview) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 1)
	p.mu.Lock()
	p.clients[ch] = struct{}{}
	p.mu.Unlock()

	return ch, func() {
		p.mu.Lock()
		delete(p.clients, ch)
		p.mu.Unlock()
	}
}

func (p *Preview) Write(f Frame) error {
	p.mu.Lock()
	n := len(p.clients)
	p.mu.Unlock()
	if n == 0 {
		return nil
	}

	data, err := p.jpeg(f)
	if err != nil || data == nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for ch := range p.clients {
		select {
		case ch <- data:
		default:
		}
	}
	return nil
}

// jpeg copies or converts the frame: the buffer behind f.Data is recycled by
// the camera right after Write returns.
func (p *Preview) jpeg(f Frame) ([]byte, error) {
	if f.PixelFormat == capture.PixFmtMJPEG {
		return append([]byte(nil), f.Data...), nil
	}

	var buf bytes.Buffer
	var err error
	switch f.PixelFormat {
	case capture.PixFmtRGB24:
		err = image.EncodeJPEG(image.DecodeRGB(f.Data, f.Width, f.Height, f.Stride), &buf, p.quality)
	case capture.PixFmtGrey:
		err = image.EncodeJPEG(image.DecodeGray(f.Data, f.Width, f.Height, f.Stride), &buf, p.quality)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
