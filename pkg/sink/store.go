package sink

import (
	"bytes"
	"fmt"
	stdimage "image"

	"camloop-pi/pkg/capture"
	"camloop-pi/pkg/storage"
	"camloop-pi/pkg/storage/consts"
	"camloop-pi/pkg/utils/image"
)

const DefaultJPEGQuality = 95

// Store persists frames into a capture run. MJPEG frames are stored as-is,
// raw RGB24/greyscale frames are encoded to JPEG first, anything else is
// written raw so no capture data is lost.
type Store struct {
	run     *storage.Run
	quality int
}

func NewStore(run *storage.Run, quality int) *Store {
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}
	return &Store{run: run, quality: quality}
}

func (s *Store) Write(f Frame) error {
	switch f.PixelFormat {
	case capture.PixFmtMJPEG:
		return s.run.SaveFrame(f.Sequence, "", f.Data)
	case capture.PixFmtRGB24:
		return s.encode(f, image.DecodeRGB(f.Data, f.Width, f.Height, f.Stride))
	case capture.PixFmtGrey:
		return s.encode(f, image.DecodeGray(f.Data, f.Width, f.Height, f.Stride))
	default:
		return s.run.SaveFrame(f.Sequence, consts.DefaultRawExt, f.Data)
	}
}

func (s *Store) encode(f Frame, img stdimage.Image) error {
	var buf bytes.Buffer
	if err := image.EncodeJPEG(img, &buf, s.quality); err != nil {
		return fmt.Errorf("encode frame %d err: %w", f.Sequence, err)
	}
	return s.run.SaveFrame(f.Sequence, "", buf.Bytes())
}
