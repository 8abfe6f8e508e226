package video

import (
	"fmt"
	"os"
	"strings"

	"github.com/icza/mjpeg"

	"camloop-pi/pkg/storage"
	"camloop-pi/pkg/storage/consts"
)

type Builder struct {
	width  int
	height int
	fps    int

	cnt int
	aw  mjpeg.AviWriter
}

func NewBuilder(path string, width, height, fps int) (*Builder, error) {
	aw, err := mjpeg.New(path, int32(width), int32(height), int32(fps))
	if err != nil {
		return nil, err
	}

	return &Builder{
		width:  width,
		height: height,
		fps:    fps,
		aw:     aw,
	}, nil
}

func (b *Builder) Add(frame []byte) error {
	err := b.aw.AddFrame(frame)
	if err != nil {
		return err
	}
	b.cnt++

	return nil
}

func (b *Builder) Close() error {
	return b.aw.Close()
}

func (b *Builder) GetCnt() int {
	return b.cnt
}

// Assemble packs a run's stored JPEG frames into an AVI next to them and
// returns the video path. Raw frames are skipped.
func Assemble(run *storage.Run, name string, width, height, fps int) (string, error) {
	frames, err := run.ListFrames()
	if err != nil {
		return "", err
	}
	if len(frames) == 0 {
		return "", fmt.Errorf("run %s has no frames", run.Name)
	}

	if !strings.HasSuffix(name, consts.DefaultVideoExt) {
		name += consts.DefaultVideoExt
	}
	out := run.VideoPath(name)
	b, err := NewBuilder(out, width, height, fps)
	if err != nil {
		return "", err
	}

	for _, frame := range frames {
		data, err := os.ReadFile(run.FramePath(frame))
		if err != nil {
			return "", err
		}
		if err = b.Add(data); err != nil {
			return "", err
		}
	}
	if err = b.Close(); err != nil {
		return "", err
	}

	return out, nil
}
