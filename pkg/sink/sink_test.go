package sink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camloop-pi/pkg/capture"
	"camloop-pi/pkg/storage"
)

type countingSink struct {
	frames []Frame
}

func (c *countingSink) Write(f Frame) error {
	c.frames = append(c.frames, f)
	return nil
}

func TestDropEnforcesMinInterval(t *testing.T) {
	next := &countingSink{}
	d := NewDrop(next, time.Hour)

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Write(Frame{Sequence: uint32(i)}))
	}

	assert.Len(t, next.frames, 1, "only the first frame passes within the interval")
	assert.EqualValues(t, 4, d.Dropped())
}

func TestDropZeroIntervalPassesAll(t *testing.T) {
	next := &countingSink{}
	d := NewDrop(next, 0)

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Write(Frame{}))
	}
	assert.Len(t, next.frames, 3)
	assert.Zero(t, d.Dropped())
}

func TestMultiFansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	m := Multi(a, b)

	require.NoError(t, m.Write(Frame{Sequence: 9}))
	assert.Len(t, a.frames, 1)
	assert.Len(t, b.frames, 1)
}

func TestStoreSavesMJPEGAsIs(t *testing.T) {
	s, err := storage.New(t.TempDir())
	require.NoError(t, err)
	run, err := s.NewRun("test", "", time.Now())
	require.NoError(t, err)

	store := NewStore(run, 0)
	require.NoError(t, store.Write(Frame{
		PixelFormat: capture.PixFmtMJPEG,
		Sequence:    3,
		Data:        []byte{0xff, 0xd8, 0xff},
	}))

	latest, err := run.LatestFrameName()
	require.NoError(t, err)
	assert.Equal(t, "frame-000003.jpg", latest)
}

func TestStoreEncodesGrey(t *testing.T) {
	s, err := storage.New(t.TempDir())
	require.NoError(t, err)
	run, err := s.NewRun("grey", "", time.Now())
	require.NoError(t, err)

	const w, h = 8, 4
	store := NewStore(run, 90)
	require.NoError(t, store.Write(Frame{
		Width:       w,
		Height:      h,
		Stride:      w,
		PixelFormat: capture.PixFmtGrey,
		Sequence:    1,
		Data:        make([]byte, w*h),
	}))

	frames, err := run.ListFrames()
	require.NoError(t, err)
	assert.Equal(t, []string{"frame-000001.jpg"}, frames)
}

func TestPreviewDoesNotBlockSlowClients(t *testing.T) {
	p := NewPreview(0)
	ch, cancel := p.Subscribe()
	defer cancel()

	frame := Frame{PixelFormat: capture.PixFmtMJPEG, Data: []byte{1, 2, 3}}
	require.NoError(t, p.Write(frame))
	require.NoError(t, p.Write(frame), "second write must not block on a full client")

	got := <-ch
	assert.Equal(t, []byte{1, 2, 3}, got)
}
