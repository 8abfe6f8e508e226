package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLifecycle(t *testing.T) {
	cfg := NewCameraConfiguration(nil, StreamConfiguration{
		Size:        Size{Width: 640, Height: 480},
		PixelFormat: PixFmtYUYV,
	})
	cfg.Commit()
	stream := cfg.At(0).Stream()
	require.NotNil(t, stream)

	buf := NewFrameBuffer(640 * 480 * 2)
	req := NewRequest(1)

	require.NoError(t, req.AddBuffer(stream, buf))
	assert.Error(t, req.AddBuffer(stream, buf), "one buffer per stream")

	require.NoError(t, req.MarkQueued())
	assert.ErrorIs(t, req.MarkQueued(), ErrRequestQueued)

	assert.ErrorIs(t, req.Reuse(ReuseBuffers), ErrRequestNotReady)

	req.Finish(RequestComplete)
	require.NoError(t, req.Reuse(ReuseBuffers))
	assert.Equal(t, RequestPending, req.Status())
	assert.Len(t, req.Buffers(), 1, "identity and buffers survive reuse")

	require.NoError(t, req.MarkQueued())
	req.Finish(RequestCancelled)
	require.NoError(t, req.Reuse(0))
	assert.Empty(t, req.Buffers())
}

func TestFrameBufferMapScoped(t *testing.T) {
	buf := NewFrameBuffer(16, 8)

	m, err := buf.Map(MapRead)
	require.NoError(t, err)
	assert.True(t, buf.Mapped())
	assert.Len(t, m.Planes(), 2)
	assert.Len(t, m.Plane(1), 8)

	require.NoError(t, m.Close())
	assert.False(t, buf.Mapped())
	assert.ErrorIs(t, m.Close(), ErrBufferUnmapped)
}

func TestConfigurationValidateAdjusts(t *testing.T) {
	cfg := NewCameraConfiguration(func(c *CameraConfiguration) ValidationStatus {
		sc := c.At(0)
		if sc.Size.Width > 1920 {
			sc.Size = Size{Width: 1920, Height: 1080}
			return ConfigAdjusted
		}
		return ConfigValid
	}, StreamConfiguration{Size: Size{Width: 4096, Height: 2560}, PixelFormat: PixFmtMJPEG})

	assert.Equal(t, ConfigAdjusted, cfg.Validate())
	assert.Equal(t, Size{Width: 1920, Height: 1080}, cfg.At(0).Size)

	cfg.Commit()
	stream := cfg.At(0).Stream()
	require.NotNil(t, stream)
	assert.Equal(t, Size{Width: 1920, Height: 1080}, stream.Configuration().Size)
	assert.Same(t, stream, stream.Configuration().Stream())
}

func TestPixelFormatFourCC(t *testing.T) {
	assert.Equal(t, "MJPG", PixFmtMJPEG.String())
	assert.Equal(t, "RGB3", PixFmtRGB24.String())
}

type stubCamera struct {
	Camera
	id    string
	props Properties
}

func (c *stubCamera) ID() string             { return c.id }
func (c *stubCamera) Properties() Properties { return c.props }

func TestCameraName(t *testing.T) {
	cam := &stubCamera{id: "/dev/video0", props: Properties{Model: "mmal service"}}
	assert.Equal(t, "External camera 'mmal service' (/dev/video0)", CameraName(cam))

	cam.props = Properties{Location: LocationFront}
	assert.Equal(t, "Internal front camera (/dev/video0)", CameraName(cam))

	cam.props = Properties{}
	assert.Equal(t, "External camera (/dev/video0)", CameraName(cam))
}

func TestStringHelpers(t *testing.T) {
	assert.Equal(t, "640x480", Size{640, 480}.String())
	assert.Equal(t, "viewfinder", Viewfinder.String())
}
