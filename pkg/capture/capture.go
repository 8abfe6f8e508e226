// Package capture defines the camera subsystem contract used by the capture
// session: enumeration, stream configuration, buffer pools and the request
// cycle. Backends implement Manager and Camera; pkg/capture/v4l2cam adapts
// V4L2 devices and pkg/capture/capturetest provides a scriptable fake.
package capture

import "fmt"

// StreamRole declares the intended usage of a stream so a backend can pick
// sensible defaults before the application adjusts them.
type StreamRole int

const (
	Viewfinder StreamRole = iota
	StillCapture
	VideoRecording
)

func (r StreamRole) String() string {
	switch r {
	case Viewfinder:
		return "viewfinder"
	case StillCapture:
		return "still"
	case VideoRecording:
		return "video"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// PixelFormat is a V4L2-style fourcc.
type PixelFormat uint32

func FourCC(a, b, c, d byte) PixelFormat {
	return PixelFormat(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

var (
	PixFmtMJPEG = FourCC('M', 'J', 'P', 'G')
	PixFmtRGB24 = FourCC('R', 'G', 'B', '3')
	PixFmtYUYV  = FourCC('Y', 'U', 'Y', 'V')
	PixFmtGrey  = FourCC('G', 'R', 'E', 'Y')
)

func (f PixelFormat) String() string {
	return string([]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}

type CameraLocation int

const (
	LocationExternal CameraLocation = iota
	LocationFront
	LocationBack
)

// Properties carries the identity hints a backend knows about a camera.
type Properties struct {
	Location CameraLocation
	Model    string
	Driver   string
	BusInfo  string
}

// Manager enumerates the cameras available on the system. A process uses a
// single Manager; Stop must be called last during teardown, after every
// acquired Camera has been released.
type Manager interface {
	Start() error
	Stop()
	Cameras() []Camera
}

// Camera is one image source. Usage is exclusive: Acquire before any other
// call, Release exactly once when done. The completion callback registered
// with OnRequestCompleted is invoked on the backend's internal dispatch
// goroutine, once per finished request; it must not block and must be
// registered before Start.
type Camera interface {
	ID() string
	Properties() Properties

	Acquire() error
	Release() error

	GenerateConfiguration(roles ...StreamRole) (*CameraConfiguration, error)
	Configure(cfg *CameraConfiguration) error

	AllocateBuffers(stream *Stream) ([]*FrameBuffer, error)
	FreeBuffers(stream *Stream) error

	NewRequest() (*Request, error)
	QueueRequest(req *Request) error
	OnRequestCompleted(fn func(*Request))

	Start() error
	Stop() error
}

// CameraName builds a human readable name from the camera properties, with
// the unique ID appended for reference.
func CameraName(cam Camera) string {
	props := cam.Properties()

	var name string
	switch props.Location {
	case LocationFront:
		name = "Internal front camera"
	case LocationBack:
		name = "Internal back camera"
	default:
		name = "External camera"
		if props.Model != "" {
			name += " '" + props.Model + "'"
		}
	}

	return name + " (" + cam.ID() + ")"
}
