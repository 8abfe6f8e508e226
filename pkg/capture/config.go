package capture

import "fmt"

type Size struct {
	Width  int
	Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// StreamConfiguration describes one negotiated data path out of a camera.
// Size and PixelFormat may be adjusted by Validate; Stride and FrameSize are
// filled in by the backend when the configuration is applied.
type StreamConfiguration struct {
	Size        Size
	PixelFormat PixelFormat
	Stride      int
	FrameSize   int

	stream *Stream
}

// Stream returns the stream this configuration was committed to, nil before
// Camera.Configure succeeded.
func (c StreamConfiguration) Stream() *Stream {
	return c.stream
}

func (c *StreamConfiguration) String() string {
	return fmt.Sprintf("%s-%s", c.Size, c.PixelFormat)
}

type ValidationStatus int

const (
	ConfigValid ValidationStatus = iota
	ConfigAdjusted
	ConfigInvalid
)

func (s ValidationStatus) String() string {
	switch s {
	case ConfigValid:
		return "valid"
	case ConfigAdjusted:
		return "adjusted"
	case ConfigInvalid:
		return "invalid"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// CameraConfiguration is the set of stream configurations generated for the
// roles an application requested. It must be validated before being applied;
// Validate adjusts each entry to the nearest supported values.
type CameraConfiguration struct {
	configs  []StreamConfiguration
	validate func(*CameraConfiguration) ValidationStatus
}

// NewCameraConfiguration wraps backend-generated stream configurations with
// the backend's validation rule. Backend use only.
func NewCameraConfiguration(validate func(*CameraConfiguration) ValidationStatus, configs ...StreamConfiguration) *CameraConfiguration {
	return &CameraConfiguration{configs: configs, validate: validate}
}

func (c *CameraConfiguration) Len() int {
	return len(c.configs)
}

func (c *CameraConfiguration) At(i int) *StreamConfiguration {
	return &c.configs[i]
}

func (c *CameraConfiguration) Validate() ValidationStatus {
	if c.validate == nil {
		return ConfigValid
	}
	return c.validate(c)
}

// Commit binds a Stream to every entry, freezing the negotiated values.
// Called by backends at the end of a successful Configure.
func (c *CameraConfiguration) Commit() {
	for i := range c.configs {
		stream := &Stream{cfg: c.configs[i]}
		stream.cfg.stream = stream
		c.configs[i].stream = stream
	}
}

// Stream is one independent data path of image output. Its configuration is
// immutable once committed.
type Stream struct {
	cfg StreamConfiguration
}

func (s *Stream) Configuration() StreamConfiguration {
	return s.cfg
}
