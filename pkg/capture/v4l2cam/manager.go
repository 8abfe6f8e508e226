// Package v4l2cam implements the capture contract on top of V4L2 devices
// through go4vl. Each camera runs an internal dispatch goroutine that pairs
// frames arriving from the driver with queued requests and reports
// completions; that goroutine is the backend dispatch thread completion
// callbacks run on.
package v4l2cam

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/vladimirvivien/go4vl/device"
	"go.uber.org/zap"

	"camloop-pi/pkg/capture"
	"camloop-pi/pkg/utils"
)

const DefaultDevicePattern = "/dev/video*"

type Manager struct {
	pattern string
	logger  *zap.SugaredLogger

	started bool
	cams    []capture.Camera
}

// NewManager enumerates devices matching pattern on Start, DefaultDevicePattern
// when empty.
func NewManager(pattern string) *Manager {
	if pattern == "" {
		pattern = DefaultDevicePattern
	}
	return &Manager{
		pattern: pattern,
		logger:  utils.GetLogger().Named("v4l2"),
	}
}

func (m *Manager) Start() error {
	if m.started {
		return errors.New("manager already started")
	}

	paths, err := filepath.Glob(m.pattern)
	if err != nil {
		return fmt.Errorf("scan %s err: %w", m.pattern, err)
	}
	for _, path := range paths {
		cam, err := probe(path)
		if err != nil {
			m.logger.Debugf("skip %s: %s", path, err)
			continue
		}
		m.cams = append(m.cams, cam)
	}

	m.started = true
	return nil
}

func (m *Manager) Stop() {
	m.started = false
	m.cams = nil
}

func (m *Manager) Cameras() []capture.Camera {
	return append([]capture.Camera(nil), m.cams...)
}

// probe opens the device briefly to read its capability; devices that are
// not video capture nodes are skipped.
func probe(path string) (*Camera, error) {
	dev, err := device.Open(path)
	if err != nil {
		return nil, err
	}
	defer dev.Close()

	caps := dev.Capability()
	return &Camera{
		path: path,
		props: capture.Properties{
			Location: capture.LocationExternal,
			Model:    caps.Card,
			Driver:   caps.Driver,
			BusInfo:  caps.BusInfo,
		},
		bufferCount: DefaultBufferCount,
		logger:      utils.GetLogger().Named("v4l2"),
	}, nil
}
