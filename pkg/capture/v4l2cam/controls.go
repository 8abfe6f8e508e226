package v4l2cam

import (
	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"

	"camloop-pi/pkg/capture"
)

// V4L2 control IDs for the per-frame controls the capture contract exposes.
var ctrlIDs = map[capture.ControlID]v4l2.CtrlID{
	capture.ControlBrightness:   9963776,  // V4L2_CID_BRIGHTNESS
	capture.ControlContrast:     9963777,  // V4L2_CID_CONTRAST
	capture.ControlSaturation:   9963778,  // V4L2_CID_SATURATION
	capture.ControlExposureTime: 10094850, // V4L2_CID_EXPOSURE_ABSOLUTE
	capture.ControlAnalogueGain: 10356995, // V4L2_CID_ANALOGUE_GAIN
}

// applyControls sets request controls on the device at queue time. V4L2
// controls are device-global rather than per-request, so this is the closest
// available approximation; unsupported controls are logged and skipped.
func (c *Camera) applyControls(dev *device.Device, controls capture.ControlList) {
	for id, value := range controls {
		cid, ok := ctrlIDs[id]
		if !ok {
			continue
		}
		if err := v4l2.SetControlValue(dev.Fd(), cid, v4l2.CtrlValue(value)); err != nil {
			c.logger.Debugf("set ctrl(%d) to %d err: %s", cid, value, err)
		}
	}
}
