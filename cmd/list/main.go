package main

import (
	"flag"
	"fmt"
	"os"

	"camloop-pi/pkg/capture"
	"camloop-pi/pkg/capture/v4l2cam"
)

var pattern = flag.String("devices", v4l2cam.DefaultDevicePattern, "camera device glob")

func main() {
	flag.Parse()

	mgr := v4l2cam.NewManager(*pattern)
	if err := mgr.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "start camera manager: %s\n", err)
		os.Exit(1)
	}
	defer mgr.Stop()

	cams := mgr.Cameras()
	if len(cams) == 0 {
		fmt.Println("No cameras were identified on the system.")
		os.Exit(1)
	}

	for _, cam := range cams {
		fmt.Printf(" - %s\n", capture.CameraName(cam))
	}
}
