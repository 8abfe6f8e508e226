// Package ov holds the view objects returned by the HTTP API.
package ov

import (
	"time"

	"camloop-pi/pkg/storage"
	"camloop-pi/pkg/utils/ps"
)

type CameraInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Model  string `json:"model,omitempty"`
	Driver string `json:"driver,omitempty"`
}

type RunInfo struct {
	Name      string         `json:"name"`
	Info      string         `json:"info,omitempty"`
	StartedAt time.Time      `json:"startedAt"`
	Frames    []storage.File `json:"frames"`
}

type DeviceStats struct {
	CPU    ps.CPU    `json:"cpu"`
	Memory ps.Memory `json:"memory"`
	Disk   ps.Disk   `json:"disk"`

	// StorageBytes is the total size of the capture storage directory.
	StorageBytes int64 `json:"storageBytes"`
}
