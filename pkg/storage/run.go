package storage

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"

	"camloop-pi/pkg/storage/consts"
)

// Run is one capture run: a directory of sequence-numbered frames plus any
// assembled videos.
type Run struct {
	Name string `json:"name"`
	Info string `json:"info,omitempty"`

	StartedAt time.Time `json:"startedAt"`

	root string
}

type FramesInfo struct {
	Count       int    `json:"count"`
	LatestFrame string `json:"latestFrame"`

	UpdatedAt time.Time `json:"updatedAt"`
}

type File struct {
	Name    string    `json:"name"`
	Size    string    `json:"size"`
	ModTime time.Time `json:"modTime"`
}

func (r *Run) init() error {
	err := mkdirAll(
		r.framesDir(),
		r.videosDir(),
	)
	if err != nil {
		return err
	}

	return r.dumpFramesInfo(&FramesInfo{})
}

// SaveFrame stores one frame under its capture sequence number. Sequence
// numbers come from the camera metadata, so filenames stay stable and sorted
// regardless of wall-clock state.
func (r *Run) SaveFrame(seq uint32, ext string, data []byte) error {
	info, err := r.loadFramesInfo()
	if err != nil {
		return err
	}
	name := r.frameName(seq, ext)
	if err = os.WriteFile(r.FramePath(name), data, consts.DefaultFilePerm); err != nil {
		return err
	}

	info.Count++
	info.LatestFrame = name
	return r.dumpFramesInfo(info)
}

func (r *Run) LatestFrameName() (string, error) {
	info, err := r.loadFramesInfo()
	if err != nil {
		return "", err
	}

	return info.LatestFrame, nil
}

func (r *Run) FrameCount() (int, error) {
	info, err := r.loadFramesInfo()
	if err != nil {
		return 0, err
	}

	return info.Count, nil
}

func (r *Run) ListFrames() ([]string, error) {
	files, err := os.ReadDir(r.framesDir())
	if err != nil {
		return nil, err
	}
	var res []string
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		if !strings.HasSuffix(file.Name(), consts.DefaultFrameExt) {
			continue
		}
		res = append(res, file.Name())
	}

	return res, nil
}

// Files lists stored frames with humanized sizes for the API.
func (r *Run) Files() ([]File, error) {
	entries, err := os.ReadDir(r.framesDir())
	if err != nil {
		return nil, err
	}
	var res []File
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == consts.DefaultInfoFile {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			return nil, err
		}
		res = append(res, File{
			Name:    fi.Name(),
			Size:    humanize.Bytes(uint64(fi.Size())),
			ModTime: fi.ModTime(),
		})
	}

	return res, nil
}

func (r *Run) frameName(seq uint32, ext string) string {
	if ext == "" {
		ext = consts.DefaultFrameExt
	}
	return fmt.Sprintf("frame-%06d%s", seq, ext)
}

func (r *Run) loadFramesInfo() (*FramesInfo, error) {
	data, err := os.ReadFile(r.framesInfoPath())
	if err != nil {
		return nil, fmt.Errorf("read frames info err: %w", err)
	}
	info := &FramesInfo{}
	if err = json.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("unmarshal frames info err: %w", err)
	}

	return info, nil
}

func (r *Run) dumpFramesInfo(info *FramesInfo) error {
	info.UpdatedAt = time.Now()
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}

	return os.WriteFile(r.framesInfoPath(), data, consts.DefaultFilePerm)
}

func (r *Run) FramePath(name string) string {
	return path.Join(r.framesDir(), name)
}

func (r *Run) VideoPath(name string) string {
	return path.Join(r.videosDir(), name)
}

func (r *Run) framesInfoPath() string {
	return path.Join(r.framesDir(), consts.DefaultInfoFile)
}

func (r *Run) framesDir() string {
	return path.Join(r.root, r.Name, consts.DefaultFramesDir)
}

func (r *Run) videosDir() string {
	return path.Join(r.root, r.Name, consts.DefaultVideosDir)
}
