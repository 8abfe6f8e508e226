// Package storage persists capture runs on disk: one directory per run with
// a frames dir, a videos dir and a small json info file.
package storage

import (
	"fmt"
	"os"
	"path"
	"time"

	"github.com/goccy/go-json"

	"camloop-pi/pkg/storage/consts"
)

type Storage struct {
	root string
}

func New(root string) (*Storage, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root can not be empty")
	}
	if err := mkdirAll(root); err != nil {
		return nil, err
	}
	s := &Storage{root: root}
	if err := s.checkInitInfo(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Storage) Root() string {
	return s.root
}

func (s *Storage) ListRuns() ([]*Run, error) {
	data, err := os.ReadFile(s.infoPath())
	if err != nil {
		return nil, fmt.Errorf("read runs info err: %w", err)
	}
	var list []*Run
	if err = json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("unmarshal runs info err: %w", err)
	}
	for _, r := range list {
		r.root = s.root
	}

	return list, nil
}

func (s *Storage) GetRun(name string) (*Run, error) {
	list, err := s.ListRuns()
	if err != nil {
		return nil, err
	}
	for _, run := range list {
		if run.Name == name {
			return run, nil
		}
	}

	return nil, nil
}

// NewRun registers a capture run and creates its directory layout.
func (s *Storage) NewRun(name, info string, startedAt time.Time) (*Run, error) {
	if name == "" {
		return nil, fmt.Errorf("run name can not be empty")
	}
	list, err := s.ListRuns()
	if err != nil {
		return nil, err
	}
	for _, run := range list {
		if run.Name == name {
			return nil, fmt.Errorf("run %s already exists", name)
		}
	}

	run := &Run{
		Name:      name,
		Info:      info,
		StartedAt: startedAt,
		root:      s.root,
	}
	if err := run.init(); err != nil {
		return nil, err
	}
	list = append(list, run)

	return run, s.dumpRuns(list)
}

func (s *Storage) dumpRuns(list []*Run) error {
	f, err := os.Create(s.infoPath())
	if err != nil {
		return err
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(list)
}

func (s *Storage) infoPath() string {
	return path.Join(s.root, consts.DefaultInfoFile)
}

func (s *Storage) checkInitInfo() error {
	_, err := os.Stat(s.infoPath())
	if os.IsNotExist(err) {
		return s.dumpRuns(make([]*Run, 0))
	}

	return err
}

func mkdirAll(dirs ...string) error {
	for _, d := range dirs {
		if err := os.MkdirAll(d, consts.DefaultDirPerm); err != nil {
			return err
		}
	}
	return nil
}
