package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps <dir>/<actor>/memories.json. When an actor has no memories file yet, a hand
// written <dir>/<actor>/initial_memories.json seeds the first read.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) Read(_ context.Context, actor string) (Timeline, error) {
	if err := validActor(actor); err != nil {
		return Timeline{}, err
	}
	for _, name := range []string{"memories.json", "initial_memories.json"} {
		t, ok, err := readTimeline(filepath.Join(s.dir, actor, name))
		if err != nil {
			return Timeline{}, fmt.Errorf("%w: %s: %v", ErrMemoryIO, actor, err)
		}
		if ok {
			return t, nil
		}
	}
	return NewTimeline(), nil
}

func readTimeline(path string) (Timeline, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Timeline{}, false, nil
		}
		return Timeline{}, false, err
	}
	var t Timeline
	if err := json.Unmarshal(data, &t); err != nil {
		return Timeline{}, false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	t.normalize()
	return t, true, nil
}

func (s *FileStore) Write(_ context.Context, actor string, t Timeline) error {
	if err := validActor(actor); err != nil {
		return err
	}
	t.normalize()
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrMemoryIO, actor, err)
	}
	dir := filepath.Join(s.dir, actor)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrMemoryIO, actor, err)
	}
	tmp, err := os.CreateTemp(dir, "memories.*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", ErrMemoryIO, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %v", ErrMemoryIO, actor, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrMemoryIO, actor, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, "memories.json")); err != nil {
		return fmt.Errorf("%w: rename %s: %v", ErrMemoryIO, actor, err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
