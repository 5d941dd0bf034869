package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileTranscriptStore keeps <dir>/<id>.json per contract.
type FileTranscriptStore struct {
	dir string
}

func NewFileTranscriptStore(dir string) *FileTranscriptStore {
	return &FileTranscriptStore{dir: dir}
}

func (s *FileTranscriptStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileTranscriptStore) Ref(id string) string { return s.path(id) }

func (s *FileTranscriptStore) Read(_ context.Context, id string) ([]Entry, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrTranscriptIO, id, err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrTranscriptIO, id, err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Write replaces the transcript through a temp file and rename so readers never see a torn file.
func (s *FileTranscriptStore) Write(_ context.Context, id string, entries []Entry) error {
	if err := validID(id); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cloneEntries(entries), "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrTranscriptIO, id, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir: %v", ErrTranscriptIO, err)
	}
	tmp, err := os.CreateTemp(s.dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", ErrTranscriptIO, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %v", ErrTranscriptIO, id, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrTranscriptIO, id, err)
	}
	if err := os.Rename(tmp.Name(), s.path(id)); err != nil {
		return fmt.Errorf("%w: rename %s: %v", ErrTranscriptIO, id, err)
	}
	return nil
}

func (s *FileTranscriptStore) Close() error { return nil }
