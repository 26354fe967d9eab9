package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store persists a single current model. Version changes whenever a new
// model is saved and is used to detect models written by other processes.
type Store interface {
	Save(ctx context.Context, m *Model) (time.Time, error)
	Load(ctx context.Context) (*Model, time.Time, error)
	Version(ctx context.Context) (time.Time, error)
}

// FileStore keeps the model as one JSON artifact on disk.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

// Save writes to a temporary file in the same directory and renames it
// over the artifact so readers never see a partial model.
func (s *FileStore) Save(_ context.Context, m *Model) (time.Time, error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return time.Time{}, fmt.Errorf("create model dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".model-*.json")
	if err != nil {
		return time.Time{}, fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	encoder := json.NewEncoder(tmp)
	if err := encoder.Encode(m); err != nil {
		tmp.Close()
		return time.Time{}, fmt.Errorf("encode model: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return time.Time{}, err
	}
	if err := tmp.Close(); err != nil {
		return time.Time{}, err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return time.Time{}, fmt.Errorf("install model artifact: %w", err)
	}
	return s.Version(context.Background())
}

func (s *FileStore) Load(ctx context.Context) (*Model, time.Time, error) {
	version, err := s.Version(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	content, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, time.Time{}, ErrModelNotFound
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	var m Model
	if err := json.Unmarshal(content, &m); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode model %s: %w", s.path, err)
	}
	return &m, version, nil
}

func (s *FileStore) Version(_ context.Context) (time.Time, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, ErrModelNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
