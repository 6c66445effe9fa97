package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/jonathan/feed-copilot/internal/types"
)

// DefaultPath is where the file backend keeps the slot.
const DefaultPath = ".copilot/" + Slot + ".json"

// FileStore keeps the slot in a JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed store; an empty path uses DefaultPath.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultPath
	}
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context) (types.CachedProfileSet, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return types.CachedProfileSet{}, nil
	}
	if err != nil {
		return nil, &StoreError{Backend: BackendFile, Op: "load", Cause: err}
	}

	set, err := decode(data)
	if err != nil {
		return nil, &StoreError{Backend: BackendFile, Op: "load", Cause: err}
	}
	return set, nil
}

// Save implements Store. The file is replaced atomically.
func (s *FileStore) Save(_ context.Context, set types.CachedProfileSet) error {
	data, err := encode(set)
	if err != nil {
		return &StoreError{Backend: BackendFile, Op: "save", Cause: err}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &StoreError{Backend: BackendFile, Op: "save", Cause: err}
	}

	tmp, err := os.CreateTemp(dir, ".profiles-*.json")
	if err != nil {
		return &StoreError{Backend: BackendFile, Op: "save", Cause: err}
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return &StoreError{Backend: BackendFile, Op: "save", Cause: err}
	}
	if err := tmp.Close(); err != nil {
		return &StoreError{Backend: BackendFile, Op: "save", Cause: err}
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return &StoreError{Backend: BackendFile, Op: "save", Cause: err}
	}
	return nil
}

// Clear implements Store.
func (s *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &StoreError{Backend: BackendFile, Op: "clear", Cause: err}
	}
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}
