package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists the token pair as a single JSON document on disk.
// Writes go through a temp file followed by a rename, so a crash mid-write
// never leaves a half-updated pair behind.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file-backed store at the given path. The parent
// directory is created if it does not exist.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("token file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create token dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Get reads the requested token from disk, returning an empty string when the
// file does not exist or the token is absent.
func (s *FileStore) Get(_ context.Context, kind Kind) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, err := s.read()
	if err != nil {
		return "", err
	}
	if kind == Refresh {
		return pair.Refresh, nil
	}
	return pair.Access, nil
}

// Set writes both tokens atomically.
func (s *FileStore) Set(_ context.Context, pair Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("marshal token pair: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

// Clear removes the token file. A missing file counts as already cleared.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

func (s *FileStore) read() (Pair, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Pair{}, nil
		}
		return Pair{}, fmt.Errorf("read token file: %w", err)
	}

	var pair Pair
	if err := json.Unmarshal(data, &pair); err != nil {
		return Pair{}, fmt.Errorf("unmarshal token file: %w", err)
	}
	return pair, nil
}
