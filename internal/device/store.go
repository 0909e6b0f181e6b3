package device

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const storeFileMode = 0o600

// FileStore keeps the identity in a single file owned by the installation.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore rooted at path.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("device: store path is required")
	}
	return &FileStore{path: path}, nil
}

// DefaultStorePath resolves the identity file under the user's config directory.
func DefaultStorePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "docvault", "secure_device_id"), nil
}

// Load reads the stored identity. A missing file is reported as not found.
func (s *FileStore) Load(_ context.Context) (string, bool, error) {
	contents, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	value := strings.TrimSpace(string(contents))
	if value == "" {
		return "", false, nil
	}
	return value, true, nil
}

// Save writes the identity, creating the parent directory when needed.
func (s *FileStore) Save(_ context.Context, value string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(value+"\n"), storeFileMode); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// MemoryStore holds the identity in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	value string
	saves int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.value != "", nil
}

func (s *MemoryStore) Save(_ context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = value
	s.saves++
	return nil
}

// Saves reports how many writes the store has accepted.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
