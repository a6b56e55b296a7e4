package securestore

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"launchpad/pkg/logging"
)

const (
	// KeysNamespace is the directory holding key material.
	KeysNamespace = "keys"

	// KeySize is the size of generated key material in bytes.
	KeySize = 32

	dirMode  = 0o700
	fileMode = 0o600
)

// KeyStore hands out the symmetric key material used to seal blobs. The
// returned slice must be treated as read-only.
type KeyStore interface {
	Key() ([]byte, error)
}

// FileKeyStore keeps key material in <dir>/keys/<alias>.key.
type FileKeyStore struct {
	path string

	mu  sync.Mutex
	key []byte
}

// NewFileKeyStore creates a key store rooted at dataDir.
func NewFileKeyStore(dataDir, alias string) *FileKeyStore {
	return &FileKeyStore{path: filepath.Join(dataDir, KeysNamespace, alias+".key")}
}

// Key loads the key material, creating it on first use. Once loaded the same
// slice is returned for the rest of the process lifetime.
func (s *FileKeyStore) Key() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != nil {
		return s.key, nil
	}

	key, err := s.read()
	if err == nil {
		s.key = key
		return s.key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	key = make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key material: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), dirMode); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	// O_EXCL so two processes racing on first use agree on one key.
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, fileMode)
	if errors.Is(err, fs.ErrExist) {
		if key, err = s.read(); err != nil {
			return nil, err
		}
		s.key = key
		return s.key, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create key file: %w", err)
	}
	if _, err := f.Write(key); err != nil {
		f.Close()
		os.Remove(s.path)
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close key file: %w", err)
	}

	logging.Audit("KeyStore", "key_generated", "path", s.path)
	s.key = key
	return s.key, nil
}

func (s *FileKeyStore) read() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read key material: %w", err)
	}
	if len(data) != KeySize {
		return nil, fmt.Errorf("key material at %s has unexpected length %d", s.path, len(data))
	}
	return data, nil
}
