package securestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"launchpad/pkg/logging"
)

// SecureNamespace is the directory holding sealed records.
const SecureNamespace = "secure"

// ErrNotFound is returned by Get when no record exists for the key.
var ErrNotFound = errors.New("record not found")

// BlobStore is a small persistent key-value area for opaque records.
type BlobStore interface {
	Get(key string) ([]byte, error)
	Put(key string, data []byte) error
	Delete(key string) error
}

// FileBlobStore stores each record as <dir>/<namespace>/<key><ext>.
type FileBlobStore struct {
	dir string
	ext string
}

// NewFileBlobStore creates a blob store for namespace under dataDir. ext is
// appended to every record file name and may be empty.
func NewFileBlobStore(dataDir, namespace, ext string) *FileBlobStore {
	return &FileBlobStore{dir: filepath.Join(dataDir, namespace), ext: ext}
}

// Path returns the file backing key.
func (s *FileBlobStore) Path(key string) string {
	return filepath.Join(s.dir, key+s.ext)
}

func (s *FileBlobStore) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Put replaces the record atomically: readers see either the old or the new
// content, never a partial write.
func (s *FileBlobStore) Put(key string, data []byte) error {
	if err := os.MkdirAll(s.dir, dirMode); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if err := tmp.Chmod(fileMode); err != nil {
		cleanup()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, s.Path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to commit %s: %w", key, err)
	}
	return nil
}

// Delete removes the record. Deleting a missing record is not an error.
func (s *FileBlobStore) Delete(key string) error {
	err := os.Remove(s.Path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Watch calls onChange whenever the record for key is written, replaced or
// removed, until ctx is done. The namespace directory is created if needed so
// a record that does not exist yet can still be watched.
func (s *FileBlobStore) Watch(ctx context.Context, key string, onChange func()) error {
	if err := os.MkdirAll(s.dir, dirMode); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory: atomic renames replace the inode, which would drop a
	// watch placed on the file itself.
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	target := s.Path(key)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || strings.HasSuffix(event.Name, ".tmp") {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				logging.Debug("BlobStore", "record %s changed (%s)", key, event.Op)
				onChange()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Error("BlobStore", err, "watch error")
			}
		}
	}()
	return nil
}
