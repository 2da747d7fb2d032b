package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FileStorage keeps one file per key inside a directory.
// Writes go to a temp file that is renamed over the old value, so a crash mid-write
// leaves either the previous or the new value on disk.
type FileStorage struct {
	mu  sync.RWMutex
	dir string
	log logrus.FieldLogger
}

// NewFileStorage returns a storage rooted at dir. The directory is created by Initialize.
func NewFileStorage(dir string, log logrus.FieldLogger) *FileStorage {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FileStorage{
		dir: dir,
		log: log.WithField("storage", "file"),
	}
}

// Initialize creates the storage directory if needed.
func (f *FileStorage) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create storage directory %s", f.dir)
	}
	f.log.WithField("dir", f.dir).Info("FileStorage initialized")
	return nil
}

// Get reads the file for key. A missing file is ErrNotFound.
func (f *FileStorage) Get(ctx context.Context, key string) (string, error) {
	path, err := f.path(key)
	if err != nil {
		return "", err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to read key %q", key)
	}
	return string(data), nil
}

// Set atomically replaces the file for key.
func (f *FileStorage) Set(ctx context.Context, key, value string) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, key+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "failed to create temp file for key %q", key)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write key %q", key)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to sync key %q", key)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close temp file for key %q", key)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "failed to replace key %q", key)
	}
	return nil
}

// Ping reports whether the storage directory exists.
func (f *FileStorage) Ping(ctx context.Context) bool {
	info, err := os.Stat(f.dir)
	if err != nil {
		f.log.WithError(err).Warn("FileStorage: ping failed")
		return false
	}
	return info.IsDir()
}

func (f *FileStorage) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || filepath.Base(key) != key {
		return "", errors.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(f.dir, key), nil
}
