package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by Storage.Load when nothing was saved under a key
var ErrNotFound = errors.New("key not found")

// Storage defines the interface for the durable snapshot backing the history
type Storage interface {
	// Load returns the value saved under key
	Load(key string) ([]byte, error)

	// Save overwrites the value under key
	Save(key string, data []byte) error

	// Close releases the backend
	Close() error
}

// OpenStorage opens one of the supported backends: "bolt", "sqlite" or "file".
// For "file" the path is a directory.
func OpenStorage(backend, path string) (Storage, error) {
	var (
		storage Storage
		err     error
	)
	switch backend {
	case "bolt", "":
		storage, err = NewBoltStorage(path)
	case "sqlite":
		storage, err = NewSQLiteStorage(path)
	case "file":
		storage, err = NewFileStorage(path)
	default:
		return nil, fmt.Errorf("unknown history backend %q (valid: bolt, sqlite, file)", backend)
	}
	if err != nil {
		return nil, err
	}
	return storage, nil
}

// FileStorage keeps one JSON file per key in a directory
type FileStorage struct {
	basePath string
}

// NewFileStorage creates a new FileStorage instance
func NewFileStorage(basePath string) (*FileStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &FileStorage{
		basePath: basePath,
	}, nil
}

func (f *FileStorage) path(key string) string {
	return filepath.Join(f.basePath, key+".json")
}

// Load reads the file for key
func (f *FileStorage) Load(key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Save replaces the file for key. The write goes to a temp file first so a
// crash never leaves a half-written snapshot behind.
func (f *FileStorage) Save(key string, data []byte) error {
	tmp, err := os.CreateTemp(f.basePath, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing file: %w", err)
	}
	return nil
}

// Close is a no-op for the filesystem
func (f *FileStorage) Close() error {
	return nil
}
