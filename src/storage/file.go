package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FileBackend stores each key as a JSON file under a directory.
type FileBackend struct {
	fs  afero.Fs
	dir string
}

// NewFileBackend creates a backend rooted at dir on fs. A nil fs means the OS
// filesystem.
func NewFileBackend(fs afero.Fs, dir string) *FileBackend {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileBackend{fs: fs, dir: dir}
}

func (b *FileBackend) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(b.dir, key+".json"), nil
}

// Load returns the bytes stored under key, or nil if the key is absent.
func (b *FileBackend) Load(_ context.Context, key string) ([]byte, error) {
	p, err := b.path(key)
	if err != nil {
		return nil, &StorageError{Operation: "load", Key: key, Err: err}
	}
	data, err := afero.ReadFile(b.fs, p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &StorageError{Operation: "load", Key: key, Path: p, Err: err}
	}
	return data, nil
}

// Save writes the bytes for key through a temp file and rename.
func (b *FileBackend) Save(_ context.Context, key string, data []byte) error {
	p, err := b.path(key)
	if err != nil {
		return &StorageError{Operation: "save", Key: key, Err: err}
	}
	if err := b.fs.MkdirAll(b.dir, 0o755); err != nil {
		return &StorageError{Operation: "save", Key: key, Path: b.dir, Err: err}
	}
	tmp := p + ".tmp"
	if err := afero.WriteFile(b.fs, tmp, data, 0o600); err != nil {
		return &StorageError{Operation: "save", Key: key, Path: tmp, Err: err}
	}
	if err := b.fs.Rename(tmp, p); err != nil {
		return &StorageError{Operation: "save", Key: key, Path: p, Err: err}
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (b *FileBackend) Delete(_ context.Context, key string) error {
	p, err := b.path(key)
	if err != nil {
		return &StorageError{Operation: "delete", Key: key, Err: err}
	}
	if err := b.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &StorageError{Operation: "delete", Key: key, Path: p, Err: err}
	}
	return nil
}

// Close is a no-op; it lets FileBackend stand in wherever a DB is closed.
func (b *FileBackend) Close() error { return nil }
