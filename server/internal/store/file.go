package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// File keeps the snapshot in a single JSON file. Writes truncate and rewrite
// the file in place.
type File struct {
	path string
}

// NewFile returns a File backend for path. The file is created on first write.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", f.path, err)
	}
	return data, nil
}

func (f *File) Write(_ context.Context, data []byte) error {
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %q: %w", dir, err)
		}
	}
	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("write %q: %w", f.path, err)
	}
	return nil
}

func (f *File) Name() string { return "file" }

func (f *File) Close() error { return nil }
