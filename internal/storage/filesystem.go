package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Filesystem is a directory of packages on local disk. The incoming
// directory is opened read-only; staging areas are written with Store.
type Filesystem struct {
	root string
}

// NewFilesystem creates a filesystem store rooted at the given directory.
// The directory will be created if it does not exist.
func NewFilesystem(root string) (*Filesystem, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root path: %w", err)
	}

	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, fmt.Errorf("creating root directory: %w", err)
	}

	return &Filesystem{root: absRoot}, nil
}

// OpenFilesystem opens an existing directory without creating it.
func OpenFilesystem(root string) (*Filesystem, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("opening package directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("opening package directory: %s is not a directory", absRoot)
	}
	return &Filesystem{root: absRoot}, nil
}

func (fs *Filesystem) fullPath(key string) string {
	return filepath.Join(fs.root, filepath.FromSlash(key))
}

// Store writes r to key through a temporary file and returns the size and
// SHA256 of what was written.
func (fs *Filesystem) Store(ctx context.Context, key string, r io.Reader) (int64, string, error) {
	fullPath := fs.fullPath(key)

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, "", fmt.Errorf("creating directory: %w", err)
	}

	// Write to temp file first for atomic operation
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return 0, "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	hr := NewHashingReader(r)
	size, err := io.Copy(tmpFile, hr)
	if err != nil {
		return 0, "", fmt.Errorf("writing content: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}

	if err := tmpFile.Close(); err != nil {
		return 0, "", fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		return 0, "", fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return size, hr.Sum(), nil
}

func (fs *Filesystem) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(fs.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("opening file: %w", err)
	}
	return f, nil
}

// Exists reports whether a regular file exists at key. Directories do not
// count as packages.
func (fs *Filesystem) Exists(ctx context.Context, key string) (bool, error) {
	info, err := os.Stat(fs.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking file: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

func (fs *Filesystem) Size(ctx context.Context, key string) (int64, error) {
	info, err := os.Stat(fs.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("stat file: %w", err)
	}
	return info.Size(), nil
}

// Root returns the root directory of the store.
func (fs *Filesystem) Root() string {
	return fs.root
}

// FullPath returns the filesystem path for a key.
func (fs *Filesystem) FullPath(key string) string {
	return fs.fullPath(key)
}
