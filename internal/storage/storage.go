// Package storage locates the package archives that inspection requests
// name, either under the local incoming directory or in a blob store.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

var (
	ErrNotFound    = errors.New("package not found")
	ErrInvalidPath = errors.New("invalid package path")
)

// Source is a read-only store of package archives addressed by slash
// separated keys.
type Source interface {
	// Open returns a reader for the content at key.
	// The caller must close the reader when done.
	// Returns ErrNotFound if the key does not exist.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists returns true if content exists at key.
	Exists(ctx context.Context, key string) (bool, error)

	// Size returns the size in bytes of content at key.
	// Returns ErrNotFound if the key does not exist.
	Size(ctx context.Context, key string) (int64, error)
}

// CleanKey turns a relative package path into a store key. Keys may not
// climb out of the store.
func CleanKey(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" || strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	key := path.Clean(p)
	if key == "." || key == ".." || strings.HasPrefix(key, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return key, nil
}

// HashingReader wraps a reader and computes SHA256 hash as content is read.
type HashingReader struct {
	r    io.Reader
	hash []byte
	h    interface{ Sum([]byte) []byte }
	size int64
	done bool
}

func NewHashingReader(r io.Reader) *HashingReader {
	h := sha256.New()
	return &HashingReader{
		r: io.TeeReader(r, h),
		h: h,
	}
}

func (hr *HashingReader) Read(p []byte) (n int, err error) {
	n, err = hr.r.Read(p)
	hr.size += int64(n)
	if err == io.EOF {
		hr.done = true
		hr.hash = hr.h.Sum(nil)
	}
	return
}

func (hr *HashingReader) Sum() string {
	if !hr.done {
		hr.hash = hr.h.Sum(nil)
		hr.done = true
	}
	return hex.EncodeToString(hr.hash)
}

func (hr *HashingReader) Size() int64 {
	return hr.size
}
