package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"
)

// BucketSource reads package archives from the package store's bucket.
// Keys are the same relative package paths the incoming directory uses.
//
// Supported URL schemes:
//   - file:///srv/packages - a directory, resolved to an absolute path
//   - s3://bucket-name - Amazon S3 (uses AWS_* environment variables)
//   - s3://bucket-name?region=us-east-1&endpoint=http://localhost:9000 - S3-compatible (MinIO, etc.)
type BucketSource struct {
	bucket *blob.Bucket
	url    string
}

// OpenBucket opens the package bucket at rawURL.
func OpenBucket(ctx context.Context, rawURL string) (*BucketSource, error) {
	resolved, err := resolveBucketURL(rawURL)
	if err != nil {
		return nil, err
	}
	bucket, err := blob.OpenBucket(ctx, resolved)
	if err != nil {
		return nil, fmt.Errorf("opening package bucket %s: %w", rawURL, err)
	}
	return &BucketSource{bucket: bucket, url: resolved}, nil
}

// resolveBucketURL makes file URLs absolute, as fileblob requires.
// Other schemes pass through untouched.
func resolveBucketURL(rawURL string) (string, error) {
	if !strings.HasPrefix(rawURL, "file://") {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing bucket URL: %w", err)
	}
	// file://store names a relative directory, which url.Parse reads as
	// a host.
	dir := u.Host + u.Path
	if dir == "" {
		dir = u.Opaque
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving bucket directory: %w", err)
	}
	u.Host, u.Opaque = "", ""
	u.Path = filepath.ToSlash(abs)
	return u.String(), nil
}

// Open returns the archive stored under key.
func (s *BucketSource) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, s.keyError("reading", key, err)
	}
	return r, nil
}

// Exists reports whether an archive is stored under key. An invalid key
// is never present.
func (s *BucketSource) Exists(ctx context.Context, key string) (bool, error) {
	key, err := CleanKey(key)
	if err != nil {
		return false, nil
	}
	ok, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("checking %s in package bucket: %w", key, err)
	}
	return ok, nil
}

// Size returns the stored size of the archive under key.
func (s *BucketSource) Size(ctx context.Context, key string) (int64, error) {
	key, err := CleanKey(key)
	if err != nil {
		return 0, err
	}
	attrs, err := s.bucket.Attributes(ctx, key)
	if err != nil {
		return 0, s.keyError("stat", key, err)
	}
	return attrs.Size, nil
}

// Close releases the bucket.
func (s *BucketSource) Close() error {
	return s.bucket.Close()
}

// URL returns the resolved bucket URL.
func (s *BucketSource) URL() string {
	return s.url
}

func (s *BucketSource) keyError(op, key string, err error) error {
	if gcerrors.Code(err) == gcerrors.NotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return fmt.Errorf("%s %s in package bucket: %w", op, key, err)
}
