package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestOpenBucket(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b, err := OpenBucket(ctx, fileURLFromPath(dir))
	if err != nil {
		t.Fatalf("OpenBucket failed: %v", err)
	}
	defer func() { _ = b.Close() }()

	if b.URL() == "" {
		t.Error("URL() should not be empty")
	}
}

func TestOpenBucketUnknownScheme(t *testing.T) {
	if _, err := OpenBucket(context.Background(), "nosuchscheme://bucket"); err == nil {
		t.Error("expected error for an unregistered scheme")
	}
}

func TestBlobReads(t *testing.T) {
	b, dir := createTestBlob(t)
	ctx := context.Background()
	writeBlobFile(t, dir, "python/demo-1.0-py3-none-any.whl", "wheel bytes")

	r, err := b.Open(ctx, "python/demo-1.0-py3-none-any.whl")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	data, err := io.ReadAll(r)
	_ = r.Close()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "wheel bytes" {
		t.Errorf("content = %q", data)
	}

	if ok, err := b.Exists(ctx, "python/demo-1.0-py3-none-any.whl"); err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
	if ok, _ := b.Exists(ctx, "python/other.whl"); ok {
		t.Error("Exists(other) = true")
	}
	if size, err := b.Size(ctx, "python/demo-1.0-py3-none-any.whl"); err != nil || size != int64(len("wheel bytes")) {
		t.Errorf("Size = %d, %v", size, err)
	}
}

func TestBlobNotFound(t *testing.T) {
	b, _ := createTestBlob(t)
	ctx := context.Background()

	if _, err := b.Open(ctx, "missing.gem"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open error = %v, want ErrNotFound", err)
	}
	if _, err := b.Size(ctx, "missing.gem"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Size error = %v, want ErrNotFound", err)
	}
}

func TestBlobRejectsEscapingKeys(t *testing.T) {
	b, dir := createTestBlob(t)
	ctx := context.Background()
	writeBlobFile(t, dir, "inside.tar.gz", "x")

	for _, key := range []string{"../inside.tar.gz", "/inside.tar.gz", ""} {
		if _, err := b.Open(ctx, key); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Open(%q) error = %v, want ErrInvalidPath", key, err)
		}
		if ok, err := b.Exists(ctx, key); ok || err != nil {
			t.Errorf("Exists(%q) = %v, %v; want false, nil", key, ok, err)
		}
	}

	if ok, _ := b.Exists(ctx, "sub/../inside.tar.gz"); !ok {
		t.Error("Exists should clean keys before looking them up")
	}
}

func TestBlobNotFoundNamesKey(t *testing.T) {
	b, _ := createTestBlob(t)
	_, err := b.Open(context.Background(), "ruby/missing-1.0.gem")
	if err == nil || !strings.Contains(err.Error(), "ruby/missing-1.0.gem") {
		t.Errorf("Open error = %v, want it to name the key", err)
	}
}

func TestResolveBucketURL(t *testing.T) {
	if got, _ := resolveBucketURL("s3://packages?region=eu-west-1"); got != "s3://packages?region=eu-west-1" {
		t.Errorf("s3 URL rewritten to %q", got)
	}

	t.Chdir(t.TempDir())
	got, err := resolveBucketURL("file://store")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "file:///") || !strings.HasSuffix(got, "/store") {
		t.Errorf("resolveBucketURL(file://store) = %q, want an absolute file URL", got)
	}
}

func createTestBlob(t *testing.T) (*BucketSource, string) {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()

	b, err := OpenBucket(ctx, fileURLFromPath(dir))
	if err != nil {
		t.Fatalf("OpenBucket failed: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b, dir
}

// writeBlobFile places content where fileblob looks for key.
func writeBlobFile(t *testing.T, dir, key, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func fileURLFromPath(path string) string {
	if runtime.GOOS == "windows" {
		// Windows paths need file:///C:/path format
		path = filepath.ToSlash(path)
		return "file:///" + path
	}
	return "file://" + path
}
