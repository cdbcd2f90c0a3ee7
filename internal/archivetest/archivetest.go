// Package archivetest builds small archives on disk for tests.
package archivetest

import (
	"archive/tar"
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// File is one archive member. Names ending in "/" are written as
// directories and their Body is ignored.
type File struct {
	Name string
	Body string
}

// Files returns members whose bodies are derived from their names.
func Files(names ...string) []File {
	files := make([]File, len(names))
	for i, n := range names {
		files[i] = File{Name: n}
		if !strings.HasSuffix(n, "/") {
			files[i].Body = "contents of " + n
		}
	}
	return files
}

var modTime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

// Zip writes a zip archive named name under dir and returns its path.
func Zip(t testing.TB, dir, name string, files []File) string {
	t.Helper()

	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("creating %s: %v", p, err)
	}
	defer func() { _ = f.Close() }()

	w := zip.NewWriter(f)
	for _, file := range files {
		hdr := &zip.FileHeader{Name: file.Name, Method: zip.Deflate, Modified: modTime}
		if strings.HasSuffix(file.Name, "/") {
			hdr.Method = zip.Store
		}
		fw, err := w.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("adding %s: %v", file.Name, err)
		}
		if _, err := io.WriteString(fw, file.Body); err != nil {
			t.Fatalf("writing %s: %v", file.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return p
}

// Tar writes a tar archive named name under dir and returns its path. The
// compression follows the extension: .gz/.tgz, .xz or .zst.
func Tar(t testing.TB, dir, name string, files []File) string {
	t.Helper()

	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("creating %s: %v", p, err)
	}
	defer func() { _ = f.Close() }()

	var out io.WriteCloser
	switch {
	case strings.HasSuffix(name, ".gz"), strings.HasSuffix(name, ".tgz"):
		out = gzip.NewWriter(f)
	case strings.HasSuffix(name, ".xz"):
		xw, err := xz.NewWriter(f)
		if err != nil {
			t.Fatalf("creating xz writer: %v", err)
		}
		out = xw
	case strings.HasSuffix(name, ".zst"):
		zw, err := zstd.NewWriter(f)
		if err != nil {
			t.Fatalf("creating zstd writer: %v", err)
		}
		out = zw
	default:
		out = nopWriteCloser{f}
	}

	tw := tar.NewWriter(out)
	for _, file := range files {
		hdr := &tar.Header{
			Name:    file.Name,
			Mode:    0o644,
			ModTime: modTime,
		}
		if strings.HasSuffix(file.Name, "/") {
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0o755
		} else {
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(file.Body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("writing header %s: %v", file.Name, err)
		}
		if _, err := io.WriteString(tw, file.Body); err != nil {
			t.Fatalf("writing %s: %v", file.Name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("closing compressor: %v", err)
	}
	return p
}

// Write creates an archive whose kind follows the name: zip containers for
// .zip/.whl/.jar/.war/.ear/.apk/.nupkg, tar otherwise.
func Write(t testing.TB, dir, name string, files []File) string {
	t.Helper()

	lower := strings.ToLower(name)
	for _, ext := range []string{".zip", ".whl", ".jar", ".war", ".ear", ".apk", ".nupkg"} {
		if strings.HasSuffix(lower, ext) {
			return Zip(t, dir, name, files)
		}
	}
	return Tar(t, dir, name, files)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
