package archive

import (
	"archive/tar"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/git-pkgs/pkginspect/internal/pathutil"
)

// errStop ends a tar walk early without reporting an error.
var errStop = errors.New("stop walk")

// tarReader streams tar archives through a decompressor. Tar has no
// central directory, so every operation is a single forward pass.
type tarReader struct {
	path        string
	compression Compression
	opts        Options
}

func (t *tarReader) Format() Format {
	return FormatTar
}

// walk calls fn for every header in the archive until fn returns errStop.
func (t *tarReader) walk(ctx context.Context, fn func(hdr *tar.Header, r io.Reader) error) error {
	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	rc, err := decompress(f, t.compression)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	tr := tar.NewReader(rc)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil && !errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("reading tar: %w", err)
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		if err := fn(hdr, tr); err != nil {
			if errors.Is(err, errStop) {
				return nil
			}
			return err
		}
	}
}

func (t *tarReader) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := t.walk(ctx, func(hdr *tar.Header, _ io.Reader) error {
		entries = append(entries, entryFromTar(hdr))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (t *tarReader) ReadFile(ctx context.Context, member string) ([]byte, error) {
	member = pathutil.StripDotSlash(member)

	var data []byte
	found := false
	err := t.walk(ctx, func(hdr *tar.Header, r io.Reader) error {
		if !isTarFile(hdr) || pathutil.StripDotSlash(hdr.Name) != member {
			return nil
		}
		var err error
		data, err = readLimited(r, t.opts.MaxMemberSize)
		if err != nil {
			return fmt.Errorf("reading %s: %w", member, err)
		}
		found = true
		return errStop
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, member)
	}
	return data, nil
}

func (t *tarReader) ExtractTo(ctx context.Context, dest string, members ...string) error {
	m, err := newMaterializer(dest, t.opts.MaxMemberSize, t.opts.Logger)
	if err != nil {
		return err
	}
	sel := newMemberSet(members)

	err = t.walk(ctx, func(hdr *tar.Header, r io.Reader) error {
		if !sel.match(hdr.Name) {
			return nil
		}
		switch {
		case hdr.Typeflag == tar.TypeDir:
			return m.dir(hdr.Name)
		case isTarFile(hdr):
			return m.file(hdr.Name, hdr.FileInfo().Mode(), r)
		default:
			m.skip(hdr.Name, "links and special files are not extracted")
			return nil
		}
	})
	if err != nil {
		return err
	}
	if !sel.all() && m.written == 0 {
		return fmt.Errorf("%w: %s", ErrMemberNotFound, strings.Join(members, ", "))
	}
	return nil
}

func isTarFile(hdr *tar.Header) bool {
	return hdr.Typeflag == tar.TypeReg
}

func entryFromTar(hdr *tar.Header) Entry {
	name := hdr.Name
	if hdr.Typeflag == tar.TypeDir && !strings.HasSuffix(name, "/") {
		name += "/"
	}
	return Entry{
		Name:    name,
		Size:    hdr.Size,
		ModTime: hdr.ModTime,
		Mode:    hdr.FileInfo().Mode(),
	}
}

// decompress wraps r with the reader for c.
func decompress(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("opening gzip: %w", err)
		}
		return gz, nil
	case CompressionBzip2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	case CompressionXz:
		xzReader, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("opening xz: %w", err)
		}
		return io.NopCloser(xzReader), nil
	case CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("opening zstd: %w", err)
		}
		return dec.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("no native decoder for %s compression", c)
	}
}
