package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/git-pkgs/pkginspect/internal/pathutil"
)

// zipReader reads zip containers with random access, so single members are
// read straight from the central directory without staging.
type zipReader struct {
	path string
	opts Options
}

func (z *zipReader) Format() Format {
	return FormatZip
}

func (z *zipReader) open() (*zip.ReadCloser, error) {
	zr, err := zip.OpenReader(z.path)
	// Insecure names are clamped on extraction.
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("opening zip: %w", err)
	}
	return zr, nil
}

func (z *zipReader) List(ctx context.Context) ([]Entry, error) {
	zr, err := z.open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = zr.Close() }()

	entries := make([]Entry, 0, len(zr.File))
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries = append(entries, entryFromZip(f))
	}
	return entries, nil
}

func (z *zipReader) ReadFile(ctx context.Context, member string) ([]byte, error) {
	zr, err := z.open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = zr.Close() }()

	member = pathutil.StripDotSlash(member)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || pathutil.StripDotSlash(f.Name) != member {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", member, err)
		}
		defer func() { _ = rc.Close() }()
		return readLimited(rc, z.opts.MaxMemberSize)
	}
	return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, member)
}

func (z *zipReader) ExtractTo(ctx context.Context, dest string, members ...string) error {
	zr, err := z.open()
	if err != nil {
		return err
	}
	defer func() { _ = zr.Close() }()

	m, err := newMaterializer(dest, z.opts.MaxMemberSize, z.opts.Logger)
	if err != nil {
		return err
	}
	sel := newMemberSet(members)

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !sel.match(f.Name) {
			continue
		}

		info := f.FileInfo()
		switch {
		case info.IsDir():
			err = m.dir(f.Name)
		case info.Mode().IsRegular():
			err = z.extractFile(m, f)
		default:
			m.skip(f.Name, "not a regular file")
		}
		if err != nil {
			return err
		}
	}

	if !sel.all() && m.written == 0 {
		return fmt.Errorf("%w: %s", ErrMemberNotFound, strings.Join(members, ", "))
	}
	return nil
}

func (z *zipReader) extractFile(m *materializer, f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()
	return m.file(f.Name, f.Mode(), rc)
}

func entryFromZip(f *zip.File) Entry {
	name := f.Name
	if f.FileInfo().IsDir() && !strings.HasSuffix(name, "/") {
		name += "/"
	}
	return Entry{
		Name:           name,
		Size:           int64(f.UncompressedSize64),
		CompressedSize: int64(f.CompressedSize64),
		ModTime:        f.Modified,
		Mode:           f.Mode(),
	}
}

// jarReader handles jar, war and ear files. They are zip containers, but
// in tool mode the table of contents comes from "jar -tf" so listings match
// what the JDK sees.
type jarReader struct {
	zipReader
}

func (j *jarReader) Format() Format {
	return FormatJar
}

func (j *jarReader) List(ctx context.Context) ([]Entry, error) {
	if j.opts.Listing != ListingTool {
		return j.zipReader.List(ctx)
	}
	out, err := runTool(ctx, j.opts, j.opts.JarPath, "-tf", j.path)
	if err != nil {
		return nil, err
	}
	return parseListing(filepath.Base(j.opts.JarPath), out)
}
