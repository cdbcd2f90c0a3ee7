// Package archive answers structural questions about package archives
// without unpacking them.
//
// It supports:
//   - ZIP (.zip, .whl, .apk, .nupkg, .egg)
//   - JAR (.jar, .war, .ear), zip containers optionally listed with the jar tool
//   - TAR (.tar, .tar.gz, .tgz, .tar.bz2, .tar.xz, .tar.zst, .tar.Z, .gem)
//
// Every query re-reads the backing file. Listings are turned into an Index
// that synthesizes missing directories, so tar listings that only carry
// files behave like zips with explicit directory markers.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/git-pkgs/pkginspect/internal/metrics"
	"github.com/git-pkgs/pkginspect/internal/pathutil"
)

// Entry is a single archive member. Directory names end in a slash.
// Synthesized directories carry only a name.
type Entry struct {
	Name           string      `json:"name"`
	Size           int64       `json:"size,omitempty"`
	CompressedSize int64       `json:"compressed_size,omitempty"`
	ModTime        time.Time   `json:"mod_time,omitzero"`
	Mode           fs.FileMode `json:"-"`
}

// IsDir reports whether the entry names a directory.
func (e Entry) IsDir() bool {
	return strings.HasSuffix(e.Name, "/")
}

// Reader is implemented once per archive format.
type Reader interface {
	// Format returns the container format handled by the reader.
	Format() Format

	// List returns the raw entries in archive order.
	List(ctx context.Context) ([]Entry, error)

	// ExtractTo removes dest and writes the whole archive, or only the
	// named members, beneath it. A directory member selects its subtree.
	ExtractTo(ctx context.Context, dest string, members ...string) error

	// ReadFile returns the contents of a single member, or
	// ErrMemberNotFound.
	ReadFile(ctx context.Context, member string) ([]byte, error)
}

// ListingMode selects how entry listings are produced.
type ListingMode string

const (
	// ListingNative decodes archives with Go readers.
	ListingNative ListingMode = "native"
	// ListingTool shells out to tar and jar for listings.
	ListingTool ListingMode = "tool"
)

// Options configure how archives are read.
type Options struct {
	Listing ListingMode

	// TarPath and JarPath locate the external tools. They default to
	// "tar" and "jar" on PATH.
	TarPath string
	JarPath string

	// ToolTimeout bounds each external tool run. Zero means no limit
	// beyond the caller's context.
	ToolTimeout time.Duration

	// MaxMemberSize limits bytes read or written per member. Zero means
	// unlimited.
	MaxMemberSize int64

	// MaxListingSize limits the bytes accepted from a tool listing.
	MaxListingSize int64

	// ToolEnv is appended to the inherited environment of external tools.
	ToolEnv []string

	// ScratchDir is where tool based readers stage single members.
	ScratchDir string

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Listing == "" {
		o.Listing = ListingNative
	}
	if o.TarPath == "" {
		o.TarPath = "tar"
	}
	if o.JarPath == "" {
		o.JarPath = "jar"
	}
	if o.MaxListingSize == 0 {
		o.MaxListingSize = 64 << 20
	}
	if o.ScratchDir == "" {
		o.ScratchDir = os.TempDir()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Archive is the query surface over a single backing file. It is cheap to
// construct and holds no listing state between calls.
type Archive struct {
	path        string
	format      Format
	compression Compression
	reader      Reader
	logger      *slog.Logger
}

// Open selects the reader for path. The file must exist; its contents are
// not read until the first query.
func Open(path string, opts Options) (*Archive, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, unreadable("open", path, err)
	}
	if info.IsDir() {
		return nil, unreadable("open", path, errors.New("is a directory"))
	}

	opts = opts.withDefaults()
	a := &Archive{
		path:   path,
		format: FormatOf(path),
		logger: opts.Logger.With("archive", path),
	}

	switch a.format {
	case FormatZip:
		a.reader = &zipReader{path: path, opts: opts}
	case FormatJar:
		a.reader = &jarReader{zipReader: zipReader{path: path, opts: opts}}
	default:
		a.compression = CompressionOf(path)
		if opts.Listing == ListingTool || a.compression == CompressionCompress {
			a.reader = &tarToolReader{path: path, compression: a.compression, opts: opts}
		} else {
			a.reader = &tarReader{path: path, compression: a.compression, opts: opts}
		}
	}
	return a, nil
}

// Path returns the backing file.
func (a *Archive) Path() string {
	return a.path
}

// Format returns the detected container format.
func (a *Archive) Format() Format {
	return a.format
}

// Index lists the archive and returns a fresh Index over it.
func (a *Archive) Index(ctx context.Context) (*Index, error) {
	start := time.Now()
	raw, err := a.reader.List(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &Error{Op: "list", Path: a.path, Err: ctxErr}
		}
		metrics.RecordArchiveError(string(a.format), "list")
		a.logger.Warn("listing failed", "error", err)
		return nil, unreadable("list", a.path, err)
	}
	ix := NewIndex(raw)
	metrics.RecordListing(string(a.format), ix.Len(), time.Since(start))
	return ix, nil
}

// Root returns the common root directory, or "./" when there is none.
func (a *Archive) Root(ctx context.Context) (string, error) {
	ix, err := a.Index(ctx)
	if err != nil {
		return "", err
	}
	return ix.Root(), nil
}

// RootDir returns the common root directory, or "" when there is none.
func (a *Archive) RootDir(ctx context.Context) (string, error) {
	ix, err := a.Index(ctx)
	if err != nil {
		return "", err
	}
	return ix.RootDir(), nil
}

// FileInfoList returns the entries under dirname matching filter.
func (a *Archive) FileInfoList(ctx context.Context, dirname, filter string, recursive bool) ([]Entry, error) {
	ix, err := a.Index(ctx)
	if err != nil {
		return nil, err
	}
	return ix.Select(dirname, filter, recursive, false)
}

// DirectoryInfoList is FileInfoList restricted to directories.
func (a *Archive) DirectoryInfoList(ctx context.Context, dirname, filter string, recursive bool) ([]Entry, error) {
	ix, err := a.Index(ctx)
	if err != nil {
		return nil, err
	}
	return ix.Select(dirname, filter, recursive, true)
}

// Listing returns just the names from FileInfoList.
func (a *Archive) Listing(ctx context.Context, dirname, filter string, recursive bool) ([]string, error) {
	entries, err := a.FileInfoList(ctx, dirname, filter, recursive)
	if err != nil {
		return nil, err
	}
	return entryNames(entries), nil
}

// FileInfoTree nests FileInfoList under a node named after the root.
func (a *Archive) FileInfoTree(ctx context.Context, dirname, filter string, recursive bool) (*Node, error) {
	ix, err := a.Index(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := ix.Select(dirname, filter, recursive, false)
	if err != nil {
		return nil, err
	}
	return ToTree(entries, ix.RootDir()), nil
}

// DirectoryInfoTree nests DirectoryInfoList under a node named after the root.
func (a *Archive) DirectoryInfoTree(ctx context.Context, dirname, filter string, recursive bool) (*Node, error) {
	ix, err := a.Index(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := ix.Select(dirname, filter, recursive, true)
	if err != nil {
		return nil, err
	}
	return ToTree(entries, ix.RootDir()), nil
}

// Contains reports whether filename exists directly in dirname, as a file
// or a directory. Both are normalized first, so "src/" + "../Makefile"
// checks the top level. An empty filename checks for the directory itself.
func (a *Archive) Contains(ctx context.Context, dirname, filename string) (bool, error) {
	ix, err := a.Index(ctx)
	if err != nil {
		return false, err
	}

	dir, file := pathutil.Normalize(dirname, filename)
	dir = pathutil.ToPathSegment(dir)
	if file == "" {
		return dir == "" || ix.Has(dir), nil
	}
	return ix.Has(dir+file) || ix.Has(dir+file+"/"), nil
}

// Found reports whether FileInfoList with the same arguments is non-empty.
func (a *Archive) Found(ctx context.Context, dirname, filter string, recursive bool) (bool, error) {
	entries, err := a.FileInfoList(ctx, dirname, filter, recursive)
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

// Find returns the first match in archive order.
func (a *Archive) Find(ctx context.Context, dirname, filter string, recursive bool) (string, bool, error) {
	entries, err := a.FileInfoList(ctx, dirname, filter, recursive)
	if err != nil {
		return "", false, err
	}
	if len(entries) == 0 {
		return "", false, nil
	}
	return entries[0].Name, true, nil
}

// FindChild returns the first direct child of dirname matching filter.
// Unlike Find, an empty dirname means the archive top level.
func (a *Archive) FindChild(ctx context.Context, dirname, filter string) (string, bool, error) {
	ix, err := a.Index(ctx)
	if err != nil {
		return "", false, err
	}
	entries, err := ix.Children(dirname, filter)
	if err != nil || len(entries) == 0 {
		return "", false, err
	}
	return entries[0].Name, true, nil
}

// Search looks for the shallowest file beneath dirname whose basename is
// one of candidates. Ties at the same depth go to the lexically first name.
func (a *Archive) Search(ctx context.Context, dirname string, candidates []string) (string, bool, error) {
	ix, err := a.Index(ctx)
	if err != nil {
		return "", false, err
	}
	name, ok := Search(InDirectory(ix.Files(), dirname, true), candidates)
	return name, ok, nil
}

// SearchFiles returns every file beneath dirname matching filter, sorted.
func (a *Archive) SearchFiles(ctx context.Context, dirname, filter string) ([]string, error) {
	ix, err := a.Index(ctx)
	if err != nil {
		return nil, err
	}
	names, err := FilterByPattern(InDirectory(ix.Files(), dirname, true), filter)
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	return names, nil
}

// FileTypes counts file extensions beneath dirname.
func (a *Archive) FileTypes(ctx context.Context, dirname string) (map[string]int, error) {
	ix, err := a.Index(ctx)
	if err != nil {
		return nil, err
	}
	return FileTypes(NestedIn(ix.Files(), dirname)), nil
}

// ExtractTo writes the archive, or the named members, beneath dest after
// removing anything already there.
func (a *Archive) ExtractTo(ctx context.Context, dest string, members ...string) error {
	if err := a.reader.ExtractTo(ctx, dest, members...); err != nil {
		metrics.RecordArchiveError(string(a.format), "extract")
		if errors.Is(err, ErrMemberNotFound) || errors.Is(err, ErrTooLarge) || ctx.Err() != nil {
			return &Error{Op: "extract", Path: a.path, Err: err}
		}
		return unreadable("extract", a.path, err)
	}
	return nil
}

// ReadFile returns a single member's contents.
func (a *Archive) ReadFile(ctx context.Context, member string) ([]byte, error) {
	data, err := a.reader.ReadFile(ctx, member)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) || errors.Is(err, ErrTooLarge) || ctx.Err() != nil {
			return nil, &Error{Op: "read", Path: a.path, Err: err}
		}
		metrics.RecordArchiveError(string(a.format), "read")
		return nil, unreadable("read", a.path, fmt.Errorf("%s: %w", member, err))
	}
	return data, nil
}

func entryNames(entries []Entry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}
