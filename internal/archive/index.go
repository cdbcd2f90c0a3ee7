package archive

import (
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/git-pkgs/pkginspect/internal/pathutil"
)

// Index is a directory aware view over a flat archive listing. Missing
// ancestor directories are synthesized so every file has its parents
// present, and names keep the order the reader produced them in.
type Index struct {
	names   []string
	entries map[string]Entry

	rootOnce sync.Once
	root     string
}

// NewIndex builds an Index from raw reader entries. Leading "./" is
// stripped, empty names are dropped and duplicates are collapsed. A
// synthesized directory is inserted before the first entry that needs it.
func NewIndex(raw []Entry) *Index {
	ix := &Index{
		names:   make([]string, 0, len(raw)),
		entries: make(map[string]Entry, len(raw)),
	}
	for _, e := range raw {
		e.Name = pathutil.StripDotSlash(e.Name)
		if e.Name == "" || e.Name == "/" {
			continue
		}
		ix.addParents(e.Name)
		if existing, ok := ix.entries[e.Name]; ok {
			// A synthesized directory picks up metadata from a later
			// explicit entry.
			if existing.Size == 0 && existing.ModTime.IsZero() {
				ix.entries[e.Name] = e
			}
			continue
		}
		ix.names = append(ix.names, e.Name)
		ix.entries[e.Name] = e
	}
	return ix
}

func (ix *Index) addParents(name string) {
	dir := pathutil.Dir(name)
	if dir == "" {
		return
	}
	if _, ok := ix.entries[dir]; ok {
		return
	}
	ix.addParents(dir)
	ix.names = append(ix.names, dir)
	ix.entries[dir] = Entry{Name: dir}
}

// Names returns every name in the index.
func (ix *Index) Names() []string {
	return ix.names
}

// Files returns the names of non-directory entries.
func (ix *Index) Files() []string {
	var files []string
	for _, n := range ix.names {
		if !strings.HasSuffix(n, "/") {
			files = append(files, n)
		}
	}
	return files
}

// Dirs returns the names of directory entries, explicit or synthesized.
func (ix *Index) Dirs() []string {
	var dirs []string
	for _, n := range ix.names {
		if strings.HasSuffix(n, "/") {
			dirs = append(dirs, n)
		}
	}
	return dirs
}

// Entry returns the entry recorded for name.
func (ix *Index) Entry(name string) (Entry, bool) {
	e, ok := ix.entries[pathutil.StripDotSlash(name)]
	return e, ok
}

// Has reports whether name is present.
func (ix *Index) Has(name string) bool {
	_, ok := ix.Entry(name)
	return ok
}

// Len returns the number of names, including synthesized directories.
func (ix *Index) Len() int {
	return len(ix.names)
}

// RootDir returns the common root directory of every name, or the empty
// string when the archive has no single top level folder.
func (ix *Index) RootDir() string {
	ix.rootOnce.Do(func() {
		ix.root = RootOf(ix.names)
	})
	return ix.root
}

// Root is RootDir with "./" standing in for a missing common root.
func (ix *Index) Root() string {
	if r := ix.RootDir(); r != "" {
		return r
	}
	return "./"
}

// Select returns the entries under dirname that match filter. An empty
// dirname selects the whole archive whatever recursive says.
func (ix *Index) Select(dirname, filter string, recursive, dirsOnly bool) ([]Entry, error) {
	names := ix.names
	if dirsOnly {
		names = ix.Dirs()
	}
	if scopeDir(dirname) != "" {
		names = InDirectory(names, dirname, recursive)
	}
	return ix.matching(names, filter)
}

// Children returns the direct children of dirname that match filter. An
// empty dirname means the archive top level, not the whole archive.
func (ix *Index) Children(dirname, filter string) ([]Entry, error) {
	return ix.matching(InDirectory(ix.names, dirname, false), filter)
}

func (ix *Index) matching(names []string, filter string) ([]Entry, error) {
	names, err := FilterByPattern(names, filter)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(names))
	for _, n := range names {
		entries = append(entries, ix.entries[n])
	}
	return entries, nil
}

// scopeDir turns a user supplied directory into the slash terminated form
// used for comparisons. "." and "./" become the empty string.
func scopeDir(dirname string) string {
	return pathutil.ToPathSegment(pathutil.StripDotSlash(dirname))
}

// RootOf computes the longest common prefix of names and cuts it back to
// its last slash. Names without a shared top level folder yield "".
func RootOf(names []string) string {
	if len(names) == 0 {
		return ""
	}
	prefix := pathutil.StripDotSlash(names[0])
	for _, n := range names[1:] {
		n = pathutil.StripDotSlash(n)
		i := 0
		for i < len(prefix) && i < len(n) && prefix[i] == n[i] {
			i++
		}
		prefix = prefix[:i]
		if prefix == "" {
			return ""
		}
	}
	i := strings.LastIndex(prefix, "/")
	if i < 0 {
		return ""
	}
	return prefix[:i+1]
}

// InDirectory returns the names whose parent directory is dirname. When
// recursive is set any parent that starts with dirname qualifies. An empty
// dirname is the archive top level.
func InDirectory(names []string, dirname string, recursive bool) []string {
	dirname = scopeDir(dirname)

	var out []string
	for _, n := range names {
		n = pathutil.StripDotSlash(n)
		parent := pathutil.Dir(n)
		if recursive {
			if strings.HasPrefix(parent, dirname) {
				out = append(out, n)
			}
		} else if parent == dirname {
			out = append(out, n)
		}
	}
	return out
}

// NestedIn returns every name that textually starts with dirname.
func NestedIn(names []string, dirname string) []string {
	dirname = scopeDir(dirname)

	var out []string
	for _, n := range names {
		n = pathutil.StripDotSlash(n)
		if strings.HasPrefix(n, dirname) {
			out = append(out, n)
		}
	}
	return out
}

// FilterByPattern narrows names by filter. A filter written as
// "/pattern/flags" is a regular expression matched against each basename;
// anything else must equal the full name or the basename.
func FilterByPattern(names []string, filter string) ([]string, error) {
	if filter == "" {
		return names, nil
	}

	if strings.HasPrefix(filter, "/") {
		re, err := compileFilter(filter)
		if err != nil {
			return nil, err
		}
		var out []string
		for _, n := range names {
			if re.MatchString(pathutil.Base(n)) {
				out = append(out, n)
			}
		}
		return out, nil
	}

	var out []string
	for _, n := range names {
		if n == filter || pathutil.Base(n) == filter {
			out = append(out, n)
		}
	}
	return out, nil
}

// compileFilter accepts the "/body/flags" form. The flags i, m, s and U
// are supported; a missing closing delimiter means the rest is the body.
func compileFilter(filter string) (*regexp.Regexp, error) {
	body := filter[1:]
	flags := ""
	if i := strings.LastIndex(body, "/"); i >= 0 {
		body, flags = body[:i], body[i+1:]
	}
	for _, f := range flags {
		if !strings.ContainsRune("imsU", f) {
			return nil, fmt.Errorf("%w: unsupported flag %q in %q", ErrInvalidFilter, f, filter)
		}
	}
	if flags != "" {
		body = "(?" + flags + ")" + body
	}
	re, err := regexp.Compile(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return re, nil
}

// Search returns the first name whose basename is one of candidates after
// ordering names by depth and then lexicographically, so a shallow match
// always beats a nested one.
func Search(names, candidates []string) (string, bool) {
	if len(candidates) == 0 || len(names) == 0 {
		return "", false
	}

	sorted := slices.Clone(names)
	slices.SortFunc(sorted, func(a, b string) int {
		if da, db := pathutil.Depth(a), pathutil.Depth(b); da != db {
			return da - db
		}
		return strings.Compare(a, b)
	})

	for _, n := range sorted {
		if slices.Contains(candidates, pathutil.Base(n)) {
			return n, true
		}
	}
	return "", false
}

// FileTypes counts file extensions among names. The extension is reported
// without its dot; names without one are counted under "".
func FileTypes(names []string) map[string]int {
	types := make(map[string]int)
	for _, n := range names {
		if strings.HasSuffix(n, "/") {
			continue
		}
		types[strings.TrimPrefix(path.Ext(n), ".")]++
	}
	return types
}
