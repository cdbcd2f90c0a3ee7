package archive

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/git-pkgs/pkginspect/internal/metrics"
	"github.com/git-pkgs/pkginspect/internal/pathutil"
)

// memberSet selects archive members for extraction. An empty set selects
// everything; a directory member selects its subtree.
type memberSet struct {
	exact map[string]bool
	dirs  []string
}

func newMemberSet(members []string) memberSet {
	s := memberSet{}
	if len(members) == 0 {
		return s
	}
	s.exact = make(map[string]bool, len(members))
	for _, m := range members {
		m = pathutil.StripDotSlash(m)
		s.exact[m] = true
		if strings.HasSuffix(m, "/") {
			s.dirs = append(s.dirs, m)
		}
	}
	return s
}

func (s memberSet) all() bool {
	return s.exact == nil
}

func (s memberSet) match(name string) bool {
	if s.all() {
		return true
	}
	name = pathutil.StripDotSlash(name)
	if s.exact[name] {
		return true
	}
	for _, d := range s.dirs {
		if strings.HasPrefix(name, d) {
			return true
		}
	}
	return false
}

// materializer writes archive members beneath a destination directory.
// Member names are clamped so nothing lands outside dest.
type materializer struct {
	dest    string
	maxSize int64
	logger  *slog.Logger
	written int
}

// newMaterializer clears dest and recreates it empty.
func newMaterializer(dest string, maxSize int64, logger *slog.Logger) (*materializer, error) {
	if err := os.RemoveAll(dest); err != nil {
		return nil, fmt.Errorf("clearing destination: %w", err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("creating destination: %w", err)
	}
	return &materializer{dest: dest, maxSize: maxSize, logger: logger}, nil
}

func (m *materializer) target(name string) (string, bool) {
	clean, escaped := pathutil.Clamp(name)
	if escaped {
		metrics.RecordPathTraversal()
		m.logger.Warn("clamped member name to archive root", "member", name, "clamped", clean)
	}
	if clean == "" {
		return "", false
	}
	return filepath.Join(m.dest, filepath.FromSlash(clean)), true
}

func (m *materializer) dir(name string) error {
	target, ok := m.target(name)
	if !ok {
		return nil
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	m.written++
	return nil
}

func (m *materializer) file(name string, mode fs.FileMode, r io.Reader) error {
	target, ok := m.target(name)
	if !ok {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", name, err)
	}

	perm := mode.Perm() | 0o600
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	if err := copyLimited(f, r, m.maxSize); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	m.written++
	return nil
}

func (m *materializer) skip(name, reason string) {
	m.logger.Debug("skipping archive member", "member", name, "reason", reason)
}

// copyLimited copies src to dst and fails with ErrTooLarge once more than
// limit bytes arrive. A zero limit copies everything.
func copyLimited(dst io.Writer, src io.Reader, limit int64) error {
	if limit <= 0 {
		_, err := io.Copy(dst, src)
		return err
	}
	n, err := io.Copy(dst, io.LimitReader(src, limit+1))
	if err != nil {
		return err
	}
	if n > limit {
		return fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return nil
}

// readLimited reads src into memory, honoring the same limit.
func readLimited(src io.Reader, limit int64) ([]byte, error) {
	var buf bytes.Buffer
	if err := copyLimited(&buf, src, limit); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
