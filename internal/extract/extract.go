// Package extract stages archive contents in private scratch directories.
//
// Every call gets its own directory named by a fresh UUID beneath the
// configured scratch root, and that directory is removed before the call
// returns whether or not the work succeeded.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/git-pkgs/pkginspect/internal/archive"
	"github.com/git-pkgs/pkginspect/internal/metrics"
	"github.com/git-pkgs/pkginspect/internal/pathutil"
)

// Service extracts members and whole archives into scratch space.
type Service struct {
	scratchDir string
	opts       archive.Options
	logger     *slog.Logger
}

// New creates a Service rooted at scratchDir. Archives are opened with opts.
func New(scratchDir string, opts archive.Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ScratchDir == "" {
		opts.ScratchDir = scratchDir
	}
	if opts.Logger == nil {
		opts.Logger = logger
	}
	return &Service{scratchDir: scratchDir, opts: opts, logger: logger}
}

// ScratchDir returns the root under which per call directories are made.
func (s *Service) ScratchDir() string {
	return s.scratchDir
}

// Member returns the contents of a single archive member.
//
// Zip containers are read in place. Tar archives are listed first so a
// missing member fails before any extraction, then the member alone is
// written to a scratch directory and read back.
func (s *Service) Member(ctx context.Context, archivePath, member string) ([]byte, error) {
	a, err := archive.Open(archivePath, s.opts)
	if err != nil {
		return nil, err
	}

	if a.Format() != archive.FormatTar {
		return a.ReadFile(ctx, member)
	}

	ix, err := a.Index(ctx)
	if err != nil {
		return nil, err
	}
	member = pathutil.StripDotSlash(member)
	if !ix.Has(member) {
		return nil, fmt.Errorf("%w: %s in %s", archive.ErrMemberNotFound, member, archivePath)
	}

	var data []byte
	err = s.withScratch(func(dir string) error {
		if err := a.ExtractTo(ctx, dir, member); err != nil {
			return err
		}
		clean, _ := pathutil.Clamp(member)
		var readErr error
		data, readErr = os.ReadFile(filepath.Join(dir, filepath.FromSlash(clean)))
		if readErr != nil {
			return fmt.Errorf("reading extracted %s: %w", member, readErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// WithExtracted extracts the whole archive into a fresh scratch directory
// and calls fn with its path. The directory is gone when WithExtracted
// returns.
func (s *Service) WithExtracted(ctx context.Context, archivePath string, fn func(dir string) error) error {
	a, err := archive.Open(archivePath, s.opts)
	if err != nil {
		return err
	}
	return s.withScratch(func(dir string) error {
		if err := a.ExtractTo(ctx, dir); err != nil {
			return err
		}
		return fn(dir)
	})
}

// withScratch creates a uniquely named directory, runs fn and removes the
// directory. A cleanup failure is joined onto whatever fn returned.
func (s *Service) withScratch(fn func(dir string) error) (err error) {
	if err := os.MkdirAll(s.scratchDir, 0o755); err != nil {
		return fmt.Errorf("creating scratch root: %w", err)
	}
	dir := filepath.Join(s.scratchDir, uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}
	metrics.ScratchAcquired()

	defer func() {
		cleanupErr := os.RemoveAll(dir)
		metrics.ScratchReleased(cleanupErr)
		if cleanupErr != nil {
			s.logger.Error("removing scratch dir", "dir", dir, "error", cleanupErr)
			err = errors.Join(err, fmt.Errorf("removing scratch dir: %w", cleanupErr))
		}
	}()

	return fn(dir)
}
