// Package inspect answers questions about a single package archive: what it
// contains, which build system it uses and what its own metadata says. It
// is the layer both the HTTP API and the CLI call into.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/git-pkgs/pkginspect/internal/archive"
	"github.com/git-pkgs/pkginspect/internal/buildsys"
	"github.com/git-pkgs/pkginspect/internal/extract"
	"github.com/git-pkgs/pkginspect/internal/metrics"
	"github.com/git-pkgs/pkginspect/internal/pkgmeta"
	"github.com/git-pkgs/pkginspect/internal/storage"
)

// ErrInvalidRequest is returned when a request is missing a field the
// operation needs.
var ErrInvalidRequest = errors.New("invalid request")

// Request names a package and the part of it an operation looks at.
// Attributes.PackagePath is resolved through the storage resolver before
// anything is opened.
type Request struct {
	Kind       buildsys.Kind
	Attributes buildsys.Attributes

	Dirname   string
	Filter    string
	Recursive bool

	// Filename is the member Contains and FileContents look for.
	Filename string

	// Candidates are the basenames Search looks for.
	Candidates []string
}

// Options configures a Service.
type Options struct {
	Archive   archive.Options
	Resolver  *storage.Resolver
	Extractor *extract.Service

	// Python and DotnetPkgInfo run the .NET package inspection tool.
	Python        string
	DotnetPkgInfo string

	// Timeout bounds every operation. Zero means no limit beyond the
	// caller's context.
	Timeout time.Duration

	Logger *slog.Logger
}

// Service runs inspection operations. It holds no per-package state and
// is safe for concurrent use.
type Service struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Archive.Logger == nil {
		opts.Archive.Logger = opts.Logger
	}
	if opts.Archive.ScratchDir == "" {
		opts.Archive.ScratchDir = filepath.Join(os.TempDir(), "pkginspect")
	}
	if opts.Resolver == nil {
		opts.Resolver = storage.NewResolver(storage.ResolverOptions{
			AllowAbsolute: true,
			StagingDir:    opts.Archive.ScratchDir,
			Logger:        opts.Logger,
		})
	}
	if opts.Extractor == nil {
		opts.Extractor = extract.New(opts.Archive.ScratchDir, opts.Archive, opts.Logger)
	}
	return &Service{opts: opts, logger: opts.Logger}
}

// run applies the operation timeout and records the outcome.
func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	metrics.RecordOperation(op, Outcome(err), time.Since(start))
	if err != nil {
		s.logger.Debug("operation failed", "operation", op, "error", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Outcome classifies err for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, archive.ErrMemberNotFound):
		return "not_found"
	case errors.Is(err, archive.ErrUnreadable), errors.Is(err, pkgmeta.ErrInvalidMetadata):
		return "unreadable"
	case errors.Is(err, archive.ErrToolFailed):
		return "tool_failed"
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, storage.ErrInvalidPath),
		errors.Is(err, archive.ErrInvalidFilter), errors.Is(err, buildsys.ErrUnknownKind):
		return "invalid"
	default:
		return "error"
	}
}

// withPackage resolves the request's package to a local file for the
// duration of fn.
func (s *Service) withPackage(ctx context.Context, req Request, fn func(pkg *storage.Package) error) (err error) {
	pkg, err := s.opts.Resolver.Resolve(ctx, req.Attributes.PackagePath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := pkg.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(pkg)
}

// withArchive resolves and opens the request's package.
func (s *Service) withArchive(ctx context.Context, req Request, fn func(a *archive.Archive) error) error {
	return s.withPackage(ctx, req, func(pkg *storage.Package) error {
		a, err := archive.Open(pkg.Path, s.opts.Archive)
		if err != nil {
			return err
		}
		return fn(a)
	})
}

// detector returns the build system detector for kind.
func (s *Service) detector(kind buildsys.Kind) (buildsys.Detector, error) {
	return buildsys.New(kind, buildsys.Env{
		Archive:       s.opts.Archive,
		Extractor:     s.opts.Extractor,
		Python:        s.opts.Python,
		DotnetPkgInfo: s.opts.DotnetPkgInfo,
		Logger:        s.logger,
	})
}

// localAttrs returns the request's attributes pointing at the resolved
// local copy of the package.
func localAttrs(req Request, pkg *storage.Package) buildsys.Attributes {
	attrs := req.Attributes
	attrs.PackagePath = pkg.Path
	return attrs
}
