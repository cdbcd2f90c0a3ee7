package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/git-pkgs/pkginspect/internal/metrics"
)

// Package is a package archive available on local disk. Close releases
// any staged copy; it is safe to call more than once.
type Package struct {
	// Path is the local file to open.
	Path string

	// Staged is true when the archive was copied out of the blob store.
	Staged bool

	// Size and SHA256 are only filled in for staged copies.
	Size   int64
	SHA256 string

	release func() error
}

func (p *Package) Close() error {
	if p == nil || p.release == nil {
		return nil
	}
	release := p.release
	p.release = nil
	return release()
}

// ResolverOptions configures a Resolver. Either Incoming or Remote must be
// set for relative paths to resolve.
type ResolverOptions struct {
	Incoming *Filesystem
	Remote   Source

	// StagingDir is where remote packages are copied before they are read.
	StagingDir string

	// AllowAbsolute lets callers name any local file. The CLI sets it;
	// the HTTP server does not.
	AllowAbsolute bool

	Logger *slog.Logger
}

// Resolver turns the package_path of a request into a local file.
type Resolver struct {
	opts ResolverOptions
}

func NewResolver(opts ResolverOptions) *Resolver {
	if opts.StagingDir == "" {
		opts.StagingDir = filepath.Join(os.TempDir(), "pkginspect")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Resolver{opts: opts}
}

// Resolve finds packagePath. Absolute paths are used as they are when
// allowed. Relative paths are looked up in the incoming directory first
// and then staged from the blob store.
func (r *Resolver) Resolve(ctx context.Context, packagePath string) (*Package, error) {
	if packagePath == "" {
		return nil, fmt.Errorf("%w: package_path is required", ErrInvalidPath)
	}

	if filepath.IsAbs(packagePath) {
		if !r.opts.AllowAbsolute {
			return nil, fmt.Errorf("%w: absolute paths are not accepted: %q", ErrInvalidPath, packagePath)
		}
		info, err := os.Stat(packagePath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, packagePath)
			}
			return nil, fmt.Errorf("checking package: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, packagePath)
		}
		return &Package{Path: packagePath}, nil
	}

	key, err := CleanKey(packagePath)
	if err != nil {
		return nil, err
	}

	if r.opts.Incoming != nil {
		ok, err := r.opts.Incoming.Exists(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return &Package{Path: r.opts.Incoming.FullPath(key)}, nil
		}
	}

	if r.opts.Remote != nil {
		return r.stage(ctx, key)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
}

// stage copies key from the blob store into a fresh directory, keeping the
// base name so the archive format can still be told from the extension.
func (r *Resolver) stage(ctx context.Context, key string) (pkg *Package, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordStorageOperation("stage", time.Since(start))
		if err != nil && !errors.Is(err, ErrNotFound) {
			metrics.RecordStorageError("stage")
		}
	}()

	rc, err := r.opts.Remote.Open(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("opening %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()

	dir := filepath.Join(r.opts.StagingDir, "staged-"+uuid.NewString())
	fs, err := NewFilesystem(dir)
	if err != nil {
		return nil, err
	}
	metrics.ScratchAcquired()

	release := func() error {
		rmErr := os.RemoveAll(dir)
		metrics.ScratchReleased(rmErr)
		if rmErr != nil {
			r.opts.Logger.Warn("removing staged package failed", "dir", dir, "error", rmErr)
		}
		return rmErr
	}

	name := path.Base(key)
	size, sum, err := fs.Store(ctx, name, rc)
	if err != nil {
		_ = release()
		return nil, fmt.Errorf("staging %s: %w", key, err)
	}

	r.opts.Logger.Debug("staged package", "key", key, "size", size, "sha256", sum)
	return &Package{
		Path:    fs.FullPath(name),
		Staged:  true,
		Size:    size,
		SHA256:  sum,
		release: release,
	}, nil
}
