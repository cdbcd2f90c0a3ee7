package inspect

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/git-pkgs/pkginspect/internal/archive"
)

// Contains reports whether Filename exists directly in Dirname. With
// Recursive set, Filename is a filter matched anywhere beneath Dirname.
func (s *Service) Contains(ctx context.Context, req Request) (bool, error) {
	var found bool
	err := s.run(ctx, "contains", func(ctx context.Context) error {
		if req.Filename == "" {
			return fmt.Errorf("%w: filename is required", ErrInvalidRequest)
		}
		return s.withArchive(ctx, req, func(a *archive.Archive) (err error) {
			if req.Recursive {
				found, err = a.Found(ctx, req.Dirname, req.Filename, true)
			} else {
				found, err = a.Contains(ctx, req.Dirname, req.Filename)
			}
			return err
		})
	})
	return found, err
}

// Listing returns the member names under Dirname matching Filter.
func (s *Service) Listing(ctx context.Context, req Request) ([]string, error) {
	var names []string
	err := s.run(ctx, "listing", func(ctx context.Context) error {
		return s.withArchive(ctx, req, func(a *archive.Archive) (err error) {
			names, err = a.Listing(ctx, req.Dirname, req.Filter, req.Recursive)
			return err
		})
	})
	return names, err
}

// FileInfoList returns the entries under Dirname matching Filter.
func (s *Service) FileInfoList(ctx context.Context, req Request) ([]archive.Entry, error) {
	var entries []archive.Entry
	err := s.run(ctx, "file_info_list", func(ctx context.Context) error {
		return s.withArchive(ctx, req, func(a *archive.Archive) (err error) {
			entries, err = a.FileInfoList(ctx, req.Dirname, req.Filter, req.Recursive)
			return err
		})
	})
	return entries, err
}

// FileInfoTree nests FileInfoList under the archive root.
func (s *Service) FileInfoTree(ctx context.Context, req Request) (*archive.Node, error) {
	var tree *archive.Node
	err := s.run(ctx, "file_info_tree", func(ctx context.Context) error {
		return s.withArchive(ctx, req, func(a *archive.Archive) (err error) {
			tree, err = a.FileInfoTree(ctx, req.Dirname, req.Filter, req.Recursive)
			return err
		})
	})
	return tree, err
}

// DirectoryInfoList returns the directories under Dirname matching Filter.
func (s *Service) DirectoryInfoList(ctx context.Context, req Request) ([]archive.Entry, error) {
	var entries []archive.Entry
	err := s.run(ctx, "directory_info_list", func(ctx context.Context) error {
		return s.withArchive(ctx, req, func(a *archive.Archive) (err error) {
			entries, err = a.DirectoryInfoList(ctx, req.Dirname, req.Filter, req.Recursive)
			return err
		})
	})
	return entries, err
}

// DirectoryInfoTree nests DirectoryInfoList under the archive root.
func (s *Service) DirectoryInfoTree(ctx context.Context, req Request) (*archive.Node, error) {
	var tree *archive.Node
	err := s.run(ctx, "directory_info_tree", func(ctx context.Context) error {
		return s.withArchive(ctx, req, func(a *archive.Archive) (err error) {
			tree, err = a.DirectoryInfoTree(ctx, req.Dirname, req.Filter, req.Recursive)
			return err
		})
	})
	return tree, err
}

// FileTypes counts file extensions beneath Dirname.
func (s *Service) FileTypes(ctx context.Context, req Request) (map[string]int, error) {
	var types map[string]int
	err := s.run(ctx, "file_types", func(ctx context.Context) error {
		return s.withArchive(ctx, req, func(a *archive.Archive) (err error) {
			types, err = a.FileTypes(ctx, req.Dirname)
			return err
		})
	})
	return types, err
}

// Root returns the archive's common top-level directory, or "./".
func (s *Service) Root(ctx context.Context, req Request) (string, error) {
	var root string
	err := s.run(ctx, "root", func(ctx context.Context) error {
		return s.withArchive(ctx, req, func(a *archive.Archive) (err error) {
			root, err = a.Root(ctx)
			return err
		})
	})
	return root, err
}

// Search returns the shallowest file beneath Dirname named like one of
// Candidates.
func (s *Service) Search(ctx context.Context, req Request) (string, bool, error) {
	var (
		name  string
		found bool
	)
	err := s.run(ctx, "search", func(ctx context.Context) error {
		if len(req.Candidates) == 0 {
			return fmt.Errorf("%w: at least one candidate name is required", ErrInvalidRequest)
		}
		return s.withArchive(ctx, req, func(a *archive.Archive) (err error) {
			name, found, err = a.Search(ctx, req.Dirname, req.Candidates)
			return err
		})
	})
	return name, found, err
}

// Extract writes the package's members beneath dest, which must not exist
// yet. Only members under Dirname are written when Dirname is set.
func (s *Service) Extract(ctx context.Context, req Request, dest string) error {
	return s.run(ctx, "extract", func(ctx context.Context) error {
		if dest == "" {
			return fmt.Errorf("%w: destination is required", ErrInvalidRequest)
		}
		if _, err := os.Lstat(dest); err == nil {
			return fmt.Errorf("%w: destination %s already exists", ErrInvalidRequest, dest)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("checking destination: %w", err)
		}
		return s.withArchive(ctx, req, func(a *archive.Archive) error {
			var members []string
			if req.Dirname != "" {
				names, err := a.Listing(ctx, req.Dirname, req.Filter, true)
				if err != nil {
					return err
				}
				if len(names) == 0 {
					return fmt.Errorf("%w: nothing below %q", archive.ErrMemberNotFound, req.Dirname)
				}
				members = names
			}
			return a.ExtractTo(ctx, dest, members...)
		})
	})
}
