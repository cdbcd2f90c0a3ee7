package inspect

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/git-pkgs/pkginspect/internal/archive"
	"github.com/git-pkgs/pkginspect/internal/buildsys"
	"github.com/git-pkgs/pkginspect/internal/pathutil"
	"github.com/git-pkgs/pkginspect/internal/pkgmeta"
	"github.com/git-pkgs/pkginspect/internal/storage"
)

// WheelInfo is what a wheel says about itself.
type WheelInfo struct {
	DistInfo string            `json:"dist_info"`
	Wheel    *pkgmeta.Wheel    `json:"wheel"`
	Metadata *pkgmeta.Metadata `json:"metadata,omitempty"`
	PURL     string            `json:"purl,omitempty"`
}

// GemInfo is the gem specification of a .gem file, or the Gemfile of a
// Ruby source package.
type GemInfo struct {
	Spec        *pkgmeta.GemSpec `json:"spec,omitempty"`
	Gemfile     *pkgmeta.Gemfile `json:"gemfile,omitempty"`
	GemfilePath string           `json:"gemfile_path,omitempty"`
	PURL        string           `json:"purl,omitempty"`
}

// memberPath places Filename under source_path when one is set, and under
// Dirname otherwise.
func memberPath(req Request) string {
	dir := req.Dirname
	if sp := req.Attributes.SourcePath; sp != "" && sp != pathutil.CurrentDir {
		dir = sp
	}
	dir, file := pathutil.Normalize(pathutil.ToPathSegment(dir), req.Filename)
	return pathutil.ToPathSegment(dir) + file
}

// FileContents returns one member of the package. The member is Filename
// joined to source_path when that is set, or to Dirname.
func (s *Service) FileContents(ctx context.Context, req Request) ([]byte, error) {
	var data []byte
	err := s.run(ctx, "file_contents", func(ctx context.Context) error {
		if req.Filename == "" {
			return fmt.Errorf("%w: filename is required", ErrInvalidRequest)
		}
		member := memberPath(req)
		return s.withPackage(ctx, req, func(pkg *storage.Package) (err error) {
			data, err = s.opts.Extractor.Member(ctx, pkg.Path, member)
			return err
		})
	})
	return data, err
}

// WheelInfo reads the WHEEL and METADATA files of a wheel. The .dist-info
// directory is taken from the wheel's filename, falling back to the first
// .dist-info directory holding a WHEEL file.
func (s *Service) WheelInfo(ctx context.Context, req Request) (*WheelInfo, error) {
	var info *WheelInfo
	err := s.run(ctx, "wheel_info", func(ctx context.Context) error {
		distInfo, err := pkgmeta.WheelDistInfo(req.Attributes.PackagePath)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return s.withPackage(ctx, req, func(pkg *storage.Package) error {
			data, err := s.opts.Extractor.Member(ctx, pkg.Path, distInfo+"WHEEL")
			if errors.Is(err, archive.ErrMemberNotFound) {
				distInfo, err = s.findDistInfo(ctx, pkg.Path)
				if err != nil {
					return err
				}
				data, err = s.opts.Extractor.Member(ctx, pkg.Path, distInfo+"WHEEL")
			}
			if err != nil {
				return err
			}
			wheel, err := pkgmeta.ParseWheel(data)
			if err != nil {
				return err
			}
			info = &WheelInfo{DistInfo: distInfo, Wheel: wheel}

			data, err = s.opts.Extractor.Member(ctx, pkg.Path, distInfo+"METADATA")
			switch {
			case errors.Is(err, archive.ErrMemberNotFound):
				return nil
			case err != nil:
				return err
			}
			if info.Metadata, err = pkgmeta.ParseMetadata(data); err != nil {
				return err
			}
			info.PURL = pkgmeta.PURL(buildsys.KindPython, info.Metadata.Name, info.Metadata.Version)
			return nil
		})
	})
	return info, err
}

func (s *Service) findDistInfo(ctx context.Context, packagePath string) (string, error) {
	a, err := archive.Open(packagePath, s.opts.Archive)
	if err != nil {
		return "", err
	}
	names, err := a.Listing(ctx, "", "WHEEL", true)
	if err != nil {
		return "", err
	}
	for _, n := range names {
		if dir := pathutil.Dir(n); strings.HasSuffix(dir, ".dist-info/") {
			return dir, nil
		}
	}
	return "", fmt.Errorf("%w: no .dist-info/WHEEL in %s", archive.ErrMemberNotFound, path.Base(packagePath))
}

// GemInfo reads metadata.gz from a .gem file. Other Ruby packages are
// searched for a Gemfile below source_path instead.
func (s *Service) GemInfo(ctx context.Context, req Request) (*GemInfo, error) {
	var info *GemInfo
	err := s.run(ctx, "gem_info", func(ctx context.Context) error {
		isGem := strings.HasSuffix(strings.ToLower(req.Attributes.PackagePath), ".gem")
		return s.withPackage(ctx, req, func(pkg *storage.Package) error {
			if isGem {
				data, err := s.opts.Extractor.Member(ctx, pkg.Path, "metadata.gz")
				if err != nil {
					return err
				}
				spec, err := pkgmeta.ParseGemSpec(data)
				if err != nil {
					return err
				}
				info = &GemInfo{Spec: spec, PURL: pkgmeta.PURL(buildsys.KindRuby, spec.Name, spec.Version)}
				return nil
			}

			a, err := archive.Open(pkg.Path, s.opts.Archive)
			if err != nil {
				return err
			}
			searchPath := pathutil.ToPathSegment(pathutil.StripDotSlash(req.Attributes.SourcePath))
			name, ok, err := a.Search(ctx, searchPath, []string{"Gemfile"})
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: no Gemfile below %q", archive.ErrMemberNotFound, searchPath)
			}
			data, err := s.opts.Extractor.Member(ctx, pkg.Path, name)
			if err != nil {
				return err
			}
			gf, err := pkgmeta.ParseGemfile(data)
			if err != nil {
				return err
			}
			info = &GemInfo{Gemfile: gf, GemfilePath: name}
			return nil
		})
	})
	return info, err
}
