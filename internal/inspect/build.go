package inspect

import (
	"context"

	"github.com/git-pkgs/pkginspect/internal/buildsys"
	"github.com/git-pkgs/pkginspect/internal/storage"
)

// BuildInfo detects how the package is built.
func (s *Service) BuildInfo(ctx context.Context, req Request) (*buildsys.BuildInfo, error) {
	var info *buildsys.BuildInfo
	err := s.run(ctx, "build_info", func(ctx context.Context) error {
		d, err := s.detector(req.Kind)
		if err != nil {
			return err
		}
		return s.withPackage(ctx, req, func(pkg *storage.Package) (err error) {
			info, err = d.Detect(ctx, localAttrs(req, pkg))
			return err
		})
	})
	return info, err
}

// BuildSystem returns only the build system tag BuildInfo would report.
func (s *Service) BuildSystem(ctx context.Context, req Request) (string, error) {
	info, err := s.BuildInfo(ctx, req)
	if err != nil {
		return "", err
	}
	return info.BuildSystem, nil
}

// CheckBuildSystem verifies that the package still matches the build
// system recorded in req.Attributes. A failed check is a result, not an
// error.
func (s *Service) CheckBuildSystem(ctx context.Context, req Request) (*buildsys.CheckResult, error) {
	var res *buildsys.CheckResult
	err := s.run(ctx, "check_build_system", func(ctx context.Context) error {
		d, err := s.detector(req.Kind)
		if err != nil {
			return err
		}
		return s.withPackage(ctx, req, func(pkg *storage.Package) (err error) {
			res, err = d.Check(ctx, localAttrs(req, pkg))
			return err
		})
	})
	return res, err
}
