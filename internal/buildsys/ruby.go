package buildsys

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/git-pkgs/pkginspect/internal/archive"
	"github.com/git-pkgs/pkginspect/internal/pathutil"
)

// rubyDetector looks for a Gemfile and a Rakefile independently and
// combines what it finds.
type rubyDetector struct {
	base
}

func (r *rubyDetector) Detect(ctx context.Context, attrs Attributes) (*BuildInfo, error) {
	if tag, ok := r.fam.packageTag(attrs.PackagePath); ok {
		return r.done(attrs, &BuildInfo{BuildSystem: tag}), nil
	}

	a, err := r.open(attrs)
	if err != nil {
		return nil, err
	}
	sp := searchPath(attrs)

	var (
		gemfile, rakefile   string
		hasGemfile, hasRake bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		gemfile, hasGemfile, err = a.Search(gctx, sp, []string{"Gemfile"})
		return err
	})
	g.Go(func() error {
		var err error
		rakefile, hasRake, err = a.Search(gctx, sp, []string{"Rakefile", "rakefile"})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, r.fail(attrs, sp, err)
	}

	var info *BuildInfo
	switch {
	case hasGemfile && hasRake:
		info, err = r.combined(ctx, a, attrs, gemfile, rakefile)
	case hasGemfile:
		info = &BuildInfo{BuildSystem: "bundler", BuildDir: relativeDir(attrs.SourcePath, gemfile)}
	case hasRake:
		info = &BuildInfo{
			BuildSystem: "rake",
			BuildDir:    relativeDir(attrs.SourcePath, rakefile),
			BuildFile:   pathutil.Base(rakefile),
		}
	default:
		info, err = r.fallback(ctx, a, attrs, sp)
	}
	if err != nil {
		return nil, r.fail(attrs, sp, err)
	}
	return r.done(attrs, info), nil
}

// combined resolves a package with both a Gemfile and a Rakefile. The
// Gemfile's directory is the build directory; the result is bundler+rake
// only if a Rakefile also lives there.
func (r *rubyDetector) combined(ctx context.Context, a *archive.Archive, attrs Attributes, gemfile, rakefile string) (*BuildInfo, error) {
	dir := pathutil.Dir(gemfile)
	info := &BuildInfo{BuildSystem: "bundler", BuildDir: relativeDir(attrs.SourcePath, gemfile)}

	if pathutil.Dir(rakefile) != dir {
		sibling, ok, err := a.FindChild(ctx, dir, "/^[Rr]akefile$/")
		if err != nil {
			return nil, err
		}
		if !ok {
			return info, nil
		}
		rakefile = sibling
	}

	info.BuildSystem = "bundler+rake"
	info.BuildFile = pathutil.Base(rakefile)
	return info, nil
}

func (r *rubyDetector) Check(ctx context.Context, attrs Attributes) (*CheckResult, error) {
	res, err := r.check(ctx, attrs)
	if err != nil {
		return nil, err
	}
	return r.checked(attrs, res), nil
}
