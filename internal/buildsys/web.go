package buildsys

import (
	"context"

	"github.com/git-pkgs/pkginspect/internal/pathutil"
)

// webDetector only looks directly inside the search path, never in
// vendored directories below it.
type webDetector struct {
	base
}

func (w *webDetector) Detect(ctx context.Context, attrs Attributes) (*BuildInfo, error) {
	a, err := w.open(attrs)
	if err != nil {
		return nil, err
	}
	sp := searchPath(attrs)

	// Without a source path the top level is the common root folder.
	dir := sp
	if dir == pathutil.CurrentDir {
		if dir, err = a.RootDir(ctx); err != nil {
			return nil, w.fail(attrs, sp, err)
		}
	}

	for _, candidate := range w.fam.candidates() {
		found, ok, err := a.FindChild(ctx, dir, candidate)
		if err != nil {
			return nil, w.fail(attrs, sp, err)
		}
		if !ok {
			continue
		}
		info, err := w.fromDescriptor(ctx, a, attrs, found)
		if err != nil {
			return nil, w.fail(attrs, sp, err)
		}
		return w.done(attrs, info), nil
	}

	info, err := w.fallback(ctx, a, attrs, sp)
	if err != nil {
		return nil, w.fail(attrs, sp, err)
	}
	return w.done(attrs, info), nil
}

func (w *webDetector) Check(ctx context.Context, attrs Attributes) (*CheckResult, error) {
	res, err := w.check(ctx, attrs)
	if err != nil {
		return nil, err
	}
	return w.checked(attrs, res), nil
}
