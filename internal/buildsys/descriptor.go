package buildsys

import "context"

// descriptorDetector serves the families identified by a single build
// descriptor: C/C++, Java and Android source, and Python.
type descriptorDetector struct {
	base
}

func (d *descriptorDetector) Detect(ctx context.Context, attrs Attributes) (*BuildInfo, error) {
	if tag, ok := d.fam.packageTag(attrs.PackagePath); ok {
		return d.done(attrs, &BuildInfo{BuildSystem: tag}), nil
	}

	a, err := d.open(attrs)
	if err != nil {
		return nil, err
	}

	sp := searchPath(attrs)
	found, ok, err := a.Search(ctx, sp, d.fam.candidates())
	if err != nil {
		return nil, d.fail(attrs, sp, err)
	}

	var info *BuildInfo
	if ok {
		info, err = d.fromDescriptor(ctx, a, attrs, found)
	} else {
		info, err = d.fallback(ctx, a, attrs, sp)
	}
	if err != nil {
		return nil, d.fail(attrs, sp, err)
	}
	return d.done(attrs, info), nil
}

func (d *descriptorDetector) Check(ctx context.Context, attrs Attributes) (*CheckResult, error) {
	res, err := d.check(ctx, attrs)
	if err != nil {
		return nil, err
	}
	return d.checked(attrs, res), nil
}
