package buildsys

import "context"

// bytecodeDetector reports a fixed build system. Compiled packages are
// analysed as they are, so the archive is never opened.
type bytecodeDetector struct {
	base
	tag string
}

func (b *bytecodeDetector) Detect(_ context.Context, attrs Attributes) (*BuildInfo, error) {
	return b.done(attrs, &BuildInfo{BuildSystem: b.tag}), nil
}

func (b *bytecodeDetector) Check(_ context.Context, attrs Attributes) (*CheckResult, error) {
	return b.checked(attrs, passed("%s package build system ok for %s.", b.fam.name, b.tag)), nil
}
