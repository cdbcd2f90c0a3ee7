// Package buildsys infers how a package is built from the layout of its
// archive.
//
// There is one Detector per Kind. Most follow the same three steps: search
// the archive for a known build descriptor, classify what was found into a
// build system tag, and otherwise fall back to compiling the source files
// one by one. The per family knowledge lives in the tables in family.go.
package buildsys

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/git-pkgs/pkginspect/internal/archive"
	"github.com/git-pkgs/pkginspect/internal/extract"
	"github.com/git-pkgs/pkginspect/internal/metrics"
	"github.com/git-pkgs/pkginspect/internal/pathutil"
)

// Detector infers and re-validates the build system of one package kind.
type Detector interface {
	Kind() Kind

	// Detect reports the build system and directories for a package. A
	// package without a recognised descriptor is a normal result tagged
	// no-build or none; only an archive that cannot be read is an error.
	Detect(ctx context.Context, attrs Attributes) (*BuildInfo, error)

	// Check verifies that attrs.BuildSystem still matches the archive.
	Check(ctx context.Context, attrs Attributes) (*CheckResult, error)
}

// Env carries the collaborators detectors need besides the attributes.
type Env struct {
	Archive archive.Options

	// Extractor stages archives for detectors that run external tools
	// over an unpacked tree.
	Extractor *extract.Service

	// Python and DotnetPkgInfo locate the .NET package inspection tool,
	// which is run as "<Python> <DotnetPkgInfo> <dir>".
	Python        string
	DotnetPkgInfo string

	Logger *slog.Logger
}

// New returns the Detector for kind.
func New(kind Kind, env Env) (Detector, error) {
	if env.Logger == nil {
		env.Logger = slog.Default()
	}
	if env.Archive.Logger == nil {
		env.Archive.Logger = env.Logger
	}

	switch kind {
	case KindC:
		return &descriptorDetector{base{kind: kind, fam: &cFamily, env: env}}, nil
	case KindJavaSource:
		return &descriptorDetector{base{kind: kind, fam: &javaFamily, env: env}}, nil
	case KindAndroidSource:
		return &descriptorDetector{base{kind: kind, fam: &androidFamily, env: env}}, nil
	case KindPython:
		return &descriptorDetector{base{kind: kind, fam: &pythonFamily, env: env}}, nil
	case KindRuby:
		return &rubyDetector{base{kind: kind, fam: &rubyFamily, env: env}}, nil
	case KindWebScripting:
		return &webDetector{base{kind: kind, fam: &webFamily, env: env}}, nil
	case KindJavaBytecode:
		return &bytecodeDetector{base: base{kind: kind, fam: &family{name: "Java bytecode"}, env: env}, tag: "java-bytecode"}, nil
	case KindAndroidBytecode:
		return &bytecodeDetector{base: base{kind: kind, fam: &family{name: "Android bytecode"}, env: env}, tag: "android-apk"}, nil
	case KindDotNet:
		if env.Extractor == nil {
			scratch := env.Archive.ScratchDir
			if scratch == "" {
				scratch = filepath.Join(os.TempDir(), "pkginspect")
			}
			env.Extractor = extract.New(scratch, env.Archive, env.Logger)
		}
		return &dotnetDetector{base{kind: kind, fam: &family{name: ".NET"}, env: env}}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// base holds what every detector shares.
type base struct {
	kind Kind
	fam  *family
	env  Env
}

func (b *base) Kind() Kind {
	return b.kind
}

func (b *base) open(attrs Attributes) (*archive.Archive, error) {
	a, err := archive.Open(attrs.PackagePath, b.env.Archive)
	if err != nil {
		return nil, b.fail(attrs, searchPath(attrs), err)
	}
	return a, nil
}

func (b *base) fail(attrs Attributes, searchPath string, err error) error {
	return &DetectError{
		Kind:        b.kind,
		PackagePath: attrs.PackagePath,
		SearchPath:  searchPath,
		Family:      b.fam.name,
		Err:         err,
	}
}

// done records a detection result.
func (b *base) done(attrs Attributes, info *BuildInfo) *BuildInfo {
	metrics.RecordDetection(string(b.kind), info.BuildSystem)
	b.env.Logger.Debug("detected build system",
		"kind", b.kind, "package", attrs.PackagePath, "build_system", info.BuildSystem, "build_dir", info.BuildDir)
	return info
}

func (b *base) checked(attrs Attributes, res *CheckResult) *CheckResult {
	metrics.RecordCheck(string(b.kind), res.OK)
	if !res.OK {
		b.env.Logger.Debug("build system check failed",
			"kind", b.kind, "package", attrs.PackagePath, "build_system", attrs.BuildSystem, "message", res.Message)
	}
	return res
}

// searchPath is where descriptors are looked for.
func searchPath(attrs Attributes) string {
	return pathutil.ConcatPaths(attrs.SourcePath, attrs.BuildDir)
}

// sourcePrefix is the source path in the form archive names start with.
func sourcePrefix(sourcePath string) string {
	return pathutil.ToPathSegment(pathutil.StripDotSlash(sourcePath))
}

// cleanDir renders a directory the way BuildInfo stores it: no leading
// "./", no trailing slash, and "" for the source root.
func cleanDir(dir string) string {
	dir = strings.TrimSuffix(pathutil.StripDotSlash(dir), "/")
	if dir == "." {
		return ""
	}
	return dir
}

// sourceRelative expresses a normalized search path relative to the source
// path, so an override such as "../proj" resolves before it is stored.
func sourceRelative(sourcePath, searchPath string) string {
	return cleanDir(strings.TrimPrefix(pathutil.StripDotSlash(searchPath), sourcePrefix(sourcePath)))
}

// relativeDir returns the directory of name relative to the source path.
func relativeDir(sourcePath, name string) string {
	rel := strings.TrimPrefix(name, sourcePrefix(sourcePath))
	return cleanDir(pathutil.Dir(rel))
}

// fromDescriptor builds the result for a located descriptor file.
func (b *base) fromDescriptor(ctx context.Context, a *archive.Archive, attrs Attributes, name string) (*BuildInfo, error) {
	d, ok := b.fam.descriptorFor(name)
	if !ok {
		return nil, fmt.Errorf("no descriptor entry for %s", name)
	}

	dir := relativeDir(attrs.SourcePath, name)
	info := &BuildInfo{BuildSystem: d.tag, BuildDir: dir}
	if d.configCmd != "" {
		info.ConfigDir = dir
		info.ConfigCmd = d.configCmd
	} else {
		info.BuildFile = d.file
	}

	if d.wrapper != "" {
		has, err := a.Contains(ctx, pathutil.Dir(name), d.wrapper)
		if err != nil {
			return nil, err
		}
		if has {
			info.BuildSystem = d.wrapperTag
		}
	}
	return info, nil
}

// sourceFiles lists the family's source files beneath dir, sorted.
func (b *base) sourceFiles(ctx context.Context, a *archive.Archive, dir string) ([]string, error) {
	filter := b.fam.sourceFilter()
	if filter == "" {
		return nil, nil
	}
	return a.SearchFiles(ctx, dir, filter)
}

// fallback handles a package without any recognised descriptor.
func (b *base) fallback(ctx context.Context, a *archive.Archive, attrs Attributes, searchPath string) (*BuildInfo, error) {
	files, err := b.sourceFiles(ctx, a, searchPath)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return &BuildInfo{
			BuildSystem: TagNone,
			BuildDir:    sourceRelative(attrs.SourcePath, searchPath),
			Message: fmt.Sprintf("Could not find a build file or any %s source files within the '%s' directory.",
				b.fam.name, searchPath),
		}, nil
	}

	prefix := sourcePrefix(attrs.SourcePath)
	rel := make([]string, len(files))
	for i, f := range files {
		rel[i] = strings.TrimPrefix(f, prefix)
	}

	dir := sourceRelative(attrs.SourcePath, searchPath)
	if dir == "" {
		dir = cleanDir(pathutil.Dir(rel[0]))
	}

	return &BuildInfo{
		BuildSystem: TagNoBuild,
		BuildDir:    dir,
		NoBuildCmd:  noBuildCommand(b.fam, dir, rel),
		SourceFiles: sourceList(dir, rel),
		Message: fmt.Sprintf("Could not find a build file within the '%s' directory; found %d %s source files.",
			searchPath, len(files), b.fam.name),
	}, nil
}

// noBuildCommand changes into dir and compiles each file on its own. Files
// are given relative to the source root and rewritten relative to dir.
// Families whose sources are not compiled get no command.
func noBuildCommand(fam *family, dir string, files []string) string {
	var clauses []string
	for _, f := range files {
		compiler := fam.compiler(f)
		if compiler == "" {
			continue
		}
		clauses = append(clauses, compiler+" "+pathutil.ToCommandPathName(pathutil.RelativeTo(dir, f))+";")
	}
	if len(clauses) == 0 {
		return ""
	}
	if dir != "" {
		clauses = append([]string{"cd " + pathutil.ToCommandPathName(dir) + ";"}, clauses...)
	}
	return strings.Join(clauses, " ")
}

// sourceList renders files relative to dir as shell words.
func sourceList(dir string, files []string) string {
	words := make([]string, len(files))
	for i, f := range files {
		words[i] = pathutil.ToCommandPathName(pathutil.RelativeTo(dir, f))
	}
	return strings.Join(words, " ")
}

// check validates attrs.BuildSystem against the family's rules.
func (b *base) check(ctx context.Context, attrs Attributes) (*CheckResult, error) {
	tag := attrs.BuildSystem
	name := b.fam.name

	switch tag {
	case "":
		return failed("No build system has been set for this %s package.", name), nil
	case TagNone:
		// none is only detected for packages without sources, so there is
		// nothing to verify.
		return passed("%s package has no build system to check.", name), nil
	}

	if suffix, ok := b.fam.packageSuffix(tag); ok {
		if strings.HasSuffix(strings.ToLower(attrs.PackagePath), suffix) {
			return passed("%s package build system ok for %s.", name, tag), nil
		}
		return failed("The package archive file extension should be '%s' for the %s build system.", suffix, tag), nil
	}

	r, known := b.fam.rules[tag]
	if !known && tag != TagNoBuild {
		return failed("Unknown build system '%s' for %s packages.", tag, name), nil
	}

	a, err := b.open(attrs)
	if err != nil {
		return nil, err
	}

	if tag == TagNoBuild {
		dir := searchPath(attrs)
		files, err := b.sourceFiles(ctx, a, dir)
		if err != nil {
			return nil, b.fail(attrs, dir, err)
		}
		if len(files) == 0 {
			return failed("Could not find any %s source files within the '%s' directory. You may need to set your build path.",
				name, dir), nil
		}
		return passed("%s package build system ok for %s.", name, tag), nil
	}

	dir := pathutil.ConcatPaths(attrs.SourcePath, attrs.BuildDir)
	if r.config {
		dir = pathutil.ConcatPaths(attrs.SourcePath, attrs.ConfigDir)
	}

	files := r.files
	if attrs.BuildFile != "" && len(files) > 0 && !r.config {
		files = []string{attrs.BuildFile}
	}
	if len(files) > 0 {
		ok, err := containsAny(ctx, a, dir, files)
		if err != nil {
			return nil, b.fail(attrs, dir, err)
		}
		if !ok {
			return failed("%s", missingFile(files, dir)), nil
		}
	}
	for _, f := range r.also {
		ok, err := a.Contains(ctx, dir, f)
		if err != nil {
			return nil, b.fail(attrs, dir, err)
		}
		if !ok {
			return failed("%s", missingFile([]string{f}, dir)), nil
		}
	}
	return passed("%s package build system ok for %s.", name, tag), nil
}

func containsAny(ctx context.Context, a *archive.Archive, dir string, files []string) (bool, error) {
	for _, f := range files {
		ok, err := a.Contains(ctx, dir, f)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func missingFile(files []string, dir string) string {
	return fmt.Sprintf("Could not find a build file called '%s' within the '%s' directory. "+
		"You may need to set your build path or the path to your build file.",
		strings.Join(files, "' or '"), dir)
}
