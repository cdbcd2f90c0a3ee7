package buildsys

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/git-pkgs/pkginspect/internal/archive"
	"github.com/git-pkgs/pkginspect/internal/pathutil"
)

const msbuild = "msbuild"

// dotnetProjectFilter matches solution files and every msbuild project
// flavour: csproj, vcxproj, sqlproj and so on.
const dotnetProjectFilter = `/\.(?:sln|[A-Za-z]+proj)$/`

// dotnetDetector hands an unpacked copy of the package to the external
// dotnet_pkg_info tool and keeps its JSON report as package_info.
type dotnetDetector struct {
	base
}

func (d *dotnetDetector) Detect(ctx context.Context, attrs Attributes) (*BuildInfo, error) {
	sp := searchPath(attrs)
	if d.env.DotnetPkgInfo == "" {
		return nil, d.fail(attrs, sp, errors.New("no dotnet_pkg_info tool configured"))
	}

	python := d.env.Python
	if python == "" {
		python = "python3"
	}
	opts := d.env.Archive
	opts.ToolEnv = append(append([]string(nil), opts.ToolEnv...), "LANG=en_US.UTF-8")

	var out []byte
	err := d.env.Extractor.WithExtracted(ctx, attrs.PackagePath, func(dir string) error {
		var err error
		out, err = archive.RunTool(ctx, opts, python, d.env.DotnetPkgInfo, dir)
		return err
	})
	if err != nil {
		return nil, d.fail(attrs, sp, err)
	}

	out = bytes.TrimSpace(out)
	if !json.Valid(out) {
		return nil, d.fail(attrs, sp, fmt.Errorf("%w: dotnet_pkg_info output is not JSON", archive.ErrToolFailed))
	}

	info := &BuildInfo{
		BuildSystem: msbuild,
		PackageInfo: json.RawMessage(out),
	}
	for _, key := range []string{"sln_files", "proj_files"} {
		if name := firstName(gjson.GetBytes(out, key)); name != "" {
			info.BuildFile = name
			break
		}
	}
	return d.done(attrs, info), nil
}

// firstName returns the first element of an array, or the first key of an
// object, as the tool reports file lists in either shape.
func firstName(res gjson.Result) string {
	var name string
	res.ForEach(func(key, value gjson.Result) bool {
		if res.IsObject() {
			name = key.String()
		} else {
			name = value.String()
		}
		return false
	})
	return name
}

func (d *dotnetDetector) Check(ctx context.Context, attrs Attributes) (*CheckResult, error) {
	if attrs.BuildSystem != msbuild {
		res := failed("Unknown build system '%s' for %s packages.", attrs.BuildSystem, d.fam.name)
		return d.checked(attrs, res), nil
	}

	a, err := d.open(attrs)
	if err != nil {
		return nil, err
	}
	ok := passed("%s package build system ok for %s.", d.fam.name, msbuild)

	// The recorded build file came from dotnet_pkg_info, whatever its
	// extension.
	if attrs.BuildFile != "" {
		has, err := a.Contains(ctx, "", attrs.BuildFile)
		if err != nil {
			return nil, d.fail(attrs, attrs.BuildFile, err)
		}
		if has {
			return d.checked(attrs, ok), nil
		}
	}

	dir := pathutil.ConcatPaths(attrs.SourcePath, attrs.BuildDir)
	found, err := a.Found(ctx, dir, dotnetProjectFilter, true)
	if err != nil {
		return nil, d.fail(attrs, dir, err)
	}
	if !found {
		res := failed("Could not find a solution or project file within the '%s' directory.", dir)
		return d.checked(attrs, res), nil
	}
	return d.checked(attrs, ok), nil
}
