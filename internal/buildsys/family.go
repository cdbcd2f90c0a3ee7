package buildsys

import (
	"maps"
	"path"
	"regexp"
	"slices"
	"strings"
)

// Tags shared by every descriptor family.
const (
	TagNoBuild = "no-build"
	TagNone    = "none"
)

const autotoolsConfigCmd = "mkdir -p m4 && autoreconf --install --force || ./autogen.sh && ./configure"

// descriptor maps a build file basename to the build system it implies.
type descriptor struct {
	file string
	tag  string

	// configCmd is set for files that configure a tree rather than build
	// it. Their directory is reported as config_dir as well as build_dir.
	configCmd string

	// wrapper switches the tag to wrapperTag when a file of that name sits
	// next to the descriptor.
	wrapper    string
	wrapperTag string
}

// rule lists what must be present for an assigned build system to check
// out. One of files must exist in the build directory, or the configured
// build_file instead when there is one. Every entry of also must exist as
// well. Config rules look in config_dir and ignore build_file.
type rule struct {
	files  []string
	also   []string
	config bool
}

// family is the immutable description of one package family.
type family struct {
	name        string
	descriptors []descriptor
	rules       map[string]rule

	// packageTags decide the build system from the package filename alone,
	// keyed by lower case suffix.
	packageTags map[string]string

	// sources maps source file extensions to the command that compiles one
	// file. An empty command means the files are not compiled.
	sources map[string]string
}

var cFamily = family{
	name: "C/C++",
	descriptors: []descriptor{
		{file: "makefile", tag: "make"},
		{file: "Makefile", tag: "make"},
		{file: "CMakeLists.txt", tag: "cmake+make", configCmd: "cmake ."},
		{file: "configure", tag: "configure+make", configCmd: "./configure"},
		{file: "configure.ac", tag: "autotools+configure+make", configCmd: autotoolsConfigCmd},
	},
	rules: map[string]rule{
		"make":                     {files: []string{"makefile", "Makefile"}},
		"cmake+make":               {files: []string{"CMakeLists.txt"}, config: true},
		"configure+make":           {files: []string{"configure"}, config: true},
		"autotools+configure+make": {files: []string{"configure.ac"}, config: true},
	},
	sources: map[string]string{
		".c":   "gcc -c",
		".cc":  "g++ -c",
		".cpp": "g++ -c",
		".cxx": "g++ -c",
		".c++": "g++ -c",
	},
}

var javaFamily = family{
	name: "Java source",
	descriptors: []descriptor{
		{file: "build.xml", tag: "ant"},
		{file: "pom.xml", tag: "maven"},
		{file: "build.gradle", tag: "gradle", wrapper: "gradlew", wrapperTag: "gradle-wrapper"},
	},
	rules: map[string]rule{
		"ant":            {files: []string{"build.xml"}},
		"ant+ivy":        {files: []string{"build.xml"}},
		"maven":          {files: []string{"pom.xml"}},
		"gradle":         {files: []string{"build.gradle"}},
		"gradle-wrapper": {files: []string{"build.gradle"}, also: []string{"gradlew"}},
	},
	sources: map[string]string{
		".java": "javac",
		".j":    "javac",
	},
}

var androidFamily = javaFamily.withTagPrefix("Android source", "android+")

var pythonFamily = family{
	name: "Python",
	descriptors: []descriptor{
		{file: "setup.py", tag: "python-setuptools"},
	},
	rules: map[string]rule{
		"python-setuptools": {files: []string{"setup.py"}},
		"distutils":         {files: []string{"setup.py"}},
	},
	packageTags: map[string]string{".whl": "wheels"},
	sources:     map[string]string{".py": ""},
}

var rubyFamily = family{
	name: "Ruby",
	descriptors: []descriptor{
		{file: "Gemfile", tag: "bundler"},
		{file: "Rakefile", tag: "rake"},
		{file: "rakefile", tag: "rake"},
	},
	rules: map[string]rule{
		"bundler+rake":  {files: []string{"rakefile", "Rakefile"}, also: []string{"Gemfile"}},
		"bundler":       {also: []string{"Gemfile"}},
		"bundler+other": {also: []string{"Gemfile"}},
		"rake":          {files: []string{"rakefile", "Rakefile"}},
	},
	packageTags: map[string]string{".gem": "ruby-gem"},
	sources:     map[string]string{".rb": ""},
}

var webFamily = family{
	name: "Web scripting",
	descriptors: []descriptor{
		{file: "package.json", tag: "npm"},
		{file: "composer.json", tag: "composer"},
	},
	rules: map[string]rule{
		"npm":      {files: []string{"package.json"}},
		"composer": {files: []string{"composer.json"}},
	},
	sources: map[string]string{
		".js":   "",
		".mjs":  "",
		".php":  "",
		".html": "",
		".htm":  "",
	},
}

// withTagPrefix derives a family whose tags carry prefix, as the Android
// families do over the Java ones.
func (f family) withTagPrefix(name, prefix string) family {
	out := family{name: name, sources: maps.Clone(f.sources), packageTags: maps.Clone(f.packageTags)}
	for _, d := range f.descriptors {
		d.tag = prefix + d.tag
		if d.wrapperTag != "" {
			d.wrapperTag = prefix + d.wrapperTag
		}
		out.descriptors = append(out.descriptors, d)
	}
	out.rules = make(map[string]rule, len(f.rules))
	for tag, r := range f.rules {
		out.rules[prefix+tag] = r
	}
	return out
}

// candidates returns the descriptor basenames in table order.
func (f *family) candidates() []string {
	names := make([]string, len(f.descriptors))
	for i, d := range f.descriptors {
		names[i] = d.file
	}
	return names
}

func (f *family) descriptorFor(name string) (descriptor, bool) {
	base := path.Base(strings.TrimSuffix(name, "/"))
	for _, d := range f.descriptors {
		if d.file == base {
			return d, true
		}
	}
	return descriptor{}, false
}

// packageTag returns the tag implied by the package filename, if any.
func (f *family) packageTag(packagePath string) (string, bool) {
	lower := strings.ToLower(packagePath)
	for suffix, tag := range f.packageTags {
		if strings.HasSuffix(lower, suffix) {
			return tag, true
		}
	}
	return "", false
}

// packageSuffix is the reverse of packageTag.
func (f *family) packageSuffix(tag string) (string, bool) {
	for suffix, t := range f.packageTags {
		if t == tag {
			return suffix, true
		}
	}
	return "", false
}

// sourceFilter returns a "/regexp/" filter matching the family's source
// file extensions, or "" when the family has none.
func (f *family) sourceFilter() string {
	if len(f.sources) == 0 {
		return ""
	}
	exts := slices.Sorted(maps.Keys(f.sources))
	for i, e := range exts {
		exts[i] = regexp.QuoteMeta(strings.TrimPrefix(e, "."))
	}
	return `/\.(?:` + strings.Join(exts, "|") + `)$/`
}

// compiler returns the single file compile command for name.
func (f *family) compiler(name string) string {
	return f.sources[path.Ext(name)]
}
