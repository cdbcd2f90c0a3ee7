package buildsys

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/git-pkgs/pkginspect/internal/archive"
	"github.com/git-pkgs/pkginspect/internal/archivetest"
)

func testEnv(t *testing.T) Env {
	t.Helper()
	return Env{Archive: archive.Options{ScratchDir: t.TempDir()}}
}

func newDetector(t *testing.T, kind Kind) Detector {
	t.Helper()
	d, err := New(kind, testEnv(t))
	if err != nil {
		t.Fatalf("New(%q): %v", kind, err)
	}
	return d
}

func writePackage(t *testing.T, name string, names ...string) string {
	t.Helper()
	return archivetest.Write(t, t.TempDir(), name, archivetest.Files(names...))
}

// detectAndCheck runs detection and then checks the result as a store
// would after saving it, failing the test unless the check passes.
func detectAndCheck(t *testing.T, d Detector, attrs Attributes) *BuildInfo {
	t.Helper()
	ctx := context.Background()

	info, err := d.Detect(ctx, attrs)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	res, err := d.Check(ctx, attrs.WithBuildInfo(info))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !res.OK {
		t.Errorf("Check after Detect(%+v) not ok: %s", info, res.Message)
	}
	return info
}

func assertParsesAsShell(t *testing.T, cmd string) *syntax.File {
	t.Helper()
	f, err := syntax.NewParser().Parse(strings.NewReader(cmd), "")
	if err != nil {
		t.Fatalf("command %q does not parse: %v", cmd, err)
	}
	return f
}

func TestCDetection(t *testing.T) {
	tests := []struct {
		name   string
		files  []string
		attrs  Attributes
		expect BuildInfo
	}{
		{
			name:  "autotools",
			files: []string{"configure.ac", "src/main.c"},
			expect: BuildInfo{
				BuildSystem: "autotools+configure+make",
				ConfigCmd:   autotoolsConfigCmd,
			},
		},
		{
			name:  "makefile in root folder",
			files: []string{"pkg-1.0/Makefile", "pkg-1.0/main.c"},
			expect: BuildInfo{
				BuildSystem: "make",
				BuildDir:    "pkg-1.0",
				BuildFile:   "Makefile",
			},
		},
		{
			name:  "cmake",
			files: []string{"proj/CMakeLists.txt", "proj/src/a.cpp"},
			expect: BuildInfo{
				BuildSystem: "cmake+make",
				BuildDir:    "proj",
				ConfigDir:   "proj",
				ConfigCmd:   "cmake .",
			},
		},
		{
			name:  "configure beats configure.ac",
			files: []string{"pkg/configure", "pkg/configure.ac", "pkg/Makefile.in"},
			expect: BuildInfo{
				BuildSystem: "configure+make",
				BuildDir:    "pkg",
				ConfigDir:   "pkg",
				ConfigCmd:   "./configure",
			},
		},
		{
			name:  "shallow makefile beats nested one",
			files: []string{"pkg/sub/makefile", "pkg/Makefile"},
			expect: BuildInfo{
				BuildSystem: "make",
				BuildDir:    "pkg",
				BuildFile:   "Makefile",
			},
		},
		{
			name:  "build dir relative to source path",
			files: []string{"pkg/README", "pkg/src/Makefile"},
			attrs: Attributes{SourcePath: "pkg/"},
			expect: BuildInfo{
				BuildSystem: "make",
				BuildDir:    "src",
				BuildFile:   "Makefile",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, ext := range []string{".tar.gz", ".zip"} {
				attrs := tt.attrs
				attrs.PackagePath = writePackage(t, "pkg"+ext, tt.files...)
				info := detectAndCheck(t, newDetector(t, KindC), attrs)
				if diff := cmp.Diff(&tt.expect, info); diff != "" {
					t.Errorf("%s: BuildInfo mismatch (-want +got):\n%s", ext, diff)
				}
			}
		})
	}
}

func TestCNoBuildFallback(t *testing.T) {
	attrs := Attributes{PackagePath: writePackage(t, "pkg.tar.gz", "proj/c.c", "proj/a.c", "proj/b.c", "proj/README")}
	info := detectAndCheck(t, newDetector(t, KindC), attrs)

	if info.BuildSystem != TagNoBuild {
		t.Fatalf("BuildSystem = %q, want no-build", info.BuildSystem)
	}
	if info.BuildDir != "proj" {
		t.Errorf("BuildDir = %q, want proj", info.BuildDir)
	}
	want := "cd proj; gcc -c a.c; gcc -c b.c; gcc -c c.c;"
	if info.NoBuildCmd != want {
		t.Errorf("NoBuildCmd = %q, want %q", info.NoBuildCmd, want)
	}
	if info.SourceFiles != "a.c b.c c.c" {
		t.Errorf("SourceFiles = %q", info.SourceFiles)
	}

	f := assertParsesAsShell(t, info.NoBuildCmd)
	if len(f.Stmts) != 4 {
		t.Errorf("parsed %d statements, want 4", len(f.Stmts))
	}
}

func TestCNoBuildQuotesAndRelativises(t *testing.T) {
	attrs := Attributes{PackagePath: writePackage(t, "pkg.zip", "proj/src/main.c", "proj/lib/my util.cpp")}
	info := detectAndCheck(t, newDetector(t, KindC), attrs)

	want := `cd proj/lib; g++ -c "my util.cpp"; gcc -c ../src/main.c;`
	if info.NoBuildCmd != want {
		t.Errorf("NoBuildCmd = %q, want %q", info.NoBuildCmd, want)
	}

	f := assertParsesAsShell(t, info.NoBuildCmd)
	var words []string
	syntax.Walk(f, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			last := call.Args[len(call.Args)-1]
			words = append(words, last.Lit())
		}
		return true
	})
	// Quoted words have no plain literal form.
	if diff := cmp.Diff([]string{"proj/lib", "", "../src/main.c"}, words); diff != "" {
		t.Errorf("command arguments mismatch (-want +got):\n%s", diff)
	}
}

func TestCNoBuildHonoursBuildDirOverride(t *testing.T) {
	attrs := Attributes{
		PackagePath: writePackage(t, "pkg.tar", "proj/src/a.c", "proj/src/deep/b.c", "proj/other/c.c"),
		BuildDir:    "proj/src",
	}
	info := detectAndCheck(t, newDetector(t, KindC), attrs)

	if info.BuildDir != "proj/src" {
		t.Errorf("BuildDir = %q, want proj/src", info.BuildDir)
	}
	want := "cd proj/src; gcc -c a.c; gcc -c deep/b.c;"
	if info.NoBuildCmd != want {
		t.Errorf("NoBuildCmd = %q, want %q", info.NoBuildCmd, want)
	}
}

func TestCNoBuildResolvesParentOverride(t *testing.T) {
	attrs := Attributes{
		PackagePath: writePackage(t, "pkg.tar.gz", "proj/a.c"),
		SourcePath:  "proj",
		BuildDir:    "../proj",
	}
	info := detectAndCheck(t, newDetector(t, KindC), attrs)

	if info.BuildSystem != TagNoBuild {
		t.Fatalf("BuildSystem = %q, want no-build", info.BuildSystem)
	}
	if info.BuildDir != "" {
		t.Errorf("BuildDir = %q, want the source root", info.BuildDir)
	}
	if info.NoBuildCmd != "gcc -c a.c;" {
		t.Errorf("NoBuildCmd = %q, want %q", info.NoBuildCmd, "gcc -c a.c;")
	}
	assertParsesAsShell(t, info.NoBuildCmd)
}

func TestNoSourcesIsNone(t *testing.T) {
	attrs := Attributes{PackagePath: writePackage(t, "docs.tar.gz", "docs/README", "docs/guide.md")}
	info := detectAndCheck(t, newDetector(t, KindC), attrs)

	if info.BuildSystem != TagNone {
		t.Errorf("BuildSystem = %q, want none", info.BuildSystem)
	}
	if info.Message == "" || info.NoBuildCmd != "" {
		t.Errorf("unexpected BuildInfo %+v", info)
	}
}

func TestJavaDetection(t *testing.T) {
	tests := []struct {
		name      string
		kind      Kind
		files     []string
		wantTag   string
		wantDir   string
		wantCmd   string
		wantBuild string
	}{
		{"ant", KindJavaSource, []string{"app/build.xml", "app/src/A.java"}, "ant", "app", "", "build.xml"},
		{"maven", KindJavaSource, []string{"app/pom.xml"}, "maven", "app", "", "pom.xml"},
		{"gradle", KindJavaSource, []string{"app/build.gradle"}, "gradle", "app", "", "build.gradle"},
		{"gradle wrapper", KindJavaSource, []string{"app/build.gradle", "app/gradlew"}, "gradle-wrapper", "app", "", "build.gradle"},
		{"wrapper elsewhere", KindJavaSource, []string{"app/build.gradle", "app/tools/gradlew"}, "gradle", "app", "", "build.gradle"},
		{"shallow gradle", KindJavaSource, []string{"proj/sub/build.gradle", "proj/build.gradle"}, "gradle", "proj", "", "build.gradle"},
		{"android wrapper", KindAndroidSource, []string{"app/build.gradle", "app/gradlew"}, "android+gradle-wrapper", "app", "", "build.gradle"},
		{"android maven", KindAndroidSource, []string{"app/pom.xml"}, "android+maven", "app", "", "pom.xml"},
		{"java sources", KindJavaSource, []string{"app/src/B.java", "app/src/A.java"}, TagNoBuild, "app/src", "cd app/src; javac A.java; javac B.java;", ""},
		{"android sources", KindAndroidSource, []string{"Main.j"}, TagNoBuild, "", "javac Main.j;", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := Attributes{PackagePath: writePackage(t, "app.tar.gz", tt.files...)}
			info := detectAndCheck(t, newDetector(t, tt.kind), attrs)

			if info.BuildSystem != tt.wantTag {
				t.Errorf("BuildSystem = %q, want %q", info.BuildSystem, tt.wantTag)
			}
			if info.BuildDir != tt.wantDir {
				t.Errorf("BuildDir = %q, want %q", info.BuildDir, tt.wantDir)
			}
			if info.NoBuildCmd != tt.wantCmd {
				t.Errorf("NoBuildCmd = %q, want %q", info.NoBuildCmd, tt.wantCmd)
			}
			if info.BuildFile != tt.wantBuild {
				t.Errorf("BuildFile = %q, want %q", info.BuildFile, tt.wantBuild)
			}
			if info.NoBuildCmd != "" {
				assertParsesAsShell(t, info.NoBuildCmd)
			}
		})
	}
}

func TestWheelShortCircuit(t *testing.T) {
	d := newDetector(t, KindPython)
	ctx := context.Background()

	// Neither a missing nor an empty wheel is opened.
	missing := filepath.Join(t.TempDir(), "demo-1.0-py3-none-any.whl")
	empty := filepath.Join(t.TempDir(), "empty-0.1-py3-none-any.whl")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{missing, empty} {
		info, err := d.Detect(ctx, Attributes{PackagePath: p})
		if err != nil {
			t.Fatalf("Detect(%s) failed: %v", p, err)
		}
		if info.BuildSystem != "wheels" {
			t.Errorf("BuildSystem = %q, want wheels", info.BuildSystem)
		}
		res, err := d.Check(ctx, Attributes{PackagePath: p, BuildSystem: "wheels"})
		if err != nil || !res.OK {
			t.Errorf("Check(wheels) = %+v, %v", res, err)
		}
	}

	res, err := d.Check(ctx, Attributes{PackagePath: "demo-1.0.tar.gz", BuildSystem: "wheels"})
	if err != nil {
		t.Fatal(err)
	}
	if res.OK || !strings.Contains(res.Message, "'.whl'") {
		t.Errorf("Check(wheels on tarball) = %+v", res)
	}
}

func TestPythonDetection(t *testing.T) {
	d := newDetector(t, KindPython)

	info := detectAndCheck(t, d, Attributes{PackagePath: writePackage(t, "demo-1.0.tar.gz", "demo-1.0/setup.py", "demo-1.0/demo/__init__.py")})
	if info.BuildSystem != "python-setuptools" || info.BuildDir != "demo-1.0" || info.BuildFile != "setup.py" {
		t.Errorf("setuptools BuildInfo = %+v", info)
	}

	info = detectAndCheck(t, d, Attributes{PackagePath: writePackage(t, "demo-1.0.tar.gz", "demo-1.0/demo/__init__.py")})
	if info.BuildSystem != TagNoBuild || info.NoBuildCmd != "" || info.SourceFiles != "__init__.py" {
		t.Errorf("no-build BuildInfo = %+v", info)
	}
}

func TestRubyDetection(t *testing.T) {
	tests := []struct {
		name      string
		files     []string
		wantTag   string
		wantDir   string
		wantBuild string
	}{
		{"bundler and rake", []string{"app/Gemfile", "app/Rakefile"}, "bundler+rake", "app", "Rakefile"},
		{"lower case rakefile", []string{"app/Gemfile", "app/rakefile"}, "bundler+rake", "app", "rakefile"},
		{"bundler", []string{"app/Gemfile", "app/lib/a.rb"}, "bundler", "app", ""},
		{"rake", []string{"app/Rakefile"}, "rake", "app", "Rakefile"},
		{"rakefile in another dir", []string{"app/Gemfile", "app/lib/tasks/Rakefile"}, "bundler", "app", ""},
		{"shallower rakefile elsewhere", []string{"pkg/Rakefile", "pkg/sub/Gemfile"}, "bundler", "pkg/sub", ""},
		{"rakefile next to gemfile found by sibling lookup", []string{"a/Rakefile", "b/Gemfile", "b/Rakefile"}, "bundler+rake", "b", "Rakefile"},
		{"sources only", []string{"app/lib/b.rb", "app/lib/a.rb"}, TagNoBuild, "app/lib", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := Attributes{PackagePath: writePackage(t, "app.tar.gz", tt.files...)}
			info := detectAndCheck(t, newDetector(t, KindRuby), attrs)

			if info.BuildSystem != tt.wantTag || info.BuildDir != tt.wantDir || info.BuildFile != tt.wantBuild {
				t.Errorf("BuildInfo = %+v, want tag %q dir %q file %q", info, tt.wantTag, tt.wantDir, tt.wantBuild)
			}
		})
	}
}

func TestRubyGemShortCircuit(t *testing.T) {
	d := newDetector(t, KindRuby)
	p := filepath.Join(t.TempDir(), "rake-13.0.gem")

	info, err := d.Detect(context.Background(), Attributes{PackagePath: p})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if info.BuildSystem != "ruby-gem" {
		t.Errorf("BuildSystem = %q, want ruby-gem", info.BuildSystem)
	}
}

func TestRubyCheckMessages(t *testing.T) {
	d := newDetector(t, KindRuby)
	p := writePackage(t, "app.tar.gz", "app/Gemfile")

	res, err := d.Check(context.Background(), Attributes{PackagePath: p, BuildSystem: "bundler+rake", BuildDir: "app"})
	if err != nil {
		t.Fatal(err)
	}
	want := "Could not find a build file called 'rakefile' or 'Rakefile' within the 'app/' directory. " +
		"You may need to set your build path or the path to your build file."
	if res.OK || res.Message != want {
		t.Errorf("Check = %+v, want message %q", res, want)
	}

	res, _ = d.Check(context.Background(), Attributes{PackagePath: p, BuildSystem: "bundler+other", BuildDir: "app"})
	if !res.OK {
		t.Errorf("legacy bundler+other tag should check like bundler: %s", res.Message)
	}
}

func TestWebDetectionIsNotRecursive(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		attrs   Attributes
		wantTag string
	}{
		{"npm", []string{"package/package.json", "package/index.js"}, Attributes{}, "npm"},
		{"composer", []string{"lib/composer.json", "lib/src/A.php"}, Attributes{}, "composer"},
		{"npm preferred", []string{"x/composer.json", "x/package.json"}, Attributes{}, "npm"},
		{"nested only", []string{"app/index.js", "app/node_modules/dep/package.json"}, Attributes{}, TagNoBuild},
		{"under source path", []string{"repo/site/package.json", "repo/README"}, Attributes{SourcePath: "repo/site"}, "npm"},
		{"no common root", []string{"package.json", "lib/x.js"}, Attributes{}, "npm"},
		{"no common root nested only", []string{"index.js", "vendor/dep/package.json"}, Attributes{}, TagNoBuild},
		{"nothing", []string{"app/README"}, Attributes{}, TagNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := tt.attrs
			attrs.PackagePath = writePackage(t, "site.zip", tt.files...)
			info := detectAndCheck(t, newDetector(t, KindWebScripting), attrs)
			if info.BuildSystem != tt.wantTag {
				t.Errorf("BuildSystem = %q, want %q", info.BuildSystem, tt.wantTag)
			}
			if info.NoBuildCmd != "" {
				t.Errorf("web packages get no compile command, got %q", info.NoBuildCmd)
			}
		})
	}
}

func TestBytecodeIsConstant(t *testing.T) {
	ctx := context.Background()
	for kind, tag := range map[Kind]string{KindJavaBytecode: "java-bytecode", KindAndroidBytecode: "android-apk"} {
		d := newDetector(t, kind)
		attrs := Attributes{PackagePath: "/does/not/exist.jar"}
		info, err := d.Detect(ctx, attrs)
		if err != nil || info.BuildSystem != tag {
			t.Errorf("%s Detect = %+v, %v", kind, info, err)
		}
		res, err := d.Check(ctx, attrs.WithBuildInfo(info))
		if err != nil || !res.OK {
			t.Errorf("%s Check = %+v, %v", kind, res, err)
		}
	}
}

func TestCheckFailures(t *testing.T) {
	p := writePackage(t, "pkg.tar.gz", "pkg/Makefile", "pkg/src/a.c")
	d := newDetector(t, KindC)
	ctx := context.Background()

	tests := []struct {
		name  string
		attrs Attributes
		want  string
	}{
		{
			name:  "wrong build dir",
			attrs: Attributes{BuildSystem: "make", BuildDir: "pkg/other"},
			want:  "Could not find a build file called 'makefile' or 'Makefile' within the 'pkg/other/' directory.",
		},
		{
			name:  "named build file missing",
			attrs: Attributes{BuildSystem: "make", BuildDir: "pkg", BuildFile: "GNUmakefile"},
			want:  "Could not find a build file called 'GNUmakefile' within the 'pkg/' directory.",
		},
		{
			name:  "configure missing from config dir",
			attrs: Attributes{BuildSystem: "configure+make", ConfigDir: "pkg"},
			want:  "Could not find a build file called 'configure' within the 'pkg/' directory.",
		},
		{
			name:  "unknown tag",
			attrs: Attributes{BuildSystem: "scons"},
			want:  "Unknown build system 'scons' for C/C++ packages.",
		},
		{
			name:  "unset",
			attrs: Attributes{},
			want:  "No build system has been set",
		},
		{
			name:  "no sources under build dir",
			attrs: Attributes{BuildSystem: TagNoBuild, BuildDir: "pkg/docs"},
			want:  "Could not find any C/C++ source files within the 'pkg/docs/' directory.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := tt.attrs
			attrs.PackagePath = p
			res, err := d.Check(ctx, attrs)
			if err != nil {
				t.Fatalf("Check error: %v", err)
			}
			if res.OK {
				t.Fatalf("Check passed, want failure %q", tt.want)
			}
			if !strings.HasPrefix(res.Message, tt.want) {
				t.Errorf("Message = %q, want prefix %q", res.Message, tt.want)
			}
		})
	}
}

func TestUnreadableArchiveIsAnError(t *testing.T) {
	p := filepath.Join(t.TempDir(), "broken.tar.gz")
	if err := os.WriteFile(p, []byte("definitely not gzip"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, kind := range []Kind{KindC, KindJavaSource, KindPython, KindRuby, KindWebScripting} {
		t.Run(string(kind), func(t *testing.T) {
			d := newDetector(t, kind)
			_, err := d.Detect(context.Background(), Attributes{PackagePath: p, SourcePath: "src"})
			if !errors.Is(err, archive.ErrUnreadable) {
				t.Fatalf("Detect error = %v, want ErrUnreadable", err)
			}
			var de *DetectError
			if !errors.As(err, &de) {
				t.Fatalf("Detect error %T is not a *DetectError", err)
			}
			if de.Kind != kind || de.PackagePath != p || de.SearchPath != "src/" || de.Family == "" {
				t.Errorf("DetectError = %+v", de)
			}
		})
	}
}

func TestMissingArchiveIsAnError(t *testing.T) {
	d := newDetector(t, KindC)
	_, err := d.Check(context.Background(), Attributes{
		PackagePath: filepath.Join(t.TempDir(), "gone.tar.gz"),
		BuildSystem: "make",
	})
	if !errors.Is(err, archive.ErrUnreadable) {
		t.Errorf("Check error = %v, want ErrUnreadable", err)
	}
}
