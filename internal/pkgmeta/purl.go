package pkgmeta

import (
	"github.com/git-pkgs/purl"

	"github.com/git-pkgs/pkginspect/internal/buildsys"
)

var ecosystems = map[buildsys.Kind]string{
	buildsys.KindPython:        "pypi",
	buildsys.KindRuby:          "gem",
	buildsys.KindJavaSource:    "maven",
	buildsys.KindJavaBytecode:  "maven",
	buildsys.KindAndroidSource: "maven",
	buildsys.KindWebScripting:  "npm",
	buildsys.KindDotNet:        "nuget",
}

// EcosystemFor returns the package ecosystem that packages of kind are
// published to. C and Android bytecode packages have none.
func EcosystemFor(kind buildsys.Kind) (string, bool) {
	eco, ok := ecosystems[kind]
	return eco, ok
}

// PURL returns the package URL for name and version in kind's ecosystem,
// or "" when the kind has no ecosystem or name is empty.
func PURL(kind buildsys.Kind, name, version string) string {
	eco, ok := EcosystemFor(kind)
	if !ok || name == "" {
		return ""
	}
	return purl.MakePURLString(eco, name, version)
}
