package buildsys

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies a package family. Each kind has exactly one Detector.
type Kind string

const (
	KindC               Kind = "c"
	KindJavaSource      Kind = "java-source"
	KindJavaBytecode    Kind = "java-bytecode"
	KindAndroidSource   Kind = "android-source"
	KindAndroidBytecode Kind = "android-bytecode"
	KindPython          Kind = "python"
	KindRuby            Kind = "ruby"
	KindWebScripting    Kind = "web-scripting"
	KindDotNet          Kind = "dotnet"
)

// Kinds returns every supported kind.
func Kinds() []Kind {
	return []Kind{
		KindC,
		KindJavaSource,
		KindJavaBytecode,
		KindAndroidSource,
		KindAndroidBytecode,
		KindPython,
		KindRuby,
		KindWebScripting,
		KindDotNet,
	}
}

// ParseKind parses a kind name case insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// typeIDs maps the numeric package type identifiers used by package stores
// onto kinds. Several identifiers share a kind because the store
// distinguishes packaging flavours the detectors treat identically.
var typeIDs = map[int]Kind{
	1:  KindC,
	2:  KindJavaSource,
	3:  KindJavaBytecode,
	4:  KindPython,
	5:  KindPython,
	6:  KindAndroidSource,
	7:  KindRuby,
	8:  KindRuby,
	9:  KindRuby,
	10: KindRuby,
	11: KindAndroidBytecode,
	12: KindJavaSource,
	13: KindJavaBytecode,
	14: KindWebScripting,
	15: KindDotNet,
}

// KindForTypeID returns the kind for a package type identifier.
func KindForTypeID(id int) (Kind, error) {
	k, ok := typeIDs[id]
	if !ok {
		return "", fmt.Errorf("%w: package type %d", ErrUnknownKind, id)
	}
	return k, nil
}

// LookupKind accepts either a kind name or a numeric package type
// identifier, the two forms package stores use.
func LookupKind(s string) (Kind, error) {
	if id, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return KindForTypeID(id)
	}
	return ParseKind(s)
}
