// Package pathutil provides the string helpers used to address files inside
// an archive. Paths are always slash separated and directories are written
// with a trailing slash. Nothing here touches the filesystem.
package pathutil

import (
	"path"
	"strings"
)

// CurrentDir is returned by ConcatPaths when both halves are empty.
const CurrentDir = "."

// ToPathSegment returns s terminated by a slash. Empty strings and the
// current directory map to the empty string.
func ToPathSegment(s string) string {
	if s == "" || s == "." || s == "./" {
		return ""
	}
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

// Normalize moves directory information out of file and onto dir.
//
// Each leading "../" on file removes one trailing directory from dir. Popping
// past the top leaves dir empty. Whatever directory part remains in file is
// appended to dir so the returned file is a bare name.
func Normalize(dir, file string) (string, string) {
	dir = StripDotSlash(dir)
	if dir == "." {
		dir = ""
	}
	file = StripDotSlash(strings.TrimLeft(file, "/"))

	for strings.HasPrefix(file, "../") {
		file = file[3:]
		dir = parentOf(dir)
	}

	if i := strings.LastIndex(file, "/"); i > 0 {
		dir = ToPathSegment(dir) + file[:i+1]
		file = file[i+1:]
	}
	return dir, file
}

// parentOf drops the last directory from dir, keeping the trailing slash.
func parentOf(dir string) string {
	dir = strings.TrimSuffix(dir, "/")
	i := strings.LastIndex(dir, "/")
	if i < 0 {
		return ""
	}
	return dir[:i+1]
}

// ConcatPaths joins two path fragments after normalizing them. An empty
// result is reported as CurrentDir.
func ConcatPaths(a, b string) string {
	a, b = Normalize(a, b)
	p := ToPathSegment(a) + ToPathSegment(b)
	if p == "" {
		return CurrentDir
	}
	return p
}

// ToCommandPathName formats p for use as a shell word in a synthesized
// command: the trailing slash is dropped and names with spaces are quoted.
func ToCommandPathName(p string) string {
	p = strings.TrimSuffix(p, "/")
	if strings.Contains(p, " ") {
		return `"` + p + `"`
	}
	return p
}

// StripDotSlash removes every leading "./" from name.
func StripDotSlash(name string) string {
	for strings.HasPrefix(name, "./") {
		name = name[2:]
	}
	return name
}

// Clamp resolves ".." and "." elements in an archive member name without
// letting it climb above the archive root. The result never starts with a
// slash. The second return value reports whether the name tried to leave the
// root, either by being absolute or by popping past the top.
func Clamp(name string) (string, bool) {
	escaped := strings.HasPrefix(name, "/")
	depth := 0
	for _, part := range strings.Split(name, "/") {
		switch part {
		case "", ".":
		case "..":
			depth--
			if depth < 0 {
				escaped = true
				depth = 0
			}
		default:
			depth++
		}
	}

	cleaned := strings.TrimPrefix(path.Clean("/"+name), "/")
	if cleaned != "" && strings.HasSuffix(name, "/") {
		cleaned += "/"
	}
	return cleaned, escaped
}

// Dir returns the directory part of name with a trailing slash, or the empty
// string for top level names. Directory entries report their parent.
func Dir(name string) string {
	name = strings.TrimSuffix(name, "/")
	i := strings.LastIndex(name, "/")
	if i < 0 {
		return ""
	}
	return name[:i+1]
}

// Base returns the last element of name without any trailing slash.
func Base(name string) string {
	name = strings.TrimSuffix(name, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// Depth counts the slashes in name, ignoring a trailing one.
func Depth(name string) int {
	return strings.Count(strings.TrimSuffix(name, "/"), "/")
}

// RelativeTo expresses p relative to the directory base. Both are slash
// separated paths from the same root.
func RelativeTo(base, p string) string {
	base = ToPathSegment(base)
	up := ""
	for base != "" && !strings.HasPrefix(p, base) {
		base = parentOf(base)
		up += "../"
	}
	return up + p[len(base):]
}
