// Package pkgmeta reads the metadata files packages carry about themselves:
// wheel WHEEL and METADATA files, Gemfiles and gem specifications.
package pkgmeta

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"path"
	"strings"
)

// ErrInvalidMetadata is returned when a metadata file cannot be parsed.
var ErrInvalidMetadata = errors.New("invalid package metadata")

// Wheel is the WHEEL file from a wheel's .dist-info directory.
type Wheel struct {
	WheelVersion  string              `json:"wheel_version"`
	Generator     string              `json:"generator,omitempty"`
	RootIsPurelib bool                `json:"root_is_purelib"`
	Build         string              `json:"build,omitempty"`
	Tags          []string            `json:"tags,omitempty"`
	Fields        map[string][]string `json:"fields"`
}

// Metadata is the core metadata file (METADATA or PKG-INFO) of a Python
// distribution.
type Metadata struct {
	MetadataVersion string   `json:"metadata_version,omitempty"`
	Name            string   `json:"name"`
	Version         string   `json:"version"`
	Summary         string   `json:"summary,omitempty"`
	HomePage        string   `json:"home_page,omitempty"`
	Author          string   `json:"author,omitempty"`
	AuthorEmail     string   `json:"author_email,omitempty"`
	License         string   `json:"license,omitempty"`
	RequiresPython  string   `json:"requires_python,omitempty"`
	RequiresDist    []string `json:"requires_dist,omitempty"`
}

// readHeader parses RFC 822 style "Key: value" lines. Files that end
// without a blank line are terminated so the last field is kept.
func readHeader(data []byte) (textproto.MIMEHeader, error) {
	buf := make([]byte, 0, len(data)+2)
	buf = append(buf, data...)
	buf = append(buf, '\n', '\n')

	rd := textproto.NewReader(bufio.NewReader(bytes.NewReader(buf)))
	h, err := rd.ReadMIMEHeader()
	if err != nil && !errors.Is(err, io.EOF) {
		return h, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	return h, nil
}

// ParseWheel parses a WHEEL file.
func ParseWheel(data []byte) (*Wheel, error) {
	h, err := readHeader(data)
	if err != nil {
		return nil, err
	}
	w := &Wheel{
		WheelVersion:  h.Get("Wheel-Version"),
		Generator:     h.Get("Generator"),
		RootIsPurelib: strings.EqualFold(h.Get("Root-Is-Purelib"), "true"),
		Build:         h.Get("Build"),
		Tags:          h.Values("Tag"),
		Fields:        map[string][]string(h),
	}
	if w.WheelVersion == "" {
		return nil, fmt.Errorf("%w: WHEEL has no Wheel-Version", ErrInvalidMetadata)
	}
	return w, nil
}

// ParseMetadata parses a METADATA or PKG-INFO file. The description body
// after the first blank line is ignored.
func ParseMetadata(data []byte) (*Metadata, error) {
	h, err := readHeader(data)
	name, version := h.Get("Name"), h.Get("Version")
	if name == "" || version == "" {
		// Malformed continuation lines are tolerated when the identity
		// fields were read.
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: name or version is empty (name: %q, version: %q)", ErrInvalidMetadata, name, version)
	}
	return &Metadata{
		MetadataVersion: h.Get("Metadata-Version"),
		Name:            name,
		Version:         version,
		Summary:         h.Get("Summary"),
		HomePage:        h.Get("Home-page"),
		Author:          h.Get("Author"),
		AuthorEmail:     h.Get("Author-email"),
		License:         h.Get("License"),
		RequiresPython:  h.Get("Requires-Python"),
		RequiresDist:    h.Values("Requires-Dist"),
	}, nil
}

// WheelDistInfo returns the .dist-info directory named by a wheel filename
// such as "demo-1.0-py3-none-any.whl", with a trailing slash.
func WheelDistInfo(filename string) (string, error) {
	name, version, err := WheelNameVersion(filename)
	if err != nil {
		return "", err
	}
	return name + "-" + version + ".dist-info/", nil
}

// WheelNameVersion splits a wheel filename into distribution name and
// version.
func WheelNameVersion(filename string) (string, string, error) {
	base := path.Base(filename)
	if !strings.HasSuffix(strings.ToLower(base), ".whl") {
		return "", "", fmt.Errorf("%w: %q is not a wheel filename", ErrInvalidMetadata, filename)
	}
	parts := strings.Split(base[:len(base)-len(".whl")], "-")
	if len(parts) < 5 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q is not a wheel filename", ErrInvalidMetadata, filename)
	}
	return parts[0], parts[1], nil
}
