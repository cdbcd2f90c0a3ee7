package pkgmeta

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"
)

// maxGemSpecSize bounds the decompressed size of a gem's metadata.gz.
const maxGemSpecSize = 8 << 20

// GemSpec is the subset of a Gem::Specification that describes the package.
type GemSpec struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Platform     string          `json:"platform,omitempty"`
	Summary      string          `json:"summary,omitempty"`
	Description  string          `json:"description,omitempty"`
	Homepage     string          `json:"homepage,omitempty"`
	Authors      []string        `json:"authors,omitempty"`
	Licenses     []string        `json:"licenses,omitempty"`
	Dependencies []GemSpecDepend `json:"dependencies,omitempty"`
}

// GemSpecDepend is a runtime or development dependency from a gem spec.
type GemSpecDepend struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Requirements []string `json:"requirements,omitempty"`
}

// ParseGemSpec reads the gzip compressed YAML specification stored as
// metadata.gz inside a .gem file.
func ParseGemSpec(metadataGz []byte) (*GemSpec, error) {
	zr, err := gzip.NewReader(bytes.NewReader(metadataGz))
	if err != nil {
		return nil, fmt.Errorf("%w: metadata.gz: %v", ErrInvalidMetadata, err)
	}
	defer func() { _ = zr.Close() }()

	data, err := io.ReadAll(io.LimitReader(zr, maxGemSpecSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: metadata.gz: %v", ErrInvalidMetadata, err)
	}
	if len(data) > maxGemSpecSize {
		return nil, fmt.Errorf("%w: metadata.gz exceeds %d bytes", ErrInvalidMetadata, maxGemSpecSize)
	}
	return ParseGemSpecYAML(data)
}

// ParseGemSpecYAML reads an uncompressed gem specification. Ruby object
// tags are ignored; only the mapping structure is used.
func ParseGemSpecYAML(data []byte) (*GemSpec, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: gem specification: %v", ErrInvalidMetadata, err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: gem specification is not a mapping", ErrInvalidMetadata)
	}

	spec := &GemSpec{
		Name:        scalar(lookup(root, "name")),
		Version:     scalar(lookup(lookup(root, "version"), "version")),
		Platform:    scalar(lookup(root, "platform")),
		Summary:     scalar(lookup(root, "summary")),
		Description: scalar(lookup(root, "description")),
		Homepage:    scalar(lookup(root, "homepage")),
		Authors:     scalars(lookup(root, "authors")),
		Licenses:    scalars(lookup(root, "licenses")),
	}
	if spec.Version == "" {
		// Older specs store the version as a plain scalar.
		spec.Version = scalar(lookup(root, "version"))
	}
	if spec.Name == "" || spec.Version == "" {
		return nil, fmt.Errorf("%w: gem specification has no name or version", ErrInvalidMetadata)
	}

	if deps := lookup(root, "dependencies"); deps != nil && deps.Kind == yaml.SequenceNode {
		for _, d := range deps.Content {
			spec.Dependencies = append(spec.Dependencies, gemDependency(d))
		}
	}
	return spec, nil
}

func gemDependency(n *yaml.Node) GemSpecDepend {
	dep := GemSpecDepend{
		Name: scalar(lookup(n, "name")),
		Type: strings.TrimPrefix(scalar(lookup(n, "type")), ":"),
	}
	if dep.Type == "" {
		dep.Type = "runtime"
	}
	reqs := lookup(lookup(n, "requirement"), "requirements")
	if reqs == nil {
		return dep
	}
	// Each requirement is an [operator, version] pair.
	for _, pair := range reqs.Content {
		if pair.Kind != yaml.SequenceNode || len(pair.Content) != 2 {
			continue
		}
		op := scalar(pair.Content[0])
		v := scalar(lookup(pair.Content[1], "version"))
		if v == "" {
			v = scalar(pair.Content[1])
		}
		dep.Requirements = append(dep.Requirements, op+" "+v)
	}
	return dep
}

func lookup(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func scalar(n *yaml.Node) string {
	if n == nil || n.Kind != yaml.ScalarNode {
		return ""
	}
	if n.Tag == "!!null" {
		return ""
	}
	return n.Value
}

func scalars(n *yaml.Node) []string {
	if n == nil {
		return nil
	}
	if n.Kind == yaml.ScalarNode {
		if v := scalar(n); v != "" {
			return []string{v}
		}
		return nil
	}
	var out []string
	for _, c := range n.Content {
		if v := scalar(c); v != "" {
			out = append(out, v)
		}
	}
	return out
}
