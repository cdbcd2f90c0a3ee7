package pkgmeta

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleWheel = `Wheel-Version: 1.0
Generator: bdist_wheel (0.41.2)
Root-Is-Purelib: true
Tag: py3-none-any
Tag: py2-none-any`

func TestParseWheel(t *testing.T) {
	w, err := ParseWheel([]byte(sampleWheel))
	if err != nil {
		t.Fatal(err)
	}
	if w.WheelVersion != "1.0" {
		t.Errorf("WheelVersion = %q", w.WheelVersion)
	}
	if w.Generator != "bdist_wheel (0.41.2)" {
		t.Errorf("Generator = %q", w.Generator)
	}
	if !w.RootIsPurelib {
		t.Error("RootIsPurelib = false")
	}
	if diff := cmp.Diff([]string{"py3-none-any", "py2-none-any"}, w.Tags); diff != "" {
		t.Errorf("Tags mismatch (-want +got):\n%s", diff)
	}
}

func TestParseWheelRequiresVersion(t *testing.T) {
	_, err := ParseWheel([]byte("Generator: hand\n"))
	if !errors.Is(err, ErrInvalidMetadata) {
		t.Errorf("error = %v, want ErrInvalidMetadata", err)
	}
}

func TestParseMetadata(t *testing.T) {
	data := `Metadata-Version: 2.1
Name: demo
Version: 1.2.0
Summary: A demo package
Home-page: https://example.com/demo
License: MIT
Requires-Python: >=3.8
Requires-Dist: requests (>=2.0)
Requires-Dist: click

# Demo

Long description that looks like: a header.
`
	m, err := ParseMetadata([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	want := &Metadata{
		MetadataVersion: "2.1",
		Name:            "demo",
		Version:         "1.2.0",
		Summary:         "A demo package",
		HomePage:        "https://example.com/demo",
		License:         "MIT",
		RequiresPython:  ">=3.8",
		RequiresDist:    []string{"requests (>=2.0)", "click"},
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("Metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMetadataMissingName(t *testing.T) {
	_, err := ParseMetadata([]byte("Metadata-Version: 2.1\nVersion: 1.0\n"))
	if !errors.Is(err, ErrInvalidMetadata) {
		t.Errorf("error = %v, want ErrInvalidMetadata", err)
	}
}

func TestWheelDistInfo(t *testing.T) {
	tests := []struct {
		filename string
		want     string
		wantErr  bool
	}{
		{"demo-1.0-py3-none-any.whl", "demo-1.0.dist-info/", false},
		{"/incoming/my_pkg-2.3.1-cp311-cp311-manylinux_2_17_x86_64.whl", "my_pkg-2.3.1.dist-info/", false},
		{"demo-1.0-1-py3-none-any.whl", "demo-1.0.dist-info/", false},
		{"demo-1.0.tar.gz", "", true},
		{"demo-1.0.whl", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, err := WheelDistInfo(tt.filename)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidMetadata) {
					t.Errorf("error = %v, want ErrInvalidMetadata", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("WheelDistInfo(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}
