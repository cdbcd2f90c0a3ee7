package buildsys

import (
	"errors"
	"fmt"
)

// ErrUnknownKind is returned for a kind name or package type identifier
// with no detector.
var ErrUnknownKind = errors.New("unknown package kind")

// DetectError reports that a package could not be inspected at all, as
// opposed to a package in which no build descriptor was found.
type DetectError struct {
	Kind        Kind
	PackagePath string
	SearchPath  string
	Family      string
	Err         error
}

func (e *DetectError) Error() string {
	return fmt.Sprintf("could not inspect %s package %s (searching %q for %s descriptors): %v",
		e.Kind, e.PackagePath, e.SearchPath, e.Family, e.Err)
}

func (e *DetectError) Unwrap() error {
	return e.Err
}
