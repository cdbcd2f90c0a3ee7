package buildsys

import (
	"encoding/json"
	"fmt"
)

// BuildInfo is what detection reports about how to build a package. The
// JSON field names are the ones package stores persist; empty fields are
// omitted and mean "not set".
type BuildInfo struct {
	BuildSystem string          `json:"build_system,omitempty"`
	ConfigDir   string          `json:"config_dir,omitempty"`
	ConfigCmd   string          `json:"config_cmd,omitempty"`
	BuildDir    string          `json:"build_dir,omitempty"`
	BuildFile   string          `json:"build_file,omitempty"`
	BuildCmd    string          `json:"build_cmd,omitempty"`
	BuildOpt    string          `json:"build_opt,omitempty"`
	NoBuildCmd  string          `json:"no_build_cmd,omitempty"`
	SourceFiles string          `json:"source_files,omitempty"`
	PackageInfo json.RawMessage `json:"package_info,omitempty"`
	Message     string          `json:"message,omitempty"`
}

// Attributes are the stored settings of a package version that detection
// and checking read. PackagePath is a local file by the time a Detector
// sees it.
type Attributes struct {
	PackagePath string `json:"package_path"`
	SourcePath  string `json:"source_path,omitempty"`
	BuildDir    string `json:"build_dir,omitempty"`
	BuildFile   string `json:"build_file,omitempty"`
	ConfigDir   string `json:"config_dir,omitempty"`
	BuildSystem string `json:"build_system,omitempty"`
}

// WithBuildInfo returns a copy of a carrying the directory, file and build
// system fields of info, as a store would after saving a detection.
func (a Attributes) WithBuildInfo(info *BuildInfo) Attributes {
	a.BuildSystem = info.BuildSystem
	a.BuildDir = info.BuildDir
	a.BuildFile = info.BuildFile
	a.ConfigDir = info.ConfigDir
	return a
}

// CheckResult is the outcome of re-validating an assigned build system.
type CheckResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func passed(format string, args ...any) *CheckResult {
	return &CheckResult{OK: true, Message: fmt.Sprintf(format, args...)}
}

func failed(format string, args ...any) *CheckResult {
	return &CheckResult{OK: false, Message: fmt.Sprintf(format, args...)}
}
