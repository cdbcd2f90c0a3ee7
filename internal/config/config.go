// Package config provides configuration loading and validation for the
// inspection service and CLI.
//
// Configuration can be provided via:
//   - Command line flags (highest priority)
//   - Environment variables (PKGINSPECT_ prefix)
//   - Configuration file (YAML or JSON)
//
// Package Storage:
//
// Relative package paths are resolved against the incoming directory on
// local disk first, then fetched from the blob store via gocloud.dev/blob:
//
//	storage:
//	  incoming_dir: "/srv/incoming"
//	  url: "s3://packages?region=eu-west-1"
//
// For S3, configure credentials via AWS environment variables:
//
//	AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, AWS_REGION
//
// External Tools:
//
// Tool based listing shells out to tar and jar. .NET packages are inspected
// by running the dotnet_pkg_info script with the configured Python:
//
//	archive:
//	  listing: "tool"
//	tools:
//	  python: "python3"
//	  dotnet_pkg_info: "/opt/tools/dotnet_pkg_info"
//	  timeout: "2m"
//
// See config.example.yaml in the repository root for a complete example.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for pkginspect.
type Config struct {
	// Listen is the address to listen on (e.g., ":8080", "127.0.0.1:8080").
	Listen string `json:"listen" yaml:"listen"`

	// Storage configures where packages are read from.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// ScratchDir is the parent of the per-operation extraction directories.
	ScratchDir string `json:"scratch_dir" yaml:"scratch_dir"`

	// Archive configures archive reading.
	Archive ArchiveConfig `json:"archive" yaml:"archive"`

	// Tools locates external programs.
	Tools ToolsConfig `json:"tools" yaml:"tools"`

	// Log configures logging.
	Log LogConfig `json:"log" yaml:"log"`
}

// StorageConfig configures package lookup.
type StorageConfig struct {
	// URL is an optional blob store holding packages not found locally.
	// Supported schemes:
	//   - file:///path/to/dir - Local filesystem
	//   - s3://bucket-name - Amazon S3
	//   - s3://bucket?endpoint=http://localhost:9000 - S3-compatible (MinIO)
	URL string `json:"url" yaml:"url"`

	// IncomingDir is the directory relative package paths are joined to.
	IncomingDir string `json:"incoming_dir" yaml:"incoming_dir"`
}

// ArchiveConfig configures how archives are listed and read.
type ArchiveConfig struct {
	// Listing is "native" (in-process readers) or "tool" (tar/jar).
	Listing string `json:"listing" yaml:"listing"`

	// MaxMemberSize limits a single extracted member (e.g., "512MB").
	// Empty or "0" means unlimited.
	MaxMemberSize string `json:"max_member_size" yaml:"max_member_size"`

	// MaxListingSize limits the output accepted from a listing tool.
	MaxListingSize string `json:"max_listing_size" yaml:"max_listing_size"`
}

// ToolsConfig locates external tools.
type ToolsConfig struct {
	Tar           string `json:"tar" yaml:"tar"`
	Jar           string `json:"jar" yaml:"jar"`
	Python        string `json:"python" yaml:"python"`
	DotnetPkgInfo string `json:"dotnet_pkg_info" yaml:"dotnet_pkg_info"`

	// Timeout bounds each tool run and each inspection request (e.g., "2m").
	Timeout string `json:"timeout" yaml:"timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `json:"format" yaml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Storage: StorageConfig{
			IncomingDir: ".",
		},
		ScratchDir: filepath.Join(os.TempDir(), "pkginspect"),
		Archive: ArchiveConfig{
			Listing:        "native",
			MaxListingSize: "64MB",
		},
		Tools: ToolsConfig{
			Tar:     "tar",
			Jar:     "jar",
			Python:  "python3",
			Timeout: "5m",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a file (YAML or JSON).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		// Try YAML first, then JSON
		if err := yaml.Unmarshal(data, cfg); err != nil {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config (tried YAML and JSON): %w", err)
			}
		}
	}

	return cfg, nil
}

// envVars maps PKGINSPECT_ environment variables to the fields they set.
func (c *Config) envVars() map[string]*string {
	return map[string]*string{
		"PKGINSPECT_LISTEN":                   &c.Listen,
		"PKGINSPECT_STORAGE_URL":              &c.Storage.URL,
		"PKGINSPECT_STORAGE_INCOMING_DIR":     &c.Storage.IncomingDir,
		"PKGINSPECT_SCRATCH_DIR":              &c.ScratchDir,
		"PKGINSPECT_ARCHIVE_LISTING":          &c.Archive.Listing,
		"PKGINSPECT_ARCHIVE_MAX_MEMBER_SIZE":  &c.Archive.MaxMemberSize,
		"PKGINSPECT_ARCHIVE_MAX_LISTING_SIZE": &c.Archive.MaxListingSize,
		"PKGINSPECT_TOOLS_TAR":                &c.Tools.Tar,
		"PKGINSPECT_TOOLS_JAR":                &c.Tools.Jar,
		"PKGINSPECT_TOOLS_PYTHON":             &c.Tools.Python,
		"PKGINSPECT_TOOLS_DOTNET_PKG_INFO":    &c.Tools.DotnetPkgInfo,
		"PKGINSPECT_TOOLS_TIMEOUT":            &c.Tools.Timeout,
		"PKGINSPECT_LOG_LEVEL":                &c.Log.Level,
		"PKGINSPECT_LOG_FORMAT":               &c.Log.Format,
	}
}

// LoadFromEnv applies environment variable overrides to a Config.
// Environment variables use the PKGINSPECT_ prefix followed by the
// upper-cased config path, for example:
//   - PKGINSPECT_LISTEN
//   - PKGINSPECT_STORAGE_INCOMING_DIR
//   - PKGINSPECT_ARCHIVE_LISTING
//   - PKGINSPECT_TOOLS_DOTNET_PKG_INFO
//   - PKGINSPECT_LOG_LEVEL
func (c *Config) LoadFromEnv() {
	for name, field := range c.envVars() {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.Storage.IncomingDir == "" && c.Storage.URL == "" {
		return fmt.Errorf("storage.incoming_dir or storage.url is required")
	}
	if c.ScratchDir == "" {
		return fmt.Errorf("scratch_dir is required")
	}

	switch strings.ToLower(c.Archive.Listing) {
	case "native", "tool":
		// OK
	default:
		return fmt.Errorf("invalid archive.listing %q (must be native or tool)", c.Archive.Listing)
	}

	if _, err := ParseSize(c.Archive.MaxMemberSize); err != nil {
		return fmt.Errorf("invalid archive.max_member_size: %w", err)
	}
	if _, err := ParseSize(c.Archive.MaxListingSize); err != nil {
		return fmt.Errorf("invalid archive.max_listing_size: %w", err)
	}
	if _, err := c.ToolTimeout(); err != nil {
		return fmt.Errorf("invalid tools.timeout: %w", err)
	}
	if c.Tools.DotnetPkgInfo != "" && c.Tools.Python == "" {
		return fmt.Errorf("tools.python is required when tools.dotnet_pkg_info is set")
	}

	// Validate log level
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
		// OK
	default:
		return fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", c.Log.Level)
	}

	// Validate log format
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
		// OK
	default:
		return fmt.Errorf("invalid log format %q (must be text or json)", c.Log.Format)
	}

	return nil
}

// ToolTimeout parses Tools.Timeout. Empty or "0" means no timeout.
func (c *Config) ToolTimeout() (time.Duration, error) {
	s := strings.TrimSpace(c.Tools.Timeout)
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

// ParseSize parses a human-readable size string (e.g., "10GB", "500MB").
// Returns the size in bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" || s == "0" {
		return 0, nil
	}

	// Check suffixes in order of length (longest first) to avoid partial matches
	suffixes := []struct {
		suffix string
		mult   int64
	}{
		{"TB", 1024 * 1024 * 1024 * 1024},
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"T", 1024 * 1024 * 1024 * 1024},
		{"G", 1024 * 1024 * 1024},
		{"M", 1024 * 1024},
		{"K", 1024},
		{"B", 1},
	}

	for _, s2 := range suffixes {
		if strings.HasSuffix(s, s2.suffix) {
			numStr := strings.TrimSuffix(s, s2.suffix)
			num, err := strconv.ParseFloat(numStr, 64)
			if err != nil || num < 0 {
				return 0, fmt.Errorf("invalid number %q", numStr)
			}
			return int64(num * float64(s2.mult)), nil
		}
	}

	// Try parsing as plain number (bytes)
	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil || num < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return num, nil
}
