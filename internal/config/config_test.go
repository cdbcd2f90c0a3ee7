package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Listen != ":8080" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, ":8080")
	}
	if cfg.Storage.IncomingDir == "" {
		t.Error("Storage.IncomingDir should not be empty")
	}
	if cfg.ScratchDir == "" {
		t.Error("ScratchDir should not be empty")
	}
	if cfg.Archive.Listing != "native" {
		t.Errorf("Archive.Listing = %q, want native", cfg.Archive.Listing)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config is invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "empty listen",
			modify:  func(c *Config) { c.Listen = "" },
			wantErr: true,
		},
		{
			name:    "no package source",
			modify:  func(c *Config) { c.Storage.IncomingDir = "" },
			wantErr: true,
		},
		{
			name:    "blob store only",
			modify:  func(c *Config) { c.Storage.IncomingDir = ""; c.Storage.URL = "file:///srv/packages" },
			wantErr: false,
		},
		{
			name:    "empty scratch dir",
			modify:  func(c *Config) { c.ScratchDir = "" },
			wantErr: true,
		},
		{
			name:    "tool listing",
			modify:  func(c *Config) { c.Archive.Listing = "tool" },
			wantErr: false,
		},
		{
			name:    "invalid listing",
			modify:  func(c *Config) { c.Archive.Listing = "magic" },
			wantErr: true,
		},
		{
			name:    "invalid max member size",
			modify:  func(c *Config) { c.Archive.MaxMemberSize = "lots" },
			wantErr: true,
		},
		{
			name:    "valid max member size",
			modify:  func(c *Config) { c.Archive.MaxMemberSize = "512MB" },
			wantErr: false,
		},
		{
			name:    "invalid timeout",
			modify:  func(c *Config) { c.Tools.Timeout = "soon" },
			wantErr: true,
		},
		{
			name:    "negative timeout",
			modify:  func(c *Config) { c.Tools.Timeout = "-1s" },
			wantErr: true,
		},
		{
			name:    "dotnet tool without python",
			modify:  func(c *Config) { c.Tools.DotnetPkgInfo = "/opt/dotnet_pkg_info"; c.Tools.Python = "" },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.Log.Level = "invalid" },
			wantErr: true,
		},
		{
			name:    "invalid log format",
			modify:  func(c *Config) { c.Log.Format = "invalid" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestToolTimeout(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"", 0},
		{"0", 0},
		{"90s", 90 * time.Second},
		{"2m", 2 * time.Minute},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.Tools.Timeout = tt.input
		got, err := cfg.ToolTimeout()
		if err != nil {
			t.Errorf("ToolTimeout(%q) error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ToolTimeout(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"0", 0, false},
		{"100", 100, false},
		{"1KB", 1024, false},
		{"1K", 1024, false},
		{"1MB", 1024 * 1024, false},
		{"1M", 1024 * 1024, false},
		{"64mb", 64 * 1024 * 1024, false},
		{"1GB", 1024 * 1024 * 1024, false},
		{"1.5GB", int64(1.5 * 1024 * 1024 * 1024), false},
		{"1TB", 1024 * 1024 * 1024 * 1024, false},
		{"invalid", 0, true},
		{"10XB", 0, true},
		{"-5MB", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseSize(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
listen: ":3000"
storage:
  incoming_dir: "/srv/incoming"
  url: "s3://packages?region=eu-west-1"
scratch_dir: "/var/tmp/pkginspect"
archive:
  listing: "tool"
  max_member_size: "256MB"
tools:
  python: "/usr/bin/python3"
  dotnet_pkg_info: "/opt/tools/dotnet_pkg_info"
  timeout: "2m"
log:
  level: "debug"
  format: "json"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen != ":3000" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, ":3000")
	}
	if cfg.Storage.IncomingDir != "/srv/incoming" {
		t.Errorf("Storage.IncomingDir = %q", cfg.Storage.IncomingDir)
	}
	if cfg.Storage.URL != "s3://packages?region=eu-west-1" {
		t.Errorf("Storage.URL = %q", cfg.Storage.URL)
	}
	if cfg.ScratchDir != "/var/tmp/pkginspect" {
		t.Errorf("ScratchDir = %q", cfg.ScratchDir)
	}
	if cfg.Archive.Listing != "tool" {
		t.Errorf("Archive.Listing = %q, want tool", cfg.Archive.Listing)
	}
	if cfg.Archive.MaxListingSize != "64MB" {
		t.Errorf("Archive.MaxListingSize = %q, want the default 64MB", cfg.Archive.MaxListingSize)
	}
	if cfg.Tools.DotnetPkgInfo != "/opt/tools/dotnet_pkg_info" {
		t.Errorf("Tools.DotnetPkgInfo = %q", cfg.Tools.DotnetPkgInfo)
	}
	if cfg.Tools.Tar != "tar" {
		t.Errorf("Tools.Tar = %q, want the default tar", cfg.Tools.Tar)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	content := `{
		"listen": ":4000",
		"tools": {"timeout": "30s"}
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen != ":4000" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, ":4000")
	}
	if d, _ := cfg.ToolTimeout(); d != 30*time.Second {
		t.Errorf("ToolTimeout = %v, want 30s", d)
	}
}

func TestLoadFromEnv(t *testing.T) {
	cfg := Default()

	t.Setenv("PKGINSPECT_LISTEN", ":9000")
	t.Setenv("PKGINSPECT_STORAGE_INCOMING_DIR", "/env/incoming")
	t.Setenv("PKGINSPECT_ARCHIVE_LISTING", "tool")
	t.Setenv("PKGINSPECT_TOOLS_DOTNET_PKG_INFO", "/env/dotnet_pkg_info")
	t.Setenv("PKGINSPECT_LOG_LEVEL", "debug")

	cfg.LoadFromEnv()

	if cfg.Listen != ":9000" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, ":9000")
	}
	if cfg.Storage.IncomingDir != "/env/incoming" {
		t.Errorf("Storage.IncomingDir = %q, want %q", cfg.Storage.IncomingDir, "/env/incoming")
	}
	if cfg.Archive.Listing != "tool" {
		t.Errorf("Archive.Listing = %q, want tool", cfg.Archive.Listing)
	}
	if cfg.Tools.DotnetPkgInfo != "/env/dotnet_pkg_info" {
		t.Errorf("Tools.DotnetPkgInfo = %q", cfg.Tools.DotnetPkgInfo)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Tools.Python != "python3" {
		t.Errorf("unset variable changed Tools.Python to %q", cfg.Tools.Python)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}
