// Command pkginspect inspects package archives and infers how to build them.
//
// It runs either as an HTTP service answering inspection requests for a
// package store, or as a one-shot command against a single archive.
//
// Usage:
//
//	pkginspect [command] [flags] <package> [args]
//
// Commands:
//
//	serve     Start the HTTP inspection API (default if no command given)
//	list      List member names
//	tree      Print the file tree as JSON
//	dirs      List directories
//	contains  Report whether a file exists in a directory
//	search    Find the shallowest file named like one of the candidates
//	types     Count file extensions
//	root      Print the archive's common top-level directory
//	detect    Detect the build system and print the build info
//	check     Check a package against its recorded build system
//	extract   Extract the archive into a new directory
//	wheel     Print a Python wheel's WHEEL and METADATA
//	gem       Print a Ruby gem's specification or Gemfile
//
// Global Flags:
//
//	-version
//	      Print version and exit
//
// Environment Variables:
//
//	PKGINSPECT_LISTEN                - Listen address
//	PKGINSPECT_STORAGE_URL           - Blob store for packages not found locally
//	PKGINSPECT_STORAGE_INCOMING_DIR  - Directory package paths are relative to
//	PKGINSPECT_SCRATCH_DIR           - Parent of extraction directories
//	PKGINSPECT_ARCHIVE_LISTING       - Listing mode: native or tool
//	PKGINSPECT_TOOLS_TIMEOUT         - Timeout for tools and requests
//	PKGINSPECT_LOG_LEVEL             - Log level
//	PKGINSPECT_LOG_FORMAT            - Log format
//
// Example:
//
//	# Serve packages uploaded to /srv/incoming
//	pkginspect serve -incoming /srv/incoming
//
//	# Detect the build system of a local tarball
//	pkginspect detect -kind c ./zlib-1.3.tar.gz
//
//	# Look for a build file anywhere below the root
//	pkginspect search ./app.zip pom.xml build.gradle
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/git-pkgs/pkginspect/internal/archive"
	"github.com/git-pkgs/pkginspect/internal/config"
	"github.com/git-pkgs/pkginspect/internal/inspect"
	"github.com/git-pkgs/pkginspect/internal/server"
	"github.com/git-pkgs/pkginspect/internal/storage"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Commit is set at build time.
	Commit = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		name := os.Args[1]
		switch name {
		case "serve":
			runServe(os.Args[2:])
			return
		case "-version", "--version":
			fmt.Printf("pkginspect %s (%s)\n", Version, Commit)
			os.Exit(0)
		case "-h", "-help", "--help", "help":
			printUsage()
			os.Exit(0)
		}
		if _, ok := commands[name]; ok {
			os.Exit(runCommand(name, os.Args[2:], os.Stdout))
		}
		if !strings.HasPrefix(name, "-") {
			fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
			printUsage()
			os.Exit(2)
		}
	}

	// Default to serve
	runServe(os.Args[1:])
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `pkginspect - Package archive inspection and build system detection

Usage: pkginspect [command] [flags] <package> [args]

Commands:
  serve     Start the HTTP inspection API (default)
  list      List member names
  tree      Print the file tree as JSON
  dirs      List directories
  contains  Report whether a file exists in a directory
  search    Find the shallowest file named like one of the candidates
  types     Count file extensions
  root      Print the archive's common top-level directory
  detect    Detect the build system and print the build info
  check     Check a package against its recorded build system
  extract   Extract the archive into a new directory
  wheel     Print a Python wheel's WHEEL and METADATA
  gem       Print a Ruby gem's specification or Gemfile

Run 'pkginspect <command> -help' for more information on a command.

Global Flags:
  -version   Print version and exit
  -help      Show this help message
`)
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (YAML or JSON)")
	listen := fs.String("listen", "", "Address to listen on")
	incoming := fs.String("incoming", "", "Directory package paths are relative to")
	storageURL := fs.String("storage-url", "", "Blob store URL for packages not found locally (file:// or s3://)")
	scratch := fs.String("scratch", "", "Parent directory for extraction scratch space")
	listing := fs.String("listing", "", "Listing mode: native or tool")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "", "Log format: text, json")
	version := fs.Bool("version", false, "Print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "pkginspect - Package archive inspection API\n\n")
		fmt.Fprintf(os.Stderr, "Usage: pkginspect serve [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  PKGINSPECT_LISTEN                Listen address\n")
		fmt.Fprintf(os.Stderr, "  PKGINSPECT_STORAGE_URL           Blob store URL\n")
		fmt.Fprintf(os.Stderr, "  PKGINSPECT_STORAGE_INCOMING_DIR  Incoming package directory\n")
		fmt.Fprintf(os.Stderr, "  PKGINSPECT_SCRATCH_DIR           Scratch directory\n")
		fmt.Fprintf(os.Stderr, "  PKGINSPECT_LOG_LEVEL             Log level\n")
		fmt.Fprintf(os.Stderr, "  PKGINSPECT_LOG_FORMAT            Log format\n")
	}

	_ = fs.Parse(args)

	if *version {
		fmt.Printf("pkginspect %s (%s)\n", Version, Commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	// Apply environment variables
	cfg.LoadFromEnv()

	// Apply command line flags (highest priority)
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *incoming != "" {
		cfg.Storage.IncomingDir = *incoming
	}
	if *storageURL != "" {
		cfg.Storage.URL = *storageURL
	}
	if *scratch != "" {
		cfg.ScratchDir = *scratch
	}
	if *listing != "" {
		cfg.Archive.Listing = *listing
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The API only accepts storage keys, never absolute paths.
	svc, closeStore, err := newService(ctx, cfg, logger, false)
	if err != nil {
		logger.Error("failed to create inspection service", "error", err)
		os.Exit(1)
	}
	defer func() { _ = closeStore() }()

	srv := server.New(cfg, svc, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// newService builds the inspection service from cfg. The returned close
// function releases the blob store, if one is configured.
func newService(ctx context.Context, cfg *config.Config, logger *slog.Logger, allowAbsolute bool) (*inspect.Service, func() error, error) {
	timeout, err := cfg.ToolTimeout()
	if err != nil {
		return nil, nil, fmt.Errorf("tool timeout: %w", err)
	}
	maxMember, err := config.ParseSize(cfg.Archive.MaxMemberSize)
	if err != nil {
		return nil, nil, fmt.Errorf("max_member_size: %w", err)
	}
	maxListing, err := config.ParseSize(cfg.Archive.MaxListingSize)
	if err != nil {
		return nil, nil, fmt.Errorf("max_listing_size: %w", err)
	}

	incoming, err := storage.OpenFilesystem(cfg.Storage.IncomingDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening incoming directory: %w", err)
	}

	ropts := storage.ResolverOptions{
		Incoming:      incoming,
		StagingDir:    cfg.ScratchDir,
		AllowAbsolute: allowAbsolute,
		Logger:        logger,
	}
	closeStore := func() error { return nil }
	if cfg.Storage.URL != "" {
		bucket, err := storage.OpenBucket(ctx, cfg.Storage.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("opening storage: %w", err)
		}
		ropts.Remote = bucket
		closeStore = bucket.Close
	}

	svc := inspect.New(inspect.Options{
		Archive: archive.Options{
			Listing:        archive.ListingMode(cfg.Archive.Listing),
			TarPath:        cfg.Tools.Tar,
			JarPath:        cfg.Tools.Jar,
			ToolTimeout:    timeout,
			MaxMemberSize:  maxMember,
			MaxListingSize: maxListing,
			ScratchDir:     cfg.ScratchDir,
			Logger:         logger,
		},
		Resolver:      storage.NewResolver(ropts),
		Python:        cfg.Tools.Python,
		DotnetPkgInfo: cfg.Tools.DotnetPkgInfo,
		Timeout:       timeout,
		Logger:        logger,
	})
	return svc, closeStore, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.Default(), nil
}

func setupLogger(level, format string) *slog.Logger {
	return newLogger(os.Stderr, level, format)
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(level),
	}

	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
