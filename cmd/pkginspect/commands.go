package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/git-pkgs/pkginspect/internal/buildsys"
	"github.com/git-pkgs/pkginspect/internal/inspect"
)

// Exit codes follow grep: 1 is a negative answer, 2 is a failure.
const (
	exitOK       = 0
	exitNegative = 1
	exitError    = 2
)

// errNegative reports a negative answer that needs no message, such as a
// file that is not contained or a failed check.
var errNegative = errors.New("negative result")

// command is a one-shot inspection of a single package.
type command struct {
	args    string
	summary string
	minArgs int
	maxArgs int // -1 for no limit
	run     func(ctx context.Context, svc *inspect.Service, req inspect.Request, args []string, out *output) error
}

var commands = map[string]*command{
	"list": {
		args: "<package>", summary: "List member names", minArgs: 1, maxArgs: 1,
		run: func(ctx context.Context, svc *inspect.Service, req inspect.Request, _ []string, out *output) error {
			names, err := svc.Listing(ctx, req)
			if err != nil {
				return err
			}
			return out.lines(names)
		},
	},
	"tree": {
		args: "<package>", summary: "Print the file tree as JSON", minArgs: 1, maxArgs: 1,
		run: func(ctx context.Context, svc *inspect.Service, req inspect.Request, _ []string, out *output) error {
			tree, err := svc.FileInfoTree(ctx, req)
			if err != nil {
				return err
			}
			return out.json(tree)
		},
	},
	"dirs": {
		args: "<package>", summary: "List directories", minArgs: 1, maxArgs: 1,
		run: func(ctx context.Context, svc *inspect.Service, req inspect.Request, _ []string, out *output) error {
			entries, err := svc.DirectoryInfoList(ctx, req)
			if err != nil {
				return err
			}
			if out.asJSON {
				return out.json(entries)
			}
			names := make([]string, len(entries))
			for i, e := range entries {
				names[i] = e.Name
			}
			return out.lines(names)
		},
	},
	"contains": {
		args: "<package> <filename>", summary: "Report whether a file exists in -dir", minArgs: 2, maxArgs: 2,
		run: func(ctx context.Context, svc *inspect.Service, req inspect.Request, args []string, out *output) error {
			req.Filename = args[1]
			found, err := svc.Contains(ctx, req)
			if err != nil {
				return err
			}
			if err := out.value(found); err != nil {
				return err
			}
			if !found {
				return errNegative
			}
			return nil
		},
	},
	"search": {
		args: "<package> <candidate>...", summary: "Find the shallowest file named like a candidate", minArgs: 2, maxArgs: -1,
		run: func(ctx context.Context, svc *inspect.Service, req inspect.Request, args []string, out *output) error {
			req.Candidates = args[1:]
			name, found, err := svc.Search(ctx, req)
			if err != nil {
				return err
			}
			if !found {
				return errNegative
			}
			return out.value(name)
		},
	},
	"types": {
		args: "<package>", summary: "Count file extensions", minArgs: 1, maxArgs: 1,
		run: func(ctx context.Context, svc *inspect.Service, req inspect.Request, _ []string, out *output) error {
			types, err := svc.FileTypes(ctx, req)
			if err != nil {
				return err
			}
			if out.asJSON {
				return out.json(types)
			}
			exts := make([]string, 0, len(types))
			for ext := range types {
				exts = append(exts, ext)
			}
			slices.Sort(exts)
			for _, ext := range exts {
				label := ext
				if label == "" {
					label = "(none)"
				}
				if _, err := fmt.Fprintf(out.w, "%s\t%d\n", label, types[ext]); err != nil {
					return err
				}
			}
			return nil
		},
	},
	"root": {
		args: "<package>", summary: "Print the common top-level directory", minArgs: 1, maxArgs: 1,
		run: func(ctx context.Context, svc *inspect.Service, req inspect.Request, _ []string, out *output) error {
			root, err := svc.Root(ctx, req)
			if err != nil {
				return err
			}
			return out.value(root)
		},
	},
	"detect": {
		args: "<package>", summary: "Detect the build system and print the build info", minArgs: 1, maxArgs: 1,
		run: func(ctx context.Context, svc *inspect.Service, req inspect.Request, _ []string, out *output) error {
			info, err := svc.BuildInfo(ctx, req)
			if err != nil {
				return err
			}
			return out.json(info)
		},
	},
	"check": {
		args: "<package>", summary: "Check a package against -build-system", minArgs: 1, maxArgs: 1,
		run: func(ctx context.Context, svc *inspect.Service, req inspect.Request, _ []string, out *output) error {
			res, err := svc.CheckBuildSystem(ctx, req)
			if err != nil {
				return err
			}
			if out.asJSON {
				err = out.json(res)
			} else {
				err = out.value(res.Message)
			}
			if err != nil {
				return err
			}
			if !res.OK {
				return errNegative
			}
			return nil
		},
	},
	"extract": {
		args: "<package> <dest>", summary: "Extract the archive (or -dir) into a new directory", minArgs: 2, maxArgs: 2,
		run: func(ctx context.Context, svc *inspect.Service, req inspect.Request, args []string, _ *output) error {
			return svc.Extract(ctx, req, args[1])
		},
	},
	"wheel": {
		args: "<package>", summary: "Print a wheel's WHEEL and METADATA", minArgs: 1, maxArgs: 1,
		run: func(ctx context.Context, svc *inspect.Service, req inspect.Request, _ []string, out *output) error {
			info, err := svc.WheelInfo(ctx, req)
			if err != nil {
				return err
			}
			return out.json(info)
		},
	},
	"gem": {
		args: "<package>", summary: "Print a gem's specification or Gemfile", minArgs: 1, maxArgs: 1,
		run: func(ctx context.Context, svc *inspect.Service, req inspect.Request, _ []string, out *output) error {
			info, err := svc.GemInfo(ctx, req)
			if err != nil {
				return err
			}
			return out.json(info)
		},
	},
}

// runCommand parses args for cmd, runs it and returns the exit code.
func runCommand(name string, args []string, stdout io.Writer) int {
	cmd := commands[name]

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file (YAML or JSON)")
	kind := fs.String("kind", string(buildsys.KindC), "Package kind or numeric package type")
	sourcePath := fs.String("source-path", "", "Directory inside the archive holding the sources")
	buildDir := fs.String("build-dir", "", "Recorded build directory, relative to -source-path")
	buildFile := fs.String("build-file", "", "Recorded build file")
	configDir := fs.String("config-dir", "", "Recorded configure directory, relative to -source-path")
	buildSystem := fs.String("build-system", "", "Recorded build system")
	dirname := fs.String("dir", "", "Directory inside the archive to look in")
	filter := fs.String("filter", "", "Name filter; /regex/flags matches basenames")
	recursive := fs.Bool("recursive", false, "Descend into subdirectories")
	asJSON := fs.Bool("json", false, "Print results as JSON")
	scratch := fs.String("scratch", "", "Parent directory for extraction scratch space")
	listing := fs.String("listing", "", "Listing mode: native or tool")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "%s\n\n", cmd.summary)
		fmt.Fprintf(fs.Output(), "Usage: pkginspect %s [flags] %s\n\n", name, cmd.args)
		fmt.Fprintf(fs.Output(), "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitError
	}
	rest := fs.Args()
	if len(rest) < cmd.minArgs || (cmd.maxArgs >= 0 && len(rest) > cmd.maxArgs) {
		fs.Usage()
		return exitError
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		return exitError
	}
	cfg.LoadFromEnv()
	if *scratch != "" {
		cfg.ScratchDir = *scratch
	}
	if *listing != "" {
		cfg.Archive.Listing = *listing
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return exitError
	}

	k, err := buildsys.LookupKind(*kind)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitError
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, closeStore, err := newService(ctx, cfg, logger, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitError
	}
	defer func() { _ = closeStore() }()

	req := inspect.Request{
		Kind: k,
		Attributes: buildsys.Attributes{
			PackagePath: localPackagePath(rest[0]),
			SourcePath:  *sourcePath,
			BuildDir:    *buildDir,
			BuildFile:   *buildFile,
			ConfigDir:   *configDir,
			BuildSystem: *buildSystem,
		},
		Dirname:   *dirname,
		Filter:    *filter,
		Recursive: *recursive,
	}

	err = cmd.run(ctx, svc, req, rest, &output{w: stdout, asJSON: *asJSON})
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errNegative):
		return exitNegative
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitError
	}
}

// localPackagePath makes an existing local file absolute so it is read in
// place. Anything else is passed on as a storage key.
func localPackagePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	if info, err := os.Stat(p); err == nil && !info.IsDir() {
		if abs, err := filepath.Abs(p); err == nil {
			return abs
		}
	}
	return p
}

type output struct {
	w      io.Writer
	asJSON bool
}

func (o *output) json(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o *output) lines(names []string) error {
	if o.asJSON {
		if names == nil {
			names = []string{}
		}
		return o.json(names)
	}
	for _, n := range names {
		if _, err := fmt.Fprintln(o.w, n); err != nil {
			return err
		}
	}
	return nil
}

func (o *output) value(v any) error {
	if o.asJSON {
		return o.json(v)
	}
	_, err := fmt.Fprintln(o.w, v)
	return err
}
