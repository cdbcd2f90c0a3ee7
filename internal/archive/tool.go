package archive

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/git-pkgs/pkginspect/internal/metrics"
	"github.com/git-pkgs/pkginspect/internal/pathutil"
)

// tarToolReader drives the system tar binary. It is used when listings are
// configured to come from tools, and always for ".Z" archives since there
// is no Go decoder for compress(1) streams.
type tarToolReader struct {
	path        string
	compression Compression
	opts        Options
}

func (t *tarToolReader) Format() Format {
	return FormatTar
}

func (t *tarToolReader) args(mode string, extra ...string) []string {
	args := []string{mode}
	if flag := compressionFlag(t.compression); flag != "" {
		args = append(args, flag)
	}
	args = append(args, "-f", t.path)
	return append(args, extra...)
}

func (t *tarToolReader) List(ctx context.Context) ([]Entry, error) {
	out, err := runTool(ctx, t.opts, t.opts.TarPath, t.args("-t")...)
	if err != nil {
		return nil, err
	}
	return parseListing(filepath.Base(t.opts.TarPath), out)
}

func (t *tarToolReader) ExtractTo(ctx context.Context, dest string, members ...string) error {
	names, err := t.rawNames(ctx, members)
	if err != nil {
		return err
	}
	if _, err := newMaterializer(dest, t.opts.MaxMemberSize, t.opts.Logger); err != nil {
		return err
	}
	_, err = runTool(ctx, t.opts, t.opts.TarPath, t.args("-x", append([]string{"-C", dest}, names...)...)...)
	return err
}

// rawNames maps requested members to the names stored in the archive, which
// may carry a "./" prefix the caller never sees.
func (t *tarToolReader) rawNames(ctx context.Context, members []string) ([]string, error) {
	if len(members) == 0 {
		return nil, nil
	}
	entries, err := t.List(ctx)
	if err != nil {
		return nil, err
	}
	stored := make(map[string]string, len(entries))
	for _, e := range entries {
		stored[pathutil.StripDotSlash(e.Name)] = e.Name
		if strings.HasSuffix(e.Name, "/") {
			stored[pathutil.StripDotSlash(strings.TrimSuffix(e.Name, "/"))] = e.Name
		}
	}

	names := make([]string, 0, len(members))
	for _, m := range members {
		raw, ok := stored[pathutil.StripDotSlash(m)]
		if !ok {
			raw, ok = stored[strings.TrimSuffix(pathutil.StripDotSlash(m), "/")]
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, m)
		}
		names = append(names, raw)
	}
	return names, nil
}

// ReadFile stages the member in a private temporary directory, since tar
// cannot seek to a single entry.
func (t *tarToolReader) ReadFile(ctx context.Context, member string) ([]byte, error) {
	member = pathutil.StripDotSlash(member)
	if member == "" || strings.HasSuffix(member, "/") {
		return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, member)
	}

	if err := os.MkdirAll(t.opts.ScratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	dir, err := os.MkdirTemp(t.opts.ScratchDir, "read-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	if err := t.ExtractTo(ctx, dir, member); err != nil {
		return nil, err
	}
	clean, _ := pathutil.Clamp(member)
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(clean)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, member)
	}
	defer func() { _ = f.Close() }()
	return readLimited(f, t.opts.MaxMemberSize)
}

func compressionFlag(c Compression) string {
	switch c {
	case CompressionGzip:
		return "-z"
	case CompressionBzip2:
		return "-j"
	case CompressionXz:
		return "-J"
	case CompressionCompress:
		return "-Z"
	case CompressionZstd:
		return "--zstd"
	default:
		return ""
	}
}

// cappedBuffer keeps at most max bytes and remembers whether more arrived.
// It never reports a write error so the child is not killed by SIGPIPE.
type cappedBuffer struct {
	buf      bytes.Buffer
	max      int64
	overflow bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	room := c.max - int64(c.buf.Len())
	if int64(len(p)) > room {
		c.overflow = true
		if room > 0 {
			c.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return c.buf.Write(p)
}

// RunTool runs tool with args under opts' timeout, output cap and
// environment. It is the entry point for callers outside the readers.
func RunTool(ctx context.Context, opts Options, tool string, args ...string) ([]byte, error) {
	return runTool(ctx, opts.withDefaults(), tool, args...)
}

// runTool runs an external command and returns its stdout. Any failure,
// including a non-zero exit, becomes a *ToolError; an empty stdout from a
// successful run is a valid empty result.
func runTool(ctx context.Context, opts Options, tool string, args ...string) ([]byte, error) {
	if opts.ToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.ToolTimeout)
		defer cancel()
	}

	stdout := &cappedBuffer{max: opts.MaxListingSize}
	var stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Stdout = stdout
	cmd.Stderr = &stderr
	if len(opts.ToolEnv) > 0 {
		cmd.Env = append(os.Environ(), opts.ToolEnv...)
	}

	start := time.Now()
	err := cmd.Run()
	name := filepath.Base(tool)
	metrics.RecordToolRun(name, time.Since(start), err != nil || stdout.overflow)

	if err != nil {
		te := &ToolError{Tool: name, Args: args, ExitCode: -1, Stderr: strings.TrimSpace(stderr.String())}
		var exitErr *exec.ExitError
		switch {
		case ctx.Err() != nil:
			te.Err = ctx.Err()
		case errors.As(err, &exitErr):
			te.ExitCode = exitErr.ExitCode()
		default:
			te.Err = err
		}
		if opts.Logger != nil {
			opts.Logger.Warn("external tool failed", "tool", name, "exit_code", te.ExitCode, "error", te)
		}
		return nil, te
	}
	if stdout.overflow {
		return nil, &ToolError{Tool: name, Args: args, ExitCode: 0,
			Err: fmt.Errorf("%w: output over %d bytes", ErrTooLarge, opts.MaxListingSize)}
	}
	return stdout.buf.Bytes(), nil
}

// maxListingLine bounds a single name in tool output.
const maxListingLine = 1 << 20

// parseListing turns newline separated tool output into entries. A line
// longer than maxListingLine fails the whole listing.
func parseListing(tool string, out []byte) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), maxListingLine)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		entries = append(entries, Entry{Name: line})
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			err = fmt.Errorf("%w: listing line over %d bytes", ErrTooLarge, maxListingLine)
		}
		return nil, &ToolError{Tool: tool, ExitCode: 0, Err: err}
	}
	return entries, nil
}
