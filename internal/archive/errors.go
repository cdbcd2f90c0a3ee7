package archive

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnreadable is returned when the backing file is missing, corrupt or
	// cannot be decoded. An unreadable archive is never reported as empty.
	ErrUnreadable = errors.New("archive unreadable")

	// ErrMemberNotFound is returned when a requested member is not present.
	ErrMemberNotFound = errors.New("archive member not found")

	// ErrInvalidFilter is returned for a malformed "/regexp/" filter.
	ErrInvalidFilter = errors.New("invalid filter pattern")

	// ErrToolFailed is matched by every *ToolError.
	ErrToolFailed = errors.New("external tool failed")

	// ErrTooLarge is returned when a member or tool output exceeds the
	// configured limits.
	ErrTooLarge = errors.New("size limit exceeded")
)

// Error records a failed archive operation and the file it was run against.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("archive %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ToolError describes an external listing or extraction command that
// exited unsuccessfully. A failed run is distinct from an empty listing.
type ToolError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := e.Tool + " " + strings.Join(e.Args, " ")
	if e.ExitCode >= 0 {
		msg += fmt.Sprintf(": exit status %d", e.ExitCode)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Is reports ErrToolFailed for any tool error.
func (e *ToolError) Is(target error) bool {
	return target == ErrToolFailed
}

// unreadable wraps a decoding or open failure so it matches ErrUnreadable
// while keeping the original cause available to errors.Is.
func unreadable(op, path string, cause error) error {
	if errors.Is(cause, ErrToolFailed) || errors.Is(cause, ErrUnreadable) {
		return &Error{Op: op, Path: path, Err: cause}
	}
	return &Error{Op: op, Path: path, Err: fmt.Errorf("%w: %w", ErrUnreadable, cause)}
}
