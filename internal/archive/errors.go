package archive

import (
	"fmt"
)

// UnsafePathError is returned for an entry whose path could land outside the
// destination directory.
type UnsafePathError struct {
	Name   string
	Reason string
}

func (e *UnsafePathError) Error() string {
	return fmt.Sprintf("unsafe archive path %q: %s", e.Name, e.Reason)
}

// SymlinkError is returned when an extraction target, or a directory on the
// way to it, already exists as a symbolic link. It aborts the extraction.
type SymlinkError struct {
	Path string
}

func (e *SymlinkError) Error() string {
	return fmt.Sprintf("symlink encountered at %s", e.Path)
}

// IOError wraps a local filesystem failure during extraction.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
