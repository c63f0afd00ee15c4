package backup

import (
	"context"
	"errors"

	"github.com/imedwei/arr-backup/internal/archive"
	"github.com/imedwei/arr-backup/internal/arr"
	"github.com/imedwei/arr-backup/internal/config"
)

var (
	// ErrPrecondition is wrapped when the local directories are not ready
	// for a run.
	ErrPrecondition = errors.New("precondition failed")

	// ErrTimeout is returned when no fresh manual backup appeared before the
	// polling deadline.
	ErrTimeout = errors.New("backup creation timed out")

	// ErrOffsite is wrapped when copying the archive to offsite storage fails.
	ErrOffsite = errors.New("offsite copy failed")
)

// Classify maps an error returned by a run to a short label for operators.
func Classify(err error) string {
	var (
		transportErr *arr.TransportError
		serverErr    *arr.ServerError
		decodeErr    *arr.DecodeError
		unsafeErr    *archive.UnsafePathError
		symlinkErr   *archive.SymlinkError
		ioErr        *archive.IOError
	)

	switch {
	case err == nil:
		return ""
	case errors.Is(err, config.ErrInvalidConfig):
		return "config"
	case errors.Is(err, ErrPrecondition):
		return "precondition"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.As(err, &transportErr):
		return "transport"
	case errors.As(err, &serverErr):
		return "server"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.As(err, &unsafeErr):
		return "unsafe_path"
	case errors.As(err, &symlinkErr):
		return "symlink"
	case errors.As(err, &ioErr):
		return "io"
	case errors.Is(err, ErrOffsite):
		return "storage"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "unknown"
	}
}
