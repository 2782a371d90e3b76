// Package errkind defines the error taxonomy of spec.md §7. Internal
// packages return and wrap these sentinels with fmt.Errorf/%w; they are
// translated to POSIX errno values at a single seam, internal/fsfrontend's
// toErrno, and fsfrontend is the only internal package that imports syscall.
package errkind

import "errors"

var (
	// ErrInvalid is an invalid path or bad operation argument.
	ErrInvalid = errors.New("invalid path or operation")
	// ErrNotFound is a missing path or item.
	ErrNotFound = errors.New("not found")
	// ErrNotDir means a directory was expected but the target is a file.
	ErrNotDir = errors.New("not a directory")
	// ErrIsDir means a file was expected but the target is a directory.
	ErrIsDir = errors.New("is a directory")
	// ErrPermission is a write attempt or other disallowed operation.
	ErrPermission = errors.New("operation not permitted")
	// ErrReadOnly is specifically a write/read-write open on a read-only fs.
	ErrReadOnly = errors.New("filesystem is read-only")
	// ErrExist means the target already exists.
	ErrExist = errors.New("already exists")
	// ErrBadHandle is an unknown or stale file handle.
	ErrBadHandle = errors.New("bad file handle")
	// ErrIO is a transport failure surfaced after retry exhaustion, or a
	// muxer failure.
	ErrIO = errors.New("i/o error")
)
