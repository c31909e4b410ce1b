package chunkbase

import (
	"fmt"

	"github.com/pkg/errors"
)

// error kinds
var (
	// ErrNotFound means the source path does not exist.
	ErrNotFound = errors.New("not found")
	// ErrIO means a file could not be read, written, or created.
	ErrIO = errors.New("i/o failure")
	// ErrFormat means a manifest could not be parsed or is not
	// internally consistent.
	ErrFormat = errors.New("bad manifest")
	// ErrIntegrity means a fingerprint or size did not match.
	ErrIntegrity = errors.New("integrity check failed")
	// ErrPartialWrite means a write did not complete.
	ErrPartialWrite = errors.New("partial write")
)

// Error is returned by every failing operation in this package.  It
// matches its Kind with errors.Is and unwraps to the underlying cause.
type Error struct {
	Kind error  // one of the Err* kinds above
	Op   string // operation or merge stage that failed
	Path string // file involved, if any
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func fail(kind error, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// failf is fail with a formatted cause.
func failf(kind error, op, path string, format string, args ...interface{}) *Error {
	return fail(kind, op, path, fmt.Errorf(format, args...))
}
