//go:build unix

package chunkbase

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// lock takes an exclusive flock on the file at path, creating it if
// needed, and blocks until the lock is granted.  Closing the returned
// file releases the lock.
//
// A holder may unlink the lock file before releasing it (see Remove).
// A waiter that then wins the flock holds a lock on a file nobody else
// can reach, so after every grant the locked file is compared with
// what path names now, and the lock is taken again if they differ.
func lock(path string, perm os.FileMode) (fh *os.File, err error) {
	for {
		fh, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, perm)
		if err != nil {
			return
		}
		err = unix.Flock(int(fh.Fd()), unix.LOCK_EX)
		if err != nil {
			fh.Close()
			return nil, errors.Wrapf(err, "flock %s", path)
		}
		held, err := fh.Stat()
		if err != nil {
			fh.Close()
			return nil, errors.Wrapf(err, "stat %s", path)
		}
		named, err := os.Stat(path)
		if err == nil && os.SameFile(held, named) {
			return fh, nil
		}
		fh.Close()
		if err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "stat %s", path)
		}
	}
}
