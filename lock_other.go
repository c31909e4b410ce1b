//go:build !unix

package chunkbase

import (
	"os"
	"sync"
)

// without flock, splits are serialized within this process only
var lockMu sync.Mutex

type lockFile struct {
	*os.File
}

func (l lockFile) Close() error {
	defer lockMu.Unlock()
	return l.File.Close()
}

func lock(path string, perm os.FileMode) (fh lockFile, err error) {
	lockMu.Lock()
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, perm)
	if err != nil {
		lockMu.Unlock()
		return
	}
	return lockFile{f}, nil
}
