package chunkbase

import (
	"encoding/hex"
	"fmt"
	"hash"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/t7a/chunkbase/fingerprint"
)

// Artifact is a write-once file that fingerprints its content as it
// is written.  Hash and Size are valid after Close.
type Artifact struct {
	Path string
	Algo string
	Hash string
	Size int64
	fh   *os.File
	hash hash.Hash
}

// CreateArtifact creates a new file at path.  The file must not exist
// yet.
func CreateArtifact(path, algo string, perm os.FileMode) (file *Artifact, err error) {
	h, err := fingerprint.New(algo)
	if err != nil {
		return
	}
	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return
	}
	file = &Artifact{Path: path, Algo: algo, fh: fh, hash: h}
	return
}

// Write appends data to the file and feeds what was written into the
// hash.  Supports the io.Writer interface.
func (file *Artifact) Write(data []byte) (n int, err error) {
	if file.fh == nil {
		err = fmt.Errorf("cannot write to closed artifact: %s", file.Path)
		return
	}
	n, err = file.fh.Write(data)
	// hash only what actually reached the file
	file.hash.Write(data[:n])
	file.Size += int64(n)
	return
}

// Close closes the file and finishes the hash.
func (file *Artifact) Close() (err error) {
	if file.fh == nil {
		return
	}
	err = file.fh.Close()
	file.fh = nil
	if err != nil {
		return
	}
	file.Hash = hex.EncodeToString(file.hash.Sum(nil))
	log.Debugf("artifact %s size %d %s", file.Path, file.Size, file.Hash)
	return
}
