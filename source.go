package chunkbase

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/t7a/chunkbase/fingerprint"
)

// Source is a file assigned for splitting.  Size and Fingerprint are
// taken once, when the path is assigned, and never change afterwards.
type Source struct {
	Path        string
	Size        int64
	Fingerprint string
	Algo        string
	Exists      bool
}

// Assign stats and fingerprints the file at path using src.Algo (the
// default algorithm if empty).  A path that does not exist yields an
// absent Source, Exists false and every field but Algo zeroed, along
// with an ErrNotFound error.
func (src Source) Assign(path string) (out *Source, err error) {
	algo := src.Algo
	if algo == "" {
		algo = fingerprint.Default
	}
	absent := &Source{Algo: algo}

	if _, err = fingerprint.New(algo); err != nil {
		return absent, fail(ErrFormat, "assign", path, err)
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return absent, fail(ErrNotFound, "assign", path, err)
	}
	if err != nil {
		return absent, fail(ErrIO, "assign", path, err)
	}
	if !info.Mode().IsRegular() {
		return absent, failf(ErrIO, "assign", path, "not a regular file")
	}

	fh, err := os.Open(path)
	if err != nil {
		return absent, fail(ErrIO, "assign", path, err)
	}
	defer fh.Close()
	digest, n, err := fingerprint.HashReader(algo, fh)
	if err != nil {
		return absent, fail(ErrIO, "assign", path, err)
	}

	out = &Source{
		Path:        path,
		Size:        n,
		Fingerprint: digest,
		Algo:        algo,
		Exists:      true,
	}
	log.Debugf("assigned %s size %d %s %s", path, n, algo, digest)
	return out, nil
}

// Name returns the base name of the source path.
func (src *Source) Name() string {
	return filepath.Base(src.Path)
}
