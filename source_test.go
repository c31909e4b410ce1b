package chunkbase

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/pkg/errors"
	"github.com/t7a/chunkbase/fingerprint"
)

func TestAssign(t *testing.T) {
	dir, _ := setup(t)
	fn := filepath.Join(dir, "somefile")
	err := os.WriteFile(fn, []byte("somevalue"), 0644)
	tassert(t, err == nil, "%v", err)

	src, err := Source{Algo: fingerprint.SHA256}.Assign(fn)
	tassert(t, err == nil, "%v", err)
	tassert(t, src.Exists, "not marked existing")
	tassert(t, src.Size == 9, "size %d", src.Size)
	expect := "70a524688ced8e45d26776fd4dc56410725b566cd840c044546ab30c4b499342"
	tassert(t, src.Fingerprint == expect, "expected %q got %q", expect, src.Fingerprint)
	tassert(t, src.Name() == "somefile", "name %q", src.Name())

	// default algorithm
	src, err = Source{}.Assign(fn)
	tassert(t, err == nil, "%v", err)
	tassert(t, src.Algo == fingerprint.Blake3, "algo %q", src.Algo)
	digest, err := fingerprint.HashFile(fingerprint.Blake3, fn)
	tassert(t, err == nil, "%v", err)
	tassert(t, src.Fingerprint == digest, "expected %q got %q", digest, src.Fingerprint)
}

func TestAssignMissing(t *testing.T) {
	dir, _ := setup(t)
	src, err := Source{Algo: fingerprint.SHA512}.Assign(filepath.Join(dir, "nope"))
	tassert(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)
	tassert(t, src != nil, "absent source is nil")
	tassert(t, *src == Source{Algo: fingerprint.SHA512}, "absent source not reset: %#v", src)
}

func TestAssignBad(t *testing.T) {
	dir, _ := setup(t)

	_, err := Source{}.Assign(dir)
	tassert(t, errors.Is(err, ErrIO), "directory: expected ErrIO, got %v", err)

	fn := mkfile(t, dir, "f", 10, 1)
	src, err := Source{Algo: "md5"}.Assign(fn)
	tassert(t, errors.Is(err, ErrFormat), "unknown algo: expected ErrFormat, got %v", err)
	tassert(t, errors.Is(err, syscall.ENOSYS), "unknown algo: expected ENOSYS, got %v", err)
	tassert(t, !src.Exists, "source with unknown algo marked existing")
}
