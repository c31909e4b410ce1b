package chunkbase

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/t7a/chunkbase/archive"
	"github.com/t7a/chunkbase/fingerprint"
	"github.com/t7a/chunkbase/manifest"
)

// Stage is the state of a merge.  A merge moves through the stages in
// order; Failed and Confirmed are terminal.
type Stage int

const (
	Start Stage = iota
	Extracted
	Verified
	Reconstructed
	Confirmed
	Failed
)

func (s Stage) String() string {
	switch s {
	case Start:
		return "start"
	case Extracted:
		return "extracted"
	case Verified:
		return "verified"
	case Reconstructed:
		return "reconstructed"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// op names the step that leads into s.  Errors raised on the way to s
// carry it in Error.Op.
func (s Stage) op() string {
	switch s {
	case Extracted:
		return "extract"
	case Verified:
		return "verify"
	case Reconstructed:
		return "reconstruct"
	case Confirmed:
		return "confirm"
	}
	return s.String()
}

// testHookOutput, when set, wraps the writer for the merge output.
var testHookOutput func(w io.Writer) io.Writer

type merger struct {
	handle string
	dir    string
	out    string
	m      *manifest.Manifest
	stage  Stage
	opts   *Options
}

// fail moves the merge to Failed and returns an error for the step
// leading to next.
func (mg *merger) fail(kind error, next Stage, path string, err error) error {
	log.Debugf("merge %s failed after %v at %s: %v", mg.handle, mg.stage, next.op(), err)
	mg.stage = Failed
	return fail(kind, next.op(), path, err)
}

// Merge reads the manifest at handle (a plain manifest or its zip
// container), checks every artifact against its recorded
// fingerprint, and only then writes the reconstructed file next to
// handle, named after the manifest's file_name.  The path of the
// output is returned.
//
// No output is created unless every artifact verifies.  If the
// finished output does not hash to the manifest's file_hash, Merge
// returns ErrIntegrity and leaves the output in place for the caller
// to inspect or delete.
func Merge(handle string, opts ...OptionFunc) (out string, err error) {
	mg := &merger{handle: handle, dir: filepath.Dir(handle), opts: newOptions(opts)}
	err = mg.extract()
	if err != nil {
		return
	}
	err = mg.verify()
	if err != nil {
		return
	}
	err = mg.reconstruct()
	if err != nil {
		return mg.out, err
	}
	err = mg.confirm()
	if err != nil {
		return mg.out, err
	}
	return mg.out, nil
}

// Verify runs the checks Merge runs before writing anything: the
// manifest at handle is decoded and validated and every artifact is
// hashed and compared.  It writes nothing.
func Verify(handle string, opts ...OptionFunc) (m *manifest.Manifest, err error) {
	mg := &merger{handle: handle, dir: filepath.Dir(handle), opts: newOptions(opts)}
	err = mg.extract()
	if err != nil {
		return
	}
	err = mg.verify()
	if err != nil {
		return
	}
	return mg.m, nil
}

// Inspect decodes and validates the manifest at handle without
// looking at any artifact.
func Inspect(handle string) (m *manifest.Manifest, err error) {
	mg := &merger{handle: handle, dir: filepath.Dir(handle), opts: newOptions(nil)}
	err = mg.extract()
	if err != nil {
		return
	}
	return mg.m, nil
}

// extract loads the manifest, unwrapping it into a transient sibling
// file first if handle is a container.
func (mg *merger) extract() (err error) {
	path := mg.handle
	if archive.IsArchive(mg.handle) {
		tmp, err := os.CreateTemp(mg.dir, "."+filepath.Base(mg.handle)+".*")
		if err != nil {
			return mg.fail(ErrIO, Extracted, mg.handle, err)
		}
		path = tmp.Name()
		defer os.Remove(path)
		_, err = archive.Unwrap(mg.handle, tmp)
		cerr := tmp.Close()
		if err != nil {
			return mg.fail(handleKind(err), Extracted, mg.handle, err)
		}
		if cerr != nil {
			return mg.fail(ErrIO, Extracted, path, cerr)
		}
	}

	mg.m, err = manifest.Load(path)
	if err != nil {
		kind := ErrIO
		switch {
		case errors.Is(err, manifest.ErrMalformed):
			kind = ErrFormat
		case os.IsNotExist(err):
			kind = ErrNotFound
		}
		return mg.fail(kind, Extracted, mg.handle, err)
	}

	mg.out = filepath.Join(mg.dir, mg.m.FileName)
	if mg.out == filepath.Join(mg.dir, filepath.Base(mg.handle)) {
		return mg.fail(ErrIO, Extracted, mg.out, errors.New("output would overwrite the manifest"))
	}
	for i := 1; i <= mg.m.ChunkCount; i++ {
		if artifact, ok := artifactPath(mg.dir, mg.m, i); ok && artifact == mg.out {
			return mg.fail(ErrIO, Extracted, mg.out, fmt.Errorf("output would overwrite chunk %d", i))
		}
	}

	mg.stage = Extracted
	log.Debugf("merge %s: %d chunks into %s", mg.handle, mg.m.ChunkCount, mg.out)
	return
}

// handleKind classifies an error from unwrapping the manifest
// container.
func handleKind(err error) error {
	cause := errors.Cause(err)
	switch {
	case os.IsNotExist(cause):
		return ErrNotFound
	case cause == archive.ErrMalformed, cause == zip.ErrFormat, cause == zip.ErrAlgorithm:
		return ErrFormat
	case cause == zip.ErrChecksum:
		return ErrIntegrity
	}
	return ErrIO
}

// verify hashes every artifact as it sits on disk and compares it to
// the manifest.
func (mg *merger) verify() (err error) {
	m := mg.m
	for i := 1; i <= m.ChunkCount; i++ {
		path, ok := artifactPath(mg.dir, m, i)
		if !ok {
			return mg.fail(ErrIntegrity, Verified, "", fmt.Errorf("chunk %d missing from manifest", i))
		}
		digest, err := fingerprint.HashFile(m.Algo, path)
		if err != nil {
			kind := ErrIO
			if os.IsNotExist(errors.Cause(err)) {
				kind = ErrIntegrity
			}
			return mg.fail(kind, Verified, path, err)
		}
		if digest != m.List[i].Hash {
			return mg.fail(ErrIntegrity, Verified, path,
				fmt.Errorf("chunk %d: expected %s got %s", i, m.List[i].Hash, digest))
		}
	}
	mg.stage = Verified
	return
}

// reconstruct writes the payloads in index order to the output.
func (mg *merger) reconstruct() (err error) {
	m := mg.m
	fh, err := os.OpenFile(mg.out, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mg.opts.FileMode)
	if err != nil {
		return mg.fail(ErrIO, Reconstructed, mg.out, err)
	}
	defer fh.Close()
	var w io.Writer = fh
	if testHookOutput != nil {
		w = testHookOutput(w)
	}

	stream := Stream{}.New(mg.dir, m)
	defer stream.Close()
	buf := make([]byte, 64*kiB)
	var total int64
	for {
		nr, rerr := stream.Read(buf)
		if nr > 0 {
			nw, werr := w.Write(buf[:nr])
			total += int64(nw)
			if nw < nr {
				if werr == nil {
					werr = io.ErrShortWrite
				}
				return mg.fail(ErrPartialWrite, Reconstructed, mg.out,
					errors.Wrapf(werr, "wrote %d of %d bytes", nw, nr))
			}
			if werr != nil {
				return mg.fail(ErrIO, Reconstructed, mg.out, werr)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			kind := ErrIO
			var e *Error
			if errors.As(rerr, &e) {
				kind = e.Kind
			}
			return mg.fail(kind, Reconstructed, mg.out, rerr)
		}
	}
	err = fh.Close()
	if err != nil {
		return mg.fail(ErrIO, Reconstructed, mg.out, err)
	}
	if total != m.FileSize {
		return mg.fail(ErrIntegrity, Reconstructed, mg.out,
			fmt.Errorf("wrote %d bytes, expected %d", total, m.FileSize))
	}
	mg.stage = Reconstructed
	return
}

// confirm hashes the finished output.  A mismatch leaves the output
// where it is.
func (mg *merger) confirm() (err error) {
	digest, err := fingerprint.HashFile(mg.m.Algo, mg.out)
	if err != nil {
		return mg.fail(ErrIO, Confirmed, mg.out, err)
	}
	if digest != mg.m.FileHash {
		return mg.fail(ErrIntegrity, Confirmed, mg.out,
			fmt.Errorf("expected %s got %s", mg.m.FileHash, digest))
	}
	mg.stage = Confirmed
	log.Debugf("merge %s confirmed %s", mg.handle, digest)
	return
}

// Remove deletes the chunk directory for fingerprint under root along
// with its lock file.
func Remove(root, fp string) (err error) {
	if !safeFingerprint(fp) {
		return failf(ErrFormat, "remove", fp, "bad fingerprint")
	}
	layout := Layout{}.New(root, fp)
	if !canstat(layout.Dir) {
		return failf(ErrNotFound, "remove", layout.Dir, "no such chunk directory")
	}
	lk, err := lock(layout.Lock, defaultOpts.FileMode)
	if err != nil {
		return fail(ErrIO, "remove", layout.Lock, err)
	}
	defer lk.Close()
	err = os.RemoveAll(layout.Dir)
	if err != nil {
		return fail(ErrIO, "remove", layout.Dir, err)
	}
	err = os.Remove(layout.Lock)
	if err != nil {
		return fail(ErrIO, "remove", layout.Lock, err)
	}
	return
}
