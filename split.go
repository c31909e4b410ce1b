package chunkbase

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/t7a/chunkbase/archive"
	"github.com/t7a/chunkbase/fingerprint"
	"github.com/t7a/chunkbase/manifest"
)

// Result describes a successful split.
type Result struct {
	Manifest *manifest.Manifest
	Dir      string // chunk directory
	Handle   string // manifest path, or its container when compressed
}

// testHookChunk, when set, wraps the writer for each chunk artifact.
var testHookChunk func(index int, w io.Writer) io.Writer

// Split cuts src into chunks of spec.Size() bytes and stores them,
// with a manifest, in root/<src.Fingerprint>.  With compress set,
// every chunk and the manifest itself are stored as zip containers.
//
// Split is all or nothing: the chunks and manifest are built in a
// temporary directory beside the chunk directory and renamed into
// place only once complete, so a failed split leaves whatever was
// there before.  Splits of the same content are serialized by a lock
// file next to the chunk directory; a successful split replaces the
// chunk directory and everything in it.  A source that lies inside
// its own chunk directory, such as a file Merge wrote there, is
// refused with ErrIO.
func Split(src *Source, spec ChunkSpec, root string, compress bool, opts ...OptionFunc) (res *Result, err error) {
	o := newOptions(opts)
	size := spec.Size()

	if src == nil || !src.Exists {
		path := ""
		if src != nil {
			path = src.Path
		}
		return nil, failf(ErrNotFound, "split", path, "source not assigned")
	}
	if root == "" {
		return nil, failf(ErrIO, "split", src.Path, "no storage root")
	}
	if !safeFingerprint(src.Fingerprint) {
		return nil, failf(ErrFormat, "split", src.Path, "bad fingerprint %q", src.Fingerprint)
	}
	layout := Layout{}.New(root, src.Fingerprint)
	log.Debugf("split %s into %s, chunk size %d (requested %v), compress %v",
		src.Path, layout.Dir, size, spec, compress)

	err = mkdir(root, o.DirMode)
	if err != nil {
		return nil, fail(ErrIO, "split", root, err)
	}
	if inside(layout.Dir, src.Path) {
		return nil, failf(ErrIO, "split", src.Path, "source lies inside its chunk directory %s", layout.Dir)
	}
	lk, err := lock(layout.Lock, o.FileMode)
	if err != nil {
		return nil, fail(ErrIO, "split", layout.Lock, err)
	}
	defer lk.Close()

	tmp, err := os.MkdirTemp(root, "."+src.Fingerprint+".")
	if err != nil {
		return nil, fail(ErrIO, "split", root, err)
	}
	defer func() {
		if err != nil {
			log.Debugf("split failed, removing %s: %v", tmp, err)
			os.RemoveAll(tmp)
			res = nil
		}
	}()
	err = os.Chmod(tmp, o.DirMode)
	if err != nil {
		return nil, fail(ErrIO, "split", tmp, err)
	}

	m, err := putChunks(src, size, tmp, compress, o)
	if err != nil {
		return
	}
	err = putManifest(m, tmp, layout, compress, o)
	if err != nil {
		return
	}

	err = os.RemoveAll(layout.Dir)
	if err != nil {
		return nil, fail(ErrIO, "split", layout.Dir, err)
	}
	err = os.Rename(tmp, layout.Dir)
	if err != nil {
		return nil, fail(ErrIO, "split", layout.Dir, err)
	}
	return &Result{Manifest: m, Dir: layout.Dir, Handle: layout.Handle(compress)}, nil
}

// putChunks writes every chunk of src into dir and returns the
// manifest describing them.  The source is hashed as it is read so
// that a file changed since it was assigned is caught.
func putChunks(src *Source, size int64, dir string, compress bool, o *Options) (m *manifest.Manifest, err error) {
	fh, err := os.Open(src.Path)
	if err != nil {
		return nil, fail(ErrIO, "split", src.Path, err)
	}
	defer fh.Close()
	h, err := fingerprint.New(src.Algo)
	if err != nil {
		return nil, fail(ErrFormat, "split", src.Path, err)
	}

	chunker, err := Chunker{Size: size}.Init()
	if err != nil {
		return nil, fail(ErrIO, "split", src.Path, err)
	}
	chunker.Start(io.TeeReader(fh, h))

	mode := manifest.ModeNone
	if compress {
		mode = manifest.ModeZip
	}
	m = manifest.New(src.Name(), src.Fingerprint, src.Size, size, mode, src.Algo)

	buf := make([]byte, 64*kiB)
	var total int64
	for {
		chunk, err := chunker.Next()
		if errors.Cause(err) == io.EOF {
			break
		}
		if err != nil {
			return nil, fail(ErrIO, "split", src.Path, err)
		}
		entry, n, err := putChunk(chunk, buf, src.Path, dir, src.Algo, compress, o)
		if err != nil {
			return nil, err
		}
		m.Add(chunk.Index, entry)
		total += n
	}

	digest := hex.EncodeToString(h.Sum(nil))
	if total != src.Size || digest != src.Fingerprint {
		return nil, failf(ErrIntegrity, "split", src.Path,
			"source changed since it was assigned: read %d bytes %s, expected %d bytes %s",
			total, digest, src.Size, src.Fingerprint)
	}
	return
}

// putChunk stores one chunk, copying it through buf, and returns its
// manifest entry and payload size.
func putChunk(chunk *Chunk, buf []byte, srcPath, dir, algo string, compress bool, o *Options) (entry manifest.Entry, n int64, err error) {
	plain := filepath.Join(dir, manifest.ChunkName(chunk.Index))
	file, err := CreateArtifact(plain, algo, o.FileMode)
	if err != nil {
		return entry, 0, fail(ErrIO, "split", plain, err)
	}
	defer file.Close()

	var w io.Writer = file
	if testHookChunk != nil {
		w = testHookChunk(chunk.Index, w)
	}
	for {
		nr, rerr := chunk.Read(buf)
		if nr > 0 {
			nw, werr := w.Write(buf[:nr])
			n += int64(nw)
			if nw < nr {
				if werr == nil {
					werr = io.ErrShortWrite
				}
				return entry, n, fail(ErrPartialWrite, "split", plain,
					errors.Wrapf(werr, "wrote %d of %d bytes", nw, nr))
			}
			if werr != nil {
				return entry, n, fail(ErrIO, "split", plain, werr)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return entry, n, fail(ErrIO, "split", srcPath, rerr)
		}
	}
	err = file.Close()
	if err != nil {
		return entry, n, fail(ErrIO, "split", plain, err)
	}

	if !compress {
		return manifest.Entry{Hash: file.Hash}, n, nil
	}

	name := archive.NewName()
	container := filepath.Join(dir, name+archive.Ext)
	err = archive.Wrap(plain, container, o.Method, o.FileMode)
	if err != nil {
		return entry, n, fail(ErrIO, "split", container, err)
	}
	digest, err := fingerprint.HashFile(algo, container)
	if err != nil {
		return entry, n, fail(ErrIO, "split", container, err)
	}
	err = os.Remove(plain)
	if err != nil {
		return entry, n, fail(ErrIO, "split", plain, err)
	}
	log.Debugf("chunk %d -> %s %s", chunk.Index, container, digest)
	return manifest.Entry{Hash: digest, Name: name}, n, nil
}

// putManifest writes m atomically into dir, the chunk directory under
// construction.  The manifest records where it will live once dir is
// renamed into place.
func putManifest(m *manifest.Manifest, dir string, layout *Layout, compress bool, o *Options) (err error) {
	m.InfoFile = layout.Info
	info := filepath.Join(dir, manifest.InfoName)
	buf, err := m.Marshal()
	if err != nil {
		return fail(ErrFormat, "split", info, err)
	}
	err = renameio.WriteFile(info, buf, o.FileMode)
	if err != nil {
		return fail(ErrIO, "split", info, err)
	}
	if !compress {
		return
	}

	container := filepath.Join(dir, filepath.Base(layout.Archive))
	err = archive.Wrap(info, container, o.Method, o.FileMode)
	if err != nil {
		return fail(ErrIO, "split", container, err)
	}
	err = os.Remove(info)
	if err != nil {
		return fail(ErrIO, "split", info, err)
	}
	return
}

func (r *Result) String() string {
	return fmt.Sprintf("%s (%d chunks of %d bytes)", r.Handle, r.Manifest.ChunkCount, r.Manifest.ChunkSize)
}
