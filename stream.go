package chunkbase

import (
	"io"
	"os"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
	"github.com/t7a/chunkbase/archive"
	"github.com/t7a/chunkbase/manifest"
)

// Stream reads the payloads of a split back in index order,
// unwrapping compressed artifacts on the way.  It implements
// io.ReadCloser.  Every payload but the last must be exactly
// ChunkSize bytes; a payload of the wrong size fails the read with
// ErrIntegrity.
type Stream struct {
	Dir      string // directory holding the artifacts
	Manifest *manifest.Manifest
	index    int
	cur      io.ReadCloser
	path     string
	n        int64 // bytes read from cur
}

func (stream Stream) New(dir string, m *manifest.Manifest) *Stream {
	stream.Dir = dir
	stream.Manifest = m
	return &stream
}

// open opens the artifact for the next index.
func (stream *Stream) open() (err error) {
	stream.index++
	path, ok := artifactPath(stream.Dir, stream.Manifest, stream.index)
	if !ok {
		return failf(ErrIntegrity, "read", "", "chunk %d missing from manifest", stream.index)
	}
	stream.path = path
	stream.n = 0
	var rc io.ReadCloser
	if stream.Manifest.Compressed() {
		rc, err = archive.Open(path)
	} else {
		var fh *os.File
		fh, err = os.Open(path)
		if err == nil {
			rc = fh
		}
	}
	if err != nil {
		return readFail(path, err)
	}
	stream.cur = rc
	return
}

func (stream *Stream) Read(buf []byte) (n int, err error) {
	m := stream.Manifest
	for n == 0 {
		if stream.cur == nil {
			if stream.index >= m.ChunkCount {
				return 0, io.EOF
			}
			err = stream.open()
			if err != nil {
				return
			}
		}
		n, err = stream.cur.Read(buf)
		stream.n += int64(n)
		if stream.n > m.ChunkSize {
			stream.Close()
			return n, failf(ErrIntegrity, "read", stream.path,
				"chunk %d is longer than %d bytes", stream.index, m.ChunkSize)
		}
		if err == io.EOF {
			stream.cur.Close()
			stream.cur = nil
			last := stream.index == m.ChunkCount
			if stream.n == 0 || !last && stream.n != m.ChunkSize {
				return n, failf(ErrIntegrity, "read", stream.path,
					"chunk %d holds %d bytes, expected %d", stream.index, stream.n, m.ChunkSize)
			}
			err = nil
			continue
		}
		if err != nil {
			stream.Close()
			return n, readFail(stream.path, err)
		}
		if n == 0 {
			// a reader may return 0, nil; let the caller retry
			return
		}
	}
	return
}

// Close releases the artifact currently being read.
func (stream *Stream) Close() (err error) {
	if stream.cur == nil {
		return
	}
	err = stream.cur.Close()
	stream.cur = nil
	return
}

// readFail classifies an error from opening or reading an artifact.
func readFail(path string, err error) *Error {
	cause := errors.Cause(err)
	switch {
	case os.IsNotExist(cause):
		return fail(ErrIntegrity, "read", path, err)
	case cause == archive.ErrMalformed, cause == zip.ErrFormat, cause == zip.ErrChecksum, cause == zip.ErrAlgorithm:
		return fail(ErrIntegrity, "read", path, err)
	}
	return fail(ErrIO, "read", path, err)
}
