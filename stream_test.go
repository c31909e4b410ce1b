package chunkbase

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/hlubek/readercomp"
	"github.com/pkg/errors"
)

func TestStream(t *testing.T) {
	for _, compress := range []bool{false, true} {
		fn, res := splitFile(t, 1000000, compress)
		stream := Stream{}.New(res.Dir, res.Manifest)
		defer stream.Close()
		fh, err := os.Open(fn)
		tassert(t, err == nil, "%v", err)
		defer fh.Close()
		ok, err := readercomp.Equal(fh, stream, 4096)
		tassert(t, err == nil, "readercomp.Equal: %v", err)
		tassert(t, ok, "compress %v: stream mismatch", compress)
	}
}

func TestStreamSmallReads(t *testing.T) {
	fn, res := splitFile(t, 300*kiB+7, true)
	stream := Stream{}.New(res.Dir, res.Manifest)
	defer stream.Close()

	var got bytes.Buffer
	buf := make([]byte, 1000)
	for {
		n, err := stream.Read(buf)
		got.Write(buf[:n])
		if err == io.EOF {
			break
		}
		tassert(t, err == nil, "%v", err)
	}
	want, err := os.ReadFile(fn)
	tassert(t, err == nil, "%v", err)
	tassert(t, bytes.Equal(want, got.Bytes()), "stream mismatch")
}

func TestStreamMissing(t *testing.T) {
	_, res := splitFile(t, 600*kiB, false)
	err := os.Remove(artifact(t, res, 2))
	tassert(t, err == nil, "%v", err)
	stream := Stream{}.New(res.Dir, res.Manifest)
	defer stream.Close()
	_, err = io.Copy(io.Discard, stream)
	tassert(t, errors.Is(err, ErrIntegrity), "expected ErrIntegrity, got %v", err)
}
