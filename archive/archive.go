// Package archive wraps a single file in a single-entry zip container
// and reads it back.  Chunk artifacts and compressed manifests are
// stored this way.
//
// The container always holds exactly one entry named EntryName.
// Entries carry no modification time, so wrapping the same bytes with
// the same method yields the same container bytes.
package archive

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

const (
	// EntryName is the fixed name of the one entry in every container.
	EntryName = "data"
	// Ext is the file extension of a container.
	Ext = ".zip"
)

// ErrMalformed is returned when a container does not hold exactly one
// entry named EntryName.
var ErrMalformed = errors.New("archive does not hold a single data entry")

// Method is the zip compression method of the entry.
type Method uint16

const (
	Deflate Method = Method(zip.Deflate)
	// Zstd stores the entry zstd compressed, using the method id
	// WinZip assigned to zstd.
	Zstd Method = Method(zstd.ZipMethodWinZip)
)

func (m Method) String() string {
	switch m {
	case Deflate:
		return "deflate"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(m))
	}
}

// ParseMethod parses the String form of a Method.  The empty string
// selects Deflate.
func ParseMethod(name string) (Method, error) {
	switch strings.ToLower(name) {
	case "deflate", "":
		return Deflate, nil
	case "zstd":
		return Zstd, nil
	default:
		return 0, fmt.Errorf("unknown archive method: %q", name)
	}
}

// IsArchive reports whether path names a container, judging by its
// extension.
func IsArchive(path string) bool {
	return strings.EqualFold(filepath.Ext(path), Ext)
}

// Wrap writes the content of src into a new container at dst.  dst
// must not exist yet; a name clash fails rather than overwrites.  On
// error nothing is left at dst.
func Wrap(src, dst string, method Method, perm os.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "wrap %s", src)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return errors.Wrapf(err, "wrap %s", src)
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(dst)
		}
	}()

	zw := zip.NewWriter(out)
	if method == Zstd {
		zw.RegisterCompressor(uint16(Zstd), zstd.ZipCompressor())
	}
	w, err := zw.CreateHeader(&zip.FileHeader{Name: EntryName, Method: uint16(method)})
	if err != nil {
		return errors.Wrapf(err, "wrap %s", src)
	}
	_, err = io.Copy(w, in)
	if err != nil {
		return errors.Wrapf(err, "wrap %s into %s", src, dst)
	}
	err = zw.Close()
	if err != nil {
		return errors.Wrapf(err, "finish %s", dst)
	}
	err = out.Close()
	if err != nil {
		return errors.Wrapf(err, "close %s", dst)
	}
	return
}

// Open returns a reader for the entry of the container at path.
// Closing it closes the container.  The zip reader checks the entry's
// CRC as reading reaches the end.
func Open(path string) (rc io.ReadCloser, err error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open archive %s", path)
	}
	zr.RegisterDecompressor(uint16(Zstd), zstd.ZipDecompressor())

	if len(zr.File) != 1 || zr.File[0].Name != EntryName {
		zr.Close()
		return nil, errors.Wrapf(ErrMalformed, "%s", path)
	}
	entry, err := zr.File[0].Open()
	if err != nil {
		zr.Close()
		return nil, errors.Wrapf(err, "open entry in %s", path)
	}
	return &entryReader{ReadCloser: entry, zr: zr}, nil
}

type entryReader struct {
	io.ReadCloser
	zr *zip.ReadCloser
}

func (r *entryReader) Close() error {
	r.ReadCloser.Close()
	return r.zr.Close()
}

// Unwrap copies the entry of the container at path to w and returns
// the number of bytes copied.
func Unwrap(path string, w io.Writer) (n int64, err error) {
	rc, err := Open(path)
	if err != nil {
		return
	}
	defer rc.Close()

	n, err = io.Copy(w, rc)
	if err != nil {
		return n, errors.Wrapf(err, "unwrap %s", path)
	}
	return
}

// ReadAll returns the entry of the container at path.
func ReadAll(path string) (buf []byte, err error) {
	var b bytes.Buffer
	_, err = Unwrap(path, &b)
	if err != nil {
		return
	}
	return b.Bytes(), nil
}
