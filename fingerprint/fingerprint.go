// Package fingerprint computes the hex digests chunkbase uses to name
// and verify content: the whole source file, every stored chunk
// artifact, and the reconstructed output.
//
// Digests are lower-case hex strings.  The algorithm is named by a
// short string (see Blake3, SHA256, SHA512) so that it can be recorded
// in a manifest and looked up again at merge time.
package fingerprint

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"syscall"

	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
)

// algorithm names
const (
	Blake3 = "blake3"
	SHA256 = "sha256"
	SHA512 = "sha512"

	// Default is used whenever an algorithm name is empty.
	Default = Blake3
)

// window is the read size used when hashing files and readers.
const window = 64 * 1024

// Algos lists the supported algorithm names.
var Algos = []string{Blake3, SHA256, SHA512}

// New returns a fresh hash.Hash for algo.  An unsupported algo
// returns an error wrapping syscall.ENOSYS.
func New(algo string) (h hash.Hash, err error) {
	switch algo {
	case Blake3, "":
		h = blake3.New()
	case SHA256:
		h = sha256.New()
	case SHA512:
		h = sha512.New()
	default:
		err = fmt.Errorf("%w: %s", syscall.ENOSYS, algo)
	}
	return
}

// Size returns the digest length in bytes for algo, or 0 if algo is
// unknown.
func Size(algo string) int {
	h, err := New(algo)
	if err != nil {
		return 0
	}
	return h.Size()
}

// Hash returns the hex digest of buf.
func Hash(algo string, buf []byte) (digest string, err error) {
	h, err := New(algo)
	if err != nil {
		return
	}
	_, err = h.Write(buf)
	if err != nil {
		return
	}
	return bin2hex(h.Sum(nil)), nil
}

// HashReader consumes rd to EOF in bounded windows and returns the
// hex digest along with the number of bytes read.
func HashReader(algo string, rd io.Reader) (digest string, n int64, err error) {
	h, err := New(algo)
	if err != nil {
		return
	}
	buf := make([]byte, window)
	n, err = io.CopyBuffer(h, rd, buf)
	if err != nil {
		return "", n, errors.Wrap(err, "hashing stream")
	}
	return bin2hex(h.Sum(nil)), n, nil
}

// HashFile returns the hex digest of the file at path.
func HashFile(algo string, path string) (digest string, err error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "hash %s", path)
	}
	defer fh.Close()
	digest, _, err = HashReader(algo, fh)
	if err != nil {
		return "", errors.Wrapf(err, "hash %s", path)
	}
	return
}

// Valid reports whether digest looks like a digest produced by algo:
// lower-case hex of the right length.
func Valid(algo string, digest string) bool {
	size := Size(algo)
	if size == 0 || len(digest) != 2*size {
		return false
	}
	for _, c := range digest {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

func bin2hex(bin []byte) string {
	return hex.EncodeToString(bin)
}
