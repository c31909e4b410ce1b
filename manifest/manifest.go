// Package manifest describes how a split file is put back together.
//
// A Manifest names the source file, its fingerprint and size, the
// effective chunk size, and a table mapping every 1-based chunk index
// to the fingerprint of the stored artifact.  The table comes in two
// shapes selected by the manifest's compression mode:
//
//	"compression_mode": "none"  ->  "list": {"1": "<digest>", ...}
//	"compression_mode": "zip"   ->  "list": {"1": ["<digest>", "<name>"], ...}
//
// Uncompressed artifacts are named by their index (see ChunkName), so
// only compressed entries carry a name.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/t7a/chunkbase/fingerprint"
)

// InfoName is the file name of a plain manifest inside a chunk
// directory.
const InfoName = "info.json"

// ErrMalformed is wrapped by every decode and validation failure.
var ErrMalformed = errors.New("malformed manifest")

// ChunkName returns the artifact name of an uncompressed chunk.
func ChunkName(index int) string {
	return fmt.Sprintf("chunk.%08d", index)
}

// Mode says whether chunk artifacts are stored as zip containers.
type Mode string

const (
	ModeNone Mode = "none"
	ModeZip  Mode = "zip"
)

// Entry is one row of the chunk table.
type Entry struct {
	Hash string // fingerprint of the artifact as stored
	Name string // container base name; empty for uncompressed chunks
}

// MarshalJSON writes a bare digest for uncompressed entries and a
// [digest, name] pair otherwise.
func (e Entry) MarshalJSON() ([]byte, error) {
	if e.Name == "" {
		return json.Marshal(e.Hash)
	}
	return json.Marshal([2]string{e.Hash, e.Name})
}

func (e *Entry) UnmarshalJSON(buf []byte) (err error) {
	var digest string
	if json.Unmarshal(buf, &digest) == nil {
		*e = Entry{Hash: digest}
		return
	}
	var pair []string
	err = json.Unmarshal(buf, &pair)
	if err != nil || len(pair) != 2 {
		return fmt.Errorf("chunk entry is neither a digest nor a [digest, name] pair: %s", buf)
	}
	*e = Entry{Hash: pair[0], Name: pair[1]}
	return
}

// Table maps chunk indexes to entries.
type Table map[int]Entry

// MarshalJSON writes the table with its keys in numeric order.
func (t Table) MarshalJSON() ([]byte, error) {
	keys := make([]int, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(strconv.Itoa(k)))
		b.WriteByte(':')
		buf, err := json.Marshal(t[k])
		if err != nil {
			return nil, err
		}
		b.Write(buf)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// Manifest is the authoritative record of a split.
type Manifest struct {
	// InfoFile is where the splitter wrote the manifest.  It is
	// informational only and cleared on decode.
	InfoFile   string `json:"info_file,omitempty"`
	FileName   string `json:"file_name"`
	FileHash   string `json:"file_hash"`
	FileSize   int64  `json:"file_size"`
	ChunkSize  int64  `json:"chunk_size"`
	ChunkCount int    `json:"chunk_count"`
	Mode       Mode   `json:"compression_mode"`
	Algo       string `json:"hash_algo"`
	List       Table  `json:"list"`
}

// New returns a manifest with an empty chunk table.
func New(fileName, fileHash string, fileSize, chunkSize int64, mode Mode, algo string) *Manifest {
	if algo == "" {
		algo = fingerprint.Default
	}
	return &Manifest{
		FileName:  fileName,
		FileHash:  fileHash,
		FileSize:  fileSize,
		ChunkSize: chunkSize,
		Mode:      mode,
		Algo:      algo,
		List:      Table{},
	}
}

// Add records the entry for index and keeps ChunkCount in step with
// the table.
func (m *Manifest) Add(index int, e Entry) {
	m.List[index] = e
	m.ChunkCount = len(m.List)
}

// Compressed reports whether chunk artifacts are zip containers.
func (m *Manifest) Compressed() bool {
	return m.Mode == ModeZip
}

// Artifact returns the file name of the artifact for index, relative
// to the chunk directory.
func (m *Manifest) Artifact(index int) (name string, ok bool) {
	e, ok := m.List[index]
	if !ok {
		return
	}
	if m.Compressed() {
		return e.Name + ".zip", true
	}
	return ChunkName(index), true
}

// Marshal returns the canonical indented JSON form.
func (m *Manifest) Marshal() (buf []byte, err error) {
	buf, err = json.MarshalIndent(m, "", "  ")
	if err != nil {
		return
	}
	return append(buf, '\n'), nil
}

// Encode writes the canonical form to w.
func (m *Manifest) Encode(w io.Writer) (err error) {
	buf, err := m.Marshal()
	if err != nil {
		return
	}
	_, err = w.Write(buf)
	return
}

// Decode reads and validates a manifest.  A manifest without a
// compression_mode gets one inferred from the shape of its first
// entry; one without a hash_algo is assumed to use the default.
func Decode(rd io.Reader) (m *Manifest, err error) {
	m = &Manifest{}
	dec := json.NewDecoder(rd)
	err = dec.Decode(m)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "%v", err)
	}
	var extra json.RawMessage
	if err = dec.Decode(&extra); err != io.EOF {
		return nil, errors.Wrap(ErrMalformed, "trailing data after manifest")
	}
	m.InfoFile = ""
	if m.Algo == "" {
		m.Algo = fingerprint.Default
	}
	if m.List == nil {
		m.List = Table{}
	}
	if m.Mode == "" {
		m.Mode = ModeNone
		if e, ok := m.List[1]; ok && e.Name != "" {
			m.Mode = ModeZip
		}
	}
	err = m.Validate()
	if err != nil {
		return nil, err
	}
	return
}

// Load decodes the manifest file at path.
func Load(path string) (m *Manifest, err error) {
	fh, err := os.Open(path)
	if err != nil {
		return
	}
	defer fh.Close()
	return Decode(fh)
}

// Validate checks that the manifest is structurally complete: a safe
// file name, well formed digests, a chunk count that agrees with the
// file and chunk sizes, and a table holding exactly the indexes
// 1..ChunkCount in the shape its mode calls for.
func (m *Manifest) Validate() error {
	bad := func(format string, args ...interface{}) error {
		return errors.Wrapf(ErrMalformed, format, args...)
	}

	if !safeName(m.FileName) {
		return bad("unsafe file name %q", m.FileName)
	}
	if fingerprint.Size(m.Algo) == 0 {
		return bad("unknown hash algorithm %q", m.Algo)
	}
	if !fingerprint.Valid(m.Algo, m.FileHash) {
		return bad("file hash %q is not a %s digest", m.FileHash, m.Algo)
	}
	if m.Mode != ModeNone && m.Mode != ModeZip {
		return bad("unknown compression mode %q", m.Mode)
	}
	if m.FileSize < 0 || m.ChunkSize <= 0 || m.ChunkCount < 0 {
		return bad("file size %d, chunk size %d, chunk count %d", m.FileSize, m.ChunkSize, m.ChunkCount)
	}
	expect := m.FileSize / m.ChunkSize
	if m.FileSize%m.ChunkSize != 0 {
		expect++
	}
	if int64(m.ChunkCount) != expect {
		return bad("chunk count %d, expected %d for %d bytes in %d byte chunks",
			m.ChunkCount, expect, m.FileSize, m.ChunkSize)
	}
	if len(m.List) != m.ChunkCount {
		return bad("chunk table has %d entries, chunk count is %d", len(m.List), m.ChunkCount)
	}
	for i := 1; i <= m.ChunkCount; i++ {
		e, ok := m.List[i]
		if !ok {
			return bad("chunk table is missing index %d", i)
		}
		if !fingerprint.Valid(m.Algo, e.Hash) {
			return bad("chunk %d: %q is not a %s digest", i, e.Hash, m.Algo)
		}
		switch m.Mode {
		case ModeNone:
			if e.Name != "" {
				return bad("chunk %d: named entry in an uncompressed manifest", i)
			}
		case ModeZip:
			if !safeName(e.Name) {
				return bad("chunk %d: unsafe artifact name %q", i, e.Name)
			}
		}
	}
	return nil
}

// safeName reports whether name is a plain base name that cannot
// escape the chunk directory.
func safeName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	return filepath.Base(name) == name
}
