package chunkbase

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/pkg/errors"
)

const (
	kiB = 1024
	miB = 1024 * kiB

	// MinChunkSize is the smallest effective chunk size honored.
	MinChunkSize = 16 * kiB
	// DefaultChunkSize replaces any effective size below MinChunkSize.
	DefaultChunkSize = 64 * kiB
)

// Unit scales ChunkSpec.UnitSize.
type Unit int

const (
	Byte Unit = iota
	KiloByte
	MegaByte
)

// Scale returns the number of bytes in one u, or 0 for an unknown
// unit.
func (u Unit) Scale() int64 {
	switch u {
	case Byte:
		return 1
	case KiloByte:
		return kiB
	case MegaByte:
		return miB
	}
	return 0
}

func (u Unit) String() string {
	switch u {
	case Byte:
		return "B"
	case KiloByte:
		return "KB"
	case MegaByte:
		return "MB"
	}
	return fmt.Sprintf("Unit(%d)", int(u))
}

// ParseUnit accepts B, KB or K, and MB or M, in any case.
func ParseUnit(s string) (u Unit, err error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "B":
		return Byte, nil
	case "KB", "K":
		return KiloByte, nil
	case "MB", "M":
		return MegaByte, nil
	}
	return 0, fmt.Errorf("unknown unit: %q", s)
}

// ChunkSpec is a requested chunk size.  The request is not always
// honored; see Size.
type ChunkSpec struct {
	UnitSize int64
	Unit     Unit
}

// DefaultSpec is 256 KiB.
var DefaultSpec = ChunkSpec{UnitSize: 256, Unit: KiloByte}

// Size returns the effective chunk size in bytes.  Requests below
// MinChunkSize, non-positive requests, unknown units and requests that
// overflow an int64 all come back as DefaultChunkSize.
func (spec ChunkSpec) Size() int64 {
	scale := spec.Unit.Scale()
	if scale == 0 || spec.UnitSize <= 0 || spec.UnitSize > math.MaxInt64/scale {
		return DefaultChunkSize
	}
	size := spec.UnitSize * scale
	if size < MinChunkSize {
		return DefaultChunkSize
	}
	return size
}

func (spec ChunkSpec) String() string {
	return fmt.Sprintf("%d%s", spec.UnitSize, spec.Unit)
}

// Chunk is one window of the stream given to Chunker.Start.  Reading
// it yields the window's bytes and then io.EOF.
type Chunk struct {
	Index  int   // 1-based
	Offset int64 // position of the window's first byte in the stream
	rd     io.Reader
}

func (chunk *Chunk) Read(buf []byte) (n int, err error) {
	return chunk.rd.Read(buf)
}

// Chunker cuts a stream into windows of Size bytes; only the last
// window may be shorter.  Windows are streamed, never held in memory
// whole, so Size may be far larger than the stream.
type Chunker struct {
	Size  int64
	rd    *bufio.Reader
	cur   *io.LimitedReader
	index int
	pos   int64
	done  bool
}

// Init fills in defaults.  A Size that is not a valid effective chunk
// size is replaced by DefaultChunkSize.
func (c Chunker) Init() (res *Chunker, err error) {
	if c.Size < MinChunkSize {
		c.Size = DefaultChunkSize
	}
	return &c, nil
}

// Start resets the chunker to read from rd.
func (c *Chunker) Start(rd io.Reader) {
	c.rd = bufio.NewReader(rd)
	c.cur = nil
	c.index = 0
	c.pos = 0
	c.done = false
}

// Next returns the next window.  Whatever the caller left unread of
// the previous window is skipped.  After the last window, Next returns
// io.EOF; an empty stream yields io.EOF on the first call.  Every
// window returned holds at least one byte.
func (c *Chunker) Next() (chunk *Chunk, err error) {
	if c.rd == nil {
		return nil, errors.New("chunker not started")
	}
	if c.done {
		return nil, io.EOF
	}
	if c.cur != nil {
		_, err = io.Copy(io.Discard, c.cur)
		if err != nil {
			return nil, errors.Wrapf(err, "read chunk %d", c.index)
		}
		c.pos += c.Size - c.cur.N
		c.cur = nil
	}
	_, err = c.rd.Peek(1)
	if err == io.EOF {
		c.done = true
		return nil, io.EOF
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read chunk %d", c.index+1)
	}
	c.index++
	c.cur = &io.LimitedReader{R: c.rd, N: c.Size}
	return &Chunk{Index: c.index, Offset: c.pos, rd: c.cur}, nil
}
