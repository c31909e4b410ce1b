package archive

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
	"sync/atomic"
	"time"
)

var (
	// machineID is a 3-byte identifier for this host
	machineID = readMachineID()

	// counter is incremented for every name; it starts at a random value
	counter = readRandomUint32()
)

func readMachineID() (mid [3]byte) {
	hostname, err := os.Hostname()
	if err != nil {
		_, _ = io.ReadFull(rand.Reader, mid[:])
		return
	}
	sum := sha256.Sum256([]byte(hostname))
	copy(mid[:], sum[:3])
	return
}

func readRandomUint32() uint32 {
	var b [4]byte
	_, _ = io.ReadFull(rand.Reader, b[:])
	return binary.BigEndian.Uint32(b[:])
}

// NewName returns a 24-character hex name for a chunk container.
// Layout of the underlying 12 bytes:
//
//   - 4 bytes: seconds since epoch
//   - 3 bytes: machine identifier
//   - 2 bytes: process id
//   - 3 bytes: counter
//
// Names are unique across calls within a process, and across hosts
// and processes with high probability.
func NewName() string {
	var id [12]byte

	binary.BigEndian.PutUint32(id[0:4], uint32(time.Now().Unix()))
	copy(id[4:7], machineID[:])
	binary.BigEndian.PutUint16(id[7:9], uint16(os.Getpid()))

	c := atomic.AddUint32(&counter, 1)
	id[9] = byte(c >> 16)
	id[10] = byte(c >> 8)
	id[11] = byte(c)

	return hex.EncodeToString(id[:])
}
