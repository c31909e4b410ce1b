/*

Chunkbase splits files into fixed-size, fingerprinted chunks and puts
them back together again, verifying every chunk before a single byte
of output is written.

Vocabulary:

- root: storage root directory; holds one chunk directory per split file
- fingerprint: lower-case hex digest of a file or artifact, see package fingerprint
- algo: name (string) of the hash algorithm, recorded in the manifest
- source: the file being split, fingerprinted once when assigned
- chunk dir: root/<source fingerprint>; re-splitting the same content
	lands in the same place
- chunk: one window of the source, ChunkSpec.Size() bytes except the last
- artifact: on-disk form of a chunk; either chunk.NNNNNNNN or a
	single-entry zip container named <unique>.zip
- manifest: info.json in the chunk dir, or <fingerprint>.zip wrapping it;
	maps chunk index to the fingerprint of the artifact as stored
- handle: path of the manifest or its container; what Merge consumes
- lock: root/<fingerprint>.lock, serializes splits of the same content

*/

package chunkbase
