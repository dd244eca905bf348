// Package integrity implements the cryptographic primitives used to make
// the persisted session log tamper-evident: canonical session hashing,
// ED25519 signing/verification, and a Merkle root over an ordered list of
// session hashes.
package integrity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// HashSession computes the canonical content hash for a focus session. The
// wire form is normative: process | title | start | end | LE64(keys) |
// LE64(clicks) | LE64(scrolls), with a trailing "| prior" when prior is
// non-empty. The separator is the literal byte '|'; integers are
// little-endian 8 bytes; the result is lowercase hex. Any conforming
// implementation must reproduce this exact byte layout.
func HashSession(process, title, startISO, endISO string, keys, clicks, scrolls uint64, prior string) string {
	h := sha256.New()

	writeField(h, process)
	h.Write(sep)
	writeField(h, title)
	h.Write(sep)
	writeField(h, startISO)
	h.Write(sep)
	writeField(h, endISO)
	h.Write(sep)
	writeLE64(h, keys)
	h.Write(sep)
	writeLE64(h, clicks)
	h.Write(sep)
	writeLE64(h, scrolls)

	if prior != "" {
		h.Write(sep)
		writeField(h, prior)
	}

	return hex.EncodeToString(h.Sum(nil))
}

var sep = []byte{'|'}

func writeField(h interface{ Write([]byte) (int, error) }, s string) {
	h.Write([]byte(s))
}

func writeLE64(h interface{ Write([]byte) (int, error) }, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}
