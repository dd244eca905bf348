package integrity

import (
	"crypto/sha256"
	"encoding/hex"
)

// MerkleRoot computes the Merkle root over an ordered list of hex-encoded
// hashes. Unlike a conventional Merkle tree, each level hashes the hex
// string encodings of its children concatenated together, not their raw
// bytes. This is unconventional but normative; any reimplementation must
// replicate it to produce compatible roots.
//
// An empty input has no root (ok is false). A single hash is its own root.
// Odd-length levels duplicate the last element before pairing.
func MerkleRoot(hashes []string) (root string, ok bool) {
	if len(hashes) == 0 {
		return "", false
	}

	level := make([]string, len(hashes))
	copy(level, hashes)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]string, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, hashPair(level[i], level[i+1]))
		}
		level = next
	}

	return level[0], true
}

func hashPair(leftHex, rightHex string) string {
	h := sha256.New()
	h.Write([]byte(leftHex))
	h.Write([]byte(rightHex))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyMerkle reports whether MerkleRoot(hashes) equals expected. Two
// empty inputs (no hashes, no expected root) are considered matching.
func VerifyMerkle(hashes []string, expected string) bool {
	root, ok := MerkleRoot(hashes)
	if !ok {
		return expected == ""
	}
	return root == expected
}
