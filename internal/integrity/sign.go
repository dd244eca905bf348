package integrity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateKey creates a new ED25519 key pair from a cryptographic RNG. The
// returned seed is the 32-byte value that should be persisted to the secret
// store; the public key should be mirrored to the public key file.
func GenerateKey() (public ed25519.PublicKey, seed []byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("integrity: generate key: %w", err)
	}
	return pub, priv.Seed(), nil
}

// PrivateKeyFromSeed reconstructs the full ED25519 private key from its
// 32-byte seed.
func PrivateKeyFromSeed(seed []byte) ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(seed)
}

// Sign returns the base64-standard encoding of an ED25519 signature over
// message, produced with priv.
func Sign(message []byte, priv ed25519.PrivateKey) string {
	sig := ed25519.Sign(priv, message)
	return base64.StdEncoding.EncodeToString(sig)
}

// Verify reports whether sigB64 is a valid ED25519 signature over message
// under pub. Any decode error (bad base64, wrong-length signature) is
// treated as a verification failure, not an error return.
func Verify(message []byte, sigB64 string, pub ed25519.PublicKey) bool {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}
