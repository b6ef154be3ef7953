package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"obvcore/internal/domain"
)

// Fingerprint returns a short hex fingerprint of a public key.
//
// It hashes with SHA-256 and truncates to 10 bytes (20 hex chars).
func Fingerprint(pub []byte) domain.Fingerprint {
	sum := sha256.Sum256(pub)
	return domain.Fingerprint(hex.EncodeToString(sum[:10]))
}

// FingerprintIdentity fingerprints both public keys of id together.
func FingerprintIdentity(id domain.Identity) domain.Fingerprint {
	b := make([]byte, 0, 64)
	b = append(b, id.EncryptionKey[:]...)
	b = append(b, id.SigningKey[:]...)
	return Fingerprint(b)
}
