// Package transcript signs and verifies the handshake messages exchanged by
// protocols before an oblivious channel exists.
package transcript

import (
	"obvcore/internal/codec"
	"obvcore/internal/crypto"
	"obvcore/internal/domain"
)

// Encode returns the canonical bytes of a labelled transcript.
func Encode(label string, parts ...any) []byte {
	return codec.MustMarshal(append([]any{"obv|transcript|" + label}, parts...))
}

// Sign signs the transcript with the signing key of keys.
func Sign(keys domain.OwnedIdentityKeys, label string, parts ...any) []byte {
	return crypto.SignEd25519(keys.SigningPrivate, Encode(label, parts...))
}

// Verify checks a signature made by signer over the transcript.
func Verify(signer domain.Identity, sig []byte, label string, parts ...any) bool {
	return crypto.VerifyEd25519(signer.SigningKey, Encode(label, parts...), sig)
}
