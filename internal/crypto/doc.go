// Package crypto exposes the primitives used by the channel and dispatch layers.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateX25519,
//     PublicX25519, DH)
//   - Ed25519 key generation, signing and verification (GenerateEd25519,
//     SignEd25519, VerifyEd25519)
//   - Owned identity generation (NewOwnedIdentity, WipeOwnedKeys)
//   - Payload encryption with a per-envelope message key (SealPayload, OpenPayload)
//   - Sealed boxes to an identity's X25519 key (SealTo, OpenWith)
//   - HKDF-SHA256 key derivation (DeriveKey)
//   - Best-effort memory wiping for sensitive byte slices (Wipe)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// All functions return fixed-size array types defined in internal/domain to
// avoid accidental reallocations. Callers should treat returned secrets as
// sensitive and rely on Wipe when practical to reduce lifetime in memory.
package crypto
