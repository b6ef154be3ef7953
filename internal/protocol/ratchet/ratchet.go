package ratchet

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"obvcore/internal/crypto"
	"obvcore/internal/domain"
)

const (
	aeadKeySize = 32
	nonceSize   = chacha20poly1305.NonceSize
)

var (
	// ErrSameEndpoint is returned when both ends of a channel name the same device.
	ErrSameEndpoint = errors.New("channel endpoints must differ")
	errOpen         = errors.New("wrapped key does not authenticate")
)

// ChainKey is the current head of a send or receive chain.
type ChainKey [32]byte

// Endpoint names one end of a channel for chain derivation.
type Endpoint struct {
	Identity domain.Identity
	Device   domain.DeviceID
}

func (e Endpoint) label() string { return e.Identity.Key() + "/" + e.Device.String() }

// DeriveChains derives the send and receive chains of local from the shared
// seed. The send chain of A towards B equals the receive chain of B from A.
func DeriveChains(seed domain.Seed, local, remote Endpoint) (send, recv ChainKey, err error) {
	if local == remote {
		return send, recv, ErrSameEndpoint
	}
	send = kdfChain(seed[:], local.label()+">"+remote.label())
	recv = kdfChain(seed[:], remote.label()+">"+local.label())
	return send, recv, nil
}

// Advance steps ck once and returns the next chain key with the message key
// for the current position. The old chain key is wiped.
func Advance(ck *ChainKey) domain.SymmetricKey {
	next, mk := kdfCK(ck[:])
	crypto.Wipe(ck[:])
	*ck = next
	return mk
}

// SeedFromExchange derives a channel seed from an ephemeral Diffie–Hellman
// output. Both ephemeral public keys are mixed in in a fixed order so both
// sides derive the same seed.
func SeedFromExchange(dh [32]byte, a, b domain.X25519Public) domain.Seed {
	first, second := a, b
	if lessKey(b, a) {
		first, second = b, a
	}
	salt := make([]byte, 0, 64)
	salt = append(salt, first[:]...)
	salt = append(salt, second[:]...)

	var seed domain.Seed
	r := hkdf.New(sha256.New, dh[:], salt, []byte("obv|seed"))
	_, _ = io.ReadFull(r, seed[:])
	return seed
}

// Fingerprint returns a non-secret identifier for a seed.
func Fingerprint(seed domain.Seed) domain.Fingerprint {
	fp := kdfChain(seed[:], "obv|seed-fingerprint")
	return crypto.Fingerprint(fp[:])
}

// Seal encrypts data under the single-use message key mk at index.
func Seal(mk domain.SymmetricKey, index uint64, ad, data []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(mk[:aeadKeySize])
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonceFor(index), data, ad), nil
}

// Open decrypts data sealed with Seal.
func Open(mk domain.SymmetricKey, index uint64, ad, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(mk[:aeadKeySize])
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, nonceFor(index), sealed, ad)
	if err != nil {
		return nil, errOpen
	}
	return pt, nil
}

// --- helpers ---

func nonceFor(index uint64) []byte {
	nonce := make([]byte, nonceSize)
	binary.BigEndian.PutUint64(nonce[nonceSize-8:], index)
	return nonce
}

func kdfChain(seed []byte, label string) ChainKey {
	var ck ChainKey
	r := hkdf.New(sha256.New, seed, nil, []byte("obv|chain|"+label))
	_, _ = io.ReadFull(r, ck[:])
	return ck
}

func kdfCK(ck []byte) (next ChainKey, mk domain.SymmetricKey) {
	r := hkdf.New(sha256.New, ck, nil, []byte("obv|ck"))
	_, _ = io.ReadFull(r, next[:])
	_, _ = io.ReadFull(r, mk[:])
	return
}

func lessKey(a, b domain.X25519Public) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
