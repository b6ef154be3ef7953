package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"obvcore/internal/domain"
)

// ErrDecryptionFailed is returned when a ciphertext does not authenticate.
var ErrDecryptionFailed = errors.New("decryption failed")

// NewSymmetricKey returns a random 256-bit key.
func NewSymmetricKey() (domain.SymmetricKey, error) {
	var k domain.SymmetricKey
	_, err := rand.Read(k[:])
	return k, err
}

// SealPayload encrypts plaintext under key with XChaCha20-Poly1305.
// The output is nonce || ciphertext.
func SealPayload(key domain.SymmetricKey, ad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	out := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, err
	}
	return aead.Seal(out, out[:chacha20poly1305.NonceSizeX], plaintext, ad), nil
}

// OpenPayload reverses SealPayload.
func OpenPayload(key domain.SymmetricKey, ad, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	if len(sealed) < chacha20poly1305.NonceSizeX+aead.Overhead() {
		return nil, ErrDecryptionFailed
	}
	nonce, ct := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	pt, err := aead.Open(nil, nonce, ct, ad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return pt, nil
}

// DeriveKey expands secret into a 256-bit key bound to info with HKDF-SHA256.
func DeriveKey(secret, salt []byte, info string) (domain.SymmetricKey, error) {
	var k domain.SymmetricKey
	r := hkdf.New(sha256.New, secret, salt, []byte(info))
	_, err := io.ReadFull(r, k[:])
	return k, err
}
