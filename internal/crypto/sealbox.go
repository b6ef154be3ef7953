package crypto

import (
	"golang.org/x/crypto/chacha20poly1305"

	"obvcore/internal/domain"
)

const sealBoxInfo = "obv|sealbox"

// SealTo encrypts plaintext so that only the holder of the private half of
// to can read it. A fresh ephemeral X25519 key is used per call; the output
// is ephemeralPublic || ciphertext.
func SealTo(to domain.X25519Public, plaintext, context []byte) ([]byte, error) {
	ephPriv, ephPub, err := GenerateX25519()
	if err != nil {
		return nil, err
	}
	defer Wipe(ephPriv[:])

	key, err := sealBoxKey(ephPriv, to, ephPub, to)
	if err != nil {
		return nil, err
	}
	defer Wipe(key[:])

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte // key is unique per ephemeral
	out := append([]byte(nil), ephPub[:]...)
	return aead.Seal(out, nonce[:], plaintext, context), nil
}

// OpenWith reverses SealTo using the recipient's private key.
func OpenWith(priv domain.X25519Private, sealed, context []byte) ([]byte, error) {
	if len(sealed) < 32+chacha20poly1305.Overhead {
		return nil, ErrDecryptionFailed
	}
	var ephPub domain.X25519Public
	copy(ephPub[:], sealed[:32])

	pub, err := PublicX25519(priv)
	if err != nil {
		return nil, err
	}
	key, err := sealBoxKey(priv, ephPub, ephPub, pub)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	defer Wipe(key[:])

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := aead.Open(nil, nonce[:], sealed[32:], context)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return pt, nil
}

func sealBoxKey(priv domain.X25519Private, peer, ephPub, recipient domain.X25519Public) (domain.SymmetricKey, error) {
	shared, err := DH(priv, peer)
	if err != nil {
		return domain.SymmetricKey{}, err
	}
	defer Wipe(shared[:])
	salt := make([]byte, 0, 64)
	salt = append(salt, ephPub[:]...)
	salt = append(salt, recipient[:]...)
	return DeriveKey(shared[:], salt, sealBoxInfo)
}
