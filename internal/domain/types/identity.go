package types

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidIdentity is returned when an identity string cannot be parsed.
var ErrInvalidIdentity = errors.New("invalid identity")

// Identity is a cryptographic identity bound to its home server.
// It is immutable and comparable, so it can be used as a map key.
type Identity struct {
	Server        string        `json:"server"`
	EncryptionKey X25519Public  `json:"encryption_key"`
	SigningKey    Ed25519Public `json:"signing_key"`
}

// IsZero reports whether id is the zero identity.
func (id Identity) IsZero() bool { return id == Identity{} }

// Key returns a stable string form of id, usable as a storage key component.
func (id Identity) Key() string {
	return id.Server + "#" + id.EncryptionKey.String() + "." + id.SigningKey.String()
}

// String returns the same form as Key; ParseIdentity is its inverse.
func (id Identity) String() string { return id.Key() }

// ParseIdentity parses the form produced by Identity.Key.
func ParseIdentity(s string) (Identity, error) {
	i := strings.LastIndexByte(s, '#')
	if i < 0 {
		return Identity{}, fmt.Errorf("%w: missing server separator", ErrInvalidIdentity)
	}
	enc, sig, ok := strings.Cut(s[i+1:], ".")
	if !ok {
		return Identity{}, fmt.Errorf("%w: missing key separator", ErrInvalidIdentity)
	}
	var id Identity
	id.Server = s[:i]
	if err := decodeHexKey(id.EncryptionKey[:], enc); err != nil {
		return Identity{}, err
	}
	if err := decodeHexKey(id.SigningKey[:], sig); err != nil {
		return Identity{}, err
	}
	return id, nil
}

func decodeHexKey(dst []byte, s string) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if len(b) != len(dst) {
		return fmt.Errorf("%w: key length %d", ErrInvalidIdentity, len(b))
	}
	copy(dst, b)
	return nil
}

// OwnedIdentityKeys holds the private halves of an owned identity.
type OwnedIdentityKeys struct {
	Identity          Identity       `json:"identity"`
	EncryptionPrivate X25519Private  `json:"encryption_private"`
	SigningPrivate    Ed25519Private `json:"signing_private"`
}

// Recipient addresses one device of an identity.
type Recipient struct {
	Identity Identity `json:"identity"`
	Device   DeviceID `json:"device"`
}
