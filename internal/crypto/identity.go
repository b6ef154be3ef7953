package crypto

import (
	"errors"

	"obvcore/internal/domain"
)

var errEmptyServer = errors.New("identity server must not be empty")

// NewOwnedIdentity generates the encryption and signing key pairs of a new
// identity homed on server.
func NewOwnedIdentity(server string) (domain.OwnedIdentityKeys, error) {
	if server == "" {
		return domain.OwnedIdentityKeys{}, errEmptyServer
	}
	xpriv, xpub, err := GenerateX25519()
	if err != nil {
		return domain.OwnedIdentityKeys{}, err
	}
	edpriv, edpub, err := GenerateEd25519()
	if err != nil {
		return domain.OwnedIdentityKeys{}, err
	}
	return domain.OwnedIdentityKeys{
		Identity: domain.Identity{
			Server:        server,
			EncryptionKey: xpub,
			SigningKey:    edpub,
		},
		EncryptionPrivate: xpriv,
		SigningPrivate:    edpriv,
	}, nil
}

// WipeOwnedKeys zeroes the private halves of keys.
func WipeOwnedKeys(keys *domain.OwnedIdentityKeys) {
	Wipe(keys.EncryptionPrivate[:])
	Wipe(keys.SigningPrivate[:])
}
