package interfaces

import domaintypes "obvcore/internal/domain/types"

// IdentityDirectory answers questions about owned identities, their devices
// and their contacts. All calls run inside the caller's transaction.
type IdentityDirectory interface {
	AddOwnedIdentity(tx Tx, keys domaintypes.OwnedIdentityKeys, current domaintypes.DeviceID) error
	OwnedKeys(tx Tx, owned domaintypes.Identity) (domaintypes.OwnedIdentityKeys, error)
	OwnedIdentities(tx Tx) ([]domaintypes.Identity, error)
	CurrentDevice(tx Tx, owned domaintypes.Identity) (domaintypes.DeviceID, error)
	AddOwnedDevice(tx Tx, owned domaintypes.Identity, device domaintypes.DeviceID) error
	DeleteOwnedIdentity(tx Tx, owned domaintypes.Identity) error

	// CurrentDeviceIDs lists the known devices of identity, which may be
	// owned itself or one of its contacts.
	CurrentDeviceIDs(tx Tx, owned, identity domaintypes.Identity) ([]domaintypes.DeviceID, error)
	IsKnownContact(tx Tx, owned, contact domaintypes.Identity) (bool, error)
	AddContact(tx Tx, owned, contact domaintypes.Identity, devices []domaintypes.DeviceID) error
	AddContactDevice(tx Tx, owned, contact domaintypes.Identity, device domaintypes.DeviceID) error
	DeleteContact(tx Tx, owned, contact domaintypes.Identity) error
	Contacts(tx Tx, owned domaintypes.Identity) ([]domaintypes.Identity, error)

	DecryptWithOwnedIdentityKey(tx Tx, owned domaintypes.Identity, ciphertext, context []byte) ([]byte, error)
}
