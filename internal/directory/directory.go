// Package directory stores owned identities, their devices and their
// contacts next to the channel data, so that contact removal and channel
// teardown share a transaction.
package directory

import (
	"errors"
	"fmt"
	"sort"

	"obvcore/internal/crypto"
	"obvcore/internal/domain"
	"obvcore/internal/store"
)

const (
	ownedNS   = "owned"
	contactNS = "contact"
)

var (
	ErrUnknownOwnedIdentity = errors.New("unknown owned identity")
	ErrOwnedIdentityExists  = errors.New("owned identity already exists")
	ErrUnknownContact       = errors.New("unknown contact")
)

type ownedRecord struct {
	Keys    domain.OwnedIdentityKeys `cbor:"1,keyasint"`
	Current domain.DeviceID          `cbor:"2,keyasint"`
	Devices []domain.DeviceID        `cbor:"3,keyasint"`
}

type contactRecord struct {
	Identity domain.Identity   `cbor:"1,keyasint"`
	Devices  []domain.DeviceID `cbor:"2,keyasint"`
}

// Directory implements domain.IdentityDirectory on the shared store.
type Directory struct{}

// New returns a Directory.
func New() *Directory { return &Directory{} }

// AddOwnedIdentity registers keys as owned, with current as this device.
func (d *Directory) AddOwnedIdentity(tx domain.Tx, keys domain.OwnedIdentityKeys, current domain.DeviceID) error {
	k := ownedKey(keys.Identity)
	_, ok, err := tx.Get(k)
	if err != nil {
		return err
	}
	if ok {
		return ErrOwnedIdentityExists
	}
	return store.Save(tx, k, ownedRecord{Keys: keys, Current: current, Devices: []domain.DeviceID{current}})
}

func (d *Directory) owned(tx domain.Tx, owned domain.Identity) (ownedRecord, error) {
	rec, ok, err := store.Load[ownedRecord](tx, ownedKey(owned))
	if err != nil {
		return ownedRecord{}, err
	}
	if !ok {
		return ownedRecord{}, fmt.Errorf("%w: %s", ErrUnknownOwnedIdentity, owned.Server)
	}
	return rec, nil
}

// OwnedKeys returns the private keys of owned.
func (d *Directory) OwnedKeys(tx domain.Tx, owned domain.Identity) (domain.OwnedIdentityKeys, error) {
	rec, err := d.owned(tx, owned)
	return rec.Keys, err
}

// OwnedIdentities lists every owned identity.
func (d *Directory) OwnedIdentities(tx domain.Tx) ([]domain.Identity, error) {
	recs, err := store.LoadAll[ownedRecord](tx, store.Prefix(ownedNS))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Identity, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Keys.Identity)
	}
	return out, nil
}

// CurrentDevice returns the device this process runs as for owned.
func (d *Directory) CurrentDevice(tx domain.Tx, owned domain.Identity) (domain.DeviceID, error) {
	rec, err := d.owned(tx, owned)
	return rec.Current, err
}

// AddOwnedDevice records another device of owned. Adding it twice is a no-op.
func (d *Directory) AddOwnedDevice(tx domain.Tx, owned domain.Identity, device domain.DeviceID) error {
	rec, err := d.owned(tx, owned)
	if err != nil {
		return err
	}
	var added bool
	rec.Devices, added = addDevice(rec.Devices, device)
	if !added {
		return nil
	}
	return store.Save(tx, ownedKey(owned), rec)
}

// DeleteOwnedIdentity removes owned and all its contacts.
func (d *Directory) DeleteOwnedIdentity(tx domain.Tx, owned domain.Identity) error {
	if _, err := store.DeletePrefix(tx, store.Prefix(contactNS, owned.Key())); err != nil {
		return err
	}
	return tx.Delete(ownedKey(owned))
}

// CurrentDeviceIDs lists the known devices of identity as seen by owned.
func (d *Directory) CurrentDeviceIDs(tx domain.Tx, owned, identity domain.Identity) ([]domain.DeviceID, error) {
	if identity == owned {
		rec, err := d.owned(tx, owned)
		if err != nil {
			return nil, err
		}
		return append([]domain.DeviceID(nil), rec.Devices...), nil
	}
	rec, ok, err := store.Load[contactRecord](tx, contactKey(owned, identity))
	if err != nil || !ok {
		return nil, err
	}
	return rec.Devices, nil
}

// IsKnownContact reports whether contact is in the contact book of owned.
func (d *Directory) IsKnownContact(tx domain.Tx, owned, contact domain.Identity) (bool, error) {
	_, ok, err := tx.Get(contactKey(owned, contact))
	return ok, err
}

// AddContact adds contact with devices, merging devices into an existing entry.
func (d *Directory) AddContact(tx domain.Tx, owned, contact domain.Identity, devices []domain.DeviceID) error {
	if contact == owned {
		return errors.New("an identity cannot be its own contact")
	}
	if _, err := d.owned(tx, owned); err != nil {
		return err
	}
	rec, _, err := store.Load[contactRecord](tx, contactKey(owned, contact))
	if err != nil {
		return err
	}
	rec.Identity = contact
	for _, dev := range devices {
		rec.Devices, _ = addDevice(rec.Devices, dev)
	}
	return store.Save(tx, contactKey(owned, contact), rec)
}

// AddContactDevice records another device of an existing contact.
func (d *Directory) AddContactDevice(tx domain.Tx, owned, contact domain.Identity, device domain.DeviceID) error {
	rec, ok, err := store.Load[contactRecord](tx, contactKey(owned, contact))
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownContact
	}
	var added bool
	if rec.Devices, added = addDevice(rec.Devices, device); !added {
		return nil
	}
	return store.Save(tx, contactKey(owned, contact), rec)
}

// DeleteContact removes contact. Removing an unknown contact is a no-op.
func (d *Directory) DeleteContact(tx domain.Tx, owned, contact domain.Identity) error {
	return tx.Delete(contactKey(owned, contact))
}

// Contacts lists the contacts of owned.
func (d *Directory) Contacts(tx domain.Tx, owned domain.Identity) ([]domain.Identity, error) {
	recs, err := store.LoadAll[contactRecord](tx, store.Prefix(contactNS, owned.Key()))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Identity, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Identity)
	}
	return out, nil
}

// DecryptWithOwnedIdentityKey opens a sealed box addressed to owned.
func (d *Directory) DecryptWithOwnedIdentityKey(tx domain.Tx, owned domain.Identity, ciphertext, context []byte) ([]byte, error) {
	rec, err := d.owned(tx, owned)
	if err != nil {
		return nil, err
	}
	defer crypto.WipeOwnedKeys(&rec.Keys)
	return crypto.OpenWith(rec.Keys.EncryptionPrivate, ciphertext, context)
}

func addDevice(devices []domain.DeviceID, device domain.DeviceID) ([]domain.DeviceID, bool) {
	for _, d := range devices {
		if d == device {
			return devices, false
		}
	}
	devices = append(devices, device)
	sort.Slice(devices, func(i, j int) bool { return devices[i] < devices[j] })
	return devices, true
}

func ownedKey(owned domain.Identity) []byte {
	return store.Key(ownedNS, owned.Key())
}

func contactKey(owned, contact domain.Identity) []byte {
	return store.Key(contactNS, owned.Key(), contact.Key())
}

var _ domain.IdentityDirectory = (*Directory)(nil)
