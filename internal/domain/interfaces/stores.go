package interfaces

import (
	"context"

	domaintypes "obvcore/internal/domain/types"
)

// KV is one key/value pair returned by a prefix scan.
type KV struct {
	Key   []byte
	Value []byte
}

// Tx is a storage transaction. Every mutation made through a Tx is applied
// atomically on commit or discarded as a whole.
type Tx interface {
	Get(key []byte) ([]byte, bool, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	// Scan returns every pair whose key starts with prefix, in key order.
	Scan(prefix []byte) ([]KV, error)
}

// Store runs transactions. Update transactions are serialized.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}

// KeyFileStore persists the private keys of an owned identity on disk.
type KeyFileStore interface {
	SaveOwnedKeys(passphrase string, keys domaintypes.OwnedIdentityKeys) error
	LoadOwnedKeys(passphrase string) (domaintypes.OwnedIdentityKeys, error)
}
