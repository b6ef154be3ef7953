// Package store persists node state in an embedded badger database.
//
// DB runs every read-modify-write of the engine inside a transaction;
// Update transactions are serialized so a protocol step, the channel keys it
// consumes and the envelopes it queues commit together or not at all. Keys
// are built with Key and Prefix, and values are CBOR encoded through Load,
// MustLoad and Save.
//
// KeyFile keeps the private keys of the owned identity outside the database,
// sealed under a passphrase with scrypt and ChaCha20-Poly1305.
package store
