// Package ratchet derives the symmetric chains of an oblivious channel.
//
// A channel is created from a shared seed. Each end derives two HKDF chains
// from it, one per direction, labelled by the sending and receiving
// endpoints, so that the send chain of one device is the receive chain of the
// other. Every step of a chain yields one single-use message key and the next
// chain key; the previous chain key is wiped, which keeps earlier keys out of
// reach once they have been used.
//
// Concurrency: ChainKey values are NOT safe for concurrent use. The channel
// registry serialises access through storage transactions.
package ratchet
