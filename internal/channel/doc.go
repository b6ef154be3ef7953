// Package channel is the oblivious channel registry and its key material.
//
// A channel is keyed by (owned identity, local device, remote identity,
// remote device). Creating it derives a send and a receive chain from a
// shared seed; the seed itself is not kept. Every message key drawn from a
// chain is a Provision that can be consumed once. Consumed provisions stay as
// tombstones until DeleteExpired removes them, and indices at or below the
// last consumed one are refused for good.
//
// All operations take the caller's storage transaction, so channel teardown
// and the deletion of its key material commit or roll back together.
package channel
