// Package engine runs protocol instances.
//
// Every incoming protocol message is first written to a durable inbox. It is
// then processed under a lock on (owned identity, instance id) inside one
// storage transaction: the instance state is loaded (Initial when absent),
// the single matching step runs, and the next state, channel changes,
// outbound envelopes, dialogs and local deliveries commit together with the
// removal of the inbox record. Only after commit are envelopes posted,
// dialogs presented and local deliveries processed. A message no step
// accepts is dropped without touching the instance.
//
// Envelopes that reference a channel this device does not have yet are
// parked and retried whenever a step creates a channel.
package engine
