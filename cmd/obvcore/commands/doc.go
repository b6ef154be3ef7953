// Package commands defines the obvcore CLI.
//
// Commands
//
//   - init            Create the owned identity on this device
//   - fingerprint     Print the identity, device and fingerprint
//   - connect         Create an oblivious channel with a device
//   - invite          Invite an identity to become a contact
//   - dialogs         List dialogs awaiting an answer
//   - respond         Accept or decline an invitation dialog
//   - delete-contact  Delete a contact on every owned device
//   - send            Send an application message to a contact
//   - sync            Post queued envelopes and process fetched ones
//   - channels        List oblivious channels
//   - protocols       Print the step table of every protocol
//   - gc              Remove expired key tombstones and parked envelopes
//
// The root command loads obvcore.yaml from the home directory and builds the
// dependency graph before any subcommand runs. Without a redis address the
// relay lives in process and only loops back to this device.
package commands
