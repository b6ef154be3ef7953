// Package domain defines the data model and collaborator contracts shared by
// the channel, dispatch and protocol packages.
//
// It contains plain types (identities, channels, provisions, envelopes,
// protocol messages and instances) and contracts (store transactions, network
// collaborators, identity directory) only. The types and interfaces
// subpackages hold the definitions; this package re-exports them as aliases.
package domain
