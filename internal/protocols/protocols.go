// Package protocols lists the protocols this module runs.
package protocols

import (
	"obvcore/internal/protocol/definition"
	"obvcore/internal/protocols/channelcreation"
	"obvcore/internal/protocols/contactmgmt"
	"obvcore/internal/protocols/invitation"
)

// NewRegistry returns a validated registry of every protocol.
func NewRegistry() (*definition.Registry, error) {
	return definition.NewRegistry(
		channelcreation.Protocol(),
		contactmgmt.Protocol(),
		invitation.Protocol(),
	)
}
