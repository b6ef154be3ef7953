// Package contactmgmt removes a contact from every device of the owned
// identity and tells the contact about it.
package contactmgmt

import (
	"obvcore/internal/domain"
	"obvcore/internal/protocol/definition"
)

// ID names the protocol.
const ID domain.ProtocolID = "contact-management"

// DeleteContact starts a deletion locally.
type DeleteContact struct {
	_       struct{} `cbor:",toarray"`
	Contact domain.Identity
}

// PropagatedDeletion tells the other devices of the owned identity to delete
// Contact too.
type PropagatedDeletion struct {
	_       struct{} `cbor:",toarray"`
	Contact domain.Identity
}

// DeletionNotification tells the contact it was deleted. The contact is the
// recipient, so the message carries nothing.
type DeletionNotification struct {
	_ struct{} `cbor:",toarray"`
}

func (DeleteContact) MessageType() domain.MessageTypeID        { return "delete-contact" }
func (PropagatedDeletion) MessageType() domain.MessageTypeID   { return "propagated-contact-deletion" }
func (DeletionNotification) MessageType() domain.MessageTypeID { return "contact-deletion-notification" }

// Protocol returns the definition. Every step starts from the initial state
// and ends the instance.
func Protocol() *definition.Protocol {
	return &definition.Protocol{
		ID:       ID,
		Messages: []definition.Message{DeleteContact{}, PropagatedDeletion{}, DeletionNotification{}},
		Steps: []definition.Step{
			{
				ID:       "delete-contact",
				From:     definition.InitialStateID,
				On:       "delete-contact",
				Requires: definition.RequireLocal,
				Run:      deleteContact,
			},
			{
				ID:       "process-propagated-contact-deletion",
				From:     definition.InitialStateID,
				On:       "propagated-contact-deletion",
				Requires: definition.RequireConfirmedObliviousFromOwnedDevice,
				Run:      processPropagatedDeletion,
			},
			{
				ID:       "process-contact-deletion-notification",
				From:     definition.InitialStateID,
				On:       "contact-deletion-notification",
				Requires: definition.RequireConfirmedObliviousFromContact,
				Run:      processDeletionNotification,
			},
		},
	}
}
