package contactmgmt

import (
	"github.com/sirupsen/logrus"

	"obvcore/internal/dispatch"
	"obvcore/internal/domain"
	"obvcore/internal/protocol/definition"
)

// deleteContact propagates the deletion to the other devices of the owned
// identity and notifies the contact before removing it locally. A failure
// to reach the other devices or the contact does not block the local
// deletion.
func deleteContact(sc definition.StepContext, _ definition.State, m definition.Message) (definition.State, error) {
	contact := m.(DeleteContact).Contact
	log := sc.Log().WithField("contact", contact.Server)
	if contact == sc.Owned() {
		log.Warn("an identity cannot delete itself as a contact")
		return definition.Cancelled{}, nil
	}
	known, err := sc.Directory().IsKnownContact(contact)
	if err != nil {
		return nil, err
	}
	if !known {
		log.Info("contact unknown, nothing to delete")
		return definition.Cancelled{}, nil
	}

	own, err := sc.Channels().DevicesWith(sc.Owned(), true)
	if err != nil {
		return nil, err
	}
	if len(own) > 0 {
		if err := sc.Post(dispatch.AllConfirmedChannelsWithOwnOtherDevices{}, PropagatedDeletion{Contact: contact}); err != nil {
			log.WithError(err).Warn("deletion not propagated to other devices")
		}
	}

	theirs, err := sc.Channels().DevicesWith(contact, true)
	if err != nil {
		return nil, err
	}
	if len(theirs) > 0 {
		if err := sc.Post(dispatch.AllConfirmedChannelsWithContact{Contact: contact}, DeletionNotification{}); err != nil {
			log.WithError(err).Warn("contact not notified of deletion")
		}
	}

	if err := removeContact(sc, contact); err != nil {
		return nil, err
	}
	return definition.Final{}, nil
}

func processPropagatedDeletion(sc definition.StepContext, _ definition.State, m definition.Message) (definition.State, error) {
	contact := m.(PropagatedDeletion).Contact
	if contact == sc.Owned() {
		sc.Log().Warn("propagated deletion names the owned identity")
		return definition.Cancelled{}, nil
	}
	if err := removeContact(sc, contact); err != nil {
		return nil, err
	}
	return definition.Final{}, nil
}

func processDeletionNotification(sc definition.StepContext, _ definition.State, _ definition.Message) (definition.State, error) {
	if err := removeContact(sc, sc.Reception().RemoteIdentity); err != nil {
		return nil, err
	}
	return definition.Final{}, nil
}

// removeContact deletes every channel with contact and its directory entry.
// It is a no-op for an unknown contact.
func removeContact(sc definition.StepContext, contact domain.Identity) error {
	n, err := sc.Channels().DeleteAllWith(contact)
	if err != nil {
		return err
	}
	if err := sc.Directory().DeleteContact(contact); err != nil {
		return err
	}
	sc.Log().WithFields(logrus.Fields{
		"contact":  contact.Server,
		"channels": n,
	}).Info("contact deleted")
	return nil
}
