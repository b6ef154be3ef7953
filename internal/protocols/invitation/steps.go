package invitation

import (
	"obvcore/internal/crypto"
	"obvcore/internal/dispatch"
	"obvcore/internal/domain"
	"obvcore/internal/protocol/definition"
	"obvcore/internal/protocols/channelcreation"
	"obvcore/internal/protocols/transcript"
)

const (
	invitationLabel = "invitation/invite"
	acceptanceLabel = "invitation/accept"
)

func sendInvitation(sc definition.StepContext, _ definition.State, m definition.Message) (definition.State, error) {
	msg := m.(Invite)
	if msg.Contact == sc.Owned() || msg.Contact.IsZero() || msg.Device == "" {
		sc.Log().Warn("invalid invitation target")
		return definition.Cancelled{}, nil
	}
	keys, err := sc.OwnedKeys()
	if err != nil {
		return nil, err
	}
	defer crypto.WipeOwnedKeys(&keys)

	inv := Invitation{FromIdentity: sc.Owned(), FromDevice: sc.CurrentDevice(), Note: msg.Note}
	inv.Signature = transcript.Sign(keys, invitationLabel, sc.Instance(), inv.FromIdentity, inv.FromDevice, msg.Contact, inv.Note)
	sel := dispatch.Asymmetric{Identity: msg.Contact, Devices: []domain.DeviceID{msg.Device}}
	if err := sc.Post(sel, inv); err != nil {
		return nil, err
	}
	return Sent{Contact: msg.Contact, Device: msg.Device}, nil
}

func receiveInvitation(sc definition.StepContext, _ definition.State, m definition.Message) (definition.State, error) {
	inv := m.(Invitation)
	log := sc.Log().WithField("from", inv.FromIdentity.Server)
	if inv.FromIdentity == sc.Owned() {
		return definition.Cancelled{}, nil
	}
	if !transcript.Verify(inv.FromIdentity, inv.Signature, invitationLabel, sc.Instance(), inv.FromIdentity, inv.FromDevice, sc.Owned(), inv.Note) {
		log.Warn("invitation signature rejected")
		return definition.Cancelled{}, nil
	}
	known, err := sc.Directory().IsKnownContact(inv.FromIdentity)
	if err != nil {
		return nil, err
	}
	if known {
		log.Info("invitation from an existing contact ignored")
		return definition.Final{}, nil
	}
	id, err := sc.PresentDialog(DialogKind, Prompt{
		From:        inv.FromIdentity,
		Fingerprint: crypto.FingerprintIdentity(inv.FromIdentity),
		Note:        inv.Note,
	})
	if err != nil {
		return nil, err
	}
	return Received{From: inv.FromIdentity, FromDevice: inv.FromDevice, Dialog: id}, nil
}

func respondToInvitation(sc definition.StepContext, s definition.State, m definition.Message) (definition.State, error) {
	st, resp := s.(Received), m.(Response)
	if !resp.Accept {
		sc.Log().Info("invitation declined")
		return definition.Cancelled{}, nil
	}
	if err := sc.Directory().AddContact(st.From, []domain.DeviceID{st.FromDevice}); err != nil {
		return nil, err
	}
	keys, err := sc.OwnedKeys()
	if err != nil {
		return nil, err
	}
	defer crypto.WipeOwnedKeys(&keys)

	acc := Acceptance{FromIdentity: sc.Owned(), FromDevice: sc.CurrentDevice()}
	acc.Signature = transcript.Sign(keys, acceptanceLabel, sc.Instance(), acc.FromIdentity, acc.FromDevice, st.From)
	sel := dispatch.Asymmetric{Identity: st.From, Devices: []domain.DeviceID{st.FromDevice}}
	if err := sc.Post(sel, acc); err != nil {
		return nil, err
	}
	return definition.Final{}, nil
}

// processAcceptance records the invitee and starts channel creation with the
// device that accepted.
func processAcceptance(sc definition.StepContext, s definition.State, m definition.Message) (definition.State, error) {
	st, acc := s.(Sent), m.(Acceptance)
	if acc.FromIdentity != st.Contact {
		sc.Log().Warn("acceptance from an unexpected identity")
		return st, nil
	}
	if !transcript.Verify(acc.FromIdentity, acc.Signature, acceptanceLabel, sc.Instance(), acc.FromIdentity, acc.FromDevice, sc.Owned()) {
		sc.Log().Warn("acceptance signature rejected")
		return st, nil
	}
	if err := sc.Directory().AddContact(st.Contact, []domain.DeviceID{acc.FromDevice}); err != nil {
		return nil, err
	}
	start := channelcreation.Initiate{RemoteIdentity: st.Contact, RemoteDevice: acc.FromDevice}
	if err := sc.PostTo(channelcreation.ID, domain.NewInstanceID(), dispatch.Local{}, start); err != nil {
		return nil, err
	}
	return definition.Final{}, nil
}
