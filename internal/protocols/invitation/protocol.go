// Package invitation introduces two identities to each other. The invitee
// is asked through a dialog; once it accepts, both sides record the other
// as a contact and the inviter sets up an oblivious channel.
package invitation

import (
	"obvcore/internal/domain"
	"obvcore/internal/protocol/definition"
)

// ID names the protocol.
const ID domain.ProtocolID = "invitation"

// DialogKind is the kind of the dialog raised on the invitee.
const DialogKind = "accept-invitation"

// Invite starts an invitation locally. Contact and Device are learnt out of
// band.
type Invite struct {
	_       struct{} `cbor:",toarray"`
	Contact domain.Identity
	Device  domain.DeviceID
	Note    string
}

// Invitation is sent to the invitee over the asymmetric channel.
type Invitation struct {
	_            struct{} `cbor:",toarray"`
	FromIdentity domain.Identity
	FromDevice   domain.DeviceID
	Note         string
	Signature    []byte
}

// Response is the invitee's answer to the dialog.
type Response struct {
	_      struct{} `cbor:",toarray"`
	Accept bool
}

// Acceptance tells the inviter the invitation was accepted.
type Acceptance struct {
	_            struct{} `cbor:",toarray"`
	FromIdentity domain.Identity
	FromDevice   domain.DeviceID
	Signature    []byte
}

func (Invite) MessageType() domain.MessageTypeID     { return "invite" }
func (Invitation) MessageType() domain.MessageTypeID { return "invitation" }
func (Response) MessageType() domain.MessageTypeID   { return "response" }
func (Acceptance) MessageType() domain.MessageTypeID { return "acceptance" }

// Sent is the inviter waiting for an answer.
type Sent struct {
	Contact domain.Identity
	Device  domain.DeviceID
}

// Received is the invitee waiting for its user.
type Received struct {
	From       domain.Identity
	FromDevice domain.DeviceID
	Dialog     domain.DialogID
}

func (Sent) StateID() definition.StateID     { return "invitation-sent" }
func (Received) StateID() definition.StateID { return "invitation-received" }

// Prompt is the payload of the dialog raised on the invitee.
type Prompt struct {
	From        domain.Identity
	Fingerprint domain.Fingerprint
	Note        string
}

// Protocol returns the definition.
func Protocol() *definition.Protocol {
	return &definition.Protocol{
		ID:       ID,
		States:   []definition.State{Sent{}, Received{}},
		Messages: []definition.Message{Invite{}, Invitation{}, Response{}, Acceptance{}},
		Steps: []definition.Step{
			{ID: "send-invitation", From: definition.InitialStateID, On: "invite", Requires: definition.RequireLocal, Run: sendInvitation},
			{ID: "receive-invitation", From: definition.InitialStateID, On: "invitation", Requires: definition.RequireAsymmetric, Run: receiveInvitation},
			{ID: "respond-to-invitation", From: "invitation-received", On: "response", Requires: definition.RequireLocal, Run: respondToInvitation},
			{ID: "process-acceptance", From: "invitation-sent", On: "acceptance", Requires: definition.RequireAsymmetric, Run: processAcceptance},
		},
	}
}
